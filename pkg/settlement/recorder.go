package settlement

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Receipt is the transaction metadata handed back by the settlement layer for
// an approved consent request.
type Receipt struct {
	Reference string
	Timestamp time.Time
}

// Recorder is implemented outside the core; the simulated recorder below is
// used for local wiring and tests.
type Recorder interface {
	RecordApproval(ctx context.Context, requestID uuid.UUID) (*Receipt, error)
}

// Simulated produces deterministic-looking transaction references without any
// chain interaction.
type Simulated struct {
	Now func() time.Time
}

func NewSimulated() *Simulated {
	return &Simulated{Now: time.Now}
}

func (s *Simulated) RecordApproval(ctx context.Context, requestID uuid.UUID) (*Receipt, error) {
	now := s.Now()
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s|%d", requestID, now.UnixNano())))
	return &Receipt{
		Reference: "0x" + hex.EncodeToString(sum[:]),
		Timestamp: now,
	}, nil
}
