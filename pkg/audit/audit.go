package audit

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thedevsaddam/gojsonq/v2"

	"github.com/privata-io/consent-service/pkg/logger"
)

// Record is one entry of the append-only audit trail.
type Record struct {
	ID       string    `json:"id"`
	Actor    string    `json:"actor"`
	Action   string    `json:"action"`
	Resource string    `json:"resource"`
	Outcome  string    `json:"outcome"`
	Detail   string    `json:"detail"`
	At       time.Time `json:"at"`
}

const OutcomeOK = "ok"

// Recorder accepts audit records. Writing must never abort the operation
// being audited; use Write for that guarantee.
type Recorder interface {
	Record(rec Record) error
}

// Write records and swallows failures: an audit problem is a diagnostic, not
// a caller-visible error.
func Write(r Recorder, rec Record) {
	if r == nil {
		return
	}
	if err := r.Record(rec); err != nil {
		logger.Logger().WithError(err).Warnf("audit write failed for action %s", rec.Action)
	}
}

// Trail is the in-memory append-only audit store.
type Trail struct {
	mu      sync.RWMutex
	records []Record
}

func NewTrail() *Trail {
	return &Trail{}
}

func (t *Trail) Record(rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.At.IsZero() {
		rec.At = time.Now()
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records = append(t.records, rec)
	return nil
}

// All returns a copy of the whole trail, oldest first.
func (t *Trail) All() []Record {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]Record, len(t.records))
	copy(out, t.records)
	return out
}

func (t *Trail) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.records)
}

// query exposes the serialized trail to gojsonq.
func (t *Trail) query() *gojsonq.JSONQ {
	t.mu.RLock()
	raw, err := json.Marshal(t.records)
	t.mu.RUnlock()
	if err != nil {
		raw = []byte("[]")
	}
	return gojsonq.New().FromString(string(raw))
}

func (t *Trail) decode(result interface{}) []Record {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil
	}
	var out []Record
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

// ByActor lists records written for the given actor.
func (t *Trail) ByActor(actor string) []Record {
	return t.decode(t.query().Where("actor", "=", actor).Get())
}

// ByAction lists records for one action.
func (t *Trail) ByAction(action string) []Record {
	return t.decode(t.query().Where("action", "=", action).Get())
}

// ByResource lists records touching one resource.
func (t *Trail) ByResource(resource string) []Record {
	return t.decode(t.query().Where("resource", "=", resource).Get())
}

// Failures lists every record whose outcome differs from ok.
func (t *Trail) Failures() []Record {
	return t.decode(t.query().Where("outcome", "!=", OutcomeOK).Get())
}
