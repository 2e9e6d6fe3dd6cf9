package proof

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/privata-io/consent-service/domain"
)

// Commitment is the root of a merkle tree over a batch of data items, used
// for batch-proof commitments.
type Commitment struct {
	Root   string
	Height int
	Leaves int
}

// LeafHash is the hash of a single data item.
func LeafHash(item []byte) string {
	sum := sha256.Sum256(item)
	return hex.EncodeToString(sum[:])
}

func pairHash(a, b string) string {
	sum := sha256.Sum256([]byte(a + b))
	return hex.EncodeToString(sum[:])
}

// Commit builds the tree bottom-up, duplicating the last node whenever a
// level has odd cardinality. A single item's root is its own leaf hash.
func Commit(items [][]byte) (*Commitment, error) {
	if len(items) == 0 {
		return nil, domain.Validationf("cannot commit to an empty batch")
	}

	level := make([]string, len(items))
	for i, item := range items {
		level[i] = LeafHash(item)
	}

	height := 0
	for len(level) > 1 {
		if len(level)%2 == 1 {
			level = append(level, level[len(level)-1])
		}
		next := make([]string, 0, len(level)/2)
		for i := 0; i < len(level); i += 2 {
			next = append(next, pairHash(level[i], level[i+1]))
		}
		level = next
		height++
	}

	return &Commitment{
		Root:   level[0],
		Height: height,
		Leaves: len(items),
	}, nil
}
