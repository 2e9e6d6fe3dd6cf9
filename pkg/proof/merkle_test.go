package proof

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/privata-io/consent-service/domain"
)

func TestCommit(t *testing.T) {
	t.Run("empty batch", func(t *testing.T) {
		_, err := Commit(nil)
		assert.True(t, domain.IsKind(err, domain.KindValidation))
	})

	t.Run("single item root is its own leaf hash", func(t *testing.T) {
		c, err := Commit([][]byte{[]byte("a")})
		assert.NoError(t, err)
		assert.Equal(t, LeafHash([]byte("a")), c.Root)
		assert.Equal(t, 0, c.Height)
		assert.Equal(t, 1, c.Leaves)
	})

	t.Run("pair", func(t *testing.T) {
		c, err := Commit([][]byte{[]byte("a"), []byte("b")})
		assert.NoError(t, err)
		assert.Equal(t, pairHash(LeafHash([]byte("a")), LeafHash([]byte("b"))), c.Root)
		assert.Equal(t, 1, c.Height)
	})

	t.Run("odd batch duplicates the last node", func(t *testing.T) {
		ha := LeafHash([]byte("a"))
		hb := LeafHash([]byte("b"))
		hc := LeafHash([]byte("c"))
		expected := pairHash(pairHash(ha, hb), pairHash(hc, hc))

		c, err := Commit([][]byte{[]byte("a"), []byte("b"), []byte("c")})
		assert.NoError(t, err)
		assert.Equal(t, expected, c.Root)
		assert.Equal(t, 2, c.Height)
		assert.Equal(t, 3, c.Leaves)
	})

	t.Run("deterministic and order sensitive", func(t *testing.T) {
		first, err := Commit([][]byte{[]byte("a"), []byte("b")})
		assert.NoError(t, err)
		second, err := Commit([][]byte{[]byte("a"), []byte("b")})
		assert.NoError(t, err)
		swapped, err := Commit([][]byte{[]byte("b"), []byte("a")})
		assert.NoError(t, err)

		assert.Equal(t, first.Root, second.Root)
		assert.NotEqual(t, first.Root, swapped.Root)
	})
}
