package identity

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/privata-io/consent-service/domain"
)

func TestStaticResolver(t *testing.T) {
	ctx := context.Background()
	resolver := NewStaticResolver()
	resolver.Register("alice", "0xalice", "Alice")

	t.Run("resolve owner", func(t *testing.T) {
		address, err := resolver.ResolveOwner(ctx, "alice")
		assert.NoError(t, err)
		assert.Equal(t, "0xalice", address)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, err := resolver.ResolveOwner(ctx, "nobody")
		assert.True(t, domain.IsKind(err, domain.KindIdentityNotOwned))

		_, err = resolver.LookupProfile(ctx, "nobody")
		assert.True(t, domain.IsKind(err, domain.KindProfileNotFound))
	})

	t.Run("lookup profile", func(t *testing.T) {
		profile, err := resolver.LookupProfile(ctx, "alice")
		assert.NoError(t, err)
		assert.Equal(t, "Alice", profile.DisplayName)
		assert.False(t, profile.RegisteredAt.IsZero())
	})

	t.Run("register replaces the binding", func(t *testing.T) {
		resolver.Register("alice", "0xnewalice", "Alice")
		address, err := resolver.ResolveOwner(ctx, "alice")
		assert.NoError(t, err)
		assert.Equal(t, "0xnewalice", address)
	})
}
