package identity

import (
	"context"
	"sync"
	"time"

	"github.com/privata-io/consent-service/domain"
)

// Profile is the public record behind a registered identity name.
type Profile struct {
	Name         string
	Address      string
	DisplayName  string
	RegisteredAt time.Time
}

// Resolver maps identity names to their controlling addresses and profiles.
// Implemented outside the core; the static resolver below backs local wiring
// and tests.
type Resolver interface {
	ResolveOwner(ctx context.Context, name string) (string, error)
	LookupProfile(ctx context.Context, name string) (*Profile, error)
}

// StaticResolver is a concurrent-safe in-memory name registry.
type StaticResolver struct {
	mu       sync.RWMutex
	profiles map[string]*Profile
}

func NewStaticResolver() *StaticResolver {
	return &StaticResolver{profiles: map[string]*Profile{}}
}

// Register adds or replaces a name binding.
func (r *StaticResolver) Register(name, address, displayName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[name] = &Profile{
		Name:         name,
		Address:      address,
		DisplayName:  displayName,
		RegisteredAt: time.Now(),
	}
}

func (r *StaticResolver) ResolveOwner(ctx context.Context, name string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	if !ok {
		return "", domain.IdentityNotOwnedf("name %q is not registered", name)
	}
	return p.Address, nil
}

func (r *StaticResolver) LookupProfile(ctx context.Context, name string) (*Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[name]
	if !ok {
		return nil, domain.ProfileNotFoundf("no profile for name %q", name)
	}
	cp := *p
	return &cp, nil
}
