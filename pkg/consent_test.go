package pkg

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/privata-io/consent-service/domain"
	"github.com/privata-io/consent-service/domain/consent"
	"github.com/privata-io/consent-service/pkg/config"
	"github.com/privata-io/consent-service/pkg/notification"
)

func startedService(t *testing.T) *ConsentService {
	t.Helper()
	service := NewConsentService(config.Default())
	if err := service.Configure(); err != nil {
		t.Fatal(err)
	}
	if err := service.Start(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = service.Shutdown()
	})
	return service
}

func validRequest() CreateConsentRequest {
	return CreateConsentRequest{
		RequesterID: "analytics-corp",
		OwnerID:     "alice",
		Category:    "medical",
		Purpose:     "aggregate wellbeing study",
		Scope: ScopeParams{
			Fields: []string{"heart-rate", "sleep"},
			From:   time.Now().Add(-30 * 24 * time.Hour),
			Level:  "read",
		},
		ExpiresAt: time.Now().Add(48 * time.Hour),
	}
}

func TestConsentService_CreateConsentRequest(t *testing.T) {
	service := startedService(t)
	ctx := context.Background()

	created, err := service.CreateConsentRequest(ctx, validRequest())
	assert.NoError(t, err)
	assert.Equal(t, consent.StatusPending, created.Status)
	assert.Equal(t, "alice", created.OwnerID)

	t.Run("read back", func(t *testing.T) {
		got, err := service.GetConsentRequest(ctx, created.ID)
		assert.NoError(t, err)
		assert.Equal(t, created.ID, got.ID)
		assert.Equal(t, consent.StatusPending, got.Status)
	})

	t.Run("the created event feeds the anomaly profile", func(t *testing.T) {
		deadline := time.Now().Add(2 * time.Second)
		for {
			if _, ok := service.Profiles.Get("alice", "medical"); ok {
				return
			}
			if time.Now().After(deadline) {
				t.Fatal("no anomaly profile appeared for alice/medical")
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	t.Run("both parties are notified", func(t *testing.T) {
		sink := service.Notifier.(*notification.MemorySink)
		deadline := time.Now().Add(2 * time.Second)
		for {
			if len(sink.ByType("consent.requested")) >= 2 {
				return
			}
			if time.Now().After(deadline) {
				t.Fatalf("expected both parties notified, got %d", len(sink.ByType("consent.requested")))
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	t.Run("invalid category", func(t *testing.T) {
		req := validRequest()
		req.Category = "horoscope"
		_, err := service.CreateConsentRequest(ctx, req)
		assert.True(t, domain.IsKind(err, domain.KindValidation))
	})

	t.Run("expiry in the past", func(t *testing.T) {
		req := validRequest()
		req.ExpiresAt = time.Now().Add(-time.Hour)
		_, err := service.CreateConsentRequest(ctx, req)
		assert.True(t, domain.IsKind(err, domain.KindValidation))
	})
}

func TestConsentService_ApproveAndSettle(t *testing.T) {
	service := startedService(t)
	ctx := context.Background()

	created, err := service.CreateConsentRequest(ctx, validRequest())
	assert.NoError(t, err)

	approved, err := service.ApproveConsentRequest(ctx, created.ID, "alice", "fine by me")
	assert.NoError(t, err)
	assert.Equal(t, consent.StatusApproved, approved.Status)
	assert.Equal(t, "alice", approved.RespondedBy)

	t.Run("the settlement saga attaches a reference", func(t *testing.T) {
		deadline := time.Now().Add(2 * time.Second)
		for {
			got, err := service.GetConsentRequest(ctx, created.ID)
			assert.NoError(t, err)
			if got.SettlementRef != "" {
				return
			}
			if time.Now().After(deadline) {
				t.Fatal("no settlement reference was attached")
			}
			time.Sleep(5 * time.Millisecond)
		}
	})

	t.Run("non-owner cannot respond", func(t *testing.T) {
		other, err := service.CreateConsentRequest(ctx, validRequest())
		assert.NoError(t, err)
		_, err = service.DenyConsentRequest(ctx, other.ID, "mallory", "")
		assert.True(t, domain.IsKind(err, domain.KindForbidden))
	})

	t.Run("approved requests can be revoked", func(t *testing.T) {
		revoked, err := service.RevokeConsentRequest(ctx, created.ID, "alice", "changed my mind")
		assert.NoError(t, err)
		assert.Equal(t, consent.StatusRevoked, revoked.Status)
	})

	t.Run("revoked requests cannot be approved again", func(t *testing.T) {
		_, err := service.ApproveConsentRequest(ctx, created.ID, "alice", "")
		assert.True(t, domain.IsKind(err, domain.KindInvalidState))
	})
}

func TestConsentService_TerminalRequestDropsSerializationEntry(t *testing.T) {
	service := startedService(t)
	ctx := context.Background()

	created, err := service.CreateConsentRequest(ctx, validRequest())
	assert.NoError(t, err)

	_, err = service.DenyConsentRequest(ctx, created.ID, "alice", "not comfortable")
	assert.NoError(t, err)

	_, held := service.locks.Load(created.ID)
	assert.False(t, held, "denied requests keep no per-id mutex")
}

func TestConsentService_ConcurrentResponsesOneWinner(t *testing.T) {
	service := startedService(t)
	ctx := context.Background()

	created, err := service.CreateConsentRequest(ctx, validRequest())
	assert.NoError(t, err)

	var wg sync.WaitGroup
	var approveErr, denyErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		_, approveErr = service.ApproveConsentRequest(ctx, created.ID, "alice", "")
	}()
	go func() {
		defer wg.Done()
		_, denyErr = service.DenyConsentRequest(ctx, created.ID, "alice", "")
	}()
	wg.Wait()

	winners := 0
	for _, err := range []error{approveErr, denyErr} {
		if err == nil {
			winners++
		} else {
			assert.True(t, domain.IsKind(err, domain.KindInvalidState))
		}
	}
	assert.Equal(t, 1, winners, "exactly one of two concurrent responses wins")
}

func TestConsentService_LazyExpiry(t *testing.T) {
	service := startedService(t)
	ctx := context.Background()

	req := validRequest()
	req.ExpiresAt = time.Now().Add(50 * time.Millisecond)
	created, err := service.CreateConsentRequest(ctx, req)
	assert.NoError(t, err)
	assert.Equal(t, consent.StatusPending, created.Status)

	time.Sleep(80 * time.Millisecond)

	got, err := service.GetConsentRequest(ctx, created.ID)
	assert.NoError(t, err)
	assert.Equal(t, consent.StatusExpired, got.Status, "an overdue pending request reads as expired")

	_, err = service.ApproveConsentRequest(ctx, created.ID, "alice", "")
	assert.True(t, domain.IsKind(err, domain.KindInvalidState))

	t.Run("both parties are notified of the expiry", func(t *testing.T) {
		sink := service.Notifier.(*notification.MemorySink)
		deadline := time.Now().Add(2 * time.Second)
		for {
			if len(sink.ByType("consent.expired")) >= 2 {
				return
			}
			if time.Now().After(deadline) {
				t.Fatal("no expiry notifications were published")
			}
			time.Sleep(5 * time.Millisecond)
		}
	})
}

func TestConsentService_ListConsentRequestsByOwner(t *testing.T) {
	service := startedService(t)
	ctx := context.Background()

	first, err := service.CreateConsentRequest(ctx, validRequest())
	assert.NoError(t, err)

	other := validRequest()
	other.OwnerID = "bob"
	_, err = service.CreateConsentRequest(ctx, other)
	assert.NoError(t, err)

	list, err := service.ListConsentRequestsByOwner(ctx, "alice")
	assert.NoError(t, err)
	assert.Len(t, list, 1)
	assert.Equal(t, first.ID, list[0].ID)

	empty, err := service.ListConsentRequestsByOwner(ctx, "nobody")
	assert.NoError(t, err)
	assert.Empty(t, empty)
}

func TestConsentService_ContentRoundTrip(t *testing.T) {
	service := startedService(t)
	ctx := context.Background()
	payload := []byte(`{"heartRate": 62}`)

	stored, err := service.StoreEncrypted(ctx, payload, "alice", "medical")
	assert.NoError(t, err)

	got, meta, err := service.RetrieveEncrypted(ctx, stored.DataAddress, stored.MetadataAddress, "alice", "medical")
	assert.NoError(t, err)
	assert.Equal(t, payload, got)
	assert.Equal(t, "medical", meta.Category)

	_, _, err = service.RetrieveEncrypted(ctx, stored.DataAddress, stored.MetadataAddress, "bob", "medical")
	assert.True(t, domain.IsKind(err, domain.KindDecryptionFailed))

	_, err = service.StoreEncrypted(ctx, payload, "alice", "horoscope")
	assert.True(t, domain.IsKind(err, domain.KindValidation))
}

func TestConsentService_MonitorTick(t *testing.T) {
	service := startedService(t)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := service.CreateConsentRequest(ctx, validRequest())
		assert.NoError(t, err)
	}

	// the monitor saga runs async; wait for the profile before sweeping
	deadline := time.Now().Add(2 * time.Second)
	for {
		if _, ok := service.Profiles.Get("alice", "medical"); ok {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("no anomaly profile appeared")
		}
		time.Sleep(5 * time.Millisecond)
	}

	assert.NoError(t, service.MonitorTick(ctx))

	profile, ok := service.Profiles.Get("alice", "medical")
	assert.True(t, ok)
	assert.Equal(t, 6, profile.Pattern.Requests)
	assert.NotEmpty(t, profile.Alerts, "six requests exceed the default frequency threshold")
}
