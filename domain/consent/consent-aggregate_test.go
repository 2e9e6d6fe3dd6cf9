package consent

import (
	"context"
	"reflect"
	"testing"
	"time"

	"github.com/google/uuid"
	eh "github.com/looplab/eventhorizon"
	"github.com/looplab/eventhorizon/aggregatestore/events"
	"github.com/looplab/eventhorizon/mocks"

	"github.com/privata-io/consent-service/domain"
	"github.com/privata-io/consent-service/domain/consent/commands"
	domainEvents "github.com/privata-io/consent-service/domain/events"
)

func TestConsentAggregate_HandleCommand(t *testing.T) {
	TimeNow = func() time.Time {
		return time.Date(2026, time.March, 10, 12, 0, 0, 0, time.UTC)
	}
	now := TimeNow()

	id := uuid.New()
	expiresAt := now.Add(48 * time.Hour)

	newAggregate := func(mutate func(a *ConsentAggregate)) *ConsentAggregate {
		a := &ConsentAggregate{
			AggregateBase: events.NewAggregateBase(domain.ConsentAggregateType, id),
		}
		if mutate != nil {
			mutate(a)
		}
		return a
	}
	pending := func(a *ConsentAggregate) {
		a.created = true
		a.status = StatusPending
		a.requesterID = "analytics-corp"
		a.ownerID = "alice"
		a.category = string(CategoryMedical)
		a.expiresAt = expiresAt
	}
	approved := func(a *ConsentAggregate) {
		pending(a)
		a.status = StatusApproved
	}

	validCreate := &commands.Create{
		ID:          id,
		RequesterID: "analytics-corp",
		OwnerID:     "alice",
		Category:    string(CategoryMedical),
		Purpose:     "aggregate wellbeing study",
		ScopeFields: []string{"heart-rate", "sleep"},
		ScopeFrom:   now.Add(-30 * 24 * time.Hour),
		AccessLevel: string(AccessRead),
		ExpiresAt:   expiresAt,
	}

	respondedData := func(reason string) *domainEvents.RespondedData {
		return &domainEvents.RespondedData{
			ActorID:     "alice",
			Reason:      reason,
			At:          now,
			RequesterID: "analytics-corp",
			OwnerID:     "alice",
			Category:    string(CategoryMedical),
		}
	}

	cases := map[string]struct {
		agg            *ConsentAggregate
		cmd            eh.Command
		expectedEvents []eh.Event
		expectedError  error
	}{
		"unknown command": {
			newAggregate(nil),
			&mocks.Command{ID: id, Content: "unroutable"},
			nil,
			domain.ErrUnknownCommand,
		},
		"create": {
			newAggregate(nil),
			validCreate,
			[]eh.Event{eh.NewEventForAggregate(domainEvents.RequestCreated, &domainEvents.CreatedData{
				ID:          id,
				RequesterID: "analytics-corp",
				OwnerID:     "alice",
				Category:    string(CategoryMedical),
				Purpose:     "aggregate wellbeing study",
				ScopeFields: []string{"heart-rate", "sleep"},
				ScopeFrom:   now.Add(-30 * 24 * time.Hour),
				AccessLevel: string(AccessRead),
				ExpiresAt:   expiresAt,
			}, now, domain.ConsentAggregateType, id, 1)},
			nil,
		},
		"create twice": {
			newAggregate(pending),
			validCreate,
			nil,
			domain.InvalidStatef("consent request %s already exists", id),
		},
		"create requester equals owner": {
			newAggregate(nil),
			&commands.Create{
				ID:          id,
				RequesterID: "alice",
				OwnerID:     "alice",
				Category:    string(CategoryMedical),
				Purpose:     "self access",
				ScopeFields: []string{"sleep"},
				ScopeFrom:   now,
				AccessLevel: string(AccessRead),
				ExpiresAt:   expiresAt,
			},
			nil,
			domain.Validationf("requester and owner must differ"),
		},
		"create unknown category": {
			newAggregate(nil),
			&commands.Create{
				ID:          id,
				RequesterID: "analytics-corp",
				OwnerID:     "alice",
				Category:    "horoscope",
				Purpose:     "aggregate wellbeing study",
				ScopeFields: []string{"sleep"},
				ScopeFrom:   now,
				AccessLevel: string(AccessRead),
				ExpiresAt:   expiresAt,
			},
			nil,
			domain.Validationf("unknown data category %q", "horoscope"),
		},
		"approve pending": {
			newAggregate(pending),
			&commands.Approve{ID: id, ActorID: "alice", Reason: "fine by me"},
			[]eh.Event{eh.NewEventForAggregate(domainEvents.RequestApproved,
				respondedData("fine by me"), now, domain.ConsentAggregateType, id, 1)},
			nil,
		},
		"deny pending": {
			newAggregate(pending),
			&commands.Deny{ID: id, ActorID: "alice", Reason: "too broad"},
			[]eh.Event{eh.NewEventForAggregate(domainEvents.RequestDenied,
				respondedData("too broad"), now, domain.ConsentAggregateType, id, 1)},
			nil,
		},
		"approve by non-owner": {
			newAggregate(pending),
			&commands.Approve{ID: id, ActorID: "mallory"},
			nil,
			domain.Forbiddenf("only the data owner may respond to a consent request"),
		},
		"approve already approved": {
			newAggregate(approved),
			&commands.Approve{ID: id, ActorID: "alice"},
			nil,
			domain.InvalidStatef("cannot move a %s request to %s", StatusApproved, StatusApproved),
		},
		"deny after approve": {
			newAggregate(approved),
			&commands.Deny{ID: id, ActorID: "alice"},
			nil,
			domain.InvalidStatef("cannot move a %s request to %s", StatusApproved, StatusDenied),
		},
		"revoke approved": {
			newAggregate(approved),
			&commands.Revoke{ID: id, ActorID: "alice", Reason: "changed my mind"},
			[]eh.Event{eh.NewEventForAggregate(domainEvents.RequestRevoked,
				respondedData("changed my mind"), now, domain.ConsentAggregateType, id, 1)},
			nil,
		},
		"revoke pending": {
			newAggregate(pending),
			&commands.Revoke{ID: id, ActorID: "alice"},
			nil,
			domain.InvalidStatef("cannot revoke a %s request", StatusPending),
		},
		"approve overdue pending": {
			newAggregate(func(a *ConsentAggregate) {
				pending(a)
				a.expiresAt = now.Add(-time.Hour)
			}),
			&commands.Approve{ID: id, ActorID: "alice"},
			[]eh.Event{eh.NewEventForAggregate(domainEvents.RequestExpired,
				&domainEvents.ExpiredData{
					At:          now,
					RequesterID: "analytics-corp",
					OwnerID:     "alice",
					Category:    string(CategoryMedical),
				}, now, domain.ConsentAggregateType, id, 1)},
			domain.InvalidStatef("cannot move a %s request to %s", StatusExpired, StatusApproved),
		},
		"attach settlement to approved": {
			newAggregate(approved),
			&commands.AttachSettlement{ID: id, Reference: "0xabc"},
			[]eh.Event{eh.NewEventForAggregate(domainEvents.SettlementAttached,
				&domainEvents.SettlementData{Reference: "0xabc", At: now}, now, domain.ConsentAggregateType, id, 1)},
			nil,
		},
		"attach settlement to pending": {
			newAggregate(pending),
			&commands.AttachSettlement{ID: id, Reference: "0xabc"},
			nil,
			domain.InvalidStatef("cannot attach a settlement to a %s request", StatusPending),
		},
		"attach settlement twice keeps the first": {
			newAggregate(func(a *ConsentAggregate) {
				approved(a)
				a.settlementRef = "0xfirst"
			}),
			&commands.AttachSettlement{ID: id, Reference: "0xsecond"},
			nil,
			nil,
		},
	}

	for name, testcase := range cases {
		t.Run(name, func(t *testing.T) {
			err := testcase.agg.HandleCommand(context.Background(), testcase.cmd)
			if (testcase.expectedError != nil && err == nil) ||
				(testcase.expectedError == nil && err != nil) ||
				(testcase.expectedError != nil && err != nil && err.Error() != testcase.expectedError.Error()) {
				t.Errorf("incorrect error result")
				t.Log("exp error: ", testcase.expectedError)
				t.Log("got error: ", err)
			}

			events := testcase.agg.Events()
			if !reflect.DeepEqual(events, testcase.expectedEvents) {
				t.Errorf("test case '%s': incorrect events", name)
				t.Logf("exp: %#v\n", testcase.expectedEvents)
				t.Logf("got: %#v\n", events)
			}
		})
	}
}

func TestConsentAggregate_ApplyEvent(t *testing.T) {
	id := uuid.New()
	now := time.Now()

	a := &ConsentAggregate{
		AggregateBase: events.NewAggregateBase(domain.ConsentAggregateType, id),
	}

	created := eh.NewEventForAggregate(domainEvents.RequestCreated, &domainEvents.CreatedData{
		ID:          id,
		RequesterID: "analytics-corp",
		OwnerID:     "alice",
		Category:    string(CategoryFinancial),
		ExpiresAt:   now.Add(time.Hour),
	}, now, domain.ConsentAggregateType, id, 1)
	if err := a.ApplyEvent(context.Background(), created); err != nil {
		t.Fatal(err)
	}
	if !a.created || a.status != StatusPending {
		t.Errorf("expected a pending request after replaying the created event, got %s", a.status)
	}

	approvedEvent := eh.NewEventForAggregate(domainEvents.RequestApproved, &domainEvents.RespondedData{
		ActorID: "alice", At: now,
	}, now, domain.ConsentAggregateType, id, 2)
	if err := a.ApplyEvent(context.Background(), approvedEvent); err != nil {
		t.Fatal(err)
	}
	if a.status != StatusApproved {
		t.Errorf("expected an approved request, got %s", a.status)
	}

	settled := eh.NewEventForAggregate(domainEvents.SettlementAttached, &domainEvents.SettlementData{
		Reference: "0xabc", At: now,
	}, now, domain.ConsentAggregateType, id, 3)
	if err := a.ApplyEvent(context.Background(), settled); err != nil {
		t.Fatal(err)
	}
	if a.settlementRef != "0xabc" {
		t.Errorf("expected the settlement reference to be replayed, got %q", a.settlementRef)
	}
}
