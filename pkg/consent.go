package pkg

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	eh "github.com/looplab/eventhorizon"
	"github.com/looplab/eventhorizon/aggregatestore/events"
	"github.com/looplab/eventhorizon/commandhandler/aggregate"
	"github.com/looplab/eventhorizon/commandhandler/bus"
	"github.com/looplab/eventhorizon/eventbus/local"
	eventProjector "github.com/looplab/eventhorizon/eventhandler/projector"
	"github.com/looplab/eventhorizon/eventhandler/saga"
	"github.com/looplab/eventhorizon/eventstore/memory"
	repoMemory "github.com/looplab/eventhorizon/repo/memory"

	"github.com/privata-io/consent-service/domain"
	"github.com/privata-io/consent-service/domain/consent"
	"github.com/privata-io/consent-service/domain/consent/commands"
	domainEvents "github.com/privata-io/consent-service/domain/events"
	"github.com/privata-io/consent-service/domain/sagas"
	"github.com/privata-io/consent-service/pkg/anomaly"
	"github.com/privata-io/consent-service/pkg/audit"
	"github.com/privata-io/consent-service/pkg/config"
	"github.com/privata-io/consent-service/pkg/credential"
	"github.com/privata-io/consent-service/pkg/identity"
	"github.com/privata-io/consent-service/pkg/logger"
	"github.com/privata-io/consent-service/pkg/notification"
	"github.com/privata-io/consent-service/pkg/proof"
	"github.com/privata-io/consent-service/pkg/settlement"
	"github.com/privata-io/consent-service/pkg/storage"
	"github.com/privata-io/consent-service/pkg/verification"
)

// readModelWait bounds how long an operation waits for the asynchronous
// projector to catch up with a committed transition.
const readModelWait = 3 * time.Second
const readModelPoll = 5 * time.Millisecond

// ConsentService is the composition root of the core: it owns the event
// plumbing around the consent aggregate and fronts every exposed operation.
// Construct it once at startup and inject it where needed.
type ConsentService struct {
	Config config.Config

	Proofs      *proof.Service
	Credentials *credential.Service
	Blobs       storage.BlobStore
	Content     *storage.ContentStore
	Pipeline    *verification.Pipeline
	Profiles    *anomaly.Store
	Monitor     *anomaly.Monitor
	Identity    identity.Resolver
	Settlement  settlement.Recorder
	Notifier    notification.Sink
	Audit       *audit.Trail

	CommandBus eh.CommandHandler
	Requests   eh.ReadWriteRepo

	locks   sync.Map
	started bool
}

// NewConsentService builds a service with in-memory collaborators. Callers
// replace any collaborator before Start.
func NewConsentService(cfg config.Config) *ConsentService {
	blobs := storage.NewMemoryBlobStore()
	return &ConsentService{
		Config:      cfg,
		Proofs:      proof.NewService(),
		Credentials: credential.NewService(),
		Blobs:       blobs,
		Content:     storage.NewContentStore(blobs, []byte(cfg.Storage.Secret)),
		Profiles:    anomaly.NewStore(),
		Identity:    identity.NewStaticResolver(),
		Settlement:  settlement.NewSimulated(),
		Notifier:    notification.NewMemorySink(),
		Audit:       audit.NewTrail(),
	}
}

func (s *ConsentService) Configure() error {
	if s.Config.Storage.Secret == "" {
		return domain.Validationf("a storage secret is required")
	}
	return nil
}

// Start wires the event store, buses, projector, sagas and observers, and
// launches the anomaly sweep.
func (s *ConsentService) Start() error {
	if s.started {
		return nil
	}

	eventstore := memory.NewEventStore()
	eventbus := local.NewEventBus(local.NewGroup())
	commandBus := bus.NewCommandHandler()
	s.CommandBus = commandBus

	eventbus.AddObserver(eh.MatchAny(), &logger.EventLogger{})
	eventbus.AddObserver(eh.MatchAny(), audit.Observer{Recorder: s.Audit})
	eventbus.AddObserver(eh.MatchAny(), notification.Observer{Sink: s.Notifier})

	aggregateStore, err := events.NewAggregateStore(eventstore, eventbus)
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "could not create the aggregate store")
	}
	consentHandler, err := aggregate.NewCommandHandler(domain.ConsentAggregateType, aggregateStore)
	if err != nil {
		return domain.Wrap(domain.KindInternal, err, "could not create the command handler")
	}

	for _, cmdType := range []eh.CommandType{
		commands.CreateCmdType,
		commands.ApproveCmdType,
		commands.DenyCmdType,
		commands.RevokeCmdType,
		commands.ExpireCmdType,
		commands.AttachSettlementCmdType,
	} {
		if err := commandBus.SetHandler(consentHandler, cmdType); err != nil {
			return domain.Wrap(domain.KindInternal, err, "could not register command %s", cmdType)
		}
	}

	requestRepo := repoMemory.NewRepo()
	requestProjector := eventProjector.NewEventHandler(consent.RequestProjector{}, requestRepo)
	requestProjector.SetEntityFactory(func() eh.Entity { return &consent.ConsentRequest{} })
	eventbus.AddHandler(eh.MatchAny(), requestProjector)
	s.Requests = requestRepo

	settlementSaga := saga.NewEventHandler(sagas.SettlementSaga{Recorder: s.Settlement}, commandBus)
	eventbus.AddHandler(eh.MatchEvent(domainEvents.RequestApproved), settlementSaga)

	monitorSaga := saga.NewEventHandler(sagas.MonitorSaga{Profiles: s.Profiles}, commandBus)
	eventbus.AddHandler(eh.MatchEvent(domainEvents.RequestCreated), monitorSaga)

	go func() {
		for busErr := range eventbus.Errors() {
			logger.Logger().WithError(busErr.Err).Error("event bus error")
		}
	}()

	s.Pipeline = verification.NewPipeline(s.Identity, s.Proofs, s.Credentials, s.Blobs, s.Audit)
	s.Pipeline.GateTimeout = s.Config.GateTimeout()

	s.Monitor = anomaly.NewMonitor(s.Profiles, requestSource{repo: requestRepo}, s.Notifier, anomaly.Config{
		Interval:             s.Config.AnomalyInterval(),
		Window:               s.Config.AnomalyWindow(),
		FrequencyThreshold:   s.Config.Anomaly.FrequencyThreshold,
		VolumeThreshold:      s.Config.Anomaly.VolumeThreshold,
		DeniedRatioThreshold: s.Config.Anomaly.DeniedRatioThreshold,
		NormalHoursStart:     s.Config.Anomaly.NormalHoursStart,
		NormalHoursEnd:       s.Config.Anomaly.NormalHoursEnd,
	})
	s.Monitor.Start(context.Background())

	s.started = true
	return nil
}

func (s *ConsentService) Shutdown() error {
	if s.Monitor != nil {
		s.Monitor.Stop()
	}
	return nil
}

// CreateConsentRequest opens a new pending request.
func (s *ConsentService) CreateConsentRequest(ctx context.Context, req CreateConsentRequest) (*consent.ConsentRequest, error) {
	if req.RequesterID == "" || req.OwnerID == "" || req.Purpose == "" {
		return nil, domain.Validationf("requester, owner and purpose are required")
	}
	if _, err := consent.ParseCategory(req.Category); err != nil {
		return nil, err
	}
	if _, err := consent.ParseAccessLevel(req.Scope.Level); err != nil {
		return nil, err
	}

	id := uuid.New()
	cmd := &commands.Create{
		ID:              id,
		RequesterID:     req.RequesterID,
		OwnerID:         req.OwnerID,
		Category:        req.Category,
		Purpose:         req.Purpose,
		ScopeFields:     req.Scope.Fields,
		ScopeFrom:       req.Scope.From,
		ScopeTo:         req.Scope.To,
		AccessLevel:     req.Scope.Level,
		ExpiresAt:       req.ExpiresAt,
		ProofID:         req.ProofID,
		CredentialID:    req.CredentialID,
		ContentAddress:  req.ContentAddress,
		MetadataAddress: req.MetadataAddress,
	}
	if err := s.CommandBus.HandleCommand(ctx, cmd); err != nil {
		return nil, mapCommandError(err)
	}
	return s.waitForRequest(ctx, id, nil)
}

// ApproveConsentRequest moves a pending request to approved. Committing
// transitions are serialized per request id: of two near-simultaneous
// responses exactly one wins, the other observes InvalidState.
func (s *ConsentService) ApproveConsentRequest(ctx context.Context, id uuid.UUID, actor, reason string) (*consent.ConsentRequest, error) {
	return s.respond(ctx, id, actor, &commands.Approve{ID: id, ActorID: actor, Reason: reason}, consent.StatusApproved)
}

// DenyConsentRequest moves a pending request to denied.
func (s *ConsentService) DenyConsentRequest(ctx context.Context, id uuid.UUID, actor, reason string) (*consent.ConsentRequest, error) {
	return s.respond(ctx, id, actor, &commands.Deny{ID: id, ActorID: actor, Reason: reason}, consent.StatusDenied)
}

// RevokeConsentRequest withdraws an approved request.
func (s *ConsentService) RevokeConsentRequest(ctx context.Context, id uuid.UUID, actor, reason string) (*consent.ConsentRequest, error) {
	return s.respond(ctx, id, actor, &commands.Revoke{ID: id, ActorID: actor, Reason: reason}, consent.StatusRevoked)
}

func (s *ConsentService) respond(ctx context.Context, id uuid.UUID, actor string, cmd eh.Command, target consent.Status) (*consent.ConsentRequest, error) {
	if actor == "" {
		return nil, domain.Validationf("an actor is required")
	}

	mu := s.lock(id)
	mu.Lock()
	defer mu.Unlock()

	if err := s.CommandBus.HandleCommand(ctx, cmd); err != nil {
		return nil, mapCommandError(err)
	}
	model, err := s.waitForRequest(ctx, id, func(r *consent.ConsentRequest) bool {
		return r.Status == target
	})
	if err == nil && terminalStatus(model.Status) {
		// a terminal request takes no further commands, so its
		// serialization entry can go; a racing waiter still holds the old
		// mutex and its command fails on state
		s.locks.Delete(id)
	}
	return model, err
}

// terminalStatus reports whether no further command can move the request.
func terminalStatus(st consent.Status) bool {
	switch st {
	case consent.StatusDenied, consent.StatusRevoked, consent.StatusExpired:
		return true
	}
	return false
}

// GetConsentRequest reads a request, forcing lazy expiry when the deadline
// has passed.
func (s *ConsentService) GetConsentRequest(ctx context.Context, id uuid.UUID) (*consent.ConsentRequest, error) {
	entity, err := s.Requests.Find(ctx, id)
	if err != nil {
		if isRepoNotFound(err) {
			return nil, domain.Validationf("unknown consent request %s", id)
		}
		return nil, domain.Wrap(domain.KindInternal, err, "could not read consent request")
	}
	model := entity.(*consent.ConsentRequest)
	return s.expireIfNeeded(ctx, model), nil
}

// ListConsentRequestsByOwner lists a data owner's requests, newest last,
// with lazy expiry applied.
func (s *ConsentService) ListConsentRequestsByOwner(ctx context.Context, owner string) ([]*consent.ConsentRequest, error) {
	entities, err := s.Requests.FindAll(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "could not list consent requests")
	}
	var out []*consent.ConsentRequest
	for _, e := range entities {
		model, ok := e.(*consent.ConsentRequest)
		if !ok || model.OwnerID != owner {
			continue
		}
		out = append(out, s.expireIfNeeded(ctx, model))
	}
	return out, nil
}

// expireIfNeeded returns the observed state of the request: an overdue
// pending request reads as expired, and the transition is committed behind
// the read.
func (s *ConsentService) expireIfNeeded(ctx context.Context, model *consent.ConsentRequest) *consent.ConsentRequest {
	cp := *model
	if !cp.ExpiredBy(time.Now()) {
		return &cp
	}
	if err := s.CommandBus.HandleCommand(ctx, &commands.Expire{ID: cp.ID}); err != nil {
		logger.Logger().WithError(err).Warnf("could not expire consent request %s", cp.ID)
	}
	s.locks.Delete(cp.ID)
	cp.Status = consent.StatusExpired
	return &cp
}

// RunMultiFactorVerification executes the composite verification gate.
func (s *ConsentService) RunMultiFactorVerification(ctx context.Context, req verification.Request) *verification.Result {
	return s.Pipeline.RunMultiFactor(ctx, req)
}

// StoreEncrypted encrypts and stores a payload for an owner and category.
func (s *ConsentService) StoreEncrypted(ctx context.Context, payload []byte, owner, category string) (*storage.StoredContent, error) {
	if _, err := consent.ParseCategory(category); err != nil {
		return nil, err
	}
	return s.Content.Store(ctx, payload, owner, category)
}

// RetrieveEncrypted re-derives the key and decrypts previously stored
// content.
func (s *ConsentService) RetrieveEncrypted(ctx context.Context, dataAddress, metadataAddress, owner, category string) ([]byte, *storage.Metadata, error) {
	if _, err := consent.ParseCategory(category); err != nil {
		return nil, nil, err
	}
	return s.Content.Retrieve(ctx, dataAddress, metadataAddress, owner, category)
}

// MonitorTick runs one anomaly sweep; invoked by the scheduler and safe to
// call directly.
func (s *ConsentService) MonitorTick(ctx context.Context) error {
	return s.Monitor.Tick(ctx)
}

func (s *ConsentService) lock(id uuid.UUID) *sync.Mutex {
	v, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	return v.(*sync.Mutex)
}

// waitForRequest polls the read model until the projector caught up with the
// committed transition. The local event bus hands events to handlers
// asynchronously, so a freshly committed event may not be projected yet.
func (s *ConsentService) waitForRequest(ctx context.Context, id uuid.UUID, ready func(*consent.ConsentRequest) bool) (*consent.ConsentRequest, error) {
	deadline := time.Now().Add(readModelWait)
	for {
		entity, err := s.Requests.Find(ctx, id)
		if err == nil {
			model := entity.(*consent.ConsentRequest)
			if ready == nil || ready(model) {
				cp := *model
				return &cp, nil
			}
		} else if !isRepoNotFound(err) {
			return nil, domain.Wrap(domain.KindInternal, err, "could not read consent request")
		}
		if time.Now().After(deadline) {
			return nil, domain.Transientf("the consent request read model is lagging behind")
		}
		select {
		case <-ctx.Done():
			return nil, domain.Transientf("context cancelled while waiting for the read model")
		case <-time.After(readModelPoll):
		}
	}
}

func isRepoNotFound(err error) bool {
	if rerr, ok := err.(eh.RepoError); ok {
		return rerr.Err == eh.ErrEntityNotFound
	}
	return err == eh.ErrEntityNotFound
}

// mapCommandError keeps domain kinds intact and classifies eventhorizon's
// own command validation as input validation.
func mapCommandError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := err.(*domain.Error); ok {
		return err
	}
	if err == domain.ErrUnknownCommand {
		return domain.Wrap(domain.KindInternal, err, "unroutable command")
	}
	if _, ok := err.(eh.CommandFieldError); ok {
		return domain.Wrap(domain.KindValidation, err, "invalid command")
	}
	return domain.Wrap(domain.KindInternal, err, "command handling failed")
}

// requestSource adapts the read model repo to the anomaly monitor.
type requestSource struct {
	repo eh.ReadRepo
}

func (r requestSource) RequestsByOwner(ctx context.Context, owner string, since time.Time) ([]anomaly.AccessRecord, error) {
	entities, err := r.repo.FindAll(ctx)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "could not read consent requests")
	}
	var out []anomaly.AccessRecord
	for _, e := range entities {
		model, ok := e.(*consent.ConsentRequest)
		if !ok || model.OwnerID != owner || model.CreatedAt.Before(since) {
			continue
		}
		out = append(out, anomaly.AccessRecord{
			Category:  string(model.Category),
			CreatedAt: model.CreatedAt,
			Status:    string(model.Status),
			Fields:    len(model.Scope.Fields),
		})
	}
	return out, nil
}
