package verification

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/privata-io/consent-service/domain"
	"github.com/privata-io/consent-service/pkg/audit"
	"github.com/privata-io/consent-service/pkg/credential"
	"github.com/privata-io/consent-service/pkg/identity"
	"github.com/privata-io/consent-service/pkg/logger"
	"github.com/privata-io/consent-service/pkg/proof"
	"github.com/privata-io/consent-service/pkg/storage"
)

// Gate names the independent checks a pipeline is composed of.
type Gate string

const (
	GateIdentity   = Gate("identity")
	GateProof      = Gate("proof")
	GateCredential = Gate("credential")
	GateStorage    = Gate("storage")
)

// DefaultGateTimeout bounds every external lookup a gate makes.
const DefaultGateTimeout = 5 * time.Second

// IdentityClaim is what a caller asserts about itself: a name and the address
// it claims controls that name.
type IdentityClaim struct {
	Name    string
	Address string
}

// AccessContext supplies the expected parameters for a data-access proof.
type AccessContext struct {
	UserID      string
	DataType    string
	AccessLevel string
}

// Request bundles the optional factors for one multi-factor run. Identity is
// the only mandatory factor.
type Request struct {
	Identity       IdentityClaim
	Proof          *proof.Proof
	Access         *AccessContext
	Presentation   *credential.Presentation
	Challenge      string
	ContentAddress string
}

// CheckOutcome records one sub-check of a composite run.
type CheckOutcome struct {
	Gate   Gate
	Passed bool
	Kind   domain.Kind
	Reason string
}

// Result is the composite verification outcome consumed by the ledger.
type Result struct {
	ID         uuid.UUID
	Passed     bool
	FailedGate Gate
	Kind       domain.Kind
	Reason     string
	Checks     []CheckOutcome
	Profile    *identity.Profile
	Decision   *proof.AccessDecision
	VerifiedAt time.Time
}

// Err converts a failed result back into the typed error of its first failing
// gate.
func (r *Result) Err() error {
	if r.Passed {
		return nil
	}
	return &domain.Error{Kind: r.Kind, Msg: fmt.Sprintf("%s gate: %s", r.FailedGate, r.Reason)}
}

// Pipeline composes the identity, proof, credential and storage gates into
// ordered, short-circuiting checks. Every invocation writes one audit record,
// pass or fail.
type Pipeline struct {
	Resolver    identity.Resolver
	Proofs      proof.Verifier
	Credentials *credential.Service
	Blobs       storage.BlobStore
	Audit       audit.Recorder
	GateTimeout time.Duration

	Now func() time.Time
}

func NewPipeline(resolver identity.Resolver, proofs proof.Verifier, credentials *credential.Service, blobs storage.BlobStore, trail audit.Recorder) *Pipeline {
	return &Pipeline{
		Resolver:    resolver,
		Proofs:      proofs,
		Credentials: credentials,
		Blobs:       blobs,
		Audit:       trail,
		GateTimeout: DefaultGateTimeout,
		Now:         time.Now,
	}
}

// RunMultiFactor executes the composite gate: identity first, then proof,
// credential and storage for whichever factors the request supplies. The
// first failure short-circuits; every sub-check that ran is recorded on the
// result.
func (p *Pipeline) RunMultiFactor(ctx context.Context, req Request) *Result {
	result := &Result{
		ID:         uuid.New(),
		Passed:     true,
		VerifiedAt: p.Now(),
	}

	p.runGate(ctx, result, GateIdentity, func(ctx context.Context) error {
		profile, err := p.checkIdentity(ctx, req.Identity)
		if err != nil {
			return err
		}
		result.Profile = profile
		return nil
	})

	if result.Passed && req.Proof != nil {
		p.runGate(ctx, result, GateProof, func(ctx context.Context) error {
			decision, err := p.checkProof(ctx, req.Proof, req.Access)
			if err != nil {
				return err
			}
			result.Decision = decision
			return nil
		})
	}

	if result.Passed && req.Presentation != nil {
		p.runGate(ctx, result, GateCredential, func(ctx context.Context) error {
			return p.checkCredential(ctx, req.Presentation, req.Challenge)
		})
	}

	if result.Passed && req.ContentAddress != "" {
		p.runGate(ctx, result, GateStorage, func(ctx context.Context) error {
			return p.checkStorage(ctx, req.ContentAddress)
		})
	}

	p.record(req, result)
	return result
}

// runGate executes one gate under the configured timeout and folds its
// outcome into the result.
func (p *Pipeline) runGate(ctx context.Context, result *Result, gate Gate, check func(context.Context) error) {
	timeout := p.GateTimeout
	if timeout <= 0 {
		timeout = DefaultGateTimeout
	}
	gateCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err := check(gateCtx)
	if err != nil && gateCtx.Err() == context.DeadlineExceeded {
		err = domain.Transientf("%s gate timed out after %s", gate, timeout)
	}

	outcome := CheckOutcome{Gate: gate, Passed: err == nil}
	if err != nil {
		outcome.Kind = domain.KindOf(err)
		outcome.Reason = err.Error()
		result.Passed = false
		result.FailedGate = gate
		result.Kind = outcome.Kind
		result.Reason = errMessage(err)
	}
	result.Checks = append(result.Checks, outcome)
}

func (p *Pipeline) checkIdentity(ctx context.Context, claim IdentityClaim) (*identity.Profile, error) {
	if claim.Name == "" || claim.Address == "" {
		return nil, domain.Validationf("an identity claim requires a name and an address")
	}
	owner, err := p.Resolver.ResolveOwner(ctx, claim.Name)
	if err != nil {
		return nil, err
	}
	if owner != claim.Address {
		return nil, domain.IdentityNotOwnedf("address %s does not control name %q", claim.Address, claim.Name)
	}
	return p.Resolver.LookupProfile(ctx, claim.Name)
}

// checkProof dispatches on the declared proof kind. Data-access proofs need
// the expected access parameters; everything else runs the generic checks.
func (p *Pipeline) checkProof(ctx context.Context, pr *proof.Proof, access *AccessContext) (*proof.AccessDecision, error) {
	if pr.Kind == proof.KindDataAccess {
		if access == nil {
			return nil, domain.ProofInvalidf("a data-access proof requires the expected access parameters")
		}
		return p.Proofs.VerifyDataAccessProof(pr, access.UserID, access.DataType, access.AccessLevel)
	}
	if err := p.Proofs.Verify(pr); err != nil {
		return nil, err
	}
	return nil, nil
}

func (p *Pipeline) checkCredential(ctx context.Context, pres *credential.Presentation, challenge string) error {
	if challenge == "" {
		return domain.CredentialInvalidf("a challenge nonce is required")
	}
	return p.Credentials.VerifyPresentation(pres, challenge)
}

func (p *Pipeline) checkStorage(ctx context.Context, address string) error {
	ok, err := p.Blobs.Exists(ctx, address)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ContentNotFoundf("no content at address %s", address)
	}
	return nil
}

func (p *Pipeline) record(req Request, result *Result) {
	gates := make([]string, 0, len(result.Checks))
	for _, c := range result.Checks {
		gates = append(gates, string(c.Gate))
	}
	rec := audit.Record{
		Actor:    req.Identity.Name,
		Action:   "verification.multi-factor",
		Resource: result.ID.String(),
		Outcome:  audit.OutcomeOK,
		Detail:   "gates=" + strings.Join(gates, ","),
		At:       result.VerifiedAt,
	}
	if !result.Passed {
		rec.Outcome = string(result.Kind)
		rec.Detail = fmt.Sprintf("gate=%s reason=%s", result.FailedGate, result.Reason)
	}
	audit.Write(p.Audit, rec)
	logger.Logger().WithField("passed", result.Passed).Debugf("[VerificationPipeline] run %s", result.ID)
}

func errMessage(err error) string {
	if e, ok := err.(*domain.Error); ok {
		return e.Msg
	}
	return err.Error()
}
