package proof

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/privata-io/consent-service/domain"
)

// Kind selects which predicate a commitment proof attests to.
type Kind string

const (
	KindAge        = Kind("age")
	KindLocation   = Kind("location")
	KindCredential = Kind("credential")
	KindDataAccess = Kind("data-access")
)

// NonceLength is the exact hex length every proof nonce must have.
const NonceLength = 32

// FreshnessWindow bounds the age of general proofs; data-access proofs get
// the tighter DataAccessWindow.
const FreshnessWindow = 24 * time.Hour
const DataAccessWindow = time.Hour

// Proof is a commitment record: the hash commits to the inputs, the validity
// flag was computed from the plaintext relationship at generation time. This
// is a commitment-and-attestation scheme, not a zero-knowledge circuit; the
// verifier trusts the generator on the flag. Immutable once created.
type Proof struct {
	ID        uuid.UUID
	Kind      Kind
	Hash      string
	Valid     bool
	CreatedAt time.Time
	Nonce     string
}

// AccessDecision is the outcome of a data-access proof verification.
type AccessDecision struct {
	AccessGranted bool
	VerifiedAt    time.Time
}

// Verifier is what the verification pipeline consumes, so a circuit-backed
// implementation can replace Service without touching callers.
type Verifier interface {
	Verify(p *Proof) error
	VerifyDataAccessProof(p *Proof, userID, dataType, accessLevel string) (*AccessDecision, error)
}

// Service generates and checks commitment proofs. A proof id is consumed by
// its first verification attempt.
type Service struct {
	mu     sync.Mutex
	used   map[uuid.UUID]time.Time
	issued map[uuid.UUID]*Proof

	Now func() time.Time
}

func NewService() *Service {
	return &Service{
		used:   map[uuid.UUID]time.Time{},
		issued: map[uuid.UUID]*Proof{},
		Now:    time.Now,
	}
}

// Proof returns a previously generated proof by id.
func (s *Service) Proof(id uuid.UUID) (*Proof, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.issued[id]
	if !ok {
		return nil, domain.ProofInvalidf("unknown proof %s", id)
	}
	cp := *p
	return &cp, nil
}

// AccessHash is the deterministic commitment for a data-access triple. The
// verifier recomputes it and requires an exact match.
func AccessHash(userID, dataType, accessLevel string) string {
	return hashInputs(userID, dataType, accessLevel)
}

func hashInputs(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:])
}

func newNonce() (string, error) {
	buf := make([]byte, NonceLength/2)
	if _, err := rand.Read(buf); err != nil {
		return "", errors.Wrap(err, "nonce generation")
	}
	return hex.EncodeToString(buf), nil
}

func (s *Service) newProof(kind Kind, hash string, valid bool) (*Proof, error) {
	nonce, err := newNonce()
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "could not create proof")
	}
	p := &Proof{
		ID:        uuid.New(),
		Kind:      kind,
		Hash:      hash,
		Valid:     valid,
		CreatedAt: s.Now(),
		Nonce:     nonce,
	}
	s.mu.Lock()
	s.issued[p.ID] = p
	s.mu.Unlock()
	return p, nil
}

// GenerateAgeProof commits to the actual age and attests actualAge >=
// minimumAge.
func (s *Service) GenerateAgeProof(actualAge, minimumAge int) (*Proof, error) {
	if actualAge < 0 || minimumAge < 0 {
		return nil, domain.Validationf("ages must not be negative")
	}
	p, err := s.newProof(KindAge, hashInputs("age", strconv.Itoa(actualAge)), actualAge >= minimumAge)
	if err != nil {
		return nil, err
	}
	// the nonce salts the commitment so equal ages do not collide
	p.Hash = hashInputs(p.Hash, p.Nonce)
	return p, nil
}

// GenerateLocationProof attests that the actual region is one of the allowed
// regions.
func (s *Service) GenerateLocationProof(actualRegion string, allowedRegions []string) (*Proof, error) {
	if actualRegion == "" {
		return nil, domain.Validationf("a region is required")
	}
	valid := false
	for _, r := range allowedRegions {
		if r == actualRegion {
			valid = true
			break
		}
	}
	p, err := s.newProof(KindLocation, hashInputs("location", actualRegion), valid)
	if err != nil {
		return nil, err
	}
	p.Hash = hashInputs(p.Hash, p.Nonce)
	return p, nil
}

// GenerateCredentialSetProof attests that every required credential name is
// among the held ones.
func (s *Service) GenerateCredentialSetProof(held, required []string) (*Proof, error) {
	if len(required) == 0 {
		return nil, domain.Validationf("at least one required credential is needed")
	}
	have := map[string]bool{}
	for _, h := range held {
		have[h] = true
	}
	valid := true
	for _, r := range required {
		if !have[r] {
			valid = false
			break
		}
	}
	p, err := s.newProof(KindCredential, hashInputs(append([]string{"credential"}, held...)...), valid)
	if err != nil {
		return nil, err
	}
	p.Hash = hashInputs(p.Hash, p.Nonce)
	return p, nil
}

// GenerateDataAccessProof commits to a (user, data type, access level)
// triple; its hash is deliberately unsalted so the verifier can recompute it.
func (s *Service) GenerateDataAccessProof(userID, dataType, accessLevel string) (*Proof, error) {
	if userID == "" || dataType == "" || accessLevel == "" {
		return nil, domain.Validationf("userID, dataType and accessLevel are required")
	}
	return s.newProof(KindDataAccess, AccessHash(userID, dataType, accessLevel), true)
}

// Verify runs the generic checks: validity flag, freshness window by kind,
// nonce length, single use.
func (s *Service) Verify(p *Proof) error {
	if p == nil {
		return domain.ProofInvalidf("no proof supplied")
	}
	if len(p.Nonce) != NonceLength {
		return domain.ProofInvalidf("nonce has length %d, want %d", len(p.Nonce), NonceLength)
	}
	window := FreshnessWindow
	if p.Kind == KindDataAccess {
		window = DataAccessWindow
	}
	if s.Now().Sub(p.CreatedAt) >= window {
		return domain.ProofInvalidf("proof is older than %s", window)
	}
	if !p.Valid {
		return domain.ProofInvalidf("commitment does not satisfy the predicate")
	}
	return s.consume(p.ID)
}

// VerifyDataAccessProof recomputes the access hash and requires an exact
// match on top of the generic checks.
func (s *Service) VerifyDataAccessProof(p *Proof, userID, dataType, accessLevel string) (*AccessDecision, error) {
	decision := &AccessDecision{VerifiedAt: s.Now()}
	if p == nil {
		return decision, domain.ProofInvalidf("no proof supplied")
	}
	if p.Kind != KindDataAccess {
		return decision, domain.ProofInvalidf("proof kind %s cannot attest data access", p.Kind)
	}
	if p.Hash != AccessHash(userID, dataType, accessLevel) {
		return decision, domain.ProofInvalidf("commitment does not match the requested access")
	}
	if err := s.Verify(p); err != nil {
		return decision, err
	}
	decision.AccessGranted = true
	return decision, nil
}

// consume enforces at-most-one verification attempt per proof.
func (s *Service) consume(id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.used[id]; ok {
		return domain.ProofInvalidf("proof %s was already used", id)
	}
	s.used[id] = s.Now()
	return nil
}
