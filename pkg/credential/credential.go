package credential

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lestrrat-go/jwx/jwa"
	"github.com/lestrrat-go/jwx/jws"
	"github.com/pkg/errors"

	"github.com/privata-io/consent-service/domain"
)

const didPrefix = "did:privata:"
const keyBits = 2048

// DID is a decentralized identifier deterministically derived from its
// controlling address. Only the document hash is kept, for integrity checks.
type DID struct {
	ID           string
	Address      string
	DocumentHash string
	CreatedAt    time.Time
	Active       bool
}

// Credential is a signed claim set binding an issuer DID to a subject DID.
// Revocation is monotonic: once revoked, never un-revoked.
type Credential struct {
	ID        string
	Issuer    string
	Subject   string
	Claims    map[string]string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	Token     []byte
}

// Presentation wraps credentials plus a challenge nonce binding it to one
// verification attempt, signed by the holder.
type Presentation struct {
	ID            string
	Holder        string
	CredentialIDs []string
	Challenge     string
	CreatedAt     time.Time
	ExpiresAt     time.Time
	Token         []byte
}

type didRecord struct {
	did *DID
	key *rsa.PrivateKey
}

// Service issues, resolves and verifies DIDs, credentials and presentations.
// Every registered DID gets its own RSA keypair; signatures are RS256 JWS
// over the canonical JSON payload.
type Service struct {
	mu            sync.RWMutex
	dids          map[string]*didRecord
	byAddress     map[string]string
	creds         map[string]*Credential
	subjectCreds  map[string][]string
	presentations map[string]*Presentation

	Now func() time.Time
}

func NewService() *Service {
	return &Service{
		dids:          map[string]*didRecord{},
		byAddress:     map[string]string{},
		creds:         map[string]*Credential{},
		subjectCreds:  map[string][]string{},
		presentations: map[string]*Presentation{},
		Now:           time.Now,
	}
}

// Presentation returns a previously created presentation by id.
func (s *Service) Presentation(id string) (*Presentation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.presentations[id]
	if !ok {
		return nil, domain.CredentialInvalidf("unknown presentation %s", id)
	}
	cp := *p
	return &cp, nil
}

// DeriveDID derives the identifier for a controlling address.
func DeriveDID(address string) string {
	sum := sha256.Sum256([]byte(address))
	return didPrefix + hex.EncodeToString(sum[:])[:40]
}

// RegisterDID creates (or returns) the DID controlled by the address.
func (s *Service) RegisterDID(address string) (*DID, error) {
	if address == "" {
		return nil, domain.Validationf("a controlling address is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byAddress[address]; ok {
		cp := *s.dids[id].did
		return &cp, nil
	}

	key, err := rsa.GenerateKey(rand.Reader, keyBits)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "could not generate a DID keypair")
	}

	id := DeriveDID(address)
	now := s.Now()
	document, err := json.Marshal(map[string]interface{}{
		"id":      id,
		"address": address,
		"created": now.UTC(),
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "could not build the DID document")
	}
	docHash := sha256.Sum256(document)

	did := &DID{
		ID:           id,
		Address:      address,
		DocumentHash: hex.EncodeToString(docHash[:]),
		CreatedAt:    now,
		Active:       true,
	}
	s.dids[id] = &didRecord{did: did, key: key}
	s.byAddress[address] = id

	cp := *did
	return &cp, nil
}

// Resolve returns the DID record, or a credential-invalid failure when the
// identifier is unknown or deactivated.
func (s *Service) Resolve(id string) (*DID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.dids[id]
	if !ok || !rec.did.Active {
		return nil, domain.CredentialInvalidf("DID %s does not resolve", id)
	}
	cp := *rec.did
	return &cp, nil
}

func (s *Service) record(id string) (*didRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.dids[id]
	if !ok || !rec.did.Active {
		return nil, domain.CredentialInvalidf("DID %s does not resolve", id)
	}
	return rec, nil
}

type credentialPayload struct {
	ID        string            `json:"id"`
	Issuer    string            `json:"issuer"`
	Subject   string            `json:"subject"`
	Claims    map[string]string `json:"claims"`
	IssuedAt  int64             `json:"issuedAt"`
	ExpiresAt int64             `json:"expiresAt"`
}

// IssueCredential signs a claim set from issuer to subject, valid for ttl.
func (s *Service) IssueCredential(issuerDID, subjectDID string, claims map[string]string, ttl time.Duration) (*Credential, error) {
	if len(claims) == 0 {
		return nil, domain.Validationf("a credential requires at least one claim")
	}
	if ttl <= 0 {
		return nil, domain.Validationf("a credential requires a positive lifetime")
	}
	issuer, err := s.record(issuerDID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Resolve(subjectDID); err != nil {
		return nil, err
	}

	now := s.Now()
	cred := &Credential{
		ID:        uuid.New().String(),
		Issuer:    issuerDID,
		Subject:   subjectDID,
		Claims:    claims,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}
	payload, err := json.Marshal(credentialPayload{
		ID:        cred.ID,
		Issuer:    cred.Issuer,
		Subject:   cred.Subject,
		Claims:    cred.Claims,
		IssuedAt:  cred.IssuedAt.Unix(),
		ExpiresAt: cred.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "could not serialize the credential")
	}
	token, err := jws.Sign(payload, jwa.RS256, issuer.key)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, errors.Wrap(err, "jws sign"), "could not sign the credential")
	}
	cred.Token = token

	s.mu.Lock()
	s.creds[cred.ID] = cred
	s.subjectCreds[subjectDID] = append(s.subjectCreds[subjectDID], cred.ID)
	s.mu.Unlock()

	cp := *cred
	return &cp, nil
}

// RevokeCredential flags the credential; there is no way back.
func (s *Service) RevokeCredential(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cred, ok := s.creds[id]
	if !ok {
		return domain.CredentialInvalidf("unknown credential %s", id)
	}
	cred.Revoked = true
	return nil
}

// CredentialsOf lists the subject's credential set.
func (s *Service) CredentialsOf(subjectDID string) []*Credential {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*Credential
	for _, id := range s.subjectCreds[subjectDID] {
		cp := *s.creds[id]
		out = append(out, &cp)
	}
	return out
}

// VerifyCredential checks revocation, expiry, issuer and subject resolution
// and the issuer signature. Revocation is checked against the stored record,
// so a stale copy cannot resurrect a revoked credential.
func (s *Service) VerifyCredential(c *Credential) error {
	if c == nil {
		return domain.CredentialInvalidf("no credential supplied")
	}

	s.mu.RLock()
	stored, known := s.creds[c.ID]
	s.mu.RUnlock()
	if known && stored.Revoked {
		return domain.CredentialInvalidf("credential %s is revoked", c.ID)
	}
	if c.Revoked {
		return domain.CredentialInvalidf("credential %s is revoked", c.ID)
	}
	if s.Now().After(c.ExpiresAt) {
		return domain.CredentialInvalidf("credential %s expired at %s", c.ID, c.ExpiresAt)
	}
	issuer, err := s.record(c.Issuer)
	if err != nil {
		return domain.CredentialInvalidf("issuer DID %s does not resolve", c.Issuer)
	}
	if _, err := s.Resolve(c.Subject); err != nil {
		return domain.CredentialInvalidf("subject DID %s does not resolve", c.Subject)
	}

	payload, err := jws.Verify(c.Token, jwa.RS256, &issuer.key.PublicKey)
	if err != nil {
		return domain.CredentialInvalidf("credential signature does not verify")
	}
	var bound credentialPayload
	if err := json.Unmarshal(payload, &bound); err != nil {
		return domain.CredentialInvalidf("credential payload is malformed")
	}
	if bound.ID != c.ID || bound.Issuer != c.Issuer || bound.Subject != c.Subject {
		return domain.CredentialInvalidf("credential payload does not match the signed token")
	}
	return nil
}

type presentationPayload struct {
	ID            string   `json:"id"`
	Holder        string   `json:"holder"`
	CredentialIDs []string `json:"credentialIds"`
	Challenge     string   `json:"challenge"`
	CreatedAt     int64    `json:"createdAt"`
	ExpiresAt     int64    `json:"expiresAt"`
}

// CreatePresentation wraps the holder's credentials with a caller-supplied
// challenge nonce.
func (s *Service) CreatePresentation(holderDID string, credentialIDs []string, challenge string, ttl time.Duration) (*Presentation, error) {
	if challenge == "" {
		return nil, domain.Validationf("a presentation requires a challenge nonce")
	}
	if len(credentialIDs) == 0 {
		return nil, domain.Validationf("a presentation requires at least one credential")
	}
	if ttl <= 0 {
		return nil, domain.Validationf("a presentation requires a positive lifetime")
	}
	holder, err := s.record(holderDID)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	for _, id := range credentialIDs {
		if _, ok := s.creds[id]; !ok {
			s.mu.RUnlock()
			return nil, domain.CredentialInvalidf("unknown credential %s", id)
		}
	}
	s.mu.RUnlock()

	now := s.Now()
	pres := &Presentation{
		ID:            uuid.New().String(),
		Holder:        holderDID,
		CredentialIDs: credentialIDs,
		Challenge:     challenge,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}
	payload, err := json.Marshal(presentationPayload{
		ID:            pres.ID,
		Holder:        pres.Holder,
		CredentialIDs: pres.CredentialIDs,
		Challenge:     pres.Challenge,
		CreatedAt:     pres.CreatedAt.Unix(),
		ExpiresAt:     pres.ExpiresAt.Unix(),
	})
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "could not serialize the presentation")
	}
	token, err := jws.Sign(payload, jwa.RS256, holder.key)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, errors.Wrap(err, "jws sign"), "could not sign the presentation")
	}
	pres.Token = token

	s.mu.Lock()
	s.presentations[pres.ID] = pres
	s.mu.Unlock()

	cp := *pres
	return &cp, nil
}

// VerifyPresentation rejects on expiry, challenge mismatch, holder
// resolution failure, a bad holder signature, or any wrapped credential
// failing its own verification.
func (s *Service) VerifyPresentation(p *Presentation, challenge string) error {
	if p == nil {
		return domain.CredentialInvalidf("no presentation supplied")
	}
	if s.Now().After(p.ExpiresAt) {
		return domain.CredentialInvalidf("presentation %s expired at %s", p.ID, p.ExpiresAt)
	}
	if p.Challenge != challenge {
		return domain.CredentialInvalidf("challenge does not match the presentation")
	}
	holder, err := s.record(p.Holder)
	if err != nil {
		return domain.CredentialInvalidf("holder DID %s does not resolve", p.Holder)
	}

	payload, err := jws.Verify(p.Token, jwa.RS256, &holder.key.PublicKey)
	if err != nil {
		return domain.CredentialInvalidf("presentation signature does not verify")
	}
	var bound presentationPayload
	if err := json.Unmarshal(payload, &bound); err != nil {
		return domain.CredentialInvalidf("presentation payload is malformed")
	}
	if bound.ID != p.ID || bound.Challenge != p.Challenge {
		return domain.CredentialInvalidf("presentation payload does not match the signed token")
	}

	for _, id := range p.CredentialIDs {
		s.mu.RLock()
		stored, ok := s.creds[id]
		var cp Credential
		if ok {
			cp = *stored
		}
		s.mu.RUnlock()
		if !ok {
			return domain.CredentialInvalidf("unknown credential %s", id)
		}
		if err := s.VerifyCredential(&cp); err != nil {
			return err
		}
	}
	return nil
}
