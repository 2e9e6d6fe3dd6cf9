package storage

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/hkdf"

	"github.com/privata-io/consent-service/domain"
)

const algorithmName = "AES-256-GCM"
const metadataSchemaVersion = 1

// Metadata is stored as its own blob next to the ciphertext.
type Metadata struct {
	Algorithm     string    `json:"algorithm"`
	IV            string    `json:"iv"`
	Category      string    `json:"category"`
	CreatedAt     time.Time `json:"createdAt"`
	SchemaVersion int       `json:"schemaVersion"`
}

// StoredContent holds the two content addresses a caller needs for later
// retrieval.
type StoredContent struct {
	DataAddress     string
	MetadataAddress string
}

// ContentStore encrypts payloads before they leave the system and decrypts on
// authorized retrieval. Keys are derived, never persisted: a caller must
// re-derive the key from (owner, category, server secret) to read anything
// back.
type ContentStore struct {
	blobs  BlobStore
	secret []byte

	Now func() time.Time
}

func NewContentStore(blobs BlobStore, secret []byte) *ContentStore {
	return &ContentStore{
		blobs:  blobs,
		secret: secret,
		Now:    time.Now,
	}
}

// DeriveKey produces the deterministic 32-byte key for an owner and category.
func (s *ContentStore) DeriveKey(owner, category string) ([]byte, error) {
	r := hkdf.New(sha256.New, s.secret, nil, []byte(owner+"|"+category))
	key := make([]byte, 32)
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, domain.Wrap(domain.KindInternal, errors.Wrap(err, "hkdf"), "could not derive a content key")
	}
	return key, nil
}

// Store encrypts the payload under the derived key and writes ciphertext and
// metadata as two content-addressed blobs.
func (s *ContentStore) Store(ctx context.Context, payload []byte, owner, category string) (*StoredContent, error) {
	if len(payload) == 0 {
		return nil, domain.Validationf("cannot store an empty payload")
	}
	if owner == "" || category == "" {
		return nil, domain.Validationf("owner and category are required")
	}

	key, err := s.DeriveKey(owner, category)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "could not generate an IV")
	}
	ciphertext := gcm.Seal(nil, iv, payload, nil)

	dataAddress, err := s.blobs.Put(ctx, ciphertext)
	if err != nil {
		return nil, err
	}

	meta := Metadata{
		Algorithm:     algorithmName,
		IV:            hex.EncodeToString(iv),
		Category:      category,
		CreatedAt:     s.Now(),
		SchemaVersion: metadataSchemaVersion,
	}
	metaBytes, err := json.Marshal(meta)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "could not serialize metadata")
	}
	metadataAddress, err := s.blobs.Put(ctx, metaBytes)
	if err != nil {
		return nil, err
	}

	return &StoredContent{
		DataAddress:     dataAddress,
		MetadataAddress: metadataAddress,
	}, nil
}

// Retrieve fetches both blobs and decrypts with the re-derived key. A wrong
// key or tampered ciphertext fails the authentication tag and surfaces as
// DecryptionFailed.
func (s *ContentStore) Retrieve(ctx context.Context, dataAddress, metadataAddress, owner, category string) ([]byte, *Metadata, error) {
	ciphertext, err := s.blobs.Get(ctx, dataAddress)
	if err != nil {
		return nil, nil, err
	}
	metaBytes, err := s.blobs.Get(ctx, metadataAddress)
	if err != nil {
		return nil, nil, err
	}

	var meta Metadata
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return nil, nil, domain.Wrap(domain.KindInternal, err, "metadata blob is malformed")
	}
	if meta.Algorithm != algorithmName {
		return nil, nil, domain.DecryptionFailedf("unsupported algorithm %q", meta.Algorithm)
	}
	iv, err := hex.DecodeString(meta.IV)
	if err != nil {
		return nil, nil, domain.DecryptionFailedf("metadata IV is malformed")
	}

	key, err := s.DeriveKey(owner, category)
	if err != nil {
		return nil, nil, err
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	payload, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, nil, domain.DecryptionFailedf("authentication failed, wrong key or corrupted content")
	}
	return payload, &meta, nil
}

// Pin marks an address for retention; Unpin releases it.
func (s *ContentStore) Pin(ctx context.Context, address string) error {
	return s.blobs.Pin(ctx, address)
}

func (s *ContentStore) Unpin(ctx context.Context, address string) error {
	return s.blobs.Unpin(ctx, address)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "could not initialize the cipher")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, domain.Wrap(domain.KindInternal, err, "could not initialize GCM")
	}
	return gcm, nil
}
