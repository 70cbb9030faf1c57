package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/nacl/secretbox"

	"github.com/outlivion/portal/core"
)

var (
	ErrSealedTooShort = errors.New("sealed value too short")
	ErrUnsealFailed   = errors.New("sealed value could not be opened")
)

const (
	MinSecretLength = 32
	nonceSize       = 24
	keySize         = 32
)

// KeyParams are the argon2id parameters used to derive the sealing key.
type KeyParams struct {
	Memory      uint32
	Iterations  uint32
	Parallelism uint8
	Salt        []byte
}

// DefaultKeyParams derives a key once per process, so the cost is paid at
// startup rather than on every store read.
var DefaultKeyParams = KeyParams{
	Memory:      64 * 1024,
	Iterations:  3,
	Parallelism: 2,
	Salt:        []byte("outlivion-portal/credential-store/v1"),
}

// SecretBox seals credential values with NaCl secretbox. The sealed form is
// nonce || box.
type SecretBox struct {
	key  [keySize]byte
	rand io.Reader
}

var _ core.Sealer = (*SecretBox)(nil)

func NewSealer(secret string) (*SecretBox, error) {
	return NewSealerWithParams(secret, DefaultKeyParams)
}

func NewSealerWithParams(secret string, params KeyParams) (*SecretBox, error) {
	if secret == "" {
		return nil, core.ErrSecretRequired
	}
	if len(secret) < MinSecretLength {
		return nil, fmt.Errorf("%w - minimum of %d characters", core.ErrSecretTooShort, MinSecretLength)
	}

	derived := argon2.IDKey([]byte(secret), params.Salt, params.Iterations, params.Memory, params.Parallelism, keySize)

	box := &SecretBox{rand: rand.Reader}
	copy(box.key[:], derived)
	return box, nil
}

func (s *SecretBox) Seal(plaintext []byte) ([]byte, error) {
	var nonce [nonceSize]byte
	if _, err := io.ReadFull(s.rand, nonce[:]); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plaintext, &nonce, &s.key), nil
}

func (s *SecretBox) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceSize+secretbox.Overhead {
		return nil, ErrSealedTooShort
	}

	var nonce [nonceSize]byte
	copy(nonce[:], sealed[:nonceSize])

	plaintext, ok := secretbox.Open(nil, sealed[nonceSize:], &nonce, &s.key)
	if !ok {
		return nil, ErrUnsealFailed
	}
	return plaintext, nil
}
