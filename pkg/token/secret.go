package token

import (
	"fmt"

	"github.com/awnumar/memguard"

	"github.com/bft-labs/mapkit/internal/domain"
)

// Secret holds an accepted token encrypted in memory. The plaintext only
// exists for the duration of a Reveal call's caller.
type Secret struct {
	enclave *memguard.Enclave
	masked  string
}

// NewSecret seals token into a memguard enclave.
func NewSecret(token string) (*Secret, error) {
	if token == "" {
		return nil, domain.ErrNoToken
	}
	masked := Mask(token)
	enclave := memguard.NewEnclave([]byte(token))
	if enclave == nil {
		return nil, fmt.Errorf("%w: seal token", domain.ErrNoToken)
	}
	return &Secret{enclave: enclave, masked: masked}, nil
}

// Reveal decrypts the token.
func (s *Secret) Reveal() (string, error) {
	if s == nil || s.enclave == nil {
		return "", domain.ErrNoToken
	}
	buf, err := s.enclave.Open()
	if err != nil {
		return "", fmt.Errorf("open token enclave: %w", err)
	}
	defer buf.Destroy()
	return string(buf.Bytes()), nil
}

// String returns the masked token so a Secret is safe to log.
func (s *Secret) String() string {
	if s == nil {
		return ""
	}
	return s.masked
}
