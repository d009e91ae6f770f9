package auth

import (
	"context"
	"crypto/sha256"
	"fmt"
	"math/big"
	"strings"
	"unicode/utf8"
)

const stubEmailPrefixBytes = 20

// ProviderIdentity is what an external identity provider vouches for.
type ProviderIdentity struct {
	Email    string
	Username string
}

type ProviderVerifier interface {
	Verify(ctx context.Context, providerToken string) (ProviderIdentity, error)
}

// StubVerifier accepts any token and derives a stable pseudo-identity from
// it. It performs no verification and must stay disabled in production.
type StubVerifier struct{}

func (StubVerifier) Verify(_ context.Context, providerToken string) (ProviderIdentity, error) {
	providerToken = strings.TrimSpace(providerToken)
	if providerToken == "" {
		return ProviderIdentity{}, fmt.Errorf("%w: id_token is required", ErrInvalidInput)
	}
	prefix := truncateRunes(providerToken, stubEmailPrefixBytes)
	digest := sha256.Sum256([]byte(providerToken))
	suffix := new(big.Int).Mod(new(big.Int).SetBytes(digest[:]), big.NewInt(10000))
	return ProviderIdentity{
		Email:    fmt.Sprintf("google_%s@example.com", prefix),
		Username: fmt.Sprintf("google_user_%s", suffix.String()),
	}, nil
}

// truncateRunes cuts value to at most limit bytes without splitting a rune.
func truncateRunes(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	end := 0
	for end < len(value) {
		_, size := utf8.DecodeRuneInString(value[end:])
		if end+size > limit {
			break
		}
		end += size
	}
	return value[:end]
}
