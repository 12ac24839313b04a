package token

import (
	"fmt"
	"regexp"

	"github.com/bft-labs/mapkit/internal/domain"
)

// tokenPattern matches provider tokens: a scope prefix (public, secret or
// temporary) followed by two base64url segments.
var tokenPattern = regexp.MustCompile(`^(pk|sk|tk)\.[A-Za-z0-9_-]+\.[A-Za-z0-9_-]+$`)

// ValidateFormat performs the syntactic token check.
func ValidateFormat(token string) error {
	if token == "" {
		return fmt.Errorf("%w: empty", domain.ErrTokenFormat)
	}
	if !tokenPattern.MatchString(token) {
		return fmt.Errorf("%w: expected <pk|sk|tk>.<payload>.<signature>", domain.ErrTokenFormat)
	}
	return nil
}

// Mask returns a loggable form of a token.
func Mask(token string) string {
	if len(token) <= 8 {
		return "*****"
	}
	return token[:5] + "*****"
}
