package auth

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 16

// Authentication failures surfaced to clients. Details stay in the wrapped
// error for logs.
var (
	ErrMissingToken = errors.New("authentication token required")
	ErrInvalidToken = errors.New("authentication failed")
)

// VerifierConfig configures a Verifier.
type VerifierConfig struct {
	// Secret is the HMAC key used to verify signatures.
	Secret []byte

	// Issuer, when set, must match the iss claim.
	Issuer string

	// Extractor maps claims to an Identity. Default: DefaultClaimsExtractor.
	Extractor *ClaimsExtractor
}

// Verifier validates HS256-family access tokens.
type Verifier struct {
	cfg VerifierConfig
}

// NewVerifier creates a Verifier.
func NewVerifier(cfg VerifierConfig) (*Verifier, error) {
	if len(cfg.Secret) < MinSecretLength {
		return nil, fmt.Errorf("access secret must be at least %d bytes", MinSecretLength)
	}
	if cfg.Extractor == nil {
		cfg.Extractor = DefaultClaimsExtractor()
	}
	return &Verifier{cfg: cfg}, nil
}

// Verify parses and validates token and returns the caller's identity.
// Every failure wraps ErrMissingToken or ErrInvalidToken.
func (v *Verifier) Verify(token string) (*Identity, error) {
	if token == "" {
		return nil, ErrMissingToken
	}

	claims, err := v.parseAndValidateToken(token)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	id, err := v.cfg.Extractor.Extract(claims)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}
	return id, nil
}

func (v *Verifier) parseAndValidateToken(tokenString string) (map[string]any, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.cfg.Secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("parsing token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, fmt.Errorf("invalid claims type")
	}

	if v.cfg.Issuer != "" {
		iss, _ := claims["iss"].(string)
		if iss != v.cfg.Issuer {
			return nil, fmt.Errorf("invalid issuer: got %q, want %q", iss, v.cfg.Issuer)
		}
	}

	out := make(map[string]any, len(claims))
	maps.Copy(out, claims)
	return out, nil
}

// Signer issues tokens the Verifier accepts. It backs the -mint-token flag
// and tests.
type Signer struct {
	Secret []byte
	Issuer string
	Now    func() time.Time
}

// Sign returns a token for userID that expires after ttl.
func (s *Signer) Sign(userID, name string, ttl time.Duration) (string, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}

	claims := jwt.MapClaims{
		"userId": userID,
		"sub":    userID,
		"iat":    now.Unix(),
		"exp":    now.Add(ttl).Unix(),
	}
	if name != "" {
		claims["name"] = name
	}
	if s.Issuer != "" {
		claims["iss"] = s.Issuer
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.Secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return signed, nil
}
