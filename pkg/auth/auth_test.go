package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-signing-key-at-least-32-bytes-long")

func newTestVerifier(t *testing.T, issuer string) *Verifier {
	t.Helper()
	v, err := NewVerifier(VerifierConfig{Secret: testSecret, Issuer: issuer})
	require.NoError(t, err)
	return v
}

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestNewVerifier_ShortSecret(t *testing.T) {
	_, err := NewVerifier(VerifierConfig{Secret: []byte("short")})
	assert.Error(t, err)
}

func TestVerify(t *testing.T) {
	v := newTestVerifier(t, "")
	now := time.Now()

	tests := []struct {
		name    string
		token   string
		wantID  string
		wantErr error
	}{
		{
			name:   "userId claim",
			token:  sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"userId": "u1", "exp": now.Add(time.Hour).Unix()}),
			wantID: "u1",
		},
		{
			name:   "sub fallback",
			token:  sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"sub": "u2", "exp": now.Add(time.Hour).Unix()}),
			wantID: "u2",
		},
		{
			name:    "empty",
			token:   "",
			wantErr: ErrMissingToken,
		},
		{
			name:    "garbage",
			token:   "a.b.c",
			wantErr: ErrInvalidToken,
		},
		{
			name:    "expired",
			token:   sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"userId": "u1", "exp": now.Add(-time.Minute).Unix()}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "wrong key",
			token:   sign(t, jwt.SigningMethodHS256, []byte("another-secret-of-sufficient-len"), jwt.MapClaims{"userId": "u1"}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "no user id",
			token:   sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"name": "nobody"}),
			wantErr: ErrInvalidToken,
		},
		{
			name:    "none algorithm",
			token:   sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"userId": "u1"}),
			wantErr: ErrInvalidToken,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := v.Verify(tt.token)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, id)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, id.UserID)
		})
	}
}

func TestVerify_Issuer(t *testing.T) {
	v := newTestVerifier(t, "bantr")

	good := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"userId": "u1", "iss": "bantr"})
	_, err := v.Verify(good)
	assert.NoError(t, err)

	bad := sign(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"userId": "u1", "iss": "someone-else"})
	_, err = v.Verify(bad)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_RoundTrip(t *testing.T) {
	v := newTestVerifier(t, "bantr")
	s := &Signer{Secret: testSecret, Issuer: "bantr"}

	token, err := s.Sign("u9", "Nine", time.Hour)
	require.NoError(t, err)

	id, err := v.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "u9", id.UserID)
	assert.Equal(t, "Nine", id.Name)
}

func TestClaimsExtractor_NestedPath(t *testing.T) {
	e := &ClaimsExtractor{UserIDClaimPaths: []string{"user.id"}, EmailClaimPath: "user.email"}

	id, err := e.Extract(map[string]any{
		"user": map[string]any{"id": "u1", "email": "u1@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "u1@example.com", id.Email)

	_, err = e.Extract(map[string]any{"user": "flat"})
	assert.Error(t, err)
}

func TestTokenFromRequest(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/ws?token=query-token", nil)
	assert.Equal(t, "query-token", TokenFromRequest(r))

	r.Header.Set("Authorization", "Bearer header-token")
	assert.Equal(t, "header-token", TokenFromRequest(r), "header wins")

	r = httptest.NewRequest(http.MethodGet, "/ws", nil)
	r.Header.Set("Authorization", "Basic abc")
	assert.Empty(t, TokenFromRequest(r))
}

func TestMiddleware(t *testing.T) {
	v := newTestVerifier(t, "")
	token, err := (&Signer{Secret: testSecret}).Sign("u1", "", time.Hour)
	require.NoError(t, err)

	var seen *Identity
	h := Middleware(v, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = IdentityFrom(r.Context())
		assert.Equal(t, token, GetToken(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	assert.Equal(t, "u1", seen.UserID)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
}

func TestContext_Empty(t *testing.T) {
	assert.Nil(t, IdentityFrom(context.Background()))
	assert.Empty(t, GetToken(context.Background()))
}

// FuzzVerify checks that token parsing never panics.
func FuzzVerify(f *testing.F) {
	f.Add("")
	f.Add(".")
	f.Add("..")
	f.Add("a.b.c")
	f.Add("eyJhbGciOiJIUzI1NiJ9.eyJzdWIiOiJ0ZXN0In0.signature")

	v, err := NewVerifier(VerifierConfig{Secret: testSecret})
	if err != nil {
		f.Fatal(err)
	}
	f.Fuzz(func(_ *testing.T, token string) {
		_, _ = v.Verify(token)
	})
}
