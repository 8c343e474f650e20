package testutil

import (
	"testing"
	"time"

	"github.com/auth0/go-jwt-middleware/v2/validator"
	"github.com/gin-gonic/gin"
	"github.com/kendall-kelly/csa-share-api/config"
	"github.com/kendall-kelly/csa-share-api/middleware"
	"github.com/stretchr/testify/require"
	jose "gopkg.in/go-jose/go-jose.v2"
	"gopkg.in/go-jose/go-jose.v2/jwt"
)

const (
	TestJWTSecret = "test-secret-with-enough-entropy-1234"
	TestIssuer    = "csa-share-api"
	TestAudience  = "csa-share-api"
)

// TestConfig returns a configuration that verifies HS256 tokens signed by SignToken
func TestConfig(databaseURL string) *config.Config {
	return &config.Config{
		DatabaseURL:        databaseURL,
		Port:               "8080",
		GoEnv:              "test",
		JWTSecret:          TestJWTSecret,
		JWTIssuer:          TestIssuer,
		JWTAudience:        TestAudience,
		KafkaTopic:         "csa.notifications",
		AWSRegion:          "us-east-1",
		FarmTimezone:       "UTC",
		WorkerPollInterval: 10 * time.Millisecond,
		LogLevel:           "debug",
	}
}

// SignToken issues an HS256 access token for subject valid for one hour.
// An empty role omits the role claim.
func SignToken(t *testing.T, subject, role string) string {
	t.Helper()
	signer, err := jose.NewSigner(
		jose.SigningKey{Algorithm: jose.HS256, Key: []byte(TestJWTSecret)},
		(&jose.SignerOptions{}).WithType("JWT"),
	)
	require.NoError(t, err)

	builder := jwt.Signed(signer).Claims(jwt.Claims{
		Issuer:   TestIssuer,
		Subject:  subject,
		Audience: jwt.Audience{TestAudience},
		IssuedAt: jwt.NewNumericDate(time.Now()),
		Expiry:   jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	if role != "" {
		builder = builder.Claims(map[string]interface{}{"role": role})
	}

	token, err := builder.CompactSerialize()
	require.NoError(t, err)
	return token
}

// MockValidatedClaims creates a mock ValidatedClaims for testing
func MockValidatedClaims(subject, role string, scopes ...string) *validator.ValidatedClaims {
	scope := ""
	for i, s := range scopes {
		if i > 0 {
			scope += " "
		}
		scope += s
	}

	return &validator.ValidatedClaims{
		RegisteredClaims: validator.RegisteredClaims{
			Issuer:  TestIssuer,
			Subject: subject,
		},
		CustomClaims: &middleware.CustomClaims{
			Scope: scope,
			Role:  role,
		},
	}
}

// MockAuthMiddleware stores claims the way EnsureValidToken does
func MockAuthMiddleware(subject, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", subject)
		c.Set("validated_claims", MockValidatedClaims(subject, role))
		c.Next()
	}
}
