package admin

import (
	"errors"
	"net/http"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// DefaultClockSkew is the leeway applied to exp and nbf claims
const DefaultClockSkew = 30 * time.Second

// AuthConfig configures bearer token checks on the mutating admin routes.
// With no secret every guarded request is rejected.
type AuthConfig struct {
	Secret    string
	Issuer    string
	ClockSkew time.Duration
}

// Authenticator validates HMAC signed bearer tokens
type Authenticator struct {
	secret []byte
	issuer string
	skew   time.Duration
	logger *zap.Logger
}

// NewAuthenticator creates an authenticator
func NewAuthenticator(cfg AuthConfig, logger *zap.Logger) *Authenticator {
	skew := cfg.ClockSkew
	if skew <= 0 {
		skew = DefaultClockSkew
	}
	return &Authenticator{
		secret: []byte(strings.TrimSpace(cfg.Secret)),
		issuer: cfg.Issuer,
		skew:   skew,
		logger: logger,
	}
}

// Middleware rejects requests without a valid bearer token
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractBearer(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}
		if err := a.verify(token); err != nil {
			a.logger.Warn("Rejected admin request",
				zap.String("path", r.URL.Path),
				zap.String("remote", r.RemoteAddr),
				zap.Error(err))
			writeError(w, http.StatusUnauthorized, errors.New("invalid token"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a *Authenticator) verify(tokenString string) error {
	if len(a.secret) == 0 {
		return errors.New("admin secret not configured")
	}

	opts := []jwt.ParserOption{
		jwt.WithLeeway(a.skew),
		jwt.WithExpirationRequired(),
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
	}
	if a.issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.issuer))
	}

	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.New("unexpected signing method")
		}
		return a.secret, nil
	}, opts...)
	if err != nil {
		return err
	}
	if !token.Valid {
		return errors.New("token invalid")
	}
	return nil
}

func extractBearer(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
