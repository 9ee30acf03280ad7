package auth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoToken          = errors.New("no token")
)

const CookieName = "token"

type Authenticator interface {
	IsAuthenticated() bool
}

// Require fails with ErrNotAuthenticated for a missing or rejected viewer.
func Require(a Authenticator) error {
	if a == nil || !a.IsAuthenticated() {
		return ErrNotAuthenticated
	}
	return nil
}

type Claims struct {
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Viewer is the outcome of checking one token.
type Viewer struct {
	Claims *Claims
	Err    error
}

func (v Viewer) IsAuthenticated() bool {
	return v.Err == nil && v.Claims != nil
}

type Verifier interface {
	Verify(ctx context.Context, token string) (*Claims, error)
}

type Config struct {
	Secret    string        // HS256 signing secret
	VerifyURL string        // endpoint answering 200 for a valid bearer
	Leeway    time.Duration // clock skew tolerated on expiry
	Anonymous bool          // every viewer counts as authenticated
}

// New returns a verifier for the configured mode, nil when anonymous.
func New(config *Config) Verifier {
	switch {
	case config.Anonymous:
		return nil
	case config.VerifyURL != "":
		return NewRemote(config.VerifyURL, nil)
	default:
		return NewToken(config.Secret, config.Leeway)
	}
}

// Authenticate checks the token against verifier. A nil verifier lets everyone in.
func Authenticate(ctx context.Context, verifier Verifier, token string) Viewer {
	if verifier == nil {
		return Viewer{Claims: &Claims{}}
	}

	if token == "" {
		return Viewer{Err: ErrNoToken}
	}

	claims, err := verifier.Verify(ctx, token)
	return Viewer{Claims: claims, Err: err}
}

// AuthenticateRequest reads the token from r and checks it.
func AuthenticateRequest(verifier Verifier, r *http.Request) Viewer {
	return Authenticate(r.Context(), verifier, ExtractToken(r))
}

// ExtractToken reads the bearer token, falling back to the token cookie.
func ExtractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if scheme, token, ok := strings.Cut(header, " "); ok && strings.EqualFold(scheme, "Bearer") {
		return strings.TrimSpace(token)
	}

	if cookie, err := r.Cookie(CookieName); err == nil {
		return cookie.Value
	}

	return ""
}

// TokenAuth verifies HS256 tokens locally. Without a secret the signature
// cannot be checked and only expiry is enforced.
type TokenAuth struct {
	logger zerolog.Logger
	secret []byte
	parser *jwt.Parser
}

func NewToken(secret string, leeway time.Duration) *TokenAuth {
	logger := log.With().Str("module", "auth").Logger()
	if secret == "" {
		logger.Warn().Msg("no token secret configured, signatures are not verified")
	}

	return &TokenAuth{
		logger: logger,
		secret: []byte(secret),
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithLeeway(leeway),
			jwt.WithExpirationRequired(),
		),
	}
}

func (a *TokenAuth) Verify(ctx context.Context, token string) (*Claims, error) {
	claims := &Claims{}

	if len(a.secret) == 0 {
		if _, _, err := a.parser.ParseUnverified(token, claims); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
		}

		exp, err := claims.GetExpirationTime()
		if err != nil || exp == nil || time.Now().After(exp.Time) {
			return nil, fmt.Errorf("%w: token expired", ErrNotAuthenticated)
		}
		return claims, nil
	}

	_, err := a.parser.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		return a.secret, nil
	})
	if err != nil {
		a.logger.Debug().Err(err).Msg("token rejected")
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	return claims, nil
}

// RemoteAuth asks the authentication backend whether a token is valid.
type RemoteAuth struct {
	logger zerolog.Logger
	url    string
	client *http.Client
}

func NewRemote(url string, client *http.Client) *RemoteAuth {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}

	return &RemoteAuth{
		logger: log.With().Str("module", "auth").Str("submodule", "remote").Logger(),
		url:    url,
		client: client,
	}
}

func (a *RemoteAuth) Verify(ctx context.Context, token string) (*Claims, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("unable to reach auth backend: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	switch resp.StatusCode {
	case http.StatusOK:
		return &Claims{}, nil
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrNotAuthenticated
	default:
		a.logger.Warn().Int("status", resp.StatusCode).Msg("unexpected auth backend response")
		return nil, fmt.Errorf("%w: auth backend answered %s", ErrNotAuthenticated, resp.Status)
	}
}
