// Package github wraps go-github for the github_* tools and work items.
// It authenticates with a personal access token or as a GitHub App installation.
package github

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog"

	"github.com/p-blackswan/buffr/internal/cache"
	perrors "github.com/p-blackswan/buffr/internal/errors"
	"github.com/p-blackswan/buffr/internal/retry"
)

const (
	defaultAPIBase = "https://api.github.com"
	// Tokens last one hour; refresh a little early.
	tokenTTL    = 55 * time.Minute
	tokenMargin = 5 * time.Minute
)

// AppAuth mints and caches installation tokens for a GitHub App.
type AppAuth struct {
	appID          int64
	installationID int64
	privateKey     *rsa.PrivateKey
	tokens         *cache.TTL[int64, string]
	httpClient     *http.Client
	apiBase        string
	retry          retry.Config
	onToken        func(active int)
	now            func() time.Time
	logger         zerolog.Logger
}

// NewAppAuth reads the PEM private key at keyPath.
func NewAppAuth(appID, installationID int64, keyPath string, logger zerolog.Logger) (*AppAuth, error) {
	keyData, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading private key: %w", err)
	}
	return NewAppAuthFromKeyBytes(appID, installationID, keyData, logger)
}

// NewAppAuthFromKeyBytes creates an AppAuth from PEM key bytes.
func NewAppAuthFromKeyBytes(appID, installationID int64, keyData []byte, logger zerolog.Logger) (*AppAuth, error) {
	key, err := jwt.ParseRSAPrivateKeyFromPEM(keyData)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}
	return &AppAuth{
		appID:          appID,
		installationID: installationID,
		privateKey:     key,
		tokens:         cache.New[int64, string](16, tokenTTL),
		httpClient:     &http.Client{Timeout: 30 * time.Second},
		apiBase:        defaultAPIBase,
		retry:          retry.DefaultConfig(),
		now:            time.Now,
		logger:         logger.With().Str("component", "github.app").Logger(),
	}, nil
}

// SetHTTPClient sets the client used for token exchange (for testing).
func (a *AppAuth) SetHTTPClient(c *http.Client) { a.httpClient = c }

// SetAPIBase points token exchange at another API root (for testing or GHES).
func (a *AppAuth) SetAPIBase(u string) { a.apiBase = strings.TrimRight(u, "/") }

// SetRetry overrides the token exchange retry policy.
func (a *AppAuth) SetRetry(cfg retry.Config) { a.retry = cfg }

// OnToken registers a callback receiving the number of cached tokens after each mint.
func (a *AppAuth) OnToken(fn func(active int)) { a.onToken = fn }

// generateJWT creates a JWT for GitHub App authentication.
func (a *AppAuth) generateJWT() (string, error) {
	now := a.now()
	claims := jwt.RegisteredClaims{
		IssuedAt:  jwt.NewNumericDate(now.Add(-60 * time.Second)),
		ExpiresAt: jwt.NewNumericDate(now.Add(10 * time.Minute)),
		Issuer:    strconv.FormatInt(a.appID, 10),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	signed, err := token.SignedString(a.privateKey)
	if err != nil {
		return "", fmt.Errorf("signing JWT: %w", err)
	}
	return signed, nil
}

type installationTokenResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Token returns a cached or freshly minted installation token.
func (a *AppAuth) Token(ctx context.Context) (string, error) {
	if tok, ok := a.tokens.Get(a.installationID); ok {
		return tok, nil
	}

	a.logger.Info().Int64("installation_id", a.installationID).Msg("minting installation token")
	var resp installationTokenResponse
	err := retry.Do(ctx, a.retry, func(ctx context.Context) error {
		var err error
		resp, err = a.exchange(ctx)
		return err
	})
	if err != nil {
		return "", err
	}

	ttl := tokenTTL
	if !resp.ExpiresAt.IsZero() {
		if until := resp.ExpiresAt.Sub(a.now()) - tokenMargin; until > 0 && until < ttl {
			ttl = until
		}
	}
	a.tokens.SetWithTTL(a.installationID, resp.Token, ttl)
	if a.onToken != nil {
		a.onToken(a.tokens.Len())
	}
	return resp.Token, nil
}

func (a *AppAuth) exchange(ctx context.Context) (installationTokenResponse, error) {
	var out installationTokenResponse
	jwtToken, err := a.generateJWT()
	if err != nil {
		return out, fmt.Errorf("generating JWT: %w", err)
	}

	url := fmt.Sprintf("%s/app/installations/%d/access_tokens", a.apiBase, a.installationID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, nil)
	if err != nil {
		return out, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+jwtToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return out, fmt.Errorf("requesting installation token: %w: %v", perrors.ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return out, perrors.NewAPIError("github", resp.StatusCode, "installation token: "+strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return out, fmt.Errorf("decoding token response: %w", err)
	}
	if out.Token == "" {
		return out, fmt.Errorf("installation token response has no token")
	}
	return out, nil
}

// tokenTransport authenticates each request with the current installation token.
type tokenTransport struct {
	app  *AppAuth
	base http.RoundTripper
}

func (t *tokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	tok, err := t.app.Token(req.Context())
	if err != nil {
		return nil, err
	}
	req2 := req.Clone(req.Context())
	req2.Header.Set("Authorization", "token "+tok)
	return t.base.RoundTrip(req2)
}
