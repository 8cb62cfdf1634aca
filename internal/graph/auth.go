package graph

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"
)

// Azure AD application registered as a public client (multi-tenant + personal).
const defaultClientID = "8efac532-bbe7-4bc5-919c-1443ccab860a"

var defaultScopes = []string{
	"offline_access",
	"Files.ReadWrite.All",
	"User.Read",
}

// DeviceAuth holds the device code response fields that the CLI displays to the user.
type DeviceAuth struct {
	UserCode        string
	VerificationURI string
}

// Login performs the device code OAuth2 flow, saves the token at tokenPath
// and returns a refreshing TokenSource.
//
// The returned TokenSource binds ctx to the underlying oauth2 token source.
// ctx must outlive the TokenSource; pass context.Background() for
// long-lived sessions.
func Login(
	ctx context.Context,
	tokenPath string,
	display func(DeviceAuth),
	logger *slog.Logger,
) (TokenSource, error) {
	return doLogin(ctx, tokenPath, oauthConfig(), display, logger)
}

// doLogin implements the device code flow. Accepts a pre-built oauth2.Config
// so tests can inject a mock endpoint.
func doLogin(
	ctx context.Context,
	tokenPath string,
	cfg *oauth2.Config,
	display func(DeviceAuth),
	logger *slog.Logger,
) (TokenSource, error) {
	logger.Info("starting device code auth flow",
		slog.String("path", tokenPath),
	)

	da, err := cfg.DeviceAuth(ctx)
	if err != nil {
		return nil, fmt.Errorf("graph: device auth request failed: %w", err)
	}

	display(DeviceAuth{
		UserCode:        da.UserCode,
		VerificationURI: da.VerificationURI,
	})

	tok, err := cfg.DeviceAccessToken(ctx, da)
	if err != nil {
		return nil, fmt.Errorf("graph: device code authorization failed: %w", err)
	}

	if saveErr := saveToken(tokenPath, tok); saveErr != nil {
		return nil, fmt.Errorf("graph: saving token: %w", saveErr)
	}

	logger.Info("login successful",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
	)

	return newPersistingSource(cfg.TokenSource(ctx, tok), tokenPath, tok, logger), nil
}

// TokenSourceFromPath loads a saved token and returns a TokenSource that
// refreshes it silently and writes each refreshed token back to tokenPath.
// Returns ErrNotLoggedIn if no token file exists at the path.
func TokenSourceFromPath(ctx context.Context, tokenPath string, logger *slog.Logger) (TokenSource, error) {
	return tokenSourceFromPath(ctx, tokenPath, oauthConfig(), logger)
}

func tokenSourceFromPath(
	ctx context.Context, tokenPath string, cfg *oauth2.Config, logger *slog.Logger,
) (TokenSource, error) {
	tok, err := loadToken(tokenPath)
	if err != nil {
		return nil, err
	}

	if tok == nil {
		return nil, ErrNotLoggedIn
	}

	logger.Info("loaded saved token",
		slog.String("path", tokenPath),
		slog.Time("expiry", tok.Expiry),
		slog.Bool("expired", !tok.Expiry.IsZero() && tok.Expiry.Before(time.Now())),
	)

	return newPersistingSource(cfg.TokenSource(ctx, tok), tokenPath, tok, logger), nil
}

// Logout removes the saved token file at the given path.
// Returns nil if the token file does not exist (already logged out).
func Logout(tokenPath string, logger *slog.Logger) error {
	err := os.Remove(tokenPath)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Info("logout: no token file to remove",
			slog.String("path", tokenPath),
		)

		return nil
	}

	if err != nil {
		return fmt.Errorf("graph: removing token file: %w", err)
	}

	logger.Info("logout: removed token file",
		slog.String("path", tokenPath),
	)

	return nil
}

func oauthConfig() *oauth2.Config {
	return &oauth2.Config{
		ClientID: defaultClientID,
		Scopes:   defaultScopes,
		Endpoint: microsoft.AzureADEndpoint("common"),
	}
}

// persistingSource adapts oauth2.TokenSource to graph.TokenSource and
// writes the token back to disk whenever the library refreshed it.
type persistingSource struct {
	src    oauth2.TokenSource
	path   string
	logger *slog.Logger

	mu   sync.Mutex
	last string // access token most recently persisted
}

func newPersistingSource(src oauth2.TokenSource, path string, tok *oauth2.Token, logger *slog.Logger) *persistingSource {
	return &persistingSource{
		src:    src,
		path:   path,
		logger: logger,
		last:   tok.AccessToken,
	}
}

func (p *persistingSource) Token() (string, error) {
	t, err := p.src.Token()
	if err != nil {
		p.logger.Warn("token acquisition failed", slog.String("error", err.Error()))
		return "", fmt.Errorf("graph: obtaining token: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if t.AccessToken != p.last {
		if saveErr := saveToken(p.path, t); saveErr != nil {
			// The in-memory token is still good; the next refresh retries the write.
			p.logger.Warn("failed to persist refreshed token",
				slog.String("path", p.path),
				slog.String("error", saveErr.Error()),
			)
		} else {
			p.last = t.AccessToken

			p.logger.Info("persisted refreshed token",
				slog.String("path", p.path),
				slog.Time("new_expiry", t.Expiry),
			)
		}
	}

	return t.AccessToken, nil
}
