package commands

import (
	"errors"
	"fmt"
	"time"

	"github.com/wolfeidau/orgd/cmd/cli/internal/credentials"
	"github.com/wolfeidau/orgd/internal/client"
)

type Globals struct {
	Debug          bool
	Version        string
	ServerURL      string
	Timeout        time.Duration
	CredentialsDir string
}

func (g *Globals) clientConfig(serverURL string) client.Config {
	cfg := client.DefaultConfig()
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	if g.Timeout > 0 {
		cfg.Timeout = g.Timeout
	}
	cfg.Debug = g.Debug
	return cfg
}

// newClient returns an unauthenticated client for the configured server.
func (g *Globals) newClient() *client.Client {
	return client.New(g.clientConfig(g.ServerURL))
}

// sessionClient resolves a stored session and returns a client carrying its token.
// The session's server wins over --server so a token is never sent elsewhere.
func (g *Globals) sessionClient(name string) (*client.Client, *credentials.Session, *credentials.Store, error) {
	store, err := credentials.NewStore(g.CredentialsDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to initialize credential store: %w", err)
	}

	session, err := store.Resolve(name, time.Now())
	if err != nil {
		switch {
		case errors.Is(err, credentials.ErrNoDefaultSession):
			return nil, nil, nil, fmt.Errorf("not logged in\n\nRun 'orgd-cli login --email <email>' first")
		case errors.Is(err, credentials.ErrSessionNotFound):
			return nil, nil, nil, fmt.Errorf("session %q not found\n\nRun 'orgd-cli sessions list' to see available sessions", name)
		}
		return nil, nil, nil, err
	}

	c := client.New(g.clientConfig(session.ServerURL), client.WithToken(session.AccessToken))
	return c, session, store, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}
