package commands

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgd/cmd/cli/internal/credentials"
)

// LoginCmd exchanges admin credentials for a token and stores it as a session.
type LoginCmd struct {
	Email    string `help:"Admin email" required:""`
	Password string `help:"Admin password" required:"" env:"ORGD_PASSWORD"`
	Session  string `help:"Name to store the session under" default:"default"`
}

func (c *LoginCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(globals.CredentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	cfg := globals.clientConfig(globals.ServerURL)

	resp, err := globals.newClient().Login(ctx, c.Email, c.Password)
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	expiresAt := time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second).UTC()
	if info, err := credentials.InspectToken(resp.AccessToken); err == nil {
		expiresAt = info.ExpiresAt.UTC()
	} else {
		log.Debug().Err(err).Msg("Could not read token expiry, using expires_in")
	}

	session := credentials.Session{
		Name:             c.Session,
		ServerURL:        cfg.ServerURL,
		Email:            resp.Email,
		OrganizationName: resp.OrganizationName,
		AdminID:          resp.AdminID.String(),
		AccessToken:      resp.AccessToken,
		ExpiresAt:        expiresAt,
	}
	if err := store.Save(session); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	if err := store.SetDefault(session.Name); err != nil {
		return fmt.Errorf("failed to set default session: %w", err)
	}

	fmt.Printf("Logged in as %s (%s)\n", resp.Email, resp.OrganizationName)
	fmt.Printf("Session %q expires %s\n", session.Name, formatTime(expiresAt))
	return nil
}

// SessionsCmd manages stored sessions.
type SessionsCmd struct {
	List   SessionsListCmd   `cmd:"" help:"List stored sessions"`
	Show   SessionsShowCmd   `cmd:"" help:"Show a session and its token claims"`
	Use    SessionsUseCmd    `cmd:"" help:"Set the default session"`
	Logout SessionsLogoutCmd `cmd:"" help:"Forget a stored session"`
}

// SessionsListCmd lists stored sessions.
type SessionsListCmd struct{}

func (c *SessionsListCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(globals.CredentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	sessions, err := store.List()
	if err != nil {
		return fmt.Errorf("failed to list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Println("No sessions found.")
		fmt.Println()
		fmt.Println("To log in:")
		fmt.Println("  orgd-cli login --email <email>")
		return nil
	}

	defaultName, _ := store.DefaultName()
	now := time.Now()

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tEMAIL\tORGANIZATION\tSTATUS\tDEFAULT")

	for _, session := range sessions {
		status := "valid"
		if session.Expired(now) {
			status = "expired"
		}

		isDefault := ""
		if session.Name == defaultName {
			isDefault = "*"
		}

		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", session.Name, session.Email, session.OrganizationName, status, isDefault)
	}

	return w.Flush()
}

// SessionsShowCmd shows a session and the claims carried by its token.
type SessionsShowCmd struct {
	Name string `arg:"" optional:"" help:"Session name (defaults to the default session)"`
}

func (c *SessionsShowCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(globals.CredentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	var session *credentials.Session
	if c.Name == "" {
		session, err = store.GetDefault()
	} else {
		session, err = store.Get(c.Name)
	}
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}

	fmt.Printf("Name:          %s\n", session.Name)
	fmt.Printf("Server:        %s\n", session.ServerURL)
	fmt.Printf("Email:         %s\n", session.Email)
	fmt.Printf("Organization:  %s\n", session.OrganizationName)
	fmt.Printf("Expires:       %s\n", formatTime(session.ExpiresAt))
	fmt.Printf("Expired:       %v\n", session.Expired(time.Now()))

	info, err := credentials.InspectToken(session.AccessToken)
	if err != nil {
		return fmt.Errorf("stored token is unreadable: %w", err)
	}

	fmt.Printf("Token ID:      %s\n", info.ID)
	fmt.Printf("Issuer:        %s\n", info.Issuer)
	fmt.Printf("Admin ID:      %s\n", info.AdminID)
	fmt.Printf("Org ID:        %s\n", info.OrganizationID)
	fmt.Printf("Issued:        %s\n", formatTime(info.IssuedAt))
	return nil
}

// SessionsUseCmd sets the default session.
type SessionsUseCmd struct {
	Name string `arg:"" help:"Session name"`
}

func (c *SessionsUseCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(globals.CredentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	if err := store.SetDefault(c.Name); err != nil {
		return fmt.Errorf("failed to set default session: %w", err)
	}

	fmt.Printf("Default session is now %q\n", c.Name)
	return nil
}

// SessionsLogoutCmd forgets a stored session. Tokens are stateless so the
// server is not contacted.
type SessionsLogoutCmd struct {
	Name string `arg:"" optional:"" help:"Session name (defaults to the default session)"`
}

func (c *SessionsLogoutCmd) Run(ctx context.Context, globals *Globals) error {
	store, err := credentials.NewStore(globals.CredentialsDir)
	if err != nil {
		return fmt.Errorf("failed to initialize credential store: %w", err)
	}

	name := c.Name
	if name == "" {
		if name, err = store.DefaultName(); err != nil {
			return err
		}
		if name == "" {
			return credentials.ErrNoDefaultSession
		}
	}

	if err := store.Delete(name); err != nil {
		return fmt.Errorf("failed to remove session: %w", err)
	}

	fmt.Printf("Logged out of %q\n", name)
	return nil
}
