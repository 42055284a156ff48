package commands

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"github.com/wolfeidau/orgd/internal/tenant"
)

// CreateCmd registers a new organization and its admin.
type CreateCmd struct {
	Name     string `arg:"" help:"Organization name"`
	Email    string `help:"Admin email" required:""`
	Password string `help:"Admin password" required:"" env:"ORGD_PASSWORD"`
}

func (c *CreateCmd) Run(ctx context.Context, globals *Globals) error {
	view, err := globals.newClient().Create(ctx, tenant.CreateRequest{
		OrganizationName: c.Name,
		Email:            c.Email,
		Password:         c.Password,
	})
	if err != nil {
		return fmt.Errorf("failed to create organization: %w", err)
	}

	fmt.Println("Organization created.")
	printOrganization(view)
	fmt.Println()
	fmt.Println("To log in as its admin:")
	fmt.Printf("  orgd-cli login --email %s\n", view.AdminEmail)
	return nil
}

// GetCmd shows an organization.
type GetCmd struct {
	Name string `arg:"" help:"Organization name"`
}

func (c *GetCmd) Run(ctx context.Context, globals *Globals) error {
	view, err := globals.newClient().Get(ctx, c.Name)
	if err != nil {
		return fmt.Errorf("failed to get organization: %w", err)
	}

	printOrganization(view)
	return nil
}

// UpdateCmd renames the logged in admin's organization and optionally changes
// their email or password.
type UpdateCmd struct {
	NewName  string `arg:"" help:"New organization name"`
	OldName  string `help:"Current organization name (defaults to the session's organization)"`
	Email    string `help:"New admin email"`
	Password string `help:"New admin password" env:"ORGD_NEW_PASSWORD"`
	Session  string `help:"Session to use (defaults to the default session)"`
}

func (c *UpdateCmd) Run(ctx context.Context, globals *Globals) error {
	cl, session, store, err := globals.sessionClient(c.Session)
	if err != nil {
		return err
	}

	req := tenant.UpdateRequest{
		OldOrganizationName: c.OldName,
		NewOrganizationName: c.NewName,
	}
	if req.OldOrganizationName == "" {
		req.OldOrganizationName = session.OrganizationName
	}
	if c.Email != "" {
		req.Email = &c.Email
	}
	if c.Password != "" {
		req.Password = &c.Password
	}

	resp, err := cl.Update(ctx, req)
	if err != nil {
		return fmt.Errorf("failed to update organization: %w", err)
	}

	// Keep the stored session in step with the server
	session.OrganizationName = resp.Details.OrganizationName
	if resp.Details.EmailUpdated {
		session.Email = c.Email
	}
	if err := store.Save(*session); err != nil {
		log.Warn().Err(err).Str("session", session.Name).Msg("Failed to update stored session")
	}

	fmt.Println(resp.Message)
	fmt.Printf("Organization:     %s\n", resp.Details.OrganizationName)
	fmt.Printf("Collection:       %s\n", resp.Details.CollectionName)
	fmt.Printf("Name changed:     %v\n", resp.Details.NameChanged)
	fmt.Printf("Email updated:    %v\n", resp.Details.EmailUpdated)
	fmt.Printf("Password updated: %v\n", resp.Details.PasswordUpdated)
	return nil
}

// DeleteCmd removes the logged in admin's organization.
type DeleteCmd struct {
	Name    string `arg:"" help:"Organization name, repeated as confirmation"`
	Session string `help:"Session to use (defaults to the default session)"`
}

func (c *DeleteCmd) Run(ctx context.Context, globals *Globals) error {
	cl, session, store, err := globals.sessionClient(c.Session)
	if err != nil {
		return err
	}

	resp, err := cl.Delete(ctx, c.Name)
	if err != nil {
		return fmt.Errorf("failed to delete organization: %w", err)
	}

	// The admin no longer exists so the token is useless
	if err := store.Delete(session.Name); err != nil {
		log.Warn().Err(err).Str("session", session.Name).Msg("Failed to remove stored session")
	}

	fmt.Println(resp.Message)
	fmt.Printf("Organization: %s\n", resp.Details.OrganizationName)
	fmt.Printf("Collection:   %s (dropped)\n", resp.Details.CollectionDeleted)
	return nil
}

func printOrganization(view *tenant.OrganizationView) {
	fmt.Printf("ID:           %s\n", view.ID)
	fmt.Printf("Name:         %s\n", view.OrganizationName)
	fmt.Printf("Collection:   %s\n", view.CollectionName)
	fmt.Printf("Admin email:  %s\n", view.AdminEmail)
	fmt.Printf("Created:      %s\n", formatTime(view.CreatedAt))
}
