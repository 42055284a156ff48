package commands

import (
	"context"
	"fmt"
	"time"

	"github.com/wolfeidau/orgd/internal/client"
)

// HealthCmd reports the server and database status.
type HealthCmd struct {
	Wait time.Duration `help:"Keep polling until healthy for up to this long (0 checks once)" default:"0s"`
}

func (c *HealthCmd) Run(ctx context.Context, globals *Globals) error {
	cl := globals.newClient()

	var (
		health *client.Health
		err    error
	)
	if c.Wait > 0 {
		health, err = cl.WaitHealthy(ctx, c.Wait)
	} else {
		health, err = cl.Health(ctx)
	}

	if health != nil && health.Status != "" {
		fmt.Printf("Service:   %s\n", health.Service)
		fmt.Printf("Status:    %s\n", health.Status)
		fmt.Printf("Database:  %s\n", health.Database)
	}
	if err != nil {
		return fmt.Errorf("server is not healthy: %w", err)
	}

	return nil
}
