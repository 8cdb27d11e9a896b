package cli

import (
	"encoding/json"
	"fmt"

	"github.com/me/gatehouse/pkg/model"
	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show health of a running server",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewClient(flagServer, logger)
			resp, err := client.Get("/api/v1/health")
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}

			var h model.Health
			if err := json.Unmarshal(resp.Data, &h); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Server:   %s\n", flagServer)
			fmt.Fprintf(out, "Status:   %s\n", h.Status)
			fmt.Fprintf(out, "Version:  %s (%s)\n", h.Version, h.GoVersion)
			fmt.Fprintf(out, "Uptime:   %s\n", h.Uptime)
			fmt.Fprintf(out, "Sessions: %d\n", h.ActiveSessions)
			return nil
		},
	}
}
