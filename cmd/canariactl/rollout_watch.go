package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

const watchInterval = 2 * time.Second

var rolloutWatchCmd = &cobra.Command{
	Use:   "watch <id>",
	Short: "Watch rollout progress",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()

		ticker := time.NewTicker(watchInterval)
		defer ticker.Stop()

		for {
			select {
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			default:
			}

			d, err := c.GetRollout(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			fmt.Printf("[%s] %s | canary %s | traffic=%d%% | %s | %s\n",
				time.Now().Format(time.RFC3339),
				d.ID,
				d.CanaryVersion,
				d.CurrentCanaryPercent,
				strings.ToUpper(string(d.Status)),
				valueOrDash(d.StatusMessage),
			)

			if d.Status.Terminal() {
				return nil
			}

			select {
			case <-ticker.C:
			case <-cmd.Context().Done():
				return cmd.Context().Err()
			}
		}
	},
}

func init() {
	rolloutCmd.AddCommand(rolloutWatchCmd)
}
