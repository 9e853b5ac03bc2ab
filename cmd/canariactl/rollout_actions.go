package main

import (
	"fmt"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/apollo/canaria/pkg/canary"
)

var (
	rollbackReason string
	cancelReason   string
	approvedBy     string
)

var rolloutStartCmd = &cobra.Command{
	Use:   "start <id>",
	Short: "Begin progression of a pending rollout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newClient().Start(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTransition(d)
		return nil
	},
}

var rolloutTickCmd = &cobra.Command{
	Use:   "tick <id>",
	Short: "Run one evaluation cycle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newClient().Tick(cmd.Context(), args[0], nil)
		if err != nil {
			return err
		}
		printTransition(d)
		return nil
	},
}

var rolloutPauseCmd = &cobra.Command{
	Use:   "pause <id>",
	Short: "Suspend progression",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newClient().Pause(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTransition(d)
		return nil
	},
}

var rolloutResumeCmd = &cobra.Command{
	Use:   "resume <id>",
	Short: "Continue a paused rollout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newClient().Resume(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTransition(d)
		return nil
	},
}

var rolloutPromoteCmd = &cobra.Command{
	Use:   "promote <id>",
	Short: "Complete the current step immediately, bypassing health gates",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newClient().Promote(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printTransition(d)
		return nil
	},
}

var rolloutRollbackCmd = &cobra.Command{
	Use:   "rollback <id>",
	Short: "Roll the canary back to the stable version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newClient().Rollback(cmd.Context(), args[0], currentUser(), rollbackReason)
		if err != nil {
			return err
		}
		printTransition(d)
		return nil
	},
}

var rolloutCancelCmd = &cobra.Command{
	Use:   "cancel <id>",
	Short: "Terminate a rollout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newClient().Cancel(cmd.Context(), args[0], cancelReason)
		if err != nil {
			return err
		}
		printTransition(d)
		return nil
	},
}

var rolloutApproveCmd = &cobra.Command{
	Use:   "approve <id>",
	Short: "Approve promotion for a rollout that requires it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		by := approvedBy
		if by == "" {
			by = currentUser()
		}
		d, err := newClient().Approve(cmd.Context(), args[0], by)
		if err != nil {
			return err
		}
		printTransition(d)
		return nil
	},
}

var rolloutDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a rollout and its records",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteRollout(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

func printTransition(d *canary.Deployment) {
	fmt.Printf("Status:  %s\n", d.Status)
	fmt.Printf("Traffic: %d%% canary\n", d.CurrentCanaryPercent)
	fmt.Printf("Message: %s\n", valueOrDash(d.StatusMessage))
}

func currentUser() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "canariactl"
}

func init() {
	rolloutCmd.AddCommand(rolloutStartCmd)
	rolloutCmd.AddCommand(rolloutTickCmd)
	rolloutCmd.AddCommand(rolloutPauseCmd)
	rolloutCmd.AddCommand(rolloutResumeCmd)
	rolloutCmd.AddCommand(rolloutPromoteCmd)
	rolloutCmd.AddCommand(rolloutRollbackCmd)
	rolloutCmd.AddCommand(rolloutCancelCmd)
	rolloutCmd.AddCommand(rolloutApproveCmd)
	rolloutCmd.AddCommand(rolloutDeleteCmd)

	rolloutRollbackCmd.Flags().StringVar(&rollbackReason, "reason", "", "Reason recorded on the rollback")
	rolloutCancelCmd.Flags().StringVar(&cancelReason, "reason", "", "Reason recorded on the cancellation")
	rolloutApproveCmd.Flags().StringVar(&approvedBy, "by", "", "Approver identity (defaults to current user)")
}
