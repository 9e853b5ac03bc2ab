package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var rolloutGetCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Show a rollout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		d, err := c.GetRollout(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		fmt.Printf("ID:        %s\n", d.ID)
		fmt.Printf("Workload:  %s/%s\n", d.Workload.Namespace, d.Workload.Name)
		fmt.Printf("Stable:    %s (%s)\n", d.StableVersion, d.StableImage)
		fmt.Printf("Canary:    %s (%s)\n", d.CanaryVersion, d.CanaryImage)
		fmt.Printf("Status:    %s\n", d.Status)
		fmt.Printf("Traffic:   %d%% canary\n", d.CurrentCanaryPercent)
		fmt.Printf("Message:   %s\n", valueOrDash(d.StatusMessage))
		if d.LastVerdict != nil {
			fmt.Printf("Verdict:   %s\n", d.LastVerdict.Result)
			for _, r := range d.LastVerdict.Reasons {
				fmt.Printf("           - %s\n", r)
			}
			if d.LastVerdict.Narrative != "" {
				fmt.Printf("Narrative: %s\n", d.LastVerdict.Narrative)
			}
		}
		return nil
	},
}

var rolloutStepsCmd = &cobra.Command{
	Use:   "steps <id>",
	Short: "Show the traffic schedule of a rollout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		steps, err := c.GetSteps(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STEP\tPERCENT\tSTATUS\tSTARTED\tCOMPLETED")
		for _, s := range steps {
			fmt.Fprintf(tw, "%d\t%d%%\t%s\t%s\t%s\n",
				s.Number, s.TargetPercent, s.Status, formatTime(s.StartedAt), formatTime(s.CompletedAt))
		}
		return tw.Flush()
	},
}

var rolloutHistoryCmd = &cobra.Command{
	Use:   "history <id>",
	Short: "Show the rollback history of a rollout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		recs, err := c.GetRollbacks(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Println("No rollbacks recorded")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tTRIGGER\tSTEP\tPERCENT\tSTATUS\tREASON")
		for _, r := range recs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d%%\t%s\t%s\n",
				r.ID, r.Trigger, r.StepAtRollback, r.CanaryPercentAtRollback, r.Status, valueOrDash(r.Reason))
		}
		return tw.Flush()
	},
}

func init() {
	rolloutCmd.AddCommand(rolloutGetCmd)
	rolloutCmd.AddCommand(rolloutStepsCmd)
	rolloutCmd.AddCommand(rolloutHistoryCmd)
}
