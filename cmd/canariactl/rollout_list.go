package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var rolloutListCmd = &cobra.Command{
	Use:   "list",
	Short: "List rollouts",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		ds, err := c.ListRollouts(cmd.Context())
		if err != nil {
			return err
		}

		if len(ds) == 0 {
			fmt.Println("No rollouts found")
			return nil
		}

		sort.SliceStable(ds, func(i, j int) bool {
			return ds[i].CreatedAt.After(ds[j].CreatedAt)
		})

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 2, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tWORKLOAD\tCANARY\tSTATUS\tTRAFFIC\tMESSAGE")
		for _, d := range ds {
			fmt.Fprintf(tw, "%s\t%s/%s\t%s\t%s\t%d%%\t%s\n",
				d.ID, d.Workload.Namespace, d.Workload.Name, d.CanaryVersion, d.Status, d.CurrentCanaryPercent, valueOrDash(d.StatusMessage))
		}
		return tw.Flush()
	},
}

func init() {
	rolloutCmd.AddCommand(rolloutListCmd)
}
