package main

import "github.com/spf13/cobra"

var rolloutCmd = &cobra.Command{
	Use:   "rollout",
	Short: "Manage canary rollouts",
}

func init() {
	rootCmd.AddCommand(rolloutCmd)
}
