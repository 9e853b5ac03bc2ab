package main

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/apollo/canaria/pkg/client"
	"github.com/apollo/canaria/pkg/version"
)

var (
	serverURL string
	authToken string
)

var rootCmd = &cobra.Command{
	Use:   "canariactl",
	Short: "Command line interface for the canaria rollout daemon",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if serverURL == "" {
			return fmt.Errorf("server address cannot be empty")
		}
		return nil
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print client version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("canariactl %s (%s)\n", version.Version, version.Commit)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Canaria daemon address")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("CANARIA_TOKEN"), "Bearer token for the daemon API")
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	return client.New(serverURL, authToken, &http.Client{Timeout: 15 * time.Second})
}
