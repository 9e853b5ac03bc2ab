package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/apollo/canaria/pkg/canary"
)

var (
	createWorkload        string
	createNamespace       string
	createStableService   string
	createCanaryService   string
	createStableVersion   string
	createStableImage     string
	createCanaryVersion   string
	createCanaryImage     string
	createInitial         int
	createTarget          int
	createIncrement       int
	createIntervalMinutes int
	createMaxErrorRate    float64
	createMaxLatencyMs    float64
	createMinSuccessRate  float64
	createMinHealthyPods  int
	createAutoRollback    bool
	createRequireApproval bool
)

var rolloutCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create a new canary rollout",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := canary.Config{
			Workload: canary.WorkloadRef{
				Name:          createWorkload,
				Namespace:     createNamespace,
				StableService: createStableService,
				CanaryService: createCanaryService,
			},
			StableVersion: createStableVersion,
			StableImage:   createStableImage,
			CanaryVersion: createCanaryVersion,
			CanaryImage:   createCanaryImage,
			Plan: canary.TrafficPlan{
				InitialPercent:           createInitial,
				TargetPercent:            createTarget,
				IncrementPercent:         createIncrement,
				IncrementIntervalMinutes: createIntervalMinutes,
			},
			Thresholds: canary.Thresholds{
				ErrorRatePercent:   createMaxErrorRate,
				LatencyMs:          createMaxLatencyMs,
				SuccessRatePercent: createMinSuccessRate,
				MinHealthyPods:     createMinHealthyPods,
			},
			Policy: canary.RollbackPolicy{
				AutoRollback: createAutoRollback,
				OnErrorRate:  createAutoRollback,
				OnLatency:    createAutoRollback,
				OnPodFailure: createAutoRollback,
			},
			RequireManualApproval: createRequireApproval,
		}

		c := newClient()
		d, err := c.CreateRollout(cmd.Context(), cfg)
		if err != nil {
			return err
		}

		fmt.Printf("ID:       %s\n", d.ID)
		fmt.Printf("Workload: %s/%s\n", d.Workload.Namespace, d.Workload.Name)
		fmt.Printf("Canary:   %s (%s)\n", d.CanaryVersion, d.CanaryImage)
		fmt.Printf("Status:   %s\n", d.Status)
		fmt.Printf("Steps:    %d\n", len(d.Steps))
		return nil
	},
}

func init() {
	rolloutCmd.AddCommand(rolloutCreateCmd)
	f := rolloutCreateCmd.Flags()
	f.StringVar(&createWorkload, "workload", "", "Target deployment name")
	f.StringVar(&createNamespace, "namespace", "default", "Target namespace")
	f.StringVar(&createStableService, "stable-service", "", "Service fronting the stable version")
	f.StringVar(&createCanaryService, "canary-service", "", "Service fronting the canary version")
	f.StringVar(&createStableVersion, "stable-version", "", "Currently serving version")
	f.StringVar(&createStableImage, "stable-image", "", "Image of the stable version")
	f.StringVar(&createCanaryVersion, "canary-version", "", "Version under evaluation")
	f.StringVar(&createCanaryImage, "canary-image", "", "Image of the canary version")
	f.IntVar(&createInitial, "initial", 10, "Initial canary traffic percent")
	f.IntVar(&createTarget, "target", 100, "Final canary traffic percent")
	f.IntVar(&createIncrement, "increment", 10, "Traffic percent added per step")
	f.IntVar(&createIntervalMinutes, "interval-minutes", 5, "Minutes between step advances")
	f.Float64Var(&createMaxErrorRate, "max-error-rate", 5, "Maximum tolerated canary error rate percent")
	f.Float64Var(&createMaxLatencyMs, "max-latency-ms", 1000, "Maximum tolerated canary average latency")
	f.Float64Var(&createMinSuccessRate, "min-success-rate", 95, "Minimum success rate required to promote")
	f.IntVar(&createMinHealthyPods, "min-healthy-pods", 1, "Minimum healthy canary pods")
	f.BoolVar(&createAutoRollback, "auto-rollback", true, "Roll back automatically on failed health gates")
	f.BoolVar(&createRequireApproval, "require-approval", false, "Hold automatic promotion until approved")
	_ = rolloutCreateCmd.MarkFlagRequired("workload")
	_ = rolloutCreateCmd.MarkFlagRequired("stable-version")
	_ = rolloutCreateCmd.MarkFlagRequired("stable-image")
	_ = rolloutCreateCmd.MarkFlagRequired("canary-version")
	_ = rolloutCreateCmd.MarkFlagRequired("canary-image")
}
