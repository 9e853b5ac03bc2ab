package main

import (
	"flag"
	"os"
	"time"

	clientgoscheme "k8s.io/client-go/kubernetes/scheme"
	ctrl "sigs.k8s.io/controller-runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/apollo/canaria/gateway"
	"github.com/apollo/canaria/pkg/advisor"
	"github.com/apollo/canaria/pkg/driver"
	"github.com/apollo/canaria/pkg/engine"
	"github.com/apollo/canaria/pkg/log"
	"github.com/apollo/canaria/pkg/metricsource"
	"github.com/apollo/canaria/pkg/registry"
	"github.com/apollo/canaria/pkg/store"
	"github.com/apollo/canaria/pkg/store/badgerstore"
	"github.com/apollo/canaria/pkg/version"
	"github.com/apollo/canaria/pkg/workload"
)

func main() {
	var configPath string
	var addr string
	var dataDir string

	flag.StringVar(&configPath, "config", os.Getenv("CANARIA_CONFIG"), "Path to YAML configuration file")
	flag.StringVar(&addr, "addr", "", "Gateway listen address (overrides config)")
	flag.StringVar(&dataDir, "data-dir", "", "Badger data directory (overrides config)")

	log.Setup()
	flag.Parse()

	logger := ctrl.Log.WithName("canariad-setup")
	logger.Info("starting canaria daemon", "version", version.Version, "commit", version.Commit)

	cfg, err := LoadConfig(configPath)
	if err != nil {
		logger.Error(err, "unable to load configuration", "path", configPath)
		os.Exit(1)
	}
	if addr != "" {
		cfg.Addr = addr
	}
	if dataDir != "" {
		cfg.DataDir = dataDir
	}

	var st store.Store
	if cfg.DataDir != "" {
		bs, err := badgerstore.Open(cfg.DataDir, ctrl.Log.WithName("badger"))
		if err != nil {
			logger.Error(err, "unable to open store", "dataDir", cfg.DataDir)
			os.Exit(1)
		}
		defer bs.Close()
		st = bs
	} else {
		logger.Info("no data directory configured, using in-memory store")
		st = store.NewMemory()
	}

	opts := []engine.Option{}
	if cfg.Advisor.Enabled {
		adv, err := advisor.NewOpenAI(os.Getenv("OPENAI_API_KEY"), cfg.Advisor.Model)
		if err != nil {
			logger.Error(err, "unable to configure advisor")
			os.Exit(1)
		}
		opts = append(opts, engine.WithAdvisor(adv))
	}
	if cfg.ResolveImages {
		opts = append(opts, engine.WithImageResolver(&registry.Resolver{PlainHTTPHosts: cfg.PlainHTTPRegistries}))
	}

	eng := engine.New(st, ctrl.Log.WithName("engine"), opts...)

	var kubeClient client.Client
	if cfg.Kubernetes {
		kubeClient, err = client.New(ctrl.GetConfigOrDie(), client.Options{Scheme: clientgoscheme.Scheme})
		if err != nil {
			logger.Error(err, "unable to create kubernetes client")
			os.Exit(1)
		}
	}

	var ctl workload.Controller = workload.Noop{Log: ctrl.Log.WithName("workload")}
	if kubeClient != nil {
		ctl = workload.NewKube(kubeClient, ctrl.Log.WithName("workload"))
	}

	var src engine.MetricsSource
	if cfg.Prometheus.URL != "" {
		prom := metricsource.NewPrometheus(cfg.Prometheus.URL, metricsource.Queries{
			CanaryErrorRate: cfg.Prometheus.Queries.CanaryErrorRate,
			StableErrorRate: cfg.Prometheus.Queries.StableErrorRate,
			CanaryLatencyMs: cfg.Prometheus.Queries.CanaryLatencyMs,
			StableLatencyMs: cfg.Prometheus.Queries.StableLatencyMs,
		})
		if kubeClient != nil {
			src = metricsource.Composite{Rates: prom, Pods: &metricsource.Kube{Client: kubeClient}}
		} else {
			src = prom
		}
	}

	ctx := ctrl.SetupSignalHandler()

	if cfg.Poll {
		poller := driver.NewPoller(eng, src, ctl, time.Duration(cfg.PollIntervalSeconds)*time.Second, ctrl.Log.WithName("poller"))
		go func() {
			if err := poller.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error(err, "poller stopped")
			}
		}()
	}

	srv := gateway.New(eng, src, ctl, cfg.Addr, cfg.AuthToken, ctrl.Log.WithName("gateway"))
	logger.Info("serving rollout API", "addr", cfg.Addr, "poll", cfg.Poll)
	if err := srv.Start(ctx); err != nil {
		logger.Error(err, "problem running gateway")
		os.Exit(1)
	}
}
