package log

import (
	"flag"

	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/log/zap"
)

// Setup initializes the process-wide zap logger, development-friendly by
// default. Zap flags are bound to the default flag set.
func Setup() {
	opts := zap.Options{Development: true}
	opts.BindFlags(flag.CommandLine)
	log.SetLogger(zap.New(zap.UseFlagOptions(&opts)))
}
