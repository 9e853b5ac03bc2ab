// Package advisor produces human-readable narratives for degraded or
// unhealthy health verdicts. Advisors are strictly best-effort: the engine
// swallows their errors and never lets them gate a decision.
package advisor

import (
	"context"

	"github.com/apollo/canaria/pkg/canary"
)

// Noop returns no narrative. Useful when no advisor backend is configured.
type Noop struct{}

func (Noop) Narrate(_ context.Context, _ *canary.Deployment, _ canary.Verdict) (string, error) {
	return "", nil
}
