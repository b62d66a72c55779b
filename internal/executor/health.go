package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
)

// HealthCheckResult records the outcome of probing one (backend, model)
// pair at startup.
type HealthCheckResult struct {
	Model string
	OK    bool
	Err   error
}

// RunHealthChecks probes every model in models against backend with a
// trivial completion request, the way the teacher's circuit breaker probes
// an exchange before admitting orders for it. Models that fail are dropped
// from the returned, healthy slice. If none survive, RunHealthChecks
// returns an error — a backend with zero working models cannot serve.
func RunHealthChecks(ctx context.Context, backend InferenceProvider, models []string, timeout time.Duration) ([]string, []HealthCheckResult, error) {
	results := make([]HealthCheckResult, 0, len(models))
	healthy := make([]string, 0, len(models))

	for _, model := range models {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		res, err := backend.Generate(checkCtx, GenerateRequest{
			Model:  model,
			Prompt: "ping",
		})
		cancel()
		if err == nil && res.Content == "" {
			err = fmt.Errorf("executor: empty health check response")
		}

		result := HealthCheckResult{Model: model, OK: err == nil, Err: err}
		results = append(results, result)

		if err != nil {
			log.Warn().Str("model", model).Err(err).Msg("executor: model failed startup health check, dropping")
			continue
		}
		healthy = append(healthy, model)
	}

	if len(healthy) == 0 {
		return nil, results, fmt.Errorf("executor: no configured model passed its startup health check (%d checked)", len(models))
	}
	return healthy, results, nil
}
