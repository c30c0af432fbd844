package bench

import (
	"context"
	"fmt"
	"time"
)

// RunComprehensive executes the standard suite: three burst sizes followed
// by three sustained rates, with a short settle pause between tests.
func (r *Runner) RunComprehensive(ctx context.Context) ([]Result, error) {
	type test struct {
		name string
		run  func(context.Context) (Result, error)
	}

	tests := []test{
		{"burst_100", func(ctx context.Context) (Result, error) { return r.RunBurst(ctx, 100) }},
		{"burst_1000", func(ctx context.Context) (Result, error) { return r.RunBurst(ctx, 1000) }},
		{"burst_5000", func(ctx context.Context) (Result, error) { return r.RunBurst(ctx, 5000) }},
		{"sustained_50tps", func(ctx context.Context) (Result, error) { return r.RunSustained(ctx, 50, 10*time.Second) }},
		{"sustained_200tps", func(ctx context.Context) (Result, error) { return r.RunSustained(ctx, 200, 10*time.Second) }},
		{"sustained_500tps", func(ctx context.Context) (Result, error) { return r.RunSustained(ctx, 500, 10*time.Second) }},
	}

	r.PublishStatus("comprehensive", "started")
	results := make([]Result, 0, len(tests))
	for i, tc := range tests {
		r.PublishStatus(tc.name, "running")
		res, err := tc.run(ctx)
		if err != nil {
			r.PublishStatus("comprehensive", "failed")
			return results, fmt.Errorf("bench: %s: %w", tc.name, err)
		}
		results = append(results, res)

		if i+1 < len(tests) {
			select {
			case <-ctx.Done():
				r.PublishStatus("comprehensive", "failed")
				return results, ctx.Err()
			case <-time.After(time.Second):
			}
		}
	}
	r.PublishStatus("comprehensive", "completed")
	return results, nil
}

// RunProfile steps the sustained rate from step up to maxRate, five seconds
// per step, charting latency against increasing load.
func (r *Runner) RunProfile(ctx context.Context, maxRate, step int) ([]Result, error) {
	if step <= 0 || maxRate <= 0 {
		return nil, fmt.Errorf("bench: profile needs positive rate and step")
	}

	r.PublishStatus("profile", "started")
	var results []Result
	for rate := step; rate <= maxRate; rate += step {
		name := fmt.Sprintf("profile_%dtps", rate)
		r.PublishStatus(name, "running")
		res, err := r.RunSustained(ctx, rate, 5*time.Second)
		if err != nil {
			r.PublishStatus("profile", "failed")
			return results, fmt.Errorf("bench: %s: %w", name, err)
		}
		results = append(results, res)

		select {
		case <-ctx.Done():
			r.PublishStatus("profile", "failed")
			return results, ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	r.PublishStatus("profile", "completed")
	return results, nil
}
