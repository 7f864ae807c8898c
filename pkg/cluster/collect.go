package cluster

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/opscart/k8s-energy-consolidator/pkg/models"
)

// Sampler is the capability the registry calls to obtain a fresh utilization
// observation for one host. Implementations must be safe for concurrent use.
type Sampler interface {
	Sample(ctx context.Context, host HostView) (models.Utilization, error)
}

// SamplerFunc adapts a function to the Sampler interface
type SamplerFunc func(ctx context.Context, host HostView) (models.Utilization, error)

// Sample calls f(ctx, host)
func (f SamplerFunc) Sample(ctx context.Context, host HostView) (models.Utilization, error) {
	return f(ctx, host)
}

// DefaultCollectConcurrency bounds parallel sampler calls when none is given
const DefaultCollectConcurrency = 8

// Collect samples every non-shutdown host in parallel and applies all results
// at a single barrier, returning the snapshot taken under the same lock.
//
// A host whose sampler call fails keeps its previous utilization; the failures
// are joined into the returned error alongside a complete snapshot. Only a
// cancelled context aborts the collection.
func (r *Registry) Collect(ctx context.Context, sampler Sampler, concurrency int) ([]models.Telemetry, error) {
	if concurrency <= 0 {
		concurrency = DefaultCollectConcurrency
	}

	var targets []HostView
	for _, v := range r.Hosts() {
		if v.State != models.StateShutdown {
			targets = append(targets, v)
		}
	}

	var (
		mu      sync.Mutex
		samples = make(map[string]models.Utilization, len(targets))
		errs    []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)
	for _, v := range targets {
		v := v
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			u, err := sampler.Sample(gctx, v)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("sample %s: %w", v.ID(), err))
				return nil
			}
			samples[v.ID()] = u
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	snapshot, err := r.ApplySamples(samples)
	if err != nil {
		return nil, err
	}
	return snapshot, errors.Join(errs...)
}
