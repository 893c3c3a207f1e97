// Package jobs runs simplet deployment jobs: a service name plus optional
// override bytes in, a human readable status line out.
package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/artpar/simplets/internal/core/domain"
	"github.com/artpar/simplets/internal/core/simplet"
	"github.com/artpar/simplets/internal/shell/metrics"
	"github.com/artpar/simplets/internal/shell/registry"
	"github.com/artpar/simplets/internal/shell/store"
)

// Options configures a Runner.
type Options struct {
	// Defaults are per-service base configurations. A job override wins
	// over these field by field.
	Defaults map[simplet.Kind]simplet.Override

	// Store is the deployment ledger. Optional.
	Store store.Store

	Metrics *metrics.Recorder
	Logger  *slog.Logger
}

// Runner executes deployment jobs and owns the running-stack registry.
type Runner struct {
	deployer simplet.Deployer
	registry *registry.Registry
	defaults map[simplet.Kind]simplet.Override
	store    store.Store
	metrics  *metrics.Recorder
	logger   *slog.Logger
}

// NewRunner creates a new job runner.
func NewRunner(deployer simplet.Deployer, reg *registry.Registry, opts Options) *Runner {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	defaults := opts.Defaults
	if defaults == nil {
		defaults = map[simplet.Kind]simplet.Override{}
	}
	return &Runner{
		deployer: deployer,
		registry: reg,
		defaults: defaults,
		store:    opts.Store,
		metrics:  opts.Metrics,
		logger:   logger.With("component", "jobs"),
	}
}

// Registry returns the registry the runner writes to.
func (r *Runner) Registry() *registry.Registry {
	return r.registry
}

// =============================================================================
// Run
// =============================================================================

// Run deploys one simplet and reports the outcome as a status line. It
// never fails: every error becomes part of the returned text.
func (r *Runner) Run(ctx context.Context, service string, override []byte) string {
	message, _ := r.Execute(ctx, service, override)
	return message
}

// Execute is Run that also reports whether a stack was deployed and
// registered.
//
// The deployment itself is detached from ctx cancellation, so a caller
// that goes away does not leave a half-started stack behind.
func (r *Runner) Execute(ctx context.Context, service string, override []byte) (string, bool) {
	started := time.Now()
	logger := r.logger.With("service", service)

	kind, err := simplet.ParseKind(service)
	if err != nil {
		logger.Warn("unknown simplet service")
		return fmt.Sprintf("Unknown simplet service: %s", service), false
	}
	display := kind.DisplayName()

	ov, err := decodeOverride(override)
	if err != nil {
		logger.Warn("invalid override", "error", err)
		r.metrics.ObserveDeployment(service, metrics.OutcomeRejected, time.Since(started))
		return fmt.Sprintf("Invalid %s configuration: %v", display, err), false
	}

	builder := simplet.FromOverride(kind, simplet.Merge(r.defaults[kind], ov))
	identity, err := builder.UniqueID()
	if err != nil {
		logger.Error("failed to derive identity", "error", err)
		return fmt.Sprintf("Failed to deploy %s simplet: %v", display, err), false
	}
	key := simplet.RegistryKey(kind, identity)
	logger = logger.With("key", key)

	detached := context.WithoutCancel(ctx)
	r.reclaimFailed(detached, logger, key)

	if r.registry.Policy() == registry.PolicyReject && r.registry.Has(key) {
		logger.Info("simplet already deployed, rejecting")
		r.metrics.ObserveDeployment(service, metrics.OutcomeRejected, time.Since(started))
		return fmt.Sprintf("%s simplet already deployed: %s", display, key), false
	}

	rec := domain.NewDeployment(kind, identity)
	r.createRecord(ctx, rec)

	stack, err := builder.Deploy(detached, r.deployer)
	if err != nil {
		logger.Error("deployment failed", "error", err)
		if terr := rec.TransitionToFailed(err.Error()); terr == nil {
			r.updateRecord(detached, rec)
		}
		if stack != nil {
			r.keepFailed(detached, logger, registry.Entry{
				Kind:         kind,
				Identity:     identity,
				DeploymentID: rec.ID,
				Stack:        stack,
				Failed:       true,
			})
		}
		return fmt.Sprintf("Failed to deploy %s simplet: %v", display, err), false
	}

	previous, replaced, err := r.registry.Put(registry.Entry{
		Kind:         kind,
		Identity:     identity,
		DeploymentID: rec.ID,
		Stack:        stack,
	})
	if errors.Is(err, registry.ErrDuplicateKey) {
		// Lost a race with a concurrent job for the same key.
		logger.Warn("duplicate stack after deploy, removing it")
		if cerr := stack.Cleanup(detached); cerr != nil {
			logger.Error("failed to remove duplicate stack", "error", cerr)
		} else if rec.Transition(domain.StatusRunning) == nil && rec.Transition(domain.StatusRemoved) == nil {
			r.updateRecord(detached, rec)
		}
		return fmt.Sprintf("%s simplet already deployed: %s", display, key), false
	}
	if replaced {
		logger.Warn("replaced registered stack, previous stack is no longer tracked",
			"previous_deployment", previous.DeploymentID,
			"previous_deployed_at", previous.DeployedAt,
			"previous_failed", previous.Failed,
		)
	}

	if err := rec.Transition(domain.StatusRunning); err == nil {
		r.updateRecord(detached, rec)
	}
	r.metrics.SetRunningStacks(r.registry.Len())

	logger.Info("simplet deployed", "identity", identity, "duration", time.Since(started))
	return fmt.Sprintf("%s simplet deployed successfully!", display), true
}

// keepFailed registers a failed stack that still holds engine resources so
// it can be removed later. When the key is taken by another stack the
// leftovers are removed right away.
func (r *Runner) keepFailed(ctx context.Context, logger *slog.Logger, e registry.Entry) {
	if err := r.registry.Add(e); err == nil {
		logger.Warn("failed stack kept for cleanup", "deployment_id", e.DeploymentID)
		r.metrics.SetRunningStacks(r.registry.Len())
		return
	}

	if err := e.Stack.Cleanup(ctx); err != nil {
		logger.Error("failed to remove leftovers of failed stack", "deployment_id", e.DeploymentID, "error", err)
		return
	}
	r.transitionRecord(ctx, e.DeploymentID, domain.StatusRemoved)
}

// reclaimFailed removes a failed stack registered under key so a new
// deployment can take its place.
func (r *Runner) reclaimFailed(ctx context.Context, logger *slog.Logger, key string) {
	entry, err := r.registry.Get(key)
	if err != nil || !entry.Failed {
		return
	}
	if err := r.Remove(ctx, key); err != nil {
		logger.Warn("failed to remove leftovers of earlier failed deployment", "error", err)
	}
}

// decodeOverride parses job override bytes. An empty body means no
// overrides.
func decodeOverride(data []byte) (simplet.Override, error) {
	var ov simplet.Override
	if len(bytes.TrimSpace(data)) == 0 {
		return ov, nil
	}
	if err := json.Unmarshal(data, &ov); err != nil {
		return simplet.Override{}, err
	}
	return ov, nil
}

// =============================================================================
// Stop / Remove
// =============================================================================

// Stop stops the stack registered under key. The entry stays registered.
func (r *Runner) Stop(ctx context.Context, key string) error {
	entry, err := r.registry.Get(key)
	if err != nil {
		return err
	}

	if err := entry.Stack.Stop(ctx); err != nil {
		r.logger.Error("failed to stop stack", "key", key, "error", err)
		return fmt.Errorf("stop %s: %w", key, err)
	}

	r.transitionRecord(ctx, entry.DeploymentID, domain.StatusStopped)
	r.logger.Info("stack stopped", "key", key)
	return nil
}

// Remove cleans up the stack registered under key and unregisters it.
// On a cleanup failure the entry stays registered so the call can be
// retried.
func (r *Runner) Remove(ctx context.Context, key string) error {
	entry, err := r.registry.Get(key)
	if err != nil {
		return err
	}

	if err := entry.Stack.Cleanup(ctx); err != nil {
		r.logger.Error("failed to remove stack", "key", key, "error", err)
		return fmt.Errorf("remove %s: %w", key, err)
	}

	// A concurrent Remove may have won; either way the key is gone.
	_, _ = r.registry.Delete(key)
	r.metrics.SetRunningStacks(r.registry.Len())

	r.transitionRecord(ctx, entry.DeploymentID, domain.StatusRemoved)
	r.logger.Info("stack removed", "key", key)
	return nil
}

// =============================================================================
// Ledger Helpers
// =============================================================================

func (r *Runner) createRecord(ctx context.Context, rec *domain.Deployment) {
	if r.store == nil {
		return
	}
	if err := r.store.CreateDeployment(ctx, rec); err != nil {
		r.logger.Warn("failed to record deployment", "deployment_id", rec.ID, "error", err)
	}
}

func (r *Runner) updateRecord(ctx context.Context, rec *domain.Deployment) {
	if r.store == nil {
		return
	}
	if err := r.store.UpdateDeployment(ctx, rec); err != nil {
		r.logger.Warn("failed to update deployment record", "deployment_id", rec.ID, "error", err)
	}
}

func (r *Runner) transitionRecord(ctx context.Context, id string, to domain.DeploymentStatus) {
	if r.store == nil || id == "" {
		return
	}
	rec, err := r.store.GetDeployment(ctx, id)
	if err != nil {
		r.logger.Warn("failed to load deployment record", "deployment_id", id, "error", err)
		return
	}
	if err := rec.Transition(to); err != nil {
		r.logger.Warn("deployment record not updated", "deployment_id", id, "status", rec.Status, "to", to)
		return
	}
	r.updateRecord(ctx, rec)
}
