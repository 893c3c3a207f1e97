package docker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/simplets/internal/core/simplet"
	"github.com/artpar/simplets/internal/shell/metrics"
	"github.com/google/uuid"
)

// =============================================================================
// Deployer - Engine-backed simplet.Deployer
// =============================================================================

// Connector opens a connection to the container engine.
type Connector func(ctx context.Context) (Client, error)

// DialDocker returns a Connector for the engine at host. An empty host uses
// the environment defaults.
func DialDocker(host string) Connector {
	return func(ctx context.Context) (Client, error) {
		cli, err := NewDockerClient(ctx, host)
		if err != nil {
			return nil, err
		}
		if err := cli.Ping(ctx); err != nil {
			cli.Close()
			return nil, err
		}
		return cli, nil
	}
}

// StaticClient returns a Connector that always yields cli.
func StaticClient(cli Client) Connector {
	return func(context.Context) (Client, error) {
		return cli, nil
	}
}

// DeployerOptions configures a Deployer.
type DeployerOptions struct {
	RollbackOnFailure bool
	Metrics           *metrics.Recorder
	Logger            *slog.Logger
}

// Deployer turns a deployment configuration into a running Stack.
//
// The engine connection is opened on the first deployment and shared by
// every stack afterwards.
type Deployer struct {
	connect Connector
	opts    DeployerOptions
	logger  *slog.Logger

	mu     sync.Mutex
	client Client

	// pollInterval overrides the readiness interval when non-zero.
	pollInterval time.Duration
}

var _ simplet.Deployer = (*Deployer)(nil)

// NewDeployer creates a new deployer.
func NewDeployer(connect Connector, opts DeployerOptions) *Deployer {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Deployer{
		connect: connect,
		opts:    opts,
		logger:  logger.With("component", "deployer"),
	}
}

// Deploy connects to the engine, builds the environment, derives the
// identity and starts a new stack. It returns once the stack is running or
// has failed.
//
// A failed stack that still holds engine resources is returned along with
// the error so it can be stopped or cleaned up later.
func (d *Deployer) Deploy(ctx context.Context, cfg simplet.DeploymentConfig) (simplet.Stack, error) {
	stack, err := d.start(ctx, cfg)
	if stack == nil {
		return nil, err
	}
	return stack, err
}

// DeployStack is Deploy returning the concrete stack type.
func (d *Deployer) DeployStack(ctx context.Context, cfg simplet.DeploymentConfig) (*Stack, error) {
	return d.start(ctx, cfg)
}

func (d *Deployer) start(ctx context.Context, cfg simplet.DeploymentConfig) (*Stack, error) {
	started := time.Now()
	service := string(cfg.Kind)

	if !cfg.Kind.Valid() {
		return nil, fmt.Errorf("%w: %q", simplet.ErrUnknownKind, cfg.Kind)
	}

	env := simplet.BuildEnv(cfg)

	cli, err := d.engine(ctx)
	if err != nil {
		d.opts.Metrics.ObserveDeployment(service, metrics.OutcomeError, time.Since(started))
		return nil, err
	}

	identity, err := simplet.DeriveID(cfg)
	if err != nil {
		d.opts.Metrics.ObserveDeployment(service, metrics.OutcomeError, time.Since(started))
		return nil, err
	}

	stack := NewStack(cli, env, cfg.Kind, identity, StackOptions{
		Instance:          uuid.NewString()[:8],
		RollbackOnFailure: d.opts.RollbackOnFailure,
		Logger:            d.logger,
	})
	if d.pollInterval > 0 {
		stack.pollInterval = d.pollInterval
	}

	err = stack.Start(ctx)
	d.opts.Metrics.ObserveReadiness(service, stack.Info().ReadinessAttempts)
	if err != nil {
		outcome := metrics.OutcomeError
		if IsTimeout(err) {
			outcome = metrics.OutcomeTimeout
		}
		d.opts.Metrics.ObserveDeployment(service, outcome, time.Since(started))
		if stack.holdsResources() {
			return stack, err
		}
		return nil, err
	}

	d.opts.Metrics.ObserveDeployment(service, metrics.OutcomeSuccess, time.Since(started))
	d.logger.Info("simplet deployed",
		"service", service,
		"identity", identity,
		"stack", stack.Name(),
		"duration", time.Since(started),
	)
	return stack, nil
}

// engine returns the shared client, connecting on first use.
func (d *Deployer) engine(ctx context.Context) (Client, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client != nil {
		return d.client, nil
	}
	cli, err := d.connect(ctx)
	if err != nil {
		return nil, err
	}
	d.client = cli
	return cli, nil
}

// Close releases the engine connection if one was opened.
func (d *Deployer) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.client == nil {
		return nil
	}
	err := d.client.Close()
	d.client = nil
	return err
}
