package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/artpar/simplets/internal/core/domain"
	"github.com/artpar/simplets/internal/core/simplet"
	"github.com/cenkalti/backoff/v5"
)

// =============================================================================
// Stack Constants
// =============================================================================

const (
	// DatabaseImage is the image every simplet database runs.
	DatabaseImage = "mysql:8.0"

	// readinessInterval and readinessAttempts bound the database wait to
	// roughly one minute.
	readinessInterval = 2 * time.Second
	readinessAttempts = 30

	stopTimeout = 10 * time.Second

	databaseVolume = "mysql-data"
	databaseMount  = "/var/lib/mysql"
	appVolume      = "app-data"
	appMount       = "/app/data"
)

var errDatabaseNotRunning = errors.New("database container not running yet")

// =============================================================================
// Stack - Database + Application Container Pair
// =============================================================================

// StackOptions configures a Stack.
type StackOptions struct {
	// Instance distinguishes engine resource names of stacks that share an
	// identity. Required.
	Instance string

	// RollbackOnFailure force-removes whatever a failed Start created.
	RollbackOnFailure bool

	Logger *slog.Logger
}

// StackInfo is a point-in-time view of a stack.
type StackInfo struct {
	Name                string
	Kind                simplet.Kind
	Identity            string
	Status              domain.DeploymentStatus
	NetworkID           string
	DatabaseContainerID string
	AppContainerID      string
	AppPorts            []PortBinding
	ReadinessAttempts   int
}

// Stack owns one simplet's database and application containers and drives
// them through start, stop and cleanup.
//
// Start runs database creation, the readiness wait and application creation
// strictly in that order. Stop and Cleanup act on the application first and
// halt at the first engine error.
type Stack struct {
	docker   Client
	kind     simplet.Kind
	identity string
	name     string
	env      map[string]string
	rollback bool
	logger   *slog.Logger

	pollInterval time.Duration
	maxAttempts  uint

	mu         sync.Mutex
	status     domain.DeploymentStatus
	networkID  string
	databaseID string
	appID      string
	appPorts   []PortBinding
	pollChecks int
}

// NewStack creates a stack in the created state. No engine calls are made.
func NewStack(docker Client, env map[string]string, kind simplet.Kind, identity string, opts StackOptions) *Stack {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	name := simplet.StackName(kind, identity, opts.Instance)

	return &Stack{
		docker:       docker,
		kind:         kind,
		identity:     identity,
		name:         name,
		env:          env,
		rollback:     opts.RollbackOnFailure,
		logger:       logger.With("stack", name, "service", string(kind)),
		pollInterval: readinessInterval,
		maxAttempts:  readinessAttempts,
		status:       domain.StatusCreated,
	}
}

// Kind returns the bound simplet kind.
func (s *Stack) Kind() simplet.Kind {
	return s.kind
}

// Name returns the engine resource prefix of the stack.
func (s *Stack) Name() string {
	return s.name
}

// Status returns the current lifecycle state.
func (s *Stack) Status() domain.DeploymentStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Info returns a snapshot of the stack.
func (s *Stack) Info() StackInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StackInfo{
		Name:                s.name,
		Kind:                s.kind,
		Identity:            s.identity,
		Status:              s.status,
		NetworkID:           s.networkID,
		DatabaseContainerID: s.databaseID,
		AppContainerID:      s.appID,
		AppPorts:            append([]PortBinding(nil), s.appPorts...),
		ReadinessAttempts:   s.pollChecks,
	}
}

// holdsResources reports whether any engine resource is still tracked.
func (s *Stack) holdsResources() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.networkID != "" || s.databaseID != "" || s.appID != ""
}

// =============================================================================
// Start
// =============================================================================

// Start creates the network and database, waits for the database to run,
// then creates the application container. It runs to Ready or Failed.
func (s *Stack) Start(ctx context.Context) error {
	if err := s.transition(domain.StatusStarting); err != nil {
		return err
	}

	s.logger.Info("starting stack", "identity", s.identity)

	if err := s.start(ctx); err != nil {
		if s.rollback {
			s.rollbackCreated(context.WithoutCancel(ctx))
		}
		s.setStatus(domain.StatusFailed)
		s.logger.Error("stack failed to start", "error", err, "rolled_back", s.rollback)
		return err
	}

	s.setStatus(domain.StatusRunning)
	s.logger.Info("stack running", "app_container", shortID(s.Info().AppContainerID))
	return nil
}

func (s *Stack) start(ctx context.Context) error {
	networkName := simplet.NetworkName(s.name)
	networkID, err := s.createNetwork(ctx, networkName)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.networkID = networkID
	s.mu.Unlock()

	// 1. Database
	s.ensureImage(ctx, DatabaseImage)
	dbID, err := s.docker.CreateContainer(ctx, s.databaseSpec(networkName))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.databaseID = dbID
	s.mu.Unlock()
	s.logger.Debug("created database container", "container_id", shortID(dbID))

	if err := s.docker.StartContainer(ctx, dbID); err != nil {
		return err
	}

	// 2. Readiness
	if err := s.waitForDatabase(ctx, dbID); err != nil {
		return err
	}

	// 3. Application
	image := s.kind.Image()
	s.ensureImage(ctx, image)
	appID, err := s.docker.CreateContainer(ctx, s.appSpec(networkName))
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.appID = appID
	s.mu.Unlock()
	s.logger.Debug("created app container", "container_id", shortID(appID), "image", image)

	if err := s.docker.StartContainer(ctx, appID); err != nil {
		return err
	}

	if info, err := s.docker.InspectContainer(ctx, appID); err != nil {
		s.logger.Warn("failed to inspect app container ports", "error", err)
	} else {
		s.mu.Lock()
		s.appPorts = info.Ports
		s.mu.Unlock()
	}

	return nil
}

// waitForDatabase polls the database run-state at a fixed interval. Inspect
// failures and a not-yet-running state both consume an attempt.
func (s *Stack) waitForDatabase(ctx context.Context, dbID string) error {
	checks := 0
	_, err := backoff.Retry(ctx, func() (struct{}, error) {
		checks++
		info, err := s.docker.InspectContainer(ctx, dbID)
		if err != nil {
			s.logger.Debug("database inspect failed", "attempt", checks, "error", err)
			return struct{}{}, err
		}
		if info.Status != ContainerStatusRunning {
			s.logger.Debug("database not running yet", "attempt", checks, "status", info.Status)
			return struct{}{}, errDatabaseNotRunning
		}
		return struct{}{}, nil
	},
		backoff.WithBackOff(backoff.NewConstantBackOff(s.pollInterval)),
		backoff.WithMaxTries(s.maxAttempts),
	)

	s.mu.Lock()
	s.pollChecks = checks
	s.mu.Unlock()

	if err == nil {
		s.logger.Info("database ready", "attempts", checks)
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return NewDockerError("WaitForDatabase", "container", dbID, "wait interrupted", ctxErr)
	}
	return NewDockerError("WaitForDatabase", "container", dbID,
		fmt.Sprintf("not running after %d attempts: %v", checks, err), ErrReadinessTimeout)
}

func (s *Stack) createNetwork(ctx context.Context, networkName string) (string, error) {
	networkID, err := s.docker.CreateNetwork(ctx, NetworkSpec{
		Name:   networkName,
		Driver: "bridge",
		Labels: s.labels(""),
	})
	if err != nil {
		if errors.Is(err, ErrNetworkAlreadyExists) {
			s.logger.Debug("network already exists, reusing", "network_name", networkName)
			// Docker accepts the name wherever an ID is expected.
			return networkName, nil
		}
		return "", err
	}
	return networkID, nil
}

// ensureImage pulls a missing image. Failures are logged and creation is
// attempted anyway; the create call reports the real problem.
func (s *Stack) ensureImage(ctx context.Context, image string) {
	exists, _ := s.docker.ImageExists(ctx, image)
	if exists {
		return
	}
	s.logger.Info("pulling image", "image", image)
	if err := s.docker.PullImage(ctx, image, PullOptions{}); err != nil {
		s.logger.Warn("failed to pull image, trying anyway", "image", image, "error", err)
	}
}

func (s *Stack) databaseSpec(networkName string) ContainerSpec {
	return ContainerSpec{
		Name:   simplet.ContainerName(s.name, simplet.RoleDatabase),
		Image:  DatabaseImage,
		Env:    simplet.DatabaseEnvironment(s.env),
		Labels: s.labels(simplet.RoleDatabase),
		Volumes: []VolumeMount{
			{Source: simplet.VolumeName(s.name, databaseVolume), Target: databaseMount},
		},
		Networks: []string{networkName},
		NetworkAliases: map[string][]string{
			networkName: {s.kind.DatabaseHost()},
		},
	}
}

func (s *Stack) appSpec(networkName string) ContainerSpec {
	return ContainerSpec{
		Name:   simplet.ContainerName(s.name, simplet.RoleApp),
		Image:  s.kind.Image(),
		Env:    simplet.AppEnvironment(s.kind, s.env),
		Labels: s.labels(simplet.RoleApp),
		Ports: []PortBinding{
			{ContainerPort: simplet.APIPort, Protocol: "tcp"},
		},
		Volumes: []VolumeMount{
			{Source: simplet.VolumeName(s.name, appVolume), Target: appMount},
		},
		Networks: []string{networkName},
	}
}

func (s *Stack) labels(role string) map[string]string {
	labels := map[string]string{
		LabelManaged:  "true",
		LabelStack:    s.name,
		LabelService:  string(s.kind),
		LabelIdentity: s.identity,
	}
	if role != "" {
		labels[LabelRole] = role
	}
	return labels
}

// rollbackCreated force-removes everything a failed start created. Anything
// that could not be removed stays tracked so Cleanup can retry it.
func (s *Stack) rollbackCreated(ctx context.Context) {
	s.mu.Lock()
	appID, dbID, networkID := s.appID, s.databaseID, s.networkID
	s.mu.Unlock()

	remove := func(id string) string {
		if id == "" {
			return ""
		}
		if err := s.docker.RemoveContainer(ctx, id, RemoveOptions{Force: true}); err != nil {
			s.logger.Warn("rollback: failed to remove container", "container_id", shortID(id), "error", err)
			return id
		}
		return ""
	}
	appID = remove(appID)
	dbID = remove(dbID)

	// The network cannot go while a container is still attached.
	if networkID != "" && appID == "" && dbID == "" {
		if err := s.docker.RemoveNetwork(ctx, networkID); err != nil {
			s.logger.Warn("rollback: failed to remove network", "network", networkID, "error", err)
		} else {
			networkID = ""
		}
	}

	s.mu.Lock()
	s.appID, s.databaseID, s.networkID = appID, dbID, networkID
	s.mu.Unlock()
}

// =============================================================================
// Stop / Cleanup
// =============================================================================

// Stop stops the application container, then the database container.
func (s *Stack) Stop(ctx context.Context) error {
	if err := s.check(domain.StatusStopped); err != nil {
		return err
	}

	s.mu.Lock()
	appID, dbID := s.appID, s.databaseID
	s.mu.Unlock()

	s.logger.Info("stopping stack")
	timeout := stopTimeout
	for _, id := range []string{appID, dbID} {
		if id == "" {
			continue
		}
		if err := s.docker.StopContainer(ctx, id, &timeout); err != nil {
			return err
		}
		s.logger.Debug("stopped container", "container_id", shortID(id))
	}

	s.setStatus(domain.StatusStopped)
	return nil
}

// Cleanup force-removes the application container, the database container
// and the network. A successful Cleanup consumes the stack.
func (s *Stack) Cleanup(ctx context.Context) error {
	if err := s.check(domain.StatusRemoved); err != nil {
		return err
	}

	s.mu.Lock()
	appID, dbID, networkID := s.appID, s.databaseID, s.networkID
	s.mu.Unlock()

	s.logger.Info("removing stack")
	for _, id := range []string{appID, dbID} {
		if id == "" {
			continue
		}
		if err := s.docker.RemoveContainer(ctx, id, RemoveOptions{Force: true}); err != nil {
			return err
		}
		s.logger.Debug("removed container", "container_id", shortID(id))
	}
	if networkID != "" {
		if err := s.docker.RemoveNetwork(ctx, networkID); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.status = domain.StatusRemoved
	s.appID, s.databaseID, s.networkID = "", "", ""
	s.mu.Unlock()
	return nil
}

// =============================================================================
// State Helpers
// =============================================================================

func (s *Stack) check(to domain.DeploymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validate(to)
}

func (s *Stack) transition(to domain.DeploymentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.validate(to); err != nil {
		return err
	}
	s.status = to
	return nil
}

func (s *Stack) validate(to domain.DeploymentStatus) error {
	if s.status == domain.StatusRemoved {
		return ErrStackRemoved
	}
	if err := domain.ValidateTransition(s.status, to); err != nil {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidState, s.status, to)
	}
	return nil
}

func (s *Stack) setStatus(status domain.DeploymentStatus) {
	s.mu.Lock()
	s.status = status
	s.mu.Unlock()
}

// shortID truncates a container ID for logging.
func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
