package docker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/artpar/simplets/internal/core/domain"
	"github.com/artpar/simplets/internal/core/simplet"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

func newTestStack(cli Client, b simplet.Builder, rollback bool) *Stack {
	id, _ := b.UniqueID()
	s := NewStack(cli, b.Env(), b.Kind(), id, StackOptions{
		Instance:          "t3st",
		RollbackOnFailure: rollback,
		Logger:            testLogger,
	})
	s.pollInterval = time.Millisecond
	return s
}

func notRunning(n int) []inspectResult {
	states := make([]inspectResult, n)
	for i := range states {
		states[i] = inspectResult{status: ContainerStatusCreated}
	}
	return states
}

// =============================================================================
// Start Tests
// =============================================================================

func TestStack_Start_Ordering(t *testing.T) {
	cli := newFakeClient()
	cli.dbStates = append(notRunning(2), inspectResult{status: ContainerStatusRunning})
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)

	require.NoError(t, s.Start(context.Background()))

	assert.Equal(t, []string{
		"create-network " + simplet.NetworkName(s.Name()),
		"pull mysql:8.0",
		"create mysql",
		"start mysql",
		"inspect mysql",
		"inspect mysql",
		"inspect mysql",
		"pull ps-poa:latest",
		"create app",
		"start app",
		"inspect app",
	}, cli.Calls())

	info := s.Info()
	assert.Equal(t, domain.StatusRunning, info.Status)
	assert.Equal(t, 3, info.ReadinessAttempts)
	assert.Equal(t, "id-mysql", info.DatabaseContainerID)
	assert.Equal(t, "id-app", info.AppContainerID)
	assert.Equal(t, "net-id", info.NetworkID)
	require.Len(t, info.AppPorts, 1)
	assert.Equal(t, 49153, info.AppPorts[0].HostPort)
}

func TestStack_Start_SkipsPullForLocalImages(t *testing.T) {
	cli := newFakeClient()
	cli.images[DatabaseImage] = true
	cli.images["ps-poa:latest"] = true
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)

	require.NoError(t, s.Start(context.Background()))
	assert.Empty(t, cli.CallsWithPrefix("pull"))
}

func TestStack_Start_PullFailureStillCreates(t *testing.T) {
	cli := newFakeClient()
	cli.pullErr = ErrImagePullFailed
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)

	require.NoError(t, s.Start(context.Background()))
	assert.Len(t, cli.CallsWithPrefix("create "), 2)
}

func TestStack_Start_ContainerSpecs(t *testing.T) {
	cli := newFakeClient()
	b := simplet.NewProofOfAttendance().
		AppURL("https://poa.example.com").
		MySQLPassword("s3cret").
		MySQLDB("events").
		AdminWallet("0xabc")
	s := newTestStack(cli, b, false)

	require.NoError(t, s.Start(context.Background()))

	network := simplet.NetworkName(s.Name())

	db, ok := cli.SpecFor(simplet.RoleDatabase)
	require.True(t, ok)
	assert.Equal(t, DatabaseImage, db.Image)
	assert.Equal(t, simplet.ContainerName(s.Name(), simplet.RoleDatabase), db.Name)
	assert.Equal(t, "s3cret", db.Env[simplet.EnvMySQLRootPassword])
	assert.Equal(t, "events", db.Env[simplet.EnvMySQLDatabase])
	assert.Equal(t, []string{"poa_db"}, db.NetworkAliases[network])
	assert.Equal(t, []string{network}, db.Networks)
	require.Len(t, db.Volumes, 1)
	assert.Equal(t, "/var/lib/mysql", db.Volumes[0].Target)
	assert.Equal(t, "true", db.Labels[LabelManaged])
	assert.Equal(t, s.Info().Identity, db.Labels[LabelIdentity])

	app, ok := cli.SpecFor(simplet.RoleApp)
	require.True(t, ok)
	assert.Equal(t, "ps-poa:latest", app.Image)
	assert.Equal(t, "poa_db", app.Env[simplet.EnvMySQLHost])
	assert.Equal(t, "https://poa.example.com", app.Env[simplet.EnvAppURL])
	assert.Equal(t, "secret", app.Env[simplet.EnvAppSecret])
	assert.Equal(t, "0xabc", app.Env[simplet.EnvAdminWallet])
	assert.Equal(t, "production", app.Env[simplet.EnvAppEnv])
	assert.NotContains(t, app.Env, simplet.EnvCollectionUUID)
	require.Len(t, app.Ports, 1)
	assert.Equal(t, simplet.APIPort, app.Ports[0].ContainerPort)
	assert.Zero(t, app.Ports[0].HostPort)
}

func TestStack_Start_EmailAirdropWiring(t *testing.T) {
	cli := newFakeClient()
	b := simplet.NewEmailAirdrop().
		CollectionUUID("c-123").
		SMTP(simplet.SmtpConfig{Host: "smtp.example.com", Port: "587"})
	s := newTestStack(cli, b, false)

	require.NoError(t, s.Start(context.Background()))

	app, ok := cli.SpecFor(simplet.RoleApp)
	require.True(t, ok)
	assert.Equal(t, "ps-email-airdrop:latest", app.Image)
	assert.Equal(t, "airdrop_db", app.Env[simplet.EnvMySQLHost])
	assert.Equal(t, "c-123", app.Env[simplet.EnvCollectionUUID])
	assert.Equal(t, "smtp.example.com", app.Env[simplet.EnvSMTPHost])

	db, _ := cli.SpecFor(simplet.RoleDatabase)
	assert.Equal(t, []string{"airdrop_db"}, db.NetworkAliases[simplet.NetworkName(s.Name())])
}

func TestStack_Start_ReusesExistingNetwork(t *testing.T) {
	cli := newFakeClient()
	cli.networkErr = NewDockerError("CreateNetwork", "network", "n", "exists", ErrNetworkAlreadyExists)
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, simplet.NetworkName(s.Name()), s.Info().NetworkID)
}

// =============================================================================
// Readiness Tests
// =============================================================================

func TestStack_Start_ReadinessTimeout(t *testing.T) {
	cli := newFakeClient()
	cli.dbStates = notRunning(1)
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)

	err := s.Start(context.Background())

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrReadinessTimeout)
	assert.True(t, IsTimeout(err))
	assert.Len(t, cli.CallsWithPrefix("inspect mysql"), readinessAttempts)
	assert.Empty(t, cli.CallsWithPrefix("create app"))
	assert.Equal(t, domain.StatusFailed, s.Status())
	assert.Equal(t, readinessAttempts, s.Info().ReadinessAttempts)
}

func TestStack_Start_ReadyOnLastAttempt(t *testing.T) {
	cli := newFakeClient()
	cli.dbStates = append(notRunning(readinessAttempts-1), inspectResult{status: ContainerStatusRunning})
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, readinessAttempts, s.Info().ReadinessAttempts)
}

func TestStack_Start_InspectErrorsConsumeAttempts(t *testing.T) {
	cli := newFakeClient()
	inspectErr := NewDockerError("InspectContainer", "container", "id-mysql", "transient", errors.New("eof"))
	cli.dbStates = []inspectResult{
		{err: inspectErr},
		{err: inspectErr},
		{status: ContainerStatusRunning},
	}
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)

	require.NoError(t, s.Start(context.Background()))
	assert.Equal(t, 3, s.Info().ReadinessAttempts)
}

func TestStack_Start_ContextCancelledDuringWait(t *testing.T) {
	cli := newFakeClient()
	cli.dbStates = notRunning(1)
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)
	s.pollInterval = 5 * time.Minute

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := s.Start(ctx)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, IsTimeout(err))
	assert.Equal(t, domain.StatusFailed, s.Status())
}

// =============================================================================
// Failure + Rollback Tests
// =============================================================================

func TestStack_Start_DatabaseCreateFails(t *testing.T) {
	cli := newFakeClient()
	cli.createErr[simplet.RoleDatabase] = NewDockerError("CreateContainer", "container", "db", "conflict", ErrContainerAlreadyExists)
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)

	err := s.Start(context.Background())

	assert.ErrorIs(t, err, ErrContainerAlreadyExists)
	assert.Empty(t, cli.CallsWithPrefix("inspect"))
	assert.Equal(t, domain.StatusFailed, s.Status())
}

func TestStack_Start_NoRollbackKeepsContainers(t *testing.T) {
	cli := newFakeClient()
	cli.dbStates = notRunning(1)
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)

	require.Error(t, s.Start(context.Background()))

	assert.Empty(t, cli.CallsWithPrefix("remove"))
	assert.Equal(t, "id-mysql", s.Info().DatabaseContainerID)
}

func TestStack_Start_RollbackRemovesCreated(t *testing.T) {
	cli := newFakeClient()
	cli.startErr[simplet.RoleApp] = errors.New("boom")
	s := newTestStack(cli, simplet.NewProofOfAttendance(), true)

	require.Error(t, s.Start(context.Background()))

	assert.Equal(t, []string{"remove app", "remove mysql", "remove-network net-id"}, cli.CallsWithPrefix("remove"))
	info := s.Info()
	assert.Equal(t, domain.StatusFailed, info.Status)
	assert.Empty(t, info.AppContainerID)
	assert.Empty(t, info.DatabaseContainerID)
	assert.Empty(t, info.NetworkID)
}

func TestStack_Start_RollbackAfterTimeoutSkipsMissingApp(t *testing.T) {
	cli := newFakeClient()
	cli.dbStates = notRunning(1)
	s := newTestStack(cli, simplet.NewProofOfAttendance(), true)

	require.Error(t, s.Start(context.Background()))
	assert.Equal(t, []string{"remove mysql", "remove-network net-id"}, cli.CallsWithPrefix("remove"))
}

func TestStack_Start_FailedStackCanBeCleanedUp(t *testing.T) {
	cli := newFakeClient()
	cli.dbStates = notRunning(1)
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)

	require.Error(t, s.Start(context.Background()))
	require.True(t, s.holdsResources())

	require.NoError(t, s.Cleanup(context.Background()))
	assert.Equal(t, []string{"remove mysql", "remove-network net-id"}, cli.CallsWithPrefix("remove"))
	assert.Equal(t, domain.StatusRemoved, s.Status())
	assert.False(t, s.holdsResources())
}

func TestStack_Start_RollbackKeepsWhatItCouldNotRemove(t *testing.T) {
	cli := newFakeClient()
	cli.dbStates = notRunning(1)
	cli.removeErr[simplet.RoleDatabase] = errors.New("device busy")
	s := newTestStack(cli, simplet.NewProofOfAttendance(), true)

	require.Error(t, s.Start(context.Background()))

	// The network stays while the database container is attached to it.
	assert.Equal(t, []string{"remove mysql"}, cli.CallsWithPrefix("remove"))
	info := s.Info()
	assert.Equal(t, "id-mysql", info.DatabaseContainerID)
	assert.Equal(t, "net-id", info.NetworkID)

	cli.mu.Lock()
	delete(cli.removeErr, simplet.RoleDatabase)
	cli.mu.Unlock()

	require.NoError(t, s.Cleanup(context.Background()))
	assert.Equal(t, []string{"remove mysql", "remove mysql", "remove-network net-id"}, cli.CallsWithPrefix("remove"))
}

func TestNewStack_ReadinessDefaults(t *testing.T) {
	s := NewStack(newFakeClient(), nil, simplet.KindProofOfAttendance, "abc", StackOptions{Instance: "t3st"})

	assert.Equal(t, 2*time.Second, s.pollInterval)
	assert.Equal(t, uint(30), s.maxAttempts)
	assert.Equal(t, domain.StatusCreated, s.Status())
}

func TestStack_Start_Twice(t *testing.T) {
	cli := newFakeClient()
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)
	require.NoError(t, s.Start(context.Background()))

	err := s.Start(context.Background())
	assert.ErrorIs(t, err, ErrInvalidState)
}

// =============================================================================
// Stop Tests
// =============================================================================

func TestStack_Stop_AppBeforeDatabase(t *testing.T) {
	cli := newFakeClient()
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, []string{"stop app", "stop mysql"}, cli.CallsWithPrefix("stop"))
	assert.Equal(t, domain.StatusStopped, s.Status())

	// Stopping a stopped stack is allowed.
	require.NoError(t, s.Stop(context.Background()))
}

func TestStack_Stop_HaltsAtFirstError(t *testing.T) {
	cli := newFakeClient()
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)
	require.NoError(t, s.Start(context.Background()))
	cli.stopErr[simplet.RoleApp] = NewDockerError("StopContainer", "container", "id-app", "gone", ErrContainerNotFound)

	err := s.Stop(context.Background())

	assert.ErrorIs(t, err, ErrContainerNotFound)
	assert.Equal(t, []string{"stop app"}, cli.CallsWithPrefix("stop"))
	assert.Equal(t, domain.StatusRunning, s.Status())
}

func TestStack_Stop_FailedStackWithoutApp(t *testing.T) {
	cli := newFakeClient()
	cli.dbStates = notRunning(1)
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)
	require.Error(t, s.Start(context.Background()))

	require.NoError(t, s.Stop(context.Background()))
	assert.Equal(t, []string{"stop mysql"}, cli.CallsWithPrefix("stop"))
}

func TestStack_Stop_BeforeStart(t *testing.T) {
	s := newTestStack(newFakeClient(), simplet.NewProofOfAttendance(), false)

	assert.ErrorIs(t, s.Stop(context.Background()), ErrInvalidState)
}

// =============================================================================
// Cleanup Tests
// =============================================================================

func TestStack_Cleanup_RemovesEverything(t *testing.T) {
	cli := newFakeClient()
	s := newTestStack(cli, simplet.NewEmailAirdrop(), false)
	require.NoError(t, s.Start(context.Background()))

	require.NoError(t, s.Cleanup(context.Background()))

	assert.Equal(t, []string{"remove app", "remove mysql", "remove-network net-id"}, cli.CallsWithPrefix("remove"))
	info := s.Info()
	assert.Equal(t, domain.StatusRemoved, info.Status)
	assert.Empty(t, info.AppContainerID)
}

func TestStack_Cleanup_ConsumesStack(t *testing.T) {
	cli := newFakeClient()
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Cleanup(context.Background()))

	assert.ErrorIs(t, s.Cleanup(context.Background()), ErrStackRemoved)
	assert.ErrorIs(t, s.Stop(context.Background()), ErrStackRemoved)
	assert.Len(t, cli.CallsWithPrefix("remove app"), 1)
}

func TestStack_Cleanup_HaltsAtFirstError(t *testing.T) {
	cli := newFakeClient()
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)
	require.NoError(t, s.Start(context.Background()))
	cli.removeErr[simplet.RoleDatabase] = errors.New("device busy")

	err := s.Cleanup(context.Background())

	require.Error(t, err)
	assert.Equal(t, []string{"remove app", "remove mysql"}, cli.CallsWithPrefix("remove"))
	assert.NotEqual(t, domain.StatusRemoved, s.Status())
}

func TestStack_Cleanup_AfterStop(t *testing.T) {
	cli := newFakeClient()
	s := newTestStack(cli, simplet.NewProofOfAttendance(), false)
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	require.NoError(t, s.Cleanup(context.Background()))
	assert.Equal(t, domain.StatusRemoved, s.Status())
}

// =============================================================================
// Naming Tests
// =============================================================================

func TestStack_NameCarriesInstance(t *testing.T) {
	b := simplet.NewProofOfAttendance()
	id, err := b.UniqueID()
	require.NoError(t, err)

	a := NewStack(newFakeClient(), b.Env(), b.Kind(), id, StackOptions{Instance: "aaaa"})
	c := NewStack(newFakeClient(), b.Env(), b.Kind(), id, StackOptions{Instance: "bbbb"})

	assert.NotEqual(t, a.Name(), c.Name())
	assert.True(t, strings.HasPrefix(a.Name(), "simplet_proof_of_attendance_"+id[:12]))
	assert.Equal(t, simplet.KindProofOfAttendance, a.Kind())
	assert.Equal(t, domain.StatusCreated, a.Status())
}
