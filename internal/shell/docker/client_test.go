package docker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Test Helpers
// =============================================================================

func skipIfNoDocker(t *testing.T) Client {
	t.Helper()
	cli, err := NewDockerClient(context.Background(), "")
	if err != nil {
		t.Skip("Docker not available:", err)
	}
	if err := cli.Ping(context.Background()); err != nil {
		cli.Close()
		t.Skip("Docker not reachable:", err)
	}
	return cli
}

func cleanupContainer(t *testing.T, cli Client, containerID string) {
	t.Helper()
	cli.RemoveContainer(context.Background(), containerID, RemoveOptions{Force: true, RemoveVolumes: true})
}

func cleanupNetwork(t *testing.T, cli Client, networkID string) {
	t.Helper()
	cli.RemoveNetwork(context.Background(), networkID)
}

// Test container name prefix to identify test containers
const testPrefix = "simplets-test-"

// A small image whose default command keeps running.
const longRunningImage = "nginx:alpine"

// =============================================================================
// Connection Tests
// =============================================================================

func TestPing_Success(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	assert.NoError(t, cli.Ping(context.Background()))
}

func TestNewDockerClient_ExplicitHost(t *testing.T) {
	cli, err := NewDockerClient(context.Background(), "tcp://127.0.0.1:1")
	require.NoError(t, err)
	defer cli.Close()

	err = cli.Ping(context.Background())
	assert.ErrorIs(t, err, ErrConnectionFailed)
}

// =============================================================================
// Container Tests
// =============================================================================

func TestCreateContainer_DuplicateName(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()
	require.NoError(t, cli.PullImage(ctx, "alpine:latest", PullOptions{}))

	spec := ContainerSpec{
		Name:  testPrefix + "duplicate",
		Image: "alpine:latest",
	}

	containerID, err := cli.CreateContainer(ctx, spec)
	require.NoError(t, err)
	defer cleanupContainer(t, cli, containerID)

	_, err = cli.CreateContainer(ctx, spec)
	assert.ErrorIs(t, err, ErrContainerAlreadyExists)
}

func TestContainerLifecycle(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()
	require.NoError(t, cli.PullImage(ctx, longRunningImage, PullOptions{}))

	containerID, err := cli.CreateContainer(ctx, ContainerSpec{
		Name:   testPrefix + "lifecycle",
		Image:  longRunningImage,
		Env:    map[string]string{"TEST_VAR": "test_value"},
		Labels: map[string]string{LabelManaged: "true"},
		Ports:  []PortBinding{{ContainerPort: 80, Protocol: "tcp"}},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, containerID)

	require.NoError(t, cli.StartContainer(ctx, containerID))

	info, err := cli.InspectContainer(ctx, containerID)
	require.NoError(t, err)
	assert.Equal(t, ContainerStatusRunning, info.Status)
	assert.Equal(t, "true", info.Labels[LabelManaged])
	require.NotEmpty(t, info.Ports)
	assert.Equal(t, 80, info.Ports[0].ContainerPort)
	assert.NotZero(t, info.Ports[0].HostPort)

	timeout := 5 * time.Second
	require.NoError(t, cli.StopContainer(ctx, containerID, &timeout))

	info, err = cli.InspectContainer(ctx, containerID)
	require.NoError(t, err)
	assert.Equal(t, ContainerStatusExited, info.Status)

	require.NoError(t, cli.RemoveContainer(ctx, containerID, RemoveOptions{Force: true}))
	_, err = cli.InspectContainer(ctx, containerID)
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

func TestContainerOperations_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	assert.ErrorIs(t, cli.StartContainer(ctx, "nonexistent-container-id"), ErrContainerNotFound)
	assert.ErrorIs(t, cli.StopContainer(ctx, "nonexistent-container-id", nil), ErrContainerNotFound)
	assert.ErrorIs(t, cli.RemoveContainer(ctx, "nonexistent-container-id", RemoveOptions{}), ErrContainerNotFound)
	_, err := cli.InspectContainer(ctx, "nonexistent-container-id")
	assert.ErrorIs(t, err, ErrContainerNotFound)
}

// =============================================================================
// Network Tests
// =============================================================================

func TestNetwork_AliasResolvesForPeers(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()
	require.NoError(t, cli.PullImage(ctx, longRunningImage, PullOptions{}))

	networkName := testPrefix + "net"
	networkID, err := cli.CreateNetwork(ctx, NetworkSpec{Name: networkName})
	require.NoError(t, err)
	defer cleanupNetwork(t, cli, networkID)

	_, err = cli.CreateNetwork(ctx, NetworkSpec{Name: networkName})
	assert.ErrorIs(t, err, ErrNetworkAlreadyExists)

	containerID, err := cli.CreateContainer(ctx, ContainerSpec{
		Name:           testPrefix + "aliased",
		Image:          longRunningImage,
		Networks:       []string{networkName},
		NetworkAliases: map[string][]string{networkName: {"poa_db"}},
	})
	require.NoError(t, err)
	defer cleanupContainer(t, cli, containerID)

	require.NoError(t, cli.StartContainer(ctx, containerID))
}

func TestRemoveNetwork_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	err := cli.RemoveNetwork(context.Background(), "nonexistent-network-id")
	assert.ErrorIs(t, err, ErrNetworkNotFound)
}

// =============================================================================
// Image Tests
// =============================================================================

func TestPullImage_NotFound(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()

	err := cli.PullImage(context.Background(), "nonexistent-image-12345:latest", PullOptions{})
	assert.ErrorIs(t, err, ErrImageNotFound)
}

func TestImageExists(t *testing.T) {
	cli := skipIfNoDocker(t)
	defer cli.Close()
	ctx := context.Background()

	require.NoError(t, cli.PullImage(ctx, "alpine:latest", PullOptions{}))

	exists, err := cli.ImageExists(ctx, "alpine:latest")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = cli.ImageExists(ctx, "nonexistent-image-12345:latest")
	require.NoError(t, err)
	assert.False(t, exists)
}

// =============================================================================
// Error Tests
// =============================================================================

func TestDockerError_Error(t *testing.T) {
	err := NewDockerError("CreateContainer", "container", "abc123", "failed to create", ErrContainerAlreadyExists)
	assert.Equal(t, "CreateContainer container abc123: failed to create", err.Error())

	err = NewDockerError("CreateNetwork", "network", "", "connection failed", ErrConnectionFailed)
	assert.Equal(t, "CreateNetwork network: connection failed", err.Error())

	err = NewDockerError("Ping", "", "", "connection refused", nil)
	assert.Equal(t, "Ping: connection refused", err.Error())
}

func TestDockerError_Unwrap(t *testing.T) {
	err := NewDockerError("CreateContainer", "container", "abc123", "already exists", ErrContainerAlreadyExists)
	assert.ErrorIs(t, err, ErrContainerAlreadyExists)
}

func TestIsTimeout(t *testing.T) {
	wrapped := NewDockerError("WaitForDatabase", "container", "db", "not running", ErrReadinessTimeout)

	assert.True(t, IsTimeout(wrapped))
	assert.True(t, IsTimeout(ErrTimeout))
	assert.ErrorIs(t, wrapped, ErrReadinessTimeout)
	assert.False(t, IsTimeout(ErrContainerNotFound))
	assert.False(t, IsTimeout(nil))
}
