package container_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
)

func TestNewStartsStopped(t *testing.T) {
	c := container.New("porto/a", "porto")
	assert.Equal(t, domain.StateStopped, c.State())
	assert.Equal(t, -1, c.MaxRespawns)
	assert.Equal(t, 10, c.AgingTime)
}

func TestAbsoluteName(t *testing.T) {
	assert.Equal(t, "porto", container.AbsoluteName("porto", ""))
	assert.Equal(t, "porto", container.AbsoluteName("porto", "porto"))
	assert.Equal(t, "porto/a", container.AbsoluteName("porto", "a"))
}

func TestTransitionLegalAndIllegal(t *testing.T) {
	c := container.New("porto/a", "porto")
	require.NoError(t, c.Transition(domain.StateRunning))
	assert.Equal(t, domain.StateRunning, c.State())

	err := c.Transition(domain.StateStopped)
	require.Error(t, err)

	require.NoError(t, c.Transition(domain.StateDead))
	require.NoError(t, c.Transition(domain.StateStopped))
}

func TestTransitionNoopSameState(t *testing.T) {
	c := container.New("porto/a", "porto")
	require.NoError(t, c.Transition(domain.StateStopped))
	assert.Equal(t, domain.StateStopped, c.State())
}

func TestUptimeRunningVsDead(t *testing.T) {
	c := container.New("porto/a", "porto")
	now := time.Now()
	c.StartTime = now.Add(-5 * time.Second).UnixMilli()

	require.NoError(t, c.Transition(domain.StateRunning))
	up := c.Uptime(now)
	assert.InDelta(t, 5*time.Second, up, float64(50*time.Millisecond))

	c.DeathTime = now.Add(-2 * time.Second).UnixMilli()
	require.NoError(t, c.Transition(domain.StateDead))
	dead := c.Uptime(now)
	assert.InDelta(t, 3*time.Second, dead, float64(50*time.Millisecond))
}

func TestUptimeZeroWhenNeverStarted(t *testing.T) {
	c := container.New("porto/a", "porto")
	assert.Equal(t, time.Duration(0), c.Uptime(time.Now()))
}

func TestDeadForOnlyWhenDead(t *testing.T) {
	c := container.New("porto/a", "porto")
	now := time.Now()
	assert.Equal(t, time.Duration(0), c.DeadFor(now))

	c.DeathTime = now.Add(-10 * time.Second).UnixMilli()
	require.NoError(t, c.Transition(domain.StateDead))
	assert.InDelta(t, 10*time.Second, c.DeadFor(now), float64(50*time.Millisecond))
}

func TestGates(t *testing.T) {
	assert.NoError(t, container.GateStoppedOnly(domain.StateStopped))
	assert.NoError(t, container.GateStoppedOnly(domain.StateUnknown))
	assert.Error(t, container.GateStoppedOnly(domain.StateRunning))
	assert.Error(t, container.GateStoppedOnly(domain.StateDead))

	assert.NoError(t, container.GateAlive(domain.StateRunning))
	assert.Error(t, container.GateAlive(domain.StateDead))

	assert.NoError(t, container.GateDeadOnly(domain.StateDead))
	assert.Error(t, container.GateDeadOnly(domain.StateRunning))

	assert.Error(t, container.GateRunningReadable(domain.StateStopped))
	assert.NoError(t, container.GateRunningReadable(domain.StateRunning))
}

func TestIsRuntimeImmutableAndRejecting(t *testing.T) {
	assert.True(t, container.IsRuntimeImmutable(domain.StateRunning))
	assert.True(t, container.IsRuntimeImmutable(domain.StateMeta))
	assert.True(t, container.IsRuntimeImmutable(domain.StatePaused))
	assert.False(t, container.IsRuntimeImmutable(domain.StateStopped))

	assert.True(t, container.IsRuntimeRejecting(domain.StateDead))
	assert.True(t, container.IsRuntimeRejecting(domain.StateStopped))
	assert.False(t, container.IsRuntimeRejecting(domain.StateRunning))
}
