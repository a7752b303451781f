package holder_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/holder"
	"github.com/ginta1337/porto/property"
)

func newTestHolder() *holder.Holder {
	reg := property.NewRegistry()
	return holder.New("porto", reg, 0, 0, holder.Collaborators{})
}

func TestNewHasRootContainer(t *testing.T) {
	h := newTestHolder()
	root, ok := h.Lookup("porto")
	require.True(t, ok)
	assert.True(t, root.PortoEnabled)
	assert.Equal(t, "porto", h.RootName())
}

func TestCreateUnderRoot(t *testing.T) {
	h := newTestHolder()
	c, err := h.Create("a", "")
	require.NoError(t, err)
	assert.Equal(t, "porto/a", c.Name)

	got, ok := h.Lookup("porto/a")
	require.True(t, ok)
	assert.Same(t, c, got)
}

func TestCreateDuplicateRejected(t *testing.T) {
	h := newTestHolder()
	_, err := h.Create("a", "")
	require.NoError(t, err)

	_, err = h.Create("a", "")
	assert.Error(t, err)
}

func TestCreateMissingParentRejected(t *testing.T) {
	h := newTestHolder()
	_, err := h.Create("a", "ghost")
	assert.Error(t, err)
}

func TestCreateUnderDisabledPortoParentRejected(t *testing.T) {
	h := newTestHolder()
	parent, err := h.Create("a", "")
	require.NoError(t, err)
	parent.PortoEnabled = false

	_, err = h.Create("b", "a")
	assert.Error(t, err)
}

func TestChildrenReturnsDirectChildrenOnly(t *testing.T) {
	h := newTestHolder()
	_, err := h.Create("a", "")
	require.NoError(t, err)
	_, err = h.Create("b", "a")
	require.NoError(t, err)

	children := h.Children("porto")
	require.Len(t, children, 1)
	assert.Equal(t, "porto/a", children[0].Name)
}

func TestDestroyRemovesSubtree(t *testing.T) {
	h := newTestHolder()
	a, err := h.Create("a", "")
	require.NoError(t, err)
	a.PortoEnabled = true
	_, err = h.Create("b", "a")
	require.NoError(t, err)

	require.NoError(t, h.Destroy("a"))

	_, ok := h.Lookup("porto/a")
	assert.False(t, ok)
	_, ok = h.Lookup("porto/a/b")
	assert.False(t, ok)
}

func TestDestroyRootRejected(t *testing.T) {
	h := newTestHolder()
	assert.Error(t, h.Destroy(""))
}

func TestDestroyMissingRejected(t *testing.T) {
	h := newTestHolder()
	assert.Error(t, h.Destroy("ghost"))
}

func TestAgingSweepDestroysExpiredDeadContainers(t *testing.T) {
	h := newTestHolder()
	c, err := h.Create("a", "")
	require.NoError(t, err)
	require.NoError(t, c.Transition(domain.StateRunning))
	require.NoError(t, c.Transition(domain.StateDead))

	now := time.Now()
	c.DeathTime = now.Add(-1 * time.Hour).UnixMilli()
	c.AgingTime = 1 // seconds

	h.AgingSweep(now)

	_, ok := h.Lookup("porto/a")
	assert.False(t, ok)
}

func TestAgingSweepLeavesFreshDeadContainers(t *testing.T) {
	h := newTestHolder()
	c, err := h.Create("a", "")
	require.NoError(t, err)
	require.NoError(t, c.Transition(domain.StateRunning))
	require.NoError(t, c.Transition(domain.StateDead))

	now := time.Now()
	c.DeathTime = now.UnixMilli()
	c.AgingTime = 3600

	h.AgingSweep(now)

	_, ok := h.Lookup("porto/a")
	assert.True(t, ok)
}

func TestAgingSweepNeverTouchesRoot(t *testing.T) {
	h := newTestHolder()
	h.AgingSweep(time.Now())
	_, ok := h.Lookup("porto")
	assert.True(t, ok)
}
