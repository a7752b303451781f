package implementations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/property"
)

func newLifecycleRegistry() *property.Registry {
	reg := property.NewRegistry()
	registerLifecycle(reg)
	registerRuntime(reg)
	registerIdentity(reg)
	return reg
}

func TestVirtModeOSBackfillAppliesDefaultsOnlyWhenUnset(t *testing.T) {
	reg := newLifecycleRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto", "")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	// cwd was explicitly set before switching virt_mode; backfill must not
	// clobber it.
	require.NoError(t, reg.Set(ctx, c, "cwd", "/custom"))

	require.NoError(t, reg.Set(ctx, c, "virt_mode", "os"))

	assert.Equal(t, "/custom", c.Cwd, "explicitly-set cwd survives the OS backfill")
	assert.Equal(t, "/sbin/init", c.Command, "command was never set, so the backfill default applies")
	assert.Equal(t, "/dev/null", c.StdoutPath)
}

func TestVirtModeOSBackfillDoesNotMarkPropMask(t *testing.T) {
	reg := newLifecycleRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto", "")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	require.NoError(t, reg.Set(ctx, c, "virt_mode", "os"))

	commandHandler, _ := reg.Lookup("command")
	assert.False(t, c.PropMask.Has(commandHandler.SetMask),
		"backfilled values must stay marked as inherited, not explicit")
}

func TestVirtModeOSBackfillGrantsPermittedCapsNotAllCaps(t *testing.T) {
	reg := newLifecycleRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto", "")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	require.NoError(t, reg.Set(ctx, c, "virt_mode", "os"))

	assert.True(t, c.Capabilities.Has("CHOWN"), "OS backfill grants the restricted PermittedCaps set")
	assert.False(t, c.Capabilities.Has("SYS_ADMIN"), "AllCaps is tied to root ownership, not VirtMode by itself")
}

func TestVirtModeOSBackfillDoesNotOverrideExplicitCapabilities(t *testing.T) {
	reg := newLifecycleRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto", "")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	require.NoError(t, reg.Set(ctx, c, "capabilities", "NET_ADMIN"))
	require.NoError(t, reg.Set(ctx, c, "virt_mode", "os"))

	assert.True(t, c.Capabilities.Has("NET_ADMIN"))
	assert.Equal(t, 1, c.Capabilities.Len())
}

func TestVirtModeRejectedWhenRunning(t *testing.T) {
	reg := newLifecycleRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto", "")
	h.add(c)
	require.NoError(t, c.Transition(domain.StateRunning))

	ctx := &property.OpContext{Host: h}
	err := reg.Set(ctx, c, "virt_mode", "os")
	assert.Error(t, err)
}

func TestEnablePortoPropagationOnlyTurnsOff(t *testing.T) {
	reg := newLifecycleRegistry()
	h := newFakeHost("porto", newFakeMemory())
	root := container.New("porto", "")
	child := container.New("porto/a", "porto")
	root.PortoEnabled = true
	child.PortoEnabled = true
	h.add(root)
	h.add(child)
	ctx := &property.OpContext{Host: h}

	require.NoError(t, reg.Set(ctx, root, "enable_porto", "false"))
	assert.False(t, child.PortoEnabled, "propagation must be able to turn a subtree off")

	// re-enabling locally on root must not force the child back on (the
	// child's own explicit state, or lack of an enabling propagation path).
	require.NoError(t, reg.Set(ctx, root, "enable_porto", "true"))
	assert.False(t, child.PortoEnabled, "enable_porto propagation can turn a subtree off only, never re-enable it")
}

func TestEnablePortoCannotBeReenabledUnderDisabledParent(t *testing.T) {
	reg := newLifecycleRegistry()
	h := newFakeHost("porto", newFakeMemory())
	parent := container.New("porto/p", "porto")
	parent.PortoEnabled = false
	child := container.New("porto/p/c", "porto/p")
	h.add(parent)
	h.add(child)
	ctx := &property.OpContext{Host: h}

	err := reg.Set(ctx, child, "enable_porto", "true")
	assert.Error(t, err)
}

func TestPrivateHasItsOwnPropMaskBit(t *testing.T) {
	reg := newLifecycleRegistry()
	priv, ok := reg.Lookup("private")
	require.True(t, ok)

	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto", "")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	assert.False(t, c.PropMask.Has(priv.SetMask))
	require.NoError(t, reg.Set(ctx, c, "private", "x"))
	assert.True(t, c.PropMask.Has(priv.SetMask))
}

func TestPrivateValueTooLongRejected(t *testing.T) {
	reg := newLifecycleRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto", "")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	big := make([]byte, 4097)
	err := reg.Set(ctx, c, "private", string(big))
	assert.Error(t, err)
}

func TestStateReadOnly(t *testing.T) {
	reg := newLifecycleRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto", "")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	assert.Error(t, reg.Set(ctx, c, "state", "running"))
}
