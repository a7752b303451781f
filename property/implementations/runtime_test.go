package implementations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/property"
)

func newRuntimeRegistry() *property.Registry {
	reg := property.NewRegistry()
	registerRuntime(reg)
	return reg
}

func TestCommandSetRejectedWhenRunning(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	require.NoError(t, c.Transition(domain.StateRunning))

	ctx := &property.OpContext{Host: h}
	assert.Error(t, reg.Set(ctx, c, "command", "/bin/true"))
}

func TestCwdMustBeAbsolute(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)

	ctx := &property.OpContext{Host: h}
	assert.Error(t, reg.Set(ctx, c, "cwd", "relative/path"))
	require.NoError(t, reg.Set(ctx, c, "cwd", "/abs/path"))
	assert.Equal(t, "/abs/path", c.Cwd)
}

func TestRootReadOnlyBoolRoundTrip(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)

	ctx := &property.OpContext{Host: h}
	require.NoError(t, reg.Set(ctx, c, "root_readonly", "true"))
	v, err := reg.Get(ctx, c, "root_readonly")
	require.NoError(t, err)
	assert.Equal(t, "true", v)
}

func TestEnvSetAndGetIndexed(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)

	ctx := &property.OpContext{Host: h}
	require.NoError(t, reg.Set(ctx, c, "env", "FOO=bar;BAZ=qux"))

	v, err := reg.GetIndexed(ctx, c, "env", "FOO")
	require.NoError(t, err)
	assert.Equal(t, "bar", v)

	_, err = reg.GetIndexed(ctx, c, "env", "GHOST")
	assert.Error(t, err)
}

func TestEnvSetIndexedAddsOrUpdates(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	require.NoError(t, reg.SetIndexed(ctx, c, "env", "FOO", "1"))
	require.NoError(t, reg.SetIndexed(ctx, c, "env", "FOO", "2"))
	require.Len(t, c.Env, 1)
	assert.Equal(t, "2", c.Env[0].Value)
}

func TestEnvMalformedEntryRejected(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	assert.Error(t, reg.Set(ctx, c, "env", "NOEQUALSSIGN"))
}

func TestBindMountRoundTrip(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	require.NoError(t, reg.Set(ctx, c, "bind", "/src /dst ro; /a /b"))
	require.Len(t, c.Bind, 2)
	assert.True(t, c.Bind[0].ReadOnly)
	assert.False(t, c.Bind[1].ReadOnly)

	v, err := reg.Get(ctx, c, "bind")
	require.NoError(t, err)
	assert.Equal(t, "/src /dst ro; /a /b", v)
}

func TestBindMountMalformedEntryRejected(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	assert.Error(t, reg.Set(ctx, c, "bind", "/onlyone"))
	assert.Error(t, reg.Set(ctx, c, "bind", "/src /dst badflag"))
}

func TestDevicesRoundTrip(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	require.NoError(t, reg.Set(ctx, c, "devices", "/dev/null c 1:3 rwm"))
	require.Len(t, c.Devices, 1)
	assert.Equal(t, int64(1), c.Devices[0].Major)
	assert.Equal(t, int64(3), c.Devices[0].Minor)

	v, err := reg.Get(ctx, c, "devices")
	require.NoError(t, err)
	assert.Equal(t, "/dev/null c 1:3 rwm", v)
}

func TestDevicesInvalidTypeRejected(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	assert.Error(t, reg.Set(ctx, c, "devices", "/dev/null x 1:3 rwm"))
}

func TestUlimitSetIndexedAndGetIndexed(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	require.NoError(t, reg.SetIndexed(ctx, c, "ulimit", "nofile", "1024 2048"))
	v, err := reg.GetIndexed(ctx, c, "ulimit", "nofile")
	require.NoError(t, err)
	assert.Equal(t, "1024 2048", v)
}

func TestUlimitUnknownResourceRejected(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	assert.Error(t, reg.SetIndexed(ctx, c, "ulimit", "bogus", "1 2"))
}

func TestUlimitUnlimitedSentinel(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	require.NoError(t, reg.Set(ctx, c, "ulimit", "nofile: unlim unlim"))
	v, err := reg.Get(ctx, c, "ulimit")
	require.NoError(t, err)
	assert.Equal(t, "nofile: unlim unlim", v)
}

func TestStdoutGateRequiresRunning(t *testing.T) {
	reg := newRuntimeRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	ctx := &property.OpContext{Host: h}

	_, err := reg.Get(ctx, c, "stdout")
	assert.Error(t, err)
}
