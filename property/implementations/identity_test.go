package implementations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/property"
)

func newIdentityRegistry() *property.Registry {
	reg := property.NewRegistry()
	registerIdentity(reg)
	return reg
}

func TestUserSetDeniedForUnrelatedCredential(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	c.OwnerCred = domain.Credential{Uid: 42}
	h.add(c)

	stranger := domain.Credential{Uid: 7, Gid: 7}
	ctx := &property.OpContext{Host: h, Client: stranger}
	err := reg.Set(ctx, c, "user", "1000")
	assert.Error(t, err)
}

func TestUserSetPermittedForRoot(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	c.OwnerCred = domain.Credential{Uid: 42}
	h.add(c)

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}
	require.NoError(t, reg.Set(ctx, c, "user", "1000"))
	assert.Equal(t, uint32(1000), c.TaskCred.Uid)
	assert.Equal(t, uint32(1000), c.OwnerCred.Uid)
}

func TestUserSetRejectedWhenRunning(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	require.NoError(t, c.Transition(domain.StateRunning))

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}
	err := reg.Set(ctx, c, "user", "1000")
	assert.Error(t, err)
}

func TestUserSetToRootOwnerGrantsAllCaps(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	c.OwnerCred = domain.Credential{Uid: 1000}
	h.add(c)

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}
	require.NoError(t, reg.Set(ctx, c, "user", "0"))
	assert.True(t, c.Capabilities.Has("SYS_ADMIN"), "root owner implicitly gets every capability")
}

func TestUserSetToNonRootUnderVirtModeOSGrantsPermittedCaps(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	c.OwnerCred = domain.Credential{Uid: 0}
	c.VirtMode = domain.VirtModeOS
	h.add(c)

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}
	require.NoError(t, reg.Set(ctx, c, "user", "1000"))
	assert.True(t, c.Capabilities.Has("CHOWN"), "VirtMode=OS non-root owner gets the restricted PermittedCaps set")
	assert.False(t, c.Capabilities.Has("SYS_ADMIN"), "PermittedCaps must not include AllCaps-only capabilities")
}

func TestUserSetToNonRootWithoutVirtModeOSClearsCaps(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	c.OwnerCred = domain.Credential{Uid: 0}
	h.add(c)

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}
	require.NoError(t, reg.Set(ctx, c, "user", "1000"))
	assert.Equal(t, 0, c.Capabilities.Len())
}

func TestUserSetDoesNotOverrideExplicitCapabilities(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	c.OwnerCred = domain.Credential{Uid: 0}
	h.add(c)
	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}

	require.NoError(t, reg.Set(ctx, c, "capabilities", "NET_ADMIN"))
	require.NoError(t, reg.Set(ctx, c, "user", "1000"))
	assert.True(t, c.Capabilities.Has("NET_ADMIN"), "an explicit capabilities Set must survive a later owner change")
	assert.Equal(t, 1, c.Capabilities.Len())
}

func TestGroupSetPermittedForMatchingGid(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	c.OwnerCred = domain.Credential{Uid: 500, Gid: 500}
	h.add(c)

	acting := domain.Credential{Uid: 500, Gid: 500}
	ctx := &property.OpContext{Host: h, Client: acting}
	require.NoError(t, reg.Set(ctx, c, "group", "200"))
	assert.Equal(t, uint32(200), c.TaskCred.Gid)
}

func TestGroupSetUnknownValueRejected(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}
	err := reg.Set(ctx, c, "group", "not-a-real-group-name")
	assert.Error(t, err)
}

func TestOwnerUserReadOnly(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}
	assert.Error(t, reg.Set(ctx, c, "owner_user", "1000"))
}

func TestOwnerGroupReadOnly(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}
	assert.Error(t, reg.Set(ctx, c, "owner_group", "1000"))
}

func TestCapabilitiesSetDeniedForNonRoot(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 1000}}
	err := reg.Set(ctx, c, "capabilities", "NET_ADMIN")
	assert.Error(t, err)
}

func TestCapabilitiesSetPermittedForRoot(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}
	require.NoError(t, reg.Set(ctx, c, "capabilities", "NET_ADMIN; SYS_ADMIN"))
	assert.True(t, c.Capabilities.Has("NET_ADMIN"))
	assert.True(t, c.Capabilities.Has("SYS_ADMIN"))
}

func TestCapabilitiesSetRejectedWhenRunning(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)
	require.NoError(t, c.Transition(domain.StateRunning))

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}
	err := reg.Set(ctx, c, "capabilities", "NET_ADMIN")
	assert.Error(t, err)
}

func TestCapabilitiesSetUnknownNameRejected(t *testing.T) {
	reg := newIdentityRegistry()
	h := newFakeHost("porto", newFakeMemory())
	c := container.New("porto/a", "porto")
	h.add(c)

	ctx := &property.OpContext{Host: h, Client: domain.Credential{Uid: 0}}
	err := reg.Set(ctx, c, "capabilities", "NOT_A_REAL_CAP")
	assert.Error(t, err)
}
