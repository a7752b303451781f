package holder

import (
	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/ident"
	"github.com/ginta1337/porto/portoerr"
	"github.com/ginta1337/porto/property"
)

// Dispatcher is the single entry point every external interface (spec.md
// §6: RPC server, CLI) funnels property operations through: authenticate,
// resolve the target container, build the per-call OpContext, dispatch to
// the registry, tear the context back down (spec.md §4.4, "Dispatch").
type Dispatcher struct {
	holder   *Holder
	registry *property.Registry
	clock    domain.Clock
}

// NewDispatcher builds a Dispatcher bound to a Holder and the process-wide
// property.Registry.
func NewDispatcher(h *Holder, reg *property.Registry) *Dispatcher {
	return &Dispatcher{holder: h, registry: reg, clock: domain.RealClock}
}

func (d *Dispatcher) resolveContainer(name string) (*container.Container, error) {
	abs := container.AbsoluteName(d.holder.rootName, name)
	c, ok := d.holder.Lookup(abs)
	if !ok {
		return nil, portoerr.New(portoerr.InvalidValue, "container %q does not exist", abs)
	}
	return c, nil
}

func (d *Dispatcher) opContext(client domain.Credential) *property.OpContext {
	return &property.OpContext{Client: client, Host: d.holder, Clock: d.clock}
}

// Get dispatches a plain Get on behalf of client.
func (d *Dispatcher) Get(client domain.Credential, containerName, prop string) (string, error) {
	c, err := d.resolveContainer(containerName)
	if err != nil {
		return "", err
	}
	return d.registry.Get(d.opContext(client), c, prop)
}

// GetIndexed dispatches an indexed Get.
func (d *Dispatcher) GetIndexed(client domain.Credential, containerName, prop, index string) (string, error) {
	c, err := d.resolveContainer(containerName)
	if err != nil {
		return "", err
	}
	return d.registry.GetIndexed(d.opContext(client), c, prop, index)
}

// Set dispatches a plain Set, gated by the caller's permission to control
// the target container (spec.md §4.5).
func (d *Dispatcher) Set(client domain.Credential, containerName, prop, value string) error {
	c, err := d.resolveContainer(containerName)
	if err != nil {
		return err
	}
	if !ident.CanControl(client, c.OwnerCred) {
		return portoerr.New(portoerr.Permission, "not permitted to modify %s", containerName)
	}
	return d.registry.Set(d.opContext(client), c, prop, value)
}

// SetIndexed dispatches an indexed Set.
func (d *Dispatcher) SetIndexed(client domain.Credential, containerName, prop, index, value string) error {
	c, err := d.resolveContainer(containerName)
	if err != nil {
		return err
	}
	if !ident.CanControl(client, c.OwnerCred) {
		return portoerr.New(portoerr.Permission, "not permitted to modify %s", containerName)
	}
	return d.registry.SetIndexed(d.opContext(client), c, prop, index, value)
}

// Create dispatches a container creation request.
func (d *Dispatcher) Create(client domain.Credential, name, parentName string) error {
	c, err := d.holder.Create(name, parentName)
	if err != nil {
		return err
	}
	c.OwnerCred = client
	c.TaskCred = client
	return nil
}

// Destroy dispatches a container destruction request, gated the same way as
// Set (spec.md §4.5).
func (d *Dispatcher) Destroy(client domain.Credential, name string) error {
	c, err := d.resolveContainer(name)
	if err != nil {
		return err
	}
	if !ident.CanControl(client, c.OwnerCred) {
		return portoerr.New(portoerr.Permission, "not permitted to destroy %s", name)
	}
	return d.holder.Destroy(name)
}

// Start transitions a container from Stopped to Running (Meta for
// virt_mode=os), handing off to the
// TaskSpawner collaborator (spec.md §4.2, §6).
func (d *Dispatcher) Start(client domain.Credential, name string) error {
	c, err := d.resolveContainer(name)
	if err != nil {
		return err
	}
	if !ident.CanControl(client, c.OwnerCred) {
		return portoerr.New(portoerr.Permission, "not permitted to start %s", name)
	}
	if c.Command == "" {
		return portoerr.New(portoerr.InvalidValue, "command is not set")
	}
	if d.holder.spawner == nil {
		return portoerr.New(portoerr.NotSupported, "no task spawner configured")
	}

	pid, err := d.holder.spawner.Start(c.Name, c.Command, c.Cwd, c.Root, envStrings(c))
	if err != nil {
		return portoerr.New(portoerr.InvalidState, "start %s: %v", name, err)
	}

	target := domain.StateRunning
	if c.VirtMode == domain.VirtModeOS {
		target = domain.StateMeta
	}
	if err := c.Transition(target); err != nil {
		return err
	}
	c.RootPid = int(pid)
	c.StartTime = d.clock.Now().UnixMilli()
	return nil
}

// Stop transitions a container to Dead, recording its death time.
func (d *Dispatcher) Stop(client domain.Credential, name string) error {
	c, err := d.resolveContainer(name)
	if err != nil {
		return err
	}
	if !ident.CanControl(client, c.OwnerCred) {
		return portoerr.New(portoerr.Permission, "not permitted to stop %s", name)
	}
	if d.holder.spawner == nil {
		return portoerr.New(portoerr.NotSupported, "no task spawner configured")
	}
	if err := d.holder.spawner.Kill(c.Name); err != nil {
		return portoerr.New(portoerr.InvalidState, "stop %s: %v", name, err)
	}
	if err := c.Transition(domain.StateDead); err != nil {
		return err
	}
	c.DeathTime = d.clock.Now().UnixMilli()
	return nil
}

// Pause/Resume transition between Running and Paused.
func (d *Dispatcher) Pause(client domain.Credential, name string) error {
	c, err := d.resolveContainer(name)
	if err != nil {
		return err
	}
	if !ident.CanControl(client, c.OwnerCred) {
		return portoerr.New(portoerr.Permission, "not permitted to pause %s", name)
	}
	if d.holder.spawner == nil {
		return portoerr.New(portoerr.NotSupported, "no task spawner configured")
	}
	if err := d.holder.spawner.Pause(c.Name); err != nil {
		return portoerr.New(portoerr.InvalidState, "pause %s: %v", name, err)
	}
	return c.Transition(domain.StatePaused)
}

func (d *Dispatcher) Resume(client domain.Credential, name string) error {
	c, err := d.resolveContainer(name)
	if err != nil {
		return err
	}
	if !ident.CanControl(client, c.OwnerCred) {
		return portoerr.New(portoerr.Permission, "not permitted to resume %s", name)
	}
	if d.holder.spawner == nil {
		return portoerr.New(portoerr.NotSupported, "no task spawner configured")
	}
	if err := d.holder.spawner.Resume(c.Name); err != nil {
		return portoerr.New(portoerr.InvalidState, "resume %s: %v", name, err)
	}
	return c.Transition(domain.StateRunning)
}

func envStrings(c *container.Container) []string {
	out := make([]string, 0, len(c.Env))
	for _, e := range c.Env {
		out = append(out, e.Key+"="+e.Value)
	}
	return out
}
