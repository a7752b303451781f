package implementations

import (
	"github.com/ginta1337/porto/capability"
	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/ident"
	"github.com/ginta1337/porto/portoerr"
	"github.com/ginta1337/porto/property"
)

func registerIdentity(reg *property.Registry) {
	reg.Register(&property.Handler{
		Name: "user",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return ident.UsernameFor(c.TaskCred.Uid), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			uid, err := ident.LookupUser(value)
			if err != nil {
				return portoerr.New(portoerr.InvalidValue, "user: unknown user %q", value)
			}
			// only a client that ident.CanControl admits for the current
			// owner (root, the owner, or the owner's group) may hand the
			// container to a different principal (spec.md §4.5).
			if !ident.CanControl(ctx.Client, c.OwnerCred) {
				return portoerr.New(portoerr.Permission, "user: not permitted to change owner of %s", c.Name)
			}
			c.TaskCred.Uid = uid
			c.OwnerCred.Uid = uid
			if h, ok := reg.Lookup("capabilities"); ok && !c.PropMask.Has(h.SetMask) {
				c.Capabilities = implicitCapabilities(c)
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			uid, err := ident.LookupUser(value)
			if err != nil {
				return err
			}
			c.TaskCred.Uid = uid
			c.OwnerCred.Uid = uid
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "group",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return ident.GroupnameFor(c.TaskCred.Gid), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			gid, err := ident.LookupGroup(value)
			if err != nil {
				return portoerr.New(portoerr.InvalidValue, "group: unknown group %q", value)
			}
			if !ident.CanControl(ctx.Client, c.OwnerCred) {
				return portoerr.New(portoerr.Permission, "group: not permitted to change owner of %s", c.Name)
			}
			c.TaskCred.Gid = gid
			c.OwnerCred.Gid = gid
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			gid, err := ident.LookupGroup(value)
			if err != nil {
				return err
			}
			c.TaskCred.Gid = gid
			c.OwnerCred.Gid = gid
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "owner_user",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return ident.UsernameFor(c.OwnerCred.Uid), nil
		},
		ReadOnly: true,
	})

	reg.Register(&property.Handler{
		Name: "owner_group",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return ident.GroupnameFor(c.OwnerCred.Gid), nil
		},
		ReadOnly: true,
	})

	reg.Register(&property.Handler{
		Name: "capabilities",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.Capabilities.Format(), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			// granting capabilities beyond root's own is never permitted;
			// only root may set this property at all (spec.md §4.5,
			// "Capability escalation guard").
			if ctx.Client.Uid != 0 {
				return portoerr.New(portoerr.Permission, "capabilities: only root may set this property")
			}
			set, err := capability.Parse(value)
			if err != nil {
				if pe, ok := err.(*capability.ParseError); ok && pe.Unsupported {
					return portoerr.New(portoerr.NotSupported, "%v", err)
				}
				return portoerr.New(portoerr.InvalidValue, "%v", err)
			}
			c.Capabilities = set
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			set, err := capability.Parse(value)
			if err != nil {
				return err
			}
			c.Capabilities = set
			return nil
		},
	})
}

// implicitCapabilities recomputes the CAPABILITIES back-fill that follows a
// change of container owner (spec.md §3): root owners get every capability
// this kernel supports, a VirtMode=OS container owned by anyone else gets
// the restricted PermittedCaps set, and everyone else gets none.
func implicitCapabilities(c *container.Container) capability.Set {
	if c.OwnerCred.Uid == 0 {
		return capability.All()
	}
	if c.VirtMode == domain.VirtModeOS {
		return capability.PermittedCaps
	}
	return capability.Empty
}
