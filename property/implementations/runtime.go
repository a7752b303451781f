package implementations

import (
	"strconv"
	"strings"

	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/portoerr"
	"github.com/ginta1337/porto/property"
)

func registerRuntime(reg *property.Registry) {
	reg.Register(&property.Handler{
		Name: "command",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.Command, nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			c.Command = value
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			c.Command = value
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "cwd",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.Cwd, nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			if !strings.HasPrefix(value, "/") {
				return portoerr.New(portoerr.InvalidValue, "cwd must be absolute: %q", value)
			}
			c.Cwd = value
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			c.Cwd = value
			return nil
		},
		Propagate: func(ctx *property.OpContext, child *container.Container, value string) error {
			child.Cwd = value
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "root",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.Root, nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			c.Root = value
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			c.Root = value
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "root_readonly",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatBool(c.RootReadOnly), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			b, err := parseBool(value)
			if err != nil {
				return err
			}
			c.RootReadOnly = b
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			b, err := parseBool(value)
			if err != nil {
				return err
			}
			c.RootReadOnly = b
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "bind_dns",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatBool(c.BindDns), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			b, err := parseBool(value)
			if err != nil {
				return err
			}
			c.BindDns = b
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			b, err := parseBool(value)
			if err != nil {
				return err
			}
			c.BindDns = b
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "isolate",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatBool(c.Isolate), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			b, err := parseBool(value)
			if err != nil {
				return err
			}
			c.Isolate = b
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			b, err := parseBool(value)
			if err != nil {
				return err
			}
			c.Isolate = b
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "hostname",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.Hostname, nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			c.Hostname = value
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			c.Hostname = value
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "stdin_path",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.StdinPath, nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			c.StdinPath = value
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			c.StdinPath = value
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "stdout_path",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.StdoutPath, nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			c.StdoutPath = value
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			c.StdoutPath = value
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "stderr_path",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.StderrPath, nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			c.StderrPath = value
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			c.StderrPath = value
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "stdout_limit",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatSize(c.StdoutLimit), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			n, err := parseSize(value)
			if err != nil {
				return err
			}
			c.StdoutLimit = n
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			n, err := parseSize(value)
			if err != nil {
				return err
			}
			c.StdoutLimit = n
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "stdout",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			if err := container.GateRunningReadable(c.State()); err != nil {
				return "", err
			}
			return "", nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "stdout_offset",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return strconv.FormatUint(c.StdoutOffset, 10), nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "stderr",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			if err := container.GateRunningReadable(c.State()); err != nil {
				return "", err
			}
			return "", nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "stderr_offset",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return strconv.FormatUint(c.StderrOffset, 10), nil
		},
	})

	// env is a map-valued property keyed by variable name, indexed access
	// resolving one key at a time (spec.md §4.1 "Index semantics").
	reg.Register(&property.Handler{
		Name: "env",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			parts := make([]string, 0, len(c.Env))
			for _, e := range c.Env {
				parts = append(parts, e.Key+"="+e.Value)
			}
			return strings.Join(parts, ";"), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			env, err := parseEnv(value)
			if err != nil {
				return err
			}
			c.Env = env
			return nil
		},
		GetIndexed: func(ctx *property.OpContext, c *container.Container, index string) (string, error) {
			for _, e := range c.Env {
				if e.Key == index {
					return e.Value, nil
				}
			}
			return "", portoerr.New(portoerr.InvalidValue, "env: no such variable %q", index)
		},
		SetIndexed: func(ctx *property.OpContext, c *container.Container, index, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			for i, e := range c.Env {
				if e.Key == index {
					c.Env[i].Value = value
					return nil
				}
			}
			c.Env = append(c.Env, container.EnvVar{Key: index, Value: value})
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			env, err := parseEnv(value)
			if err != nil {
				return err
			}
			c.Env = env
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "bind",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatBindMounts(c.Bind), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			binds, err := parseBindMounts(value)
			if err != nil {
				return err
			}
			c.Bind = binds
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			binds, err := parseBindMounts(value)
			if err != nil {
				return err
			}
			c.Bind = binds
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "devices",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatDevices(c.Devices), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			devs, err := parseDevices(value)
			if err != nil {
				return err
			}
			c.Devices = devs
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			devs, err := parseDevices(value)
			if err != nil {
				return err
			}
			c.Devices = devs
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "ulimit",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatUlimits(c.Ulimits), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			u, err := parseUlimits(value)
			if err != nil {
				return err
			}
			c.Ulimits = u
			return nil
		},
		GetIndexed: func(ctx *property.OpContext, c *container.Container, index string) (string, error) {
			u, ok := c.Ulimits[index]
			if !ok {
				return "", portoerr.New(portoerr.InvalidValue, "ulimit: no such resource %q", index)
			}
			return formatOneUlimit(u), nil
		},
		SetIndexed: func(ctx *property.OpContext, c *container.Container, index, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			if !isValidUlimitName(index) {
				return portoerr.New(portoerr.InvalidValue, "ulimit: unknown resource %q", index)
			}
			u, err := parseOneUlimit(value)
			if err != nil {
				return err
			}
			c.Ulimits[index] = u
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			u, err := parseUlimits(value)
			if err != nil {
				return err
			}
			c.Ulimits = u
			return nil
		},
		Propagate: func(ctx *property.OpContext, child *container.Container, value string) error {
			u, err := parseUlimits(value)
			if err != nil {
				return err
			}
			child.Ulimits = u
			return nil
		},
	})
}

func parseEnv(value string) ([]container.EnvVar, error) {
	var out []container.EnvVar
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		idx := strings.Index(entry, "=")
		if idx < 0 {
			return nil, portoerr.New(portoerr.InvalidValue, "env: malformed entry %q, expected key=value", entry)
		}
		out = append(out, container.EnvVar{Key: entry[:idx], Value: entry[idx+1:]})
	}
	return out, nil
}

func formatBindMounts(binds []domain.BindMount) string {
	parts := make([]string, 0, len(binds))
	for _, b := range binds {
		if b.ReadOnly {
			parts = append(parts, b.Source+" "+b.Dest+" ro")
		} else {
			parts = append(parts, b.Source+" "+b.Dest)
		}
	}
	return strings.Join(parts, "; ")
}

func parseBindMounts(value string) ([]domain.BindMount, error) {
	var out []domain.BindMount
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Fields(entry)
		if len(fields) < 2 || len(fields) > 3 {
			return nil, portoerr.New(portoerr.InvalidValue, "bind: malformed entry %q, expected \"source dest [ro]\"", entry)
		}
		b := domain.BindMount{Source: fields[0], Dest: fields[1]}
		if len(fields) == 3 {
			if fields[2] != "ro" {
				return nil, portoerr.New(portoerr.InvalidValue, "bind: unknown flag %q", fields[2])
			}
			b.ReadOnly = true
		}
		out = append(out, b)
	}
	return out, nil
}

func formatDevices(devs []domain.Device) string {
	parts := make([]string, 0, len(devs))
	for _, d := range devs {
		parts = append(parts, d.Path+" "+d.Type+" "+strconv.FormatInt(d.Major, 10)+":"+strconv.FormatInt(d.Minor, 10)+" "+d.Permissions)
	}
	return strings.Join(parts, "; ")
}

func parseDevices(value string) ([]domain.Device, error) {
	var out []domain.Device
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		fields := strings.Fields(entry)
		if len(fields) != 4 {
			return nil, portoerr.New(portoerr.InvalidValue, "devices: malformed entry %q, expected \"path type major:minor perms\"", entry)
		}
		if fields[1] != "c" && fields[1] != "b" && fields[1] != "p" {
			return nil, portoerr.New(portoerr.InvalidValue, "devices: invalid type %q", fields[1])
		}
		mm := strings.SplitN(fields[2], ":", 2)
		if len(mm) != 2 {
			return nil, portoerr.New(portoerr.InvalidValue, "devices: malformed major:minor %q", fields[2])
		}
		major, err := strconv.ParseInt(mm[0], 10, 64)
		if err != nil {
			return nil, portoerr.New(portoerr.InvalidValue, "devices: invalid major %q", mm[0])
		}
		minor, err := strconv.ParseInt(mm[1], 10, 64)
		if err != nil {
			return nil, portoerr.New(portoerr.InvalidValue, "devices: invalid minor %q", mm[1])
		}
		out = append(out, domain.Device{
			Path:        fields[0],
			Type:        fields[1],
			Major:       major,
			Minor:       minor,
			Permissions: fields[3],
		})
	}
	return out, nil
}

func isValidUlimitName(name string) bool {
	for _, n := range domain.UlimitNames {
		if n == name {
			return true
		}
	}
	return false
}

func formatUlimits(m map[string]domain.Ulimit) string {
	keys := sortedKeys(m)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+": "+formatOneUlimit(m[k]))
	}
	return strings.Join(parts, "; ")
}

func formatOneUlimit(u domain.Ulimit) string {
	soft := "unlim"
	if !u.SoftInf {
		soft = strconv.FormatUint(u.Soft, 10)
	}
	hard := "unlim"
	if !u.HardInf {
		hard = strconv.FormatUint(u.Hard, 10)
	}
	return soft + " " + hard
}

func parseUlimits(value string) (map[string]domain.Ulimit, error) {
	out := make(map[string]domain.Ulimit)
	value = strings.TrimSpace(value)
	if value == "" {
		return out, nil
	}
	for _, entry := range strings.Split(value, ";") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		k, v, err := splitMapEntry(entry)
		if err != nil {
			return nil, err
		}
		if !isValidUlimitName(k) {
			return nil, portoerr.New(portoerr.InvalidValue, "ulimit: unknown resource %q", k)
		}
		u, err := parseOneUlimit(v)
		if err != nil {
			return nil, err
		}
		out[k] = u
	}
	return out, nil
}

func parseOneUlimit(value string) (domain.Ulimit, error) {
	fields := strings.Fields(value)
	if len(fields) != 2 {
		return domain.Ulimit{}, portoerr.New(portoerr.InvalidValue, "ulimit: malformed bound %q, expected \"soft hard\"", value)
	}
	var u domain.Ulimit
	if fields[0] == "unlim" || fields[0] == "unlimited" {
		u.SoftInf = true
	} else {
		n, err := strconv.ParseUint(fields[0], 10, 64)
		if err != nil {
			return domain.Ulimit{}, portoerr.New(portoerr.InvalidValue, "ulimit: invalid soft bound %q", fields[0])
		}
		u.Soft = n
	}
	if fields[1] == "unlim" || fields[1] == "unlimited" {
		u.HardInf = true
	} else {
		n, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			return domain.Ulimit{}, portoerr.New(portoerr.InvalidValue, "ulimit: invalid hard bound %q", fields[1])
		}
		u.Hard = n
	}
	return u, nil
}
