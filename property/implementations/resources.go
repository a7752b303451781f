package implementations

import (
	"strconv"

	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/portoerr"
	"github.com/ginta1337/porto/property"
)

// memReserve is subtracted from total host memory before checking the
// overcommit invariant, leaving headroom for the system itself (spec.md
// §4.1, "Resource invariants: memory_guarantee").
const memReserve = 256 << 20

func containerID(ctx *property.OpContext, c *container.Container) string {
	return container.AbsoluteName(ctx.Host.RootName(), c.Name)
}

// sumGuaranteeUnder walks root's whole subtree (root included) summing
// MemGuarantee, used to enforce the global overcommit invariant on every
// memory_guarantee write anywhere in the tree.
func sumGuaranteeUnder(ctx *property.OpContext, root *container.Container) uint64 {
	total := root.MemGuarantee
	for _, child := range ctx.Host.Children(root.Name) {
		total += sumGuaranteeUnder(ctx, child)
	}
	return total
}

func registerResources(reg *property.Registry) {
	reg.Register(&property.Handler{
		Name: "memory_guarantee",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatSize(c.MemGuarantee), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			rootName, ok := rootmostAncestor(ctx, c)
			if !ok {
				rootName = c
			}
			prev := c.MemGuarantee
			c.MemGuarantee = bytes
			total := sumGuaranteeUnder(ctx, rootName)
			if limit := ctx.Host.TotalMemory(); limit > memReserve && total > limit-memReserve {
				c.MemGuarantee = prev
				return portoerr.New(portoerr.ResourceNotAvailable,
					"memory_guarantee: tree total %d exceeds available %d", total, limit-memReserve)
			}
			if err := toPortoErr("memory_guarantee", ctx.Host.Memory().SetGuarantee(containerID(ctx, c), bytes)); err != nil {
				c.MemGuarantee = prev
				return err
			}
			c.CurrentMemGuarantee = bytes
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			c.MemGuarantee = bytes
			c.CurrentMemGuarantee = bytes
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "memory_guarantee_total",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			root, ok := rootmostAncestor(ctx, c)
			if !ok {
				root = c
			}
			return formatSize(sumGuaranteeUnder(ctx, root)), nil
		},
	})

	reg.Register(&property.Handler{
		Name: "memory_limit",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatSize(c.MemLimit), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			prev := c.MemLimit
			c.MemLimit = bytes
			if isLive(c.State()) {
				if err := toPortoErr("memory_limit", ctx.Host.Memory().SetLimit(containerID(ctx, c), bytes)); err != nil {
					c.MemLimit = prev
					return err
				}
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			c.MemLimit = bytes
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "anon_limit",
		Supported: func(h property.Host) bool { return h.Memory().SupportAnonLimit() },
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatSize(c.AnonMemLimit), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			prev := c.AnonMemLimit
			c.AnonMemLimit = bytes
			if isLive(c.State()) {
				if err := toPortoErr("anon_limit", ctx.Host.Memory().SetAnonLimit(containerID(ctx, c), bytes)); err != nil {
					c.AnonMemLimit = prev
					return err
				}
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			c.AnonMemLimit = bytes
			return nil
		},
	})

	// dirty_limit gets its own PropMask bit distinct from anon_limit — the
	// bug being fixed relative to the source is that AnonMemLimit and
	// DirtyMemLimit shared a bit there, so clearing one silently cleared the
	// other's "was explicitly set" flag (spec.md §9).
	reg.Register(&property.Handler{
		Name: "dirty_limit",
		Supported: func(h property.Host) bool { return h.Memory().SupportDirtyLimit() },
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatSize(c.DirtyMemLimit), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			prev := c.DirtyMemLimit
			c.DirtyMemLimit = bytes
			if isLive(c.State()) {
				if err := toPortoErr("dirty_limit", ctx.Host.Memory().SetDirtyLimit(containerID(ctx, c), bytes)); err != nil {
					c.DirtyMemLimit = prev
					return err
				}
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			c.DirtyMemLimit = bytes
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "recharge_on_pgfault",
		Supported: func(h property.Host) bool { return h.Memory().SupportRechargeOnPgfault() },
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatBool(c.RechargeOnPgfault), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			b, err := parseBool(value)
			if err != nil {
				return err
			}
			prev := c.RechargeOnPgfault
			c.RechargeOnPgfault = b
			if isLive(c.State()) {
				if err := toPortoErr("recharge_on_pgfault", ctx.Host.Memory().SetRechargeOnPgfault(containerID(ctx, c), b)); err != nil {
					c.RechargeOnPgfault = prev
					return err
				}
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			b, err := parseBool(value)
			if err != nil {
				return err
			}
			c.RechargeOnPgfault = b
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "cpu_policy",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.CpuPolicy.String(), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			policy, ok := domain.ParseCpuPolicy(value)
			if !ok {
				return portoerr.New(portoerr.InvalidValue, "invalid cpu_policy %q", value)
			}
			if !ctx.Host.Cpu().SupportPolicy(policy) {
				return portoerr.New(portoerr.NotSupported, "cpu_policy %q not supported", value)
			}
			prev := c.CpuPolicy
			c.CpuPolicy = policy
			if isLive(c.State()) {
				if err := applyCpuPolicy(ctx, c); err != nil {
					c.CpuPolicy = prev
					return err
				}
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			policy, ok := domain.ParseCpuPolicy(value)
			if !ok {
				return portoerr.New(portoerr.InvalidValue, "invalid cpu_policy %q", value)
			}
			c.CpuPolicy = policy
			return nil
		},
		Propagate: func(ctx *property.OpContext, child *container.Container, value string) error {
			policy, ok := domain.ParseCpuPolicy(value)
			if !ok {
				return portoerr.New(portoerr.InvalidValue, "invalid cpu_policy %q", value)
			}
			child.CpuPolicy = policy
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "cpu_limit",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatCpu(c.CpuLimit), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			cores, err := parseCpu(value)
			if err != nil {
				return err
			}
			prev := c.CpuLimit
			c.CpuLimit = cores
			if isLive(c.State()) {
				if err := applyCpuPolicy(ctx, c); err != nil {
					c.CpuLimit = prev
					return err
				}
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			cores, err := parseCpu(value)
			if err != nil {
				return err
			}
			c.CpuLimit = cores
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "cpu_guarantee",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatCpu(c.CpuGuarantee), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			cores, err := parseCpu(value)
			if err != nil {
				return err
			}
			prev := c.CpuGuarantee
			c.CpuGuarantee = cores
			if isLive(c.State()) {
				if err := applyCpuPolicy(ctx, c); err != nil {
					c.CpuGuarantee = prev
					return err
				}
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			cores, err := parseCpu(value)
			if err != nil {
				return err
			}
			c.CpuGuarantee = cores
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "io_policy",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.IoPolicy.String(), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			policy, ok := domain.ParseIoPolicy(value)
			if !ok {
				return portoerr.New(portoerr.InvalidValue, "invalid io_policy %q", value)
			}
			prev := c.IoPolicy
			c.IoPolicy = policy
			if isLive(c.State()) {
				if err := toPortoErr("io_policy", ctx.Host.Blkio().SetPolicy(containerID(ctx, c), policy == domain.IoPolicyBatch)); err != nil {
					c.IoPolicy = prev
					return err
				}
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			policy, ok := domain.ParseIoPolicy(value)
			if !ok {
				return portoerr.New(portoerr.InvalidValue, "invalid io_policy %q", value)
			}
			c.IoPolicy = policy
			return nil
		},
		Propagate: func(ctx *property.OpContext, child *container.Container, value string) error {
			policy, ok := domain.ParseIoPolicy(value)
			if !ok {
				return portoerr.New(portoerr.InvalidValue, "invalid io_policy %q", value)
			}
			child.IoPolicy = policy
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "io_limit",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatSize(c.IoLimit), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			prev := c.IoLimit
			c.IoLimit = bytes
			if isLive(c.State()) {
				if err := toPortoErr("io_limit", ctx.Host.Blkio().SetIoLimit(containerID(ctx, c), bytes)); err != nil {
					c.IoLimit = prev
					return err
				}
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			c.IoLimit = bytes
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "io_ops_limit",
		Supported: func(h property.Host) bool { return h.Blkio().SupportIopsLimit() },
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return strconv.FormatUint(c.IopsLimit, 10), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return portoerr.New(portoerr.InvalidValue, "invalid io_ops_limit %q", value)
			}
			prev := c.IopsLimit
			c.IopsLimit = n
			if isLive(c.State()) {
				if err := toPortoErr("io_ops_limit", ctx.Host.Blkio().SetIopsLimit(containerID(ctx, c), n)); err != nil {
					c.IopsLimit = prev
					return err
				}
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			n, err := strconv.ParseUint(value, 10, 64)
			if err != nil {
				return err
			}
			c.IopsLimit = n
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "memory_usage",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			if err := container.GateRunningReadable(c.State()); err != nil {
				return "", err
			}
			v, err := ctx.Host.Memory().Usage(containerID(ctx, c))
			if err != nil {
				return "", toPortoErr("memory_usage", domain.Result{Err: err})
			}
			return formatSize(v), nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "anon_usage",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			if err := container.GateRunningReadable(c.State()); err != nil {
				return "", err
			}
			stats, err := ctx.Host.Memory().Statistics(containerID(ctx, c))
			if err != nil {
				return "", toPortoErr("anon_usage", domain.Result{Err: err})
			}
			return formatSize(stats["anon"]), nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "minor_faults",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			stats, err := ctx.Host.Memory().Statistics(containerID(ctx, c))
			if err != nil {
				return "", toPortoErr("minor_faults", domain.Result{Err: err})
			}
			return strconv.FormatUint(stats["minor_faults"], 10), nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "major_faults",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			stats, err := ctx.Host.Memory().Statistics(containerID(ctx, c))
			if err != nil {
				return "", toPortoErr("major_faults", domain.Result{Err: err})
			}
			return strconv.FormatUint(stats["major_faults"], 10), nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "max_rss",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			stats, err := ctx.Host.Memory().Statistics(containerID(ctx, c))
			if err != nil {
				return "", toPortoErr("max_rss", domain.Result{Err: err})
			}
			return formatSize(stats["max_rss"]), nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "cpu_usage",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			v, err := ctx.Host.Cpuacct().Usage(containerID(ctx, c))
			if err != nil {
				return "", toPortoErr("cpu_usage", domain.Result{Err: err})
			}
			return strconv.FormatUint(v, 10), nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "cpu_usage_system",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			v, err := ctx.Host.Cpuacct().SystemUsage(containerID(ctx, c))
			if err != nil {
				return "", toPortoErr("cpu_usage_system", domain.Result{Err: err})
			}
			return strconv.FormatUint(v, 10), nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "io_read",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			stats, err := ctx.Host.Blkio().Statistics(containerID(ctx, c))
			if err != nil {
				return "", toPortoErr("io_read", domain.Result{Err: err})
			}
			return formatUint64Map(map[string]uint64{"total": stats["read"]}), nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "io_write",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			stats, err := ctx.Host.Blkio().Statistics(containerID(ctx, c))
			if err != nil {
				return "", toPortoErr("io_write", domain.Result{Err: err})
			}
			return formatUint64Map(map[string]uint64{"total": stats["write"]}), nil
		},
	})

	reg.Register(&property.Handler{
		Name:     "io_ops",
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			stats, err := ctx.Host.Blkio().Statistics(containerID(ctx, c))
			if err != nil {
				return "", toPortoErr("io_ops", domain.Result{Err: err})
			}
			return formatUint64Map(map[string]uint64{"total": stats["ops"]}), nil
		},
	})
}

// applyCpuPolicy re-submits the combined cpu_policy/cpu_limit/cpu_guarantee
// triple to the cpu subsystem in one call, matching the controller's own
// atomic-update shape (spec.md §4.1).
func applyCpuPolicy(ctx *property.OpContext, c *container.Container) error {
	return toPortoErr("cpu_policy", ctx.Host.Cpu().SetCpuPolicy(containerID(ctx, c), c.CpuPolicy, c.CpuGuarantee, c.CpuLimit))
}

// rootmostAncestor walks ParentName links up to the tree root, used by the
// memory_guarantee overcommit check which must total the *whole* tree, not
// just c's own subtree.
func rootmostAncestor(ctx *property.OpContext, c *container.Container) (*container.Container, bool) {
	cur := c
	for cur.ParentName != "" {
		parent, ok := ctx.Host.Lookup(cur.ParentName)
		if !ok {
			return cur, true
		}
		cur = parent
	}
	return cur, true
}
