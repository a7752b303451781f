package implementations

import (
	"strconv"
	"strings"

	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/portoerr"
	"github.com/ginta1337/porto/property"
	"github.com/ginta1337/porto/property/netspec"
	"github.com/ginta1337/porto/traffic"
)

func registerNetwork(reg *property.Registry) {
	reg.Register(&property.Handler{
		Name: "net",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return strings.Join(c.NetProp, "; "), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			specs, err := netspec.Parse(value)
			if err != nil {
				return portoerr.New(portoerr.InvalidValue, "%v", err)
			}
			c.NetProp = strings.Split(netspec.Format(specs), "; ")
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			specs, err := netspec.Parse(value)
			if err != nil {
				return err
			}
			c.NetProp = strings.Split(netspec.Format(specs), "; ")
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "ip",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatList(c.IpList), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			c.IpList = parseList(value)
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			c.IpList = parseList(value)
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "default_gw",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.DefaultGw, nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			c.DefaultGw = value
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			c.DefaultGw = value
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "resolv_conf",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return c.ResolvConf, nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			if err := container.GateStoppedOnly(c.State()); err != nil {
				return err
			}
			c.ResolvConf = value
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			c.ResolvConf = value
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "net_guarantee",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatUint64Map(c.NetGuarantee), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			m, err := parseUint64Map(value)
			if err != nil {
				return err
			}
			for _, v := range m {
				if err := ctx.Host.Traffic().ValidateGuarantee(v); err != nil {
					return portoerr.New(portoerr.InvalidValue, "%v", err)
				}
			}
			prev := c.NetGuarantee
			c.NetGuarantee = m
			if err := ctx.Host.Traffic().Recompute(c); err != nil {
				c.NetGuarantee = prev
				return portoerr.New(portoerr.ResourceNotAvailable, "%v", err)
			}
			return nil
		},
		GetIndexed: func(ctx *property.OpContext, c *container.Container, index string) (string, error) {
			return formatSize(c.NetGuarantee[index]), nil
		},
		SetIndexed: func(ctx *property.OpContext, c *container.Container, index, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			if err := ctx.Host.Traffic().ValidateGuarantee(bytes); err != nil {
				return portoerr.New(portoerr.InvalidValue, "%v", err)
			}
			prev, had := c.NetGuarantee[index]
			c.NetGuarantee[index] = bytes
			if err := ctx.Host.Traffic().Recompute(c); err != nil {
				if had {
					c.NetGuarantee[index] = prev
				} else {
					delete(c.NetGuarantee, index)
				}
				return portoerr.New(portoerr.ResourceNotAvailable, "%v", err)
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			m, err := parseUint64Map(value)
			if err != nil {
				return err
			}
			c.NetGuarantee = m
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "net_limit",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatUint64Map(c.NetLimit), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			m, err := parseUint64Map(value)
			if err != nil {
				return err
			}
			for _, v := range m {
				if err := ctx.Host.Traffic().ValidateLimit(v); err != nil {
					return portoerr.New(portoerr.InvalidValue, "%v", err)
				}
			}
			prev := c.NetLimit
			c.NetLimit = m
			if err := ctx.Host.Traffic().Recompute(c); err != nil {
				c.NetLimit = prev
				return portoerr.New(portoerr.ResourceNotAvailable, "%v", err)
			}
			return nil
		},
		GetIndexed: func(ctx *property.OpContext, c *container.Container, index string) (string, error) {
			return formatSize(c.NetLimit[index]), nil
		},
		SetIndexed: func(ctx *property.OpContext, c *container.Container, index, value string) error {
			bytes, err := parseSize(value)
			if err != nil {
				return err
			}
			if err := ctx.Host.Traffic().ValidateLimit(bytes); err != nil {
				return portoerr.New(portoerr.InvalidValue, "%v", err)
			}
			prev, had := c.NetLimit[index]
			c.NetLimit[index] = bytes
			if err := ctx.Host.Traffic().Recompute(c); err != nil {
				if had {
					c.NetLimit[index] = prev
				} else {
					delete(c.NetLimit, index)
				}
				return portoerr.New(portoerr.ResourceNotAvailable, "%v", err)
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			m, err := parseUint64Map(value)
			if err != nil {
				return err
			}
			c.NetLimit = m
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "net_priority",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return formatIntMap(c.NetPriority), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			m, err := parseIntMap(value)
			if err != nil {
				return err
			}
			for _, v := range m {
				if err := traffic.ValidatePriority(v); err != nil {
					return portoerr.New(portoerr.InvalidValue, "%v", err)
				}
			}
			prev := c.NetPriority
			c.NetPriority = m
			if err := ctx.Host.Traffic().Recompute(c); err != nil {
				c.NetPriority = prev
				return portoerr.New(portoerr.ResourceNotAvailable, "%v", err)
			}
			return nil
		},
		GetIndexed: func(ctx *property.OpContext, c *container.Container, index string) (string, error) {
			return strconv.Itoa(c.NetPriority[index]), nil
		},
		SetIndexed: func(ctx *property.OpContext, c *container.Container, index, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return portoerr.New(portoerr.InvalidValue, "invalid net_priority %q", value)
			}
			if err := traffic.ValidatePriority(n); err != nil {
				return portoerr.New(portoerr.InvalidValue, "%v", err)
			}
			prev, had := c.NetPriority[index]
			c.NetPriority[index] = n
			if err := ctx.Host.Traffic().Recompute(c); err != nil {
				if had {
					c.NetPriority[index] = prev
				} else {
					delete(c.NetPriority, index)
				}
				return portoerr.New(portoerr.ResourceNotAvailable, "%v", err)
			}
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			m, err := parseIntMap(value)
			if err != nil {
				return err
			}
			c.NetPriority = m
			return nil
		},
	})

	reg.Register(&property.Handler{
		Name: "net_tos",
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return strconv.Itoa(c.NetTos), nil
		},
		Set: func(ctx *property.OpContext, c *container.Container, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return portoerr.New(portoerr.InvalidValue, "invalid net_tos %q", value)
			}
			c.NetTos = n
			return nil
		},
		SetFromRestore: func(c *container.Container, value string) error {
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			c.NetTos = n
			return nil
		},
	})

	registerNetCounter(reg, "net_bytes", domain.CounterBytes)
	registerNetCounter(reg, "net_packets", domain.CounterPackets)
	registerNetCounter(reg, "net_drops", domain.CounterDrops)
	registerNetCounter(reg, "net_overlimits", domain.CounterOverlimits)
	registerNetCounter(reg, "net_rx_bytes", domain.CounterRxBytes)
	registerNetCounter(reg, "net_rx_packets", domain.CounterRxPackets)
	registerNetCounter(reg, "net_rx_drops", domain.CounterRxDrops)

	reg.Register(&property.Handler{
		Name:     "porto_stat",
		ReadOnly: true,
		Hidden:   true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			return "", nil
		},
	})
}

// registerNetCounter registers one of the net_* read-only counter
// properties, all sharing the same indexed-by-interface shape (spec.md
// §4.1, "Index semantics": bare Get aggregates across every interface via
// the Coordinator's "default" pseudo-interface).
func registerNetCounter(reg *property.Registry, name string, kind domain.TrafficCounterKind) {
	reg.Register(&property.Handler{
		Name:     name,
		ReadOnly: true,
		Get: func(ctx *property.OpContext, c *container.Container) (string, error) {
			if err := container.GateRunningReadable(c.State()); err != nil {
				return "", err
			}
			v, err := ctx.Host.Traffic().Counter(c, "default", kind)
			if err != nil {
				return "", toPortoErr(name, domain.Result{Err: err})
			}
			return strconv.FormatUint(v, 10), nil
		},
		GetIndexed: func(ctx *property.OpContext, c *container.Container, index string) (string, error) {
			v, err := ctx.Host.Traffic().Counter(c, index, kind)
			if err != nil {
				return "", toPortoErr(name, domain.Result{Err: err})
			}
			return strconv.FormatUint(v, 10), nil
		},
	})
}
