// Package netlinkcap is a concrete, ambient NetworkCapability
// implementation (domain.NetworkCapability) that programs Linux HTB
// qdiscs/classes via github.com/vishvananda/netlink, entering the target
// container's network namespace with github.com/vishvananda/netns the way
// getployz-ployz/infra/wireguard/kernel programs WireGuard links. It is
// outside the container core's own scope (spec.md §1 puts netlink wire
// encoding among the external collaborators), but gives the Traffic Class
// Coordinator's capability boundary something real to call.
package netlinkcap

import (
	"fmt"
	"runtime"

	"github.com/vishvananda/netlink"
	"github.com/vishvananda/netns"

	"github.com/ginta1337/porto/domain"
)

// Adapter implements domain.NetworkCapability against the host's kernel.
// NsPath, when set, is entered (via netns.Set) before every netlink call,
// for deployments where the interfaces being shaped live inside a
// container's own network namespace rather than the host's.
type Adapter struct {
	NsPath string
}

// New builds an Adapter that programs classes on the host network
// namespace. Use NewInNamespace for a per-container netns.
func New() *Adapter { return &Adapter{} }

// NewInNamespace builds an Adapter that enters nsPath before each call.
func NewInNamespace(nsPath string) *Adapter { return &Adapter{NsPath: nsPath} }

func (a *Adapter) withNS(fn func() error) error {
	if a.NsPath == "" {
		return fn()
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	origin, err := netns.Get()
	if err != nil {
		return fmt.Errorf("get current netns: %w", err)
	}
	defer origin.Close()

	target, err := netns.GetFromPath(a.NsPath)
	if err != nil {
		return fmt.Errorf("open netns %s: %w", a.NsPath, err)
	}
	defer target.Close()

	if err := netns.Set(target); err != nil {
		return fmt.Errorf("enter netns %s: %w", a.NsPath, err)
	}
	defer netns.Set(origin)

	return fn()
}

func (a *Adapter) ensureHtbRoot(link netlink.Link) error {
	qdiscs, err := netlink.QdiscList(link)
	if err != nil {
		return err
	}
	for _, q := range qdiscs {
		if _, ok := q.(*netlink.Htb); ok {
			return nil
		}
	}
	root := netlink.NewHtb(netlink.QdiscAttrs{
		LinkIndex: link.Attrs().Index,
		Handle:    netlink.MakeHandle(1, 0),
		Parent:    netlink.HANDLE_ROOT,
	})
	return netlink.QdiscAdd(root)
}

// UpdateTrafficClasses programs (or replaces) the HTB class for handle
// under parentHandle on iface, with rate derived from the guarantee and
// ceil derived from the limit (0 meaning "ceiling = link speed", per
// spec.md §4.3's "missing default entries treated as unlimited").
func (a *Adapter) UpdateTrafficClasses(iface string, parentHandle, handle uint32, params domain.NetClassParams) error {
	return a.withNS(func() error {
		link, err := netlink.LinkByName(iface)
		if err != nil {
			return fmt.Errorf("lookup interface %s: %w", iface, err)
		}
		if err := a.ensureHtbRoot(link); err != nil {
			return fmt.Errorf("ensure htb root on %s: %w", iface, err)
		}

		ceil := params.LimitBits / 8
		if ceil == 0 {
			ceil = linkSpeedBytes(link)
		}
		rate := params.GuaranteeBits / 8
		if rate == 0 {
			rate = 1 // HTB rejects a zero rate; 1 B/s is effectively "no guarantee"
		}
		if rate > ceil {
			rate = ceil
		}

		class := netlink.NewHtbClass(
			netlink.ClassAttrs{
				LinkIndex: link.Attrs().Index,
				Parent:    parentHandle,
				Handle:    handle,
			},
			netlink.HtbClassAttrs{
				Rate:    rate,
				Ceil:    ceil,
				Prio:    uint32(params.Priority),
				Quantum: 1514,
			},
		)
		return netlink.ClassReplace(class)
	})
}

// RemoveTrafficClasses deletes handle's HTB class from iface.
func (a *Adapter) RemoveTrafficClasses(iface string, handle uint32) error {
	return a.withNS(func() error {
		link, err := netlink.LinkByName(iface)
		if err != nil {
			return fmt.Errorf("lookup interface %s: %w", iface, err)
		}
		class := netlink.NewHtbClass(
			netlink.ClassAttrs{LinkIndex: link.Attrs().Index, Handle: handle},
			netlink.HtbClassAttrs{},
		)
		return netlink.ClassDel(class)
	})
}

// GetTrafficCounters reads handle's class statistics back off the kernel.
func (a *Adapter) GetTrafficCounters(iface string, handle uint32, kind domain.TrafficCounterKind) (uint64, error) {
	var out uint64
	err := a.withNS(func() error {
		link, err := netlink.LinkByName(iface)
		if err != nil {
			return fmt.Errorf("lookup interface %s: %w", iface, err)
		}
		classes, err := netlink.ClassList(link, handle)
		if err != nil {
			return err
		}
		for _, cl := range classes {
			htb, ok := cl.(*netlink.HtbClass)
			if !ok || htb.Handle != handle {
				continue
			}
			stats := htb.Attrs().Statistics
			if stats == nil {
				return nil
			}
			switch kind {
			case domain.CounterBytes, domain.CounterRxBytes:
				out = stats.Basic.Bytes
			case domain.CounterPackets, domain.CounterRxPackets:
				out = stats.Basic.Packets
			case domain.CounterDrops, domain.CounterRxDrops:
				out = uint64(stats.Queue.Drops)
			case domain.CounterOverlimits:
				out = uint64(stats.Queue.Overlimits)
			}
			return nil
		}
		return nil
	})
	return out, err
}

// GetInterfaceCounters reads whole-interface counters for iface, independent
// of any HTB class.
func (a *Adapter) GetInterfaceCounters(iface string, kind domain.TrafficCounterKind) (uint64, error) {
	var out uint64
	err := a.withNS(func() error {
		link, err := netlink.LinkByName(iface)
		if err != nil {
			return fmt.Errorf("lookup interface %s: %w", iface, err)
		}
		stats := link.Attrs().Statistics
		if stats == nil {
			return nil
		}
		switch kind {
		case domain.CounterBytes:
			out = stats.TxBytes
		case domain.CounterPackets:
			out = stats.TxPackets
		case domain.CounterDrops:
			out = uint64(stats.TxDropped)
		case domain.CounterRxBytes:
			out = stats.RxBytes
		case domain.CounterRxPackets:
			out = stats.RxPackets
		case domain.CounterRxDrops:
			out = uint64(stats.RxDropped)
		}
		return nil
	})
	return out, err
}

// AddAnnounce/DelAnnounce/GetNatAddress/PutNatAddress round out
// domain.NetworkCapability for the NAT network-spec keyword (spec.md
// §4.1); this adapter has no NAT pool backing it, so they return
// errUnsupportedNat rather than silently no-op.
func (a *Adapter) AddAnnounce(addr string) error     { return errUnsupportedNat }
func (a *Adapter) DelAnnounce(addr string) error     { return errUnsupportedNat }
func (a *Adapter) GetNatAddress() (string, error)    { return "", errUnsupportedNat }
func (a *Adapter) PutNatAddress(addr string) error   { return errUnsupportedNat }

var errUnsupportedNat = fmt.Errorf("NAT address pool not configured")

func linkSpeedBytes(link netlink.Link) uint64 {
	// Best-effort: most container hosts run at 1GbE or better; used only
	// as a ceiling fallback when no limit was configured.
	const oneGbpsInBytes = 1_000_000_000 / 8
	return oneGbpsInBytes
}
