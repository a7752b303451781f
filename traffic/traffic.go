// Package traffic implements the Traffic Class Coordinator (spec.md §4.3):
// a hierarchical token-bucket bandwidth class per (interface, container),
// recomputed and pushed to the networking capability whenever NetGuarantee,
// NetLimit, or NetPriority changes anywhere in the tree.
package traffic

import (
	"fmt"
	"sort"

	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
)

// Bandwidth bounds enforced before any class is pushed (spec.md §4.3).
const (
	MaxPriority = 7
)

// Walker lets the Coordinator recurse into a container's live descendants,
// and resolve its parent, without owning the container tree itself — the
// Holder supplies it.
type Walker interface {
	Children(absoluteName string) []*container.Container
	Lookup(absoluteName string) (*container.Container, bool)
}

// Coordinator maintains per-interface HTB classes in lockstep with the
// container tree.
type Coordinator struct {
	net          domain.NetworkCapability
	walker       Walker
	maxGuarantee uint64
	maxLimit     uint64
}

// NewCoordinator builds a Coordinator against a concrete NetworkCapability
// (e.g. traffic/netlinkcap.Adapter) and the platform bandwidth ceilings.
func NewCoordinator(net domain.NetworkCapability, walker Walker, maxGuarantee, maxLimit uint64) *Coordinator {
	return &Coordinator{net: net, walker: walker, maxGuarantee: maxGuarantee, maxLimit: maxLimit}
}

// SetWalker late-binds the tree walker, for a Coordinator built before its
// Holder exists.
func (co *Coordinator) SetWalker(w Walker) { co.walker = w }

// ValidateGuarantee enforces the MAX_GUARANTEE bound (spec.md §4.3, §8).
func (co *Coordinator) ValidateGuarantee(bits uint64) error {
	if co.maxGuarantee != 0 && bits > co.maxGuarantee {
		return fmt.Errorf("net_guarantee %d exceeds platform maximum %d", bits, co.maxGuarantee)
	}
	return nil
}

// ValidateLimit enforces the MAX_LIMIT bound.
func (co *Coordinator) ValidateLimit(bits uint64) error {
	if co.maxLimit != 0 && bits > co.maxLimit {
		return fmt.Errorf("net_limit %d exceeds platform maximum %d", bits, co.maxLimit)
	}
	return nil
}

// ValidatePriority enforces priority ∈ [0,7].
func ValidatePriority(p int) error {
	if p < 0 || p > MaxPriority {
		return fmt.Errorf("net_priority %d out of range [0,%d]", p, MaxPriority)
	}
	return nil
}

// classID derives the handle for c's tc class from its numeric container
// id; parentHandle supplies the parent's half. Handles live in the
// conventional tc "major:minor" space; major 1 is reserved for this
// coordinator's qdisc tree.
func classID(c *container.Container) (handle uint32) {
	return uint32(0x10000 | (c.Id & 0xffff))
}

func parentHandle(parent *container.Container) uint32 {
	if parent == nil {
		return 0x10000 // root qdisc class, 1:0
	}
	return classID(parent)
}

// paramsFor resolves the (guarantee, limit, priority) triple for c on a
// given interface, falling back to the "default" bucket, then to the
// unlimited/zero defaults spec.md §4.3 specifies for a missing entry.
func paramsFor(c *container.Container, iface string) domain.NetClassParams {
	g, ok := c.NetGuarantee[iface]
	if !ok {
		g = c.NetGuarantee["default"] // 0 if absent too: "treated as zero for guarantee"
	}
	l, ok := c.NetLimit[iface]
	if !ok {
		l, ok = c.NetLimit["default"]
		if !ok {
			l = 0 // "treated as unlimited for limit/ceil"
		}
	}
	p, ok := c.NetPriority[iface]
	if !ok {
		p = c.NetPriority["default"]
	}
	return domain.NetClassParams{GuaranteeBits: g, LimitBits: l, Priority: p}
}

// ifaces returns the sorted union of interface keys across the three maps,
// "default" included, so a class is pushed even for containers that only
// ever set the default bucket.
func ifaces(c *container.Container) []string {
	set := map[string]struct{}{"default": {}}
	for k := range c.NetGuarantee {
		set[k] = struct{}{}
	}
	for k := range c.NetLimit {
		set[k] = struct{}{}
	}
	for k := range c.NetPriority {
		set[k] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Recompute pushes c's class parameters to the network capability on every
// interface it (or its "default" bucket) mentions, then recurses into live
// children so the subtree stays consistent with the new value (spec.md
// §4.3, step 1-2). On the first failure it stops and returns the error —
// callers (the net_guarantee/net_limit/net_priority handlers) are
// responsible for restoring the previous in-memory value per the commit
// protocol of spec.md §4.1.
func (co *Coordinator) Recompute(c *container.Container) error {
	return co.recompute(c, co.parentOf(c))
}

func (co *Coordinator) parentOf(c *container.Container) *container.Container {
	if co.walker == nil || c.ParentName == "" {
		return nil
	}
	parent, ok := co.walker.Lookup(c.ParentName)
	if !ok {
		return nil
	}
	return parent
}

func (co *Coordinator) recompute(c *container.Container, parent *container.Container) error {
	handle := classID(c)
	ph := parentHandle(parent)

	for _, iface := range ifaces(c) {
		params := paramsFor(c, iface)
		if err := co.net.UpdateTrafficClasses(iface, ph, handle, params); err != nil {
			return fmt.Errorf("update traffic class for %s on %s: %w", c.Name, iface, err)
		}
	}

	if co.walker == nil {
		return nil
	}
	for _, child := range co.walker.Children(c.Name) {
		if child.State() == domain.StateStopped || child.State() == domain.StateDead {
			continue
		}
		if err := co.recompute(child, c); err != nil {
			return err
		}
	}
	return nil
}

// Remove tears down c's class on every interface it currently occupies,
// used when a container is destroyed.
func (co *Coordinator) Remove(c *container.Container) error {
	for _, iface := range ifaces(c) {
		if err := co.net.RemoveTrafficClasses(iface, classID(c)); err != nil {
			return err
		}
	}
	return nil
}

// Counter reads back one statistic for c on iface, aggregating across every
// managed interface when iface is "default" (spec.md §4.1, "Index
// semantics").
func (co *Coordinator) Counter(c *container.Container, iface string, kind domain.TrafficCounterKind) (uint64, error) {
	handle := classID(c)
	if iface != "default" {
		return co.net.GetTrafficCounters(iface, handle, kind)
	}
	var total uint64
	for _, name := range ifaces(c) {
		if name == "default" {
			continue
		}
		v, err := co.net.GetTrafficCounters(name, handle, kind)
		if err != nil {
			return 0, err
		}
		total += v
	}
	return total, nil
}
