// Package property implements the Property Registry (spec.md §4.1): a
// process-wide mapping from property name to property handler, each
// encapsulating parse/format, validation, state-gating, mutation, live
// enforcement, and propagation. It is grounded on
// nestybox-sysbox-fs/handler/handlerDB.go's handlerService: a radix-style
// name → handler table built once at boot and thereafter read-only, with
// Register/Lookup/List mirroring RegisterHandler/FindHandler/HandlersResourcesList.
package property

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/portoerr"
	"github.com/ginta1337/porto/traffic"
)

// Host is the set of capabilities and tree operations a property handler
// needs beyond the single container it's operating on. The Holder
// implements Host; the property package itself never imports the Holder,
// which is what keeps Holder → Property a one-way dependency (spec.md §9).
type Host interface {
	Memory() domain.MemorySubsystem
	Cpu() domain.CpuSubsystem
	Cpuacct() domain.CpuacctSubsystem
	Blkio() domain.BlkioSubsystem
	Net() domain.NetworkCapability
	Traffic() *traffic.Coordinator
	Children(absoluteName string) []*container.Container
	Lookup(absoluteName string) (*container.Container, bool)
	RootName() string
	// TotalMemory is the host's total physical memory, used by the
	// memory_guarantee overcommit check (spec.md §4.1).
	TotalMemory() uint64
}

// OpContext is the explicit, per-call context the Dispatcher threads through
// every property operation in place of the source's thread-local
// CurrentContainer/CurrentClient globals (spec.md §9, design note 2).
type OpContext struct {
	Client domain.Credential
	Host   Host
	Clock  domain.Clock
}

// Handler is the typed-function-value record spec.md §9's design note 3
// asks for in place of a handler class hierarchy: one record per property,
// holding parse/format/validate/apply/propagate as plain funcs.
type Handler struct {
	Name       string
	Aliases    []string
	SetMask    int // assigned by Registry.Register; unique per handler
	ReadOnly   bool
	Hidden     bool
	Serialized bool
	// Supported feature-detects against the running kernel; nil means
	// always supported.
	Supported func(h Host) bool

	Get            func(ctx *OpContext, c *container.Container) (string, error)
	Set            func(ctx *OpContext, c *container.Container, value string) error
	GetIndexed     func(ctx *OpContext, c *container.Container, index string) (string, error)
	SetIndexed     func(ctx *OpContext, c *container.Container, index, value string) error
	SetFromRestore func(c *container.Container, value string) error

	// Propagate is non-nil for the subset of properties that walk children
	// (spec.md §4.1: Cwd, Ulimit, CpuPolicy, IoPolicy, PortoEnabled). It
	// receives the already-validated value and is called only for children
	// that the registry's PropMask/Isolate gating (see propagateOne) admits.
	Propagate func(ctx *OpContext, child *container.Container, value string) error
}

func (h *Handler) isSupported(host Host) bool {
	if h.Supported == nil {
		return true
	}
	return h.Supported(host)
}

// Registry is the process-wide, boot-initialized, thereafter-read-only
// table of property handlers (spec.md §3, "Ownership").
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Handler
	order   []*Handler
	nextBit int
}

// NewRegistry builds an empty registry; Register is called once per
// property at boot.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Handler)}
}

// Register adds h to the registry under its canonical name and any
// aliases, assigning it the next free PropMask bit. Registering the same
// name twice is a programming error and panics, matching the teacher's
// handlerDB.RegisterHandler "already registered" guard surfaced as a hard
// failure at boot rather than a runtime error.
func (r *Registry) Register(h *Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byName[h.Name]; exists {
		panic(fmt.Sprintf("property %q already registered", h.Name))
	}

	h.SetMask = r.nextBit
	r.nextBit++

	r.byName[h.Name] = h
	for _, alias := range h.Aliases {
		r.byName[alias] = h
	}
	r.order = append(r.order, h)
}

// Lookup finds a handler by its canonical name or any alias.
func (r *Registry) Lookup(name string) (*Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byName[name]
	return h, ok
}

// List returns every registered handler in registration order, canonical
// entries only (aliases are not repeated).
func (r *Registry) List() []*Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Handler, len(r.order))
	copy(out, r.order)
	return out
}

// Names returns every client-visible (non-hidden) canonical property name,
// sorted, for introspection / CLI completion use.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.order))
	for _, h := range r.order {
		if !h.Hidden {
			names = append(names, h.Name)
		}
	}
	sort.Strings(names)
	return names
}

// resolve looks a name up and applies the unknown/hidden/unsupported gates
// common to every dispatcher entry point (spec.md §4.4, steps 3-4).
func (r *Registry) resolve(host Host, name string) (*Handler, error) {
	h, ok := r.Lookup(name)
	if !ok || h.Hidden {
		return nil, portoerr.New(portoerr.InvalidValue, "unknown property %q", name)
	}
	if !h.isSupported(host) {
		return nil, portoerr.New(portoerr.NotSupported, "property %q not supported on this kernel", name)
	}
	return h, nil
}

// Get dispatches a plain Get.
func (r *Registry) Get(ctx *OpContext, c *container.Container, name string) (string, error) {
	h, err := r.resolve(ctx.Host, name)
	if err != nil {
		return "", err
	}
	if h.Get == nil {
		return "", portoerr.New(portoerr.InvalidValue, "property %q is not readable", name)
	}
	return h.Get(ctx, c)
}

// GetIndexed dispatches an indexed Get (map-valued properties, spec.md
// §4.1 "Index semantics").
func (r *Registry) GetIndexed(ctx *OpContext, c *container.Container, name, index string) (string, error) {
	h, err := r.resolve(ctx.Host, name)
	if err != nil {
		return "", err
	}
	if h.GetIndexed == nil {
		return "", portoerr.New(portoerr.InvalidValue, "property %q is not indexed", name)
	}
	return h.GetIndexed(ctx, c, index)
}

// Set dispatches a plain Set, then — on success — marks the PropMask bit
// and runs propagation if the handler declares any (spec.md §4.1, commit
// protocol step 5 and "Propagation").
func (r *Registry) Set(ctx *OpContext, c *container.Container, name, value string) error {
	h, err := r.resolve(ctx.Host, name)
	if err != nil {
		return err
	}
	if h.ReadOnly || h.Set == nil {
		return portoerr.New(portoerr.InvalidValue, "property %q is read-only", name)
	}
	if err := h.Set(ctx, c, value); err != nil {
		return err
	}
	c.PropMask.Set(h.SetMask)

	if h.Propagate != nil {
		for _, child := range ctx.Host.Children(c.Name) {
			if err := r.propagateOne(ctx, h, child, value); err != nil {
				return err
			}
		}
	}
	return nil
}

// propagateOne applies h's value to child if the child hasn't explicitly
// set it and isn't isolated (spec.md §4.1's propagation eligibility rule;
// enable_porto skips both checks), then recurses depth-first into the
// child's own children.
func (r *Registry) propagateOne(ctx *OpContext, h *Handler, child *container.Container, value string) error {
	eligible := h.Name == "enable_porto" || (!child.PropMask.Has(h.SetMask) && !child.Isolate)
	if !eligible {
		return nil
	}
	if err := h.Propagate(ctx, child, value); err != nil {
		return err
	}
	for _, grandchild := range ctx.Host.Children(child.Name) {
		if err := r.propagateOne(ctx, h, grandchild, value); err != nil {
			return err
		}
	}
	return nil
}

// SetIndexed dispatches an indexed Set; writing any index materializes the
// key (spec.md §4.1, "Index semantics").
func (r *Registry) SetIndexed(ctx *OpContext, c *container.Container, name, index, value string) error {
	h, err := r.resolve(ctx.Host, name)
	if err != nil {
		return err
	}
	if h.ReadOnly || h.SetIndexed == nil {
		return portoerr.New(portoerr.InvalidValue, "property %q has no indexed setter", name)
	}
	if err := h.SetIndexed(ctx, c, index, value); err != nil {
		return err
	}
	c.PropMask.Set(h.SetMask)
	return nil
}

// SetFromRestore loads a persisted value back into c, skipping permission
// checks and state gates entirely (spec.md §4.1).
func (r *Registry) SetFromRestore(host Host, c *container.Container, name, value string) error {
	h, ok := r.Lookup(name)
	if !ok || h.SetFromRestore == nil {
		return nil
	}
	if err := h.SetFromRestore(c, value); err != nil {
		return err
	}
	c.PropMask.Set(h.SetMask)
	return nil
}
