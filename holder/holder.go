// Package holder implements the Holder (spec.md §4.4): the process-wide
// container tree plus the concrete property.Host the property engine
// operates against. It is grounded on
// nestybox-sysbox-fs/state/containerDB.go's containerStateService — a
// mutex-guarded table of containers behind a narrow service interface —
// generalized from an id-keyed flat map to a name-keyed
// hashicorp/go-immutable-radix tree, the structure handler/handlerDB.go uses
// for path lookups. Exact-name lookups go through the tree; listing a
// container's children or subtree walks every entry.
package holder

import (
	"strings"
	"sync"
	"time"

	iradix "github.com/hashicorp/go-immutable-radix"
	"github.com/sirupsen/logrus"

	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/portoerr"
	"github.com/ginta1337/porto/property"
	"github.com/ginta1337/porto/traffic"
)

// Holder owns every live container object and the collaborators the
// property engine needs (spec.md §4.4, "Ownership").
type Holder struct {
	mu   sync.RWMutex
	tree *iradix.Tree // absolute name -> *container.Container

	rootName    string
	totalMemory uint64

	mem     domain.MemorySubsystem
	cpu     domain.CpuSubsystem
	cpuacct domain.CpuacctSubsystem
	blkio   domain.BlkioSubsystem
	net     domain.NetworkCapability
	traffic *traffic.Coordinator

	snapshot domain.SnapshotSink
	restore  domain.SnapshotSource
	spawner  domain.TaskSpawner

	registry *property.Registry
}

// Collaborators bundles every external interface the Holder is constructed
// with, mirroring the Setup(...) pattern of
// state/containerDB.go's containerStateService.Setup.
type Collaborators struct {
	Memory      domain.MemorySubsystem
	Cpu         domain.CpuSubsystem
	Cpuacct     domain.CpuacctSubsystem
	Blkio       domain.BlkioSubsystem
	Net         domain.NetworkCapability
	Snapshot    domain.SnapshotSink
	Restore     domain.SnapshotSource
	Spawner     domain.TaskSpawner
	TotalMemory uint64
}

// New builds a Holder with its root container already present, matching the
// source's always-present "/" root (spec.md §3).
func New(rootName string, reg *property.Registry, maxGuarantee, maxLimit uint64, c Collaborators) *Holder {
	h := &Holder{
		tree:        iradix.New(),
		rootName:    rootName,
		totalMemory: c.TotalMemory,
		mem:         c.Memory,
		cpu:         c.Cpu,
		cpuacct:     c.Cpuacct,
		blkio:       c.Blkio,
		net:         c.Net,
		snapshot:    c.Snapshot,
		restore:     c.Restore,
		spawner:     c.Spawner,
		registry:    reg,
	}
	h.traffic = traffic.NewCoordinator(c.Net, h, maxGuarantee, maxLimit)

	root := container.New(rootName, "")
	root.PortoEnabled = true
	h.insert(rootName, root)
	return h
}

func (h *Holder) insert(name string, c *container.Container) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.tree, _, _ = h.tree.Insert([]byte(name), c)
}

// property.Host implementation.

func (h *Holder) Memory() domain.MemorySubsystem           { return h.mem }
func (h *Holder) Cpu() domain.CpuSubsystem                 { return h.cpu }
func (h *Holder) Cpuacct() domain.CpuacctSubsystem         { return h.cpuacct }
func (h *Holder) Blkio() domain.BlkioSubsystem             { return h.blkio }
func (h *Holder) Net() domain.NetworkCapability            { return h.net }
func (h *Holder) Traffic() *traffic.Coordinator            { return h.traffic }
func (h *Holder) RootName() string                         { return h.rootName }
func (h *Holder) TotalMemory() uint64                       { return h.totalMemory }

// Lookup finds a container by its absolute name.
func (h *Holder) Lookup(absoluteName string) (*container.Container, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	v, ok := h.tree.Get([]byte(absoluteName))
	if !ok {
		return nil, false
	}
	return v.(*container.Container), true
}

// Children returns the direct children of absoluteName, ordered by name, the
// way a radix-tree prefix walk naturally yields them.
func (h *Holder) Children(absoluteName string) []*container.Container {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*container.Container
	h.tree.Root().Walk(func(k []byte, v interface{}) bool {
		c := v.(*container.Container)
		if c.ParentName == absoluteName {
			out = append(out, c)
		}
		return false
	})
	return out
}

// All returns every registered container, used by the aging sweep and by
// CLI-facing "list" operations.
func (h *Holder) All() []*container.Container {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var out []*container.Container
	h.tree.Root().Walk(func(k []byte, v interface{}) bool {
		out = append(out, v.(*container.Container))
		return false
	})
	return out
}

// Create registers a new container under parentName, rejecting a duplicate
// name or a missing parent (spec.md §4.4, "Create").
func (h *Holder) Create(name, parentName string) (*container.Container, error) {
	absParent := parentName
	if absParent == "" {
		absParent = h.rootName
	} else {
		absParent = container.AbsoluteName(h.rootName, parentName)
	}
	abs := absParent + "/" + name
	if _, exists := h.Lookup(abs); exists {
		return nil, portoerr.New(portoerr.InvalidValue, "container %q already exists", abs)
	}
	parent, ok := h.Lookup(absParent)
	if !ok {
		return nil, portoerr.New(portoerr.InvalidValue, "parent %q does not exist", absParent)
	}
	if !parent.PortoEnabled {
		return nil, portoerr.New(portoerr.Permission, "enable_porto is disabled for %q", absParent)
	}

	c := container.New(abs, absParent)
	h.insert(abs, c)
	return c, nil
}

// Destroy removes name and its entire subtree from the tree (spec.md §4.4,
// "Destroy").
func (h *Holder) Destroy(name string) error {
	abs := container.AbsoluteName(h.rootName, name)
	if abs == h.rootName {
		return portoerr.New(portoerr.Permission, "cannot destroy the root container")
	}
	if _, ok := h.Lookup(abs); !ok {
		return portoerr.New(portoerr.InvalidValue, "container %q does not exist", abs)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	var toDelete [][]byte
	h.tree.Root().Walk(func(k []byte, v interface{}) bool {
		c := v.(*container.Container)
		if string(k) == abs || c.ParentName == abs || strings.HasPrefix(c.ParentName, abs+"/") {
			toDelete = append(toDelete, k)
		}
		return false
	})
	for _, k := range toDelete {
		h.tree, _, _ = h.tree.Delete(k)
	}
	return nil
}

// AgingSweep destroys every Dead container whose AgingTime has elapsed,
// matching the source's lazy-reaper design (spec.md §4.4, "Aging").
// Intended to be run periodically from cmd/portod's main loop.
func (h *Holder) AgingSweep(now time.Time) {
	for _, c := range h.All() {
		if c.Name == h.rootName {
			continue
		}
		if c.State() != domain.StateDead {
			continue
		}
		if c.AgingTime <= 0 {
			continue
		}
		if c.DeadFor(now) < time.Duration(c.AgingTime)*time.Second {
			continue
		}
		if err := h.Destroy(c.Name); err != nil {
			logrus.Warnf("aging sweep: destroy %s: %v", c.Name, err)
			continue
		}
		logrus.Debugf("aging sweep: destroyed %s after %ds", c.Name, c.AgingTime)
	}
}
