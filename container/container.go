// Package container implements the porto Container entity and its state
// machine (spec.md §3, §4.2): the typed in-memory record, its lifecycle,
// and the mask of which properties were explicitly set. It is grounded on
// nestybox-sysbox-fs/state/container.go — the mutex-guarded struct with
// getter/setter pairs and an internal lock distinct from the externally
// exposed Lock()/Unlock() — generalized from "container-state for FUSE
// emulation" to "container-state for the property engine".
package container

import (
	"strings"
	"sync"
	"time"

	"github.com/ginta1337/porto/capability"
	"github.com/ginta1337/porto/domain"
)

// EnvVar is one entry of the ordered Env binding list; ordering matters for
// the textual "KEY=VALUE;KEY=VALUE" round-trip (spec.md §6).
type EnvVar struct {
	Key   string
	Value string
}

// Container is the central entity of spec.md §3. Parent/children are held
// as weak name references only (spec.md §9) — the Holder resolves them at
// walk time, which keeps container objects acyclic and lets the Holder be
// their sole owner.
type Container struct {
	mu sync.RWMutex

	// identity
	Name       string
	ParentName string // "" at the tree root
	Id         int
	LoopDev    int
	StartTime  int64 // ms since epoch
	DeathTime  int64

	// credentials
	OwnerCred    domain.Credential
	TaskCred     domain.Credential
	Capabilities capability.Set

	// lifecycle
	state        domain.State
	ExitStatus   int
	OomKilled    bool
	RespawnCount int
	MaxRespawns  int // -1 = unlimited
	AgingTime    int // seconds before auto-removal once Dead
	StartErrno   int

	// runtime shape
	Command       string
	Cwd           string
	Root          string
	RootReadOnly  bool
	BindDns       bool
	Isolate       bool
	VirtMode      domain.VirtMode
	Hostname      string
	StdinPath     string
	StdoutPath    string
	StderrPath    string
	StdoutLimit   uint64
	StdoutOffset  uint64
	StderrOffset  uint64
	Env           []EnvVar
	Bind          []domain.BindMount
	Devices       []domain.Device
	Ulimits       map[string]domain.Ulimit

	// network
	NetProp       []string // raw semicolon-separated net-spec lines
	IpList        []string
	DefaultGw     string
	ResolvConf    string
	NetGuarantee  map[string]uint64
	NetLimit      map[string]uint64
	NetPriority   map[string]int
	NetTos        int
	PortoEnabled  bool

	// resources
	MemGuarantee        uint64
	CurrentMemGuarantee uint64
	MemLimit            uint64
	AnonMemLimit        uint64
	DirtyMemLimit       uint64
	RechargeOnPgfault   bool
	CpuPolicy           domain.CpuPolicy
	CpuLimit            float64 // cores
	CpuGuarantee        float64 // cores
	IoPolicy            domain.IoPolicy
	IoLimit             uint64
	IopsLimit           uint64

	// housekeeping
	IsWeak      bool
	Private     string
	ToRespawn   bool
	NsName      string

	// stats snapshot, populated by the TaskSpawner/collaborator on exit and
	// read back by the running-readable stat properties.
	RootPid int

	PropMask PropMask
}

// New creates a container entered into Stopped, the way the Holder does
// when a client creates a new container under a parent (spec.md §3,
// "Lifecycle").
func New(name, parentName string) *Container {
	return &Container{
		Name:        name,
		ParentName:  parentName,
		state:       domain.StateStopped,
		MaxRespawns: -1,
		AgingTime:   10,
		Ulimits:     make(map[string]domain.Ulimit),
		NetGuarantee: make(map[string]uint64),
		NetLimit:     make(map[string]uint64),
		NetPriority:  make(map[string]int),
	}
}

// NewRestored creates a container arriving directly with its saved state
// (spec.md §3, "Restored entities arrive with their saved state directly").
func NewRestored(name, parentName string, state domain.State) *Container {
	c := New(name, parentName)
	c.state = state
	return c
}

func (c *Container) State() domain.State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// SetStateFromRestore sets state directly, bypassing the transition table —
// used only by SetFromRestore handlers (spec.md §4.1).
func (c *Container) SetStateFromRestore(s domain.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Lock/Unlock expose the container's external lock for callers that need to
// hold it across multiple operations (e.g. a multi-field restore); the
// Dispatcher otherwise serializes all mutation on its single logical
// thread (spec.md §5).
func (c *Container) Lock()   { c.mu.Lock() }
func (c *Container) Unlock() { c.mu.Unlock() }

// AbsoluteName prefixes name with the root container's name unless name is
// already the root or already carries the root prefix (spec.md §4.2,
// "Derived values").
func AbsoluteName(rootName, name string) string {
	if name == rootName || name == "" {
		return rootName
	}
	if strings.HasPrefix(name, rootName+"/") {
		return name
	}
	return rootName + "/" + name
}

// Uptime returns the container's running time, or its lifetime at death if
// Dead (spec.md §4.2, "Derived values: Time").
func (c *Container) Uptime(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.StartTime == 0 {
		return 0
	}
	end := now.UnixMilli()
	if c.state == domain.StateDead && c.DeathTime != 0 {
		end = c.DeathTime
	}
	d := end - c.StartTime
	if d < 0 {
		d = 0
	}
	return time.Duration(d) * time.Millisecond
}

// DeadFor reports how long ago the container died; used by the aging
// sweep (spec.md §4.4).
func (c *Container) DeadFor(now time.Time) time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.state != domain.StateDead || c.DeathTime == 0 {
		return 0
	}
	return time.Duration(now.UnixMilli()-c.DeathTime) * time.Millisecond
}
