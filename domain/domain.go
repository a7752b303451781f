// Package domain holds the types and capability interfaces shared across
// the container core: the container lifecycle state, the enums carried on
// the wire, and the boundary interfaces the core consumes from collaborators
// it does not implement itself (cgroup subsystems, the networking stack,
// the persistence sink).
package domain

import "time"

// State is a container's position in its lifecycle (spec.md §4.2).
type State int

const (
	StateUnknown State = iota
	StateStopped
	StateRunning
	StatePaused
	StateMeta
	StateDead
)

var stateNames = map[State]string{
	StateUnknown: "unknown",
	StateStopped: "stopped",
	StateRunning: "running",
	StatePaused:  "paused",
	StateMeta:    "meta",
	StateDead:    "dead",
}

func (s State) String() string {
	if n, ok := stateNames[s]; ok {
		return n
	}
	return "unknown"
}

// ParseState maps a persisted/wire state name back to a State.
func ParseState(s string) (State, bool) {
	for k, v := range stateNames {
		if v == s {
			return k, true
		}
	}
	return StateUnknown, false
}

// VirtMode selects between a single-command container and an init-like one.
type VirtMode int

const (
	VirtModeApp VirtMode = iota
	VirtModeOS
)

func (v VirtMode) String() string {
	if v == VirtModeOS {
		return "os"
	}
	return "app"
}

// ParseVirtMode maps the wire token back to a VirtMode.
func ParseVirtMode(s string) (VirtMode, bool) {
	switch s {
	case "app":
		return VirtModeApp, true
	case "os":
		return VirtModeOS, true
	default:
		return VirtModeApp, false
	}
}

// CpuPolicy selects the cgroup cpu scheduling class for a container.
type CpuPolicy int

const (
	CpuPolicyNormal CpuPolicy = iota
	CpuPolicyRt
	CpuPolicyIdle
)

func (p CpuPolicy) String() string {
	switch p {
	case CpuPolicyRt:
		return "rt"
	case CpuPolicyIdle:
		return "idle"
	default:
		return "normal"
	}
}

func ParseCpuPolicy(s string) (CpuPolicy, bool) {
	switch s {
	case "normal":
		return CpuPolicyNormal, true
	case "rt":
		return CpuPolicyRt, true
	case "idle":
		return CpuPolicyIdle, true
	default:
		return CpuPolicyNormal, false
	}
}

// IoPolicy selects the cgroup blkio scheduling class for a container.
type IoPolicy int

const (
	IoPolicyNormal IoPolicy = iota
	IoPolicyBatch
)

func (p IoPolicy) String() string {
	if p == IoPolicyBatch {
		return "batch"
	}
	return "normal"
}

func ParseIoPolicy(s string) (IoPolicy, bool) {
	switch s {
	case "normal":
		return IoPolicyNormal, true
	case "batch":
		return IoPolicyBatch, true
	default:
		return IoPolicyNormal, false
	}
}

// Ulimit is a single resource's soft/hard bound. Infinity is represented by
// SoftInf/HardInf (the wire sentinel "unlim"/"unlimited").
type Ulimit struct {
	Soft      uint64
	Hard      uint64
	SoftInf   bool
	HardInf   bool
}

// UlimitNames is the closed set of resource names accepted by the ulimit
// property (spec.md §4.1).
var UlimitNames = []string{
	"as", "core", "cpu", "data", "fsize", "locks", "memlock", "msgqueue",
	"nice", "nofile", "nproc", "rss", "rtprio", "rttime", "sigpending", "stack",
}

// Device describes one device-node grant, shaped after
// opencontainers/runtime-spec's LinuxDevice so the devices property reuses
// the OCI device vocabulary instead of inventing its own.
type Device struct {
	Path        string
	Type        string // "c", "b", or "p"
	Major       int64
	Minor       int64
	Permissions string // subset of "rwm"
	FileMode    uint32
	UID         *uint32
	GID         *uint32
}

// BindMount is one entry of the Bind property.
type BindMount struct {
	Source string
	Dest   string
	ReadOnly bool
}

// Credential is a resolved uid/gid/supplementary-group triple.
type Credential struct {
	Uid    uint32
	Gid    uint32
	Groups []uint32
}

// NetClassParams is the per-(interface) bandwidth shape the Traffic Class
// Coordinator derives from NetGuarantee/NetLimit/NetPriority (spec.md §4.3).
type NetClassParams struct {
	GuaranteeBits uint64
	LimitBits     uint64 // 0 = unlimited
	Priority      int    // 0..7
}

// TrafficCounterKind selects which counter GetTrafficCounters reads back.
type TrafficCounterKind int

const (
	CounterBytes TrafficCounterKind = iota
	CounterPackets
	CounterDrops
	CounterOverlimits
	CounterRxBytes
	CounterRxPackets
	CounterRxDrops
)

// Result is the outcome of a capability call: either ok, or an error with
// the originating errno when the collaborator can supply one (spec.md §6).
type Result struct {
	Err   error
	Errno int
}

func (r Result) Ok() bool { return r.Err == nil }

// MemorySubsystem is the cgroup memory controller, consumed by the memory_*
// properties' commit protocol (spec.md §4.1).
type MemorySubsystem interface {
	SetGuarantee(containerID string, bytes uint64) Result
	SetLimit(containerID string, bytes uint64) Result
	SetAnonLimit(containerID string, bytes uint64) Result
	SetDirtyLimit(containerID string, bytes uint64) Result
	SetRechargeOnPgfault(containerID string, on bool) Result
	Usage(containerID string) (uint64, error)
	Statistics(containerID string) (map[string]uint64, error)
	SupportAnonLimit() bool
	SupportDirtyLimit() bool
	SupportRechargeOnPgfault() bool
}

// CpuSubsystem is the cgroup cpu controller.
type CpuSubsystem interface {
	SetCpuPolicy(containerID string, policy CpuPolicy, guaranteeCores, limitCores float64) Result
	SupportPolicy(policy CpuPolicy) bool
}

// CpuacctSubsystem is the cgroup cpuacct controller, used for usage reads.
type CpuacctSubsystem interface {
	Usage(containerID string) (uint64, error)
	SystemUsage(containerID string) (uint64, error)
}

// BlkioSubsystem is the cgroup blkio controller.
type BlkioSubsystem interface {
	SetPolicy(containerID string, batch bool) Result
	SetIoLimit(containerID string, bytesPerSec uint64) Result
	SetIopsLimit(containerID string, iops uint64) Result
	Statistics(containerID string) (map[string]uint64, error)
	SupportIopsLimit() bool
}

// NetworkCapability is the traffic-shaping + counter-reading boundary the
// Traffic Class Coordinator programs (spec.md §4.3, §6).
type NetworkCapability interface {
	UpdateTrafficClasses(iface string, parentHandle, handle uint32, params NetClassParams) error
	RemoveTrafficClasses(iface string, handle uint32) error
	GetTrafficCounters(iface string, handle uint32, kind TrafficCounterKind) (uint64, error)
	GetInterfaceCounters(iface string, kind TrafficCounterKind) (uint64, error)
	AddAnnounce(addr string) error
	DelAnnounce(addr string) error
	GetNatAddress() (string, error)
	PutNatAddress(addr string) error
}

// SnapshotSink is where a serialized property value is written for restart
// survival (spec.md §6); the persistent store itself is out of core scope.
type SnapshotSink interface {
	SaveProperty(containerName, property, value string) error
}

// SnapshotSource is where persisted property lines are read back from on
// restore.
type SnapshotSource interface {
	LoadProperties(containerName string) (map[string]string, error)
}

// TaskSpawner starts/stops/pauses the OS-level process tree behind a
// container; spawning is out of core scope (spec.md §1) and is consumed
// only as this interface.
type TaskSpawner interface {
	Start(containerID string, command, cwd, root string, env []string) (pid uint32, err error)
	Pause(containerID string) error
	Resume(containerID string) error
	Kill(containerID string) error
}

// Clock lets the core's time-dependent logic (aging sweep, start/death
// timestamps) be driven deterministically in tests.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// RealClock is the production Clock implementation.
var RealClock Clock = realClock{}
