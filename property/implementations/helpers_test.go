package implementations

import (
	"github.com/ginta1337/porto/container"
	"github.com/ginta1337/porto/domain"
	"github.com/ginta1337/porto/traffic"
)

// fakeNet is a no-op domain.NetworkCapability, just enough to construct a
// traffic.Coordinator for tests that don't exercise net_* properties.
type fakeNet struct{}

func (fakeNet) UpdateTrafficClasses(string, uint32, uint32, domain.NetClassParams) error { return nil }
func (fakeNet) RemoveTrafficClasses(string, uint32) error                                { return nil }
func (fakeNet) GetTrafficCounters(string, uint32, domain.TrafficCounterKind) (uint64, error) {
	return 0, nil
}
func (fakeNet) GetInterfaceCounters(string, domain.TrafficCounterKind) (uint64, error) { return 0, nil }
func (fakeNet) AddAnnounce(string) error                                              { return nil }
func (fakeNet) DelAnnounce(string) error                                              { return nil }
func (fakeNet) GetNatAddress() (string, error)                                        { return "", nil }
func (fakeNet) PutNatAddress(string) error                                            { return nil }

// fakeMemory records every mutating call it receives so tests can assert on
// what the commit protocol pushed down, and supports scripted failures.
type fakeMemory struct {
	guarantee          map[string]uint64
	failSetGuarantee   bool
	supportAnon        bool
	supportDirty       bool
	supportRecharge    bool
	usage              uint64
	stats              map[string]uint64
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{guarantee: make(map[string]uint64), stats: make(map[string]uint64)}
}

func (m *fakeMemory) SetGuarantee(containerID string, bytes uint64) domain.Result {
	if m.failSetGuarantee {
		return domain.Result{Err: errFake}
	}
	m.guarantee[containerID] = bytes
	return domain.Result{}
}
func (m *fakeMemory) SetLimit(string, uint64) domain.Result             { return domain.Result{} }
func (m *fakeMemory) SetAnonLimit(string, uint64) domain.Result         { return domain.Result{} }
func (m *fakeMemory) SetDirtyLimit(string, uint64) domain.Result        { return domain.Result{} }
func (m *fakeMemory) SetRechargeOnPgfault(string, bool) domain.Result   { return domain.Result{} }
func (m *fakeMemory) Usage(string) (uint64, error)                      { return m.usage, nil }
func (m *fakeMemory) Statistics(string) (map[string]uint64, error)      { return m.stats, nil }
func (m *fakeMemory) SupportAnonLimit() bool                            { return m.supportAnon }
func (m *fakeMemory) SupportDirtyLimit() bool                           { return m.supportDirty }
func (m *fakeMemory) SupportRechargeOnPgfault() bool                    { return m.supportRecharge }

type fakeErr struct{ msg string }

func (e *fakeErr) Error() string { return e.msg }

var errFake = &fakeErr{msg: "fake failure"}

// fakeCpu/fakeBlkio/fakeCpuacct are minimal always-supported stand-ins, just
// enough to exercise handlers that reach through ctx.Host.Cpu()/Blkio()/
// Cpuacct() without needing a real cgroupfs adapter.
type fakeCpu struct{}

func (fakeCpu) SetCpuPolicy(string, domain.CpuPolicy, float64, float64) domain.Result {
	return domain.Result{}
}
func (fakeCpu) SupportPolicy(domain.CpuPolicy) bool { return true }

type fakeBlkio struct{ stats map[string]uint64 }

func (b fakeBlkio) SetPolicy(string, bool) domain.Result        { return domain.Result{} }
func (b fakeBlkio) SetIoLimit(string, uint64) domain.Result      { return domain.Result{} }
func (b fakeBlkio) SetIopsLimit(string, uint64) domain.Result    { return domain.Result{} }
func (b fakeBlkio) Statistics(string) (map[string]uint64, error) { return b.stats, nil }
func (b fakeBlkio) SupportIopsLimit() bool                       { return true }

type fakeCpuacct struct{}

func (fakeCpuacct) Usage(string) (uint64, error)       { return 0, nil }
func (fakeCpuacct) SystemUsage(string) (uint64, error) { return 0, nil }

// fakeHost is a minimal property.Host over a flat container map, sufficient
// to drive handler Set/Get logic (including tree-wide sums and propagation)
// without a real holder.Holder.
type fakeHost struct {
	root     string
	total    uint64
	mem      *fakeMemory
	byName   map[string]*container.Container
	children map[string][]*container.Container
	traf     *traffic.Coordinator
}

func newFakeHost(root string, mem *fakeMemory) *fakeHost {
	h := &fakeHost{
		root:     root,
		total:    8 << 30,
		mem:      mem,
		byName:   make(map[string]*container.Container),
		children: make(map[string][]*container.Container),
	}
	h.traf = traffic.NewCoordinator(fakeNet{}, h, 0, 0)
	return h
}

func (h *fakeHost) add(c *container.Container) {
	h.byName[c.Name] = c
	h.children[c.ParentName] = append(h.children[c.ParentName], c)
}

func (h *fakeHost) Memory() domain.MemorySubsystem   { return h.mem }
func (h *fakeHost) Cpu() domain.CpuSubsystem         { return fakeCpu{} }
func (h *fakeHost) Cpuacct() domain.CpuacctSubsystem { return fakeCpuacct{} }
func (h *fakeHost) Blkio() domain.BlkioSubsystem     { return fakeBlkio{stats: make(map[string]uint64)} }
func (h *fakeHost) Net() domain.NetworkCapability    { return fakeNet{} }
func (h *fakeHost) Traffic() *traffic.Coordinator    { return h.traf }
func (h *fakeHost) RootName() string                 { return h.root }
func (h *fakeHost) TotalMemory() uint64               { return h.total }

func (h *fakeHost) Lookup(name string) (*container.Container, bool) {
	c, ok := h.byName[name]
	return c, ok
}

func (h *fakeHost) Children(name string) []*container.Container {
	return h.children[name]
}
