// Package cgroupfs implements domain.MemorySubsystem, domain.CpuSubsystem,
// domain.CpuacctSubsystem and domain.BlkioSubsystem against the real
// cgroupfs pseudo-filesystem (spec.md §1's "out of core scope" capability
// collaborators, supplied here as the concrete adapter cmd/portod wires
// in). It is grounded on nestybox-sysbox-fs/sysio/ionodeFile.go: the same
// afero.Fs indirection — OsFs in production, MemMapFs in tests — over raw
// pseudo-file read/write, generalized from procfs/sysfs emulation to
// cgroupfs control-file programming.
package cgroupfs

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/afero"

	"github.com/ginta1337/porto/domain"
)

// Fs is the shared afero.Fs handle and cgroup mount root every controller
// adapter in this package operates against.
type Fs struct {
	appFs afero.Fs
	root  string // e.g. "/sys/fs/cgroup"
}

// New builds an Fs rooted at the real OS cgroup mount.
func New(root string) *Fs {
	return &Fs{appFs: afero.NewOsFs(), root: root}
}

// NewMem builds an in-memory Fs for tests, matching sysio's
// domain.IOMemFileService mode.
func NewMem(root string) *Fs {
	return &Fs{appFs: afero.NewMemMapFs(), root: root}
}

func (f *Fs) path(controller, containerID, file string) string {
	// containerID is an absolute container name like "porto/build/worker";
	// it's flattened with "." so each container gets its own leaf cgroup
	// rather than nesting on the container tree's "/" separators.
	leaf := strings.ReplaceAll(strings.TrimPrefix(containerID, "/"), "/", ".")
	return filepath.Join(f.root, controller, "porto", leaf, file)
}

func (f *Fs) readUint64(controller, containerID, file string) (uint64, error) {
	data, err := afero.ReadFile(f.appFs, f.path(controller, containerID, file))
	if err != nil {
		return 0, err
	}
	return strconv.ParseUint(strings.TrimSpace(string(data)), 10, 64)
}

func (f *Fs) writeValue(controller, containerID, file, value string) domain.Result {
	p := f.path(controller, containerID, file)
	if err := f.appFs.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return errnoResult(err)
	}
	if err := afero.WriteFile(f.appFs, p, []byte(value), 0644); err != nil {
		return errnoResult(err)
	}
	return domain.Result{}
}

func (f *Fs) rootExists(controller, file string) bool {
	ok, _ := afero.Exists(f.appFs, filepath.Join(f.root, controller, file))
	return ok
}

func (f *Fs) readStatFile(controller, containerID, file string) (map[string]uint64, error) {
	data, err := afero.ReadFile(f.appFs, f.path(controller, containerID, file))
	if err != nil {
		return nil, err
	}
	out := make(map[string]uint64)
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.Fields(line)
		if len(fields) != 2 {
			continue
		}
		v, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			continue
		}
		out[fields[0]] = v
	}
	return out, nil
}

func errnoResult(err error) domain.Result {
	if errno, ok := unwrapErrno(err); ok {
		return domain.Result{Err: err, Errno: int(errno)}
	}
	return domain.Result{Err: err}
}

func unwrapErrno(err error) (syscall.Errno, bool) {
	type errnoer interface{ Unwrap() error }
	for err != nil {
		if e, ok := err.(syscall.Errno); ok {
			return e, true
		}
		u, ok := err.(errnoer)
		if !ok {
			return 0, false
		}
		err = u.Unwrap()
	}
	return 0, false
}

// Memory is the cgroup "memory" controller adapter.
type Memory struct{ *Fs }

func NewMemory(fs *Fs) *Memory { return &Memory{fs} }

func (m *Memory) SetGuarantee(containerID string, bytes uint64) domain.Result {
	return m.writeValue("memory", containerID, "memory.soft_limit_in_bytes", strconv.FormatUint(bytes, 10))
}

func (m *Memory) SetLimit(containerID string, bytes uint64) domain.Result {
	return m.writeValue("memory", containerID, "memory.limit_in_bytes", strconv.FormatUint(bytes, 10))
}

func (m *Memory) SetAnonLimit(containerID string, bytes uint64) domain.Result {
	return m.writeValue("memory", containerID, "memory.anon.limit_in_bytes", strconv.FormatUint(bytes, 10))
}

func (m *Memory) SetDirtyLimit(containerID string, bytes uint64) domain.Result {
	return m.writeValue("memory", containerID, "memory.dirty_limit_in_bytes", strconv.FormatUint(bytes, 10))
}

func (m *Memory) SetRechargeOnPgfault(containerID string, on bool) domain.Result {
	v := "0"
	if on {
		v = "1"
	}
	return m.writeValue("memory", containerID, "memory.recharge_on_pgfault", v)
}

func (m *Memory) Usage(containerID string) (uint64, error) {
	return m.readUint64("memory", containerID, "memory.usage_in_bytes")
}

func (m *Memory) Statistics(containerID string) (map[string]uint64, error) {
	stats, err := m.readStatFile("memory", containerID, "memory.stat")
	if err != nil {
		return nil, err
	}
	if v, ok := stats["total_rss"]; ok {
		stats["max_rss"] = v
	}
	if v, ok := stats["pgmajfault"]; ok {
		stats["major_faults"] = v
	}
	if v, ok := stats["pgfault"]; ok {
		stats["minor_faults"] = v
	}
	return stats, nil
}

// Feature detection for anon/dirty-limit and recharge-on-pgfault would
// normally probe the root cgroup for these control files; a generic porto
// leaf cgroup hasn't been created yet at Supported()-check time, so this
// checks the controller's root directory instead.
func (m *Memory) SupportAnonLimit() bool { return m.rootExists("memory", "memory.anon.limit_in_bytes") }

func (m *Memory) SupportDirtyLimit() bool {
	return m.rootExists("memory", "memory.dirty_limit_in_bytes")
}

func (m *Memory) SupportRechargeOnPgfault() bool {
	return m.rootExists("memory", "memory.recharge_on_pgfault")
}

// Cpu is the cgroup "cpu" controller adapter.
type Cpu struct{ *Fs }

func NewCpu(fs *Fs) *Cpu { return &Cpu{fs} }

const cfsPeriodUs = 100000

func (c *Cpu) SetCpuPolicy(containerID string, policy domain.CpuPolicy, guaranteeCores, limitCores float64) domain.Result {
	shares := uint64(guaranteeCores * 1024)
	if shares == 0 {
		shares = 1024
	}
	if res := c.writeValue("cpu", containerID, "cpu.shares", strconv.FormatUint(shares, 10)); !res.Ok() {
		return res
	}

	quota := int64(-1)
	if limitCores > 0 {
		quota = int64(limitCores * cfsPeriodUs)
	}
	if res := c.writeValue("cpu", containerID, "cpu.cfs_period_us", strconv.Itoa(cfsPeriodUs)); !res.Ok() {
		return res
	}
	if res := c.writeValue("cpu", containerID, "cpu.cfs_quota_us", strconv.FormatInt(quota, 10)); !res.Ok() {
		return res
	}

	switch policy {
	case domain.CpuPolicyRt:
		rtRuntime := int64(limitCores * cfsPeriodUs)
		if rtRuntime <= 0 {
			rtRuntime = cfsPeriodUs
		}
		return c.writeValue("cpu", containerID, "cpu.rt_runtime_us", strconv.FormatInt(rtRuntime, 10))
	case domain.CpuPolicyIdle:
		return c.writeValue("cpu", containerID, "cpu.shares", "2")
	default:
		return domain.Result{}
	}
}

func (c *Cpu) SupportPolicy(policy domain.CpuPolicy) bool {
	if policy == domain.CpuPolicyRt {
		return c.rootExists("cpu", "cpu.rt_runtime_us")
	}
	return true
}

// Cpuacct is the cgroup "cpuacct" controller adapter.
type Cpuacct struct{ *Fs }

func NewCpuacct(fs *Fs) *Cpuacct { return &Cpuacct{fs} }

func (c *Cpuacct) Usage(containerID string) (uint64, error) {
	return c.readUint64("cpuacct", containerID, "cpuacct.usage")
}

func (c *Cpuacct) SystemUsage(containerID string) (uint64, error) {
	stats, err := c.readStatFile("cpuacct", containerID, "cpuacct.stat")
	if err != nil {
		return 0, err
	}
	return stats["system"], nil
}

// Blkio is the cgroup "blkio" controller adapter.
type Blkio struct{ *Fs }

func NewBlkio(fs *Fs) *Blkio { return &Blkio{fs} }

func (b *Blkio) SetPolicy(containerID string, batch bool) domain.Result {
	weight := "500"
	if batch {
		weight = "100"
	}
	return b.writeValue("blkio", containerID, "blkio.weight", weight)
}

func (b *Blkio) SetIoLimit(containerID string, bytesPerSec uint64) domain.Result {
	return b.writeValue("blkio", containerID, "blkio.throttle.total_bps_device", strconv.FormatUint(bytesPerSec, 10))
}

func (b *Blkio) SetIopsLimit(containerID string, iops uint64) domain.Result {
	return b.writeValue("blkio", containerID, "blkio.throttle.total_iops_device", strconv.FormatUint(iops, 10))
}

func (b *Blkio) Statistics(containerID string) (map[string]uint64, error) {
	read, err1 := b.readStatFile("blkio", containerID, "blkio.throttle.io_service_bytes")
	ops, err2 := b.readStatFile("blkio", containerID, "blkio.throttle.io_serviced")
	if err1 != nil && err2 != nil {
		return nil, fmt.Errorf("blkio statistics: %v / %v", err1, err2)
	}
	out := make(map[string]uint64)
	out["read"] = read["Read"]
	out["write"] = read["Write"]
	out["ops"] = ops["Total"]
	return out, nil
}

func (b *Blkio) SupportIopsLimit() bool {
	return b.rootExists("blkio", "blkio.throttle.total_iops_device")
}
