// Command portod is the container manager daemon: it boots the property
// registry, the Holder and its collaborators, and serves property
// operations to clients until a termination signal arrives. It is grounded
// on nestybox-sysbox-fs/cmd/sysbox-fs/main.go: the same cli.App shape, the
// same log-file/log-level/log-format flag trio, the same signal-driven
// exitHandler goroutine and pkg/profile wiring, generalized from FUSE
// daemon bootstrap to container-manager bootstrap.
package main

import (
	"fmt"
	"math/rand"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	systemd "github.com/coreos/go-systemd/daemon"
	"github.com/pkg/profile"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/ginta1337/porto/cgroupfs"
	"github.com/ginta1337/porto/holder"
	"github.com/ginta1337/porto/property"
	"github.com/ginta1337/porto/property/implementations"
	"github.com/ginta1337/porto/traffic"
	"github.com/ginta1337/porto/traffic/netlinkcap"
)

const (
	portodRunDir string = "/run/portod"
	portodPidFile string = portodRunDir + "/portod.pid"
	usage        string = `portod container manager

portod tracks the lifecycle and resource properties of a tree of Linux
containers: cgroup limits, network namespaces and traffic classes,
capabilities, and their propagation down the container tree.
`
)

var (
	version  string
	commitId string
	builtAt  string
	builtBy  string
)

func exitHandler(signalChan chan os.Signal, h *holder.Holder, prof interface{ Stop() }) {
	var printStack bool

	s := <-signalChan
	logrus.Warnf("portod caught signal: %s", s)
	logrus.Info("Stopping (gracefully) ...")

	systemd.SdNotify(false, systemd.SdNotifyStopping)

	switch s {
	case syscall.SIGABRT, syscall.SIGINT, syscall.SIGQUIT, syscall.SIGSEGV:
		printStack = true
	}
	if printStack {
		stacktrace := make([]byte, 32768)
		length := runtime.Stack(stacktrace, true)
		logrus.Warnf("\n\n%s\n", string(stacktrace[:length]))
	}

	if prof != nil {
		prof.Stop()
	}

	if err := os.Remove(portodPidFile); err != nil && !os.IsNotExist(err) {
		logrus.Warnf("failed to remove portod pid file: %v", err)
	}

	logrus.Info("Exiting ...")
	os.Exit(0)
}

func runProfiler(ctx *cli.Context) (interface{ Stop() }, error) {
	var prof interface{ Stop() }

	cpuProfOn := ctx.Bool("cpu-profiling")
	memProfOn := ctx.Bool("memory-profiling")

	if cpuProfOn && memProfOn {
		return nil, fmt.Errorf("unsupported parameter combination: cpu and memory profiling")
	}
	if !(cpuProfOn || memProfOn) {
		return nil, nil
	}

	if cpuProfOn {
		prof = profile.Start(profile.CPUProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	}
	if memProfOn {
		prof = profile.Start(profile.MemProfile, profile.ProfilePath("."), profile.NoShutdownHook)
	}
	return prof, nil
}

func setupRunDir() error {
	if err := os.MkdirAll(portodRunDir, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %s", portodRunDir, err)
	}
	return nil
}

func agingLoop(h *holder.Holder, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			h.AgingSweep(time.Now())
		case <-stop:
			return
		}
	}
}

func main() {
	app := cli.NewApp()
	app.Name = "portod"
	app.Usage = usage
	app.Version = version

	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "cgroup-root",
			Value: "/sys/fs/cgroup",
			Usage: "cgroupfs mount point",
		},
		cli.StringFlag{
			Name:  "root-container",
			Value: "porto",
			Usage: "name of the always-present root container",
		},
		cli.Uint64Flag{
			Name:  "max-net-guarantee",
			Value: 0,
			Usage: "platform ceiling for net_guarantee, in bits/s (0 = unbounded)",
		},
		cli.Uint64Flag{
			Name:  "max-net-limit",
			Value: 0,
			Usage: "platform ceiling for net_limit, in bits/s (0 = unbounded)",
		},
		cli.Uint64Flag{
			Name:  "total-memory",
			Value: 0,
			Usage: "host physical memory, in bytes, used for the memory_guarantee overcommit check (0 = unenforced)",
		},
		cli.DurationFlag{
			Name:  "aging-interval",
			Value: 30 * time.Second,
			Usage: "interval between Dead-container aging sweeps",
		},
		cli.StringFlag{
			Name:  "log",
			Value: "",
			Usage: "log file path or empty string for stderr output",
		},
		cli.StringFlag{
			Name:  "log-level",
			Value: "info",
			Usage: "log categories to include (debug, info, warning, error, fatal)",
		},
		cli.StringFlag{
			Name:  "log-format",
			Value: "text",
			Usage: "log format; must be json or text",
		},
		cli.BoolFlag{
			Name:   "cpu-profiling",
			Usage:  "enable cpu-profiling data collection",
			Hidden: true,
		},
		cli.BoolFlag{
			Name:   "memory-profiling",
			Usage:  "enable memory-profiling data collection",
			Hidden: true,
		},
	}

	cli.VersionPrinter = func(c *cli.Context) {
		fmt.Printf("portod\n\tversion: \t%s\n\tcommit: \t%s\n\tbuilt at: \t%s\n\tbuilt by: \t%s\n",
			c.App.Version, commitId, builtAt, builtBy)
	}

	app.Before = func(ctx *cli.Context) error {
		rand.Seed(time.Now().UnixNano())

		if path := ctx.GlobalString("log"); path != "" {
			f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND|os.O_SYNC, 0666)
			if err != nil {
				logrus.Fatalf("error opening log file %v: %v. Exiting ...", path, err)
				return err
			}
			logrus.SetOutput(f)
		} else {
			logrus.SetOutput(os.Stderr)
		}

		if ctx.GlobalString("log-format") == "json" {
			logrus.SetFormatter(&logrus.JSONFormatter{TimestampFormat: "2006-01-02 15:04:05"})
		} else {
			logrus.SetFormatter(&logrus.TextFormatter{TimestampFormat: "2006-01-02 15:04:05", FullTimestamp: true})
		}

		switch ctx.GlobalString("log-level") {
		case "debug":
			logrus.SetLevel(logrus.DebugLevel)
		case "warning":
			logrus.SetLevel(logrus.WarnLevel)
		case "error":
			logrus.SetLevel(logrus.ErrorLevel)
		case "fatal":
			logrus.SetLevel(logrus.FatalLevel)
		case "info", "":
			logrus.SetLevel(logrus.InfoLevel)
		default:
			logrus.Fatalf("log-level option %q not recognized. Exiting ...", ctx.GlobalString("log-level"))
		}

		return nil
	}

	app.Action = func(ctx *cli.Context) error {
		logrus.Info("Initiating portod ...")

		if err := setupRunDir(); err != nil {
			return err
		}

		reg := property.NewRegistry()
		implementations.Register(reg)
		logrus.Infof("registered %d properties", len(reg.List()))

		fs := cgroupfs.New(ctx.GlobalString("cgroup-root"))
		mem := cgroupfs.NewMemory(fs)
		cpu := cgroupfs.NewCpu(fs)
		cpuacct := cgroupfs.NewCpuacct(fs)
		blkio := cgroupfs.NewBlkio(fs)

		netAdapter := netlinkcap.New()

		h := holder.New(ctx.GlobalString("root-container"), reg,
			ctx.GlobalUint64("max-net-guarantee"), ctx.GlobalUint64("max-net-limit"),
			holder.Collaborators{
				Memory:      mem,
				Cpu:         cpu,
				Cpuacct:     cpuacct,
				Blkio:       blkio,
				Net:         netAdapter,
				TotalMemory: ctx.GlobalUint64("total-memory"),
			})
		// dispatcher is the wire boundary every external transport (RPC
		// server, CLI client) is meant to sit in front of; none is wired up
		// yet, so it's held here only to keep the Holder's lifetime tied to
		// something a future transport can capture.
		dispatcher := holder.NewDispatcher(h, reg)
		_ = dispatcher
		logrus.Infof("dispatcher ready, net_priority range [0,%d]", traffic.MaxPriority)

		prof, err := runProfiler(ctx)
		if err != nil {
			logrus.Fatal(err)
		}

		stopAging := make(chan struct{})
		go agingLoop(h, ctx.Duration("aging-interval"), stopAging)

		exitChan := make(chan os.Signal, 1)
		signal.Notify(exitChan, syscall.SIGHUP, syscall.SIGINT, syscall.SIGTERM, syscall.SIGSEGV, syscall.SIGQUIT)
		go exitHandler(exitChan, h, prof)

		systemd.SdNotify(false, systemd.SdNotifyReady)
		logrus.Info("Ready ...")

		select {}
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
