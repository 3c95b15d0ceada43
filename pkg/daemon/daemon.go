package daemon

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/openlvm/lvmdbusd/pkg/background"
	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/coordinator"
	"github.com/openlvm/lvmdbusd/pkg/datastore"
	"github.com/openlvm/lvmdbusd/pkg/dbusapi"
	"github.com/openlvm/lvmdbusd/pkg/events"
	"github.com/openlvm/lvmdbusd/pkg/jobs"
	"github.com/openlvm/lvmdbusd/pkg/log"
	"github.com/openlvm/lvmdbusd/pkg/lvmcmd"
	"github.com/openlvm/lvmdbusd/pkg/metrics"
	"github.com/openlvm/lvmdbusd/pkg/model"
	"github.com/openlvm/lvmdbusd/pkg/objectmgr"
	"github.com/openlvm/lvmdbusd/pkg/udevmon"
	"github.com/openlvm/lvmdbusd/pkg/worker"
)

// ExitLockHeld is returned when another daemon instance owns the lock.
const ExitLockHeld = 114

// Daemon wires every component together and supervises their
// goroutines.
type Daemon struct {
	rt     *config.Runtime
	rec    *lvmcmd.FlightRecorder
	exec   *lvmcmd.Executor
	broker *events.Broker
	om     *objectmgr.Manager
	db     *datastore.Store
	queue  *worker.Queue
	wrk    *worker.Worker
	jobs   *jobs.Registry
	bg     *background.Ops
	coord  *coordinator.StateUpdate
	svc    *dbusapi.Service
	udev   *udevmon.Monitor
	log    zerolog.Logger

	lockFile *os.File
}

// New builds a daemon from the given configuration. Probes lvm,
// performs the initial load and connects to the bus; a returned error
// is fatal init.
func New(cfg config.Config) (*Daemon, error) {
	rt := config.NewRuntime(cfg)
	logger := log.WithComponent("daemon")

	rec := lvmcmd.NewFlightRecorder(cfg.FlightRecorderSize)
	exec := lvmcmd.New(rt, rec)

	if !exec.SupportsJSON() {
		return nil, fmt.Errorf("unsupported version of lvm, daemon requires JSON output")
	}
	rt.VDOSupport = exec.SupportsVDO()

	if cfg.UseLvmShell {
		exec.SetExecution(true)
	}

	broker := events.NewBroker()
	broker.Start()

	om := objectmgr.New(broker)
	db := datastore.New(rt, exec)
	queue := worker.NewQueue()
	jobsReg := jobs.NewRegistry(rt, om)
	bg := background.New(rt, queue, jobsReg)

	mrt := &model.Runtime{
		Cfg:  rt,
		OM:   om,
		DB:   db,
		Exec: exec,
		Q:    queue,
		Jobs: jobsReg,
		BG:   bg,
	}

	loader := model.NewLoader(mrt)
	coord := coordinator.New(rt, loader.Load, rec)
	mrt.Refresh = coord.Load
	bg.Refresh = func() (uint64, error) { return coord.Load(coordinator.DefaultOpts()) }

	throttle := model.NewEventThrottle(mrt)
	mgr := model.NewManager(mrt, throttle)
	om.Register(mgr, false)

	// Initial population happens inline, before the coordinator loop and
	// the bus go live; no signals for objects nobody has seen yet.
	initial := coordinator.Opts{Refresh: false, EmitSignal: false, CacheRefresh: true, Log: true}
	if _, err := loader.Load(initial); err != nil {
		return nil, fmt.Errorf("initial state load failed: %w", err)
	}

	svc, err := dbusapi.New(rt, om, broker, jobsReg)
	if err != nil {
		return nil, err
	}
	svc.ExportExisting()

	udev := udevmon.New(rt,
		func(id string) bool { return om.ByLvmID(id) != nil },
		throttle.Add)

	if !cfg.UseUdev {
		// Monitor udev until the first ExternalEvent proves an external
		// notifier is wired up.
		mgr.OnExternalEvent = udev.Stop
	}

	return &Daemon{
		rt:     rt,
		rec:    rec,
		exec:   exec,
		broker: broker,
		om:     om,
		db:     db,
		queue:  queue,
		wrk:    worker.New(rt, queue, db),
		jobs:   jobsReg,
		bg:     bg,
		coord:  coord,
		svc:    svc,
		udev:   udev,
		log:    logger,
	}, nil
}

// acquireLock takes the process-wide exclusive lock file.
func (d *Daemon) acquireLock() error {
	f, err := os.OpenFile(d.rt.Cfg.LockFile, os.O_CREATE|os.O_RDWR, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open lock file %s: %w", d.rt.Cfg.LockFile, err)
	}
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		f.Close()
		return fmt.Errorf("another instance holds %s: %w", d.rt.Cfg.LockFile, err)
	}
	d.lockFile = f
	return nil
}

// Run starts every goroutine and blocks until shutdown. The returned
// exit code is the process's.
func (d *Daemon) Run() int {
	if err := d.acquireLock(); err != nil {
		d.log.Error().Err(err).Msg("daemon already running")
		return ExitLockHeld
	}
	defer func() {
		d.lockFile.Close()
		os.Remove(d.rt.Cfg.LockFile)
	}()

	sigCh := make(chan os.Signal, 4)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP, syscall.SIGUSR2)

	var g errgroup.Group
	g.Go(func() error { d.wrk.Run(); return nil })
	g.Go(func() error { d.coord.Run(); return nil })
	g.Go(func() error { d.bg.Reaper(); return nil })
	g.Go(func() error { d.svc.Run(); return nil })

	if err := d.udev.Start(); err != nil {
		d.log.Warn().Err(err).Msg("udev monitoring unavailable")
	} else {
		g.Go(func() error { d.udev.Run(); return nil })
	}

	if addr := d.rt.Cfg.MetricsAddr; addr != "" {
		srv := &http.Server{Addr: addr, Handler: metrics.Handler()}
		g.Go(func() error {
			if err := srv.ListenAndServe(); err != http.ErrServerClosed {
				d.log.Error().Err(err).Msg("metrics listener failed")
			}
			return nil
		})
		g.Go(func() error {
			<-d.rt.Done()
			return srv.Close()
		})
	}

	g.Go(func() error {
		for {
			select {
			case sig := <-sigCh:
				switch sig {
				case syscall.SIGUSR2:
					d.rec.Dump(d.log)
				default:
					d.log.Info().Str("signal", sig.String()).Msg("shutting down")
					d.rt.Shutdown(0)
					return nil
				}
			case <-d.rt.Done():
				return nil
			}
		}
	})

	d.log.Info().
		Bool("vdo", d.rt.VDOSupport).
		Bool("shell", d.exec.InShellMode()).
		Msg("service ready")

	<-d.rt.Done()

	// Teardown order: stop spawning work, unstick the executor, then
	// drop the bus.
	d.udev.Stop()
	d.exec.Stop()

	done := make(chan struct{})
	go func() {
		_ = g.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		d.log.Error().Msg("component shutdown timed out")
	}

	d.broker.Stop()
	d.svc.Close()
	return d.rt.ExitCode()
}
