package config

import (
	"context"
	"fmt"
	"sync/atomic"
)

// D-Bus naming shared by the transport and the path allocators.
const (
	BusName       = "com.openlvm.lvmdbus1"
	BaseInterface = "com.openlvm.lvmdbus1"

	ManagerInterface   = BaseInterface + ".Manager"
	PvInterface        = BaseInterface + ".Pv"
	VgInterface        = BaseInterface + ".Vg"
	VgVdoInterface     = BaseInterface + ".VgVdo"
	LvInterface        = BaseInterface + ".Lv"
	LvCommonInterface  = BaseInterface + ".LvCommon"
	ThinPoolInterface  = BaseInterface + ".ThinPool"
	CachePoolInterface = BaseInterface + ".CachePool"
	CachedLvInterface  = BaseInterface + ".CachedLv"
	SnapshotInterface  = BaseInterface + ".Snapshot"
	VdoPoolInterface   = BaseInterface + ".VdoPool"
	JobInterface       = BaseInterface + ".Job"

	BaseObjPath    = "/com/openlvm/lvmdbus1"
	ManagerObjPath = BaseObjPath + "/Manager"
	PvObjPath      = BaseObjPath + "/Pv"
	VgObjPath      = BaseObjPath + "/Vg"
	LvObjPath      = BaseObjPath + "/Lv"
	ThinPoolPath   = BaseObjPath + "/ThinPool"
	CachePoolPath  = BaseObjPath + "/CachePool"
	HiddenLvPath   = BaseObjPath + "/HiddenLv"
	VdoPoolPath    = BaseObjPath + "/VdoPool"
	JobObjPath     = BaseObjPath + "/Job"
)

// Runtime groups the process-wide mutable state: the shutdown flag every
// loop polls, the object path allocation counters and the feature flags
// probed at startup. One Runtime is built by daemon.New and passed explicitly;
// nothing here is a package global.
type Runtime struct {
	Cfg Config

	// VDOSupport is probed once at startup via `lvm segtypes`.
	VDOSupport bool

	ctx      context.Context
	cancel   context.CancelFunc
	exitCode atomic.Int32

	pvID        atomic.Uint64
	vgID        atomic.Uint64
	lvID        atomic.Uint64
	thinID      atomic.Uint64
	cachePoolID atomic.Uint64
	vdoPoolID   atomic.Uint64
	hiddenLvID  atomic.Uint64
	jobID       atomic.Uint64
}

// NewRuntime builds a Runtime around the given configuration.
func NewRuntime(cfg Config) *Runtime {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runtime{Cfg: cfg, ctx: ctx, cancel: cancel}
}

// Context is cancelled when the daemon begins shutting down.
func (r *Runtime) Context() context.Context { return r.ctx }

// Done mirrors Context().Done() for select loops.
func (r *Runtime) Done() <-chan struct{} { return r.ctx.Done() }

// Running reports whether shutdown has not started yet.
func (r *Runtime) Running() bool {
	select {
	case <-r.ctx.Done():
		return false
	default:
		return true
	}
}

// Shutdown starts daemon shutdown with the given process exit code. The
// first caller wins; later calls keep the earlier exit code.
func (r *Runtime) Shutdown(exitCode int) {
	r.exitCode.CompareAndSwap(0, int32(exitCode))
	r.cancel()
}

// ExitCode returns the exit code recorded by Shutdown.
func (r *Runtime) ExitCode() int { return int(r.exitCode.Load()) }

// Path allocators. Each hands out a process-unique object path for a new
// entity of its kind.

func (r *Runtime) NextPvPath() string {
	return fmt.Sprintf("%s/%d", PvObjPath, r.pvID.Add(1)-1)
}

func (r *Runtime) NextVgPath() string {
	return fmt.Sprintf("%s/%d", VgObjPath, r.vgID.Add(1)-1)
}

func (r *Runtime) NextLvPath() string {
	return fmt.Sprintf("%s/%d", LvObjPath, r.lvID.Add(1)-1)
}

func (r *Runtime) NextThinPoolPath() string {
	return fmt.Sprintf("%s/%d", ThinPoolPath, r.thinID.Add(1)-1)
}

func (r *Runtime) NextCachePoolPath() string {
	return fmt.Sprintf("%s/%d", CachePoolPath, r.cachePoolID.Add(1)-1)
}

func (r *Runtime) NextVdoPoolPath() string {
	return fmt.Sprintf("%s/%d", VdoPoolPath, r.vdoPoolID.Add(1)-1)
}

func (r *Runtime) NextHiddenLvPath() string {
	return fmt.Sprintf("%s/%d", HiddenLvPath, r.hiddenLvID.Add(1)-1)
}

func (r *Runtime) NextJobPath() string {
	return fmt.Sprintf("%s/%d", JobObjPath, r.jobID.Add(1)-1)
}
