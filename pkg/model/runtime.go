package model

import (
	"github.com/openlvm/lvmdbusd/pkg/background"
	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/coordinator"
	"github.com/openlvm/lvmdbusd/pkg/datastore"
	"github.com/openlvm/lvmdbusd/pkg/jobs"
	"github.com/openlvm/lvmdbusd/pkg/lvmcmd"
	"github.com/openlvm/lvmdbusd/pkg/objectmgr"
	"github.com/openlvm/lvmdbusd/pkg/worker"
)

// Runtime bundles the daemon-wide collaborators every entity handler
// uses. One Runtime is assembled at startup and passed to entities at
// construction; there are no package globals.
type Runtime struct {
	Cfg  *config.Runtime
	OM   *objectmgr.Manager
	DB   *datastore.Store
	Exec *lvmcmd.Executor
	Q    *worker.Queue
	Jobs *jobs.Registry
	BG   *background.Ops

	// Refresh is the coordinator's Load; wired after the coordinator is
	// constructed (it needs this package's loader first).
	Refresh func(opts coordinator.Opts) (uint64, error)
}

// refresh performs the full default refresh on behalf of a mutating
// handler that succeeded.
func (rt *Runtime) refresh() (uint64, error) {
	return rt.Refresh(coordinator.DefaultOpts())
}

// refreshNoCache reconciles against the current snapshot without
// re-running the fullreport.
func (rt *Runtime) refreshNoCache() (uint64, error) {
	o := coordinator.DefaultOpts()
	o.CacheRefresh = false
	return rt.Refresh(o)
}
