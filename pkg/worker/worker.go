package worker

import (
	"time"

	"github.com/rs/zerolog"

	"github.com/openlvm/lvmdbusd/pkg/config"
	"github.com/openlvm/lvmdbusd/pkg/datastore"
	"github.com/openlvm/lvmdbusd/pkg/faults"
	"github.com/openlvm/lvmdbusd/pkg/log"
)

// Worker is the single goroutine that executes request handlers. All
// mutations of the object manager and datastore happen here, directly or
// through the coordinator acting on the worker's behalf.
type Worker struct {
	rt  *config.Runtime
	q   *Queue
	db  *datastore.Store
	log zerolog.Logger
}

// New creates a worker draining q.
func New(rt *config.Runtime, q *Queue, db *datastore.Store) *Worker {
	return &Worker{rt: rt, q: q, db: db, log: log.WithComponent("worker")}
}

// Run drains the queue until shutdown, then resolves whatever is left
// with a shutdown error so no caller hangs.
func (w *Worker) Run() {
	for w.rt.Running() {
		req := w.q.Pop(5*time.Second, w.rt.Done())
		if req == nil {
			continue
		}

		before := w.db.NumRefreshes()
		req.Run()
		after := w.db.NumRefreshes()

		// More than one refresh during a single request means queued
		// refresh requests are already stale.
		if after-before > 1 {
			w.log.Debug().
				Uint64("refreshes", after-before).
				Msg("multiple refreshes observed during one request")
			if n := w.q.DiscardStaleRefreshes(); n > 0 {
				w.log.Debug().Int("dropped", n).Msg("dropped stale refresh requests")
			}
		}
	}

	w.q.DrainWith(faults.ErrShutdown)
	w.log.Debug().Msg("request worker exiting")
}
