package bootstrap

import (
	"sentinel_server/adapter/in/worker"
	"sentinel_server/config"
	"sentinel_server/pkg/logger"
)

// Worker runs the background schedulers: the escalation sweep and the
// daily digest flush.
type Worker struct {
	escalation *worker.EscalationScheduler
	digest     *worker.DigestScheduler
	deps       *Dependencies
}

// NewWorker wires the background side of the service.
func NewWorker(cfg *config.Config) (*Worker, func(), error) {
	logger.Init(logger.Config{
		Level:   logger.LevelInfo,
		Service: "sentinel-worker",
	})

	deps, cleanup, err := NewDependencies(cfg)
	if err != nil {
		return nil, nil, err
	}

	w := &Worker{
		escalation: worker.NewEscalationScheduler(deps.Dispatcher),
		deps:       deps,
	}

	if deps.DigestService != nil {
		w.digest = worker.NewDigestScheduler(deps.DigestService, cfg.DigestFlushHour)
	} else {
		logger.Warn("Digest service not configured, daily digest disabled")
	}

	return w, cleanup, nil
}

// Start launches the schedulers.
func (w *Worker) Start() {
	w.escalation.Start()
	if w.digest != nil {
		w.digest.Start()
	}
}

// Stop halts the schedulers.
func (w *Worker) Stop() {
	w.escalation.Stop()
	if w.digest != nil {
		w.digest.Stop()
	}
}

// Dependencies exposes the wired graph for dev tooling.
func (w *Worker) Dependencies() *Dependencies {
	return w.deps
}
