package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/farmhub/auctionhub/internal/domain/job"
	"github.com/farmhub/auctionhub/internal/notifications"
	"github.com/farmhub/auctionhub/internal/observability"
)

type JobsRepository interface {
	ClaimNext(ctx context.Context, workerID string) (job.Job, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string, errMsg string) error
	Reschedule(ctx context.Context, id string, runAt time.Time, errMsg string) error
	RequeueStaleProcessing(ctx context.Context, lockTTL time.Duration) (int64, error)
}

// Waker lets a producer wake the worker early instead of waiting for the
// next poll tick. Nil waker falls back to pure polling.
type Waker interface {
	WaitForNudge(ctx context.Context, timeout time.Duration) (bool, error)
}

type Config struct {
	PollInterval  time.Duration
	WorkerID      string
	Concurrency   int
	ShutdownGrace time.Duration

	// LockTTL is how long a processing job may hold its lock before the
	// janitor requeues it.
	LockTTL time.Duration
}

type Worker struct {
	cfg    Config
	repo   JobsRepository
	mailer notifications.Mailer
	waker  Waker
	prom   *observability.Prom
	log    *slog.Logger

	readyMu sync.RWMutex
	ready   bool
}

func New(cfg Config, repo JobsRepository, mailer notifications.Mailer, waker Waker, prom *observability.Prom, log *slog.Logger) *Worker {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}

	if cfg.ShutdownGrace <= 0 {
		cfg.ShutdownGrace = 10 * time.Second
	}

	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}

	return &Worker{
		cfg:    cfg,
		repo:   repo,
		mailer: mailer,
		waker:  waker,
		prom:   prom,
		log:    log,
	}
}

func (w *Worker) Run(ctx context.Context) error {
	w.setReady(true)
	defer w.setReady(false)

	var wg sync.WaitGroup

	for i := 0; i < w.cfg.Concurrency; i++ {
		wg.Add(1)

		go func() {
			defer wg.Done()
			w.loop(ctx)
		}()
	}

	// janitor: requeue jobs whose worker died mid-processing
	wg.Add(1)

	go func() {
		defer wg.Done()
		w.janitor(ctx)
	}()

	<-ctx.Done()

	w.log.Info("worker received shutdown signal")

	done := make(chan struct{})

	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.log.Info("worker shutdown complete")
		return nil
	case <-time.After(w.cfg.ShutdownGrace):
		w.log.Error("worker shutdown grace exceeded")
		return context.DeadlineExceeded
	}
}

func (w *Worker) loop(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		processed, err := w.ProcessOne(ctx)

		if err != nil {
			w.log.Error("job processing error", "err", err)
		}

		// drain the queue while there is work
		if processed {
			continue
		}

		w.idle(ctx)
	}
}

// idle waits for a nudge or a poll tick, whichever comes first.
func (w *Worker) idle(ctx context.Context) {
	if w.waker != nil {
		_, err := w.waker.WaitForNudge(ctx, w.cfg.PollInterval)

		if err != nil && ctx.Err() == nil {
			w.log.Warn("wake wait failed, falling back to poll", "err", err)

			select {
			case <-ctx.Done():
			case <-time.After(w.cfg.PollInterval):
			}
		}

		return
	}

	select {
	case <-ctx.Done():
	case <-time.After(w.cfg.PollInterval):
	}
}

func (w *Worker) janitor(ctx context.Context) {
	ticker := time.NewTicker(w.cfg.LockTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := w.repo.RequeueStaleProcessing(ctx, w.cfg.LockTTL)

			if err != nil {
				w.log.Error("stale job requeue failed", "err", err)
				continue
			}

			if n > 0 {
				w.log.Warn("requeued stale jobs", "count", n)
			}
		}
	}
}

func (w *Worker) setReady(v bool) {
	w.readyMu.Lock()
	w.ready = v
	w.readyMu.Unlock()
}
