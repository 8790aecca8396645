// Package batchsvc is a periodic intake service that sits in front of
// the executor: callers Submit a block's worth of work, and a
// cron-scheduled drain loop runs queued blocks through
// tinystm.ExecuteBlock outside the caller's own goroutine, the same
// shape a job scheduler uses to run any other kind of background work
// on a timer: a *cron.Cron trigger, a `running` map guarded by a
// mutex, a stopCh for a secondary interval loop, and per-job
// context.WithTimeout.
package batchsvc

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/kvexec/tinystm/internal/blockid"
	"github.com/kvexec/tinystm/internal/execconfig"
)

// RunFunc executes one queued block and reports its outcome.
type RunFunc func(ctx context.Context) error

// Service drains a queue of RunFuncs on a cron schedule.
type Service struct {
	cfg    execconfig.BatchConfig
	cron   *cron.Cron
	logger *log.Logger

	mu      sync.Mutex
	queue   []job
	running map[blockid.ID]context.CancelFunc
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

type job struct {
	id  blockid.ID
	run RunFunc
}

// New constructs a Service; call Start to begin draining.
func New(cfg execconfig.BatchConfig, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.Default()
	}
	return &Service{
		cfg:     cfg,
		logger:  logger,
		running: make(map[blockid.ID]context.CancelFunc),
		stopCh:  make(chan struct{}),
		cron:    cron.New(cron.WithSeconds()),
	}
}

// Submit enqueues a block for the next drain.
func (s *Service) Submit(id blockid.ID, run RunFunc) {
	s.mu.Lock()
	s.queue = append(s.queue, job{id: id, run: run})
	s.mu.Unlock()
}

// Start registers the cron trigger (if configured) and begins a
// goroutine that also drains on a fixed fallback tick, so Submit
// still makes progress with an empty CronExpr.
func (s *Service) Start() error {
	if s.cfg.CronExpr != "" {
		if _, err := s.cron.AddFunc(s.cfg.CronExpr, s.drain); err != nil {
			return err
		}
	}
	s.cron.Start()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-s.stopCh:
				return
			case <-ticker.C:
				s.drain()
			}
		}
	}()
	return nil
}

// Stop halts the cron trigger and the fallback loop, cancels any
// in-flight block runs, and then waits for running drains to return.
// Queued jobs that a drain already in progress starts after the
// cancellation still run, each bounded by MaxRuntime.
func (s *Service) Stop() {
	ctx := s.cron.Stop()
	close(s.stopCh)

	s.mu.Lock()
	for id, cancel := range s.running {
		s.logger.Printf("batchsvc: canceling in-flight block %s", id)
		cancel()
	}
	s.mu.Unlock()

	<-ctx.Done()
	s.wg.Wait()
}

func (s *Service) drain() {
	s.mu.Lock()
	pending := s.queue
	s.queue = nil
	s.mu.Unlock()

	for _, j := range pending {
		s.runOne(j)
	}
}

func (s *Service) runOne(j job) {
	timeout := s.cfg.MaxRuntime
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)

	s.mu.Lock()
	s.running[j.id] = cancel
	s.mu.Unlock()

	defer func() {
		cancel()
		s.mu.Lock()
		delete(s.running, j.id)
		s.mu.Unlock()
	}()

	if err := j.run(ctx); err != nil {
		s.logger.Printf("batchsvc: block %s failed: %v", j.id, err)
		return
	}
	s.logger.Printf("batchsvc: block %s completed", j.id)
}
