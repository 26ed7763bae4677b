package upload

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/metrics"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/persistence"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	delayDecreaseFactor = 0.9
	delayIncreaseFactor = 1.1
	delayJitter         = 0.1
)

// SchedulerConfig bounds the delay between upload attempts
type SchedulerConfig struct {
	Feature      string
	MinDelay     time.Duration
	MaxDelay     time.Duration
	DefaultDelay time.Duration
	Decoration   batchfile.PayloadDecoration
	// Jitter randomizes each wait by ±10% when set
	Jitter bool
}

// DefaultSchedulerConfig returns the delays used by the mobile SDKs
func DefaultSchedulerConfig(feature string) SchedulerConfig {
	return SchedulerConfig{
		Feature:      feature,
		MinDelay:     time.Second,
		MaxDelay:     10 * time.Second,
		DefaultDelay: 5 * time.Second,
		Decoration:   batchfile.JSONArrayDecoration,
		Jitter:       true,
	}
}

// Scheduler drives one feature's upload loop: read the next batch, upload it,
// then drop or release it depending on the status.
type Scheduler struct {
	cfg      SchedulerConfig
	reader   persistence.DataReader
	uploader Uploader
	limiter  *rate.Limiter
	logger   *zap.Logger
	metrics  *metrics.Metrics

	mu    sync.Mutex
	delay time.Duration
}

// NewScheduler creates a Scheduler. limiter may be shared between features and may be nil.
func NewScheduler(cfg SchedulerConfig, reader persistence.DataReader, uploader Uploader, limiter *rate.Limiter, logger *zap.Logger, m *metrics.Metrics) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = time.Second
	}
	if cfg.MaxDelay < cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay
	}
	if cfg.DefaultDelay < cfg.MinDelay || cfg.DefaultDelay > cfg.MaxDelay {
		cfg.DefaultDelay = cfg.MinDelay
	}
	if cfg.Decoration.IsZero() {
		cfg.Decoration = batchfile.JSONArrayDecoration
	}

	return &Scheduler{
		cfg:      cfg,
		reader:   reader,
		uploader: uploader,
		limiter:  limiter,
		logger:   logger,
		metrics:  m,
		delay:    cfg.DefaultDelay,
	}
}

// Delay returns the current wait between two upload attempts
func (s *Scheduler) Delay() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delay
}

// Run loops until ctx is cancelled
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("Upload scheduler started",
		zap.String("feature", s.cfg.Feature),
		zap.Duration("delay", s.Delay()))

	timer := time.NewTimer(s.nextWait())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Upload scheduler stopped", zap.String("feature", s.cfg.Feature))
			return ctx.Err()
		case <-timer.C:
			s.RunOnce(ctx)
			timer.Reset(s.nextWait())
		}
	}
}

// RunOnce processes at most one batch and adapts the delay. It returns
// false when there was nothing to upload.
func (s *Scheduler) RunOnce(ctx context.Context) (model.UploadStatus, bool) {
	batch, ok := s.reader.LockAndReadNext(ctx)
	if !ok {
		s.increaseDelay()
		return "", false
	}

	status := s.consume(ctx, batch)
	if status == model.UploadStatusSuccess {
		s.decreaseDelay()
	} else {
		s.increaseDelay()
	}
	return status, true
}

// Drain uploads batches back to back until none are left or one has to be
// retried. Used to flush on shutdown.
func (s *Scheduler) Drain(ctx context.Context) int {
	uploaded := 0
	for ctx.Err() == nil {
		batch, ok := s.reader.LockAndReadNext(ctx)
		if !ok {
			return uploaded
		}
		status := s.consume(ctx, batch)
		if status.ShouldRetry() {
			return uploaded
		}
		uploaded++
	}
	return uploaded
}

func (s *Scheduler) consume(ctx context.Context, batch *persistence.Batch) model.UploadStatus {
	if len(batch.Data) == 0 {
		s.reader.Drop(batch)
		return model.UploadStatusSuccess
	}

	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			s.reader.Release(batch)
			return model.UploadStatusNetworkError
		}
	}

	status := s.uploader.Upload(ctx, batch.Payload(s.cfg.Decoration))
	if status.ShouldRetry() {
		s.logger.Warn("Batch upload failed, keeping batch for retry",
			zap.String("feature", s.cfg.Feature),
			zap.String("batch", batch.ID),
			zap.String("status", string(status)))
		s.reader.Release(batch)
	} else {
		if status != model.UploadStatusSuccess {
			s.logger.Error("Batch rejected by intake, dropping it",
				zap.String("feature", s.cfg.Feature),
				zap.String("batch", batch.ID),
				zap.String("status", string(status)))
		}
		s.reader.Drop(batch)
	}
	return status
}

func (s *Scheduler) decreaseDelay() {
	s.setDelay(time.Duration(float64(s.Delay()) * delayDecreaseFactor))
}

func (s *Scheduler) increaseDelay() {
	s.setDelay(time.Duration(float64(s.Delay()) * delayIncreaseFactor))
}

func (s *Scheduler) setDelay(d time.Duration) {
	if d < s.cfg.MinDelay {
		d = s.cfg.MinDelay
	}
	if d > s.cfg.MaxDelay {
		d = s.cfg.MaxDelay
	}
	s.mu.Lock()
	s.delay = d
	s.mu.Unlock()
	s.metrics.UpdateUploadDelay(s.cfg.Feature, d.Seconds())
}

func (s *Scheduler) nextWait() time.Duration {
	d := s.Delay()
	if !s.cfg.Jitter {
		return d
	}
	return time.Duration(float64(d) * (1 + delayJitter*(2*rand.Float64()-1)))
}
