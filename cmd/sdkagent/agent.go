package main

import (
	"context"
	"fmt"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/config"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/consent"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/core"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/health"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/logs"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/metrics"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/ndk"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/persistence"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/rum"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/server"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/diskmanager"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/encryption"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/orchestrator"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/timeprovider"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/upload"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/util/workerpool"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/validation"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
)

// agent owns every long-lived component of the process
type agent struct {
	cfg         *config.Config
	logger      *zap.Logger
	metrics     *metrics.Metrics
	core        *core.SdkCore
	logs        *logs.Feature
	rum         *rum.Feature
	ndkHandler  *ndk.Handler
	ndkExecutor *workerpool.WorkerPool
	schedulers  []*upload.Scheduler
	checker     *health.HealthChecker
	ops         *server.OpsServer
	serveOps    func(ctx context.Context) error
}

// storageStack is the shared, feature independent part of persistence
type storageStack struct {
	batchRW   batchfile.ReaderWriter
	fileRW    *batchfile.FileReaderWriter
	disk      *diskmanager.DiskManager
	validator *validation.Validator
	encrypted bool
}

func newAgent(cfg *config.Config, logger *zap.Logger) (*agent, error) {
	m := metrics.NewMetrics(cfg.Site.Service)

	stack, err := newStorageStack(cfg, logger)
	if err != nil {
		return nil, err
	}

	consentProvider := consent.NewTrackingConsentProvider(model.ParseConsent(cfg.Consent.Initial), logger)
	device := core.NewDeviceInfo(cfg.Device)
	clock := timeprovider.New()
	sdkCore := core.NewSdkCore(cfg.Site, device, consentProvider, clock, logger)

	a := &agent{cfg: cfg, logger: logger, metrics: m, core: sdkCore}

	ndkStorage := ndk.NewStorage(cfg.Storage.DataDir, consentProvider, stack.batchRW, stack.fileRW, logger)

	logsExecutor := newExecutor(core.LogsFeatureName, cfg, logger, m)
	logsStrategy := persistence.NewStrategy[model.LogEvent](
		newPersistenceConfig(core.LogsFeatureName, cfg, stack, consentProvider, logsExecutor, logger, m),
		logs.LogEventSerializer{})
	a.logs = logs.NewFeature(logsStrategy, logsExecutor, sdkCore, logger)

	rumExecutor := newExecutor(core.RumFeatureName, cfg, logger, m)
	rumStrategy := persistence.NewStrategy[any](
		newPersistenceConfig(core.RumFeatureName, cfg, stack, consentProvider, rumExecutor, logger, m),
		rum.EventSerializer{})
	a.rum = rum.NewFeature(rumStrategy, rumExecutor, rum.NewDataWriter(ndkStorage, logger), rum.NewSessionState(time.Now), sdkCore, logger)

	sdkCore.RegisterFeature(a.logs)
	sdkCore.RegisterFeature(a.rum)

	a.ndkExecutor = newExecutor("ndk_crash_reports", cfg, logger, m)
	a.ndkHandler = ndk.NewHandler(ndk.HandlerConfig{
		StorageDir:   cfg.Storage.DataDir,
		Executor:     a.ndkExecutor,
		BatchReader:  stack.batchRW,
		FileReader:   stack.fileRW,
		TimeProvider: sdkCore.TimeProvider(),
		Device:       device,
		Logger:       logger,
		Metrics:      m,
	})

	limiter := rate.NewLimiter(rate.Limit(cfg.Upload.RequestsPerSecond), cfg.Upload.BurstSize)
	a.schedulers = []*upload.Scheduler{
		newScheduler(core.LogsFeatureName, cfg, a.logs.Reader(), limiter, clock, logger, m),
		newScheduler(core.RumFeatureName, cfg, a.rum.Reader(), limiter, clock, logger, m),
	}

	a.checker = health.NewHealthChecker(&health.HealthCheckConfig{
		DataDir:   cfg.Storage.DataDir,
		Disk:      stack.disk,
		Executors: []health.ExecutorSource{logsExecutor, rumExecutor, a.ndkExecutor},
		Batches:   []health.BatchSource{logsStrategy.Orchestrator(), rumStrategy.Orchestrator()},
	}, logger)

	ingest := server.NewIngestHandler(server.IngestConfig{
		Logs:         a.logs,
		Rum:          a.rum,
		Consent:      consentProvider,
		Flushers:     []server.Flusher{a.logs, a.rum},
		Disk:         stack.disk,
		CrashContext: ndkStorage,
		Validator:    stack.validator,
		Encrypted:    stack.encrypted,
	}, m, logger)
	a.ops = server.NewOpsServer(&server.OpsServerConfig{
		Server:  cfg.Server,
		Metrics: cfg.Metrics,
		DataDir: cfg.Storage.DataDir,
	}, ingest, a.checker, m, logger)
	a.serveOps = a.ops.Run

	return a, nil
}

func newStorageStack(cfg *config.Config, logger *zap.Logger) (*storageStack, error) {
	var enc batchfile.Encryption
	if cfg.Encryption.Enabled {
		ageEnc, err := encryption.LoadOrCreateIdentityFile(cfg.Encryption.IdentityFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load encryption identity: %w", err)
		}
		enc = ageEnc
	}

	disk, err := diskmanager.NewDiskManager(diskmanager.DefaultConfig(cfg.Storage.DataDir, cfg.Storage.MaxDiskUsage), logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize disk manager: %w", err)
	}

	return &storageStack{
		batchRW:   batchfile.NewBatchFileReaderWriter(enc, logger),
		fileRW:    batchfile.NewFileReaderWriter(enc, logger),
		disk:      disk,
		validator: validation.NewValidatorWithLimits(int(cfg.Storage.MaxItemSize), true),
		encrypted: enc != nil,
	}, nil
}

func newExecutor(name string, cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *workerpool.WorkerPool {
	return workerpool.NewWorkerPool(&workerpool.Config{
		Name:       name,
		MaxWorkers: 1,
		QueueSize:  cfg.Executor.QueueSize,
		Logger:     logger,
		OnReject:   m.RecordExecutorRejection,
	})
}

func newPersistenceConfig(
	feature string,
	cfg *config.Config,
	stack *storageStack,
	provider consent.Provider,
	executor *workerpool.WorkerPool,
	logger *zap.Logger,
	m *metrics.Metrics,
) *persistence.Config {
	orchCfg := &orchestrator.Config{
		RecentDelay:      cfg.Storage.RecentDelay,
		MaxBatchSize:     cfg.Storage.MaxBatchSize,
		MaxItemsPerBatch: cfg.Storage.MaxItemsPerBatch,
		OldFileThreshold: cfg.Storage.OldFileThreshold,
		MaxDiskSpace:     cfg.Storage.MaxDiskSpace,
	}
	naming := orchestrator.DefaultNamingPolicy
	pendingDir := naming.PendingDir(cfg.Storage.DataDir, feature)
	grantedDir := naming.GrantedDir(cfg.Storage.DataDir, feature)

	orch := orchestrator.NewConsentAwareFileOrchestrator(
		provider,
		orchestrator.NewBatchFileOrchestrator(pendingDir, orchCfg, logger, m, nil),
		orchestrator.NewBatchFileOrchestrator(grantedDir, orchCfg, logger, m, nil),
		orchestrator.NewConsentDataMigrator(pendingDir, grantedDir, nil, logger, m),
		executor,
		logger,
	)

	return &persistence.Config{
		Feature:      feature,
		Orchestrator: orch,
		ReaderWriter: stack.batchRW,
		Validator:    stack.validator,
		DiskGuard:    stack.disk,
		Executor:     executor,
		Encrypted:    stack.encrypted,
		Logger:       logger,
		Metrics:      m,
	}
}

func newScheduler(
	feature string,
	cfg *config.Config,
	reader persistence.DataReader,
	limiter *rate.Limiter,
	clock upload.ServerTimeObserver,
	logger *zap.Logger,
	m *metrics.Metrics,
) *upload.Scheduler {
	uploader := upload.NewHTTPUploader(upload.HTTPUploaderConfig{
		Endpoint:    cfg.Site.Endpoint,
		ClientToken: cfg.Site.ClientToken,
		Feature:     feature,
		SdkVersion:  cfg.Site.SdkVersion,
		Device: upload.DeviceInfo{
			OsVersion: cfg.Device.OsVersion,
			Model:     cfg.Device.Model,
			BuildID:   cfg.Device.BuildID,
		},
		SystemUserAgent: cfg.Upload.SystemUserAgent,
		Gzip:            cfg.Upload.Gzip,
		Timeout:         cfg.Upload.Timeout,
		ServerTime:      clock,
	}, logger, m)

	schedCfg := upload.DefaultSchedulerConfig(feature)
	schedCfg.MinDelay = cfg.Upload.MinDelay
	schedCfg.MaxDelay = cfg.Upload.MaxDelay
	schedCfg.DefaultDelay = cfg.Upload.DefaultDelay
	return upload.NewScheduler(schedCfg, reader, uploader, limiter, logger, m)
}

// Run reports the previous process crash, then uploads and serves until ctx is done
func (a *agent) Run(ctx context.Context) error {
	a.ndkHandler.PrepareData()
	a.ndkHandler.HandleNdkCrash(a.core, a.rum.DataWriter())

	g, gctx := errgroup.WithContext(ctx)

	for _, s := range a.schedulers {
		s := s
		g.Go(func() error {
			if err := s.Run(gctx); err != nil && err != context.Canceled {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		a.checker.Start(gctx)
		return nil
	})

	// Ingest writes crash artifacts, so it opens only once the previous
	// crash has been read and its folder cleared.
	g.Go(func() error {
		if err := a.ndkHandler.Wait(gctx); err != nil {
			if gctx.Err() != nil {
				return nil
			}
			a.logger.Warn("Serving before the NDK crash report was handled", zap.Error(err))
		}
		return a.serveOps(gctx)
	})

	a.logger.Info("Agent started", zap.Strings("features", a.core.FeatureNames()))
	return g.Wait()
}

// Shutdown stops the executors. Queued writes are abandoned and recovered
// from disk by the next launch.
func (a *agent) Shutdown() {
	timeout := a.cfg.Executor.StopTimeout
	if err := a.ndkExecutor.Stop(timeout); err != nil {
		a.logger.Warn("NDK executor did not stop cleanly", zap.Error(err))
	}
	a.core.Stop(timeout)
}
