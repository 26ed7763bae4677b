package ndk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/core"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/logs"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/metrics"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/persistence"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/rum"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/timeprovider"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/util/workerpool"
	"go.uber.org/zap"
)

const (
	// LoggerName is the logger name of crash logs
	LoggerName = "ndk_crash"
	// LogCrashMessage is formatted with the signal name
	LogCrashMessage = "NDK crash detected with signal: %s"

	// ViewEventAvailabilityThreshold is how old the last view may be and still be updated
	ViewEventAvailabilityThreshold = 4 * time.Hour

	ErrorReadNdkDir                = "Error while trying to read the NDK crash directory"
	ErrorTaskRejected              = "Unable to schedule operation on the executor"
	InfoLogsFeatureNotRegistered   = "Logs feature is not registered, won't report NDK crash info as log."
	InfoRumFeatureNotRegistered    = "RUM feature is not registered, won't report NDK crash info as RUM error."
	errorClearCrashDir             = "Unable to clear the NDK crash report directory"
	errorDeserializeCrashArtifacts = "Unable to deserialize NDK crash artifact"
)

// State is the crash handler lifecycle
type State int32

const (
	StateIdle State = iota
	StateReading
	StateCorrelating
	StateDispatched
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReading:
		return "reading"
	case StateCorrelating:
		return "correlating"
	case StateDispatched:
		return "dispatched"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// RumWriter writes a RUM event inside a feature write context
type RumWriter interface {
	Write(w persistence.EventBatchWriter, event any) bool
}

// CrashHandler is the crash recovery entry point used at startup
type CrashHandler interface {
	PrepareData()
	HandleNdkCrash(registry core.FeatureRegistry, rumWriter RumWriter)
}

// HandlerConfig wires a Handler
type HandlerConfig struct {
	StorageDir   string
	Executor     *workerpool.WorkerPool
	BatchReader  batchfile.ReaderWriter
	FileReader   *batchfile.FileReaderWriter
	TimeProvider timeprovider.Provider
	Device       core.DeviceInfo
	// Now defaults to time.Now
	Now     func() time.Time
	Logger  *zap.Logger
	Metrics *metrics.Metrics
}

// Handler reads the crash artifacts of the previous process and reports them.
// Artifact fields are only touched from tasks of its executor.
type Handler struct {
	dir         string
	executor    *workerpool.WorkerPool
	batchReader batchfile.ReaderWriter
	fileReader  *batchfile.FileReaderWriter
	time        timeprovider.Provider
	device      core.DeviceInfo
	now         func() time.Time
	logger      *zap.Logger
	metrics     *metrics.Metrics

	state atomic.Int32

	lastCrashLog    []byte
	lastViewEvent   []byte
	lastUserInfo    []byte
	lastNetworkInfo []byte
}

// NewHandler creates a Handler
func NewHandler(cfg HandlerConfig) *Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Handler{
		dir:         GrantedDir(cfg.StorageDir),
		executor:    cfg.Executor,
		batchReader: cfg.BatchReader,
		fileReader:  cfg.FileReader,
		time:        cfg.TimeProvider,
		device:      cfg.Device,
		now:         now,
		logger:      logger,
		metrics:     cfg.Metrics,
	}
}

// State returns the current lifecycle state
func (h *Handler) State() State {
	return State(h.state.Load())
}

// PrepareData schedules the read of the crash artifacts
func (h *Handler) PrepareData() {
	h.submit("ndk-prepare", h.readCrashData)
}

// HandleNdkCrash schedules the report of the artifacts read by PrepareData
func (h *Handler) HandleNdkCrash(registry core.FeatureRegistry, rumWriter RumWriter) {
	h.submit("ndk-handle", func() {
		h.checkAndHandleNdkCrashReport(registry, rumWriter)
	})
}

// Wait blocks until every scheduled task has run
func (h *Handler) Wait(ctx context.Context) error {
	return h.executor.Flush(ctx)
}

func (h *Handler) submit(id string, fn func()) {
	err := h.executor.Submit(workerpool.Task{
		ID: id,
		Fn: func(context.Context) error {
			fn()
			return nil
		},
	})
	if err != nil {
		h.logger.Error(ErrorTaskRejected, zap.String("task", id), zap.Error(err))
	}
}

func (h *Handler) readCrashData() {
	if !batchfile.Exists(h.dir) {
		return
	}
	h.state.Store(int32(StateReading))
	defer h.state.Store(int32(StateIdle))
	defer h.clearCrashDir()

	files, err := batchfile.ListFiles(h.dir)
	if err != nil {
		h.logger.Error(ErrorReadNdkDir, zap.String("dir", h.dir), zap.Error(err))
		return
	}

	for _, f := range files {
		switch filepath.Base(f) {
		case CrashLogFileName:
			h.lastCrashLog = readText(f)
		case LastViewEventFileName:
			h.lastViewEvent = nonEmpty(bytes.Join(h.batchReader.ReadData(f), nil))
		case UserInfoFileName:
			h.lastUserInfo = nonEmpty(h.fileReader.ReadData(f))
		case NetworkInfoFileName:
			h.lastNetworkInfo = nonEmpty(h.fileReader.ReadData(f))
		}
	}
}

func (h *Handler) clearCrashDir() {
	if err := batchfile.DeleteContents(h.dir); err != nil {
		h.logger.Error(errorClearCrashDir, zap.String("dir", h.dir), zap.Error(err))
	}
}

func (h *Handler) checkAndHandleNdkCrashReport(registry core.FeatureRegistry, rumWriter RumWriter) {
	defer h.clearAllReferences()
	if h.lastCrashLog == nil {
		return
	}
	h.state.Store(int32(StateCorrelating))
	defer h.state.Store(int32(StateIdle))

	var crashLog model.NdkCrashLog
	if err := json.Unmarshal(h.lastCrashLog, &crashLog); err != nil {
		h.logger.Error(errorDeserializeCrashArtifacts, zap.String("artifact", CrashLogFileName), zap.Error(err))
		h.metrics.RecordNdkCrash("invalid")
		return
	}

	var viewEvent *model.ViewEvent
	if h.lastViewEvent != nil {
		v, err := rum.DeserializeViewEvent(h.lastViewEvent)
		if err != nil {
			h.logger.Warn(errorDeserializeCrashArtifacts, zap.String("artifact", LastViewEventFileName), zap.Error(err))
		} else {
			viewEvent = v
		}
	}
	userInfo := decodeArtifact[model.UserInfo](h, UserInfoFileName, h.lastUserInfo)
	networkInfo := decodeArtifact[model.NetworkInfo](h, NetworkInfoFileName, h.lastNetworkInfo)

	h.handleNdkCrashLog(registry, rumWriter, crashLog, viewEvent, userInfo, networkInfo)
	h.state.Store(int32(StateDispatched))
}

func (h *Handler) handleNdkCrashLog(
	registry core.FeatureRegistry,
	rumWriter RumWriter,
	crashLog model.NdkCrashLog,
	viewEvent *model.ViewEvent,
	userInfo *model.UserInfo,
	networkInfo *model.NetworkInfo,
) {
	message := fmt.Sprintf(LogCrashMessage, crashLog.SignalName)

	var attributes map[string]any
	if viewEvent != nil {
		attributes = map[string]any{
			logs.AttrRumSessionID:     viewEvent.Session.ID,
			logs.AttrRumApplicationID: viewEvent.Application.ID,
			logs.AttrRumViewID:        viewEvent.View.ID,
			logs.AttrErrorStack:       crashLog.Stacktrace,
		}
		h.updateViewEventAndSendError(registry, rumWriter, message, crashLog, viewEvent)
		h.metrics.RecordNdkCrash("with_view")
	} else {
		attributes = map[string]any{
			logs.AttrErrorStack: crashLog.Stacktrace,
		}
		h.metrics.RecordNdkCrash("without_view")
	}

	h.sendCrashLogEvent(registry, message, attributes, crashLog, networkInfo, userInfo)
}

func (h *Handler) updateViewEventAndSendError(registry core.FeatureRegistry, rumWriter RumWriter, message string, crashLog model.NdkCrashLog, viewEvent *model.ViewEvent) {
	feature, ok := registry.GetFeature(core.RumFeatureName)
	if !ok {
		h.logger.Info(InfoRumFeatureNotRegistered)
		return
	}

	errorEvent := h.resolveErrorEvent(message, crashLog, viewEvent)
	now := h.now().UnixMilli()
	feature.WithWriteContext(func(_ core.WriteContext, w persistence.EventBatchWriter) {
		rumWriter.Write(w, errorEvent)
		if now-viewEvent.Date < ViewEventAvailabilityThreshold.Milliseconds() {
			rumWriter.Write(w, updateViewEvent(*viewEvent))
		}
	})
}

func (h *Handler) sendCrashLogEvent(registry core.FeatureRegistry, message string, attributes map[string]any, crashLog model.NdkCrashLog, networkInfo *model.NetworkInfo, userInfo *model.UserInfo) {
	feature, ok := registry.GetFeature(core.LogsFeatureName)
	if !ok {
		h.logger.Info(InfoLogsFeatureNotRegistered)
		return
	}
	feature.SendEvent(core.CrashLogEvent{
		LoggerName:  LoggerName,
		Message:     message,
		Attributes:  attributes,
		Timestamp:   crashLog.Timestamp,
		NetworkInfo: networkInfo,
		UserInfo:    userInfo,
	})
}

// updateViewEvent marks the view as crashed and no longer active
func updateViewEvent(view model.ViewEvent) *model.ViewEvent {
	crash := &model.Count{Count: 1}
	if view.View.Crash != nil {
		crash = &model.Count{Count: view.View.Crash.Count + 1}
	}
	inactive := false
	view.View.Crash = crash
	view.View.IsActive = &inactive
	view.Dd.DocumentVersion++
	return &view
}

func (h *Handler) resolveErrorEvent(message string, crashLog model.NdkCrashLog, view *model.ViewEvent) *model.ErrorEvent {
	var usr *model.Usr
	if !view.Usr.IsEmpty() {
		u := *view.Usr
		usr = &u
	}

	var connectivity *model.Connectivity
	if view.Connectivity != nil {
		c := *view.Connectivity
		connectivity = &c
	}

	return &model.ErrorEvent{
		Date:         crashLog.Timestamp + h.time.ServerOffsetMillis(),
		Application:  model.Application{ID: view.Application.ID},
		Service:      view.Service,
		Version:      view.Version,
		Session:      model.RumSession{ID: view.Session.ID, Type: "user"},
		Source:       view.Source,
		View:         model.ErrorView{ID: view.View.ID, Name: view.View.Name, Referrer: view.View.Referrer, URL: view.View.URL},
		Usr:          usr,
		Connectivity: connectivity,
		Os:           h.device.Os(),
		Device:       h.device.Device(),
		Dd:           model.ErrorDd{FormatVersion: 2, Session: &model.DdSession{Plan: 1}},
		Context:      view.Context,
		Error: model.ErrorDetails{
			Message:    message,
			Source:     "source",
			Stack:      crashLog.Stacktrace,
			IsCrash:    true,
			Type:       crashLog.SignalName,
			SourceType: "android",
		},
	}
}

func (h *Handler) clearAllReferences() {
	h.lastCrashLog = nil
	h.lastViewEvent = nil
	h.lastUserInfo = nil
	h.lastNetworkInfo = nil
}

func decodeArtifact[T any](h *Handler, name string, data []byte) *T {
	if data == nil {
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		h.logger.Warn(errorDeserializeCrashArtifacts, zap.String("artifact", name), zap.Error(err))
		return nil
	}
	return &v
}

func readText(path string) []byte {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}
	return nonEmpty(data)
}

func nonEmpty(data []byte) []byte {
	if len(data) == 0 {
		return nil
	}
	return data
}
