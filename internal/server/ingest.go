package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/consent"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/core"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/errors"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/metrics"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/validation"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

// LogWriter accepts log events
type LogWriter interface {
	Log(status, message string, attributes map[string]any, tags []string)
}

// RumWriter accepts view and error events
type RumWriter interface {
	Write(event any)
}

// Flusher waits for queued writes
type Flusher interface {
	Flush(ctx context.Context) error
}

// WriteGuard refuses writes the device volume cannot take
type WriteGuard interface {
	CheckBeforeWrite(estimatedBytes uint64) error
}

// CrashContextStore keeps the user and network state attached to crash reports
type CrashContextStore interface {
	WriteUserInfo(info *model.UserInfo)
	WriteNetworkInfo(info *model.NetworkInfo)
}

// IngestConfig wires the ingest API to the features
type IngestConfig struct {
	Logs         LogWriter
	Rum          RumWriter
	Consent      consent.Provider
	Flushers     []Flusher
	Disk         WriteGuard
	CrashContext CrashContextStore
	Validator    *validation.Validator
	Encrypted    bool
}

// IngestHandler exposes local event ingestion, consent control and flush
type IngestHandler struct {
	cfg     IngestConfig
	metrics *metrics.Metrics
	logger  *zap.Logger
}

type logRequest struct {
	Status     string         `json:"status"`
	Message    string         `json:"message"`
	Attributes map[string]any `json:"attributes,omitempty"`
	Tags       []string       `json:"tags,omitempty"`
}

type consentRequest struct {
	Consent string `json:"consent"`
}

type acceptedResponse struct {
	Status    string `json:"status"`
	Feature   string `json:"feature"`
	RequestID string `json:"request_id,omitempty"`
}

// NewIngestHandler creates an ingest handler
func NewIngestHandler(cfg IngestConfig, m *metrics.Metrics, logger *zap.Logger) *IngestHandler {
	if cfg.Validator == nil {
		cfg.Validator = validation.NewValidator()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{cfg: cfg, metrics: m, logger: logger}
}

// Register adds the ingest routes to r, which is expected to be mounted
// under /v1
func (h *IngestHandler) Register(r *mux.Router) {
	r.HandleFunc("/events/{feature}", h.handleEvent).Methods(http.MethodPost)
	r.HandleFunc("/consent", h.handleGetConsent).Methods(http.MethodGet)
	r.HandleFunc("/consent", h.handleSetConsent).Methods(http.MethodPut)
	r.HandleFunc("/flush", h.handleFlush).Methods(http.MethodPost)
	r.HandleFunc("/context/user", h.handleSetUser).Methods(http.MethodPut)
	r.HandleFunc("/context/network", h.handleSetNetwork).Methods(http.MethodPut)
}

func (h *IngestHandler) handleEvent(w http.ResponseWriter, r *http.Request) {
	feature := mux.Vars(r)["feature"]

	body, err := h.readBody(r)
	if err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	if err := h.admit(feature, body); err != nil {
		writeError(w, r, h.logger, err)
		return
	}

	switch {
	case feature == core.LogsFeatureName && h.cfg.Logs != nil:
		err = h.ingestLog(body)
	case feature == core.RumFeatureName && h.cfg.Rum != nil:
		err = h.ingestRum(body)
	default:
		err = errors.UnknownFeature(feature)
	}
	if err != nil {
		h.metrics.RecordEventDropped(feature, "rejected")
		writeError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusAccepted, acceptedResponse{
		Status:    "accepted",
		Feature:   feature,
		RequestID: r.Header.Get(HeaderRequestID),
	})
}

// readBody reads at most one byte past the item limit so oversized bodies
// are reported by the validator
func (h *IngestHandler) readBody(r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r.Body, validation.MaxItemSize+1))
	if err != nil {
		return nil, errors.InvalidArgument("failed to read request body", err)
	}
	return body, nil
}

func (h *IngestHandler) admit(feature string, body []byte) error {
	if err := h.cfg.Validator.ValidateFeatureName(feature); err != nil {
		return err
	}
	if err := h.cfg.Validator.ValidateEvent(body); err != nil {
		return err
	}
	if h.cfg.Consent != nil && h.cfg.Consent.GetConsent() == model.ConsentNotGranted {
		h.metrics.RecordEventDropped(feature, "consent")
		return errors.ConsentDenied(feature)
	}
	if h.cfg.Disk != nil {
		if err := h.cfg.Disk.CheckBeforeWrite(validation.EstimateWriteSize(body, h.cfg.Encrypted)); err != nil {
			h.metrics.RecordEventDropped(feature, "disk")
			return err
		}
	}
	return nil
}

func (h *IngestHandler) ingestLog(body []byte) error {
	var req logRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return errors.InvalidEvent("malformed log event")
	}
	if req.Message == "" {
		return errors.InvalidEvent("log message is empty")
	}
	if err := h.cfg.Validator.ValidateTags(req.Tags); err != nil {
		return err
	}
	if req.Status == "" {
		req.Status = model.LogStatusInfo
	}

	h.cfg.Logs.Log(req.Status, req.Message, req.Attributes, req.Tags)
	return nil
}

func (h *IngestHandler) ingestRum(body []byte) error {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return errors.InvalidEvent("malformed RUM event")
	}

	switch probe.Type {
	case model.RumEventTypeView:
		var e model.ViewEvent
		if err := json.Unmarshal(body, &e); err != nil {
			return errors.InvalidEvent("malformed view event")
		}
		h.cfg.Rum.Write(&e)
	case model.RumEventTypeError:
		var e model.ErrorEvent
		if err := json.Unmarshal(body, &e); err != nil {
			return errors.InvalidEvent("malformed error event")
		}
		h.cfg.Rum.Write(&e)
	default:
		return errors.InvalidEvent("unsupported RUM event type " + probe.Type)
	}
	return nil
}

func (h *IngestHandler) handleGetConsent(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Consent == nil {
		writeError(w, r, h.logger, errors.Unavailable("consent is not managed", nil))
		return
	}
	writeJSON(w, http.StatusOK, consentRequest{Consent: string(h.cfg.Consent.GetConsent())})
}

func (h *IngestHandler) handleSetConsent(w http.ResponseWriter, r *http.Request) {
	if h.cfg.Consent == nil {
		writeError(w, r, h.logger, errors.Unavailable("consent is not managed", nil))
		return
	}

	var req consentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, h.logger, errors.InvalidArgument("malformed consent request", err))
		return
	}

	state := model.ConsentState(req.Consent)
	switch state {
	case model.ConsentGranted, model.ConsentNotGranted, model.ConsentPending:
	default:
		writeError(w, r, h.logger, errors.InvalidArgument("unknown consent "+req.Consent, nil))
		return
	}

	h.cfg.Consent.SetConsent(state)
	h.logger.Info("Tracking consent updated over ops API", zap.String("consent", req.Consent))
	writeJSON(w, http.StatusOK, consentRequest{Consent: string(state)})
}

func (h *IngestHandler) handleFlush(w http.ResponseWriter, r *http.Request) {
	for _, f := range h.cfg.Flushers {
		if err := f.Flush(r.Context()); err != nil {
			writeError(w, r, h.logger, errors.Unavailable("flush interrupted", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (h *IngestHandler) handleSetUser(w http.ResponseWriter, r *http.Request) {
	var info model.UserInfo
	if err := h.decodeCrashContext(r, "user", &info); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	h.cfg.CrashContext.WriteUserInfo(&info)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "context": "user"})
}

func (h *IngestHandler) handleSetNetwork(w http.ResponseWriter, r *http.Request) {
	var info model.NetworkInfo
	if err := h.decodeCrashContext(r, "network", &info); err != nil {
		writeError(w, r, h.logger, err)
		return
	}
	if info.Connectivity == "" {
		writeError(w, r, h.logger, errors.InvalidEvent("network connectivity is empty"))
		return
	}
	h.cfg.CrashContext.WriteNetworkInfo(&info)
	writeJSON(w, http.StatusOK, map[string]string{"status": "stored", "context": "network"})
}

// decodeCrashContext applies the event admission rules to a crash context
// update and decodes it into v
func (h *IngestHandler) decodeCrashContext(r *http.Request, name string, v any) error {
	if h.cfg.CrashContext == nil {
		return errors.Unavailable("crash context is not managed", nil)
	}
	body, err := h.readBody(r)
	if err != nil {
		return err
	}
	if err := h.cfg.Validator.ValidateEvent(body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, v); err != nil {
		return errors.InvalidEvent("malformed " + name + " context")
	}
	if h.cfg.Consent != nil && h.cfg.Consent.GetConsent() == model.ConsentNotGranted {
		return errors.ConsentDenied(name)
	}
	return nil
}
