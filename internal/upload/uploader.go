// Package upload sends batches to the intake and schedules the upload loop.
package upload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptrace"
	"net/textproto"
	"strings"
	"sync/atomic"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/metrics"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"github.com/klauspost/compress/gzip"
	"go.uber.org/zap"
)

const (
	// UploadURLFormat is the intake path, parameterized by endpoint and client token
	UploadURLFormat = "%s/v1/input/%s?ddsource=mobile"

	HeaderUserAgent       = "User-Agent"
	HeaderContentType     = "Content-Type"
	HeaderContentEncoding = "Content-Encoding"
	ContentTypeJSON       = "application/json"
	HeaderDate            = "Date"
)

// errInformationalResponse aborts a request as soon as the intake answers with a 1xx code
var errInformationalResponse = errors.New("informational response")

// Uploader sends one rendered batch to the intake
type Uploader interface {
	Upload(ctx context.Context, payload []byte) model.UploadStatus
}

// ServerTimeObserver receives the intake clock read from response Date headers
type ServerTimeObserver interface {
	ObserveServerTime(server time.Time)
}

// DeviceInfo feeds the default User-Agent
type DeviceInfo struct {
	OsVersion string
	Model     string
	BuildID   string
}

// HTTPUploaderConfig configures an HTTPUploader
type HTTPUploaderConfig struct {
	Endpoint    string
	ClientToken string
	Feature     string
	SdkVersion  string
	Device      DeviceInfo
	// SystemUserAgent replaces the generated User-Agent when set
	SystemUserAgent string
	Gzip            bool
	Timeout         time.Duration
	// Client is used as is when set; Timeout and redirect policy are not applied
	Client *http.Client
	// ServerTime, when set, is updated from the Date header of every response
	ServerTime ServerTimeObserver
}

// HTTPUploader posts JSON array payloads to the intake
type HTTPUploader struct {
	url        string
	userAgent  string
	feature    string
	gzip       bool
	client     *http.Client
	serverTime ServerTimeObserver
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewHTTPUploader creates an HTTPUploader
func NewHTTPUploader(cfg HTTPUploaderConfig, logger *zap.Logger, m *metrics.Metrics) *HTTPUploader {
	if logger == nil {
		logger = zap.NewNop()
	}

	client := cfg.Client
	if client == nil {
		client = &http.Client{
			Timeout: cfg.Timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		}
	}

	userAgent := strings.TrimSpace(cfg.SystemUserAgent)
	if userAgent == "" {
		userAgent = DefaultUserAgent(cfg.SdkVersion, cfg.Device)
	}

	return &HTTPUploader{
		url:        fmt.Sprintf(UploadURLFormat, strings.TrimRight(cfg.Endpoint, "/"), cfg.ClientToken),
		userAgent:  userAgent,
		feature:    cfg.Feature,
		gzip:       cfg.Gzip,
		client:     client,
		serverTime: cfg.ServerTime,
		logger:     logger,
		metrics:    m,
	}
}

// DefaultUserAgent builds the User-Agent used when no system agent is configured
func DefaultUserAgent(sdkVersion string, device DeviceInfo) string {
	return fmt.Sprintf("Datadog/%s (Linux; U; Android %s; %s Build/%s)",
		sdkVersion, device.OsVersion, device.Model, device.BuildID)
}

// URL returns the intake URL requests are sent to
func (u *HTTPUploader) URL() string {
	return u.url
}

// UserAgent returns the User-Agent header value
func (u *HTTPUploader) UserAgent() string {
	return u.userAgent
}

// Upload implements Uploader. It never retries; the caller decides from the status.
func (u *HTTPUploader) Upload(ctx context.Context, payload []byte) model.UploadStatus {
	start := time.Now()
	status := u.send(ctx, payload)
	u.metrics.RecordUpload(u.feature, string(status), time.Since(start).Seconds(), len(payload))
	return status
}

// UploadFile reads a batch file, renders it as a JSON array and uploads it
func (u *HTTPUploader) UploadFile(ctx context.Context, rw batchfile.ReaderWriter, file string) model.UploadStatus {
	payload := batchfile.JSONArrayDecoration.Decorate(rw.ReadData(file))
	return u.Upload(ctx, payload)
}

func (u *HTTPUploader) send(ctx context.Context, payload []byte) model.UploadStatus {
	body, err := u.encodeBody(payload)
	if err != nil {
		u.logger.Error("Unable to compress upload body", zap.String("feature", u.feature), zap.Error(err))
		return model.UploadStatusUnknownError
	}

	// net/http consumes 1xx answers itself, so they are caught through the trace
	var informational atomic.Int32
	trace := &httptrace.ClientTrace{
		Got1xxResponse: func(code int, _ textproto.MIMEHeader) error {
			informational.Store(int32(code))
			return errInformationalResponse
		},
	}

	req, err := http.NewRequestWithContext(httptrace.WithClientTrace(ctx, trace), http.MethodPost, u.url, bytes.NewReader(body))
	if err != nil {
		u.logger.Error("Unable to create upload request", zap.String("feature", u.feature), zap.Error(err))
		return model.UploadStatusNetworkError
	}
	req.Header.Set(HeaderUserAgent, u.userAgent)
	req.Header.Set(HeaderContentType, ContentTypeJSON)
	if u.gzip {
		req.Header.Set(HeaderContentEncoding, "gzip")
	}

	resp, err := u.client.Do(req)
	if code := int(informational.Load()); code != 0 {
		if resp != nil {
			resp.Body.Close()
		}
		status := StatusFromCode(code)
		u.logger.Warn("Intake answered with an informational code",
			zap.String("feature", u.feature),
			zap.Int("code", code),
			zap.String("status", string(status)))
		return status
	}
	if err != nil {
		u.logger.Warn("Unable to upload batch", zap.String("feature", u.feature), zap.Error(err))
		return model.UploadStatusNetworkError
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	u.observeServerTime(resp.Header)

	status := StatusFromCode(resp.StatusCode)
	u.logger.Debug("Batch sent",
		zap.String("feature", u.feature),
		zap.Int("code", resp.StatusCode),
		zap.String("status", string(status)),
		zap.Int("bytes", len(payload)))
	return status
}

func (u *HTTPUploader) observeServerTime(h http.Header) {
	if u.serverTime == nil {
		return
	}
	date := h.Get(HeaderDate)
	if date == "" {
		return
	}
	server, err := http.ParseTime(date)
	if err != nil {
		u.logger.Debug("Ignoring malformed Date header", zap.String("date", date), zap.Error(err))
		return
	}
	u.serverTime.ObserveServerTime(server)
}

func (u *HTTPUploader) encodeBody(payload []byte) ([]byte, error) {
	if !u.gzip {
		return payload, nil
	}
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(payload); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
