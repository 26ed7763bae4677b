package model

// UploadStatus classifies the outcome of a batch upload
type UploadStatus string

const (
	UploadStatusSuccess         UploadStatus = "SUCCESS"
	UploadStatusHTTPRedirection UploadStatus = "HTTP_REDIRECTION"
	UploadStatusHTTPClientError UploadStatus = "HTTP_CLIENT_ERROR"
	UploadStatusHTTPServerError UploadStatus = "HTTP_SERVER_ERROR"
	UploadStatusNetworkError    UploadStatus = "NETWORK_ERROR"
	UploadStatusUnknownError    UploadStatus = "UNKNOWN_ERROR"
)

// ShouldRetry reports whether the batch must stay on disk for a later cycle.
// Only transient failures keep the file; everything else deletes it.
func (s UploadStatus) ShouldRetry() bool {
	switch s {
	case UploadStatusNetworkError, UploadStatusHTTPServerError:
		return true
	default:
		return false
	}
}
