package upload

import (
	"net/http"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
)

// StatusFromCode maps an intake response code to an upload status.
// 100, 204, 205 and 407 are treated as network failures: they mean the
// payload may not have been accepted and the batch must be kept.
func StatusFromCode(code int) model.UploadStatus {
	switch {
	case code < 100:
		return model.UploadStatusNetworkError
	case code == http.StatusContinue:
		return model.UploadStatusNetworkError
	case code < 200:
		return model.UploadStatusUnknownError
	case code == http.StatusNoContent, code == http.StatusResetContent:
		return model.UploadStatusNetworkError
	case code < 300:
		return model.UploadStatusSuccess
	case code < 400:
		return model.UploadStatusHTTPRedirection
	case code == http.StatusProxyAuthRequired:
		return model.UploadStatusNetworkError
	case code < 500:
		return model.UploadStatusHTTPClientError
	case code < 600:
		return model.UploadStatusHTTPServerError
	case code < 1000:
		return model.UploadStatusUnknownError
	default:
		return model.UploadStatusNetworkError
	}
}
