package upload

import (
	"fmt"
	"testing"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/stretchr/testify/assert"
)

func TestStatusFromCode(t *testing.T) {
	tests := []struct {
		code int
		want model.UploadStatus
	}{
		{0, model.UploadStatusNetworkError},
		{42, model.UploadStatusNetworkError},
		{99, model.UploadStatusNetworkError},
		{100, model.UploadStatusNetworkError},
		{101, model.UploadStatusUnknownError},
		{102, model.UploadStatusUnknownError},
		{199, model.UploadStatusUnknownError},
		{200, model.UploadStatusSuccess},
		{201, model.UploadStatusSuccess},
		{202, model.UploadStatusSuccess},
		{203, model.UploadStatusSuccess},
		{204, model.UploadStatusNetworkError},
		{205, model.UploadStatusNetworkError},
		{206, model.UploadStatusSuccess},
		{299, model.UploadStatusSuccess},
		{300, model.UploadStatusHTTPRedirection},
		{301, model.UploadStatusHTTPRedirection},
		{302, model.UploadStatusHTTPRedirection},
		{399, model.UploadStatusHTTPRedirection},
		{400, model.UploadStatusHTTPClientError},
		{401, model.UploadStatusHTTPClientError},
		{403, model.UploadStatusHTTPClientError},
		{404, model.UploadStatusHTTPClientError},
		{407, model.UploadStatusNetworkError},
		{408, model.UploadStatusHTTPClientError},
		{413, model.UploadStatusHTTPClientError},
		{499, model.UploadStatusHTTPClientError},
		{500, model.UploadStatusHTTPServerError},
		{503, model.UploadStatusHTTPServerError},
		{599, model.UploadStatusHTTPServerError},
		{600, model.UploadStatusUnknownError},
		{777, model.UploadStatusUnknownError},
		{999, model.UploadStatusUnknownError},
		{1000, model.UploadStatusNetworkError},
		{1234, model.UploadStatusNetworkError},
		{-1, model.UploadStatusNetworkError},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("code_%d", tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, StatusFromCode(tt.code))
		})
	}
}

func TestStatusRetryPolicy(t *testing.T) {
	retained := []model.UploadStatus{model.UploadStatusNetworkError, model.UploadStatusHTTPServerError}
	deleted := []model.UploadStatus{
		model.UploadStatusSuccess,
		model.UploadStatusHTTPClientError,
		model.UploadStatusHTTPRedirection,
		model.UploadStatusUnknownError,
	}

	for _, s := range retained {
		assert.True(t, s.ShouldRetry(), s)
	}
	for _, s := range deleted {
		assert.False(t, s.ShouldRetry(), s)
	}
}
