// Package core holds the feature registry shared by every SDK feature.
package core

import (
	"sort"
	"sync"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/config"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/consent"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/timeprovider"
	"go.uber.org/zap"
)

// FeatureRegistry resolves features by name
type FeatureRegistry interface {
	GetFeature(name string) (Feature, bool)
}

// Stopper is implemented by features owning background resources
type Stopper interface {
	Stop(timeout time.Duration)
}

// SdkCore owns the registered features and the state they share
type SdkCore struct {
	site     config.SiteConfig
	device   DeviceInfo
	consent  consent.Provider
	time     timeprovider.Provider
	logger   *zap.Logger
	mu       sync.RWMutex
	features map[string]Feature
}

// NewSdkCore creates an SdkCore
func NewSdkCore(site config.SiteConfig, device DeviceInfo, consentProvider consent.Provider, timeProvider timeprovider.Provider, logger *zap.Logger) *SdkCore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SdkCore{
		site:     site,
		device:   device,
		consent:  consentProvider,
		time:     timeProvider,
		logger:   logger,
		features: make(map[string]Feature),
	}
}

// RegisterFeature registers f unless a feature with the same name exists.
// It returns false when f was not registered.
func (c *SdkCore) RegisterFeature(f Feature) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.features[f.Name()]; exists {
		c.logger.Warn("Feature already registered", zap.String("feature", f.Name()))
		return false
	}
	c.features[f.Name()] = f
	c.logger.Info("Feature registered", zap.String("feature", f.Name()))
	return true
}

// GetFeature implements FeatureRegistry
func (c *SdkCore) GetFeature(name string) (Feature, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	f, ok := c.features[name]
	return f, ok
}

// FeatureNames returns the registered feature names, sorted
func (c *SdkCore) FeatureNames() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.features))
	for name := range c.features {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ConsentProvider returns the tracking consent provider
func (c *SdkCore) ConsentProvider() consent.Provider {
	return c.consent
}

// TimeProvider returns the server-offset time provider
func (c *SdkCore) TimeProvider() timeprovider.Provider {
	return c.time
}

// DeviceInfo returns the host description
func (c *SdkCore) DeviceInfo() DeviceInfo {
	return c.device
}

// WriteContext snapshots the current SDK state
func (c *SdkCore) WriteContext() WriteContext {
	return WriteContext{
		Service:            c.site.Service,
		Env:                c.site.Env,
		Version:            c.site.Version,
		SdkVersion:         c.site.SdkVersion,
		Source:             c.site.Source,
		Device:             c.device,
		DeviceTimeMillis:   c.time.DeviceTimestampMillis(),
		ServerOffsetMillis: c.time.ServerOffsetMillis(),
		Consent:            c.consent.GetConsent(),
	}
}

// Stop stops every registered feature that owns background resources
func (c *SdkCore) Stop(timeout time.Duration) {
	c.mu.RLock()
	features := make([]Feature, 0, len(c.features))
	for _, f := range c.features {
		features = append(features, f)
	}
	c.mu.RUnlock()

	for _, f := range features {
		if s, ok := f.(Stopper); ok {
			s.Stop(timeout)
		}
	}
}
