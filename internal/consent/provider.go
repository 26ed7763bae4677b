// Package consent tracks the user's tracking consent and notifies listeners
// when it changes.
package consent

import (
	"sync"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"go.uber.org/zap"
)

// Listener is notified after every consent change
type Listener interface {
	OnConsentUpdated(previous, current model.ConsentState)
}

// ListenerFunc adapts a function to Listener
type ListenerFunc func(previous, current model.ConsentState)

// OnConsentUpdated implements Listener
func (f ListenerFunc) OnConsentUpdated(previous, current model.ConsentState) {
	f(previous, current)
}

// Provider holds the current consent
type Provider interface {
	GetConsent() model.ConsentState
	SetConsent(consent model.ConsentState)
	RegisterListener(l Listener)
	UnregisterListener(l Listener)
	UnregisterAllListeners()
}

// TrackingConsentProvider is the in-memory Provider
type TrackingConsentProvider struct {
	mu        sync.RWMutex
	consent   model.ConsentState
	listeners []Listener
	logger    *zap.Logger
}

// NewTrackingConsentProvider creates a provider with an initial consent
func NewTrackingConsentProvider(initial model.ConsentState, logger *zap.Logger) *TrackingConsentProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TrackingConsentProvider{
		consent: initial,
		logger:  logger,
	}
}

// GetConsent implements Provider
func (p *TrackingConsentProvider) GetConsent() model.ConsentState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.consent
}

// SetConsent implements Provider. Listeners run synchronously, outside the lock.
func (p *TrackingConsentProvider) SetConsent(consent model.ConsentState) {
	p.mu.Lock()
	previous := p.consent
	if previous == consent {
		p.mu.Unlock()
		return
	}
	p.consent = consent
	listeners := make([]Listener, len(p.listeners))
	copy(listeners, p.listeners)
	p.mu.Unlock()

	p.logger.Info("Tracking consent updated",
		zap.String("previous", string(previous)),
		zap.String("current", string(consent)))

	for _, l := range listeners {
		l.OnConsentUpdated(previous, consent)
	}
}

// RegisterListener implements Provider
func (p *TrackingConsentProvider) RegisterListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = append(p.listeners, l)
}

// UnregisterListener implements Provider. Listeners are compared by identity,
// so register pointers rather than ListenerFunc values to be able to remove them.
func (p *TrackingConsentProvider) UnregisterListener(l Listener) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, existing := range p.listeners {
		if existing == l {
			p.listeners = append(p.listeners[:i], p.listeners[i+1:]...)
			return
		}
	}
}

// UnregisterAllListeners implements Provider
func (p *TrackingConsentProvider) UnregisterAllListeners() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listeners = nil
}
