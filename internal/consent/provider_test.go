package consent

import (
	"sync"
	"testing"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type recordingListener struct {
	mu      sync.Mutex
	changes [][2]model.ConsentState
}

func (r *recordingListener) OnConsentUpdated(previous, current model.ConsentState) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, [2]model.ConsentState{previous, current})
}

func TestTrackingConsentProvider_NotifiesOnChange(t *testing.T) {
	p := NewTrackingConsentProvider(model.ConsentPending, zap.NewNop())
	l := &recordingListener{}
	p.RegisterListener(l)

	p.SetConsent(model.ConsentGranted)
	p.SetConsent(model.ConsentGranted)
	p.SetConsent(model.ConsentNotGranted)

	assert.Equal(t, model.ConsentNotGranted, p.GetConsent())
	assert.Equal(t, [][2]model.ConsentState{
		{model.ConsentPending, model.ConsentGranted},
		{model.ConsentGranted, model.ConsentNotGranted},
	}, l.changes)
}

func TestTrackingConsentProvider_Unregister(t *testing.T) {
	p := NewTrackingConsentProvider(model.ConsentPending, nil)
	kept := &recordingListener{}
	removed := &recordingListener{}
	p.RegisterListener(kept)
	p.RegisterListener(removed)

	p.UnregisterListener(removed)
	p.SetConsent(model.ConsentGranted)

	assert.Len(t, kept.changes, 1)
	assert.Empty(t, removed.changes)

	p.UnregisterAllListeners()
	p.SetConsent(model.ConsentPending)
	assert.Len(t, kept.changes, 1)
}

func TestListenerFunc(t *testing.T) {
	p := NewTrackingConsentProvider(model.ConsentNotGranted, nil)
	var got model.ConsentState
	p.RegisterListener(ListenerFunc(func(_, current model.ConsentState) { got = current }))

	p.SetConsent(model.ConsentPending)
	assert.Equal(t, model.ConsentPending, got)
}
