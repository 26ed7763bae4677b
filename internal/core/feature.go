package core

import (
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/persistence"
)

// Feature names
const (
	LogsFeatureName = "logs"
	RumFeatureName  = "rum"
)

// Feature is a registered SDK feature other components can reach by name
type Feature interface {
	Name() string
	// SendEvent hands a cross-feature event to the feature. Unknown
	// variants are ignored.
	SendEvent(event FeatureEvent)
	// WithWriteContext runs fn on the feature executor with a writer bound
	// to the current batch file. It returns false when fn could not be scheduled.
	WithWriteContext(fn func(ctx WriteContext, writer persistence.EventBatchWriter)) bool
}

// FeatureEvent is the closed set of events exchanged between features
type FeatureEvent interface {
	featureEvent()
}

// CrashLogEvent asks the logs feature to persist a crash as an error log
type CrashLogEvent struct {
	LoggerName  string
	Message     string
	Attributes  map[string]any
	Timestamp   int64
	NetworkInfo *model.NetworkInfo
	UserInfo    *model.UserInfo
}

func (CrashLogEvent) featureEvent() {}

// WriteContext is the SDK state snapshot available while writing
type WriteContext struct {
	Service            string
	Env                string
	Version            string
	SdkVersion         string
	Source             string
	Device             DeviceInfo
	DeviceTimeMillis   int64
	ServerOffsetMillis int64
	Consent            model.ConsentState
}
