package rum

import (
	"encoding/json"
	"fmt"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
)

// EventSerializer serializes the RUM event variants. The "type"
// discriminator is always set from the variant.
type EventSerializer struct{}

// Serialize implements persistence.Serializer
func (EventSerializer) Serialize(event any) ([]byte, error) {
	switch e := event.(type) {
	case *model.ViewEvent:
		return serializeView(*e)
	case model.ViewEvent:
		return serializeView(e)
	case *model.ErrorEvent:
		return serializeError(*e)
	case model.ErrorEvent:
		return serializeError(e)
	default:
		return nil, fmt.Errorf("unsupported RUM event %T", event)
	}
}

// DeserializeViewEvent parses a view event, rejecting any other RUM variant
func DeserializeViewEvent(data []byte) (*model.ViewEvent, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("failed to parse RUM event: %w", err)
	}
	if probe.Type != model.RumEventTypeView {
		return nil, fmt.Errorf("RUM event of type %q is not a view", probe.Type)
	}

	var view model.ViewEvent
	if err := json.Unmarshal(data, &view); err != nil {
		return nil, fmt.Errorf("failed to parse view event: %w", err)
	}
	return &view, nil
}

func serializeView(e model.ViewEvent) ([]byte, error) {
	e.Type = model.RumEventTypeView
	return json.Marshal(e)
}

func serializeError(e model.ErrorEvent) ([]byte, error) {
	e.Type = model.RumEventTypeError
	return json.Marshal(e)
}
