package logs

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/validation"
)

// Reserved log attribute keys
const (
	AttrRumSessionID     = "session_id"
	AttrRumApplicationID = "application_id"
	AttrRumViewID        = "view.id"
	AttrErrorStack       = "error.stack"

	MaxAttributes = 128

	dateLayout = "2006-01-02T15:04:05.000Z"
)

// reservedKeys cannot be overridden by user attributes
var reservedKeys = map[string]struct{}{
	"status":  {},
	"service": {},
	"message": {},
	"date":    {},
	"logger":  {},
	"usr":     {},
	"network": {},
	"error":   {},
	"ddtags":  {},
}

// LogEventSerializer renders a LogEvent in the intake JSON format
type LogEventSerializer struct{}

// Serialize implements persistence.Serializer
func (LogEventSerializer) Serialize(e model.LogEvent) ([]byte, error) {
	doc := make(map[string]any, len(e.Attributes)+10)

	count := 0
	for k, v := range e.Attributes {
		if _, reserved := reservedKeys[k]; reserved || k == "" {
			continue
		}
		if count >= MaxAttributes {
			break
		}
		doc[k] = v
		count++
	}

	doc["status"] = e.Status
	doc["service"] = e.Service
	doc["message"] = e.Message
	doc["date"] = time.UnixMilli(e.Date).UTC().Format(dateLayout)
	doc["logger"] = map[string]any{
		"name":        e.LoggerName,
		"thread_name": e.ThreadName,
		"version":     e.Version,
	}

	if u := e.UserInfo; u != nil {
		usr := make(map[string]any, len(u.AdditionalProperties)+3)
		for k, v := range u.AdditionalProperties {
			usr[k] = v
		}
		if u.ID != "" {
			usr["id"] = u.ID
		}
		if u.Name != "" {
			usr["name"] = u.Name
		}
		if u.Email != "" {
			usr["email"] = u.Email
		}
		if len(usr) > 0 {
			doc["usr"] = usr
		}
	}

	if n := e.NetworkInfo; n != nil {
		client := map[string]any{"connectivity": n.Connectivity}
		if n.CarrierName != "" || n.CarrierID != 0 {
			client["sim_carrier"] = map[string]any{"name": n.CarrierName, "id": n.CarrierID}
		}
		if n.UpKbps > 0 {
			client["uplink_kbps"] = n.UpKbps
		}
		if n.DownKbps > 0 {
			client["downlink_kbps"] = n.DownKbps
		}
		if n.Strength != 0 {
			client["signal_strength"] = n.Strength
		}
		doc["network"] = map[string]any{"client": client}
	}

	if e.ErrorKind != "" || e.ErrorStack != "" {
		doc["error"] = map[string]any{
			"kind":    e.ErrorKind,
			"message": e.Message,
			"stack":   e.ErrorStack,
		}
	}

	if tags := sanitizeTags(e.Tags); tags != "" {
		doc["ddtags"] = tags
	}

	return json.Marshal(doc)
}

func sanitizeTags(tags []string) string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if s := validation.SanitizeTag(t); s != "" {
			out = append(out, s)
		}
		if len(out) == validation.MaxTagCount {
			break
		}
	}
	return strings.Join(out, ",")
}
