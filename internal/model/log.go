package model

// Log statuses
const (
	LogStatusDebug     = "debug"
	LogStatusInfo      = "info"
	LogStatusWarn      = "warn"
	LogStatusError     = "error"
	LogStatusCritical  = "critical"
	LogStatusEmergency = "emergency"
)

// UserInfo is the last known user, persisted for crash correlation
type UserInfo struct {
	ID                   string         `json:"id,omitempty"`
	Name                 string         `json:"name,omitempty"`
	Email                string         `json:"email,omitempty"`
	AdditionalProperties map[string]any `json:"additional_properties,omitempty"`
}

// NetworkInfo is the last known network state, persisted for crash correlation
type NetworkInfo struct {
	Connectivity       string `json:"connectivity"`
	CarrierName        string `json:"carrier_name,omitempty"`
	CarrierID          int64  `json:"carrier_id,omitempty"`
	UpKbps             int64  `json:"up_kbps,omitempty"`
	DownKbps           int64  `json:"down_kbps,omitempty"`
	Strength           int64  `json:"strength,omitempty"`
	CellularTechnology string `json:"cellular_technology,omitempty"`
}

// LogEvent is a single log record before serialization
type LogEvent struct {
	Status      string
	Service     string
	Message     string
	Date        int64
	LoggerName  string
	ThreadName  string
	Version     string
	Tags        []string
	Attributes  map[string]any
	UserInfo    *UserInfo
	NetworkInfo *NetworkInfo
	ErrorKind   string
	ErrorStack  string
}
