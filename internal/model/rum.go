package model

// RumEventTypeView and RumEventTypeError are the "type" discriminators of RUM events
const (
	RumEventTypeView  = "view"
	RumEventTypeError = "error"
)

// Application identifies the RUM application
type Application struct {
	ID string `json:"id"`
}

// RumSession identifies the RUM session an event belongs to
type RumSession struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// Count is a plain counter object used by the view schema
type Count struct {
	Count int64 `json:"count"`
}

// ViewDetails is the "view" object of a view event
type ViewDetails struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	Referrer  string `json:"referrer,omitempty"`
	URL       string `json:"url"`
	TimeSpent int64  `json:"time_spent"`
	Action    Count  `json:"action"`
	Error     Count  `json:"error"`
	Resource  Count  `json:"resource"`
	Crash     *Count `json:"crash,omitempty"`
	LongTask  *Count `json:"long_task,omitempty"`
	IsActive  *bool  `json:"is_active,omitempty"`
}

// Usr holds the user attached to a RUM event
type Usr struct {
	ID                   string         `json:"id,omitempty"`
	Name                 string         `json:"name,omitempty"`
	Email                string         `json:"email,omitempty"`
	AdditionalProperties map[string]any `json:"additional_properties,omitempty"`
}

// IsEmpty reports whether no user field is set
func (u *Usr) IsEmpty() bool {
	return u == nil || (u.ID == "" && u.Name == "" && u.Email == "" && len(u.AdditionalProperties) == 0)
}

// Cellular describes the cellular link
type Cellular struct {
	Technology  string `json:"technology,omitempty"`
	CarrierName string `json:"carrier_name,omitempty"`
}

// Connectivity describes the network state at event time
type Connectivity struct {
	Status     string    `json:"status"`
	Interfaces []string  `json:"interfaces"`
	Cellular   *Cellular `json:"cellular,omitempty"`
}

// DdSession carries the session plan
type DdSession struct {
	Plan int `json:"plan"`
}

// ViewDd is the internal "_dd" block of a view event.
// DocumentVersion increases on every update of the same view.
type ViewDd struct {
	FormatVersion   int        `json:"format_version"`
	DocumentVersion int64      `json:"document_version"`
	Session         *DdSession `json:"session,omitempty"`
}

// ViewEvent is a RUM view update
type ViewEvent struct {
	Date         int64          `json:"date"`
	Application  Application    `json:"application"`
	Service      string         `json:"service,omitempty"`
	Version      string         `json:"version,omitempty"`
	Session      RumSession     `json:"session"`
	Source       string         `json:"source,omitempty"`
	View         ViewDetails    `json:"view"`
	Usr          *Usr           `json:"usr,omitempty"`
	Connectivity *Connectivity  `json:"connectivity,omitempty"`
	Dd           ViewDd         `json:"_dd"`
	Context      map[string]any `json:"context,omitempty"`
	Type         string         `json:"type"`
}

// ErrorView is the view reference carried by an error event
type ErrorView struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Referrer string `json:"referrer,omitempty"`
	URL      string `json:"url"`
}

// Os describes the operating system
type Os struct {
	Name         string `json:"name"`
	Version      string `json:"version"`
	VersionMajor string `json:"version_major"`
}

// Device describes the device hardware
type Device struct {
	Type         string `json:"type"`
	Name         string `json:"name,omitempty"`
	Model        string `json:"model,omitempty"`
	Brand        string `json:"brand,omitempty"`
	Architecture string `json:"architecture,omitempty"`
}

// ErrorDetails is the "error" object of an error event
type ErrorDetails struct {
	Message    string `json:"message"`
	Source     string `json:"source"`
	Stack      string `json:"stack,omitempty"`
	IsCrash    bool   `json:"is_crash"`
	Type       string `json:"type,omitempty"`
	SourceType string `json:"source_type,omitempty"`
}

// ErrorDd is the internal "_dd" block of an error event
type ErrorDd struct {
	FormatVersion int        `json:"format_version"`
	Session       *DdSession `json:"session,omitempty"`
}

// ErrorEvent is a RUM error
type ErrorEvent struct {
	Date         int64          `json:"date"`
	Application  Application    `json:"application"`
	Service      string         `json:"service,omitempty"`
	Version      string         `json:"version,omitempty"`
	Session      RumSession     `json:"session"`
	Source       string         `json:"source,omitempty"`
	View         ErrorView      `json:"view"`
	Usr          *Usr           `json:"usr,omitempty"`
	Connectivity *Connectivity  `json:"connectivity,omitempty"`
	Os           *Os            `json:"os,omitempty"`
	Device       *Device        `json:"device,omitempty"`
	Dd           ErrorDd        `json:"_dd"`
	Context      map[string]any `json:"context,omitempty"`
	Error        ErrorDetails   `json:"error"`
	Type         string         `json:"type"`
}
