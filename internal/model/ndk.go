package model

// NdkCrashLog is the report written by the native crash handler before
// the process died
type NdkCrashLog struct {
	Signal     int    `json:"signal"`
	Timestamp  int64  `json:"timestamp"`
	SignalName string `json:"signal_name"`
	Message    string `json:"message"`
	Stacktrace string `json:"stacktrace"`
}
