// Package timeprovider corrects device time with the offset measured against the intake.
package timeprovider

import (
	"sync/atomic"
	"time"
)

// Provider reports device and server time
type Provider interface {
	DeviceTimestampMillis() int64
	ServerTimestampMillis() int64
	ServerOffsetMillis() int64
}

// ServerOffsetProvider keeps the server offset in an atomic so any goroutine can update it
type ServerOffsetProvider struct {
	now    func() time.Time
	offset atomic.Int64
}

// New creates a provider backed by time.Now
func New() *ServerOffsetProvider {
	return NewWithClock(time.Now)
}

// NewWithClock creates a provider backed by the given clock
func NewWithClock(now func() time.Time) *ServerOffsetProvider {
	return &ServerOffsetProvider{now: now}
}

// DeviceTimestampMillis implements Provider
func (p *ServerOffsetProvider) DeviceTimestampMillis() int64 {
	return p.now().UnixMilli()
}

// ServerTimestampMillis implements Provider
func (p *ServerOffsetProvider) ServerTimestampMillis() int64 {
	return p.DeviceTimestampMillis() + p.offset.Load()
}

// ServerOffsetMillis implements Provider
func (p *ServerOffsetProvider) ServerOffsetMillis() int64 {
	return p.offset.Load()
}

// SetServerOffset stores the server minus device offset
func (p *ServerOffsetProvider) SetServerOffset(offset time.Duration) {
	p.offset.Store(offset.Milliseconds())
}

// ObserveServerTime records the offset from a server timestamp seen now
func (p *ServerOffsetProvider) ObserveServerTime(server time.Time) {
	p.offset.Store(server.UnixMilli() - p.DeviceTimestampMillis())
}
