package core

import (
	"runtime"
	"strings"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/config"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
)

// DeviceInfo describes the host events are reported from
type DeviceInfo struct {
	Type         string
	Name         string
	Model        string
	Brand        string
	Architecture string
	BuildID      string
	OsName       string
	OsVersion    string
}

// NewDeviceInfo builds DeviceInfo from config, filling the architecture from the runtime
func NewDeviceInfo(cfg config.DeviceConfig) DeviceInfo {
	arch := cfg.Architecture
	if arch == "" {
		arch = runtime.GOARCH
	}
	return DeviceInfo{
		Type:         cfg.Type,
		Name:         cfg.Name,
		Model:        cfg.Model,
		Brand:        cfg.Brand,
		Architecture: arch,
		BuildID:      cfg.BuildID,
		OsName:       cfg.OsName,
		OsVersion:    cfg.OsVersion,
	}
}

// OsMajorVersion returns the leading component of the OS version
func (d DeviceInfo) OsMajorVersion() string {
	major, _, _ := strings.Cut(d.OsVersion, ".")
	return major
}

// Os returns the RUM "os" object
func (d DeviceInfo) Os() *model.Os {
	return &model.Os{
		Name:         d.OsName,
		Version:      d.OsVersion,
		VersionMajor: d.OsMajorVersion(),
	}
}

// Device returns the RUM "device" object
func (d DeviceInfo) Device() *model.Device {
	return &model.Device{
		Type:         d.Type,
		Name:         d.Name,
		Model:        d.Model,
		Brand:        d.Brand,
		Architecture: d.Architecture,
	}
}
