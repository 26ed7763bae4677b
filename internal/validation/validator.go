package validation

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/errors"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
)

const (
	// Size limits
	MaxItemSize        = 512 * 1024 // 512 KB
	MaxFeatureNameSize = 64
	MaxTagCount        = 100
	MaxTagSize         = 200
)

// Validator checks serialized events before they are persisted
type Validator struct {
	maxItemSize int
	requireJSON bool
}

// NewValidator creates a validator with default limits
func NewValidator() *Validator {
	return &Validator{
		maxItemSize: MaxItemSize,
		requireJSON: true,
	}
}

// NewValidatorWithLimits creates a validator with custom limits
func NewValidatorWithLimits(maxItemSize int, requireJSON bool) *Validator {
	return &Validator{
		maxItemSize: maxItemSize,
		requireJSON: requireJSON,
	}
}

// ValidateEvent validates one serialized event
func (v *Validator) ValidateEvent(data []byte) error {
	if len(data) == 0 {
		return errors.InvalidEvent("event is empty")
	}

	if len(data) > v.maxItemSize {
		return errors.EventTooLarge(len(data), v.maxItemSize)
	}

	// Events are joined with ',' inside a JSON array at upload time, so a
	// non-JSON event would corrupt the whole batch.
	if v.requireJSON && !json.Valid(data) {
		return errors.InvalidEvent("event is not valid JSON")
	}

	return nil
}

// ValidateFeatureName validates a feature name used as a directory prefix
func (v *Validator) ValidateFeatureName(name string) error {
	if name == "" {
		return errors.InvalidArgument("feature name cannot be empty", nil)
	}

	if len(name) > MaxFeatureNameSize {
		return errors.InvalidArgument(fmt.Sprintf("feature name exceeds maximum size of %d bytes", MaxFeatureNameSize), nil)
	}

	for _, r := range name {
		if !(r == '_' || r == '-' || unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return errors.InvalidArgument(fmt.Sprintf("feature name %q contains forbidden character %q", name, r), nil)
		}
	}

	return nil
}

// ValidateTags validates log tags (key:value pairs)
func (v *Validator) ValidateTags(tags []string) error {
	if len(tags) > MaxTagCount {
		return errors.InvalidArgument(fmt.Sprintf("too many tags: %d > %d", len(tags), MaxTagCount), nil)
	}
	for i, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			return errors.InvalidArgument(fmt.Sprintf("tag %d is empty", i), nil)
		}
		if strings.ContainsRune(tag, 0) {
			return errors.InvalidArgument(fmt.Sprintf("tag %d contains null bytes", i), nil)
		}
	}
	return nil
}

// SanitizeTag lowercases a tag and strips characters the intake rejects
func SanitizeTag(tag string) string {
	sanitized := strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return -1
		}
		if unicode.IsSpace(r) {
			return '_'
		}
		return unicode.ToLower(r)
	}, strings.TrimSpace(tag))

	if len(sanitized) > MaxTagSize {
		cut := MaxTagSize
		for cut > 0 && !utf8.RuneStart(sanitized[cut]) {
			cut--
		}
		sanitized = sanitized[:cut]
	}
	return sanitized
}

// EstimateWriteSize estimates the disk space an event takes once framed,
// used by the disk manager before a write
func EstimateWriteSize(data []byte, encrypted bool) uint64 {
	size := uint64(len(data) + batchfile.BlockOverhead)
	if encrypted {
		// age header and per-chunk tag
		size += 256 + uint64(len(data)/(64*1024)+1)*16
	}
	return size
}
