//go:build property
// +build property

package batchfile

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// Property: DecodeBlocks(concat(EncodeBlock(p) for p in payloads)) == payloads
func TestBlockFramingRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("framed payloads decode in order", prop.ForAll(
		func(payloads []string) bool {
			var data []byte
			for _, p := range payloads {
				data = append(data, EncodeBlock(BlockTypeEvent, []byte(p))...)
			}

			blocks, err := DecodeBlocks(data)
			if err != nil || len(blocks) != len(payloads) {
				return false
			}
			for i, b := range blocks {
				if string(b.Data) != payloads[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t)
}

// Property: truncating a framed file never yields a block that was not written
func TestBlockFramingTruncation(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("truncation keeps a prefix of the payloads", prop.ForAll(
		func(payloads []string, cut int) bool {
			var data []byte
			for _, p := range payloads {
				data = append(data, EncodeBlock(BlockTypeEvent, []byte(p))...)
			}
			if len(data) == 0 {
				return true
			}
			cut = cut % (len(data) + 1)

			blocks, _ := DecodeBlocks(data[:cut])
			if len(blocks) > len(payloads) {
				return false
			}
			for i, b := range blocks {
				if string(b.Data) != payloads[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.AlphaString()),
		gen.IntRange(0, 1<<16),
	))

	properties.TestingRun(t)
}

// Property: Decorate(events) has len(prefix)+len(suffix)+sum(len)+separators bytes
func TestJSONArrayDecorationLength(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("decorated size is exact", prop.ForAll(
		func(events []string) bool {
			raw := make([][]byte, len(events))
			want := 2
			for i, e := range events {
				raw[i] = []byte(e)
				want += len(e)
			}
			if len(events) > 1 {
				want += len(events) - 1
			}
			return len(JSONArrayDecoration.Decorate(raw)) == want
		},
		gen.SliceOf(gen.AlphaString()),
	))

	properties.TestingRun(t)
}
