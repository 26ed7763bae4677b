package batchfile

import "bytes"

// PayloadDecoration wraps the events of a batch when it is read for upload
type PayloadDecoration struct {
	Prefix    []byte
	Separator []byte
	Suffix    []byte
}

var (
	// JSONArrayDecoration renders a batch as a JSON array
	JSONArrayDecoration = PayloadDecoration{
		Prefix:    []byte("["),
		Separator: []byte(","),
		Suffix:    []byte("]"),
	}

	// NewLineDecoration renders a batch as newline separated records
	NewLineDecoration = PayloadDecoration{
		Separator: []byte("\n"),
	}
)

// IsZero reports whether the decoration adds nothing around or between events
func (d PayloadDecoration) IsZero() bool {
	return len(d.Prefix) == 0 && len(d.Separator) == 0 && len(d.Suffix) == 0
}

// Decorate returns prefix + join(events, separator) + suffix
func (d PayloadDecoration) Decorate(events [][]byte) []byte {
	var buf bytes.Buffer
	buf.Write(d.Prefix)
	for i, e := range events {
		if i > 0 {
			buf.Write(d.Separator)
		}
		buf.Write(e)
	}
	buf.Write(d.Suffix)
	return buf.Bytes()
}
