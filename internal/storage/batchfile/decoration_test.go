package batchfile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPayloadDecoration_IsZero(t *testing.T) {
	assert.True(t, PayloadDecoration{}.IsZero())
	assert.True(t, PayloadDecoration{Prefix: []byte{}}.IsZero())
	assert.False(t, JSONArrayDecoration.IsZero())
	assert.False(t, NewLineDecoration.IsZero())
}

func TestPayloadDecoration_Decorate(t *testing.T) {
	events := [][]byte{[]byte(`{"a":1}`), []byte(`{"b":2}`)}

	assert.Equal(t, `[{"a":1},{"b":2}]`, string(JSONArrayDecoration.Decorate(events)))
	assert.Equal(t, "{\"a\":1}\n{\"b\":2}", string(NewLineDecoration.Decorate(events)))
	assert.Equal(t, "[]", string(JSONArrayDecoration.Decorate(nil)))
}
