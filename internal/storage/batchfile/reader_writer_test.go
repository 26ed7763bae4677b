package batchfile

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// xorEncryption is a reversible stand-in for a real cipher
type xorEncryption struct {
	key     byte
	failDec bool
}

func (x xorEncryption) Encrypt(data []byte) ([]byte, error) {
	out := make([]byte, len(data)+1)
	out[0] = 0xEE
	for i, b := range data {
		out[i+1] = b ^ x.key
	}
	return out, nil
}

func (x xorEncryption) Decrypt(data []byte) ([]byte, error) {
	if x.failDec || len(data) == 0 || data[0] != 0xEE {
		return nil, errors.New("bad ciphertext")
	}
	out := make([]byte, len(data)-1)
	for i, b := range data[1:] {
		out[i] = b ^ x.key
	}
	return out, nil
}

func TestBatchFileReaderWriter_AppendAndRead(t *testing.T) {
	file := filepath.Join(t.TempDir(), "1700000000000")
	rw := NewBatchFileReaderWriter(nil, zap.NewNop())

	require.True(t, rw.WriteData(file, []byte(`{"n":1}`), true))
	require.True(t, rw.WriteData(file, []byte(`{"n":2}`), true))
	require.True(t, rw.WriteData(file, []byte(`{"n":3}`), true))

	events := rw.ReadData(file)
	require.Len(t, events, 3)
	assert.Equal(t, `[{"n":1},{"n":2},{"n":3}]`, string(JSONArrayDecoration.Decorate(events)))
}

func TestBatchFileReaderWriter_Overwrite(t *testing.T) {
	file := filepath.Join(t.TempDir(), "last_view_event")
	rw := NewBatchFileReaderWriter(nil, zap.NewNop())

	require.True(t, rw.WriteData(file, []byte("old"), false))
	require.True(t, rw.WriteData(file, []byte("new"), false))

	events := rw.ReadData(file)
	require.Len(t, events, 1)
	assert.Equal(t, "new", string(events[0]))
}

func TestBatchFileReaderWriter_MissingOrEmpty(t *testing.T) {
	dir := t.TempDir()
	rw := NewBatchFileReaderWriter(nil, zap.NewNop())

	assert.Empty(t, rw.ReadData(filepath.Join(dir, "missing")))

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, nil, 0o600))
	assert.Empty(t, rw.ReadData(empty))
}

func TestBatchFileReaderWriter_TornTail(t *testing.T) {
	file := filepath.Join(t.TempDir(), "batch")
	rw := NewBatchFileReaderWriter(nil, zap.NewNop())

	require.True(t, rw.WriteData(file, []byte("kept-1"), true))
	require.True(t, rw.WriteData(file, []byte("kept-2"), true))

	// Simulate a process death in the middle of the third append.
	partial := EncodeBlock(BlockTypeEvent, []byte("lost"))
	f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.Write(partial[:len(partial)-2])
	require.NoError(t, err)
	require.NoError(t, f.Close())

	events := rw.ReadData(file)
	require.Len(t, events, 2)
	assert.Equal(t, "kept-1", string(events[0]))
	assert.Equal(t, "kept-2", string(events[1]))
}

func TestBatchFileReaderWriter_Encryption(t *testing.T) {
	file := filepath.Join(t.TempDir(), "batch")
	enc := xorEncryption{key: 0x5A}
	rw := NewBatchFileReaderWriter(enc, zap.NewNop())

	require.True(t, rw.WriteData(file, []byte("secret-event"), true))

	raw, err := os.ReadFile(file)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "secret-event")

	blocks, err := DecodeBlocks(raw)
	require.NoError(t, err)
	require.Len(t, blocks, 1)
	assert.Equal(t, BlockTypeEncryptedEvent, blocks[0].Type)

	events := rw.ReadData(file)
	require.Len(t, events, 1)
	assert.Equal(t, "secret-event", string(events[0]))
}

func TestBatchFileReaderWriter_UndecryptableBlockSkipped(t *testing.T) {
	file := filepath.Join(t.TempDir(), "batch")

	plain := NewBatchFileReaderWriter(nil, zap.NewNop())
	require.True(t, plain.WriteData(file, []byte("plain"), true))

	// A garbage encrypted block between two readable ones.
	f, err := os.OpenFile(file, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.Write(EncodeBlock(BlockTypeEncryptedEvent, []byte("garbage")))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	sealed := NewBatchFileReaderWriter(xorEncryption{key: 1}, zap.NewNop())
	require.True(t, sealed.WriteData(file, []byte("sealed"), true))

	events := sealed.ReadData(file)
	require.Len(t, events, 2)
	assert.Equal(t, "plain", string(events[0]))
	assert.Equal(t, "sealed", string(events[1]))
}

func TestFileReaderWriter(t *testing.T) {
	dir := t.TempDir()

	t.Run("plain", func(t *testing.T) {
		file := filepath.Join(dir, "user_information")
		rw := NewFileReaderWriter(nil, zap.NewNop())

		require.True(t, rw.WriteData(file, []byte(`{"id":"u1"}`), false))
		assert.Equal(t, `{"id":"u1"}`, string(rw.ReadData(file)))

		require.True(t, rw.WriteData(file, []byte(`x`), true))
		assert.Equal(t, `{"id":"u1"}x`, string(rw.ReadData(file)))
	})

	t.Run("encrypted", func(t *testing.T) {
		file := filepath.Join(dir, "network_information")
		rw := NewFileReaderWriter(xorEncryption{key: 7}, zap.NewNop())

		require.True(t, rw.WriteData(file, []byte(`{"connectivity":"wifi"}`), false))
		assert.Equal(t, `{"connectivity":"wifi"}`, string(rw.ReadData(file)))
		assert.False(t, rw.WriteData(file, []byte("more"), true))
	})

	t.Run("missing", func(t *testing.T) {
		rw := NewFileReaderWriter(nil, zap.NewNop())
		assert.Nil(t, rw.ReadData(filepath.Join(dir, "absent")))
	})
}

func TestDeleteContents(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a"), []byte("1"), 0o600))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b"), []byte("2"), 0o600))

	require.NoError(t, DeleteContents(dir))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.True(t, Exists(dir))

	assert.NoError(t, DeleteContents(filepath.Join(dir, "missing")))
}
