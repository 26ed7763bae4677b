package ndk

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/ganeshkumarsv/dd-sdk-android/internal/consent"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/model"
	"github.com/ganeshkumarsv/dd-sdk-android/internal/storage/batchfile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type storageFixture struct {
	root     string
	provider *consent.TrackingConsentProvider
	storage  *Storage
	batchRW  *batchfile.BatchFileReaderWriter
	fileRW   *batchfile.FileReaderWriter
}

func setupStorage(t *testing.T, initial model.ConsentState) *storageFixture {
	t.Helper()
	logger := zap.NewNop()
	f := &storageFixture{
		root:     t.TempDir(),
		provider: consent.NewTrackingConsentProvider(initial, logger),
		batchRW:  batchfile.NewBatchFileReaderWriter(nil, logger),
		fileRW:   batchfile.NewFileReaderWriter(nil, logger),
	}
	f.storage = NewStorage(f.root, f.provider, f.batchRW, f.fileRW, logger)
	return f
}

func TestStorage_GrantedWritesToCrashFolder(t *testing.T) {
	f := setupStorage(t, model.ConsentGranted)

	f.storage.WriteLastViewEvent([]byte(`{"type":"view"}`))
	f.storage.WriteUserInfo(&model.UserInfo{ID: "u1"})
	f.storage.WriteNetworkInfo(&model.NetworkInfo{Connectivity: "network_wifi"})

	dir := GrantedDir(f.root)
	assert.Equal(t, [][]byte{[]byte(`{"type":"view"}`)}, f.batchRW.ReadData(filepath.Join(dir, LastViewEventFileName)))

	var user model.UserInfo
	require.NoError(t, json.Unmarshal(f.fileRW.ReadData(filepath.Join(dir, UserInfoFileName)), &user))
	assert.Equal(t, "u1", user.ID)
	assert.True(t, batchfile.Exists(filepath.Join(dir, NetworkInfoFileName)))
	assert.False(t, batchfile.Exists(IntermediaryDir(f.root)))
}

func TestStorage_LastViewEventIsOverwritten(t *testing.T) {
	f := setupStorage(t, model.ConsentGranted)

	f.storage.WriteLastViewEvent([]byte(`{"v":1}`))
	f.storage.WriteLastViewEvent([]byte(`{"v":2}`))

	assert.Equal(t, [][]byte{[]byte(`{"v":2}`)}, f.batchRW.ReadData(filepath.Join(GrantedDir(f.root), LastViewEventFileName)))
}

func TestStorage_PendingThenGranted(t *testing.T) {
	f := setupStorage(t, model.ConsentPending)

	f.storage.WriteUserInfo(&model.UserInfo{ID: "pending-user"})
	assert.True(t, batchfile.Exists(filepath.Join(IntermediaryDir(f.root), UserInfoFileName)))
	assert.False(t, batchfile.Exists(filepath.Join(GrantedDir(f.root), UserInfoFileName)))

	f.provider.SetConsent(model.ConsentGranted)

	var user model.UserInfo
	require.NoError(t, json.Unmarshal(f.fileRW.ReadData(filepath.Join(GrantedDir(f.root), UserInfoFileName)), &user))
	assert.Equal(t, "pending-user", user.ID)
	assert.False(t, batchfile.Exists(filepath.Join(IntermediaryDir(f.root), UserInfoFileName)))
}

func TestStorage_PendingThenNotGranted(t *testing.T) {
	f := setupStorage(t, model.ConsentPending)
	f.storage.WriteUserInfo(&model.UserInfo{ID: "pending-user"})

	f.provider.SetConsent(model.ConsentNotGranted)
	f.storage.WriteNetworkInfo(&model.NetworkInfo{Connectivity: "network_none"})

	assert.False(t, batchfile.Exists(IntermediaryDir(f.root)))
	assert.False(t, batchfile.Exists(GrantedDir(f.root)))
}

func TestStorage_StartupWipesPending(t *testing.T) {
	root := t.TempDir()
	logger := zap.NewNop()
	rw := batchfile.NewFileReaderWriter(nil, logger)

	first := NewStorage(root, consent.NewTrackingConsentProvider(model.ConsentPending, logger), batchfile.NewBatchFileReaderWriter(nil, logger), rw, logger)
	first.WriteUserInfo(&model.UserInfo{ID: "stale"})
	require.True(t, batchfile.Exists(filepath.Join(IntermediaryDir(root), UserInfoFileName)))

	NewStorage(root, consent.NewTrackingConsentProvider(model.ConsentGranted, logger), batchfile.NewBatchFileReaderWriter(nil, logger), rw, logger)

	assert.False(t, batchfile.Exists(IntermediaryDir(root)))
}

func TestStorage_WriteCrashLog(t *testing.T) {
	f := setupStorage(t, model.ConsentNotGranted)

	require.True(t, f.storage.WriteCrashLog(model.NdkCrashLog{Signal: 6, SignalName: "SIGABRT", Timestamp: 42}))

	var log model.NdkCrashLog
	require.NoError(t, json.Unmarshal(f.fileRW.ReadData(filepath.Join(GrantedDir(f.root), CrashLogFileName)), &log))
	assert.Equal(t, "SIGABRT", log.SignalName)
}
