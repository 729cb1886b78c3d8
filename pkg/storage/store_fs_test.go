package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Name string `json:"name"`
	Rate int    `json:"rate"`
}

func TestFsClientLifecycle(t *testing.T) {
	fc, err := NewFsClient(t.TempDir(), Devices)
	require.NoError(t, err)

	key := filepath.Join(Devices, "press.json")
	require.NoError(t, fc.Create(key, &doc{Name: "press", Rate: 1}))
	assert.Error(t, fc.Create(key, &doc{Name: "press"}), "create must not overwrite")

	require.NoError(t, fc.Update(key, &doc{Name: "press", Rate: 5}))
	data, err := fc.Get(key)
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"press","rate":5}`, string(data))

	files, err := fc.List(Devices)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "press.json", filepath.Base(files[0].Path))

	require.NoError(t, fc.Delete(key))
	assert.ErrorIs(t, fc.Delete(key), os.ErrNotExist)
	assert.ErrorIs(t, fc.Update(key, &doc{}), os.ErrNotExist)
}
