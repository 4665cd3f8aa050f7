package apk

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeAPK(t *testing.T, entries map[string]string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "app.apk")
	f, err := os.Create(p)
	require.NoError(t, err)
	zw := zip.NewWriter(f)
	for name, body := range entries {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	require.NoError(t, f.Close())
	return p
}

func TestOpenIndexesEntries(t *testing.T) {
	p := writeAPK(t, map[string]string{
		"AndroidManifest.xml":            "<manifest/>",
		"classes10.dex":                  "ten",
		"classes2.dex":                   "two",
		"classes.dex":                    "one",
		"assets/classes.dex":             "not a root dex",
		"lib/arm64-v8a/libnative.so":     "arm64",
		"lib/armeabi-v7a/libnative.so":   "arm",
		"lib/arm64-v8a/libc++_shared.so": "stl",
		"lib/arm64-v8a/sub/libdeep.so":   "nested",
		"res/raw/data.so":                "not a lib",
	})
	a, err := Open(p)
	require.NoError(t, err)
	defer a.Close()

	assert.Equal(t, []string{"classes.dex", "classes2.dex", "classes10.dex"}, a.DexFiles())
	assert.Len(t, a.Libs(""), 3)
	assert.Equal(t, []string{"arm64-v8a", "armeabi-v7a"}, a.ABIs())

	arm64 := a.Libs("arm64-v8a")
	require.Len(t, arm64, 2)
	assert.Equal(t, "libc++_shared.so", arm64[0].Base)
	assert.Equal(t, "libnative.so", arm64[1].Base)
	assert.Equal(t, uint64(5), arm64[1].Size)

	data, err := a.Read("classes2.dex")
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))

	data, err = a.Read("lib/armeabi-v7a/libnative.so")
	require.NoError(t, err)
	assert.Equal(t, "arm", string(data))
}

func TestReadMissing(t *testing.T) {
	a, err := Open(writeAPK(t, map[string]string{"classes.dex": "x"}))
	require.NoError(t, err)
	defer a.Close()

	_, err = a.Read("AndroidManifest.xml")
	assert.ErrorIs(t, err, ErrNoEntry)
	assert.Empty(t, a.Libs(""))
}

func TestOpenNotZip(t *testing.T) {
	p := filepath.Join(t.TempDir(), "bad.apk")
	require.NoError(t, os.WriteFile(p, []byte("dex\n035\x00"), 0644))
	_, err := Open(p)
	assert.Error(t, err)
}
