package artifact

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetadataMarkerRoundTrip(t *testing.T) {
	m := recordedMetadata()
	marker, err := m.Marker()
	require.NoError(t, err)
	assert.Regexp(t, `^mcporter:metadata:[A-Za-z0-9+/=]+:end$`, marker)

	got, err := DecodeMetadata([]byte("garbage before " + marker + " garbage after"))
	require.NoError(t, err)
	if diff := cmp.Diff(m, got); diff != "" {
		t.Errorf("DecodeMetadata() mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMetadataSkipsBrokenMarkers(t *testing.T) {
	marker, err := recordedMetadata().Marker()
	require.NoError(t, err)

	data := []byte(`strings.TrimPrefix(x, "mcporter:metadata:"), ":end")` + "\x00" + marker)
	got, err := DecodeMetadata(data)
	require.NoError(t, err)
	assert.Equal(t, "linear", got.Server.Name)
}

func TestDecodeMetadataErrors(t *testing.T) {
	_, err := DecodeMetadata([]byte("package main"))
	assert.ErrorIs(t, err, ErrNoMetadata)

	_, err = DecodeMetadata([]byte("mcporter:metadata:!!!:end"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid metadata encoding")

	// base64 of {}
	_, err = DecodeMetadata([]byte("mcporter:metadata:e30=:end"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "incomplete")
}

func TestReadMetadata(t *testing.T) {
	m := recordedMetadata()
	marker, err := m.Marker()
	require.NoError(t, err)
	dir := t.TempDir()

	source := filepath.Join(dir, "linear.go")
	require.NoError(t, os.WriteFile(source, []byte("package main\n\nconst metadataMarker = \""+marker+"\"\n"), 0o644))

	bundle := filepath.Join(dir, "linear-cli")
	require.NoError(t, os.MkdirAll(bundle, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(bundle, "main.go"), []byte(marker), 0o644))

	binary := filepath.Join(dir, "linear")
	blob := append([]byte{0x7f, 'E', 'L', 'F', 0, 1, 2}, []byte(marker)...)
	blob = append(blob, 0, 0, 0)
	require.NoError(t, os.WriteFile(binary, blob, 0o755))

	for _, path := range []string{source, bundle, binary} {
		t.Run(filepath.Base(path), func(t *testing.T) {
			got, err := ReadMetadata(path)
			require.NoError(t, err)
			assert.Equal(t, m.Invocation, got.Invocation)
			assert.Equal(t, "linear", got.Server.Name)
		})
	}
}

func TestReadMetadataErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadMetadata(filepath.Join(dir, "missing.go"))
	var metaErr *MetadataError
	require.ErrorAs(t, err, &metaErr)
	assert.True(t, os.IsNotExist(metaErr.Err))

	plain := filepath.Join(dir, "plain.go")
	require.NoError(t, os.WriteFile(plain, []byte("package main"), 0o644))
	_, err = ReadMetadata(plain)
	require.ErrorAs(t, err, &metaErr)
	assert.ErrorIs(t, err, ErrNoMetadata)
	assert.Contains(t, err.Error(), plain)

	_, err = ReadMetadata(dir)
	assert.ErrorAs(t, err, &metaErr, "a directory without main.go is not a bundle")
}
