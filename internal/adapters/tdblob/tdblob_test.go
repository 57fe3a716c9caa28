package tdblob

import (
	"archive/tar"
	"bytes"
	"encoding/base64"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	src := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(src, "database"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(src, "database", "td.binlog"), []byte("auth-key-bytes"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(src, "top.txt"), []byte(strings.Repeat("x", 4096)), 0o644))

	blob, err := Pack(src)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(blob, Prefix))

	dst := filepath.Join(t.TempDir(), "restored")
	require.NoError(t, Unpack(blob, dst))

	got, err := os.ReadFile(filepath.Join(dst, "database", "td.binlog"))
	require.NoError(t, err)
	assert.Equal(t, "auth-key-bytes", string(got))

	got, err = os.ReadFile(filepath.Join(dst, "top.txt"))
	require.NoError(t, err)
	assert.Len(t, got, 4096)
}

func TestUnpackRejectsGarbage(t *testing.T) {
	dst := t.TempDir()
	assert.ErrorIs(t, Unpack("1BQANmFjY2Vzc19oYXNo", dst), ErrBadBlob)
	assert.ErrorIs(t, Unpack(Prefix+"!!!", dst), ErrBadBlob)
}

func TestUnpackRejectsPathTraversal(t *testing.T) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	require.NoError(t, err)
	tw := tar.NewWriter(enc)
	require.NoError(t, tw.WriteHeader(&tar.Header{Name: "../evil", Mode: 0o600, Size: 1, Typeflag: tar.TypeReg}))
	_, err = tw.Write([]byte("x"))
	require.NoError(t, err)
	require.NoError(t, tw.Close())
	require.NoError(t, enc.Close())

	blob := Prefix + base64.StdEncoding.EncodeToString(buf.Bytes())
	dst := filepath.Join(t.TempDir(), "inner")
	assert.ErrorIs(t, Unpack(blob, dst), ErrBadBlob)
	_, statErr := os.Stat(filepath.Join(filepath.Dir(dst), "evil"))
	assert.True(t, os.IsNotExist(statErr))
}
