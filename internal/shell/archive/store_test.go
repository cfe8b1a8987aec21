package archive

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleBlueprint = `tosca_definitions_version: cloudify_dsl_1_3
inputs:
  region:
    default: eu-west
  flavor: {}
  image_id:
    description: base image
node_templates:
  vm:
    type: cloudify.nodes.Compute
`

func setupTestStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	return s
}

func tarGz(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)
	for name, body := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name:     name,
			Mode:     0o644,
			Size:     int64(len(body)),
			Typeflag: tar.TypeReg,
		}))
		_, err := tw.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())
	require.NoError(t, gz.Close())
	return buf.Bytes()
}

func TestFileStore_PutOpenDelete(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.Put("bp-1", strings.NewReader("payload")))

	rc, err := s.Open("bp-1")
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))

	require.NoError(t, s.Put("bp-1", strings.NewReader("replaced")))
	rc, err = s.Open("bp-1")
	require.NoError(t, err)
	data, _ = io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "replaced", string(data))

	require.NoError(t, s.Delete("bp-1"))
	_, err = s.Open("bp-1")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.NoError(t, s.Delete("bp-1"))
}

func TestFileStore_PathStaysInRoot(t *testing.T) {
	s := setupTestStore(t)

	require.NoError(t, s.Put("../../escape", strings.NewReader("x")))
	assert.True(t, strings.HasPrefix(s.path("../../escape"), s.root))
}

func TestDeclaredInputs_PlainYAML(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Put("bp-1", strings.NewReader(sampleBlueprint)))

	names, err := s.DeclaredInputs("bp-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"flavor", "image_id", "region"}, names)
}

func TestDeclaredInputs_TarGz(t *testing.T) {
	s := setupTestStore(t)
	archive := tarGz(t, map[string]string{
		"app/README.md":       "docs",
		"app/types/extra.yml": "inputs:\n  ignored: {}\n",
		"app/blueprint.yaml":  sampleBlueprint,
	})
	require.NoError(t, s.Put("bp-2", bytes.NewReader(archive)))

	names, err := s.DeclaredInputs("bp-2")
	require.NoError(t, err)
	assert.Equal(t, []string{"flavor", "image_id", "region"}, names)
}

func TestDeclaredInputs_TarGzFallbackDocument(t *testing.T) {
	s := setupTestStore(t)
	archive := tarGz(t, map[string]string{
		"app/main.yaml": "inputs:\n  only: {}\n",
	})
	require.NoError(t, s.Put("bp-3", bytes.NewReader(archive)))

	names, err := s.DeclaredInputs("bp-3")
	require.NoError(t, err)
	assert.Equal(t, []string{"only"}, names)
}

func TestDeclaredInputs_NoInputs(t *testing.T) {
	s := setupTestStore(t)
	require.NoError(t, s.Put("bp-4", strings.NewReader("node_templates: {}\n")))

	names, err := s.DeclaredInputs("bp-4")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestDeclaredInputs_Errors(t *testing.T) {
	s := setupTestStore(t)

	_, err := s.DeclaredInputs("missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Put("bad", strings.NewReader("inputs: [unclosed")))
	_, err = s.DeclaredInputs("bad")
	assert.Error(t, err)

	require.NoError(t, s.Put("empty-tar", bytes.NewReader(tarGz(t, map[string]string{"notes.txt": "hi"}))))
	_, err = s.DeclaredInputs("empty-tar")
	assert.Error(t, err)
}
