package archive

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDirArchiver(t *testing.T) {
	data := t.TempDir()
	processed := t.TempDir()
	src := filepath.Join(data, "ION_1_2014-01-01_2014-01-02.csv")
	require.NoError(t, os.WriteFile(src, []byte("h\n"), 0o600))

	a, err := NewDirArchiver(processed)
	require.NoError(t, err)

	dest, err := a.Archive(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(processed, "ION_1_2014-01-01_2014-01-02.csv"), dest)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	b, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, "h\n", string(b))
}

func TestNewDirArchiverRequiresDirectory(t *testing.T) {
	_, err := NewDirArchiver(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)

	file := filepath.Join(t.TempDir(), "f")
	require.NoError(t, os.WriteFile(file, nil, 0o600))
	_, err = NewDirArchiver(file)
	assert.ErrorContains(t, err, "not a directory")
}

func TestCopyAndRemove(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "a.csv")
	dest := filepath.Join(dir, "b.csv")
	require.NoError(t, os.WriteFile(src, []byte("x"), 0o600))

	require.NoError(t, copyAndRemove(src, dest))
	_, err := os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	b, _ := os.ReadFile(dest)
	assert.Equal(t, "x", string(b))
}

type fakeUploader struct {
	key  string
	body string
	err  error
}

func (f *fakeUploader) UploadDataFile(_ context.Context, key string, body io.Reader) error {
	f.key = key
	b, _ := io.ReadAll(body)
	f.body = string(b)
	return f.err
}

func (f *fakeUploader) Bucket() string { return "energy-processed-files" }

func TestS3Archiver(t *testing.T) {
	src := filepath.Join(t.TempDir(), "JCI_9_2014-01-01_2014-01-02.csv")
	require.NoError(t, os.WriteFile(src, []byte("body"), 0o600))

	up := &fakeUploader{}
	dest, err := NewS3Archiver(up, "processed").Archive(context.Background(), src)
	require.NoError(t, err)
	assert.Equal(t, "s3://energy-processed-files/processed/JCI_9_2014-01-01_2014-01-02.csv", dest)
	assert.Equal(t, "processed/JCI_9_2014-01-01_2014-01-02.csv", up.key)
	assert.Equal(t, "body", up.body)

	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
}

func TestS3ArchiverKeepsFileOnUploadFailure(t *testing.T) {
	src := filepath.Join(t.TempDir(), "a.csv")
	require.NoError(t, os.WriteFile(src, []byte("body"), 0o600))

	_, err := NewS3Archiver(&fakeUploader{err: errors.New("denied")}, "processed").Archive(context.Background(), src)
	assert.ErrorContains(t, err, "denied")
	_, err = os.Stat(src)
	assert.NoError(t, err)
}
