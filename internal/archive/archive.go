// Package archive moves successfully loaded extraction files out of the
// data directory.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"syscall"
)

type Archiver interface {
	// Archive relocates the file and returns where it went.
	Archive(ctx context.Context, path string) (string, error)
}

// DirArchiver moves files into a processed directory on local disk.
type DirArchiver struct {
	dir string
}

// NewDirArchiver requires dir to exist already.
func NewDirArchiver(dir string) (*DirArchiver, error) {
	fi, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("processed directory: %w", err)
	}
	if !fi.IsDir() {
		return nil, fmt.Errorf("processed directory %s is not a directory", dir)
	}
	return &DirArchiver{dir: dir}, nil
}

func (a *DirArchiver) Dir() string { return a.dir }

func (a *DirArchiver) Archive(_ context.Context, src string) (string, error) {
	dest := filepath.Join(a.dir, filepath.Base(src))
	err := os.Rename(src, dest)
	if errors.Is(err, syscall.EXDEV) {
		err = copyAndRemove(src, dest)
	}
	if err != nil {
		return "", fmt.Errorf("failed to archive %s: %w", filepath.Base(src), err)
	}
	return dest, nil
}

func copyAndRemove(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Remove(src)
}

// Uploader is satisfied by *cloud.S3Client.
type Uploader interface {
	UploadDataFile(ctx context.Context, key string, body io.Reader) error
	Bucket() string
}

// S3Archiver uploads files under a key prefix, then deletes the local copy.
type S3Archiver struct {
	client Uploader
	prefix string
}

func NewS3Archiver(client Uploader, prefix string) *S3Archiver {
	return &S3Archiver{client: client, prefix: prefix}
}

func (a *S3Archiver) Archive(ctx context.Context, src string) (string, error) {
	key := path.Join(a.prefix, filepath.Base(src))

	f, err := os.Open(src)
	if err != nil {
		return "", err
	}
	err = a.client.UploadDataFile(ctx, key, f)
	f.Close()
	if err != nil {
		return "", err
	}
	if err := os.Remove(src); err != nil {
		return "", fmt.Errorf("uploaded %s but could not remove it: %w", key, err)
	}
	return fmt.Sprintf("s3://%s/%s", a.client.Bucket(), key), nil
}
