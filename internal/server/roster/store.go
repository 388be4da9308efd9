package roster

import (
	"bytes"
	"context"
	"errors"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/rollkeeper/internal/common"
	"github.com/dmitrijs2005/rollkeeper/internal/filex"
	"github.com/dmitrijs2005/rollkeeper/internal/server/blob"
)

// Store keeps one encoded artifact per subject. Put replaces the artifact
// atomically: readers see the old bytes or the new ones.
type Store interface {
	// Get returns common.ErrNotFound when the subject has no artifact.
	Get(ctx context.Context, subjectID string) ([]byte, error)
	Put(ctx context.Context, subjectID string, data []byte) error
	// Delete removes the artifact. A missing artifact is not an error.
	Delete(ctx context.Context, subjectID string) error
}

func objectName(subjectID string) string {
	return url.PathEscape(subjectID) + ".json"
}

// FileStore writes artifacts below a directory.
type FileStore struct {
	dir string
}

// NewFileStore creates dir if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := filex.EnsureDir(dir); err != nil {
		return nil, err
	}
	return &FileStore{dir: dir}, nil
}

func (s *FileStore) path(subjectID string) string {
	return filepath.Join(s.dir, objectName(subjectID))
}

func (s *FileStore) Get(_ context.Context, subjectID string) ([]byte, error) {
	b, err := os.ReadFile(s.path(subjectID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, common.ErrNotFound
	}
	return b, err
}

func (s *FileStore) Put(_ context.Context, subjectID string, data []byte) error {
	return filex.WriteFileAtomic(s.path(subjectID), data, 0o640)
}

func (s *FileStore) Delete(_ context.Context, subjectID string) error {
	if err := os.Remove(s.path(subjectID)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// S3Store keeps artifacts as objects. A single PutObject replaces the
// object atomically.
type S3Store struct {
	api    blob.ObjectAPI
	bucket string
	prefix string
}

// NewS3Store stores artifacts under prefix in bucket.
func NewS3Store(api blob.ObjectAPI, bucket, prefix string) *S3Store {
	return &S3Store{api: api, bucket: bucket, prefix: prefix}
}

func (s *S3Store) key(subjectID string) string {
	return s.prefix + "/" + objectName(subjectID)
}

func (s *S3Store) Get(ctx context.Context, subjectID string) ([]byte, error) {
	return blob.GetObjectBytes(ctx, s.api, s.bucket, s.key(subjectID))
}

func (s *S3Store) Put(ctx context.Context, subjectID string, data []byte) error {
	_, err := s.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(s.key(subjectID)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	})
	return err
}

func (s *S3Store) Delete(ctx context.Context, subjectID string) error {
	_, err := s.api.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(subjectID)),
	})
	return err
}
