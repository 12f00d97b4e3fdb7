// Package filestore stores fulfillment proof files. The core keeps only the
// returned ref; bytes live in the backing store.
package filestore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"sync"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// ErrNotFound is returned when a ref does not resolve to a stored file.
var ErrNotFound = errors.New("file not found")

// Store persists proof files and hands back an opaque ref.
type Store interface {
	Put(ctx context.Context, r io.Reader, filename, contentType string) (string, error)
	Get(ctx context.Context, ref string) (io.ReadCloser, string, error)
}

// S3Store keeps proofs in an S3 bucket under an optional key prefix.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
}

// S3Config configures the S3-backed store.
type S3Config struct {
	Region string
	Bucket string
	Prefix string
}

// NewS3 builds an S3Store using the default AWS credential chain.
func NewS3(ctx context.Context, cfg S3Config) (*S3Store, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, err
	}
	return &S3Store{
		client: s3.NewFromConfig(awsCfg),
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

func (s *S3Store) Put(ctx context.Context, r io.Reader, filename, contentType string) (string, error) {
	ext := strings.ToLower(filepath.Ext(filename))
	key := uuid.NewString() + ext
	if s.prefix != "" {
		key = s.prefix + "/" + key
	}

	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      &s.bucket,
		Key:         &key,
		Body:        r,
		ContentType: &contentType,
	})
	if err != nil {
		return "", err
	}
	return key, nil
}

func (s *S3Store) Get(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: &s.bucket,
		Key:    &ref,
	})
	if err != nil {
		return nil, "", err
	}
	contentType := ""
	if out.ContentType != nil {
		contentType = *out.ContentType
	}
	return out.Body, contentType, nil
}

// Memory keeps files in process memory; used in tests and local setups.
type Memory struct {
	mu    sync.Mutex
	files map[string]memoryFile
}

type memoryFile struct {
	data        []byte
	contentType string
}

func NewMemory() *Memory {
	return &Memory{files: make(map[string]memoryFile)}
}

func (m *Memory) Put(_ context.Context, r io.Reader, filename, contentType string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", err
	}
	ref := uuid.NewString() + strings.ToLower(filepath.Ext(filename))
	m.mu.Lock()
	m.files[ref] = memoryFile{data: data, contentType: contentType}
	m.mu.Unlock()
	return ref, nil
}

func (m *Memory) Get(_ context.Context, ref string) (io.ReadCloser, string, error) {
	m.mu.Lock()
	f, ok := m.files[ref]
	m.mu.Unlock()
	if !ok {
		return nil, "", ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(f.data)), f.contentType, nil
}
