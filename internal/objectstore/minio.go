package objectstore

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/elevateforhumanity/cima-importer/internal/config"
)

// Store wraps the batch-file bucket. Inbound provider exports land under the
// inbound prefix; after a successful import the file moves to the imported
// prefix tagged with a processing timestamp, so nothing is deleted outright
// and the next listing no longer sees it.
type Store struct {
	client         *minio.Client
	bucket         string
	inboundPrefix  string
	importedPrefix string
}

func New(cfg config.ObjectStoreConfig) (*Store, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create object store client: %w", err)
	}

	return &Store{
		client:         client,
		bucket:         cfg.Bucket,
		inboundPrefix:  cfg.InboundPrefix,
		importedPrefix: cfg.ImportedPrefix,
	}, nil
}

// ListInbound returns the keys of unprocessed CSV batch files.
func (s *Store) ListInbound(ctx context.Context) ([]string, error) {
	var keys []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    s.inboundPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if strings.HasSuffix(obj.Key, ".csv") {
			keys = append(keys, obj.Key)
		}
	}
	return keys, nil
}

// Fetch reads the contents of a batch file.
func (s *Store) Fetch(ctx context.Context, key string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	return io.ReadAll(obj)
}

// Archive moves a processed file to the imported prefix, appending the
// processing timestamp to its name, then removes the inbound copy.
func (s *Store) Archive(ctx context.Context, key string) error {
	name := key
	if idx := strings.LastIndex(name, "/"); idx >= 0 {
		name = name[idx+1:]
	}
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05Z")
	archived := s.importedPrefix + strings.TrimSuffix(name, ".csv") + "_" + stamp + ".csv"

	_, err := s.client.CopyObject(ctx,
		minio.CopyDestOptions{Bucket: s.bucket, Object: archived},
		minio.CopySrcOptions{Bucket: s.bucket, Object: key},
	)
	if err != nil {
		return fmt.Errorf("failed to archive %s: %w", key, err)
	}

	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove inbound copy of %s: %w", key, err)
	}
	return nil
}
