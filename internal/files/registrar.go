// Package files persists produced export artifacts and hands back stable
// references. The object bytes live in MinIO; a metadata row keeps the
// display name and remark the back office shows next to the download link.
package files

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/minio/minio-go/v7"
)

// ErrEmptyPayload rejects zero-byte artifacts. An empty export file is a
// pipeline defect and must never be silently stored.
var ErrEmptyPayload = errors.New("files: refusing to register empty payload")

// ErrFileNotFound indicates an unknown file reference.
var ErrFileNotFound = errors.New("files: file not found")

// StoredFile is the stable reference returned after registration.
type StoredFile struct {
	ID          uuid.UUID
	Bucket      string
	ObjectKey   string
	DisplayName string
	Remark      string
	ContentType string
	Size        int64
	CreatedAt   time.Time
}

// Registrar stores artifact bytes in MinIO and metadata in Postgres.
type Registrar struct {
	client *minio.Client
	bucket string
	pool   *pgxpool.Pool
}

// NewRegistrar constructs a Registrar.
func NewRegistrar(client *minio.Client, bucket string, pool *pgxpool.Pool) *Registrar {
	return &Registrar{client: client, bucket: bucket, pool: pool}
}

// EnsureBucket creates the artifact bucket when it does not exist yet.
func (r *Registrar) EnsureBucket(ctx context.Context) error {
	if r == nil || r.client == nil {
		return fmt.Errorf("files: registrar not initialised")
	}
	exists, err := r.client.BucketExists(ctx, r.bucket)
	if err != nil {
		return fmt.Errorf("files: check bucket: %w", err)
	}
	if exists {
		return nil
	}
	if err := r.client.MakeBucket(ctx, r.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("files: make bucket: %w", err)
	}
	return nil
}

// Register stores the payload and returns its reference.
func (r *Registrar) Register(ctx context.Context, displayName, remark, contentType string, payload []byte) (StoredFile, error) {
	if r == nil || r.client == nil || r.pool == nil {
		return StoredFile{}, fmt.Errorf("files: registrar not initialised")
	}
	if len(payload) == 0 {
		return StoredFile{}, ErrEmptyPayload
	}
	id := uuid.New()
	objectKey := fmt.Sprintf("exports/%s/%s", time.Now().UTC().Format("2006/01"), id.String())
	_, err := r.client.PutObject(ctx, r.bucket, objectKey, bytes.NewReader(payload), int64(len(payload)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return StoredFile{}, fmt.Errorf("files: put object: %w", err)
	}
	file := StoredFile{
		ID:          id,
		Bucket:      r.bucket,
		ObjectKey:   objectKey,
		DisplayName: displayName,
		Remark:      remark,
		ContentType: contentType,
		Size:        int64(len(payload)),
	}
	const insert = `INSERT INTO ledger_files (id, bucket, object_key, display_name, remark, content_type, size_bytes)
VALUES ($1,$2,$3,$4,$5,$6,$7)
RETURNING created_at`
	if err := r.pool.QueryRow(ctx, insert, file.ID, file.Bucket, file.ObjectKey, file.DisplayName, file.Remark, file.ContentType, file.Size).Scan(&file.CreatedAt); err != nil {
		return StoredFile{}, fmt.Errorf("files: insert metadata: %w", err)
	}
	return file, nil
}

// Get loads the metadata for a file reference.
func (r *Registrar) Get(ctx context.Context, id uuid.UUID) (StoredFile, error) {
	if r == nil || r.pool == nil {
		return StoredFile{}, fmt.Errorf("files: registrar not initialised")
	}
	const query = `SELECT id, bucket, object_key, display_name, COALESCE(remark,''), content_type, size_bytes, created_at
FROM ledger_files WHERE id = $1`
	var file StoredFile
	err := r.pool.QueryRow(ctx, query, id).
		Scan(&file.ID, &file.Bucket, &file.ObjectKey, &file.DisplayName, &file.Remark, &file.ContentType, &file.Size, &file.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return StoredFile{}, ErrFileNotFound
		}
		return StoredFile{}, err
	}
	return file, nil
}

// Open streams the stored artifact bytes.
func (r *Registrar) Open(ctx context.Context, id uuid.UUID) (io.ReadCloser, StoredFile, error) {
	file, err := r.Get(ctx, id)
	if err != nil {
		return nil, StoredFile{}, err
	}
	obj, err := r.client.GetObject(ctx, file.Bucket, file.ObjectKey, minio.GetObjectOptions{})
	if err != nil {
		return nil, StoredFile{}, fmt.Errorf("files: get object: %w", err)
	}
	return obj, file, nil
}
