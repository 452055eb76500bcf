// Package minio archives completed result bundles to object storage so
// finished sessions survive database retention and can be exported.
package minio

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/stratlens/stratlens/internal/config"
	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// objectAPI is the subset of *minio.Client the archiver uses.
type objectAPI interface {
	BucketExists(ctx context.Context, bucketName string) (bool, error)
	MakeBucket(ctx context.Context, bucketName string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	GetObject(ctx context.Context, bucketName, objectName string, opts minio.GetObjectOptions) (*minio.Object, error)
}

// SessionArchive is the stored object shape.
type SessionArchive struct {
	SessionID  common.SessionID        `json:"session_id"`
	Topic      string                  `json:"topic"`
	ArchivedAt time.Time               `json:"archived_at"`
	Segments   []results.SegmentBundle `json:"segments"`
}

// Archiver writes completed session bundles as JSON objects.
type Archiver struct {
	client objectAPI
	bucket string
	logger logging.Logger
	now    func() time.Time
}

// NewArchiver connects to the configured endpoint and makes sure the
// archive bucket exists.
func NewArchiver(cfg config.MinIOConfig, log logging.Logger) (*Archiver, error) {
	if cfg.Endpoint == "" {
		return nil, errors.NewValidation("minio: endpoint must not be empty")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "failed to create minio client")
	}

	a := NewArchiverWithClient(client, cfg.Bucket, log)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

// NewArchiverWithClient wraps an existing client (for testing).
func NewArchiverWithClient(client objectAPI, bucket string, log logging.Logger) *Archiver {
	if log == nil {
		log = logging.Default()
	}
	if bucket == "" {
		bucket = config.DefaultMinIOBucket
	}
	return &Archiver{
		client: client,
		bucket: bucket,
		logger: log.Named("bundle_archiver"),
		now:    time.Now,
	}
}

// ArchiveSession stores the full bundle set of one completed session.
// Rearchiving overwrites the previous object.
func (a *Archiver) ArchiveSession(ctx context.Context, sessionID common.SessionID, topic string, bundles []results.SegmentBundle) error {
	if sessionID == "" {
		return errors.NewValidation("minio: session id must not be empty")
	}
	envelope := SessionArchive{
		SessionID:  sessionID,
		Topic:      topic,
		ArchivedAt: a.now().UTC(),
		Segments:   bundles,
	}
	data, err := json.Marshal(envelope)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal archive envelope")
	}

	key := ObjectKey(sessionID)
	info, err := a.client.PutObject(ctx, a.bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to archive session bundle")
	}

	a.logger.Info("archived session bundle",
		logging.String("session_id", string(sessionID)),
		logging.String("object_key", key),
		logging.Int64("bytes", info.Size),
	)
	return nil
}

// FetchArchive reads a previously archived session back, mostly for the
// export CLI.
func (a *Archiver) FetchArchive(ctx context.Context, sessionID common.SessionID) (*SessionArchive, error) {
	if sessionID == "" {
		return nil, errors.NewValidation("minio: session id must not be empty")
	}
	obj, err := a.client.GetObject(ctx, a.bucket, ObjectKey(sessionID), minio.GetObjectOptions{})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "failed to fetch session archive")
	}
	defer obj.Close()

	var envelope SessionArchive
	if err := json.NewDecoder(obj).Decode(&envelope); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode session archive")
	}
	return &envelope, nil
}

// ObjectKey is the canonical archive key for a session.
func ObjectKey(sessionID common.SessionID) string {
	return fmt.Sprintf("%s/bundle.json", sessionID)
}

func (a *Archiver) ensureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.bucket)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to check archive bucket")
	}
	if exists {
		return nil
	}
	if err := a.client.MakeBucket(ctx, a.bucket, minio.MakeBucketOptions{}); err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "failed to create archive bucket")
	}
	a.logger.Info("created archive bucket", logging.String("bucket", a.bucket))
	return nil
}
