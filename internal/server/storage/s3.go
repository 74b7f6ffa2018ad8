package storage

import (
	"context"
	"fmt"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haulhq/driveronboard/internal/logging"
	sc "github.com/haulhq/driveronboard/internal/server/config"
	"github.com/haulhq/driveronboard/internal/server/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

const presignValidity = 15 * time.Minute

var (
	loadDefaultAWSConfig = config.LoadDefaultConfig

	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		return s3.NewFromConfig(cfg, optFns...)
	}

	newS3PresignClient = func(c *s3.Client) *s3.PresignClient {
		return s3.NewPresignClient(c)
	}

	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignPutObject(ctx, in, optFns...)
	}
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return pc.PresignGetObject(ctx, in, optFns...)
	}

	headObject = func(c *s3.Client, ctx context.Context, in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		return c.HeadObject(ctx, in)
	}
	copyObject = func(c *s3.Client, ctx context.Context, in *s3.CopyObjectInput) (*s3.CopyObjectOutput, error) {
		return c.CopyObject(ctx, in)
	}
	deleteObjects = func(c *s3.Client, ctx context.Context, in *s3.DeleteObjectsInput) (*s3.DeleteObjectsOutput, error) {
		return c.DeleteObjects(ctx, in)
	}
)

// S3Store implements ObjectStore on an S3-compatible backend (MinIO in
// development).
type S3Store struct {
	config *sc.Config
	logger logging.Logger
}

func NewS3Store(config *sc.Config, logger logging.Logger) *S3Store {
	return &S3Store{
		config: config,
		logger: logger.With("module", "s3_store"),
	}
}

// tempStorageKey allocates a key in the temp namespace. The date path keeps
// the staging area prunable by prefix.
func tempStorageKey() string {
	d := time.Now()
	return fmt.Sprintf("%s%d/%d/%d/%v", models.TempKeyPrefix, d.Year(), d.Month(), d.Day(), uuid.New())
}

func (s *S3Store) getClient() (*s3.Client, error) {
	cfg, err := loadDefaultAWSConfig(context.Background(),
		config.WithRegion(s.config.S3Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.S3RootUser,     // MINIO_ROOT_USER
			s.config.S3RootPassword, // MINIO_ROOT_PASSWORD
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.S3BaseEndpoint)
		o.UsePathStyle = true
	})

	return client, nil
}

func (s *S3Store) StagePutURL(ctx context.Context, mimeType string) (*models.FileAsset, error) {
	client, err := s.getClient()
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket
	key := tempStorageKey()

	req, err := presignPutObject(newS3PresignClient(client), ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &mimeType,
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return nil, err
	}

	return &models.FileAsset{Key: key, URL: req.URL, MimeType: mimeType}, nil
}

func (s *S3Store) Move(ctx context.Context, tempKey, destPrefix string) (*models.FileAsset, error) {
	if !strings.HasPrefix(tempKey, models.TempKeyPrefix) {
		return nil, fmt.Errorf("key %q is not in the temp namespace", tempKey)
	}

	client, err := s.getClient()
	if err != nil {
		return nil, err
	}

	bucket := s.config.S3Bucket

	head, err := headObject(client, ctx, &s3.HeadObjectInput{
		Bucket: &bucket,
		Key:    &tempKey,
	})
	if err != nil {
		return nil, fmt.Errorf("stat temp object: %w", err)
	}

	destKey := fmt.Sprintf("%s/%v%s", strings.TrimSuffix(destPrefix, "/"), uuid.New(), path.Ext(tempKey))

	_, err = copyObject(client, ctx, &s3.CopyObjectInput{
		Bucket:     &bucket,
		Key:        &destKey,
		CopySource: aws.String(url.PathEscape(bucket + "/" + tempKey)),
	})
	if err != nil {
		return nil, fmt.Errorf("copy to permanent key: %w", err)
	}

	// The staged original stays in place: callers that have to undo a batch
	// of moves fall back to it, and a retried Move finds it again. It is
	// garbage-collected once the owning record commit holds.

	return &models.FileAsset{
		Key:       destKey,
		MimeType:  aws.ToString(head.ContentType),
		SizeBytes: aws.ToInt64(head.ContentLength),
	}, nil
}

func (s *S3Store) Delete(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}

	client, err := s.getClient()
	if err != nil {
		return err
	}

	objects := make([]types.ObjectIdentifier, 0, len(keys))
	for i := range keys {
		objects = append(objects, types.ObjectIdentifier{Key: &keys[i]})
	}

	bucket := s.config.S3Bucket
	_, err = deleteObjects(client, ctx, &s3.DeleteObjectsInput{
		Bucket: &bucket,
		Delete: &types.Delete{Objects: objects, Quiet: aws.Bool(true)},
	})
	return err
}

func (s *S3Store) PresignGetURL(ctx context.Context, key string) (string, error) {
	client, err := s.getClient()
	if err != nil {
		return "", err
	}

	bucket := s.config.S3Bucket

	req, err := presignGetObject(newS3PresignClient(client), ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(presignValidity))
	if err != nil {
		return "", err
	}

	return req.URL, nil
}
