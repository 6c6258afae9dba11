package services

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/repositories"
	"github.com/dmitrijs2005/altair/internal/timex"
)

const defaultContentType = "application/octet-stream"

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
)

// S3Config locates the attachment bucket. MinIO works with a base endpoint
// and static root credentials.
type S3Config struct {
	Region        string
	RootUser      string
	RootPassword  string
	BaseEndpoint  string
	Bucket        string
	PresignExpiry time.Duration
}

// PresignedUpload is handed to a client so it can PUT the bytes directly.
type PresignedUpload struct {
	AttachmentID common.ID
	Key          string
	URL          string
	ExpiresAt    time.Time
}

// AttachmentService issues presigned object-storage URLs for files captured
// with inbox items and records the attachment on the item.
type AttachmentService struct {
	store  repositories.Store
	clock  timex.Clock
	logger logging.Logger
	config S3Config
}

func NewAttachmentService(store repositories.Store, clock timex.Clock, logger logging.Logger, cfg S3Config) *AttachmentService {
	if cfg.PresignExpiry <= 0 {
		cfg.PresignExpiry = 15 * time.Minute
	}
	return &AttachmentService{store: store, clock: clock, logger: logger.With("module", "attachments"), config: cfg}
}

// AttachmentKey is the object key of an attachment. Keys are namespaced by
// owner so one user's ID can never address another's object.
func AttachmentKey(userID string, attachmentID common.ID) string {
	return fmt.Sprintf("users/%s/attachments/%s", userID, attachmentID)
}

func (s *AttachmentService) getPresignClient(ctx context.Context) (*s3.PresignClient, error) {
	cfg, err := loadDefaultAWSConfig(ctx,
		config.WithRegion(s.config.Region),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			s.config.RootUser,
			s.config.RootPassword,
			"",
		)))
	if err != nil {
		return nil, err
	}

	client := newS3ClientFromConfig(cfg, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(s.config.BaseEndpoint)
		o.UsePathStyle = true
	})

	return newS3PresignClient(client), nil
}

// PresignUpload allocates an attachment on the caller's inbox item and
// returns a PUT URL for it. The item must exist and belong to userID.
func (s *AttachmentService) PresignUpload(ctx context.Context, userID string, inboxItemID common.ID, contentType string) (*PresignedUpload, error) {
	if inboxItemID.IsZero() {
		return nil, common.Validation("inboxItemId", "must not be empty")
	}
	if _, err := s.store.Repos().Inbox.GetByID(ctx, userID, inboxItemID); err != nil {
		return nil, err
	}
	if contentType == "" {
		contentType = defaultContentType
	}

	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return nil, common.Storage("object storage config", err)
	}

	now := s.clock.Now()
	id := common.NewID()
	key := AttachmentKey(userID, id)
	bucket := s.config.Bucket

	req, err := presignPutObject(presignClient, ctx, &s3.PutObjectInput{
		Bucket:      &bucket,
		Key:         &key,
		ContentType: &contentType,
	}, s3.WithPresignExpires(s.config.PresignExpiry))
	if err != nil {
		return nil, common.Storage("presign upload", err)
	}

	if err := s.store.Repos().Inbox.AddAttachment(ctx, userID, inboxItemID, id, now); err != nil {
		return nil, err
	}

	s.logger.Debug(ctx, "attachment presigned", "user_id", userID, "inbox_item_id", inboxItemID, "attachment_id", id)
	return &PresignedUpload{AttachmentID: id, Key: key, URL: req.URL, ExpiresAt: now.Add(s.config.PresignExpiry)}, nil
}

// PresignDownload returns a GET URL for one of the caller's attachments.
func (s *AttachmentService) PresignDownload(ctx context.Context, userID string, attachmentID common.ID) (string, error) {
	if attachmentID.IsZero() {
		return "", common.Validation("attachmentId", "must not be empty")
	}
	presignClient, err := s.getPresignClient(ctx)
	if err != nil {
		return "", common.Storage("object storage config", err)
	}

	bucket := s.config.Bucket
	key := AttachmentKey(userID, attachmentID)

	req, err := presignGetObject(presignClient, ctx, &s3.GetObjectInput{
		Bucket: &bucket,
		Key:    &key,
	}, s3.WithPresignExpires(s.config.PresignExpiry))
	if err != nil {
		return "", common.Storage("presign download", err)
	}
	return req.URL, nil
}
