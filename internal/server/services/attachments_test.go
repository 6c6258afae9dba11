package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/altair/internal/common"
	"github.com/dmitrijs2005/altair/internal/logging"
	"github.com/dmitrijs2005/altair/internal/models"
	"github.com/dmitrijs2005/altair/internal/repositories/sqlite"
	"github.com/dmitrijs2005/altair/internal/repositories/storetest"
	"github.com/dmitrijs2005/altair/internal/testutil"
)

func newAttachmentService(t *testing.T) (*AttachmentService, *sqlite.Store, *models.InboxItem) {
	t.Helper()
	s, err := sqlite.Open(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	item := storetest.NewInbox("u1", "receipt photo")
	require.NoError(t, s.Repos().Inbox.Create(context.Background(), item))

	svc := NewAttachmentService(s, testutil.FixedClock(), logging.Nop(), S3Config{
		Region:       "us-east-1",
		RootUser:     "minioadmin",
		RootPassword: "minioadmin",
		BaseEndpoint: "http://127.0.0.1:9000",
		Bucket:       "altair",
	})
	return svc, s, item
}

func stubPresign(t *testing.T) {
	t.Helper()
	origLoad, origPut, origGet := loadDefaultAWSConfig, presignPutObject, presignGetObject
	t.Cleanup(func() {
		loadDefaultAWSConfig, presignPutObject, presignGetObject = origLoad, origPut, origGet
	})
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{Region: "us-east-1"}, nil
	}
}

func TestAttachmentKey(t *testing.T) {
	assert.Equal(t, "users/u1/attachments/abc", AttachmentKey("u1", "abc"))
}

func TestPresignUpload_RecordsAttachment(t *testing.T) {
	svc, store, item := newAttachmentService(t)
	stubPresign(t)

	var gotKey, gotType string
	var gotExpiry time.Duration
	presignPutObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		gotKey, gotType = *in.Key, *in.ContentType
		var o s3.PresignOptions
		for _, fn := range optFns {
			fn(&o)
		}
		gotExpiry = o.Expires
		return &v4.PresignedHTTPRequest{URL: "http://s3/put/" + *in.Key}, nil
	}

	up, err := svc.PresignUpload(context.Background(), "u1", item.ID, "")
	require.NoError(t, err)

	assert.Equal(t, AttachmentKey("u1", up.AttachmentID), gotKey)
	assert.Equal(t, defaultContentType, gotType)
	assert.Equal(t, 15*time.Minute, gotExpiry)
	assert.Equal(t, "http://s3/put/"+gotKey, up.URL)
	assert.Equal(t, testutil.FixedClock().Now().Add(15*time.Minute), up.ExpiresAt)

	got, err := store.Repos().Inbox.GetByID(context.Background(), "u1", item.ID)
	require.NoError(t, err)
	assert.Equal(t, []common.ID{up.AttachmentID}, got.AttachmentIDs)
}

func TestPresignUpload_OtherUsersItem(t *testing.T) {
	svc, _, item := newAttachmentService(t)
	stubPresign(t)

	_, err := svc.PresignUpload(context.Background(), "u2", item.ID, "image/png")
	assert.ErrorIs(t, err, common.ErrNotFound)

	_, err = svc.PresignUpload(context.Background(), "u1", "", "image/png")
	assert.ErrorIs(t, err, common.ErrValidation)
}

func TestPresignUpload_ConfigErrorLeavesItemUntouched(t *testing.T) {
	svc, store, item := newAttachmentService(t)
	stubPresign(t)
	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		return aws.Config{}, errors.New("load-fail")
	}

	_, err := svc.PresignUpload(context.Background(), "u1", item.ID, "image/png")
	assert.ErrorIs(t, err, common.ErrStorage)

	got, err := store.Repos().Inbox.GetByID(context.Background(), "u1", item.ID)
	require.NoError(t, err)
	assert.Empty(t, got.AttachmentIDs)
}

func TestPresignDownload(t *testing.T) {
	svc, _, _ := newAttachmentService(t)
	stubPresign(t)
	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return &v4.PresignedHTTPRequest{URL: "http://s3/get/" + *in.Key}, nil
	}

	url, err := svc.PresignDownload(context.Background(), "u1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "http://s3/get/users/u1/attachments/a1", url)

	presignGetObject = func(pc *s3.PresignClient, ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
		return nil, errors.New("sign-fail")
	}
	_, err = svc.PresignDownload(context.Background(), "u1", "a1")
	assert.ErrorIs(t, err, common.ErrStorage)
}

func Test_getPresignClient_AppliesEndpoint(t *testing.T) {
	svc, _, _ := newAttachmentService(t)

	origLoad, origNewS3 := loadDefaultAWSConfig, newS3ClientFromConfig
	t.Cleanup(func() { loadDefaultAWSConfig, newS3ClientFromConfig = origLoad, origNewS3 })

	loadDefaultAWSConfig = func(ctx context.Context, optFns ...func(*awsconfig.LoadOptions) error) (aws.Config, error) {
		var lo awsconfig.LoadOptions
		for _, fn := range optFns {
			if err := fn(&lo); err != nil {
				t.Fatalf("load options fn error: %v", err)
			}
		}
		if lo.Region != "us-east-1" {
			t.Fatalf("region not applied: %q", lo.Region)
		}
		return aws.Config{}, nil
	}
	var opts s3.Options
	newS3ClientFromConfig = func(cfg aws.Config, optFns ...func(*s3.Options)) *s3.Client {
		for _, fn := range optFns {
			fn(&opts)
		}
		return &s3.Client{}
	}

	pc, err := svc.getPresignClient(context.Background())
	require.NoError(t, err)
	require.NotNil(t, pc)
	require.NotNil(t, opts.BaseEndpoint)
	assert.Equal(t, "http://127.0.0.1:9000", *opts.BaseEndpoint)
	assert.True(t, opts.UsePathStyle)
}
