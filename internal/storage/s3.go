// Package storage uploads agent artifacts to S3 (or an S3 compatible store).
package storage

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"net/url"
	"path"
	"strconv"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/minio/minio-go/v7/pkg/s3utils"

	"github.com/pyanoxyz/agent-generator/internal/apperror"
	"github.com/pyanoxyz/agent-generator/internal/config"
	"github.com/pyanoxyz/agent-generator/internal/metrics"
)

const awsEndpoint = "s3.amazonaws.com"

// S3Uploader stores character and knowledge artifacts under
// {owner}/{agentId}/... with the upload time and agent id as object metadata.
type S3Uploader struct {
	client *minio.Client
	bucket string
	// endpoint switches to path-style requests against an S3 compatible store
	endpoint string
	now      func() time.Time
}

// NewS3Uploader creates an uploader from storage configuration
func NewS3Uploader(cfg config.StorageConfig) (*S3Uploader, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("AWS_BUCKET_NAME is required")
	}
	if cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		return nil, fmt.Errorf("AWS_ACCESS_KEY_ID and AWS_SECRET_ACCESS_KEY are required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	host, secure, lookup := awsEndpoint, true, minio.BucketLookupDNS
	if cfg.Endpoint != "" {
		parsed, err := url.Parse(cfg.Endpoint)
		if err != nil || parsed.Host == "" {
			return nil, fmt.Errorf("invalid S3_ENDPOINT %q", cfg.Endpoint)
		}
		host, secure, lookup = parsed.Host, parsed.Scheme != "http", minio.BucketLookupPath
	}

	client, err := minio.New(host, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		Secure:       secure,
		Region:       region,
		BucketLookup: lookup,
		MaxRetries:   3,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create S3 client: %w", err)
	}

	return &S3Uploader{
		client:   client,
		bucket:   cfg.Bucket,
		endpoint: cfg.Endpoint,
		now:      time.Now,
	}, nil
}

// CharacterKey is the object key of an agent's character file
func CharacterKey(owner, agentID string) string {
	return path.Join(owner, agentID, "character.json")
}

// KnowledgeKey is the object key of one of an agent's knowledge files
func KnowledgeKey(owner, agentID, filename string) string {
	return path.Join(owner, agentID, "knowledge", path.Base(filename))
}

// UploadCharacter stores the raw character file and returns its URL
func (u *S3Uploader) UploadCharacter(ctx context.Context, owner, agentID string, data []byte, contentType string) (string, error) {
	key := CharacterKey(owner, agentID)
	if err := u.putObject(ctx, key, agentID, data, contentType); err != nil {
		metrics.RecordUpload("character", "error")
		return "", apperror.Wrap(apperror.StorageUploadFailed, err, "failed to upload character file")
	}
	metrics.RecordUpload("character", "success")
	log.Printf("☁️  [STORAGE] Uploaded character for agent %s (%d bytes)", agentID, len(data))
	return u.objectURL(key), nil
}

// UploadKnowledge stores a normalized knowledge file and returns its URL
func (u *S3Uploader) UploadKnowledge(ctx context.Context, owner, agentID string, data []byte, filename, contentType string) (string, error) {
	key := KnowledgeKey(owner, agentID, filename)
	if err := u.putObject(ctx, key, agentID, data, contentType); err != nil {
		metrics.RecordUpload("knowledge", "error")
		return "", apperror.Wrap(apperror.StorageUploadFailed, err, "failed to upload knowledge file %s", filename)
	}
	metrics.RecordUpload("knowledge", "success")
	log.Printf("☁️  [STORAGE] Uploaded knowledge %s for agent %s (%d bytes)", filename, agentID, len(data))
	return u.objectURL(key), nil
}

// CharacterURL returns the public URL of an agent's character file
func (u *S3Uploader) CharacterURL(owner, agentID string) string {
	return u.objectURL(CharacterKey(owner, agentID))
}

// KnowledgeURL returns the public URL of one of an agent's knowledge files
func (u *S3Uploader) KnowledgeURL(owner, agentID, filename string) string {
	return u.objectURL(KnowledgeKey(owner, agentID, filename))
}

func (u *S3Uploader) objectURL(key string) string {
	if u.endpoint != "" {
		return fmt.Sprintf("%s/%s/%s", u.endpoint, u.bucket, s3utils.EncodePath(key))
	}
	return fmt.Sprintf("https://%s.%s/%s", u.bucket, awsEndpoint, s3utils.EncodePath(key))
}

func (u *S3Uploader) putObject(ctx context.Context, key, agentID string, body []byte, contentType string) error {
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	_, err := u.client.PutObject(ctx, u.bucket, key, bytes.NewReader(body), int64(len(body)), minio.PutObjectOptions{
		ContentType: contentType,
		UserMetadata: map[string]string{
			"agent-id":  agentID,
			"timestamp": strconv.FormatInt(u.now().Unix(), 10),
		},
	})
	return err
}
