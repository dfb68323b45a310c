package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
	"github.com/ikkim/storefront-backend/config"
	apperrors "github.com/ikkim/storefront-backend/internal/errors"
)

const (
	ReturnPhotoFolder  = "returns"
	presignExpiry      = 15 * time.Minute
	MaxReturnPhotoSize = 10 << 20
)

var returnPhotoTypes = []string{"image/jpeg", "image/png", "image/webp", "image/heic"}

type S3Storage struct {
	client  *s3.Client
	bucket  string
	baseURL string
	region  string
}

type PresignedURLResponse struct {
	UploadURL string    `json:"upload_url"`
	FileURL   string    `json:"file_url"`
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

func NewS3Storage(ctx context.Context, cfg config.S3Config) *S3Storage {
	var awsCfg aws.Config
	var err error

	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		awsCfg = aws.Config{
			Region:      cfg.Region,
			Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		}
	} else {
		// environment, shared config or instance role
		awsCfg, err = awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
		if err != nil {
			awsCfg = aws.Config{Region: cfg.Region}
		}
	}

	return &S3Storage{
		client:  s3.NewFromConfig(awsCfg),
		bucket:  cfg.Bucket,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		region:  cfg.Region,
	}
}

// PresignReturnPhoto issues a short-lived PUT URL for one return photo.
func (s *S3Storage) PresignReturnPhoto(ctx context.Context, filename, contentType string, size int64) (*PresignedURLResponse, error) {
	if err := ValidateContentType(contentType, returnPhotoTypes); err != nil {
		return nil, err
	}
	if err := ValidateFileSize(size, MaxReturnPhotoSize); err != nil {
		return nil, err
	}
	return s.presignPut(ctx, filename, contentType, ReturnPhotoFolder)
}

func (s *S3Storage) presignPut(ctx context.Context, filename, contentType, folder string) (*PresignedURLResponse, error) {
	key := fmt.Sprintf("%s/%s%s", folder, uuid.New().String(), strings.ToLower(filepath.Ext(filename)))

	presignClient := s3.NewPresignClient(s.client)
	req, err := presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	}, s3.WithPresignExpires(presignExpiry))
	if err != nil {
		return nil, fmt.Errorf("failed to generate presigned URL: %w", err)
	}

	return &PresignedURLResponse{
		UploadURL: req.URL,
		FileURL:   s.FileURL(key),
		Key:       key,
		ExpiresAt: time.Now().Add(presignExpiry),
	}, nil
}

// FileURL is the public URL for key, through the CDN when one is configured.
func (s *S3Storage) FileURL(key string) string {
	if s.baseURL != "" {
		return fmt.Sprintf("%s/%s", s.baseURL, key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.bucket, s.region, key)
}

func ValidateFileSize(size int64, maxSize int64) error {
	if size <= 0 {
		return fmt.Errorf("%w: file size is required", apperrors.ErrValidation)
	}
	if size > maxSize {
		return fmt.Errorf("%w: file size exceeds maximum allowed size of %d bytes", apperrors.ErrValidation, maxSize)
	}
	return nil
}

func ValidateContentType(contentType string, allowedTypes []string) error {
	for _, allowed := range allowedTypes {
		if strings.EqualFold(contentType, allowed) {
			return nil
		}
	}
	return fmt.Errorf("%w: content type %s is not allowed", apperrors.ErrValidation, contentType)
}
