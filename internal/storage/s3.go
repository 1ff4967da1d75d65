// internal/storage/s3.go
package storage

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// Config locates the bucket and holds the document encryption key.
type Config struct {
	Bucket           string
	Region           string
	EndpointURL      string // MinIO or localstack
	EncryptionKeyHex string
}

type S3Service struct {
	client        *s3.Client
	uploader      *manager.Uploader
	downloader    *manager.Downloader
	bucket        string
	region        string
	encryptionKey []byte // 32-byte AES-256 key
}

type UploadResult struct {
	S3Key      string
	S3Bucket   string
	FileHash   string // SHA-256 hash of original file
	FileSize   int64
	MimeType   string
	UploadedAt time.Time
}

type DownloadResult struct {
	Data     []byte
	FileHash string
	FileSize int64
	MimeType string
}

// ParseEncryptionKey decodes a 64 hex character AES-256 key.
func ParseEncryptionKey(keyHex string) ([]byte, error) {
	if keyHex == "" {
		return nil, fmt.Errorf("DOCUMENT_ENCRYPTION_KEY is required (64 hex characters)")
	}
	key, err := hex.DecodeString(keyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid encryption key format: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("encryption key must be 32 bytes (64 hex characters)")
	}
	return key, nil
}

// NewS3Service creates a new S3 service instance with MinIO support
func NewS3Service(ctx context.Context, cfg Config) (*S3Service, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("AWS_S3_BUCKET is required")
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	encryptionKey, err := ParseEncryptionKey(cfg.EncryptionKeyHex)
	if err != nil {
		return nil, err
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.EndpointURL != "" {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true // MinIO requires path-style addressing
		}
	})

	return &S3Service{
		client:        client,
		uploader:      manager.NewUploader(client),
		downloader:    manager.NewDownloader(client),
		bucket:        cfg.Bucket,
		region:        region,
		encryptionKey: encryptionKey,
	}, nil
}

// SignedAgreementKey is the object key of an agreement's exported PDF.
func SignedAgreementKey(tenantID, agreementID string) string {
	return fmt.Sprintf("agreements/%s/%s-signed.pdf", tenantID, agreementID)
}

// UploadSignedAgreement encrypts and stores the exported PDF of a completed agreement.
func (s *S3Service) UploadSignedAgreement(ctx context.Context, data []byte, tenantID, agreementID string) (*UploadResult, error) {
	hash := sha256.Sum256(data)
	fileHash := hex.EncodeToString(hash[:])

	encryptedData, err := s.encryptData(data)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt document: %w", err)
	}

	s3Key := SignedAgreementKey(tenantID, agreementID)
	_, err = s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s3Key),
		Body:        bytes.NewReader(encryptedData),
		ContentType: aws.String("application/pdf"),
		Metadata: map[string]string{
			"tenant-id":     tenantID,
			"agreement-id":  agreementID,
			"document-hash": fileHash,
			"encrypted":     "true",
			"document-type": "signed",
		},
		ServerSideEncryption: types.ServerSideEncryptionAes256,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to upload signed agreement to S3: %w", err)
	}

	return &UploadResult{
		S3Key:      s3Key,
		S3Bucket:   s.bucket,
		FileHash:   fileHash,
		FileSize:   int64(len(data)),
		MimeType:   "application/pdf",
		UploadedAt: time.Now().UTC(),
	}, nil
}

// DownloadFile downloads and decrypts a file from S3
func (s *S3Service) DownloadFile(ctx context.Context, s3Key string) (*DownloadResult, error) {
	buf := manager.NewWriteAtBuffer([]byte{})
	_, err := s.downloader.Download(ctx, buf, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to download from S3: %w", err)
	}

	decryptedData, err := s.decryptData(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt file: %w", err)
	}

	hash := sha256.Sum256(decryptedData)
	return &DownloadResult{
		Data:     decryptedData,
		FileHash: hex.EncodeToString(hash[:]),
		FileSize: int64(len(decryptedData)),
		MimeType: "application/pdf",
	}, nil
}

// CheckFileExists checks if a file exists in S3
func (s *S3Service) CheckFileExists(ctx context.Context, s3Key string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s3Key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check file existence: %w", err)
	}
	return true, nil
}

// encryptData encrypts data using AES-256-GCM
func (s *S3Service) encryptData(data []byte) ([]byte, error) {
	gcm, err := newGCM(s.encryptionKey)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, data, nil), nil
}

// decryptData decrypts data using AES-256-GCM
func (s *S3Service) decryptData(encryptedData []byte) ([]byte, error) {
	gcm, err := newGCM(s.encryptionKey)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(encryptedData) < nonceSize {
		return nil, fmt.Errorf("encrypted data too short")
	}
	nonce, ciphertext := encryptedData[:nonceSize], encryptedData[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt data: %w", err)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

// ValidateFileIntegrity validates a file against its stored hash
func ValidateFileIntegrity(data []byte, expectedHash string) error {
	hash := sha256.Sum256(data)
	actualHash := hex.EncodeToString(hash[:])
	if actualHash != expectedHash {
		return fmt.Errorf("file integrity check failed: expected %s, got %s", expectedHash, actualHash)
	}
	return nil
}
