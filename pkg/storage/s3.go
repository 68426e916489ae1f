package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config S3存储配置
type S3Config struct {
	Region    string // 区域
	Bucket    string // 存储桶名称
	AccessKey string // 访问密钥ID，为空时使用默认凭证链
	SecretKey string // 秘密访问密钥
	Endpoint  string // 自定义端点，用于兼容S3的服务
}

// S3Storage 基于aws-sdk-go-v2的S3存储实现
type S3Storage struct {
	client     *s3.Client
	uploader   *manager.Uploader
	bucketName string
}

// NewS3Storage 创建S3存储实例并检查存储桶
func NewS3Storage(ctx context.Context, cfg S3Config) (*S3Storage, error) {
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})

	if _, err := client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(cfg.Bucket)}); err != nil {
		return nil, fmt.Errorf("failed to access bucket %s: %w", cfg.Bucket, err)
	}

	return &S3Storage{
		client:     client,
		uploader:   manager.NewUploader(client),
		bucketName: cfg.Bucket,
	}, nil
}

// countingReader 记录上传的字节数
type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// Save 通过分片上传器保存文件
func (s *S3Storage) Save(ctx context.Context, reader io.Reader, filename string, metadata map[string]string) (FileInfo, error) {
	id := uuid.New().String()
	now := time.Now()
	key := objectKey(id, filename, now)
	contentType := getMimeType(filename)

	body := &countingReader{r: reader}
	_, err := s.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucketName),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
		Metadata:    withFilename(metadata, filename),
	})
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to store file: %w", err)
	}

	return FileInfo{
		ID:        id,
		Name:      filename,
		Size:      body.n,
		MimeType:  contentType,
		Path:      key,
		Metadata:  copyMetadata(metadata),
		CreatedAt: now,
	}, nil
}

// Get 获取文件内容
func (s *S3Storage) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	key, err := s.findKey(ctx, id)
	if err != nil {
		return nil, err
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get file: %w", err)
	}
	return out.Body, nil
}

// Stat 获取文件信息
func (s *S3Storage) Stat(ctx context.Context, id string) (FileInfo, error) {
	key, err := s.findKey(ctx, id)
	if err != nil {
		return FileInfo{}, err
	}
	return s.head(ctx, key)
}

// Delete 删除文件
func (s *S3Storage) Delete(ctx context.Context, id string) error {
	key, err := s.findKey(ctx, id)
	if err != nil {
		return err
	}

	_, err = s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// List 列出元数据匹配的文件
// S3列表不返回用户元数据，每个对象需要一次HeadObject
func (s *S3Storage) List(ctx context.Context, query map[string]string) ([]FileInfo, error) {
	var files []FileInfo
	err := s.walk(ctx, func(key string) (bool, error) {
		info, err := s.head(ctx, key)
		if err != nil {
			return false, err
		}
		if info.Matches(query) {
			files = append(files, info)
		}
		return true, nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// Exists 检查文件是否存在
func (s *S3Storage) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.findKey(ctx, id)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

func (s *S3Storage) findKey(ctx context.Context, id string) (string, error) {
	var found string
	err := s.walk(ctx, func(key string) (bool, error) {
		if idFromKey(key) == id {
			found = key
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	if found == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return found, nil
}

// walk 分页遍历所有对象，fn返回false时停止
func (s *S3Storage) walk(ctx context.Context, fn func(key string) (bool, error)) error {
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucketName),
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("failed to list objects: %w", err)
		}
		for _, obj := range page.Contents {
			more, err := fn(aws.ToString(obj.Key))
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
	}
	return nil
}

func (s *S3Storage) head(ctx context.Context, key string) (FileInfo, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucketName),
		Key:    aws.String(key),
	})
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to head object %s: %w", key, err)
	}

	name, meta := splitMetadata(out.Metadata)
	if name == "" {
		name = idFromKey(key)
	}
	contentType := aws.ToString(out.ContentType)
	if contentType == "" {
		contentType = getMimeType(key)
	}

	return FileInfo{
		ID:        idFromKey(key),
		Name:      name,
		Size:      aws.ToInt64(out.ContentLength),
		MimeType:  contentType,
		Path:      key,
		Metadata:  meta,
		CreatedAt: aws.ToTime(out.LastModified),
	}, nil
}
