package storage

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage MinIO存储实现
type MinioStorage struct {
	client     *minio.Client // MinIO客户端
	bucketName string        // 存储桶名称
}

// MinioConfig MinIO存储配置
type MinioConfig struct {
	Endpoint  string // MinIO服务端点
	AccessKey string // 访问密钥ID
	SecretKey string // 秘密访问密钥
	UseSSL    bool   // 是否使用SSL
	Bucket    string // 存储桶名称
}

// NewMinioStorage 创建MinIO存储实例
func NewMinioStorage(ctx context.Context, cfg MinioConfig) (*MinioStorage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %v", err)
	}

	// 检查存储桶是否存在，不存在则创建
	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check if bucket exists: %v", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %v", err)
		}
	}

	return &MinioStorage{
		client:     client,
		bucketName: cfg.Bucket,
	}, nil
}

// Save 流式上传到MinIO，大小未知时由客户端分片
func (s *MinioStorage) Save(ctx context.Context, reader io.Reader, filename string, metadata map[string]string) (FileInfo, error) {
	id := uuid.New().String()
	now := time.Now()
	objectName := objectKey(id, filename, now)
	contentType := getMimeType(filename)

	upload, err := s.client.PutObject(ctx, s.bucketName, objectName, reader, -1, minio.PutObjectOptions{
		ContentType:  contentType,
		UserMetadata: withFilename(metadata, filename),
	})
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to upload file: %v", err)
	}

	return FileInfo{
		ID:        id,
		Name:      filename,
		Size:      upload.Size,
		MimeType:  contentType,
		Path:      objectName,
		Metadata:  copyMetadata(metadata),
		CreatedAt: now,
	}, nil
}

// Get 获取MinIO中的文件
func (s *MinioStorage) Get(ctx context.Context, id string) (io.ReadCloser, error) {
	info, err := s.Stat(ctx, id)
	if err != nil {
		return nil, err
	}

	obj, err := s.client.GetObject(ctx, s.bucketName, info.Path, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get object: %v", err)
	}
	return obj, nil
}

// Stat 按ID查找对象并读取元数据
func (s *MinioStorage) Stat(ctx context.Context, id string) (FileInfo, error) {
	objectName, err := s.findObject(ctx, id)
	if err != nil {
		return FileInfo{}, err
	}

	stat, err := s.client.StatObject(ctx, s.bucketName, objectName, minio.StatObjectOptions{})
	if err != nil {
		return FileInfo{}, fmt.Errorf("failed to stat object: %v", err)
	}
	return s.toFileInfo(stat), nil
}

// Delete 从MinIO中删除文件
func (s *MinioStorage) Delete(ctx context.Context, id string) error {
	objectName, err := s.findObject(ctx, id)
	if err != nil {
		return err
	}

	if err := s.client.RemoveObject(ctx, s.bucketName, objectName, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to delete object: %v", err)
	}
	return nil
}

// List 列出MinIO中元数据匹配的文件
func (s *MinioStorage) List(ctx context.Context, query map[string]string) ([]FileInfo, error) {
	var files []FileInfo

	objectCh := s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{
		Recursive:    true,
		WithMetadata: true,
	})
	for object := range objectCh {
		if object.Err != nil {
			return nil, fmt.Errorf("error listing objects: %v", object.Err)
		}

		// 非MinIO服务端不会在列表中返回用户元数据
		if len(object.UserMetadata) == 0 {
			stat, err := s.client.StatObject(ctx, s.bucketName, object.Key, minio.StatObjectOptions{})
			if err != nil {
				return nil, fmt.Errorf("failed to stat object %s: %v", object.Key, err)
			}
			object = stat
		}

		info := s.toFileInfo(object)
		if info.Matches(query) {
			files = append(files, info)
		}
	}
	return files, nil
}

// Exists 检查MinIO中是否存在指定ID的文件
func (s *MinioStorage) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.findObject(ctx, id)
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, err
}

// findObject 对象名以日期为前缀，只能通过列举按ID查找
func (s *MinioStorage) findObject(ctx context.Context, id string) (string, error) {
	for object := range s.client.ListObjects(ctx, s.bucketName, minio.ListObjectsOptions{Recursive: true}) {
		if object.Err != nil {
			return "", fmt.Errorf("error listing objects: %v", object.Err)
		}
		if idFromKey(object.Key) == id {
			return object.Key, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, id)
}

func (s *MinioStorage) toFileInfo(object minio.ObjectInfo) FileInfo {
	name, meta := splitMetadata(object.UserMetadata)
	if name == "" {
		name = idFromKey(object.Key)
	}
	contentType := object.ContentType
	if contentType == "" {
		contentType = getMimeType(object.Key)
	}

	return FileInfo{
		ID:        idFromKey(object.Key),
		Name:      name,
		Size:      object.Size,
		MimeType:  contentType,
		Path:      object.Key,
		Metadata:  meta,
		CreatedAt: object.LastModified,
	}
}
