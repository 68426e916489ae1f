package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path/filepath"
	"strings"
	"time"
)

// ErrNotFound 文件不存在
var ErrNotFound = errors.New("file not found")

// 保留的元数据键
const (
	// MetaOriginalItemID 输出文件对应的输入文件ID
	MetaOriginalItemID = "original_item_id"
	// MetaUnitIndex 输出文件在源文档中的单元序号，从1开始
	MetaUnitIndex = "unit_index"
)

// FileInfo 文件元数据结构
type FileInfo struct {
	ID        string            `json:"id"`                 // 文件唯一标识符
	Name      string            `json:"name"`               // 原始文件名
	Size      int64             `json:"size"`               // 文件大小(字节)
	MimeType  string            `json:"mime_type"`          // 文件MIME类型
	Path      string            `json:"path"`               // 内部存储路径(实现相关)
	Metadata  map[string]string `json:"metadata,omitempty"` // 用户元数据
	CreatedAt time.Time         `json:"created_at"`
}

// Matches 判断元数据是否包含query中的所有键值
func (f FileInfo) Matches(query map[string]string) bool {
	for k, v := range query {
		if f.Metadata[k] != v {
			return false
		}
	}
	return true
}

// Storage 文件存储接口
// 定义文件存储的基本操作，可以有不同实现(本地文件系统、MinIO、S3)
type Storage interface {
	// Save 保存文件并返回文件信息，metadata随文件一起保存
	Save(ctx context.Context, reader io.Reader, filename string, metadata map[string]string) (FileInfo, error)

	// Get 获取文件内容
	Get(ctx context.Context, id string) (io.ReadCloser, error)

	// Stat 获取文件信息
	Stat(ctx context.Context, id string) (FileInfo, error)

	// Delete 删除文件
	Delete(ctx context.Context, id string) error

	// List 列出元数据匹配query的文件，query为空时列出所有文件
	List(ctx context.Context, query map[string]string) ([]FileInfo, error)

	// Exists 检查文件是否存在
	Exists(ctx context.Context, id string) (bool, error)
}

// Type 存储类型
type Type string

const (
	TypeLocal Type = "local"
	TypeMinio Type = "minio"
	TypeS3    Type = "s3"
)

// Config 存储配置，按Type选择实现
type Config struct {
	Type  Type
	Local LocalConfig
	Minio MinioConfig
	S3    S3Config
}

// New 根据配置创建存储实现
func New(ctx context.Context, cfg Config) (Storage, error) {
	switch cfg.Type {
	case TypeLocal, "":
		return NewLocalStorage(cfg.Local)
	case TypeMinio:
		return NewMinioStorage(ctx, cfg.Minio)
	case TypeS3:
		return NewS3Storage(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// objectKey 按日期组织的对象名
func objectKey(id, filename string, now time.Time) string {
	return fmt.Sprintf("%04d/%02d/%02d/%s%s", now.Year(), now.Month(), now.Day(), id, strings.ToLower(filepath.Ext(filename)))
}

// idFromKey 从对象名中提取ID
func idFromKey(key string) string {
	name := filepath.Base(key)
	return strings.TrimSuffix(name, filepath.Ext(name))
}

// 元数据中保存原始文件名的键
const metaFilename = "filename"

// splitMetadata 从对象元数据中分离出原始文件名
// 对象存储返回的键大小写不固定，统一转为小写
func splitMetadata(raw map[string]string) (string, map[string]string) {
	var name string
	meta := make(map[string]string, len(raw))
	for k, v := range raw {
		k = strings.TrimPrefix(strings.ToLower(k), "x-amz-meta-")
		if k == metaFilename {
			name = v
			continue
		}
		meta[k] = v
	}
	return name, meta
}

// withFilename 返回带原始文件名的元数据副本
func withFilename(metadata map[string]string, filename string) map[string]string {
	out := make(map[string]string, len(metadata)+1)
	for k, v := range metadata {
		out[strings.ToLower(k)] = v
	}
	out[metaFilename] = filename
	return out
}

var extraMimeTypes = map[string]string{
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".txt":      "text/plain",
	".pdf":      "application/pdf",
	".doc":      "application/msword",
	".docx":     "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".pptx":     "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".eml":      "message/rfc822",
	".png":      "image/png",
	".jpg":      "image/jpeg",
	".jpeg":     "image/jpeg",
}

// getMimeType 根据文件扩展名判断MIME类型
func getMimeType(filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if m, ok := extraMimeTypes[ext]; ok {
		return m
	}
	if m := mime.TypeByExtension(ext); m != "" {
		return m
	}
	return "application/octet-stream"
}
