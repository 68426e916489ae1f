package document

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

var (
	// ErrUnsupportedType 不支持的文档类型
	ErrUnsupportedType = errors.New("unsupported document type")
	// ErrOpenSource 源文档无法打开或已损坏
	ErrOpenSource = errors.New("failed to open source document")
	// ErrNoText 文档中没有可提取的文本，如纯图片PDF
	ErrNoText = errors.New("no text content")
)

// Parser 文档解析器接口
// 负责将不同格式的文档解析为纯文本
type Parser interface {
	// Parse 解析文档，返回文本内容
	Parse(filePath string) (string, error)

	// ParseReader 从Reader解析文档，返回文本内容
	// filename用于确定文档类型
	ParseReader(r io.Reader, filename string) (string, error)
}

// ContentType 表示文档的内容类型
type ContentType string

const (
	// PDF 文档类型
	PDF ContentType = "pdf"
	// Markdown 文档类型
	Markdown ContentType = "markdown"
	// PlainText 纯文本类型
	PlainText ContentType = "plaintext"
	// Doc 旧版Word文档
	Doc ContentType = "doc"
	// Docx Word文档
	Docx ContentType = "docx"
	// PPTX PowerPoint文档
	PPTX ContentType = "pptx"
	// Email EML邮件
	Email ContentType = "email"
	// Audio 音频文件
	Audio ContentType = "audio"
	// Unknown 未知类型
	Unknown ContentType = "unknown"
)

var extensionTypes = map[string]ContentType{
	".pdf":      PDF,
	".md":       Markdown,
	".markdown": Markdown,
	".txt":      PlainText,
	".doc":      Doc,
	".docx":     Docx,
	".pptx":     PPTX,
	".eml":      Email,
	".mp3":      Audio,
	".wav":      Audio,
	".m4a":      Audio,
	".flac":     Audio,
	".ogg":      Audio,
	".aac":      Audio,
}

var mimeTypes = map[ContentType]string{
	PDF:       "application/pdf",
	Markdown:  "text/markdown",
	PlainText: "text/plain",
	Doc:       "application/msword",
	Docx:      "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	PPTX:      "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	Email:     "message/rfc822",
	Audio:     "audio/mpeg",
}

// MimeType 返回内容类型对应的MIME类型
func (c ContentType) MimeType() string {
	if m, ok := mimeTypes[c]; ok {
		return m
	}
	return "application/octet-stream"
}

// DetectContentType 根据文件扩展名检测内容类型
func DetectContentType(filePath string) ContentType {
	if t, ok := extensionTypes[strings.ToLower(filepath.Ext(filePath))]; ok {
		return t
	}
	return Unknown
}

// Source 一次调用处理的源文档
type Source struct {
	Path string      // 本地路径
	Name string      // 文件名
	Type ContentType // 按扩展名检测的类型
	Size int64       // 字节数
}

// OpenSource 检查本地文件并构造Source
func OpenSource(path string) (Source, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Source{}, fmt.Errorf("%w: %v", ErrOpenSource, err)
	}
	if info.IsDir() {
		return Source{}, fmt.Errorf("%w: %s is a directory", ErrOpenSource, path)
	}

	return Source{
		Path: path,
		Name: filepath.Base(path),
		Type: DetectContentType(path),
		Size: info.Size(),
	}, nil
}

// Stem 返回不含扩展名的文件名，用于生成输出文件名
func (s Source) Stem() string {
	return strings.TrimSuffix(s.Name, filepath.Ext(s.Name))
}

// Require 检查源文档类型是否在允许列表中
func (s Source) Require(types ...ContentType) error {
	for _, t := range types {
		if s.Type == t {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedType, s.Name)
}

// ParserFactory 解析器工厂函数，根据文件类型创建对应的解析器
// 返回的解析器输出整篇文本
func ParserFactory(filePath string, opts ...ExtractorOption) (Parser, error) {
	contentType := DetectContentType(filePath)

	switch contentType {
	case PDF:
		return NewPDFParser(opts...), nil
	case Markdown:
		return NewMarkdownParser(), nil
	case PlainText:
		return NewPlainTextParser(), nil
	case Doc, Docx:
		return NewDocParser(), nil
	case PPTX:
		return NewPPTXParser(opts...), nil
	case Email:
		return NewEmailParser(DefaultEmailOptions()), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Base(filePath))
	}
}

// joinUnits 按顺序拼接单元文本
func joinUnits(texts []string) string {
	var b strings.Builder
	for _, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(t)
	}
	return b.String()
}
