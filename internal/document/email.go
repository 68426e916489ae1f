package document

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/emersion/go-message"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
)

// 邮件文本输出的分节标题
const (
	EmailHeadersSection     = "=== EMAIL HEADERS ==="
	EmailBodySection        = "=== EMAIL BODY ==="
	EmailAttachmentsSection = "=== ATTACHMENTS ==="
	emptyBodyText           = "No text content found in email body."
)

// EmailOptions 邮件提取选项
type EmailOptions struct {
	ExtractHeaders     bool // 输出发件人、收件人等头信息
	ExtractAttachments bool // 输出附件名称、类型和大小
}

// DefaultEmailOptions 默认输出头信息，不列出附件
func DefaultEmailOptions() EmailOptions {
	return EmailOptions{ExtractHeaders: true}
}

// EmailParser EML邮件解析器
type EmailParser struct {
	options EmailOptions
}

// NewEmailParser 创建邮件解析器
func NewEmailParser(options EmailOptions) Parser {
	return &EmailParser{options: options}
}

// Parse 解析EML文件
func (p *EmailParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenSource, err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// attachmentInfo 附件摘要
type attachmentInfo struct {
	name        string
	contentType string
	size        int
}

// ParseReader 解析邮件头、正文和附件列表
// HTML正文会被转换为纯文本
func (p *EmailParser) ParseReader(r io.Reader, filename string) (string, error) {
	mr, err := mail.CreateReader(r)
	if err != nil && !message.IsUnknownCharset(err) {
		return "", fmt.Errorf("%w: %s: %v", ErrOpenSource, filepath.Base(filename), err)
	}
	defer mr.Close()

	var (
		bodies      []string
		attachments []attachmentInfo
	)
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil && !message.IsUnknownCharset(err) {
			return "", fmt.Errorf("failed to read message part: %w", err)
		}
		if part == nil {
			continue
		}

		switch h := part.Header.(type) {
		case *mail.InlineHeader:
			contentType, _, _ := h.ContentType()
			if contentType == "" {
				contentType = "text/plain"
			}
			raw, err := io.ReadAll(part.Body)
			if err != nil {
				return "", fmt.Errorf("failed to read body: %w", err)
			}
			switch contentType {
			case "text/plain":
				if text := strings.TrimSpace(string(raw)); text != "" {
					bodies = append(bodies, text)
				}
			case "text/html":
				text, err := htmlToText(raw)
				if err != nil {
					return "", err
				}
				if text = strings.Join(strings.Fields(text), " "); text != "" {
					bodies = append(bodies, text)
				}
			}

		case *mail.AttachmentHeader:
			name, _ := h.Filename()
			contentType, _, _ := h.ContentType()
			n, err := io.Copy(io.Discard, part.Body)
			if err != nil {
				return "", fmt.Errorf("failed to read attachment %q: %w", name, err)
			}
			if name != "" {
				attachments = append(attachments, attachmentInfo{name: name, contentType: contentType, size: int(n)})
			}
		}
	}

	var out []string
	if p.options.ExtractHeaders {
		out = append(out, EmailHeadersSection)
		out = append(out, "From: "+headerOr(mr.Header, "From", "Unknown"))
		out = append(out, "To: "+headerOr(mr.Header, "To", "Unknown"))
		out = append(out, "Subject: "+headerOr(mr.Header, "Subject", "No Subject"))
		out = append(out, "Date: "+headerOr(mr.Header, "Date", "Unknown"))
		if cc := headerOr(mr.Header, "Cc", ""); cc != "" {
			out = append(out, "Cc: "+cc)
		}
		if bcc := headerOr(mr.Header, "Bcc", ""); bcc != "" {
			out = append(out, "Bcc: "+bcc)
		}
		out = append(out, "")
	}

	out = append(out, EmailBodySection)
	if len(bodies) > 0 {
		out = append(out, strings.Join(bodies, "\n\n"))
	} else {
		out = append(out, emptyBodyText)
	}

	if p.options.ExtractAttachments && len(attachments) > 0 {
		out = append(out, "", EmailAttachmentsSection)
		for _, a := range attachments {
			out = append(out, fmt.Sprintf("- %s (%s, %d bytes)", a.name, a.contentType, a.size))
		}
	}

	return strings.Join(out, "\n"), nil
}

// headerOr 读取并解码头字段，不存在时返回默认值
func headerOr(h mail.Header, key, fallback string) string {
	value, err := h.Text(key)
	if err != nil {
		value = h.Get(key)
	}
	if value = strings.TrimSpace(value); value == "" {
		return fallback
	}
	return value
}
