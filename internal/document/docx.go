package document

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"code.sajari.com/docconv"
)

// DocParser Word文档解析器，支持.doc和.docx
// .doc依赖系统中的wvText
type DocParser struct{}

// NewDocParser 创建Word文档解析器
func NewDocParser() Parser {
	return &DocParser{}
}

// Parse 解析Word文件
func (p *DocParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenSource, err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 从Reader解析Word内容，filename决定格式
func (p *DocParser) ParseReader(r io.Reader, filename string) (string, error) {
	var (
		body string
		err  error
	)
	switch DetectContentType(filename) {
	case Docx:
		body, _, err = docconv.ConvertDocx(r)
	case Doc:
		body, _, err = docconv.ConvertDoc(r)
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedType, filepath.Base(filename))
	}
	if err != nil {
		return "", fmt.Errorf("%w: %s: %v", ErrOpenSource, filepath.Base(filename), err)
	}

	return normalizeLines(body), nil
}

// normalizeLines 去掉行尾空白并把连续空行压缩为一个
func normalizeLines(text string) string {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")

	out := make([]string, 0, len(lines))
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t")
		if strings.TrimSpace(line) == "" {
			if !blank && len(out) > 0 {
				out = append(out, "")
			}
			blank = true
			continue
		}
		blank = false
		out = append(out, line)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
