package document

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"
)

// MarkdownParser Markdown文档解析器
type MarkdownParser struct{}

// NewMarkdownParser 创建新的Markdown解析器
func NewMarkdownParser() Parser {
	return &MarkdownParser{}
}

// Parse 解析Markdown文件并提取文本内容
func (p *MarkdownParser) Parse(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenSource, err)
	}
	defer file.Close()

	return p.ParseReader(file, filePath)
}

// ParseReader 先渲染为HTML，再按块级元素提取文本
// 块之间用空行分隔，便于后续按段落分块
func (p *MarkdownParser) ParseReader(r io.Reader, filename string) (string, error) {
	content, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("failed to read markdown content: %w", err)
	}

	extensions := parser.CommonExtensions | parser.AutoHeadingIDs
	doc := parser.NewWithExtensions(extensions).Parse(content)

	renderer := html.NewRenderer(html.RendererOptions{Flags: html.CommonFlags})
	rendered := markdown.Render(doc, renderer)

	return htmlToText(rendered)
}

const blockSelector = "h1, h2, h3, h4, h5, h6, p, li, pre, td, th"

// htmlToText 提取HTML块级元素的文本
func htmlToText(content []byte) (string, error) {
	dom, err := goquery.NewDocumentFromReader(bytes.NewReader(content))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}

	var blocks []string
	dom.Find(blockSelector).Each(func(_ int, s *goquery.Selection) {
		// 列表项中的段落已经作为li的一部分输出
		if s.Is("p") && s.ParentsFiltered("li").Length() > 0 {
			return
		}
		text := strings.TrimSpace(s.Text())
		if s.Is("li") {
			text = "- " + strings.Join(strings.Fields(text), " ")
		} else if !s.Is("pre") {
			text = strings.Join(strings.Fields(text), " ")
		}
		if text != "" && text != "-" {
			blocks = append(blocks, text)
		}
	})

	if len(blocks) == 0 {
		// 没有块级元素时退回整体文本
		return strings.Join(strings.Fields(dom.Text()), " "), nil
	}
	return strings.Join(blocks, "\n\n"), nil
}
