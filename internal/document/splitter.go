package document

import (
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

// Strategy 文本分块策略
type Strategy string

const (
	// FixedSize 固定长度窗口
	FixedSize Strategy = "fixed-size"
	// Recursive 按分隔符由粗到细递归切分后合并
	Recursive Strategy = "recursive"
	// BySentence 每个句子一个分块
	BySentence Strategy = "sentence"
	// ByParagraph 每个段落一个分块
	ByParagraph Strategy = "paragraph"
	// WholeText 整个文本作为一个分块
	WholeText Strategy = "whole"
)

// ErrInvalidChunkConfig 分块参数非法
var ErrInvalidChunkConfig = errors.New("invalid chunk config")

// 兼容旧的策略名
var strategyAliases = map[string]Strategy{
	"nltk-sentence":   BySentence,
	"nltk-paragraphs": ByParagraph,
}

// ParseStrategy 解析策略名，未知名称回退为整文本
func ParseStrategy(name string) Strategy {
	name = strings.ToLower(strings.TrimSpace(name))
	if s, ok := strategyAliases[name]; ok {
		return s
	}
	switch s := Strategy(name); s {
	case FixedSize, Recursive, BySentence, ByParagraph:
		return s
	default:
		return WholeText
	}
}

// StrategyNames 返回可识别的策略名，其他名称按整文本处理
func StrategyNames() []string {
	names := []string{string(FixedSize), string(Recursive), string(BySentence), string(ByParagraph)}
	for alias := range strategyAliases {
		names = append(names, alias)
	}
	slices.Sort(names)
	return names
}

// Chunk 文本分块
// Start/End为rune偏移，End不包含
type Chunk struct {
	Text  string
	Start int
	End   int
	Index int
}

// SplitterConfig 分块器配置
type SplitterConfig struct {
	Strategy     Strategy // 分块策略
	ChunkSize    int      // 分块大小（按字符数）
	ChunkOverlap int      // 分块重叠大小（字符数）
}

// DefaultSplitterConfig 返回默认分块器配置
func DefaultSplitterConfig() SplitterConfig {
	return SplitterConfig{
		Strategy:     Recursive,
		ChunkSize:    1000,
		ChunkOverlap: 200,
	}
}

// Validate 检查窗口类策略的大小和重叠参数
func (c SplitterConfig) Validate() error {
	if c.Strategy != FixedSize && c.Strategy != Recursive {
		return nil
	}
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidChunkConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidChunkConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap >= c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d must be smaller than chunk size %d",
			ErrInvalidChunkConfig, c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// Splitter 文本分块器接口
type Splitter interface {
	// Split 将文本切分为有序分块
	Split(text string) ([]Chunk, error)
}

// TextSplitter 实现Splitter接口
type TextSplitter struct {
	config SplitterConfig
}

// NewTextSplitter 创建新的文本分块器
func NewTextSplitter(config SplitterConfig) *TextSplitter {
	config.Strategy = ParseStrategy(string(config.Strategy))
	return &TextSplitter{
		config: config,
	}
}

// ChunkText 按策略切分文本，只返回分块文本
func ChunkText(text string, strategy string, size, overlap int) ([]string, error) {
	splitter := NewTextSplitter(SplitterConfig{
		Strategy:     Strategy(strategy),
		ChunkSize:    size,
		ChunkOverlap: overlap,
	})
	chunks, err := splitter.Split(text)
	if err != nil {
		return nil, err
	}

	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out, nil
}

// Split 将文本切分为分块
// 空文本或只有空白的文本返回空切片
func (s *TextSplitter) Split(text string) ([]Chunk, error) {
	if err := s.config.Validate(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return []Chunk{}, nil
	}

	var chunks []Chunk
	switch s.config.Strategy {
	case FixedSize:
		chunks = s.splitFixed(text)
	case Recursive:
		pieces := s.splitRecursive(text, recursiveSeparators)
		chunks = locateChunks(text, pieces)
	case BySentence:
		sentences, err := splitSentences(text)
		if err != nil {
			return nil, err
		}
		chunks = locateChunks(text, sentences)
	case ByParagraph:
		chunks = locateChunks(text, splitParagraphs(text))
	default:
		chunks = []Chunk{{Text: text, Start: 0, End: utf8.RuneCountInString(text)}}
	}

	for i := range chunks {
		chunks[i].Index = i
	}
	return chunks, nil
}

// splitFixed 按rune窗口切分，不在单词边界处对齐
func (s *TextSplitter) splitFixed(text string) []Chunk {
	runes := []rune(text)
	step := s.config.ChunkSize - s.config.ChunkOverlap

	var chunks []Chunk
	for start := 0; start < len(runes); start += step {
		end := min(start+s.config.ChunkSize, len(runes))
		window := string(runes[start:end])
		if strings.TrimSpace(window) != "" {
			chunks = append(chunks, Chunk{Text: window, Start: start, End: end})
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// blankLine 空行分隔，允许行内有空白和\r
var blankLine = regexp.MustCompile(`\s*\n\s*\n\s*`)

// splitParagraphs 按空行切分段落
func splitParagraphs(text string) []string {
	var result []string
	for _, p := range blankLine.Split(text, -1) {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// locateChunks 在原文中定位分块，计算rune偏移
// 分块按顺序出现，每次从上一个分块起点之后开始查找
func locateChunks(text string, pieces []string) []Chunk {
	chunks := make([]Chunk, 0, len(pieces))

	searchFrom := 0 // 字节偏移
	cursorByte, cursorRune := 0, 0
	for i, piece := range pieces {
		from := searchFrom
		if i > 0 {
			from++
		}
		from = min(from, len(text))

		idx := strings.Index(text[from:], piece)
		if idx < 0 {
			idx = strings.Index(text, piece)
		} else {
			idx += from
		}
		if idx < 0 {
			// 分块经过了规范化，无法在原文中定位
			chunks = append(chunks, Chunk{Text: piece, Start: -1, End: -1})
			continue
		}

		if idx >= cursorByte {
			cursorRune += utf8.RuneCountInString(text[cursorByte:idx])
		} else {
			cursorRune = utf8.RuneCountInString(text[:idx])
		}
		cursorByte = idx

		start := cursorRune
		chunks = append(chunks, Chunk{
			Text:  piece,
			Start: start,
			End:   start + utf8.RuneCountInString(piece),
		})
		searchFrom = idx
	}
	return chunks
}
