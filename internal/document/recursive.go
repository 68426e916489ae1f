package document

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// separator 递归切分使用的分隔符，nil表示逐字符切分
type separator struct {
	name    string
	pattern *regexp.Regexp
}

// recursiveSeparators 由粗到细：段落、行、句子、子句、单词、字符
var recursiveSeparators = []separator{
	{name: "paragraph", pattern: regexp.MustCompile(`\n\n+`)},
	{name: "line", pattern: regexp.MustCompile(`\n`)},
	{name: "sentence", pattern: regexp.MustCompile(`[.!?。！？]\s+`)},
	{name: "clause", pattern: regexp.MustCompile(`[;:,；：，]\s+`)},
	{name: "word", pattern: regexp.MustCompile(` +`)},
	{name: "char"},
}

// splitRecursive 用第一个在文本中出现的分隔符切分
// 不超过分块大小的片段先暂存，超长片段用更细的分隔符继续切分
func (s *TextSplitter) splitRecursive(text string, separators []separator) []string {
	sep := separators[len(separators)-1]
	var finer []separator
	for i, candidate := range separators {
		if candidate.pattern == nil {
			sep = candidate
			break
		}
		if candidate.pattern.MatchString(text) {
			sep = candidate
			finer = separators[i+1:]
			break
		}
	}

	var (
		final []string
		good  []string
	)
	for _, piece := range splitKeepSeparator(text, sep) {
		if utf8.RuneCountInString(piece) < s.config.ChunkSize {
			good = append(good, piece)
			continue
		}

		if len(good) > 0 {
			final = append(final, s.mergePieces(good)...)
			good = nil
		}
		if len(finer) == 0 {
			if t := strings.TrimSpace(piece); t != "" {
				final = append(final, t)
			}
		} else {
			final = append(final, s.splitRecursive(piece, finer)...)
		}
	}
	if len(good) > 0 {
		final = append(final, s.mergePieces(good)...)
	}
	return final
}

// splitKeepSeparator 切分文本，分隔符保留在它所结束的片段末尾
func splitKeepSeparator(text string, sep separator) []string {
	if sep.pattern == nil {
		pieces := make([]string, 0, utf8.RuneCountInString(text))
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
		return pieces
	}

	var pieces []string
	prev := 0
	for _, loc := range sep.pattern.FindAllStringIndex(text, -1) {
		if loc[1] > prev {
			pieces = append(pieces, text[prev:loc[1]])
		}
		prev = loc[1]
	}
	if prev < len(text) {
		pieces = append(pieces, text[prev:])
	}
	return pieces
}

// mergePieces 将小片段合并为不超过分块大小的分块
// 每输出一个分块，保留末尾不超过重叠大小的片段作为下一个分块的开头
func (s *TextSplitter) mergePieces(pieces []string) []string {
	size, overlap := s.config.ChunkSize, s.config.ChunkOverlap

	var (
		chunks  []string
		current []string
		total   int
	)
	emit := func() {
		if chunk := strings.TrimSpace(strings.Join(current, "")); chunk != "" {
			chunks = append(chunks, chunk)
		}
	}

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)
		if total+n > size && len(current) > 0 {
			emit()
			for total > overlap || (total+n > size && total > 0) {
				total -= utf8.RuneCountInString(current[0])
				current = current[1:]
			}
		}
		current = append(current, piece)
		total += n
	}
	if len(current) > 0 {
		emit()
	}
	return chunks
}
