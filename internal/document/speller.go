package document

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/sajari/fuzzy"
)

var (
	wordToken  = regexp.MustCompile(`[A-Za-z]+`)
	corpusWord = regexp.MustCompile(`[a-z]+`)
)

// Speller 基于词频语料的英文拼写纠正
type Speller struct {
	model *fuzzy.Model
	words int
}

// NewSpeller 从语料文本训练拼写模型
func NewSpeller(corpus io.Reader) (*Speller, error) {
	var words []string
	scanner := bufio.NewScanner(corpus)
	scanner.Split(bufio.ScanWords)
	for scanner.Scan() {
		words = append(words, corpusWord.FindAllString(strings.ToLower(scanner.Text()), -1)...)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read spelling corpus: %w", err)
	}
	if len(words) == 0 {
		return nil, fmt.Errorf("spelling corpus has no words")
	}

	model := fuzzy.NewModel()
	model.SetThreshold(1)
	model.SetDepth(2)
	model.SetUseAutocomplete(false)
	model.Train(words)

	return &Speller{model: model, words: len(words)}, nil
}

// LoadSpeller 从语料文件训练拼写模型
func LoadSpeller(path string) (*Speller, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open spelling corpus: %w", err)
	}
	defer f.Close()
	return NewSpeller(f)
}

// Words 训练用的词数
func (s *Speller) Words() int {
	return s.words
}

// Correct 逐词纠正拼写，找不到候选的词保持原样
// 首字母大写的词纠正后仍然首字母大写
func (s *Speller) Correct(text string) string {
	return wordToken.ReplaceAllStringFunc(text, func(word string) string {
		lower := strings.ToLower(word)
		suggestion := s.model.SpellCheck(lower)
		if suggestion == "" || suggestion == lower {
			return word
		}
		if r, _ := utf8.DecodeRuneInString(word); unicode.IsUpper(r) {
			first, size := utf8.DecodeRuneInString(suggestion)
			return string(unicode.ToUpper(first)) + suggestion[size:]
		}
		return suggestion
	})
}
