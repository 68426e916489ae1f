package document

import (
	"fmt"
	"strings"
	"sync"

	"github.com/neurosnap/sentences"
	"github.com/neurosnap/sentences/english"
)

var (
	sentenceOnce      sync.Once
	sentenceTokenizer *sentences.DefaultSentenceTokenizer
	sentenceErr       error
)

// englishTokenizer 训练数据随包内置，只加载一次
func englishTokenizer() (*sentences.DefaultSentenceTokenizer, error) {
	sentenceOnce.Do(func() {
		sentenceTokenizer, sentenceErr = english.NewSentenceTokenizer(nil)
	})
	return sentenceTokenizer, sentenceErr
}

// splitSentences 英文句子边界检测
func splitSentences(text string) ([]string, error) {
	tokenizer, err := englishTokenizer()
	if err != nil {
		return nil, fmt.Errorf("failed to load sentence tokenizer: %w", err)
	}

	var result []string
	for _, s := range tokenizer.Tokenize(text) {
		if t := strings.TrimSpace(s.Text); t != "" {
			result = append(result, t)
		}
	}
	return result, nil
}
