package document

import (
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// CleanerOptions 文本清洗选项，按字段顺序依次应用
type CleanerOptions struct {
	ExtraWhitespace     bool `mapstructure:"extra_whitespace"`     // 压缩连续空白
	Dashes              bool `mapstructure:"dashes"`               // 删除连字符和短横线
	Bullets             bool `mapstructure:"bullets"`              // 删除开头的项目符号
	TrailingPunctuation bool `mapstructure:"trailing_punctuation"` // 删除结尾的.,:;
	Lowercase           bool `mapstructure:"lowercase"`            // 转为小写
	UnicodeQuotes       bool `mapstructure:"unicode_quotes"`       // 弯引号替换为ASCII引号
	ASCIIOnly           bool `mapstructure:"ascii_only"`           // 删除非ASCII字符
	OrderedBullets      bool `mapstructure:"ordered_bullets"`      // 删除开头的编号，如1.2.或a.
	GroupParagraphs     bool `mapstructure:"group_paragraphs"`     // 合并被换行打断的段落
	RemovePunctuation   bool `mapstructure:"remove_punctuation"`   // 删除所有标点
	CorrectSpelling     bool `mapstructure:"to_correct_spelling"`  // 清洗后纠正拼写，需要配置拼写语料
}

// DefaultCleanerOptions 启用全部清洗步骤，拼写纠正除外
func DefaultCleanerOptions() CleanerOptions {
	return CleanerOptions{
		ExtraWhitespace:     true,
		Dashes:              true,
		Bullets:             true,
		TrailingPunctuation: true,
		Lowercase:           true,
		UnicodeQuotes:       true,
		ASCIIOnly:           true,
		OrderedBullets:      true,
		GroupParagraphs:     true,
		RemovePunctuation:   true,
	}
}

// Cleaner 分块文本清洗器
type Cleaner struct {
	options CleanerOptions
	speller *Speller
}

// CleanerOption 清洗器选项
type CleanerOption func(*Cleaner)

// WithSpeller 设置拼写纠正使用的模型
func WithSpeller(s *Speller) CleanerOption {
	return func(c *Cleaner) {
		c.speller = s
	}
}

// NewCleaner 创建清洗器
func NewCleaner(options CleanerOptions, opts ...CleanerOption) *Cleaner {
	c := &Cleaner{options: options}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

var (
	whitespaceRun  = regexp.MustCompile(`[ \t\x{00a0}\n\r\f\v]+`)
	dashChars      = regexp.MustCompile(`[-\x{2013}\x{2014}]`)
	orderedBullet  = regexp.MustCompile(`^\s*(?:\d+(?:\.\d+){0,2}|[a-zA-Z](?:\.\d+){0,2})[.)]\s+`)
	brokenLine     = regexp.MustCompile(`\s*\n\s*`)
	bulletPrefixes = "•●○◦▪▫■□‣⁃∙·*-–—"
)

var quoteReplacer = strings.NewReplacer(
	"“", `"`, "”", `"`, "„", `"`, "‟", `"`,
	"‘", "'", "’", "'", "‚", "'", "‛", "'",
	"«", `"`, "»", `"`, "′", "'", "″", `"`,
)

// Clean 将文本按段落切分后逐段清洗，再用空格拼接
func (c *Cleaner) Clean(text string) string {
	text = norm.NFC.String(text)

	var elements []string
	if c.options.GroupParagraphs {
		elements = groupBrokenParagraphs(text)
	} else {
		elements = splitParagraphs(text)
	}

	out := make([]string, 0, len(elements))
	for _, e := range elements {
		if cleaned := c.cleanElement(e); cleaned != "" {
			out = append(out, cleaned)
		}
	}
	return strings.Join(out, " ")
}

func (c *Cleaner) cleanElement(text string) string {
	o := c.options

	if o.ExtraWhitespace {
		text = strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	}
	if o.Dashes {
		text = strings.TrimSpace(dashChars.ReplaceAllString(text, " "))
		if o.ExtraWhitespace {
			text = whitespaceRun.ReplaceAllString(text, " ")
		}
	}
	if o.Bullets {
		text = strings.TrimLeft(strings.TrimLeft(text, bulletPrefixes), " ")
	}
	if o.TrailingPunctuation {
		text = strings.TrimRight(text, ".,:;")
	}
	if o.Lowercase {
		text = cases.Lower(language.Und).String(text)
	}
	if o.UnicodeQuotes {
		text = quoteReplacer.Replace(text)
	}
	if o.ASCIIOnly {
		text = transformString(text, runes.Remove(runes.Predicate(func(r rune) bool {
			return r > unicode.MaxASCII
		})))
	}
	if o.OrderedBullets {
		text = orderedBullet.ReplaceAllString(text, "")
	}
	if o.RemovePunctuation {
		text = transformString(text, runes.Remove(runes.In(unicode.P)))
	}
	if o.CorrectSpelling && c.speller != nil {
		text = c.speller.Correct(text)
	}
	return strings.TrimSpace(text)
}

// groupBrokenParagraphs 段落内被换行打断的行合并为一行
// 以项目符号开头的行保持独立
func groupBrokenParagraphs(text string) []string {
	var out []string
	for _, para := range splitParagraphs(text) {
		lines := strings.Split(para, "\n")
		if startsWithBullet(lines) {
			for _, line := range lines {
				if line = strings.TrimSpace(line); line != "" {
					out = append(out, line)
				}
			}
			continue
		}
		out = append(out, brokenLine.ReplaceAllString(para, " "))
	}
	return out
}

func startsWithBullet(lines []string) bool {
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		first := []rune(line)[0]
		if strings.ContainsRune(bulletPrefixes, first) || orderedBullet.MatchString(line) {
			return true
		}
	}
	return false
}

func transformString(s string, t transform.Transformer) string {
	out, _, err := transform.String(t, s)
	if err != nil {
		return s
	}
	return out
}
