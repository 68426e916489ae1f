package document

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"github.com/fyerfyer/doc-pipeline/internal/batch"
	"github.com/fyerfyer/doc-pipeline/internal/resources"
)

// SpeakerNotesMarker 幻灯片正文与演讲者备注之间的分隔行
const SpeakerNotesMarker = "--- Speaker Notes ---"

const (
	presentationPart = "ppt/presentation.xml"
	relationshipsNS  = "http://schemas.openxmlformats.org/officeDocument/2006/relationships"
)

var slideName = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// 不属于正文的占位符
var skippedPlaceholders = map[string]bool{
	"sldNum": true,
	"sldImg": true,
	"dt":     true,
	"ftr":    true,
	"hdr":    true,
}

// PPTXOptions 幻灯片提取选项
type PPTXOptions struct {
	ExtractNotes  bool // 附加演讲者备注
	ExtractTables bool // 附加表格内容
}

// PPTXExtractor 按幻灯片提取PPTX文本
type PPTXExtractor struct {
	opts    extractorOptions
	options PPTXOptions
}

// NewPPTXExtractor 创建幻灯片提取器
func NewPPTXExtractor(options PPTXOptions, opts ...ExtractorOption) *PPTXExtractor {
	return &PPTXExtractor{
		opts:    newExtractorOptions(opts...),
		options: options,
	}
}

// Extract 每张幻灯片一个单元，按演示文稿中的放映顺序排列
func (e *PPTXExtractor) Extract(ctx context.Context, filePath string) (*batch.Result, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrOpenSource, err)
	}
	return e.extract(ctx, data, filepath.Base(filePath))
}

func (e *PPTXExtractor) extract(ctx context.Context, data []byte, name string) (*batch.Result, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenSource, name, err)
	}

	files := make(map[string]*zip.File, len(zr.File))
	for _, f := range zr.File {
		files[f.Name] = f
	}

	slides, err := slideOrder(files)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrOpenSource, name, err)
	}
	if len(slides) == 0 {
		return &batch.Result{}, nil
	}

	plan := e.opts.plan(ctx, len(slides), resources.IOBound)
	return e.opts.batcher.Run(ctx, plan, len(slides), func(ctx context.Context, index int) (batch.Payload, error) {
		text, err := e.slideText(files, slides[index])
		if err != nil {
			return batch.Payload{}, fmt.Errorf("slide %d: %w", index+1, err)
		}
		return batch.Payload{Text: text}, nil
	})
}

// slideText 组装一张幻灯片的输出文本
func (e *PPTXExtractor) slideText(files map[string]*zip.File, slidePath string) (string, error) {
	content, err := readSlideXML(files[slidePath])
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(strings.Join(content.paragraphs, "\n"))

	if e.options.ExtractTables {
		for _, table := range content.tables {
			if b.Len() > 0 {
				b.WriteString("\n")
			}
			b.WriteString(table)
		}
	}

	if e.options.ExtractNotes {
		if notesPath := notesTarget(files, slidePath); notesPath != "" {
			notes, err := readSlideXML(files[notesPath])
			if err != nil {
				return "", fmt.Errorf("notes: %w", err)
			}
			if text := strings.Join(notes.paragraphs, "\n"); text != "" {
				b.WriteString("\n" + SpeakerNotesMarker + "\n")
				b.WriteString(text)
			}
		}
	}

	return b.String(), nil
}

// relationships 部件关系文件
type relationships struct {
	Items []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

// readRelationships 读取部件的关系文件，不存在时返回nil
func readRelationships(files map[string]*zip.File, partPath string) (*relationships, error) {
	dir, base := path.Split(partPath)
	f, ok := files[dir+"_rels/"+base+".rels"]
	if !ok {
		return nil, nil
	}

	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var r relationships
	if err := xml.NewDecoder(rc).Decode(&r); err != nil {
		return nil, fmt.Errorf("malformed relationships %s: %w", f.Name, err)
	}
	return &r, nil
}

// resolveTarget 将关系目标解析为包内路径
func resolveTarget(partPath, target string) string {
	if strings.HasPrefix(target, "/") {
		return path.Clean(strings.TrimPrefix(target, "/"))
	}
	return path.Clean(path.Join(path.Dir(partPath), target))
}

// slideOrder 按presentation.xml中sldIdLst的顺序返回幻灯片部件
// 缺少presentation.xml时按文件编号排序
func slideOrder(files map[string]*zip.File) ([]string, error) {
	pres, ok := files[presentationPart]
	if !ok {
		return slidesByNumber(files), nil
	}

	ids, err := slideRelIDs(pres)
	if err != nil {
		return nil, err
	}
	rels, err := readRelationships(files, presentationPart)
	if err != nil {
		return nil, err
	}
	if rels == nil {
		return nil, fmt.Errorf("missing relationships for %s", presentationPart)
	}

	targets := make(map[string]string, len(rels.Items))
	for _, item := range rels.Items {
		targets[item.ID] = resolveTarget(presentationPart, item.Target)
	}

	slides := make([]string, 0, len(ids))
	for _, id := range ids {
		target, ok := targets[id]
		if !ok {
			return nil, fmt.Errorf("slide relationship %s not found", id)
		}
		if _, ok := files[target]; !ok {
			return nil, fmt.Errorf("slide part %s not found", target)
		}
		slides = append(slides, target)
	}
	return slides, nil
}

// slideRelIDs 读取sldIdLst中每张幻灯片的关系ID
func slideRelIDs(f *zip.File) ([]string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var ids []string
	dec := xml.NewDecoder(rc)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return ids, nil
		}
		if err != nil {
			return nil, fmt.Errorf("malformed %s: %w", f.Name, err)
		}
		start, ok := tok.(xml.StartElement)
		if !ok || start.Name.Local != "sldId" {
			continue
		}
		for _, attr := range start.Attr {
			if attr.Name.Local == "id" && attr.Name.Space == relationshipsNS {
				ids = append(ids, attr.Value)
			}
		}
	}
}

func slidesByNumber(files map[string]*zip.File) []string {
	type numbered struct {
		num  int
		name string
	}
	var slides []numbered
	for name := range files {
		if m := slideName.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, numbered{num: n, name: name})
		}
	}
	slices.SortFunc(slides, func(a, b numbered) int { return a.num - b.num })

	names := make([]string, len(slides))
	for i, s := range slides {
		names[i] = s.name
	}
	return names
}

// notesTarget 通过关系文件找到幻灯片对应的备注页
func notesTarget(files map[string]*zip.File, slidePath string) string {
	rels, err := readRelationships(files, slidePath)
	if err != nil || rels == nil {
		return ""
	}
	for _, item := range rels.Items {
		if strings.HasSuffix(item.Type, "/notesSlide") {
			target := resolveTarget(slidePath, item.Target)
			if _, ok := files[target]; ok {
				return target
			}
		}
	}
	return ""
}

// slideContent 一张幻灯片或备注页中的文本
type slideContent struct {
	paragraphs []string
	tables     []string // 每个表格一项，单元格用\t分隔，行用\n分隔
}

// readSlideXML 流式解析DrawingML，收集形状段落和表格
func readSlideXML(f *zip.File) (slideContent, error) {
	var content slideContent
	if f == nil {
		return content, fmt.Errorf("missing part")
	}

	rc, err := f.Open()
	if err != nil {
		return content, err
	}
	defer rc.Close()

	var (
		dec       = xml.NewDecoder(rc)
		inText    bool
		skipShape bool
		tblDepth  int
		para      strings.Builder
		cell      strings.Builder
		row       []string
		rows      []string
		shapeText []string
	)

	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return content, fmt.Errorf("malformed xml: %w", err)
		}

		switch t := tok.(type) {
		case xml.StartElement:
			switch t.Name.Local {
			case "sp":
				shapeText = nil
				skipShape = false
			case "ph":
				for _, attr := range t.Attr {
					if attr.Name.Local == "type" && skippedPlaceholders[attr.Value] {
						skipShape = true
					}
				}
			case "tbl":
				tblDepth++
				rows = nil
			case "tr":
				row = nil
			case "tc":
				cell.Reset()
			case "p":
				para.Reset()
			case "t":
				inText = true
			case "br":
				para.WriteString("\n")
			}

		case xml.CharData:
			if !inText {
				continue
			}
			if tblDepth > 0 {
				cell.Write(t)
			} else {
				para.Write(t)
			}

		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if tblDepth > 0 {
					if cell.Len() > 0 {
						cell.WriteString(" ")
					}
					continue
				}
				if text := strings.TrimSpace(para.String()); text != "" {
					shapeText = append(shapeText, text)
				}
			case "sp":
				if !skipShape {
					content.paragraphs = append(content.paragraphs, shapeText...)
				}
				shapeText = nil
			case "tc":
				row = append(row, strings.TrimSpace(cell.String()))
			case "tr":
				rows = append(rows, strings.Join(row, "\t"))
			case "tbl":
				tblDepth--
				if len(rows) > 0 {
					content.tables = append(content.tables, strings.Join(rows, "\n"))
				}
			}
		}
	}

	return content, nil
}

// PPTXParser 将所有幻灯片文本拼接为整篇文本
type PPTXParser struct {
	extractor *PPTXExtractor
}

// NewPPTXParser 创建PPTX整篇文本解析器
func NewPPTXParser(opts ...ExtractorOption) Parser {
	return &PPTXParser{
		extractor: NewPPTXExtractor(PPTXOptions{ExtractTables: true}, opts...),
	}
}

// Parse 解析PPTX文件
func (p *PPTXParser) Parse(filePath string) (string, error) {
	result, err := p.extractor.Extract(context.Background(), filePath)
	if err != nil {
		return "", err
	}
	return slidesText(result), nil
}

// ParseReader 从Reader解析PPTX
func (p *PPTXParser) ParseReader(r io.Reader, filename string) (string, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrOpenSource, err)
	}
	result, err := p.extractor.extract(context.Background(), data, filename)
	if err != nil {
		return "", err
	}
	return slidesText(result), nil
}

func slidesText(result *batch.Result) string {
	texts := make([]string, 0, len(result.Units))
	for _, u := range result.Units {
		texts = append(texts, u.Text)
	}
	return joinUnits(texts)
}
