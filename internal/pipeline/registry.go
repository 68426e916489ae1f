package pipeline

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/fyerfyer/doc-pipeline/internal/document"
)

// ErrUnknownNode 节点未注册
var ErrUnknownNode = errors.New("unknown node")

// HandlerFunc 节点处理函数
// 输入文件已下载到run.Source.Path，处理结果通过run.Emit提交
type HandlerFunc func(ctx context.Context, run *Run) error

// Node 流水线节点
type Node struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Tag         string                 `json:"tag,omitempty"`     // 输出文件的标记元数据键
	Accepts     []document.ContentType `json:"accepts,omitempty"` // 为空时接受任意类型
	Handle      HandlerFunc            `json:"-"`

	// ValidateConfig 节点自身的配置约束，在入队和执行前检查
	ValidateConfig func(cfg NodeConfig) error `json:"-"`
}

// CheckConfig 执行节点的配置校验
func (n Node) CheckConfig(cfg NodeConfig) error {
	if n.ValidateConfig == nil {
		return nil
	}
	if err := n.ValidateConfig(cfg); err != nil {
		return fmt.Errorf("node %s: %w", n.Name, err)
	}
	return nil
}

// CheckInput 按文件名检查节点是否接受该类型的输入
func (n Node) CheckInput(filename string) error {
	if len(n.Accepts) == 0 {
		return nil
	}
	src := document.Source{Name: filename, Type: document.DetectContentType(filename)}
	if err := src.Require(n.Accepts...); err != nil {
		return fmt.Errorf("node %s: %w", n.Name, err)
	}
	return nil
}

// Registry 节点注册表
type Registry struct {
	mu    sync.RWMutex
	nodes map[string]Node
}

// NewRegistry 创建空的注册表
func NewRegistry() *Registry {
	return &Registry{nodes: make(map[string]Node)}
}

// Register 注册节点，同名节点会被覆盖
func (r *Registry) Register(node Node) error {
	if node.Name == "" || node.Handle == nil {
		return fmt.Errorf("node must have a name and a handler")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes[node.Name] = node
	return nil
}

// Get 按名称获取节点
func (r *Registry) Get(name string) (Node, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	node, ok := r.nodes[name]
	if !ok {
		return Node{}, fmt.Errorf("%w: %s", ErrUnknownNode, name)
	}
	return node, nil
}

// List 按名称排序返回所有节点
func (r *Registry) List() []Node {
	r.mu.RLock()
	defer r.mu.RUnlock()

	nodes := make([]Node, 0, len(r.nodes))
	for _, n := range r.nodes {
		nodes = append(nodes, n)
	}
	slices.SortFunc(nodes, func(a, b Node) int { return strings.Compare(a.Name, b.Name) })
	return nodes
}

// DefaultRegistry 注册所有内置节点
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, n := range builtinNodes() {
		_ = r.Register(n)
	}
	return r
}

func builtinNodes() []Node {
	return []Node{
		{
			Name:        NodePDFExtract,
			Description: "Extract text (and optionally embedded images) from every PDF page",
			Tag:         "extracted_from_pdf",
			Accepts:     []document.ContentType{document.PDF},
			Handle:      handlePDFExtract,
		},
		{
			Name:        NodePDFToImage,
			Description: "Render every PDF page to a PNG image",
			Tag:         "converted_to_image",
			Accepts:     []document.ContentType{document.PDF},
			Handle:      handlePDFToImage,
		},
		{
			Name:        NodeDocExtract,
			Description: "Extract text from a DOC or DOCX document",
			Tag:         "extracted_from_docs",
			Accepts:     []document.ContentType{document.Doc, document.Docx},
			Handle:      handleDocExtract,
		},
		{
			Name:        NodePPTExtract,
			Description: "Extract text, tables and speaker notes from every PPTX slide",
			Tag:         "extracted_from_ppt",
			Accepts:     []document.ContentType{document.PPTX},
			Handle:      handlePPTExtract,
		},
		{
			Name:        NodeEmailExtract,
			Description: "Extract headers, body and attachment list from an EML message",
			Tag:         "extracted_from_email",
			Accepts:     []document.ContentType{document.Email},
			Handle:      handleEmailExtract,
		},
		{
			Name:        NodeTextChunk,
			Description: "Split a text document into chunks",
			Tag:         "extracted_chunk",
			Accepts:     []document.ContentType{document.PlainText, document.Markdown, document.PDF},
			Handle:      handleTextChunk,

			ValidateConfig: validateChunkConfig,
		},
		{
			Name:        NodeChunkClean,
			Description: "Clean the chunks extracted from a document",
			Tag:         "clean_chunk",
			Handle:      handleChunkClean,
		},
		{
			Name:        NodeAudioTranscribe,
			Description: "Tag an audio file as transcribed (mock)",
			Handle:      handleAudioTranscribe,
		},
		{
			Name:        NodeAttachmentProcess,
			Description: "Tag an attachment as processed (mock)",
			Handle:      handleAttachmentProcess,
		},
	}
}

// 内置节点名称
const (
	NodePDFExtract        = "pdf-extract"
	NodePDFToImage        = "pdf-to-image"
	NodeDocExtract        = "doc-extract"
	NodePPTExtract        = "ppt-extract"
	NodeEmailExtract      = "email-extract"
	NodeTextChunk         = "text-chunk"
	NodeChunkClean        = "chunk-clean"
	NodeAudioTranscribe   = "audio-transcribe"
	NodeAttachmentProcess = "attachment-process"
)
