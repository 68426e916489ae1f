package pipeline

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/go-viper/mapstructure/v2"

	"github.com/fyerfyer/doc-pipeline/internal/document"
)

// ErrInvalidConfig 节点配置无法解析或校验失败
var ErrInvalidConfig = errors.New("invalid node config")

// NodeConfig 节点配置
// 所有节点共用一个结构，节点只读取自己关心的字段
type NodeConfig struct {
	// 分块
	ChunkingStrategy string `mapstructure:"chunking_strategy" json:"chunking_strategy"`
	ChunkSize        int    `mapstructure:"chunk_size" json:"chunk_size" validate:"gt=0"`
	ChunkOverlap     int    `mapstructure:"chunk_overlap" json:"chunk_overlap" validate:"gte=0"`

	// 提取
	ExtractImages      bool    `mapstructure:"extract_images" json:"extract_images"`
	MaxWorkers         int     `mapstructure:"max_workers" json:"max_workers" validate:"gte=0"`
	DPI                float64 `mapstructure:"dpi" json:"dpi" validate:"gte=0,lte=1200"`
	MaxImageWidth      int     `mapstructure:"max_image_width" json:"max_image_width" validate:"gte=0"`
	ExtractNotes       bool    `mapstructure:"extract_notes" json:"extract_notes"`
	ExtractTables      bool    `mapstructure:"extract_tables" json:"extract_tables"`
	ExtractHeaders     bool    `mapstructure:"extract_headers" json:"extract_headers"`
	ExtractAttachments bool    `mapstructure:"extract_attachments" json:"extract_attachments"`

	// 清洗
	Cleaner document.CleanerOptions `mapstructure:",squash" json:"cleaner"`

	// 转写和附件(模拟节点)
	Language            string  `mapstructure:"language" json:"language"`
	IncludeTimestamps   bool    `mapstructure:"include_timestamps" json:"include_timestamps"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" json:"confidence_threshold" validate:"gte=0,lte=1"`
	ProcessingMode      string  `mapstructure:"processing_mode" json:"processing_mode" validate:"omitempty,oneof=basic standard full"`
	SaveOriginal        bool    `mapstructure:"save_original" json:"save_original"`

	// RemotePath 输出文件的逻辑目录，作为元数据保存
	RemotePath string `mapstructure:"remote_path" json:"remote_path"`
}

// DefaultNodeConfig 返回默认节点配置
func DefaultNodeConfig() NodeConfig {
	split := document.DefaultSplitterConfig()
	return NodeConfig{
		ChunkingStrategy:    string(split.Strategy),
		ChunkSize:           split.ChunkSize,
		ChunkOverlap:        split.ChunkOverlap,
		DPI:                 document.DefaultRenderDPI,
		ExtractNotes:        true,
		ExtractTables:       true,
		ExtractHeaders:      true,
		ExtractAttachments:  true,
		Cleaner:             document.DefaultCleanerOptions(),
		Language:            "en",
		ConfidenceThreshold: 0.5,
		ProcessingMode:      "standard",
	}
}

var validate = validator.New()

// DecodeNodeConfig 在defaults基础上解码原始配置
// 未知的键会被拒绝；只指定chunk_size时，继承的重叠按默认比例缩小到分块大小以内
func DecodeNodeConfig(raw map[string]any, defaults NodeConfig) (NodeConfig, error) {
	cfg := defaults

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &cfg,
		ErrorUnused:      true,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return NodeConfig{}, fmt.Errorf("failed to create config decoder: %w", err)
	}
	if err := decoder.Decode(raw); err != nil {
		return NodeConfig{}, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if _, ok := raw["chunk_overlap"]; !ok && cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = scaledOverlap(cfg.ChunkSize, defaults)
	}

	if err := cfg.Validate(); err != nil {
		return NodeConfig{}, err
	}
	return cfg, nil
}

// scaledOverlap 按默认配置的重叠比例计算size对应的重叠
func scaledOverlap(size int, defaults NodeConfig) int {
	if size <= 0 || defaults.ChunkSize <= 0 {
		return 0
	}
	if overlap := size * defaults.ChunkOverlap / defaults.ChunkSize; overlap >= 0 && overlap < size {
		return overlap
	}
	return 0
}

// Validate 校验字段取值范围
func (c NodeConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// SplitterConfig 转换为分块器配置
func (c NodeConfig) SplitterConfig() document.SplitterConfig {
	return document.SplitterConfig{
		Strategy:     document.ParseStrategy(c.ChunkingStrategy),
		ChunkSize:    c.ChunkSize,
		ChunkOverlap: c.ChunkOverlap,
	}
}
