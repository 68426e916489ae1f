package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-pipeline/internal/batch"
	"github.com/fyerfyer/doc-pipeline/internal/document"
	"github.com/fyerfyer/doc-pipeline/internal/resources"
	"github.com/fyerfyer/doc-pipeline/pkg/storage"
)

// Failure 单元失败信息
type Failure struct {
	Unit  int    `json:"unit"` // 从1开始
	Error string `json:"error"`
}

// RunResult 一次节点执行的结果
type RunResult struct {
	Node     string             `json:"node"`
	ItemID   string             `json:"item_id"`
	Outputs  []storage.FileInfo `json:"outputs"`
	Failures []Failure          `json:"failures,omitempty"`
	Metadata map[string]string  `json:"metadata,omitempty"`
	Duration time.Duration      `json:"duration"`
}

// Run 一次节点执行的上下文，只在处理函数执行期间有效
type Run struct {
	Item     storage.FileInfo
	Source   document.Source
	Config   NodeConfig
	Metadata map[string]string // 节点对输入文件打的标记

	store    storage.Storage
	batcher  *batch.Batcher
	host     *resources.HostResources
	speller  *document.Speller
	extract  []document.ExtractorOption
	logger   *logrus.Entry
	outputs  []Output
	failures []Failure
}

// Emit 提交一个输出文件，上传顺序与提交顺序一致
func (r *Run) Emit(out Output) {
	r.outputs = append(r.outputs, out)
}

// Logger 带节点和文件信息的日志记录器
func (r *Run) Logger() *logrus.Entry {
	return r.logger
}

// ExtractorOptions 按节点配置生成的提取器选项
func (r *Run) ExtractorOptions() []document.ExtractorOption {
	return r.extract
}

// Storage 返回存储，供需要读取其他文件的节点使用
func (r *Run) Storage() storage.Storage {
	return r.store
}

// ForEach 以IO密集计划并发处理total个单元
func (r *Run) ForEach(ctx context.Context, total int, fn batch.UnitFunc) (*batch.Result, error) {
	var host resources.HostResources
	if r.host != nil {
		host = *r.host
	} else {
		detected, err := resources.Detect(ctx)
		if err != nil {
			r.logger.WithError(err).Warn("Failed to detect host resources, using minimum workers")
		}
		host = detected
	}

	plan := batch.NewPlan(total, host, resources.IOBound, r.Config.MaxWorkers)
	result, err := r.batcher.Run(ctx, plan, total, fn)
	if result != nil {
		r.recordFailures(result)
	}
	return result, err
}

// recordFailures 记录批处理中失败的单元
func (r *Run) recordFailures(result *batch.Result) {
	for _, f := range result.Failures {
		r.failures = append(r.failures, Failure{Unit: f.Index + 1, Error: f.Err.Error()})
	}
}

// Runner 节点执行器
type Runner struct {
	registry    *Registry
	store       storage.Storage
	uploader    *Uploader
	defaults    NodeConfig
	host        *resources.HostResources
	unitTimeout time.Duration
	tempDir     string
	speller     *document.Speller
	logger      *logrus.Logger
}

// RunnerOption 执行器配置选项
type RunnerOption func(*Runner)

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithUploader 设置上传器，默认不限速
func WithUploader(u *Uploader) RunnerOption {
	return func(r *Runner) {
		r.uploader = u
	}
}

// WithDefaults 设置节点配置默认值
func WithDefaults(cfg NodeConfig) RunnerOption {
	return func(r *Runner) {
		r.defaults = cfg
	}
}

// WithHost 固定主机资源快照，不设置时每次执行前探测
func WithHost(host resources.HostResources) RunnerOption {
	return func(r *Runner) {
		r.host = &host
	}
}

// WithUnitTimeout 设置单元处理时限
func WithUnitTimeout(timeout time.Duration) RunnerOption {
	return func(r *Runner) {
		r.unitTimeout = timeout
	}
}

// WithSpeller 设置chunk-clean拼写纠正使用的模型
func WithSpeller(s *document.Speller) RunnerOption {
	return func(r *Runner) {
		r.speller = s
	}
}

// WithTempDir 设置临时目录的父目录
func WithTempDir(dir string) RunnerOption {
	return func(r *Runner) {
		r.tempDir = dir
	}
}

// NewRunner 创建节点执行器
func NewRunner(registry *Registry, store storage.Storage, opts ...RunnerOption) *Runner {
	r := &Runner{
		registry:    registry,
		store:       store,
		defaults:    DefaultNodeConfig(),
		unitTimeout: batch.DefaultUnitTimeout,
		logger:      logrus.New(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.uploader == nil {
		r.uploader = NewUploader(store, 0, 1, r.logger)
	}
	return r
}

// Registry 返回节点注册表
func (r *Runner) Registry() *Registry {
	return r.registry
}

// Run 对一个已存储的文件执行节点
// 流程：解析配置，下载到临时目录，执行节点，按顺序上传输出
func (r *Runner) Run(ctx context.Context, nodeName, itemID string, raw map[string]any) (*RunResult, error) {
	start := time.Now()

	node, cfg, err := r.prepare(nodeName, raw)
	if err != nil {
		return nil, err
	}

	item, err := r.store.Stat(ctx, itemID)
	if err != nil {
		return nil, fmt.Errorf("failed to get item %s: %w", itemID, err)
	}

	log := r.logger.WithFields(logrus.Fields{
		"node":    node.Name,
		"item_id": item.ID,
		"file":    item.Name,
	})

	dir, err := os.MkdirTemp(r.tempDir, "doc-pipeline-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	localPath, err := r.download(ctx, item, dir)
	if err != nil {
		return nil, err
	}

	src, err := document.OpenSource(localPath)
	if err != nil {
		return nil, err
	}
	if err := node.CheckInput(src.Name); err != nil {
		return nil, err
	}

	b := r.newBatcher(log)
	run := &Run{
		Item:     item,
		Source:   src,
		Config:   cfg,
		Metadata: map[string]string{},
		store:    r.store,
		batcher:  b,
		host:     r.host,
		speller:  r.speller,
		extract:  r.extractorOptions(cfg, b),
		logger:   log,
	}

	log.Info("Running node")
	if err := node.Handle(ctx, run); err != nil {
		log.WithError(err).Error("Node failed")
		return nil, fmt.Errorf("node %s failed on %s: %w", node.Name, item.Name, err)
	}

	base := map[string]string{storage.MetaOriginalItemID: item.ID}
	if node.Tag != "" {
		base[node.Tag] = "true"
	}
	if cfg.RemotePath != "" {
		base["remote_path"] = cfg.RemotePath
	}

	outputs, err := r.uploader.Upload(ctx, run.outputs, base)
	if err != nil {
		log.WithError(err).Error("Failed to upload outputs")
		return nil, err
	}

	result := &RunResult{
		Node:     node.Name,
		ItemID:   item.ID,
		Outputs:  outputs,
		Failures: run.failures,
		Metadata: run.Metadata,
		Duration: time.Since(start),
	}

	log.WithFields(logrus.Fields{
		"outputs":  len(outputs),
		"failures": len(run.failures),
		"duration": result.Duration.String(),
	}).Info("Node completed")
	return result, nil
}

// Validate 检查节点、配置和输入文件类型，不执行节点
func (r *Runner) Validate(ctx context.Context, nodeName, itemID string, raw map[string]any) error {
	node, _, err := r.prepare(nodeName, raw)
	if err != nil {
		return err
	}
	item, err := r.store.Stat(ctx, itemID)
	if err != nil {
		return fmt.Errorf("failed to get item %s: %w", itemID, err)
	}
	return node.CheckInput(item.Name)
}

// prepare 查找节点并解码、校验配置
func (r *Runner) prepare(nodeName string, raw map[string]any) (Node, NodeConfig, error) {
	node, err := r.registry.Get(nodeName)
	if err != nil {
		return Node{}, NodeConfig{}, err
	}
	cfg, err := DecodeNodeConfig(raw, r.defaults)
	if err != nil {
		return Node{}, NodeConfig{}, err
	}
	if err := node.CheckConfig(cfg); err != nil {
		return Node{}, NodeConfig{}, err
	}
	if node.Name == NodeChunkClean && cfg.Cleaner.CorrectSpelling && r.speller == nil {
		return Node{}, NodeConfig{}, fmt.Errorf("%w: to_correct_spelling requires a spelling corpus", ErrInvalidConfig)
	}
	return node, cfg, nil
}

// download 将文件保存到临时目录，保留原文件名以便按扩展名识别类型
func (r *Runner) download(ctx context.Context, item storage.FileInfo, dir string) (string, error) {
	name := filepath.Base(item.Name)
	if name == "." || name == string(filepath.Separator) {
		name = item.ID
	}
	localPath := filepath.Join(dir, name)

	rc, err := r.store.Get(ctx, item.ID)
	if err != nil {
		return "", fmt.Errorf("failed to download item %s: %w", item.ID, err)
	}
	defer rc.Close()

	f, err := os.Create(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to create local file: %w", err)
	}
	defer f.Close()

	if _, err := io.Copy(f, rc); err != nil {
		return "", fmt.Errorf("failed to download item %s: %w", item.ID, err)
	}
	return localPath, nil
}

func (r *Runner) newBatcher(log *logrus.Entry) *batch.Batcher {
	return batch.NewBatcher(
		batch.WithLogger(r.logger),
		batch.WithUnitTimeout(r.unitTimeout),
		batch.WithProgress(func(batchNum, processed, total int) {
			log.WithFields(logrus.Fields{
				"batch":     batchNum,
				"processed": processed,
				"total":     total,
			}).Debug("Node progress")
		}),
	)
}

func (r *Runner) extractorOptions(cfg NodeConfig, b *batch.Batcher) []document.ExtractorOption {
	opts := []document.ExtractorOption{
		document.WithLogger(r.logger),
		document.WithBatcher(b),
		document.WithMaxWorkers(cfg.MaxWorkers),
	}
	if r.host != nil {
		opts = append(opts, document.WithHost(*r.host))
	}
	return opts
}

// IsPermanent 错误是否与输入或配置有关，重新执行也不会成功
func IsPermanent(err error) bool {
	return errors.Is(err, ErrUnknownNode) ||
		errors.Is(err, ErrInvalidConfig) ||
		errors.Is(err, document.ErrUnsupportedType) ||
		errors.Is(err, document.ErrOpenSource) ||
		errors.Is(err, document.ErrNoText) ||
		errors.Is(err, document.ErrInvalidChunkConfig) ||
		errors.Is(err, storage.ErrNotFound)
}
