package document

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-pipeline/internal/batch"
	"github.com/fyerfyer/doc-pipeline/internal/resources"
)

// extractorOptions 按单元并发处理的提取器共用的配置
type extractorOptions struct {
	host       resources.HostResources
	hostSet    bool
	maxWorkers int
	batcher    *batch.Batcher
	logger     *logrus.Logger
}

// ExtractorOption 提取器配置选项
type ExtractorOption func(*extractorOptions)

// WithHost 指定主机资源快照，不指定时在每次提取前探测
func WithHost(host resources.HostResources) ExtractorOption {
	return func(o *extractorOptions) {
		o.host = host
		o.hostSet = true
	}
}

// WithMaxWorkers 设置worker数上限提示
func WithMaxWorkers(n int) ExtractorOption {
	return func(o *extractorOptions) {
		o.maxWorkers = n
	}
}

// WithBatcher 设置批处理器
func WithBatcher(b *batch.Batcher) ExtractorOption {
	return func(o *extractorOptions) {
		if b != nil {
			o.batcher = b
		}
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) ExtractorOption {
	return func(o *extractorOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

func newExtractorOptions(opts ...ExtractorOption) extractorOptions {
	o := extractorOptions{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = logrus.New()
	}
	if o.batcher == nil {
		o.batcher = batch.NewBatcher(batch.WithLogger(o.logger))
	}
	return o
}

// plan 生成批次计划，资源快照在计划前只取一次
func (o extractorOptions) plan(ctx context.Context, total int, kind resources.Workload) batch.Plan {
	host := o.host
	if !o.hostSet {
		detected, err := resources.Detect(ctx)
		if err != nil {
			o.logger.WithError(err).Warn("Failed to detect host resources, using minimum workers")
		}
		host = detected
	}

	p := batch.NewPlan(total, host, kind, o.maxWorkers)
	o.logger.WithFields(logrus.Fields{
		"units": total,
		"host":  host.String(),
		"kind":  kind.String(),
		"plan":  p.String(),
	}).Debug("Planned extraction")
	return p
}
