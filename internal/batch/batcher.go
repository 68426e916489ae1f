package batch

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// DefaultUnitTimeout 单个单元的默认处理时限
const DefaultUnitTimeout = 5 * time.Minute

var (
	// ErrAllUnitsFailed 所有单元都处理失败
	ErrAllUnitsFailed = errors.New("all units failed")
	// ErrUnitTimeout 单元处理超时
	ErrUnitTimeout = errors.New("unit timed out")
)

// Blob 单元产生的二进制载荷
type Blob struct {
	Ext  string // 文件扩展名，不含点
	Data []byte
}

// Payload 单元处理结果
type Payload struct {
	Text  string
	Blobs []Blob
}

// Unit 成功处理的单元
type Unit struct {
	Index int // 单元在源文档中的序号，从0开始
	Payload
}

// UnitError 单元失败记录
type UnitError struct {
	Index int
	Err   error
}

// Error 实现error接口
func (e UnitError) Error() string {
	return fmt.Sprintf("unit %d: %v", e.Index, e.Err)
}

// Unwrap 返回底层错误
func (e UnitError) Unwrap() error {
	return e.Err
}

// UnitFunc 处理单个单元的函数
// 同一批次内会被并发调用，实现只能只读访问共享资源
// 实现必须在ctx结束后尽快返回：超时的单元立即记为失败并让出并发名额，
// 不理会ctx的实现会在后台继续运行，此时实际并发数和内存占用可能超过计划
type UnitFunc func(ctx context.Context, index int) (Payload, error)

// ProgressFunc 每个批次完成后的进度回调
type ProgressFunc func(batchNum, processed, total int)

// Result 批处理结果
type Result struct {
	Plan     Plan
	Total    int         // 单元总数
	Units    []Unit      // 成功的单元，按Index升序
	Failures []UnitError // 失败的单元，按Index升序
}

// Batcher 自适应批处理器
type Batcher struct {
	timeout  time.Duration
	progress ProgressFunc
	logger   *logrus.Logger
}

// Option 批处理器配置选项
type Option func(*Batcher)

// WithUnitTimeout 设置单元处理时限
func WithUnitTimeout(timeout time.Duration) Option {
	return func(b *Batcher) {
		if timeout > 0 {
			b.timeout = timeout
		}
	}
}

// WithProgress 设置进度回调
func WithProgress(fn ProgressFunc) Option {
	return func(b *Batcher) {
		b.progress = fn
	}
}

// WithLogger 设置日志记录器
func WithLogger(logger *logrus.Logger) Option {
	return func(b *Batcher) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// NewBatcher 创建批处理器
func NewBatcher(opts ...Option) *Batcher {
	b := &Batcher{
		timeout: DefaultUnitTimeout,
		logger:  logrus.New(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Run 按计划分批处理total个单元
// 单元失败只记录并跳过；全部失败时返回ErrAllUnitsFailed
// 输出顺序始终与单元序号一致，与完成顺序无关
func (b *Batcher) Run(ctx context.Context, plan Plan, total int, fn UnitFunc) (*Result, error) {
	if total <= 0 {
		return &Result{Plan: plan}, nil
	}

	plan = plan.normalize(total)
	result := &Result{
		Plan:  plan,
		Total: total,
		Units: make([]Unit, 0, total),
	}

	start := time.Now()
	b.logger.WithFields(logrus.Fields{
		"total":      total,
		"mode":       plan.Mode,
		"batch_size": plan.BatchSize,
		"workers":    plan.Workers,
	}).Info("Starting batch processing")

	batchNum := 0
	for from := 0; from < total; from += plan.BatchSize {
		to := min(from+plan.BatchSize, total)
		batchNum++

		units, failures := b.runBatch(ctx, plan, from, to, fn)
		result.Units = append(result.Units, units...)
		result.Failures = append(result.Failures, failures...)

		b.logger.WithFields(logrus.Fields{
			"batch":     batchNum,
			"processed": len(result.Units),
			"failed":    len(result.Failures),
			"total":     total,
		}).Info("Processed batch")

		if b.progress != nil {
			b.progress(batchNum, len(result.Units)+len(result.Failures), total)
		}
	}

	elapsed := time.Since(start)
	b.logger.WithFields(logrus.Fields{
		"succeeded": len(result.Units),
		"failed":    len(result.Failures),
		"elapsed":   elapsed.String(),
	}).Info("Batch processing finished")

	if len(result.Units) == 0 {
		return result, fmt.Errorf("%w: %d of %d units failed", ErrAllUnitsFailed, len(result.Failures), total)
	}
	return result, nil
}

// runBatch 处理[from, to)区间的单元，等待全部完成或超时后返回
// 批内缓冲只在本函数作用域内存活
func (b *Batcher) runBatch(ctx context.Context, plan Plan, from, to int, fn UnitFunc) ([]Unit, []UnitError) {
	var (
		mu       sync.Mutex
		units    = make([]Unit, 0, to-from)
		failures []UnitError
	)

	collect := func(index int) {
		payload, err := b.runUnit(ctx, index, fn)

		mu.Lock()
		defer mu.Unlock()
		if err != nil {
			failures = append(failures, UnitError{Index: index, Err: err})
			return
		}
		units = append(units, Unit{Index: index, Payload: payload})
	}

	if plan.Mode == ModeSequential {
		for i := from; i < to; i++ {
			collect(i)
		}
	} else {
		var g errgroup.Group
		g.SetLimit(plan.Workers)
		for i := from; i < to; i++ {
			index := i
			g.Go(func() error {
				collect(index)
				return nil
			})
		}
		_ = g.Wait()
	}

	// 完成顺序不能影响输出顺序
	slices.SortFunc(units, func(a, b Unit) int { return a.Index - b.Index })
	slices.SortFunc(failures, func(a, b UnitError) int { return a.Index - b.Index })

	for _, f := range failures {
		b.logger.WithFields(logrus.Fields{
			"unit":  f.Index + 1,
			"error": f.Err.Error(),
		}).Warn("Skipping unit due to error")
	}

	return units, failures
}

type unitOutcome struct {
	payload Payload
	err     error
}

// runUnit 在时限内执行单个单元，panic和超时都视为单元失败
func (b *Batcher) runUnit(ctx context.Context, index int, fn UnitFunc) (Payload, error) {
	uctx, cancel := context.WithTimeout(ctx, b.timeout)
	defer cancel()

	// 缓冲为1，超时后迟到的结果不会阻塞工作goroutine
	done := make(chan unitOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- unitOutcome{err: fmt.Errorf("panic: %v", r)}
			}
		}()
		payload, err := fn(uctx, index)
		done <- unitOutcome{payload: payload, err: err}
	}()

	select {
	case out := <-done:
		return out.payload, out.err
	case <-uctx.Done():
		if errors.Is(uctx.Err(), context.DeadlineExceeded) {
			b.logger.WithField("unit", index+1).Warn("Unit timed out, abandoning its worker")
			return Payload{}, fmt.Errorf("%w after %s", ErrUnitTimeout, b.timeout)
		}
		return Payload{}, uctx.Err()
	}
}
