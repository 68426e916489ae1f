package batch

import (
	"fmt"

	"github.com/fyerfyer/doc-pipeline/internal/resources"
)

// Mode 执行模式
type Mode string

const (
	// ModeSequential 在调用方goroutine中逐个处理，没有池开销
	ModeSequential Mode = "sequential"
	// ModeThreadPool I/O或轻量CPU任务使用的并发池
	ModeThreadPool Mode = "thread-pool"
	// ModeProcessPool CPU密集任务使用的并发池，受进程worker上限约束
	ModeProcessPool Mode = "process-pool"
)

const (
	// SequentialUnits 不超过该单元数时不创建并发池
	SequentialUnits = 5
	// SmallDocumentUnits 不超过该单元数时整个文档作为一个批次
	SmallDocumentUnits = 20
)

// Plan 一次文档处理的批次计划，计算后不可变
type Plan struct {
	BatchSize int  // 每批单元数
	Workers   int  // 批内并发数
	Mode      Mode // 执行模式
}

// String 便于日志输出
func (p Plan) String() string {
	return fmt.Sprintf("mode=%s batch_size=%d workers=%d", p.Mode, p.BatchSize, p.Workers)
}

// BatchSize 根据单元总数和可用内存选择批大小
// 可用内存越大批次越大，但始终有上下界
func BatchSize(total int, availableMemoryGB float64) int {
	if total <= 0 {
		return 0
	}
	if total <= SmallDocumentUnits {
		return total
	}

	var size int
	switch {
	case availableMemoryGB > 8:
		size = min(100, max(20, total/2))
	case availableMemoryGB > 4:
		size = min(50, max(10, total/4))
	default:
		size = min(25, max(5, total/8))
	}
	return min(size, total)
}

// NewPlan 根据单元总数、主机快照和负载类型生成批次计划
// hint为调用方的max_workers提示，<=0表示不限制
func NewPlan(total int, host resources.HostResources, kind resources.Workload, hint int) Plan {
	if total <= SequentialUnits {
		return Plan{
			BatchSize: max(total, 1),
			Workers:   1,
			Mode:      ModeSequential,
		}
	}

	mode := ModeThreadPool
	if kind == resources.CPUBound {
		mode = ModeProcessPool
	}

	return Plan{
		BatchSize: BatchSize(total, host.AvailableMemoryGB),
		Workers:   resources.Advise(host, kind, hint),
		Mode:      mode,
	}
}

// normalize 修正手工构造的计划中的非法值
func (p Plan) normalize(total int) Plan {
	if p.BatchSize <= 0 || p.BatchSize > total {
		p.BatchSize = total
	}
	if p.Mode == "" {
		p.Mode = ModeThreadPool
	}
	if p.Mode == ModeSequential || p.Workers <= 0 {
		p.Workers = 1
	}
	if p.Mode == ModeProcessPool && p.Workers > resources.MaxProcessWorkers {
		p.Workers = resources.MaxProcessWorkers
	}
	return p
}
