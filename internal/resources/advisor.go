package resources

// Workload 描述单元任务的负载类型，决定使用哪一套并发上限
type Workload int

const (
	// IOBound I/O或轻量CPU任务（文本抽取），对应线程池上限
	IOBound Workload = iota
	// CPUBound CPU密集任务（页面渲染、图像编码），对应进程池上限
	CPUBound
)

// String 返回负载类型名称
func (w Workload) String() string {
	switch w {
	case CPUBound:
		return "cpu-bound"
	default:
		return "io-bound"
	}
}

const (
	// MinWorkers 任何主机上的最小并发数
	MinWorkers = 2
	// MaxThreadWorkers 线程池并发上限
	MaxThreadWorkers = 32
	// MaxProcessWorkers 进程池并发上限
	MaxProcessWorkers = 8

	// 每个线程worker占用1GB内存预算，每个进程worker占用4GB
	threadMemoryGBPerWorker  = 1
	processMemoryGBPerWorker = 4
)

// WorkerCount 根据主机快照计算安全的并发数
// 纯函数：相同输入总是得到相同结果
func WorkerCount(host HostResources, kind Workload) int {
	var cpuWorkers, memWorkers int

	switch kind {
	case CPUBound:
		cpuWorkers = max(MinWorkers, min(host.CPUCores/2, MaxProcessWorkers))
		memWorkers = max(MinWorkers, int(host.TotalMemoryGB/processMemoryGBPerWorker))
	default:
		cpuWorkers = max(MinWorkers, min(host.CPUCores, MaxThreadWorkers))
		memWorkers = max(MinWorkers, int(host.TotalMemoryGB/threadMemoryGBPerWorker))
	}

	return min(cpuWorkers, memWorkers)
}

// Advise 在WorkerCount的基础上应用调用方的max_workers提示
// 提示只能降低并发数，不能突破上限，也不能低于MinWorkers
func Advise(host HostResources, kind Workload, hint int) int {
	workers := WorkerCount(host, kind)
	if hint > 0 && hint < workers {
		workers = max(MinWorkers, hint)
	}
	return workers
}
