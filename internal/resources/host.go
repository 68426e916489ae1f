package resources

import (
	"context"
	"fmt"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
)

const bytesPerGB = 1024 * 1024 * 1024

// HostResources 主机资源快照
// 由调用方在一次调用开始时获取一次并显式传入，顾问本身不读取全局状态
type HostResources struct {
	CPUCores          int     // 物理核心数
	TotalMemoryGB     float64 // 总内存(GB)
	AvailableMemoryGB float64 // 可用内存(GB)
}

// Detect 读取当前主机的CPU和内存信息
func Detect(ctx context.Context) (HostResources, error) {
	cores, err := cpu.CountsWithContext(ctx, false)
	if err != nil || cores <= 0 {
		// 部分容器环境拿不到物理核心数
		cores = runtime.NumCPU()
	}

	vm, err := mem.VirtualMemoryWithContext(ctx)
	if err != nil {
		return HostResources{}, fmt.Errorf("failed to read memory stats: %w", err)
	}

	return HostResources{
		CPUCores:          cores,
		TotalMemoryGB:     float64(vm.Total) / bytesPerGB,
		AvailableMemoryGB: float64(vm.Available) / bytesPerGB,
	}, nil
}

// String 便于日志输出
func (h HostResources) String() string {
	return fmt.Sprintf("cpu=%d total=%.1fGB available=%.1fGB", h.CPUCores, h.TotalMemoryGB, h.AvailableMemoryGB)
}
