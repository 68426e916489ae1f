package batch

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fyerfyer/doc-pipeline/internal/resources"
)

// TestBatchSize 测试批大小分档
func TestBatchSize(t *testing.T) {
	tests := []struct {
		name      string
		total     int
		available float64
		expected  int
	}{
		{"empty", 0, 16, 0},
		{"single unit", 1, 16, 1},
		{"small document", 20, 2, 20},
		{"large memory lower bound", 30, 16, 20},
		{"large memory half", 100, 16, 50},
		{"large memory upper bound", 1000, 16, 100},
		{"medium memory lower bound", 30, 6, 10},
		{"medium memory quarter", 120, 6, 30},
		{"medium memory upper bound", 1000, 6, 50},
		{"low memory lower bound", 30, 2, 5},
		{"low memory eighth", 160, 2, 20},
		{"low memory upper bound", 1000, 2, 25},
		{"boundary 8GB is medium", 1000, 8, 50},
		{"boundary 4GB is low", 1000, 4, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, BatchSize(tt.total, tt.available))
		})
	}
}

// TestNewPlan 测试批次计划生成
func TestNewPlan(t *testing.T) {
	host := resources.HostResources{CPUCores: 16, TotalMemoryGB: 64, AvailableMemoryGB: 32}

	t.Run("tiny document runs sequentially", func(t *testing.T) {
		plan := NewPlan(5, host, resources.IOBound, 0)
		assert.Equal(t, Plan{BatchSize: 5, Workers: 1, Mode: ModeSequential}, plan)
	})

	t.Run("small document is one batch", func(t *testing.T) {
		plan := NewPlan(12, host, resources.IOBound, 0)
		assert.Equal(t, ModeThreadPool, plan.Mode)
		assert.Equal(t, 12, plan.BatchSize)
		assert.Equal(t, 16, plan.Workers)
	})

	t.Run("cpu bound uses process pool", func(t *testing.T) {
		plan := NewPlan(200, host, resources.CPUBound, 0)
		assert.Equal(t, ModeProcessPool, plan.Mode)
		assert.Equal(t, 100, plan.BatchSize)
		assert.Equal(t, 8, plan.Workers)
	})

	t.Run("hint lowers workers", func(t *testing.T) {
		plan := NewPlan(200, host, resources.IOBound, 3)
		assert.Equal(t, 3, plan.Workers)
	})

	t.Run("hint never raises workers", func(t *testing.T) {
		plan := NewPlan(200, host, resources.CPUBound, 64)
		assert.Equal(t, 8, plan.Workers)
	})

	t.Run("batch size never exceeds total", func(t *testing.T) {
		for total := 1; total <= 500; total++ {
			plan := NewPlan(total, host, resources.IOBound, 0)
			assert.LessOrEqual(t, plan.BatchSize, total)
			assert.GreaterOrEqual(t, plan.BatchSize, 1)
		}
	})
}

func TestPlanNormalize(t *testing.T) {
	plan := Plan{BatchSize: 0, Workers: 0}.normalize(7)
	assert.Equal(t, 7, plan.BatchSize)
	assert.Equal(t, 1, plan.Workers)
	assert.Equal(t, ModeThreadPool, plan.Mode)

	plan = Plan{BatchSize: 3, Workers: 50, Mode: ModeProcessPool}.normalize(7)
	assert.Equal(t, resources.MaxProcessWorkers, plan.Workers)

	plan = Plan{BatchSize: 3, Workers: 4, Mode: ModeSequential}.normalize(7)
	assert.Equal(t, 1, plan.Workers)
}

func hostForTest() resources.HostResources {
	return resources.HostResources{CPUCores: 4, TotalMemoryGB: 8, AvailableMemoryGB: 4}
}
