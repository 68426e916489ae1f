package taskqueue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupRedisTest 启动miniredis并创建队列
func setupRedisTest(t *testing.T) *RedisQueue {
	t.Helper()
	mr := miniredis.RunT(t)

	logger, _ := logtest.NewNullLogger()
	queue, err := NewRedisQueue(&Config{
		RedisAddr:   mr.Addr(),
		Concurrency: 2,
		RetryLimit:  2,
		RetryDelay:  time.Second,
		Logger:      logger,
	})
	require.NoError(t, err)
	t.Cleanup(func() { queue.Close() })
	return queue
}

func TestNewRedisQueue(t *testing.T) {
	queue := setupRedisTest(t)
	assert.NotNil(t, queue)

	_, err := NewRedisQueue(&Config{RedisAddr: "127.0.0.1:1"})
	assert.Error(t, err)

	_, err = NewQueue("kafka", nil)
	assert.ErrorContains(t, err, "unknown queue implementation")
}

func TestRedisQueue_Enqueue(t *testing.T) {
	queue := setupRedisTest(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, "text-chunk", "item-1", map[string]any{"chunk_size": 500})
	require.NoError(t, err)
	assert.NotEmpty(t, taskID)

	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, taskID, task.ID)
	assert.Equal(t, TaskType("node:text-chunk"), task.Type)
	assert.Equal(t, "text-chunk", task.Node())
	assert.Equal(t, "item-1", task.ItemID)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, 2, task.MaxRetries)

	cfg, err := task.Config()
	require.NoError(t, err)
	assert.Equal(t, float64(500), cfg["chunk_size"])

	delayedID, err := queue.EnqueueIn(ctx, "pdf-extract", "item-1", nil, time.Minute)
	require.NoError(t, err)
	delayed, err := queue.GetTask(ctx, delayedID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, delayed.Status)
	cfg, err = delayed.Config()
	require.NoError(t, err)
	assert.Empty(t, cfg)

	_, err = queue.GetTask(ctx, "missing")
	assert.ErrorIs(t, err, ErrTaskNotFound)
}

func TestRedisQueue_GetTasksByItem(t *testing.T) {
	queue := setupRedisTest(t)
	ctx := context.Background()

	nodes := []string{"pdf-extract", "pdf-to-image", "text-chunk"}
	for _, node := range nodes {
		_, err := queue.Enqueue(ctx, node, "item-2", nil)
		require.NoError(t, err)
	}
	_, err := queue.Enqueue(ctx, "doc-extract", "other", nil)
	require.NoError(t, err)

	tasks, err := queue.GetTasksByItem(ctx, "item-2")
	require.NoError(t, err)
	var got []string
	for _, task := range tasks {
		got = append(got, task.Node())
		assert.Equal(t, "item-2", task.ItemID)
	}
	assert.ElementsMatch(t, nodes, got)

	empty, err := queue.GetTasksByItem(ctx, "non-existent")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestRedisQueue_UpdateTaskStatus(t *testing.T) {
	queue := setupRedisTest(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, "pdf-extract", "item-3", nil)
	require.NoError(t, err)

	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""))
	task, err := queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusProcessing, task.Status)
	assert.NotNil(t, task.StartedAt)
	assert.Equal(t, 1, task.Attempts)

	// 重试后成功，清除上一次的错误
	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusPending, nil, "temporary"))
	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusProcessing, nil, ""))
	require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, map[string]int{"outputs": 3}, ""))

	task, err = queue.GetTask(ctx, taskID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 2, task.Attempts)
	assert.NotNil(t, task.CompletedAt)
	assert.Empty(t, task.Error)
	assert.JSONEq(t, `{"outputs":3}`, string(task.Result))

	failID, err := queue.Enqueue(ctx, "pdf-extract", "item-3", nil)
	require.NoError(t, err)
	require.NoError(t, queue.UpdateTaskStatus(ctx, failID, StatusFailed, nil, "broken pdf"))
	failed, err := queue.GetTask(ctx, failID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "broken pdf", failed.Error)
	assert.NotNil(t, failed.CompletedAt)

	assert.ErrorIs(t, queue.UpdateTaskStatus(ctx, "missing", StatusFailed, nil, ""), ErrTaskNotFound)
}

func TestRedisQueue_DeleteTask(t *testing.T) {
	queue := setupRedisTest(t)
	ctx := context.Background()

	taskID, err := queue.Enqueue(ctx, "doc-extract", "item-4", nil)
	require.NoError(t, err)

	tasks, err := queue.GetTasksByItem(ctx, "item-4")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)

	require.NoError(t, queue.DeleteTask(ctx, taskID))

	_, err = queue.GetTask(ctx, taskID)
	assert.ErrorIs(t, err, ErrTaskNotFound)

	tasks, err = queue.GetTasksByItem(ctx, "item-4")
	require.NoError(t, err)
	assert.Empty(t, tasks)

	assert.ErrorIs(t, queue.DeleteTask(ctx, taskID), ErrTaskNotFound)
}

func TestRedisQueue_WaitForTask(t *testing.T) {
	queue := setupRedisTest(t)
	ctx := context.Background()

	t.Run("notified", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, "text-chunk", "item-5", nil)
		require.NoError(t, err)

		go func() {
			time.Sleep(50 * time.Millisecond)
			_ = queue.UpdateTaskStatus(ctx, taskID, StatusCompleted, map[string]int{"chunks": 4}, "")
			_ = queue.NotifyTaskUpdate(ctx, taskID)
		}()

		task, err := queue.WaitForTask(ctx, taskID, 5*time.Second)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
		assert.JSONEq(t, `{"chunks":4}`, string(task.Result))
	})

	t.Run("already done", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, "text-chunk", "item-5", nil)
		require.NoError(t, err)
		require.NoError(t, queue.UpdateTaskStatus(ctx, taskID, StatusFailed, nil, "boom"))

		task, err := queue.WaitForTask(ctx, taskID, 0)
		require.NoError(t, err)
		assert.Equal(t, "boom", task.Error)
	})

	t.Run("timeout", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, "text-chunk", "item-5", nil)
		require.NoError(t, err)

		_, err = queue.WaitForTask(ctx, taskID, 50*time.Millisecond)
		assert.ErrorIs(t, err, ErrTaskTimeout)
	})
}

// newTestWorker 创建不启动asynq服务的worker，直接调用处理函数
func newTestWorker(queue *RedisQueue) *RedisWorker {
	return &RedisWorker{
		queue:    queue,
		handlers: make(map[TaskType]Handler),
		logger:   queue.logger,
	}
}

func TestRedisWorker_Handle(t *testing.T) {
	queue := setupRedisTest(t)
	worker := newTestWorker(queue)
	ctx := context.Background()

	t.Run("completed", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, "text-chunk", "item-6", map[string]any{"chunk_size": 100})
		require.NoError(t, err)

		var seen *Task
		h := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			seen = task
			return map[string]int{"outputs": 2}, nil
		})
		require.NoError(t, worker.handle(h)(ctx, asynq.NewTask(string(NodeTaskType("text-chunk")), []byte(taskID))))

		require.NotNil(t, seen)
		assert.Equal(t, "item-6", seen.ItemID)

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusCompleted, task.Status)
		assert.Equal(t, 1, task.Attempts)
		assert.NotNil(t, task.StartedAt)
		assert.JSONEq(t, `{"outputs":2}`, string(task.Result))
	})

	t.Run("failed", func(t *testing.T) {
		taskID, err := queue.Enqueue(ctx, "pdf-extract", "item-6", nil)
		require.NoError(t, err)

		h := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			return nil, SkipRetry(errors.New("unsupported content type"))
		})
		err = worker.handle(h)(ctx, asynq.NewTask(string(NodeTaskType("pdf-extract")), []byte(taskID)))
		assert.ErrorIs(t, err, asynq.SkipRetry)

		task, err := queue.GetTask(ctx, taskID)
		require.NoError(t, err)
		assert.Equal(t, StatusFailed, task.Status)
		assert.Equal(t, "unsupported content type", task.Error)
	})

	t.Run("missing record", func(t *testing.T) {
		h := HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
			t.Fatal("handler should not run")
			return nil, nil
		})
		err := worker.handle(h)(ctx, asynq.NewTask("node:text-chunk", []byte("gone")))
		assert.ErrorIs(t, err, ErrTaskNotFound)
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestRedisWorker_RegisterHandler(t *testing.T) {
	queue := setupRedisTest(t)
	worker := newTestWorker(queue)
	worker.RegisterHandler("audio-transcribe", HandlerFunc(func(ctx context.Context, task *Task) (interface{}, error) {
		return nil, nil
	}))
	_, ok := worker.handlers[TaskType("node:audio-transcribe")]
	assert.True(t, ok)
}

func TestSkipRetry(t *testing.T) {
	assert.NoError(t, SkipRetry(nil))

	base := errors.New("bad config")
	err := SkipRetry(base)
	assert.Equal(t, "bad config", err.Error())
	assert.ErrorIs(t, err, base)
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestTaskInfo(t *testing.T) {
	now := time.Now()
	completedAt := now.Add(-time.Minute)
	task := &Task{
		ID:          "task-123",
		Type:        NodeTaskType("ppt-extract"),
		ItemID:      "item-7",
		Status:      StatusCompleted,
		Result:      json.RawMessage(`{"slides":3}`),
		CreatedAt:   now.Add(-10 * time.Minute),
		CompletedAt: &completedAt,
		Attempts:    1,
	}

	info := NewTaskInfo(task)
	assert.Equal(t, "ppt-extract", info.Node)
	assert.Equal(t, "item-7", info.ItemID)
	assert.Equal(t, StatusCompleted, info.Status)
	assert.Equal(t, task.Result, info.Result)
	assert.Equal(t, &completedAt, info.CompletedAt)
	assert.True(t, info.Status.Done())
	assert.False(t, StatusProcessing.Done())
}

// 确保日志器类型满足asynq的Logger接口
var _ asynq.Logger = (*logrus.Logger)(nil)
