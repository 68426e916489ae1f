package pipeline

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-pipeline/pkg/storage"
	"github.com/fyerfyer/doc-pipeline/pkg/taskqueue"
)

// recordingWorker 记录注册的节点
type recordingWorker struct {
	nodes []string
}

func (w *recordingWorker) RegisterHandler(node string, _ taskqueue.Handler) {
	w.nodes = append(w.nodes, node)
}

func (w *recordingWorker) Start() error { return nil }

func (w *recordingWorker) Stop() {}

func TestRunnerTaskHandler(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	item := env.save(t, "notes.txt", []byte("hello world"))
	h := env.runner.TaskHandler()

	t.Run("runs node", func(t *testing.T) {
		task := &taskqueue.Task{
			ID:      "task-1",
			Type:    taskqueue.NodeTaskType(NodeTextChunk),
			ItemID:  item.ID,
			Payload: json.RawMessage(`{"chunking_strategy":"fixed-size","chunk_size":5,"chunk_overlap":0}`),
		}
		out, err := h.ProcessTask(ctx, task)
		require.NoError(t, err)

		result, ok := out.(*RunResult)
		require.True(t, ok)
		assert.Equal(t, []string{"notes-0.txt", "notes-1.txt", "notes-2.txt"}, outputNames(result))
	})

	t.Run("permanent errors skip retry", func(t *testing.T) {
		task := &taskqueue.Task{
			Type:   taskqueue.NodeTaskType(NodeTextChunk),
			ItemID: "00000000-0000-0000-0000-000000000000",
		}
		out, err := h.ProcessTask(ctx, task)
		assert.Nil(t, out)
		assert.ErrorIs(t, err, storage.ErrNotFound)
		assert.ErrorIs(t, err, asynq.SkipRetry)

		task = &taskqueue.Task{
			Type:    taskqueue.NodeTaskType(NodeTextChunk),
			ItemID:  item.ID,
			Payload: json.RawMessage(`[1,2]`),
		}
		_, err = h.ProcessTask(ctx, task)
		assert.ErrorIs(t, err, taskqueue.ErrInvalidPayload)
		assert.ErrorIs(t, err, asynq.SkipRetry)

		task = &taskqueue.Task{Type: taskqueue.NodeTaskType("ocr"), ItemID: item.ID}
		_, err = h.ProcessTask(ctx, task)
		assert.ErrorIs(t, err, ErrUnknownNode)
		assert.ErrorIs(t, err, asynq.SkipRetry)
	})

	t.Run("cancelled context is retried", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		task := &taskqueue.Task{
			Type:   taskqueue.NodeTaskType(NodeTextChunk),
			ItemID: item.ID,
		}
		_, err := h.ProcessTask(cctx, task)
		require.Error(t, err)
		assert.NotErrorIs(t, err, asynq.SkipRetry)
	})
}

func TestRegisterTaskHandlers(t *testing.T) {
	env := newTestEnv(t)
	w := &recordingWorker{}
	env.runner.RegisterTaskHandlers(w)
	assert.Len(t, w.nodes, 9)
	assert.Contains(t, w.nodes, NodePDFToImage)
}
