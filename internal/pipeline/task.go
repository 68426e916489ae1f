package pipeline

import (
	"context"

	"github.com/fyerfyer/doc-pipeline/pkg/taskqueue"
)

// TaskHandler 返回执行队列任务的处理器，任务结果为RunResult
// 输入或配置错误不会重试
func (r *Runner) TaskHandler() taskqueue.Handler {
	return taskqueue.HandlerFunc(func(ctx context.Context, task *taskqueue.Task) (interface{}, error) {
		cfg, err := task.Config()
		if err != nil {
			return nil, taskqueue.SkipRetry(err)
		}

		result, err := r.Run(ctx, task.Node(), task.ItemID, cfg)
		if err != nil {
			if IsPermanent(err) {
				return nil, taskqueue.SkipRetry(err)
			}
			return nil, err
		}
		return result, nil
	})
}

// RegisterTaskHandlers 为注册表中的每个节点注册队列处理器
func (r *Runner) RegisterTaskHandlers(w taskqueue.Worker) {
	h := r.TaskHandler()
	for _, n := range r.registry.List() {
		w.RegisterHandler(n.Name, h)
	}
}
