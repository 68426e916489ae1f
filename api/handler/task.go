package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-pipeline/api/middleware"
	"github.com/fyerfyer/doc-pipeline/api/model"
	"github.com/fyerfyer/doc-pipeline/pkg/taskqueue"
)

// 单次请求最长等待时间
const maxTaskWait = 60 * time.Second

// TaskHandler 处理任务相关的API请求
type TaskHandler struct {
	queue  taskqueue.Queue // 任务队列
	logger *logrus.Logger  // 日志记录器
}

// NewTaskHandler 创建新的任务处理器
func NewTaskHandler(queue taskqueue.Queue) *TaskHandler {
	return &TaskHandler{
		queue:  queue,
		logger: middleware.GetLogger(),
	}
}

// GetTaskStatus 获取任务状态
// GET /api/tasks/:id?wait=10s
// 设置wait时等待任务结束，超时后返回当前状态
func (h *TaskHandler) GetTaskStatus(c *gin.Context) {
	if !h.available(c) {
		return
	}

	ctx := c.Request.Context()
	taskID := c.Param("id")

	var wait time.Duration
	if raw := c.Query("wait"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d < 0 {
			abortWithError(c, middleware.NewValidationError("invalid wait duration", raw))
			return
		}
		wait = min(d, maxTaskWait)
	}

	var (
		task *taskqueue.Task
		err  error
	)
	if wait > 0 {
		task, err = h.queue.WaitForTask(ctx, taskID, wait)
		if errors.Is(err, taskqueue.ErrTaskTimeout) {
			task, err = h.queue.GetTask(ctx, taskID)
		}
	} else {
		task, err = h.queue.GetTask(ctx, taskID)
	}
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(taskqueue.NewTaskInfo(task)))
}

// GetItemTasks 获取文件相关的所有任务
// GET /api/files/:id/tasks
func (h *TaskHandler) GetItemTasks(c *gin.Context) {
	if !h.available(c) {
		return
	}

	itemID := c.Param("id")
	tasks, err := h.queue.GetTasksByItem(c.Request.Context(), itemID)
	if err != nil {
		h.logger.WithError(err).WithField("item_id", itemID).Error("Failed to get item tasks")
		abortWithError(c, err)
		return
	}

	infos := make([]*taskqueue.TaskInfo, 0, len(tasks))
	for _, task := range tasks {
		infos = append(infos, taskqueue.NewTaskInfo(task))
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.TaskListResponse{
		ItemID: itemID,
		Tasks:  infos,
	}))
}

// DeleteTask 删除任务记录，尚未执行的任务同时从队列中移除
// DELETE /api/tasks/:id
func (h *TaskHandler) DeleteTask(c *gin.Context) {
	if !h.available(c) {
		return
	}

	taskID := c.Param("id")
	if err := h.queue.DeleteTask(c.Request.Context(), taskID); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"id": taskID}))
}

func (h *TaskHandler) available(c *gin.Context) bool {
	if h.queue == nil {
		abortWithError(c, middleware.NewUnavailableError("task queue is not configured"))
		return false
	}
	return true
}
