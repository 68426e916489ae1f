package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-pipeline/api/middleware"
	"github.com/fyerfyer/doc-pipeline/api/model"
	"github.com/fyerfyer/doc-pipeline/internal/pipeline"
	"github.com/fyerfyer/doc-pipeline/pkg/taskqueue"
)

// NodeHandler 处理流水线节点相关的API请求
type NodeHandler struct {
	runner *pipeline.Runner // 节点执行器
	queue  taskqueue.Queue  // 任务队列，为空时不支持异步执行
	logger *logrus.Logger   // 日志记录器
}

// NewNodeHandler 创建新的节点处理器
func NewNodeHandler(runner *pipeline.Runner, queue taskqueue.Queue) *NodeHandler {
	return &NodeHandler{
		runner: runner,
		queue:  queue,
		logger: middleware.GetLogger(),
	}
}

// ListNodes 列出可用节点
// GET /api/nodes
func (h *NodeHandler) ListNodes(c *gin.Context) {
	c.JSON(http.StatusOK, model.NewSuccessResponse(model.NewNodeListResponse(h.runner.Registry().List())))
}

// RunNode 同步执行节点，返回输出文件
// POST /api/nodes/:node/run
func (h *NodeHandler) RunNode(c *gin.Context) {
	var req model.NodeRunRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, middleware.NewValidationError("invalid run request", err.Error()))
		return
	}

	result, err := h.runner.Run(c.Request.Context(), c.Param("node"), req.ItemID, req.Config)
	if err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(result))
}

// EnqueueNode 将节点任务加入队列
// POST /api/nodes/:node/enqueue
func (h *NodeHandler) EnqueueNode(c *gin.Context) {
	if h.queue == nil {
		abortWithError(c, middleware.NewUnavailableError("task queue is not configured"))
		return
	}

	var req model.NodeEnqueueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		abortWithError(c, middleware.NewValidationError("invalid enqueue request", err.Error()))
		return
	}

	var delay time.Duration
	if req.Delay != "" {
		d, err := time.ParseDuration(req.Delay)
		if err != nil || d < 0 {
			abortWithError(c, middleware.NewValidationError("invalid delay", req.Delay))
			return
		}
		delay = d
	}

	ctx := c.Request.Context()
	node := c.Param("node")

	// 入队前检查，避免无效任务进入队列
	if err := h.runner.Validate(ctx, node, req.ItemID, req.Config); err != nil {
		abortWithError(c, err)
		return
	}

	var (
		taskID string
		err    error
	)
	if delay > 0 {
		taskID, err = h.queue.EnqueueIn(ctx, node, req.ItemID, req.Config, delay)
	} else {
		taskID, err = h.queue.Enqueue(ctx, node, req.ItemID, req.Config)
	}
	if err != nil {
		abortWithError(c, middleware.NewInternalError("failed to enqueue task", err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, model.NewSuccessResponse(model.EnqueueResponse{
		TaskID: taskID,
		Node:   node,
		ItemID: req.ItemID,
		Status: string(taskqueue.StatusPending),
	}))
}
