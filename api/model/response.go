package model

import (
	"github.com/fyerfyer/doc-pipeline/internal/document"
	"github.com/fyerfyer/doc-pipeline/internal/pipeline"
	"github.com/fyerfyer/doc-pipeline/pkg/storage"
	"github.com/fyerfyer/doc-pipeline/pkg/taskqueue"
)

// Response 通用响应结构
type Response struct {
	Code    int         `json:"code"`               // 响应状态码，0表示成功
	Message string      `json:"message"`            // 响应消息
	Data    interface{} `json:"data,omitempty"`     // 响应数据，可能为空
	TraceID string      `json:"trace_id,omitempty"` // 调用链追踪ID
}

// NewSuccessResponse 创建成功响应
func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Code:    0,
		Message: "success",
		Data:    data,
	}
}

// NewErrorResponse 创建错误响应
func NewErrorResponse(code int, message string) *Response {
	return &Response{
		Code:    code,
		Message: message,
	}
}

// FileListResponse 文件列表响应
type FileListResponse struct {
	Total int                `json:"total"` // 总数量
	Files []storage.FileInfo `json:"files"` // 文件列表
}

// NodeInfo 节点描述
type NodeInfo struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Tag         string   `json:"tag"`     // 输出文件的标记元数据
	Accepts     []string `json:"accepts"` // 接受的输入类型，为空表示不限
}

// NewNodeInfo 从节点定义创建NodeInfo
func NewNodeInfo(n pipeline.Node) NodeInfo {
	accepts := make([]string, 0, len(n.Accepts))
	for _, t := range n.Accepts {
		accepts = append(accepts, string(t))
	}
	return NodeInfo{
		Name:        n.Name,
		Description: n.Description,
		Tag:         n.Tag,
		Accepts:     accepts,
	}
}

// NodeListResponse 节点列表响应
type NodeListResponse struct {
	Nodes      []NodeInfo `json:"nodes"`
	Strategies []string   `json:"strategies"` // 可用的分块策略
}

// NewNodeListResponse 创建节点列表响应
func NewNodeListResponse(nodes []pipeline.Node) NodeListResponse {
	infos := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		infos = append(infos, NewNodeInfo(n))
	}
	return NodeListResponse{
		Nodes:      infos,
		Strategies: document.StrategyNames(),
	}
}

// EnqueueResponse 异步执行节点的响应
type EnqueueResponse struct {
	TaskID string `json:"task_id"`
	Node   string `json:"node"`
	ItemID string `json:"item_id"`
	Status string `json:"status"`
}

// TaskListResponse 文件相关任务列表响应
type TaskListResponse struct {
	ItemID string                `json:"item_id"`
	Tasks  []*taskqueue.TaskInfo `json:"tasks"`
}
