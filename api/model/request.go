package model

import (
	"encoding/json"
	"mime/multipart"
)

// FileUploadRequest 文件上传请求
type FileUploadRequest struct {
	File     *multipart.FileHeader `form:"file" binding:"required"` // 文件对象
	Metadata string                `form:"metadata"`                // 文件元数据，JSON对象
}

// ParseMetadata 解析元数据字段，为空时返回nil
func (r *FileUploadRequest) ParseMetadata() (map[string]string, error) {
	if r.Metadata == "" {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal([]byte(r.Metadata), &meta); err != nil {
		return nil, err
	}
	return meta, nil
}

// NodeRunRequest 执行节点请求
type NodeRunRequest struct {
	ItemID string         `json:"item_id" binding:"required"` // 输入文件ID
	Config map[string]any `json:"config"`                     // 节点配置，未设置的项使用默认值
}

// NodeEnqueueRequest 异步执行节点请求
type NodeEnqueueRequest struct {
	NodeRunRequest
	Delay string `json:"delay" binding:"omitempty"` // 延迟执行，如"30s"
}
