package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/fyerfyer/doc-pipeline/api/middleware"
	"github.com/fyerfyer/doc-pipeline/api/model"
	"github.com/fyerfyer/doc-pipeline/pkg/storage"
)

// FileHandler 处理文件相关的API请求
type FileHandler struct {
	store  storage.Storage // 文件存储服务
	logger *logrus.Logger  // 日志记录器
}

// NewFileHandler 创建新的文件处理器
func NewFileHandler(store storage.Storage) *FileHandler {
	return &FileHandler{
		store:  store,
		logger: middleware.GetLogger(),
	}
}

// UploadFile 上传输入文件
// POST /api/files
func (h *FileHandler) UploadFile(c *gin.Context) {
	var req model.FileUploadRequest
	if err := c.ShouldBind(&req); err != nil {
		abortWithError(c, middleware.NewValidationError("invalid upload request", err.Error()))
		return
	}

	meta, err := req.ParseMetadata()
	if err != nil {
		abortWithError(c, middleware.NewValidationError("metadata must be a JSON object of strings", err.Error()))
		return
	}

	file, err := req.File.Open()
	if err != nil {
		abortWithError(c, middleware.NewInternalError("failed to open uploaded file", err.Error()))
		return
	}
	defer file.Close()

	info, err := h.store.Save(c.Request.Context(), file, req.File.Filename, meta)
	if err != nil {
		abortWithError(c, err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"file_id":  info.ID,
		"filename": info.Name,
		"size":     info.Size,
	}).Info("File uploaded successfully")

	c.JSON(http.StatusCreated, model.NewSuccessResponse(info))
}

// GetFile 获取文件信息
// GET /api/files/:id
func (h *FileHandler) GetFile(c *gin.Context) {
	info, err := h.store.Stat(c.Request.Context(), c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.NewSuccessResponse(info))
}

// DownloadFile 下载文件内容
// GET /api/files/:id/content
func (h *FileHandler) DownloadFile(c *gin.Context) {
	ctx := c.Request.Context()
	info, err := h.store.Stat(ctx, c.Param("id"))
	if err != nil {
		abortWithError(c, err)
		return
	}

	rc, err := h.store.Get(ctx, info.ID)
	if err != nil {
		abortWithError(c, err)
		return
	}
	defer rc.Close()

	c.Header("Content-Disposition", `attachment; filename="`+info.Name+`"`)
	c.DataFromReader(http.StatusOK, info.Size, info.MimeType, io.Reader(rc), nil)
}

// ListFiles 列出文件，查询参数作为元数据过滤条件
// GET /api/files?original_item_id=...&extracted_chunk=true
func (h *FileHandler) ListFiles(c *gin.Context) {
	query := make(map[string]string)
	for k, v := range c.Request.URL.Query() {
		if len(v) > 0 {
			query[k] = v[0]
		}
	}

	files, err := h.store.List(c.Request.Context(), query)
	if err != nil {
		abortWithError(c, err)
		return
	}
	if files == nil {
		files = []storage.FileInfo{}
	}

	c.JSON(http.StatusOK, model.NewSuccessResponse(model.FileListResponse{
		Total: len(files),
		Files: files,
	}))
}

// DeleteFile 删除文件
// DELETE /api/files/:id
func (h *FileHandler) DeleteFile(c *gin.Context) {
	id := c.Param("id")
	if err := h.store.Delete(c.Request.Context(), id); err != nil {
		abortWithError(c, err)
		return
	}

	h.logger.WithField("file_id", id).Info("File deleted")
	c.JSON(http.StatusOK, model.NewSuccessResponse(gin.H{"id": id}))
}
