package handler

import (
	"errors"

	"github.com/gin-gonic/gin"

	"github.com/fyerfyer/doc-pipeline/api/middleware"
	"github.com/fyerfyer/doc-pipeline/internal/batch"
	"github.com/fyerfyer/doc-pipeline/internal/document"
	"github.com/fyerfyer/doc-pipeline/internal/pipeline"
	"github.com/fyerfyer/doc-pipeline/pkg/storage"
	"github.com/fyerfyer/doc-pipeline/pkg/taskqueue"
)

// toAppError 将领域错误映射为带HTTP状态码的应用错误
func toAppError(err error) error {
	switch {
	case errors.Is(err, pipeline.ErrUnknownNode):
		return middleware.NewNotFoundError(err.Error())
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, taskqueue.ErrTaskNotFound):
		return middleware.NewNotFoundError(err.Error())
	case errors.Is(err, pipeline.ErrInvalidConfig), errors.Is(err, document.ErrInvalidChunkConfig):
		return middleware.NewValidationError("invalid node config", err.Error())
	case errors.Is(err, document.ErrUnsupportedType):
		return middleware.NewValidationError("unsupported input type", err.Error())
	case errors.Is(err, document.ErrOpenSource), errors.Is(err, document.ErrNoText), errors.Is(err, batch.ErrAllUnitsFailed):
		return middleware.NewBusinessError("document could not be processed", err.Error())
	default:
		return err
	}
}

// abortWithError 记录错误并交给ErrorMiddleware输出
func abortWithError(c *gin.Context, err error) {
	middleware.HandleError(c, toAppError(err))
	c.Abort()
}
