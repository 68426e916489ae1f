package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"maps"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/fyerfyer/doc-pipeline/pkg/storage"
)

// Output 节点产生的一个输出文件
type Output struct {
	Name      string
	Data      []byte
	UnitIndex int               // 源文档中的单元序号，从1开始，0表示整篇文档
	Metadata  map[string]string // 附加元数据
}

// Uploader 按顺序上传输出文件，并限制上传速率
type Uploader struct {
	store   storage.Storage
	limiter *rate.Limiter
	logger  *logrus.Logger
}

// NewUploader 创建上传器
// perSecond<=0表示不限速
func NewUploader(store storage.Storage, perSecond float64, burst int, logger *logrus.Logger) *Uploader {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	if logger == nil {
		logger = logrus.New()
	}

	return &Uploader{
		store:   store,
		limiter: rate.NewLimiter(limit, burst),
		logger:  logger,
	}
}

// Upload 按输出顺序上传，每个文件的元数据为base加上输出自身的元数据
// 任一文件上传失败时删除本次已上传的文件
func (u *Uploader) Upload(ctx context.Context, outputs []Output, base map[string]string) ([]storage.FileInfo, error) {
	uploaded := make([]storage.FileInfo, 0, len(outputs))

	for _, out := range outputs {
		if err := u.limiter.Wait(ctx); err != nil {
			u.rollback(uploaded)
			return nil, fmt.Errorf("upload of %s cancelled: %w", out.Name, err)
		}

		meta := make(map[string]string, len(base)+len(out.Metadata)+1)
		maps.Copy(meta, base)
		maps.Copy(meta, out.Metadata)
		if out.UnitIndex > 0 {
			meta[storage.MetaUnitIndex] = fmt.Sprint(out.UnitIndex)
		}

		info, err := u.store.Save(ctx, bytes.NewReader(out.Data), out.Name, meta)
		if err != nil {
			u.rollback(uploaded)
			return nil, fmt.Errorf("failed to upload %s: %w", out.Name, err)
		}
		uploaded = append(uploaded, info)
	}

	return uploaded, nil
}

// rollback 尽力删除已上传的文件，不受已取消的ctx影响
func (u *Uploader) rollback(uploaded []storage.FileInfo) {
	ctx := context.Background()
	for _, info := range uploaded {
		if err := u.store.Delete(ctx, info.ID); err != nil {
			u.logger.WithError(err).WithField("file_id", info.ID).Warn("Failed to remove partial upload")
		}
	}
}
