package pipeline

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	logtest "github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyerfyer/doc-pipeline/pkg/storage"
)

// failingStore 第failAt次保存时返回错误
type failingStore struct {
	storage.Storage
	saves  int
	failAt int
}

func (s *failingStore) Save(ctx context.Context, r io.Reader, filename string, meta map[string]string) (storage.FileInfo, error) {
	s.saves++
	if s.saves == s.failAt {
		return storage.FileInfo{}, errors.New("disk full")
	}
	return s.Storage.Save(ctx, r, filename, meta)
}

func TestUploader(t *testing.T) {
	ctx := context.Background()
	store, err := storage.NewLocalStorage(storage.LocalConfig{Path: t.TempDir()})
	require.NoError(t, err)
	logger, _ := logtest.NewNullLogger()

	t.Run("order and metadata", func(t *testing.T) {
		u := NewUploader(store, 0, 1, logger)
		files, err := u.Upload(ctx, []Output{
			{Name: "a_page_1.txt", Data: []byte("one"), UnitIndex: 1},
			{Name: "a_page_2.txt", Data: []byte("two"), UnitIndex: 2, Metadata: map[string]string{"extra": "x"}},
			{Name: "a_text.txt", Data: []byte("all")},
		}, map[string]string{storage.MetaOriginalItemID: "item-1", "extracted_from_pdf": "true"})
		require.NoError(t, err)
		require.Len(t, files, 3)

		assert.Equal(t, "a_page_1.txt", files[0].Name)
		assert.Equal(t, "1", files[0].Metadata[storage.MetaUnitIndex])
		assert.Equal(t, "item-1", files[0].Metadata[storage.MetaOriginalItemID])
		assert.Equal(t, "x", files[1].Metadata["extra"])
		assert.Equal(t, "true", files[1].Metadata["extracted_from_pdf"])
		_, ok := files[2].Metadata[storage.MetaUnitIndex]
		assert.False(t, ok)
	})

	t.Run("rollback on failure", func(t *testing.T) {
		before, err := store.List(ctx, nil)
		require.NoError(t, err)

		u := NewUploader(&failingStore{Storage: store, failAt: 3}, 0, 1, logger)
		_, err = u.Upload(ctx, []Output{
			{Name: "b-0.txt", Data: []byte("0")},
			{Name: "b-1.txt", Data: []byte("1")},
			{Name: "b-2.txt", Data: []byte("2")},
		}, nil)
		assert.ErrorContains(t, err, "disk full")

		after, err := store.List(ctx, nil)
		require.NoError(t, err)
		assert.Len(t, after, len(before))
	})

	t.Run("rate limited", func(t *testing.T) {
		u := NewUploader(store, 20, 1, logger)
		start := time.Now()
		_, err := u.Upload(ctx, []Output{
			{Name: "c-0.txt", Data: []byte("0")},
			{Name: "c-1.txt", Data: []byte("1")},
			{Name: "c-2.txt", Data: []byte("2")},
		}, nil)
		require.NoError(t, err)
		// 突发为1，后两次各等待约50ms
		assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
	})

	t.Run("cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		u := NewUploader(store, 1, 1, logger)
		_, err := u.Upload(cctx, []Output{{Name: "d.txt"}}, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
