package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"vendor_audit_backend/internal/docstore"
	"vendor_audit_backend/internal/model"
	"vendor_audit_backend/internal/util"
)

const (
	formCacheTTL    = 10 * time.Minute
	formCachePrefix = "form:def:"
	formLRUSize     = 64
)

// FormRepository 检查表定义只读仓库。
// 两级缓存：进程内 LRU 挡热点，Redis 共享层挡冷启动，最后才落 docstore。
type FormRepository struct {
	Store docstore.Store
	Redis *redis.Client
	Log   *zap.Logger
	local *lru.Cache[string, *model.FormDefinition]
}

func NewFormRepository(store docstore.Store, rdb *redis.Client, log *zap.Logger) *FormRepository {
	cache, _ := lru.New[string, *model.FormDefinition](formLRUSize)
	return &FormRepository{
		Store: store,
		Redis: rdb,
		Log:   log,
		local: cache,
	}
}

func formCacheKey(formCode string, version int) string {
	return fmt.Sprintf("%s%s:v%d", formCachePrefix, formCode, version)
}

// FindByCode 按编号和版本取检查表定义
func (r *FormRepository) FindByCode(ctx context.Context, formCode string, version int) (*model.FormDefinition, error) {
	key := formCacheKey(formCode, version)

	if form, ok := r.local.Get(key); ok {
		return form, nil
	}

	if r.Redis != nil {
		raw, err := r.Redis.Get(ctx, key).Bytes()
		if err == nil {
			var form model.FormDefinition
			if err := json.Unmarshal(raw, &form); err == nil {
				r.local.Add(key, &form)
				return &form, nil
			}
			// 缓存里的脏数据直接丢弃，回源重建
			r.Redis.Del(ctx, key)
		} else if !errors.Is(err, redis.Nil) && r.Log != nil {
			r.Log.Warn("form cache read failed, falling back to store",
				zap.String("key", key), zap.Error(err))
		}
	}

	form, err := r.fetch(ctx, formCode, version)
	if err != nil {
		return nil, err
	}

	r.local.Add(key, form)
	if r.Redis != nil {
		if raw, err := json.Marshal(form); err == nil {
			if err := r.Redis.Set(ctx, key, raw, formCacheTTL).Err(); err != nil && r.Log != nil {
				r.Log.Warn("form cache write failed", zap.String("key", key), zap.Error(err))
			}
		}
	}
	return form, nil
}

func (r *FormRepository) fetch(ctx context.Context, formCode string, version int) (*model.FormDefinition, error) {
	filters := []docstore.Filter{{Field: "formCode", Value: formCode}}
	if version > 0 {
		filters = append(filters, docstore.Filter{Field: "version", Value: version})
	}

	docs, err := r.Store.QueryDocuments(ctx, util.CollectionForms, docstore.Query{
		Filters: filters,
		OrderBy: "version",
		Desc:    true,
		Limit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, util.ErrFormNotFound
	}

	var form model.FormDefinition
	if err := json.Unmarshal(docs[0].Data, &form); err != nil {
		return nil, &docstore.ConflictError{
			Collection: util.CollectionForms,
			ID:         docs[0].ID,
			Reason:     "unexpected form shape: " + err.Error(),
		}
	}
	return &form, nil
}

// List 列出全部检查表定义，管理端用，不走缓存
func (r *FormRepository) List(ctx context.Context) ([]*model.FormDefinition, error) {
	docs, err := r.Store.QueryDocuments(ctx, util.CollectionForms, docstore.Query{})
	if err != nil {
		return nil, err
	}
	out := make([]*model.FormDefinition, 0, len(docs))
	for _, doc := range docs {
		var form model.FormDefinition
		if err := json.Unmarshal(doc.Data, &form); err != nil {
			if r.Log != nil {
				r.Log.Warn("skipping malformed form document",
					zap.String("docId", doc.ID), zap.Error(err))
			}
			continue
		}
		out = append(out, &form)
	}
	return out, nil
}

// Upsert 写入或更新检查表定义并使缓存失效
func (r *FormRepository) Upsert(ctx context.Context, form *model.FormDefinition) error {
	data, err := json.Marshal(form)
	if err != nil {
		return err
	}

	docs, err := r.Store.QueryDocuments(ctx, util.CollectionForms, docstore.Query{
		Filters: []docstore.Filter{
			{Field: "formCode", Value: form.FormCode},
			{Field: "version", Value: form.Version},
		},
		Limit: 1,
	})
	if err != nil {
		return err
	}

	if len(docs) > 0 {
		err = r.Store.ReplaceDocument(ctx, util.CollectionForms, docs[0].ID, data)
	} else {
		_, err = r.Store.CreateDocument(ctx, util.CollectionForms, data)
	}
	if err != nil {
		return err
	}

	// 显式版本和"最新版"(v0) 两个缓存键都要失效，
	// 否则新版本发布后按 v0 查的调用方会一直拿到旧版
	for _, key := range []string{
		formCacheKey(form.FormCode, form.Version),
		formCacheKey(form.FormCode, 0),
	} {
		r.local.Remove(key)
		if r.Redis != nil {
			r.Redis.Del(ctx, key)
		}
	}
	return nil
}
