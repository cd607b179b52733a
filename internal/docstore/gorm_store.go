package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"vendor_audit_backend/internal/model"
)

// GormStore 把通用文档契约落到 documents 表上，负载整体存 JSON 列
type GormStore struct {
	DB *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{DB: db}
}

func (s *GormStore) GetDocument(ctx context.Context, collection, id string) (json.RawMessage, error) {
	var doc model.Document
	err := s.DB.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		First(&doc).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Collection: collection, Err: err}
	}
	return doc.Data, nil
}

func (s *GormStore) QueryDocuments(ctx context.Context, collection string, q Query) ([]Document, error) {
	query := s.DB.WithContext(ctx).Model(&model.Document{}).Where("collection = ?", collection)

	for _, f := range q.Filters {
		expr := fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(data, '$.%s'))", f.Field)
		switch f.Op {
		case "!=":
			query = query.Where(expr+" <> ?", fmt.Sprint(f.Value))
		default:
			query = query.Where(expr+" = ?", fmt.Sprint(f.Value))
		}
	}

	if q.OrderBy != "" {
		dir := "asc"
		if q.Desc {
			dir = "desc"
		}
		query = query.Order(fmt.Sprintf("JSON_EXTRACT(data, '$.%s') %s", q.OrderBy, dir))
	} else {
		query = query.Order("created_at desc")
	}
	if q.Limit > 0 {
		query = query.Limit(q.Limit)
	}

	var rows []model.Document
	if err := query.Find(&rows).Error; err != nil {
		return nil, &StoreError{Op: "query", Collection: collection, Err: err}
	}

	docs := make([]Document, len(rows))
	for i, row := range rows {
		docs[i] = Document{ID: row.DocID, Data: row.Data}
	}
	return docs, nil
}

func (s *GormStore) CreateDocument(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	doc := model.Document{
		Collection: collection,
		DocID:      model.GenerateUUID(),
		Data:       data,
	}
	if err := s.DB.WithContext(ctx).Create(&doc).Error; err != nil {
		return "", &StoreError{Op: "create", Collection: collection, Err: err}
	}
	return doc.DocID, nil
}

// UpdateDocument 顶层字段合并：读出现有负载，覆盖 partial 里出现的键后整体写回
func (s *GormStore) UpdateDocument(ctx context.Context, collection, id string, partial json.RawMessage) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var doc model.Document
		err := tx.Where("collection = ? AND doc_id = ?", collection, id).First(&doc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return &StoreError{Op: "update", Collection: collection, Err: err}
		}

		merged, err := mergePatch(doc.Data, partial)
		if err != nil {
			return &ConflictError{Collection: collection, ID: id, Reason: err.Error()}
		}

		if err := tx.Model(&doc).Update("data", merged).Error; err != nil {
			return &StoreError{Op: "update", Collection: collection, Err: err}
		}
		return nil
	})
}

// ReplaceDocument 整体覆盖负载，内存里已清空的字段随之从文档中消失
func (s *GormStore) ReplaceDocument(ctx context.Context, collection, id string, data json.RawMessage) error {
	res := s.DB.WithContext(ctx).
		Model(&model.Document{}).
		Where("collection = ? AND doc_id = ?", collection, id).
		Update("data", data)
	if res.Error != nil {
		return &StoreError{Op: "replace", Collection: collection, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) DeleteDocument(ctx context.Context, collection, id string) error {
	res := s.DB.WithContext(ctx).
		Where("collection = ? AND doc_id = ?", collection, id).
		Delete(&model.Document{})
	if res.Error != nil {
		return &StoreError{Op: "delete", Collection: collection, Err: res.Error}
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *GormStore) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// mergePatch 顶层 JSON 对象合并，非对象负载视为形状冲突
func mergePatch(current, partial json.RawMessage) (json.RawMessage, error) {
	base := map[string]json.RawMessage{}
	if len(current) > 0 {
		if err := json.Unmarshal(current, &base); err != nil {
			return nil, fmt.Errorf("stored payload is not an object: %w", err)
		}
	}
	patch := map[string]json.RawMessage{}
	if err := json.Unmarshal(partial, &patch); err != nil {
		return nil, fmt.Errorf("patch is not an object: %w", err)
	}
	for k, v := range patch {
		base[k] = v
	}
	return json.Marshal(base)
}
