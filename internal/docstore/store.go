package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrNotFound 文档不存在
var ErrNotFound = errors.New("document not found")

// StoreError 远端存储的瞬时 I/O 错误，允许进离线队列重试
type StoreError struct {
	Op         string
	Collection string
	Err        error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("docstore: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsStoreError 判断错误链上是否为存储瞬时错误
func IsStoreError(err error) bool {
	var se *StoreError
	return errors.As(err, &se)
}

// ConflictError 文档被并发删除或形状不符合预期
type ConflictError struct {
	Collection string
	ID         string
	Reason     string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("docstore: conflict on %s/%s: %s", e.Collection, e.ID, e.Reason)
}

// Filter 查询过滤条件，字段名指向 JSON 负载中的顶层字段
type Filter struct {
	Field string
	Op    string // "=" | "!=", 缺省按 "=" 处理
	Value interface{}
}

// Query 查询参数
type Query struct {
	Filters []Filter
	OrderBy string // JSON 负载字段名，空则按写入时间
	Desc    bool
	Limit   int
}

// Document 查询结果中的一条文档
type Document struct {
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data"`
}

// Store 通用键-文档存储契约。所有实现都是异步 I/O，
// 失败统一抛 StoreError（或 ErrNotFound）。
// UpdateDocument 做顶层字段合并，ReplaceDocument 整体覆盖：
// 合并写无法清掉已有字段，清空字段的全量保存必须走 Replace。
type Store interface {
	GetDocument(ctx context.Context, collection, id string) (json.RawMessage, error)
	QueryDocuments(ctx context.Context, collection string, q Query) ([]Document, error)
	CreateDocument(ctx context.Context, collection string, data json.RawMessage) (string, error)
	UpdateDocument(ctx context.Context, collection, id string, partial json.RawMessage) error
	ReplaceDocument(ctx context.Context, collection, id string, data json.RawMessage) error
	DeleteDocument(ctx context.Context, collection, id string) error
	Ping(ctx context.Context) error
}
