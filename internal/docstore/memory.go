package docstore

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore 内存实现，测试中充当 gorm 存储的契约替身，
// 查询的过滤和排序语义与 GormStore 保持一致。
// Hook 非空时在每次操作前调用，可注入失败模拟断网。
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]map[string]json.RawMessage // collection -> id -> payload

	Hook func(op, collection string) error
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]map[string]json.RawMessage)}
}

func (s *MemoryStore) hook(op, collection string) error {
	if s.Hook != nil {
		return s.Hook(op, collection)
	}
	return nil
}

func (s *MemoryStore) GetDocument(ctx context.Context, collection, id string) (json.RawMessage, error) {
	if err := s.hook("get", collection); err != nil {
		return nil, &StoreError{Op: "get", Collection: collection, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return doc, nil
}

func (s *MemoryStore) QueryDocuments(ctx context.Context, collection string, q Query) ([]Document, error) {
	if err := s.hook("query", collection); err != nil {
		return nil, &StoreError{Op: "query", Collection: collection, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var docs []Document
	orderKeys := map[string]interface{}{}
	for id, raw := range s.data[collection] {
		fields := map[string]interface{}{}
		_ = json.Unmarshal(raw, &fields)
		if matchesFilters(fields, q.Filters) {
			docs = append(docs, Document{ID: id, Data: raw})
			if q.OrderBy != "" {
				orderKeys[id] = fields[q.OrderBy]
			}
		}
	}

	// 与 gorm 实现同契约：按 OrderBy 字段排序，字段值相同再按 id 稳定排序
	sort.Slice(docs, func(i, j int) bool {
		if q.OrderBy != "" {
			if c := compareValues(orderKeys[docs[i].ID], orderKeys[docs[j].ID]); c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return docs[i].ID < docs[j].ID
	})
	if q.Limit > 0 && len(docs) > q.Limit {
		docs = docs[:q.Limit]
	}
	return docs, nil
}

func (s *MemoryStore) CreateDocument(ctx context.Context, collection string, data json.RawMessage) (string, error) {
	if err := s.hook("create", collection); err != nil {
		return "", &StoreError{Op: "create", Collection: collection, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.data[collection] == nil {
		s.data[collection] = make(map[string]json.RawMessage)
	}
	id := uuid.New().String()
	s.data[collection][id] = data
	return id, nil
}

func (s *MemoryStore) UpdateDocument(ctx context.Context, collection, id string, partial json.RawMessage) error {
	if err := s.hook("update", collection); err != nil {
		return &StoreError{Op: "update", Collection: collection, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.data[collection][id]
	if !ok {
		return ErrNotFound
	}
	merged, err := mergePatch(current, partial)
	if err != nil {
		return &ConflictError{Collection: collection, ID: id, Reason: err.Error()}
	}
	s.data[collection][id] = merged
	return nil
}

func (s *MemoryStore) ReplaceDocument(ctx context.Context, collection, id string, data json.RawMessage) error {
	if err := s.hook("replace", collection); err != nil {
		return &StoreError{Op: "replace", Collection: collection, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[collection][id]; !ok {
		return ErrNotFound
	}
	s.data[collection][id] = data
	return nil
}

func (s *MemoryStore) DeleteDocument(ctx context.Context, collection, id string) error {
	if err := s.hook("delete", collection); err != nil {
		return &StoreError{Op: "delete", Collection: collection, Err: err}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data[collection][id]; !ok {
		return ErrNotFound
	}
	delete(s.data[collection], id)
	return nil
}

func (s *MemoryStore) Ping(ctx context.Context) error {
	return s.hook("ping", "")
}

func matchesFilters(fields map[string]interface{}, filters []Filter) bool {
	for _, f := range filters {
		got, ok := fields[f.Field]
		want := f.Value
		equal := ok && stringify(got) == stringify(want)
		switch f.Op {
		case "!=":
			if equal {
				return false
			}
		default:
			if !equal {
				return false
			}
		}
	}
	return true
}

func stringify(v interface{}) string {
	b, _ := json.Marshal(v)
	return string(b)
}

func compareValues(a, b interface{}) int {
	af, aok := a.(float64)
	bf, bok := b.(float64)
	if aok && bok {
		switch {
		case af < bf:
			return -1
		case af > bf:
			return 1
		}
		return 0
	}
	as, bs := stringify(a), stringify(b)
	switch {
	case as < bs:
		return -1
	case as > bs:
		return 1
	}
	return 0
}
