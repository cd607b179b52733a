package docstore

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockStore(t *testing.T) (*GormStore, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	return NewGormStore(db), mock
}

func documentRows() *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "created_at", "updated_at", "deleted_at", "collection", "doc_id", "data"})
}

func TestGormStore_GetDocument(t *testing.T) {
	store, mock := newMockStore(t)

	now := time.Now()
	mock.ExpectQuery("SELECT .* FROM `documents`").
		WillReturnRows(documentRows().AddRow(1, now, now, nil, "assessments", "doc-1", []byte(`{"vendorCode":"V001"}`)))

	data, err := store.GetDocument(context.Background(), "assessments", "doc-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"vendorCode":"V001"}`, string(data))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_GetDocument_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT .* FROM `documents`").WillReturnRows(documentRows())

	_, err := store.GetDocument(context.Background(), "assessments", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_CreateDocument(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO `documents`").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	id, err := store.CreateDocument(context.Background(), "assessments", []byte(`{"vendorCode":"V001"}`))
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ReplaceDocument(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `documents` SET").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := store.ReplaceDocument(context.Background(), "assessments", "doc-1", []byte(`{"vendorCode":"V001","status":"rejected"}`))
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_ReplaceDocument_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `documents` SET").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.ReplaceDocument(context.Background(), "assessments", "missing", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGormStore_DeleteDocument_NotFound(t *testing.T) {
	store, mock := newMockStore(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `documents` SET `deleted_at`").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	err := store.DeleteDocument(context.Background(), "assessments", "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMergePatch(t *testing.T) {
	merged, err := mergePatch(
		[]byte(`{"a":1,"b":"x","keep":true}`),
		[]byte(`{"b":"y","c":3}`),
	)
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1,"b":"y","c":3,"keep":true}`, string(merged))
}

func TestMergePatch_RejectsNonObject(t *testing.T) {
	_, err := mergePatch([]byte(`{"a":1}`), []byte(`[1,2]`))
	assert.Error(t, err)
}

func TestMemoryStore_CRUDAndFilters(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, err := s.CreateDocument(ctx, "assessments", []byte(`{"vendorCode":"V001","isActive":true}`))
	require.NoError(t, err)

	_, err = s.CreateDocument(ctx, "assessments", []byte(`{"vendorCode":"V002","isActive":false}`))
	require.NoError(t, err)

	docs, err := s.QueryDocuments(ctx, "assessments", Query{Filters: []Filter{
		{Field: "vendorCode", Value: "V001"},
		{Field: "isActive", Value: true},
	}})
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].ID)

	require.NoError(t, s.UpdateDocument(ctx, "assessments", id, []byte(`{"isActive":false}`)))
	data, err := s.GetDocument(ctx, "assessments", id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"vendorCode":"V001","isActive":false}`, string(data))

	require.NoError(t, s.DeleteDocument(ctx, "assessments", id))
	_, err = s.GetDocument(ctx, "assessments", id)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryStore_QueryOrdersByField(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for _, v := range []int{2, 1, 3} {
		_, err := s.CreateDocument(ctx, "forms",
			[]byte(fmt.Sprintf(`{"formCode":"SAFETY-01","version":%d}`, v)))
		require.NoError(t, err)
	}

	docs, err := s.QueryDocuments(ctx, "forms", Query{
		Filters: []Filter{{Field: "formCode", Value: "SAFETY-01"}},
		OrderBy: "version",
		Desc:    true,
		Limit:   1,
	})
	require.NoError(t, err)
	require.Len(t, docs, 1)

	var form struct {
		Version int `json:"version"`
	}
	require.NoError(t, json.Unmarshal(docs[0].Data, &form))
	assert.Equal(t, 3, form.Version)
}

func TestMemoryStore_ReplaceDocumentDropsStaleFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	id, err := s.CreateDocument(ctx, "assessments",
		[]byte(`{"vendorCode":"V001","submittedAt":"2026-08-01T00:00:00Z"}`))
	require.NoError(t, err)

	require.NoError(t, s.ReplaceDocument(ctx, "assessments", id, []byte(`{"vendorCode":"V001"}`)))

	data, err := s.GetDocument(ctx, "assessments", id)
	require.NoError(t, err)
	assert.JSONEq(t, `{"vendorCode":"V001"}`, string(data))

	err = s.ReplaceDocument(ctx, "assessments", "missing", []byte(`{}`))
	assert.ErrorIs(t, err, ErrNotFound)
}
