package model

import (
	"encoding/json"
)

// Document 通用文档表，docstore 的 gorm 载体。
// collection + doc_id 唯一，业务负载整体存 JSON。
type Document struct {
	BaseModel
	Collection string          `gorm:"size:64;not null;uniqueIndex:idx_collection_doc,priority:1" json:"collection"`
	DocID      string          `gorm:"size:36;not null;uniqueIndex:idx_collection_doc,priority:2" json:"docId"`
	Data       json.RawMessage `gorm:"type:json" json:"data"`
}

func (Document) TableName() string {
	return "documents"
}
