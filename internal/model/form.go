package model

// FormField 检查表中的一个检查项定义
type FormField struct {
	CkItem        string  `json:"ckItem"`
	CkQuestion    string  `json:"ckQuestion"`
	CkRequirement string  `json:"ckRequirement,omitempty"`
	FScore        float64 `json:"fScore"` // 加权系数，缺省按 1 计
	Required      bool    `json:"required"`
	AllowAttach   bool    `json:"allowAttach"`
}

// FormDefinition 检查表定义，管理端维护，评估侧只读
// swagger:model FormDefinition
type FormDefinition struct {
	FormCode string      `json:"formCode"`
	Version  int         `json:"version"`
	Title    string      `json:"title,omitempty"`
	Category string      `json:"category,omitempty"`
	Fields   []FormField `json:"fields"`
}

// Weights 按检查项 key 导出加权系数表
func (f *FormDefinition) Weights() map[string]float64 {
	w := make(map[string]float64, len(f.Fields))
	for _, field := range f.Fields {
		w[field.CkItem] = field.FScore
	}
	return w
}

// RequiredItems 必答项 key 列表，用于状态推导
func (f *FormDefinition) RequiredItems() []string {
	items := make([]string, 0, len(f.Fields))
	for _, field := range f.Fields {
		if field.Required {
			items = append(items, field.CkItem)
		}
	}
	return items
}
