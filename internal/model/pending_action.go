package model

import (
	"encoding/json"
	"time"
)

// ActionType 挂起变更的种类
type ActionType string

const (
	ActionCreate ActionType = "create"
	ActionUpdate ActionType = "update"
	ActionDelete ActionType = "delete"
)

// ActionPriority 队列优先级，高优先级先出队
type ActionPriority string

const (
	PriorityHigh   ActionPriority = "high"
	PriorityNormal ActionPriority = "normal"
	PriorityLow    ActionPriority = "low"
)

// Rank 数值越小越先执行
func (p ActionPriority) Rank() int {
	switch p {
	case PriorityHigh:
		return 0
	case PriorityLow:
		return 2
	default:
		return 1
	}
}

// ActionState 挂起变更的执行状态
type ActionState string

const (
	ActionPending   ActionState = "pending"
	ActionExecuting ActionState = "executing"
	ActionRetrying  ActionState = "retrying"
	ActionDone      ActionState = "done"
	ActionFailed    ActionState = "failed"
)

// PendingAction 离线或失败时排队等待重放的变更意图。
// 队列持有的是变更副本，不是评估对象本身。
type PendingAction struct {
	ID          string          `json:"id"`
	Type        ActionType      `json:"type"`
	Collection  string          `json:"collection"`
	Resource    string          `json:"resource"` // 文档 id 或 vendorCode/formCode 组合键
	Payload     json.RawMessage `json:"payload"`
	Priority    ActionPriority  `json:"priority"`
	State       ActionState     `json:"state"`
	RetryCount  int             `json:"retryCount"`
	CreatedAt   time.Time       `json:"createdAt"`
	NextAttempt time.Time       `json:"nextAttempt"`
}

// CoalesceKey 同一资源的同类变更在队列里只保留最新负载
func (a *PendingAction) CoalesceKey() string {
	return string(a.Type) + ":" + a.Collection + ":" + a.Resource
}

// SyncError 重试耗尽后的可见错误记录，不会被静默丢弃
type SyncError struct {
	ActionID string     `json:"actionId"`
	Type     ActionType `json:"type"`
	Resource string     `json:"resource"`
	Message  string     `json:"message"`
	Retries  int        `json:"retries"`
	FailedAt time.Time  `json:"failedAt"`
}
