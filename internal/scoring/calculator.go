package scoring

import (
	"strconv"

	"vendor_audit_backend/internal/model"
)

// MaxPerQuestion 单题满分
const MaxPerQuestion = 2

// 风险等级阈值，按加权平均分划分
const (
	lowRiskThreshold      = 1.5
	moderateRiskThreshold = 1.0
)

// Totals 加权分数汇总
type Totals struct {
	Total   float64 `json:"total"`
	Average float64 `json:"average"`
	Max     float64 `json:"max"`
}

// numericScore 把 "0"/"1"/"2" 转成数值，非法字符串按 0 计，从不报错
func numericScore(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v < 0 {
		return 0
	}
	if v > MaxPerQuestion {
		return MaxPerQuestion
	}
	return v
}

// weightFor 缺省权重按 1 计
func weightFor(weights map[string]float64, ckItem string) float64 {
	w, ok := weights[ckItem]
	if !ok {
		return 1
	}
	return w
}

// ComputeTotals 按权重汇总已作答且非 n/a 的检查项。
// n/a 和未作答的检查项不计入分子也不计入分母。
func ComputeTotals(answers []model.Answer, weights map[string]float64) Totals {
	var t Totals
	var denom float64

	for i := range answers {
		a := &answers[i]
		if a.Score == "" || a.Score == model.ScoreNA {
			continue
		}
		w := weightFor(weights, a.CkItem)
		t.Total += w * numericScore(a.Score)
		t.Max += w * MaxPerQuestion
		denom += w
	}

	if denom > 0 {
		t.Average = t.Total / denom
	}
	return t
}

// ClassifyRisk 平均分为 0 时风险未定，返回空
func ClassifyRisk(average float64) model.RiskLevel {
	switch {
	case average == 0:
		return model.RiskUnset
	case average >= lowRiskThreshold:
		return model.RiskLow
	case average >= moderateRiskThreshold:
		return model.RiskModerate
	default:
		return model.RiskHigh
	}
}
