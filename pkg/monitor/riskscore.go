package monitor

import (
	"go-menshen/pkg/models"
)

// SeverityForScore 分数到等级的统一映射，规则、特征匹配和行为分析共用
func SeverityForScore(score int) models.Severity {
	switch {
	case score >= 80:
		return models.SeverityCritical
	case score >= 60:
		return models.SeverityHigh
	case score >= 40:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// clampScore 把分数限制在[0,100]
func clampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
