package monitor

import (
	"strings"
	"time"

	"go-menshen/pkg/models"
)

// ThreatPattern 一组攻击特征子串，命中任意一个即告警
type ThreatPattern struct {
	ID         string
	Name       string
	Indicators []string
	RiskScore  int
	AutoBlock  bool
	Enabled    bool
}

func defaultThreatPatterns() []*ThreatPattern {
	return []*ThreatPattern{
		{
			ID:   "sql_injection",
			Name: "SQL注入",
			Indicators: []string{
				"' or 1=1",
				"\" or 1=1",
				"union select",
				"'; drop table",
				"information_schema",
				"sleep(",
				"benchmark(",
				"load_file(",
				"xp_cmdshell",
			},
			RiskScore: 85,
			AutoBlock: true,
			Enabled:   true,
		},
		{
			ID:   "xss_attempt",
			Name: "跨站脚本",
			Indicators: []string{
				"<script",
				"javascript:",
				"onerror=",
				"onload=",
				"document.cookie",
				"<iframe",
				"eval(",
			},
			RiskScore: 75,
			AutoBlock: true,
			Enabled:   true,
		},
		{
			ID:   "path_traversal",
			Name: "路径穿越",
			Indicators: []string{
				"../",
				"..\\",
				"%2e%2e%2f",
				"%2e%2e/",
				"/etc/passwd",
				"/etc/shadow",
				"c:\\windows",
			},
			RiskScore: 70,
			AutoBlock: true,
			Enabled:   true,
		},
		{
			ID:   "command_injection",
			Name: "命令注入",
			Indicators: []string{
				"; ls",
				"; cat ",
				"| cat ",
				"&& cat ",
				"; rm -rf",
				"$(",
				"`whoami`",
				"| nc ",
				"; wget ",
				"; curl ",
			},
			RiskScore: 80,
			AutoBlock: true,
			Enabled:   true,
		},
	}
}

// searchText 拼接URL、请求体和请求头为统一的小写检索串
func searchText(activity models.ActivityData) string {
	var b strings.Builder
	b.WriteString(activity.URL)
	b.WriteByte(' ')
	b.WriteString(activity.Body)
	for k, v := range activity.Headers {
		b.WriteByte(' ')
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(v)
	}
	return strings.ToLower(b.String())
}

// evaluatePatterns 逐个匹配启用的威胁特征，命中的特征子串记入证据
func (sm *SecurityMonitor) evaluatePatterns(activity models.ActivityData, now time.Time) {
	haystack := searchText(activity)

	for _, p := range sm.patterns {
		if !p.Enabled {
			continue
		}
		var matched []string
		for _, indicator := range p.Indicators {
			if strings.Contains(haystack, indicator) {
				matched = append(matched, indicator)
			}
		}
		if len(matched) == 0 {
			continue
		}

		sm.recordSuspicious(models.SuspiciousActivity{
			Type:        p.ID,
			Severity:    SeverityForScore(p.RiskScore),
			Description: "威胁特征命中: " + p.Name,
			IPAddress:   activity.IPAddress,
			UserAgent:   activity.UserAgent,
			UserID:      activity.UserID,
			SessionID:   activity.SessionID,
			Timestamp:   now,
			RiskScore:   p.RiskScore,
			Evidence: map[string]interface{}{
				"pattern":            p.Name,
				"matched_indicators": matched,
				"url":                activity.URL,
				"method":             activity.Method,
			},
		}, p.AutoBlock, p.ID)
	}
}
