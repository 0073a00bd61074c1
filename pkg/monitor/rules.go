package monitor

import (
	"fmt"
	"strings"
	"time"

	"go-menshen/pkg/logger"
	"go-menshen/pkg/models"
)

type ruleScope int

const (
	scopeIP ruleScope = iota
	scopeUser
)

// RuleKind 规则类型，规则以带参数的类型标签表示而不是任意闭包，
// 便于审计和单独测试
type RuleKind int

const (
	RuleRapidRequests RuleKind = iota
	RuleFailedAuth
	RuleSuspiciousUserAgent
	RuleAdminProbe
	RulePrivilegeEscalation
)

// MonitoringRule 一条带冷却的窗口化检测规则
type MonitoringRule struct {
	ID          string
	Name        string
	Description string
	Kind        RuleKind
	Scope       ruleScope
	Threshold   int
	Window      time.Duration
	Severity    models.Severity
	RiskScore   int
	AutoBlock   bool
	Enabled     bool
	Cooldown    time.Duration
}

// 可疑工具/爬虫UA特征，小写匹配
var suspiciousUserAgents = []string{
	"sqlmap",
	"nikto",
	"nmap",
	"masscan",
	"dirbuster",
	"gobuster",
	"wfuzz",
	"hydra",
	"burpsuite",
	"python-requests",
	"scrapy",
	"curl",
	"wget",
}

// 管理后台路径特征
var adminPathIndicators = []string{
	"/admin",
	"/administrator",
	"/wp-admin",
	"/manage",
	"/console",
	"/phpmyadmin",
}

func defaultRules() []*MonitoringRule {
	return []*MonitoringRule{
		{
			ID:          "rapid_requests",
			Name:        "高频请求",
			Description: "单IP在60秒内请求超过100次",
			Kind:        RuleRapidRequests,
			Scope:       scopeIP,
			Threshold:   100,
			Window:      time.Minute,
			Severity:    models.SeverityHigh,
			RiskScore:   80,
			AutoBlock:   true,
			Enabled:     true,
			Cooldown:    5 * time.Minute,
		},
		{
			ID:          "failed_auth_attempts",
			Name:        "认证失败次数过多",
			Description: "单IP在5分钟内出现5次以上401响应",
			Kind:        RuleFailedAuth,
			Scope:       scopeIP,
			Threshold:   5,
			Window:      5 * time.Minute,
			Severity:    models.SeverityHigh,
			RiskScore:   75,
			AutoBlock:   true,
			Enabled:     true,
			Cooldown:    10 * time.Minute,
		},
		{
			ID:          "suspicious_user_agent",
			Name:        "可疑UserAgent",
			Description: "UserAgent命中已知扫描工具/爬虫特征",
			Kind:        RuleSuspiciousUserAgent,
			Scope:       scopeIP,
			Severity:    models.SeverityMedium,
			RiskScore:   60,
			AutoBlock:   false,
			Enabled:     true,
			Cooldown:    time.Minute,
		},
		{
			ID:          "admin_access_attempts",
			Name:        "后台探测",
			Description: "访问管理后台路径且被403拒绝",
			Kind:        RuleAdminProbe,
			Scope:       scopeIP,
			Severity:    models.SeverityHigh,
			RiskScore:   70,
			AutoBlock:   false,
			Enabled:     true,
			Cooldown:    time.Minute,
		},
		{
			ID:          "privilege_escalation",
			Name:        "越权尝试",
			Description: "单用户在10分钟内出现3次以上401/403响应",
			Kind:        RulePrivilegeEscalation,
			Scope:       scopeUser,
			Threshold:   3,
			Window:      10 * time.Minute,
			Severity:    models.SeverityCritical,
			RiskScore:   90,
			AutoBlock:   true,
			Enabled:     true,
			Cooldown:    10 * time.Minute,
		},
	}
}

// evaluate 判定规则是否命中，recent是当前key的活动缓冲（含本次活动）
func (r *MonitoringRule) evaluate(recent []models.ActivityData, activity models.ActivityData, now time.Time) bool {
	switch r.Kind {
	case RuleRapidRequests:
		return countWithin(recent, now, r.Window, nil) > r.Threshold
	case RuleFailedAuth:
		return countWithin(recent, now, r.Window, statusIn(401)) >= r.Threshold
	case RuleSuspiciousUserAgent:
		ua := strings.ToLower(activity.UserAgent)
		if ua == "" {
			return false
		}
		for _, marker := range suspiciousUserAgents {
			if strings.Contains(ua, marker) {
				return true
			}
		}
		return false
	case RuleAdminProbe:
		if activity.Response.StatusCode != 403 {
			return false
		}
		url := strings.ToLower(activity.URL)
		for _, path := range adminPathIndicators {
			if strings.Contains(url, path) {
				return true
			}
		}
		return false
	case RulePrivilegeEscalation:
		if activity.UserID == "" {
			return false
		}
		return countWithin(recent, now, r.Window, statusIn(401, 403)) >= r.Threshold
	}
	return false
}

// countWithin 统计窗口内满足条件的活动数量，match为nil时不过滤
func countWithin(recent []models.ActivityData, now time.Time, window time.Duration, match func(models.ActivityData) bool) int {
	cutoff := now.Add(-window)
	count := 0
	for _, a := range recent {
		if a.Timestamp.Before(cutoff) {
			continue
		}
		if match != nil && !match(a) {
			continue
		}
		count++
	}
	return count
}

func statusIn(codes ...int) func(models.ActivityData) bool {
	return func(a models.ActivityData) bool {
		for _, c := range codes {
			if a.Response.StatusCode == c {
				return true
			}
		}
		return false
	}
}

// evaluateRules 按规则表顺序评估，冷却期内跳过，单条规则失败不影响其余规则。
// 调用方需持有key锁，冷却时间戳的读写和触发处理在同一临界区内
func (sm *SecurityMonitor) evaluateRules(st *keyState, activity models.ActivityData, scope ruleScope, now time.Time) {
	for _, r := range sm.rules {
		if !r.Enabled || r.Scope != scope {
			continue
		}
		if last, ok := st.lastTriggered[r.ID]; ok && now.Sub(last) < r.Cooldown {
			continue
		}
		if !sm.safeEvaluate(r, st.activities, activity, now) {
			continue
		}
		st.lastTriggered[r.ID] = now

		sm.recordSuspicious(models.SuspiciousActivity{
			Type:        r.ID,
			Severity:    r.Severity,
			Description: r.Description,
			IPAddress:   activity.IPAddress,
			UserAgent:   activity.UserAgent,
			UserID:      activity.UserID,
			SessionID:   activity.SessionID,
			Timestamp:   now,
			RiskScore:   r.RiskScore,
			Evidence: map[string]interface{}{
				"rule":   r.Name,
				"url":    activity.URL,
				"method": activity.Method,
				"status": activity.Response.StatusCode,
			},
		}, r.AutoBlock, r.ID)
	}
}

// safeEvaluate 单条规则失败时吞掉panic，规则级fail open，出错不封禁
func (sm *SecurityMonitor) safeEvaluate(r *MonitoringRule, recent []models.ActivityData, activity models.ActivityData, now time.Time) (triggered bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Log.Errorf("规则 %s 评估失败: %v", r.ID, rec)
			sm.audit.AddAppLog("error", fmt.Sprintf("规则 %s 评估失败", r.ID), nil, fmt.Sprintf("%v", rec))
			triggered = false
		}
	}()
	return r.evaluate(recent, activity, now)
}
