package models

import (
	"time"
)

// Severity 风险等级
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rank 返回等级的排序值，用于告警阈值比较
func (s Severity) Rank() int {
	switch s {
	case SeverityCritical:
		return 4
	case SeverityHigh:
		return 3
	case SeverityMedium:
		return 2
	case SeverityLow:
		return 1
	}
	return 0
}

// ResponseInfo 请求对应的响应信息
type ResponseInfo struct {
	StatusCode int               `json:"status_code"`
	Headers    map[string]string `json:"headers,omitempty"`
}

// ActivityData 表示一次请求的活动记录，是监控引擎的观测单元
// 由接入层（消费者/中间件）构造，写入后不再修改
type ActivityData struct {
	IPAddress string            `json:"ip_address"`
	UserAgent string            `json:"user_agent,omitempty"`
	UserID    string            `json:"user_id,omitempty"`
	SessionID string            `json:"session_id,omitempty"`
	URL       string            `json:"url"`
	Method    string            `json:"method"`
	Timestamp time.Time         `json:"timestamp"`
	Headers   map[string]string `json:"headers,omitempty"`
	Body      string            `json:"body,omitempty"`
	Response  ResponseInfo      `json:"response"`
}

// SuspiciousActivity 规则或威胁特征命中后生成的可疑活动记录
type SuspiciousActivity struct {
	ID          string                 `json:"id"`
	Type        string                 `json:"type"`
	Severity    Severity               `json:"severity"`
	Description string                 `json:"description"`
	IPAddress   string                 `json:"ip_address"`
	UserAgent   string                 `json:"user_agent,omitempty"`
	UserID      string                 `json:"user_id,omitempty"`
	SessionID   string                 `json:"session_id,omitempty"`
	Timestamp   time.Time              `json:"timestamp"`
	RiskScore   int                    `json:"risk_score"`
	Evidence    map[string]interface{} `json:"evidence,omitempty"`
	Blocked     bool                   `json:"blocked"`
	ActionTaken string                 `json:"action_taken"`
}

// SecurityEvent 输出给审计/告警侧的安全事件
type SecurityEvent struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Severity  Severity               `json:"severity"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	IPAddress string                 `json:"ip_address,omitempty"`
	UserID    string                 `json:"user_id,omitempty"`
	Blocked   bool                   `json:"blocked"`
	Context   map[string]interface{} `json:"context,omitempty"`
}

// AppLog 引擎侧的应用日志记录，入审计缓冲前需脱敏
type AppLog struct {
	ID        string                 `json:"id"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Timestamp time.Time              `json:"timestamp"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Error     string                 `json:"error,omitempty"`
}

// IPAnalysis 按IP维度的行为分析结果，查询时实时计算，不落库
type IPAnalysis struct {
	IPAddress          string    `json:"ip_address"`
	RequestCount       int       `json:"request_count"`
	FailedAttempts     int       `json:"failed_attempts"`
	UniqueUserAgents   int       `json:"unique_user_agents"`
	UniqueEndpoints    int       `json:"unique_endpoints"`
	AvgRequestInterval float64   `json:"avg_request_interval_ms"`
	RiskScore          int       `json:"risk_score"`
	IsBlocked          bool      `json:"is_blocked"`
	CountryCode        string    `json:"country_code,omitempty"`
	ASNOrg             string    `json:"asn_org,omitempty"`
	FirstSeen          time.Time `json:"first_seen"`
	LastSeen           time.Time `json:"last_seen"`
}

// UserBehaviorAnalysis 按用户维度的行为分析结果
type UserBehaviorAnalysis struct {
	UserID                      string    `json:"user_id"`
	RequestCount                int       `json:"request_count"`
	FailedAttempts              int       `json:"failed_attempts"`
	FailedLogins                int       `json:"failed_logins"`
	PrivilegeEscalationAttempts int       `json:"privilege_escalation_attempts"`
	SessionCount                int       `json:"session_count"`
	UniqueUserAgents            int       `json:"unique_user_agents"`
	UniqueEndpoints             int       `json:"unique_endpoints"`
	AvgRequestInterval          float64   `json:"avg_request_interval_ms"`
	RiskScore                   int       `json:"risk_score"`
	IsBlocked                   bool      `json:"is_blocked"`
	FirstSeen                   time.Time `json:"first_seen"`
	LastSeen                    time.Time `json:"last_seen"`
}

// MonitoringStats 引擎运行统计
type MonitoringStats struct {
	TotalActivities      uint64 `json:"total_activities"`
	BlockedIPs           int    `json:"blocked_ips"`
	BlockedUsers         int    `json:"blocked_users"`
	SuspiciousActivities int    `json:"suspicious_activities"`
	ActiveRules          int    `json:"active_rules"`
	ActiveThreatPatterns int    `json:"active_threat_patterns"`
}
