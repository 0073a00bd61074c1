package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go-menshen/pkg/logger"
	"go-menshen/pkg/metrics"
	"go-menshen/pkg/models"

	"github.com/google/uuid"
)

// Config 监控引擎配置，容量和窗口都是配置项而非硬编码
type Config struct {
	MaxActivitiesPerKey int
	Retention           time.Duration
	SweepInterval       time.Duration
	EventBufferSize     int
	WhitelistIPs        []string
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		MaxActivitiesPerKey: 1000,
		Retention:           24 * time.Hour,
		SweepInterval:       time.Hour,
		EventBufferSize:     4096,
	}
}

// SecurityMonitor 运行时安全监控引擎
// 进程内单例，由main构造后注入各接入路径
type SecurityMonitor struct {
	cfg Config

	rules    []*MonitoringRule
	patterns []*ThreatPattern

	ipStates   *stateMap
	userStates *stateMap

	blocklist *Blocklist
	whitelist *Whitelist
	audit     *AuditLog
	geo       *GeoEnricher

	events chan models.SecurityEvent

	totalActivities atomic.Uint64

	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New 创建监控引擎并启动后台清理任务
func New(cfg Config, geo *GeoEnricher) *SecurityMonitor {
	if cfg.MaxActivitiesPerKey <= 0 {
		cfg.MaxActivitiesPerKey = 1000
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.SweepInterval <= 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.EventBufferSize <= 0 {
		cfg.EventBufferSize = 4096
	}

	ctx, cancel := context.WithCancel(context.Background())
	sm := &SecurityMonitor{
		cfg:        cfg,
		rules:      defaultRules(),
		patterns:   defaultThreatPatterns(),
		ipStates:   newStateMap(),
		userStates: newStateMap(),
		blocklist:  NewBlocklist(),
		whitelist:  NewWhitelist(cfg.WhitelistIPs),
		audit:      NewAuditLog(),
		geo:        geo,
		events:     make(chan models.SecurityEvent, cfg.EventBufferSize),
		ctx:        ctx,
		cancel:     cancel,
	}

	sm.wg.Add(1)
	go sm.runSweeper()

	return sm
}

// Record 记录一条活动并同步评估规则和威胁特征
// 永不向调用方返回错误，内部失败只记日志
func (sm *SecurityMonitor) Record(activity models.ActivityData) {
	defer func() {
		if r := recover(); r != nil {
			logger.Log.Errorf("活动记录处理异常: %v", r)
		}
	}()

	if activity.IPAddress == "" {
		activity.IPAddress = "unknown"
	}
	if activity.Timestamp.IsZero() {
		activity.Timestamp = time.Now()
	}

	// 白名单IP不参与记录和分析
	if sm.whitelist.Contains(activity.IPAddress) {
		logger.Log.Debugf("IP %s 在白名单中，跳过分析", activity.IPAddress)
		return
	}

	sm.totalActivities.Add(1)
	metrics.ActivitiesProcessed.Inc()

	now := time.Now()

	// IP维度：追加、规则评估、特征匹配在同一个临界区内完成，
	// 避免并发写同一key时重复触发或丢失记录
	sm.withKeyState(sm.ipStates, activity.IPAddress, func(st *keyState) {
		st.append(activity, sm.cfg.MaxActivitiesPerKey)
		sm.evaluateRules(st, activity, scopeIP, now)
		sm.evaluatePatterns(activity, now)
	})

	// 用户维度
	if activity.UserID != "" {
		sm.withKeyState(sm.userStates, activity.UserID, func(st *keyState) {
			st.append(activity, sm.cfg.MaxActivitiesPerKey)
			sm.evaluateRules(st, activity, scopeUser, now)
		})
	}
}

// withKeyState 在key锁内执行fn，defer保证fn panic时锁也会释放，
// 否则该key后续的记录和清理都会永久阻塞
func (sm *SecurityMonitor) withKeyState(m *stateMap, key string, fn func(st *keyState)) {
	st := m.acquire(key)
	defer st.mu.Unlock()
	fn(st)
}

// IsIPBlocked 查询IP是否被封禁，接入层在处理请求前调用
func (sm *SecurityMonitor) IsIPBlocked(ip string) bool {
	return sm.blocklist.IsIPBlocked(ip)
}

// IsUserBlocked 查询用户是否被封禁
func (sm *SecurityMonitor) IsUserBlocked(userID string) bool {
	return sm.blocklist.IsUserBlocked(userID)
}

// BlockIP 封禁IP并发出安全事件，重复封禁只补记日志
func (sm *SecurityMonitor) BlockIP(ip, reason string) {
	if sm.whitelist.Contains(ip) {
		logger.Log.Warnf("IP %s 在白名单中，拒绝封禁: %s", ip, reason)
		return
	}
	already := !sm.blocklist.BlockIP(ip, reason)
	metrics.BlockedIPs.Set(float64(sm.blocklist.IPCount()))
	sm.emitEvent(models.SecurityEvent{
		Type:      "ip_blocked",
		Severity:  models.SeverityHigh,
		Message:   "IP封禁: " + reason,
		IPAddress: ip,
		Blocked:   true,
		Context:   map[string]interface{}{"reason": reason, "already_blocked": already},
	})
}

// UnblockIP 解除IP封禁
func (sm *SecurityMonitor) UnblockIP(ip string) {
	if !sm.blocklist.UnblockIP(ip) {
		return
	}
	metrics.BlockedIPs.Set(float64(sm.blocklist.IPCount()))
	sm.emitEvent(models.SecurityEvent{
		Type:      "ip_unblocked",
		Severity:  models.SeverityLow,
		Message:   "IP解除封禁",
		IPAddress: ip,
	})
}

// BlockUser 封禁用户
func (sm *SecurityMonitor) BlockUser(userID, reason string) {
	already := !sm.blocklist.BlockUser(userID, reason)
	metrics.BlockedUsers.Set(float64(sm.blocklist.UserCount()))
	sm.emitEvent(models.SecurityEvent{
		Type:     "user_blocked",
		Severity: models.SeverityHigh,
		Message:  "用户封禁: " + reason,
		UserID:   userID,
		Blocked:  true,
		Context:  map[string]interface{}{"reason": reason, "already_blocked": already},
	})
}

// UnblockUser 解除用户封禁
func (sm *SecurityMonitor) UnblockUser(userID string) {
	if !sm.blocklist.UnblockUser(userID) {
		return
	}
	metrics.BlockedUsers.Set(float64(sm.blocklist.UserCount()))
	sm.emitEvent(models.SecurityEvent{
		Type:     "user_unblocked",
		Severity: models.SeverityLow,
		Message:  "用户解除封禁",
		UserID:   userID,
	})
}

// RecentSuspiciousActivities 返回最近的可疑活动，最新的在前
func (sm *SecurityMonitor) RecentSuspiciousActivities(limit int) []models.SuspiciousActivity {
	return sm.audit.RecentSuspicious(limit)
}

// Events 返回安全事件通道，供告警/导出侧消费
func (sm *SecurityMonitor) Events() <-chan models.SecurityEvent {
	return sm.events
}

// Stats 返回引擎运行统计
func (sm *SecurityMonitor) Stats() models.MonitoringStats {
	activeRules := 0
	for _, r := range sm.rules {
		if r.Enabled {
			activeRules++
		}
	}
	activePatterns := 0
	for _, p := range sm.patterns {
		if p.Enabled {
			activePatterns++
		}
	}
	return models.MonitoringStats{
		TotalActivities:      sm.totalActivities.Load(),
		BlockedIPs:           sm.blocklist.IPCount(),
		BlockedUsers:         sm.blocklist.UserCount(),
		SuspiciousActivities: sm.audit.SuspiciousCount(),
		ActiveRules:          activeRules,
		ActiveThreatPatterns: activePatterns,
	}
}

// Shutdown 停止后台清理任务，可重复调用
// 进行中的Record会自然完成，不会开始新的清理周期
func (sm *SecurityMonitor) Shutdown() {
	sm.stopOnce.Do(func() {
		sm.cancel()
		sm.wg.Wait()
		logger.Log.Info("监控引擎已停止")
	})
}

// recordSuspicious 统一落盘可疑活动：审计缓冲、指标、安全事件、自动封禁
func (sm *SecurityMonitor) recordSuspicious(sa models.SuspiciousActivity, autoBlock bool, source string) {
	sa.ID = uuid.NewString()
	sa.RiskScore = clampScore(sa.RiskScore)
	if sa.Evidence == nil {
		sa.Evidence = make(map[string]interface{})
	}
	sa.Evidence = sanitizeContext(sa.Evidence)

	if sm.geo != nil {
		sm.geo.Annotate(sa.IPAddress, sa.Evidence)
	}

	if autoBlock {
		sa.Blocked = true
		sa.ActionTaken = "auto_block"
	} else {
		sa.ActionTaken = "logged"
	}

	sm.audit.AddSuspicious(sa)
	metrics.SuspiciousActivities.WithLabelValues(source).Inc()
	metrics.RiskScoreHistogram.Observe(float64(sa.RiskScore))

	sm.emitEvent(models.SecurityEvent{
		Type:      "suspicious_activity",
		Severity:  sa.Severity,
		Message:   sa.Description,
		IPAddress: sa.IPAddress,
		UserID:    sa.UserID,
		Blocked:   sa.Blocked,
		Context: map[string]interface{}{
			"activity_type": sa.Type,
			"risk_score":    sa.RiskScore,
			"evidence":      sa.Evidence,
		},
	})

	if autoBlock {
		sm.BlockIP(sa.IPAddress, sa.Type)
		if sa.Type == "privilege_escalation" && sa.UserID != "" {
			sm.BlockUser(sa.UserID, sa.Type)
		}
	}

	logger.Log.Warnf("可疑活动: type=%s, ip=%s, user=%s, score=%d, blocked=%v",
		sa.Type, sa.IPAddress, sa.UserID, sa.RiskScore, sa.Blocked)
}

// emitEvent 发出安全事件：写审计缓冲并推送到事件通道
// 热路径不做同步IO，通道满时丢弃并计数
func (sm *SecurityMonitor) emitEvent(ev models.SecurityEvent) {
	ev.ID = uuid.NewString()
	ev.Timestamp = time.Now()
	ev.Context = sanitizeContext(ev.Context)

	sm.audit.AddEvent(ev)

	select {
	case sm.events <- ev:
	default:
		metrics.EventsDropped.Inc()
		logger.Log.Warnf("事件通道已满，丢弃事件: type=%s", ev.Type)
	}
}
