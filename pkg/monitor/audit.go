package monitor

import (
	"sync"
	"time"

	"go-menshen/pkg/models"

	"github.com/google/uuid"
)

const (
	suspiciousCap  = 1000
	suspiciousKeep = 500
	eventsCap      = 500
	eventsKeep     = 250
	appLogsCap     = 1000
	appLogsKeep    = 500
)

// AuditLog 有界的追加式审计缓冲：可疑活动、安全事件、应用日志
// 超出上限时静默裁剪到保留量，最旧的先丢
type AuditLog struct {
	mu         sync.Mutex
	suspicious []models.SuspiciousActivity
	events     []models.SecurityEvent
	appLogs    []models.AppLog
}

func NewAuditLog() *AuditLog {
	return &AuditLog{}
}

func (a *AuditLog) AddSuspicious(sa models.SuspiciousActivity) {
	a.mu.Lock()
	a.suspicious = append(a.suspicious, sa)
	if len(a.suspicious) > suspiciousCap {
		a.suspicious = trimOldest(a.suspicious, suspiciousKeep)
	}
	a.mu.Unlock()
}

func (a *AuditLog) AddEvent(ev models.SecurityEvent) {
	a.mu.Lock()
	a.events = append(a.events, ev)
	if len(a.events) > eventsCap {
		a.events = trimOldest(a.events, eventsKeep)
	}
	a.mu.Unlock()
}

func (a *AuditLog) AddAppLog(level, message string, ctx map[string]interface{}, errDetail string) {
	entry := models.AppLog{
		ID:        uuid.NewString(),
		Level:     level,
		Message:   message,
		Timestamp: time.Now(),
		Context:   sanitizeContext(ctx),
		Error:     errDetail,
	}
	a.mu.Lock()
	a.appLogs = append(a.appLogs, entry)
	if len(a.appLogs) > appLogsCap {
		a.appLogs = trimOldest(a.appLogs, appLogsKeep)
	}
	a.mu.Unlock()
}

// RecentSuspicious 返回最近的可疑活动，最新的在前
func (a *AuditLog) RecentSuspicious(limit int) []models.SuspiciousActivity {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := len(a.suspicious)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]models.SuspiciousActivity, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, a.suspicious[i])
	}
	return out
}

func (a *AuditLog) SuspiciousCount() int {
	a.mu.Lock()
	n := len(a.suspicious)
	a.mu.Unlock()
	return n
}

func (a *AuditLog) EventCount() int {
	a.mu.Lock()
	n := len(a.events)
	a.mu.Unlock()
	return n
}

func (a *AuditLog) AppLogCount() int {
	a.mu.Lock()
	n := len(a.appLogs)
	a.mu.Unlock()
	return n
}

// TrimSuspiciousBefore 按时间裁剪可疑活动，清理任务按保留窗口调用
func (a *AuditLog) TrimSuspiciousBefore(cutoff time.Time) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	kept := a.suspicious[:0]
	for _, sa := range a.suspicious {
		if sa.Timestamp.After(cutoff) {
			kept = append(kept, sa)
		}
	}
	removed := len(a.suspicious) - len(kept)
	a.suspicious = kept
	return removed
}

// trimOldest 裁剪到最近keep条
func trimOldest[T any](list []T, keep int) []T {
	if len(list) <= keep {
		return list
	}
	out := make([]T, keep)
	copy(out, list[len(list)-keep:])
	return out
}
