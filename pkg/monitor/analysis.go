package monitor

import (
	"strings"
	"time"

	"go-menshen/pkg/models"
)

// IPAnalysis 计算某个IP在保留窗口内的聚合行为画像
// 每次查询实时计算，没有近期活动时返回nil
func (sm *SecurityMonitor) IPAnalysis(ip string) *models.IPAnalysis {
	recent := sm.recentActivities(sm.ipStates, ip)
	if len(recent) == 0 {
		return nil
	}

	agg := aggregate(recent)

	score := 0
	if agg.requestCount > 100 {
		score += 30
	}
	if agg.failedAttempts > 10 {
		score += 25
	}
	if agg.uniqueUserAgents > 5 {
		score += 15
	}
	if agg.requestCount > 1 && agg.avgIntervalMs < 1000 {
		score += 20
	}
	if agg.uniqueEndpoints > 50 {
		score += 10
	}

	out := &models.IPAnalysis{
		IPAddress:          ip,
		RequestCount:       agg.requestCount,
		FailedAttempts:     agg.failedAttempts,
		UniqueUserAgents:   agg.uniqueUserAgents,
		UniqueEndpoints:    agg.uniqueEndpoints,
		AvgRequestInterval: agg.avgIntervalMs,
		RiskScore:          clampScore(score),
		IsBlocked:          sm.blocklist.IsIPBlocked(ip),
		FirstSeen:          agg.firstSeen,
		LastSeen:           agg.lastSeen,
	}
	if sm.geo != nil {
		out.CountryCode, out.ASNOrg = sm.geo.Lookup(ip)
	}
	return out
}

// UserBehaviorAnalysis 计算某个用户在保留窗口内的聚合行为画像
func (sm *SecurityMonitor) UserBehaviorAnalysis(userID string) *models.UserBehaviorAnalysis {
	recent := sm.recentActivities(sm.userStates, userID)
	if len(recent) == 0 {
		return nil
	}

	agg := aggregate(recent)

	failedLogins := 0
	privEscalation := 0
	sessions := make(map[string]struct{})
	for _, a := range recent {
		switch a.Response.StatusCode {
		case 401:
			failedLogins++
		case 403:
			if isAdminPath(a.URL) {
				privEscalation++
			}
		}
		if a.SessionID != "" {
			sessions[a.SessionID] = struct{}{}
		}
	}

	score := 0
	if failedLogins > 5 {
		score += 30
	}
	if privEscalation > 3 {
		score += 40
	}
	if len(sessions) > 5 {
		score += 20
	}
	if agg.requestCount > 500 {
		score += 10
	}

	return &models.UserBehaviorAnalysis{
		UserID:                      userID,
		RequestCount:                agg.requestCount,
		FailedAttempts:              agg.failedAttempts,
		FailedLogins:                failedLogins,
		PrivilegeEscalationAttempts: privEscalation,
		SessionCount:                len(sessions),
		UniqueUserAgents:            agg.uniqueUserAgents,
		UniqueEndpoints:             agg.uniqueEndpoints,
		AvgRequestInterval:          agg.avgIntervalMs,
		RiskScore:                   clampScore(score),
		IsBlocked:                   sm.blocklist.IsUserBlocked(userID),
		FirstSeen:                   agg.firstSeen,
		LastSeen:                    agg.lastSeen,
	}
}

// recentActivities 取出保留窗口内的活动副本，只短暂持有key锁
func (sm *SecurityMonitor) recentActivities(m *stateMap, key string) []models.ActivityData {
	st, ok := m.peek(key)
	if !ok {
		return nil
	}
	cutoff := time.Now().Add(-sm.cfg.Retention)
	st.mu.Lock()
	recent := st.recentCopy(cutoff)
	st.mu.Unlock()
	return recent
}

type aggregation struct {
	requestCount     int
	failedAttempts   int
	uniqueUserAgents int
	uniqueEndpoints  int
	avgIntervalMs    float64
	firstSeen        time.Time
	lastSeen         time.Time
}

func aggregate(recent []models.ActivityData) aggregation {
	agg := aggregation{requestCount: len(recent)}

	userAgents := make(map[string]struct{})
	endpoints := make(map[string]struct{})
	var intervalSum float64

	for i, a := range recent {
		if a.Response.StatusCode >= 400 {
			agg.failedAttempts++
		}
		if a.UserAgent != "" {
			userAgents[a.UserAgent] = struct{}{}
		}
		if a.URL != "" {
			endpoints[a.URL] = struct{}{}
		}
		if agg.firstSeen.IsZero() || a.Timestamp.Before(agg.firstSeen) {
			agg.firstSeen = a.Timestamp
		}
		if a.Timestamp.After(agg.lastSeen) {
			agg.lastSeen = a.Timestamp
		}
		if i > 0 {
			// 保留亚毫秒精度，Milliseconds()会把极快的突发截断成0
			intervalSum += a.Timestamp.Sub(recent[i-1].Timestamp).Seconds() * 1000
		}
	}

	agg.uniqueUserAgents = len(userAgents)
	agg.uniqueEndpoints = len(endpoints)
	if len(recent) > 1 {
		agg.avgIntervalMs = intervalSum / float64(len(recent)-1)
	}
	return agg
}

func isAdminPath(url string) bool {
	lurl := strings.ToLower(url)
	for _, path := range adminPathIndicators {
		if strings.Contains(lurl, path) {
			return true
		}
	}
	return false
}
