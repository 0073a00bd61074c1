package monitor

import (
	"fmt"
	"testing"
	"time"

	"go-menshen/pkg/models"
)

// seedIP 直接向key缓冲注入活动，绕过规则评估，保证分析测试不受触发副作用影响
func seedIP(sm *SecurityMonitor, key string, activities []models.ActivityData) {
	st := sm.ipStates.acquire(key)
	for _, a := range activities {
		st.append(a, sm.cfg.MaxActivitiesPerKey)
	}
	st.mu.Unlock()
}

func seedUser(sm *SecurityMonitor, key string, activities []models.ActivityData) {
	st := sm.userStates.acquire(key)
	for _, a := range activities {
		st.append(a, sm.cfg.MaxActivitiesPerKey)
	}
	st.mu.Unlock()
}

func TestIPAnalysisUnknownIPReturnsNil(t *testing.T) {
	sm := newTestMonitor(Config{})
	defer sm.Shutdown()

	if got := sm.IPAnalysis("203.0.113.1"); got != nil {
		t.Fatalf("IPAnalysis for unseen IP = %+v, want nil", got)
	}
	if got := sm.UserBehaviorAnalysis("nobody"); got != nil {
		t.Fatalf("UserBehaviorAnalysis for unseen user = %+v, want nil", got)
	}
}

func TestIPAnalysisOnlyStaleEntriesReturnsNil(t *testing.T) {
	sm := newTestMonitor(Config{Retention: time.Hour})
	defer sm.Shutdown()

	old := activity("198.51.100.7", 200)
	old.Timestamp = time.Now().Add(-2 * time.Hour)
	seedIP(sm, "198.51.100.7", []models.ActivityData{old})

	if got := sm.IPAnalysis("198.51.100.7"); got != nil {
		t.Fatalf("IPAnalysis with only stale entries = %+v, want nil", got)
	}
}

func TestIPAnalysisWeightedScore(t *testing.T) {
	sm := newTestMonitor(Config{MaxActivitiesPerKey: 500})
	defer sm.Shutdown()

	// 150个请求、20次失败、6个UA、平均间隔500ms、60个端点 → 30+25+15+20+10 = 100
	const n = 150
	start := time.Now().Add(-time.Duration(n) * 500 * time.Millisecond)
	activities := make([]models.ActivityData, 0, n)
	for i := 0; i < n; i++ {
		status := 200
		if i < 20 {
			status = 500
		}
		activities = append(activities, models.ActivityData{
			IPAddress: "198.51.100.9",
			UserAgent: fmt.Sprintf("agent-%d", i%6),
			URL:       fmt.Sprintf("/api/endpoint-%d", i%60),
			Method:    "GET",
			Timestamp: start.Add(time.Duration(i) * 500 * time.Millisecond),
			Response:  models.ResponseInfo{StatusCode: status},
		})
	}
	seedIP(sm, "198.51.100.9", activities)

	got := sm.IPAnalysis("198.51.100.9")
	if got == nil {
		t.Fatal("IPAnalysis = nil, want result")
	}
	if got.RequestCount != n {
		t.Errorf("RequestCount = %d, want %d", got.RequestCount, n)
	}
	if got.FailedAttempts != 20 {
		t.Errorf("FailedAttempts = %d, want 20", got.FailedAttempts)
	}
	if got.UniqueUserAgents != 6 {
		t.Errorf("UniqueUserAgents = %d, want 6", got.UniqueUserAgents)
	}
	if got.UniqueEndpoints != 60 {
		t.Errorf("UniqueEndpoints = %d, want 60", got.UniqueEndpoints)
	}
	if got.AvgRequestInterval < 499 || got.AvgRequestInterval > 501 {
		t.Errorf("AvgRequestInterval = %.1fms, want ~500ms", got.AvgRequestInterval)
	}
	if got.RiskScore != 100 {
		t.Errorf("RiskScore = %d, want 100 (capped)", got.RiskScore)
	}
	if got.FirstSeen.After(got.LastSeen) {
		t.Error("FirstSeen must not be after LastSeen")
	}
}

func TestIPAnalysisSubMillisecondBurst(t *testing.T) {
	sm := newTestMonitor(Config{MaxActivitiesPerKey: 500})
	defer sm.Shutdown()

	// 150个请求、间隔500µs、60个端点 → 30+20+10 = 60
	const n = 150
	start := time.Now().Add(-time.Duration(n) * 500 * time.Microsecond)
	activities := make([]models.ActivityData, 0, n)
	for i := 0; i < n; i++ {
		activities = append(activities, models.ActivityData{
			IPAddress: "198.51.100.13",
			UserAgent: "agent-a",
			URL:       fmt.Sprintf("/api/endpoint-%d", i%60),
			Method:    "GET",
			Timestamp: start.Add(time.Duration(i) * 500 * time.Microsecond),
			Response:  models.ResponseInfo{StatusCode: 200},
		})
	}
	seedIP(sm, "198.51.100.13", activities)

	got := sm.IPAnalysis("198.51.100.13")
	if got == nil {
		t.Fatal("IPAnalysis = nil, want result")
	}
	if got.AvgRequestInterval <= 0 || got.AvgRequestInterval >= 1 {
		t.Errorf("AvgRequestInterval = %.3fms, want ~0.5ms", got.AvgRequestInterval)
	}
	if got.RiskScore != 60 {
		t.Errorf("RiskScore = %d, want 60 (fast bursts must keep the interval weight)", got.RiskScore)
	}
}

func TestIPAnalysisLowActivityScoresZero(t *testing.T) {
	sm := newTestMonitor(Config{})
	defer sm.Shutdown()

	now := time.Now()
	activities := []models.ActivityData{
		{IPAddress: "198.51.100.10", UserAgent: "agent-a", URL: "/a", Timestamp: now.Add(-time.Hour), Response: models.ResponseInfo{StatusCode: 200}},
		{IPAddress: "198.51.100.10", UserAgent: "agent-a", URL: "/b", Timestamp: now, Response: models.ResponseInfo{StatusCode: 200}},
	}
	seedIP(sm, "198.51.100.10", activities)

	got := sm.IPAnalysis("198.51.100.10")
	if got == nil {
		t.Fatal("IPAnalysis = nil, want result")
	}
	if got.RiskScore != 0 {
		t.Errorf("RiskScore = %d, want 0 for benign profile", got.RiskScore)
	}
	if got.IsBlocked {
		t.Error("IsBlocked = true, want false")
	}
}

func TestUserBehaviorAnalysisWeightedScore(t *testing.T) {
	sm := newTestMonitor(Config{MaxActivitiesPerKey: 1000})
	defer sm.Shutdown()

	// 6次登录失败(+30)、4次后台403(+40)、6个会话(+20)、520个请求(+10) → 封顶100
	now := time.Now()
	var activities []models.ActivityData
	for i := 0; i < 520; i++ {
		a := models.ActivityData{
			IPAddress: "198.51.100.11",
			UserID:    "user-9",
			SessionID: fmt.Sprintf("sess-%d", i%6),
			URL:       "/api/orders",
			Timestamp: now.Add(-time.Duration(520-i) * time.Second),
			Response:  models.ResponseInfo{StatusCode: 200},
		}
		switch {
		case i < 6:
			a.Response.StatusCode = 401
			a.URL = "/api/login"
		case i < 10:
			a.Response.StatusCode = 403
			a.URL = "/admin/settings"
		}
		activities = append(activities, a)
	}
	seedUser(sm, "user-9", activities)

	got := sm.UserBehaviorAnalysis("user-9")
	if got == nil {
		t.Fatal("UserBehaviorAnalysis = nil, want result")
	}
	if got.FailedLogins != 6 {
		t.Errorf("FailedLogins = %d, want 6", got.FailedLogins)
	}
	if got.PrivilegeEscalationAttempts != 4 {
		t.Errorf("PrivilegeEscalationAttempts = %d, want 4", got.PrivilegeEscalationAttempts)
	}
	if got.SessionCount != 6 {
		t.Errorf("SessionCount = %d, want 6", got.SessionCount)
	}
	if got.RequestCount != 520 {
		t.Errorf("RequestCount = %d, want 520", got.RequestCount)
	}
	if got.RiskScore != 100 {
		t.Errorf("RiskScore = %d, want 100 (capped)", got.RiskScore)
	}
}

func TestUserBehaviorAnalysisModerateScore(t *testing.T) {
	sm := newTestMonitor(Config{})
	defer sm.Shutdown()

	// 只有登录失败超阈值 → 30
	now := time.Now()
	var activities []models.ActivityData
	for i := 0; i < 8; i++ {
		activities = append(activities, models.ActivityData{
			IPAddress: "198.51.100.12",
			UserID:    "user-10",
			SessionID: "sess-1",
			URL:       "/api/login",
			Timestamp: now.Add(-time.Duration(8-i) * time.Minute),
			Response:  models.ResponseInfo{StatusCode: 401},
		})
	}
	seedUser(sm, "user-10", activities)

	got := sm.UserBehaviorAnalysis("user-10")
	if got == nil {
		t.Fatal("UserBehaviorAnalysis = nil, want result")
	}
	if got.RiskScore != 30 {
		t.Errorf("RiskScore = %d, want 30", got.RiskScore)
	}
}
