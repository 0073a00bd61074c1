package monitor

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"go-menshen/pkg/models"
)

func newTestMonitor(cfg Config) *SecurityMonitor {
	if cfg.MaxActivitiesPerKey == 0 {
		cfg.MaxActivitiesPerKey = 1000
	}
	if cfg.Retention == 0 {
		cfg.Retention = 24 * time.Hour
	}
	if cfg.SweepInterval == 0 {
		cfg.SweepInterval = time.Hour
	}
	if cfg.EventBufferSize == 0 {
		cfg.EventBufferSize = 1024
	}
	return New(cfg, nil)
}

func activity(ip string, status int) models.ActivityData {
	return models.ActivityData{
		IPAddress: ip,
		URL:       "/api/products",
		Method:    "GET",
		Timestamp: time.Now(),
		Response:  models.ResponseInfo{StatusCode: status},
	}
}

func suspiciousOfType(sm *SecurityMonitor, activityType string) []models.SuspiciousActivity {
	var out []models.SuspiciousActivity
	for _, sa := range sm.RecentSuspiciousActivities(0) {
		if sa.Type == activityType {
			out = append(out, sa)
		}
	}
	return out
}

func TestRecordUsesSentinelKeyForMissingIP(t *testing.T) {
	sm := newTestMonitor(Config{})
	defer sm.Shutdown()

	sm.Record(models.ActivityData{URL: "/", Method: "GET"})

	if _, ok := sm.ipStates.peek("unknown"); !ok {
		t.Fatal("expected activity without IP to be stored under the sentinel key")
	}
	if got := sm.Stats().TotalActivities; got != 1 {
		t.Fatalf("TotalActivities = %d, want 1", got)
	}
}

func TestRecordWhitelistedIPSkipsAnalysis(t *testing.T) {
	sm := newTestMonitor(Config{WhitelistIPs: []string{"9.9.9.9", "10.0.0.0/8"}})
	defer sm.Shutdown()

	a := activity("9.9.9.9", 200)
	a.UserAgent = "sqlmap/1.7"
	sm.Record(a)

	if got := sm.Stats().TotalActivities; got != 0 {
		t.Fatalf("TotalActivities = %d, want 0 for whitelisted IP", got)
	}
	if len(sm.RecentSuspiciousActivities(0)) != 0 {
		t.Fatal("whitelisted IP must not produce suspicious activities")
	}

	sm.BlockIP("10.1.2.3", "test")
	if sm.IsIPBlocked("10.1.2.3") {
		t.Fatal("whitelisted CIDR member must not be blockable")
	}
}

func TestBufferCapacityEvictsOldestFirst(t *testing.T) {
	sm := newTestMonitor(Config{MaxActivitiesPerKey: 10})
	defer sm.Shutdown()

	for i := 0; i < 15; i++ {
		a := activity("3.3.3.3", 200)
		a.URL = fmt.Sprintf("/u%d", i)
		sm.Record(a)
	}

	st, ok := sm.ipStates.peek("3.3.3.3")
	if !ok {
		t.Fatal("key state missing")
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.activities) != 10 {
		t.Fatalf("buffer size = %d, want 10", len(st.activities))
	}
	if st.activities[0].URL != "/u5" {
		t.Fatalf("oldest retained = %s, want /u5", st.activities[0].URL)
	}
	if st.activities[9].URL != "/u14" {
		t.Fatalf("newest retained = %s, want /u14", st.activities[9].URL)
	}
}

func TestConcurrentRecordSameKey(t *testing.T) {
	sm := newTestMonitor(Config{MaxActivitiesPerKey: 5000, EventBufferSize: 8192})
	defer sm.Shutdown()

	const workers = 50
	const perWorker = 40

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				sm.Record(activity("7.7.7.7", 200))
			}
		}()
	}
	wg.Wait()

	st, ok := sm.ipStates.peek("7.7.7.7")
	if !ok {
		t.Fatal("key state missing")
	}
	st.mu.Lock()
	stored := len(st.activities)
	st.mu.Unlock()
	if stored != workers*perWorker {
		t.Fatalf("stored activities = %d, want %d (no lost records)", stored, workers*perWorker)
	}

	// 并发下同一key的规则也只能触发一次
	if got := len(suspiciousOfType(sm, "rapid_requests")); got != 1 {
		t.Fatalf("rapid_requests triggered %d times, want exactly 1", got)
	}
}

func TestStats(t *testing.T) {
	sm := newTestMonitor(Config{})
	defer sm.Shutdown()

	sm.Record(activity("1.1.1.1", 200))
	sm.Record(activity("2.2.2.2", 200))
	sm.BlockIP("5.5.5.5", "manual")
	sm.BlockUser("u42", "manual")

	stats := sm.Stats()
	if stats.TotalActivities != 2 {
		t.Errorf("TotalActivities = %d, want 2", stats.TotalActivities)
	}
	if stats.BlockedIPs != 1 {
		t.Errorf("BlockedIPs = %d, want 1", stats.BlockedIPs)
	}
	if stats.BlockedUsers != 1 {
		t.Errorf("BlockedUsers = %d, want 1", stats.BlockedUsers)
	}
	if stats.ActiveRules != 5 {
		t.Errorf("ActiveRules = %d, want 5", stats.ActiveRules)
	}
	if stats.ActiveThreatPatterns != 4 {
		t.Errorf("ActiveThreatPatterns = %d, want 4", stats.ActiveThreatPatterns)
	}
}

func TestEventsEmittedOnBlock(t *testing.T) {
	sm := newTestMonitor(Config{})
	defer sm.Shutdown()

	sm.BlockIP("6.6.6.6", "test")

	select {
	case ev := <-sm.Events():
		if ev.Type != "ip_blocked" {
			t.Fatalf("event type = %s, want ip_blocked", ev.Type)
		}
		if !ev.Blocked {
			t.Fatal("block event must carry blocked=true")
		}
		if ev.IPAddress != "6.6.6.6" {
			t.Fatalf("event ip = %s, want 6.6.6.6", ev.IPAddress)
		}
	default:
		t.Fatal("expected a security event on the channel")
	}
}

func TestKeyLockReleasedWhenCriticalSectionPanics(t *testing.T) {
	sm := newTestMonitor(Config{})
	defer sm.Shutdown()

	func() {
		defer func() { _ = recover() }()
		sm.withKeyState(sm.ipStates, "12.12.12.12", func(st *keyState) {
			panic("boom")
		})
	}()

	// 临界区panic后锁必须已释放，否则该key的后续记录会永久阻塞
	done := make(chan struct{})
	go func() {
		sm.Record(activity("12.12.12.12", 200))
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Record blocked on a key whose critical section panicked earlier")
	}

	st, ok := sm.ipStates.peek("12.12.12.12")
	if !ok {
		t.Fatal("key state missing after re-record")
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	if len(st.activities) != 1 {
		t.Fatalf("activities = %d, want 1", len(st.activities))
	}
}

func TestShutdownIdempotent(t *testing.T) {
	sm := newTestMonitor(Config{})
	sm.Shutdown()
	sm.Shutdown() // 重复调用不应panic或阻塞
}

func TestSeverityForScore(t *testing.T) {
	tests := []struct {
		score int
		want  models.Severity
	}{
		{0, models.SeverityLow},
		{39, models.SeverityLow},
		{40, models.SeverityMedium},
		{59, models.SeverityMedium},
		{60, models.SeverityHigh},
		{79, models.SeverityHigh},
		{80, models.SeverityCritical},
		{100, models.SeverityCritical},
	}
	for _, tt := range tests {
		if got := SeverityForScore(tt.score); got != tt.want {
			t.Errorf("SeverityForScore(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestClampScore(t *testing.T) {
	tests := []struct {
		in   int
		want int
	}{
		{-5, 0},
		{0, 0},
		{55, 55},
		{100, 100},
		{140, 100},
	}
	for _, tt := range tests {
		if got := clampScore(tt.in); got != tt.want {
			t.Errorf("clampScore(%d) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
