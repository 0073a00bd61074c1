package consumer

import (
	"encoding/json"
	"testing"
	"time"
)

func TestToActivityMapsTrafficRecord(t *testing.T) {
	raw := `{
		"@timestamp": "2026-08-01T12:00:00Z",
		"type": "http",
		"method": "POST",
		"url": {"full": "/api/login"},
		"related": {"ip": ["10.0.0.1", "203.0.113.9"]},
		"user": {"id": "user-3"},
		"http": {
			"request": {
				"headers": {"user-agent": "Mozilla/5.0", "cookie": "sid=abc"},
				"body": {"content": "{\"username\":\"a\"}"}
			},
			"response": {"status_code": 401}
		}
	}`

	var record trafficRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	a := toActivity(record)

	if a.IPAddress != "203.0.113.9" {
		t.Errorf("IPAddress = %s, want last related.ip entry", a.IPAddress)
	}
	if a.UserAgent != "Mozilla/5.0" {
		t.Errorf("UserAgent = %s", a.UserAgent)
	}
	if a.SessionID != "sid=abc" {
		t.Errorf("SessionID = %s", a.SessionID)
	}
	if a.UserID != "user-3" {
		t.Errorf("UserID = %s", a.UserID)
	}
	if a.URL != "/api/login" {
		t.Errorf("URL = %s", a.URL)
	}
	if a.Method != "POST" {
		t.Errorf("Method = %s", a.Method)
	}
	if a.Response.StatusCode != 401 {
		t.Errorf("StatusCode = %d", a.Response.StatusCode)
	}
	want := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	if !a.Timestamp.Equal(want) {
		t.Errorf("Timestamp = %v, want %v", a.Timestamp, want)
	}
}

func TestToActivityMissingIPUsesSentinel(t *testing.T) {
	a := toActivity(trafficRecord{})
	if a.IPAddress != "unknown" {
		t.Fatalf("IPAddress = %s, want unknown", a.IPAddress)
	}
	if a.Timestamp.IsZero() {
		t.Fatal("zero timestamp must be replaced")
	}
}

func TestToActivityUserIDHeaderFallback(t *testing.T) {
	var record trafficRecord
	record.Related.IP = []string{"198.51.100.3"}
	record.HTTP.Request.Headers = map[string]string{"x-user-id": "hdr-user"}

	a := toActivity(record)
	if a.UserID != "hdr-user" {
		t.Fatalf("UserID = %s, want header fallback hdr-user", a.UserID)
	}
}
