package alerter

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"go-menshen/pkg/logger"
	"go-menshen/pkg/models"
	"go-menshen/pkg/storage"
)

// Alerter 消费监控引擎的安全事件流：达到等级阈值的事件
// 推送webhook并写入导出存储，同一来源有冷却期避免告警风暴
type Alerter struct {
	storage     *storage.Storage // 可以为nil
	webhookURL  string
	minSeverity models.Severity
	cooldown    time.Duration
	httpClient  *http.Client

	alertHistory   map[string]time.Time // ip:user -> 最后告警时间
	alertHistoryMu sync.RWMutex
}

func NewAlerter(storage *storage.Storage, webhookURL string, minSeverity models.Severity, cooldown time.Duration) *Alerter {
	a := &Alerter{
		storage:      storage,
		webhookURL:   webhookURL,
		minSeverity:  minSeverity,
		cooldown:     cooldown,
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		alertHistory: make(map[string]time.Time),
	}

	// 从导出存储恢复冷却状态，避免重启后立刻重复告警
	if storage != nil {
		if recent, err := storage.RecentAlertKeys(cooldown); err != nil {
			logger.Log.Errorf("加载最近告警记录失败: %v", err)
		} else {
			a.alertHistory = recent
			logger.Log.Infof("已加载 %d 条最近告警记录", len(recent))
		}
	}

	return a
}

// Run 消费事件直到上下文取消，应在独立goroutine中运行
func (a *Alerter) Run(ctx context.Context, events <-chan models.SecurityEvent) {
	cleanupTicker := time.NewTicker(time.Minute)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-cleanupTicker.C:
			a.cleanupOldHistory()
		case ev := <-events:
			a.handleEvent(ev)
		}
	}
}

func (a *Alerter) handleEvent(ev models.SecurityEvent) {
	// 所有事件都进导出存储，告警阈值只控制webhook
	if a.storage != nil {
		if err := a.storage.SaveSecurityEvent(ev); err != nil {
			logger.Log.Errorf("保存安全事件失败: %v", err)
		}
	}

	if ev.Severity.Rank() < a.minSeverity.Rank() {
		return
	}

	fingerprint := ev.IPAddress + ":" + ev.UserID

	a.alertHistoryMu.RLock()
	lastAlert, exists := a.alertHistory[fingerprint]
	a.alertHistoryMu.RUnlock()

	now := time.Now()
	if exists && now.Sub(lastAlert) < a.cooldown {
		logger.Log.Debugf("来源 %s 在告警冷却期内，跳过", fingerprint)
		return
	}

	if err := a.sendWebhook(ev); err != nil {
		logger.Log.Errorf("发送告警通知失败: %v", err)
		return
	}

	a.alertHistoryMu.Lock()
	a.alertHistory[fingerprint] = now
	a.alertHistoryMu.Unlock()

	logger.Log.Infof("已触发告警: type=%s, severity=%s, 来源=%s", ev.Type, ev.Severity, fingerprint)
}

func (a *Alerter) sendWebhook(ev models.SecurityEvent) error {
	if a.webhookURL == "" {
		return nil
	}

	payload := struct {
		Timestamp time.Time              `json:"timestamp"`
		Type      string                 `json:"type"`
		Severity  string                 `json:"severity"`
		Message   string                 `json:"message"`
		IPAddress string                 `json:"ip_address,omitempty"`
		UserID    string                 `json:"user_id,omitempty"`
		Blocked   bool                   `json:"blocked"`
		Context   map[string]interface{} `json:"context,omitempty"`
	}{
		Timestamp: ev.Timestamp,
		Type:      ev.Type,
		Severity:  string(ev.Severity),
		Message:   ev.Message,
		IPAddress: ev.IPAddress,
		UserID:    ev.UserID,
		Blocked:   ev.Blocked,
		Context:   ev.Context,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	resp, err := a.httpClient.Post(a.webhookURL, "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	return nil
}

// cleanupOldHistory 清理过期的告警冷却记录
func (a *Alerter) cleanupOldHistory() {
	a.alertHistoryMu.Lock()
	defer a.alertHistoryMu.Unlock()

	now := time.Now()
	for fingerprint, lastAlert := range a.alertHistory {
		if now.Sub(lastAlert) > a.cooldown {
			delete(a.alertHistory, fingerprint)
		}
	}
}
