package monitor

import (
	"time"

	"go-menshen/pkg/logger"
	"go-menshen/pkg/metrics"
)

// runSweeper 后台清理循环，按固定间隔清理过期数据，收到取消信号后退出
func (sm *SecurityMonitor) runSweeper() {
	defer sm.wg.Done()

	ticker := time.NewTicker(sm.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sm.ctx.Done():
			return
		case <-ticker.C:
			sm.sweep(time.Now())
		}
	}
}

// sweep 清理所有key中超过保留窗口的活动，以及过期的可疑活动记录
// 逐key短暂加锁，不会为整轮清理持有任何一把锁
func (sm *SecurityMonitor) sweep(now time.Time) {
	start := time.Now()
	cutoff := now.Add(-sm.cfg.Retention)

	for _, key := range sm.ipStates.keys() {
		sm.ipStates.sweepKey(key, cutoff)
	}
	for _, key := range sm.userStates.keys() {
		sm.userStates.sweepKey(key, cutoff)
	}

	removed := sm.audit.TrimSuspiciousBefore(cutoff)

	metrics.SweepDuration.Observe(time.Since(start).Seconds())
	logger.Log.Debugf("清理完成: ip_keys=%d, user_keys=%d, 裁剪可疑活动=%d, 耗时=%s",
		sm.ipStates.len(), sm.userStates.len(), removed, time.Since(start))
}
