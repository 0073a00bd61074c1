package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActivitiesProcessed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "menshen_activities_processed_total",
		Help: "已处理的活动记录总数",
	})

	SuspiciousActivities = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "menshen_suspicious_activities_total",
			Help: "按规则/威胁特征统计的可疑活动总数",
		},
		[]string{"source"},
	)

	RiskScoreHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "menshen_risk_scores",
		Help:    "可疑活动风险分数分布",
		Buckets: prometheus.LinearBuckets(0, 10, 11),
	})

	BlockedIPs = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "menshen_blocked_ips",
		Help: "当前封禁的IP数量",
	})

	BlockedUsers = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "menshen_blocked_users",
		Help: "当前封禁的用户数量",
	})

	EventsDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "menshen_events_dropped_total",
		Help: "事件通道满导致丢弃的安全事件总数",
	})

	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "menshen_sweep_duration_seconds",
		Help:    "过期数据清理耗时",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
	})
)
