package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go-menshen/pkg/alerter"
	"go-menshen/pkg/config"
	"go-menshen/pkg/consumer"
	"go-menshen/pkg/logger"
	"go-menshen/pkg/models"
	"go-menshen/pkg/monitor"
	"go-menshen/pkg/storage"

	"github.com/oschwald/geoip2-golang"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func init() {
	// 初始化配置
	if err := config.Init(); err != nil {
		logger.Log.Fatal("初始化配置失败:", err)
	}

	// 初始化日志
	if err := logger.Init(); err != nil {
		logger.Log.Fatal("初始化日志失败:", err)
	}
}

func main() {
	cfg := config.GlobalConfig

	logger.Log.Info("开始启动安全监控服务...")
	logger.Log.Infof("Kafka配置: brokers=%v, topic=%s", cfg.Kafka.Brokers, cfg.Kafka.Topic)

	// 启动指标服务
	go func() {
		http.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.Metrics.Listen, nil); err != nil {
			logger.Log.Errorf("指标服务启动失败: %v", err)
		}
	}()

	// 初始化导出存储（可选，未配置时事件只保留在内存审计缓冲中）
	var store *storage.Storage
	if cfg.InfluxDB.URL != "" && cfg.MySQL.DSN != "" {
		var err error
		store, err = storage.NewStorage(&cfg)
		if err != nil {
			logger.Log.Errorf("初始化导出存储失败，继续以纯内存模式运行: %v", err)
		} else {
			defer store.Close()
			logger.Log.Info("导出存储初始化成功")
		}
	}

	// 初始化GeoIP数据库（可选）
	var geo *monitor.GeoEnricher
	var cityDB, asnDB *geoip2.Reader
	if cfg.GeoIP.CityPath != "" {
		var err error
		cityDB, err = geoip2.Open(cfg.GeoIP.CityPath)
		if err != nil {
			logger.Log.Errorf("初始化GeoIP城市库失败: %v", err)
		} else {
			defer cityDB.Close()
		}
	}
	if cfg.GeoIP.ASNPath != "" {
		var err error
		asnDB, err = geoip2.Open(cfg.GeoIP.ASNPath)
		if err != nil {
			logger.Log.Errorf("初始化ASN库失败: %v", err)
		} else {
			defer asnDB.Close()
		}
	}
	if cityDB != nil || asnDB != nil {
		geo = monitor.NewGeoEnricher(cityDB, asnDB)
	}

	// 初始化监控引擎（进程内单例）
	mon := monitor.New(monitor.Config{
		MaxActivitiesPerKey: cfg.Monitor.MaxActivitiesPerKey,
		Retention:           time.Duration(cfg.Monitor.RetentionHours) * time.Hour,
		SweepInterval:       time.Duration(cfg.Monitor.SweepIntervalMinutes) * time.Minute,
		EventBufferSize:     cfg.Monitor.EventBufferSize,
		WhitelistIPs:        cfg.Security.WhitelistIPs,
	}, geo)
	logger.Log.Info("监控引擎初始化成功")

	// 启动告警处理器，消费引擎输出的安全事件
	alertCtx, alertCancel := context.WithCancel(context.Background())
	alert := alerter.NewAlerter(
		store,
		cfg.Webhook.URL,
		models.Severity(cfg.Alert.MinSeverity),
		time.Duration(cfg.Alert.CooldownMinutes)*time.Minute,
	)
	alertDone := make(chan struct{})
	go func() {
		alert.Run(alertCtx, mon.Events())
		close(alertDone)
	}()

	// 初始化Kafka消费者
	kafkaConsumer, err := consumer.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.GroupID, mon, store)
	if err != nil {
		logger.Log.Fatal("初始化Kafka消费者失败:", err)
	}
	logger.Log.Info("Kafka消费者初始化成功")

	// 优雅退出处理
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	// 启动消费
	go func() {
		logger.Log.Infof("开始消费topic: %s", cfg.Kafka.Topic)
		if err := kafkaConsumer.Start(cfg.Kafka.Topic); err != nil && err != context.Canceled {
			logger.Log.Errorf("Kafka消费启动失败: %v", err)
			sigChan <- syscall.SIGTERM
		}
	}()

	logger.Log.Info("服务启动完成，等待消息...")

	// 等待退出信号
	sig := <-sigChan
	logger.Log.Infof("接收到信号 %v, 开始优雅退出", sig)

	// 先停止摄入，再停引擎和告警
	if err := kafkaConsumer.Close(); err != nil {
		logger.Log.Errorf("关闭Kafka消费者失败: %v", err)
	}
	mon.Shutdown()
	alertCancel()
	<-alertDone

	stats := mon.Stats()
	logger.Log.Infof("最终统计: activities=%d, suspicious=%d, blocked_ips=%d, blocked_users=%d",
		stats.TotalActivities, stats.SuspiciousActivities, stats.BlockedIPs, stats.BlockedUsers)
}
