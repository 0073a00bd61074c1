package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"sync"
	"time"

	"go-menshen/pkg/config"
	"go-menshen/pkg/logger"
	"go-menshen/pkg/models"

	_ "github.com/go-sql-driver/mysql"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
)

// Storage 可选的导出存储：活动时序写InfluxDB，安全事件写MySQL
// 只被异步告警/导出路径使用，监控引擎核心不依赖它
type Storage struct {
	influxClient influxdb2.Client
	writeAPI     api.WriteAPIBlocking
	mysqlDB      *sql.DB
	org          string
	bucket       string

	activityCh chan models.ActivityData
	wg         sync.WaitGroup
	stopOnce   sync.Once
	done       chan struct{}
}

func NewStorage(cfg *config.Config) (*Storage, error) {
	influxClient := influxdb2.NewClient(cfg.InfluxDB.URL, cfg.InfluxDB.Token)
	writeAPI := influxClient.WriteAPIBlocking(cfg.InfluxDB.Org, cfg.InfluxDB.Bucket)

	mysqlDB, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		return nil, err
	}

	mysqlDB.SetMaxIdleConns(cfg.MySQL.MaxIdle)
	mysqlDB.SetMaxOpenConns(cfg.MySQL.MaxOpen)

	s := &Storage{
		influxClient: influxClient,
		writeAPI:     writeAPI,
		mysqlDB:      mysqlDB,
		org:          cfg.InfluxDB.Org,
		bucket:       cfg.InfluxDB.Bucket,
		activityCh:   make(chan models.ActivityData, 8192),
		done:         make(chan struct{}),
	}

	s.wg.Add(1)
	go s.runActivityWriter()

	return s, nil
}

// QueueActivity 活动点入队，队列满时丢弃，绝不阻塞调用方
func (s *Storage) QueueActivity(activity models.ActivityData) {
	select {
	case s.activityCh <- activity:
	case <-s.done:
	default:
		logger.Log.Debugf("活动写入队列已满，丢弃: ip=%s", activity.IPAddress)
	}
}

// runActivityWriter 后台消费活动队列并写入InfluxDB
func (s *Storage) runActivityWriter() {
	defer s.wg.Done()
	for {
		select {
		case activity := <-s.activityCh:
			if err := s.writeActivityPoint(activity); err != nil {
				logger.Log.Errorf("写入活动时序点失败: %v", err)
			}
		case <-s.done:
			// 退出前清空剩余队列
			for {
				select {
				case activity := <-s.activityCh:
					if err := s.writeActivityPoint(activity); err != nil {
						logger.Log.Errorf("写入活动时序点失败: %v", err)
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Storage) writeActivityPoint(activity models.ActivityData) error {
	p := influxdb2.NewPoint(
		"activity",
		map[string]string{
			"ip":     activity.IPAddress,
			"method": activity.Method,
		},
		map[string]interface{}{
			"url":         activity.URL,
			"status_code": activity.Response.StatusCode,
			"user_id":     activity.UserID,
		},
		activity.Timestamp,
	)
	return s.writeAPI.WritePoint(context.Background(), p)
}

// SaveSecurityEvent 保存安全事件到MySQL
func (s *Storage) SaveSecurityEvent(ev models.SecurityEvent) error {
	query := `
        INSERT INTO security_events (
            event_id, event_type, severity, message,
            ip_address, user_id, blocked, context, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
    `

	ctxJSON, err := json.Marshal(ev.Context)
	if err != nil {
		logger.Log.Errorf("事件上下文序列化失败: %v", err)
		ctxJSON = []byte("{}")
	}

	_, err = s.mysqlDB.Exec(query,
		ev.ID,
		ev.Type,
		string(ev.Severity),
		ev.Message,
		ev.IPAddress,
		ev.UserID,
		ev.Blocked,
		ctxJSON,
		ev.Timestamp,
	)
	if err != nil {
		logger.Log.Errorf("保存安全事件失败: type=%s, error=%v", ev.Type, err)
		return err
	}

	return nil
}

// RecentAlertKeys 查询最近一段时间已保存的告警来源，告警器启动时用于恢复冷却状态
func (s *Storage) RecentAlertKeys(since time.Duration) (map[string]time.Time, error) {
	query := `
        SELECT ip_address, user_id, created_at
        FROM security_events
        WHERE event_type = 'suspicious_activity'
          AND created_at > DATE_SUB(NOW(), INTERVAL ? SECOND)
    `

	rows, err := s.mysqlDB.Query(query, int(since.Seconds()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]time.Time)
	for rows.Next() {
		var ip, userID string
		var createdAt time.Time
		if err := rows.Scan(&ip, &userID, &createdAt); err != nil {
			logger.Log.Errorf("扫描告警记录失败: %v", err)
			continue
		}
		out[ip+":"+userID] = createdAt
	}
	return out, rows.Err()
}

func (s *Storage) Close() {
	s.stopOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		s.influxClient.Close()
		s.mysqlDB.Close()
	})
}
