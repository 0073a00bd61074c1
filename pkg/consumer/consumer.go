package consumer

import (
	"context"
	"encoding/json"
	"time"

	"go-menshen/pkg/logger"
	"go-menshen/pkg/models"
	"go-menshen/pkg/monitor"
	"go-menshen/pkg/storage"

	"github.com/IBM/sarama"
)

// trafficRecord packetbeat风格的流量记录，接入层的线缆格式
type trafficRecord struct {
	Timestamp time.Time `json:"@timestamp"`
	Type      string    `json:"type"`
	Method    string    `json:"method"`
	URL       struct {
		Full string `json:"full"`
	} `json:"url"`
	Related struct {
		IP []string `json:"ip"`
	} `json:"related"`
	User struct {
		ID string `json:"id"`
	} `json:"user"`
	HTTP struct {
		Request struct {
			Headers map[string]string `json:"headers"`
			Body    struct {
				Content string `json:"content"`
			} `json:"body"`
		} `json:"request"`
		Response struct {
			StatusCode int               `json:"status_code"`
			Headers    map[string]string `json:"headers"`
		} `json:"response"`
	} `json:"http"`
}

type Consumer struct {
	consumer sarama.ConsumerGroup
	monitor  *monitor.SecurityMonitor
	storage  *storage.Storage // 可以为nil
	groupID  string
	cancel   context.CancelFunc
}

func NewConsumer(brokers []string, groupID string, mon *monitor.SecurityMonitor, store *storage.Storage) (*Consumer, error) {
	config := sarama.NewConfig()
	version, err := sarama.ParseKafkaVersion("2.1.0")
	if err != nil {
		return nil, err
	}
	config.Version = version
	config.Consumer.Group.Rebalance.Strategy = sarama.BalanceStrategyRoundRobin
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true
	config.Consumer.Group.Session.Timeout = 20 * time.Second
	config.Consumer.Group.Heartbeat.Interval = 6 * time.Second
	config.Net.DialTimeout = 30 * time.Second
	config.Net.ReadTimeout = 30 * time.Second
	config.Net.WriteTimeout = 30 * time.Second

	logger.Log.Infof("正在连接 Kafka brokers: %v", brokers)
	group, err := sarama.NewConsumerGroup(brokers, groupID, config)
	if err != nil {
		return nil, err
	}

	return &Consumer{
		consumer: group,
		monitor:  mon,
		storage:  store,
		groupID:  groupID,
	}, nil
}

func (c *Consumer) Start(topic string) error {
	topics := []string{topic}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	logger.Log.Infof("开始消费 topic: %s", topic)
	for {
		if err := c.consumer.Consume(ctx, topics, c); err != nil {
			logger.Log.Errorf("消费出错: %v", err)
			time.Sleep(time.Second * 5)
			continue
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Required methods for sarama.ConsumerGroupHandler interface
func (c *Consumer) Setup(_ sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) Cleanup(_ sarama.ConsumerGroupSession) error {
	return nil
}

func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			var record trafficRecord
			if err := json.Unmarshal(message.Value, &record); err != nil {
				logger.Log.Errorf("解析消息失败: %v, raw message: %s", err, string(message.Value))
				session.MarkMessage(message, "")
				continue
			}

			activity := toActivity(record)

			// 已封禁来源仍有流量说明接入层拦截未生效
			if c.monitor.IsIPBlocked(activity.IPAddress) {
				logger.Log.Warnf("封禁IP仍有流量: ip=%s, url=%s", activity.IPAddress, activity.URL)
			}

			c.monitor.Record(activity)

			if c.storage != nil {
				c.storage.QueueActivity(activity)
			}

			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// toActivity 把流量记录规整为活动记录，缺失IP时用哨兵值
func toActivity(record trafficRecord) models.ActivityData {
	ip := "unknown"
	// related.ip 的最后一个值是客户端IP
	if len(record.Related.IP) > 0 {
		ip = record.Related.IP[len(record.Related.IP)-1]
	}

	headers := record.HTTP.Request.Headers
	userAgent := headers["user-agent"]
	sessionID := headers["cookie"]
	userID := record.User.ID
	if userID == "" {
		userID = headers["x-user-id"]
	}

	timestamp := record.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now()
	}

	return models.ActivityData{
		IPAddress: ip,
		UserAgent: userAgent,
		UserID:    userID,
		SessionID: sessionID,
		URL:       record.URL.Full,
		Method:    record.Method,
		Timestamp: timestamp,
		Headers:   headers,
		Body:      record.HTTP.Request.Body.Content,
		Response: models.ResponseInfo{
			StatusCode: record.HTTP.Response.StatusCode,
			Headers:    record.HTTP.Response.Headers,
		},
	}
}

func (c *Consumer) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	return c.consumer.Close()
}
