// Package kafka 提供了与 Kafka 消息队列交互的功能。
package kafka

import (
	"auto-advisor-go/internal/config"
	"auto-advisor-go/pkg/database"
	"auto-advisor-go/pkg/log"
	"auto-advisor-go/pkg/tasks"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/segmentio/kafka-go"
)

// maxAttempts 单条消息最多处理次数，超过后提交 offset 放弃。
const maxAttempts = 3

// TurnProcessor 处理一条轮次事件，使消费者与具体落库实现解耦。
type TurnProcessor interface {
	Process(ctx context.Context, event tasks.TurnEvent) error
}

// Producer 将轮次事件写入 Kafka。
type Producer struct {
	writer *kafka.Writer
}

// NewProducer 初始化 Kafka 生产者。
func NewProducer(cfg config.KafkaConfig) *Producer {
	p := &Producer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(strings.Split(cfg.Brokers, ",")...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 50 * time.Millisecond,
		},
	}
	log.Infof("Kafka 生产者初始化成功, topic: %s", cfg.Topic)
	return p
}

// PublishTurn 发送一条轮次事件，同一会话的事件落在同一分区以保持顺序。
func (p *Producer) PublishTurn(ctx context.Context, event tasks.TurnEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("序列化轮次事件失败: %w", err)
	}
	return p.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(event.SessionID),
		Value: payload,
	})
}

// Close 关闭底层 writer。
func (p *Producer) Close() error {
	return p.writer.Close()
}

// StartConsumer 启动一个 Kafka 消费者来处理轮次事件，ctx 取消时退出。
func StartConsumer(ctx context.Context, cfg config.KafkaConfig, processor TurnProcessor) {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  strings.Split(cfg.Brokers, ","),
		Topic:    cfg.Topic,
		GroupID:  cfg.GroupID,
		MinBytes: 1,
		MaxBytes: 10e6, // 10MB
	})
	defer func() {
		if err := r.Close(); err != nil {
			log.Errorf("关闭 Kafka 消费者失败: %v", err)
		}
	}()

	log.Infof("Kafka 消费者已启动，正在监听主题 '%s'", cfg.Topic)

	for {
		m, err := r.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				log.Info("Kafka 消费者收到停止信号")
				return
			}
			log.Error("从 Kafka 读取消息失败", err)
			return
		}

		var event tasks.TurnEvent
		if err := json.Unmarshal(m.Value, &event); err != nil {
			log.Errorf("无法解析 Kafka 消息: %v, value: %s", err, string(m.Value))
			// 消息格式错误，直接提交，避免阻塞队列
			commit(ctx, r, m)
			continue
		}

		if err := processor.Process(ctx, event); err != nil {
			log.Errorf("处理轮次事件失败: event=%s, Error: %v", event.EventID, err)
			if giveUp(ctx, event.EventID) {
				log.Errorf("轮次事件多次失败(>=%d)，提交 offset 终止重试: event=%s", maxAttempts, event.EventID)
				commit(ctx, r, m)
			}
			continue
		}

		clearAttempts(ctx, event.EventID)
		commit(ctx, r, m)
	}
}

// giveUp 使用 Redis 计数失败次数，达到阈值后返回 true；Redis 不可用时不提交 offset，让 Kafka 重试。
func giveUp(ctx context.Context, eventID string) bool {
	if database.RDB == nil {
		return true
	}
	attemptsKey := fmt.Sprintf("kafka:attempts:%s", eventID)
	attempts, err := database.RDB.Incr(ctx, attemptsKey).Result()
	if err != nil {
		return false
	}
	_ = database.RDB.Expire(ctx, attemptsKey, 24*time.Hour).Err()
	return attempts >= maxAttempts
}

func clearAttempts(ctx context.Context, eventID string) {
	if database.RDB == nil {
		return
	}
	_ = database.RDB.Del(ctx, fmt.Sprintf("kafka:attempts:%s", eventID)).Err()
}

func commit(ctx context.Context, r *kafka.Reader, m kafka.Message) {
	if err := r.CommitMessages(ctx, m); err != nil {
		log.Errorf("提交 Kafka 消息 offset 失败: %v", err)
	}
}
