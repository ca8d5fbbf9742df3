// Package notify 定时清理完成后的通知
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/eidos-exchange/eidos/eidos-retention/internal/model"
	"github.com/eidos-exchange/eidos/eidos-retention/pkg/logger"
)

// Summary 一次定时清理的汇总
type Summary struct {
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
	DryRun       bool      `json:"dry_run"`
	Timestamp    time.Time `json:"timestamp"`
}

// Summarize 统计清理结果中的成功与失败数
func Summarize(results []*model.CleanupResult, dryRun bool, at time.Time) Summary {
	s := Summary{DryRun: dryRun, Timestamp: at}
	for _, r := range results {
		if r.Success {
			s.SuccessCount++
		} else {
			s.FailureCount++
		}
	}
	return s
}

// Notifier 通知投递接口
type Notifier interface {
	Notify(ctx context.Context, summary Summary) error
}

// LogNotifier 将汇总写入日志
type LogNotifier struct {
	log *zap.Logger
}

// NewLogNotifier 创建日志通知
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{log: logger.Named("notify")}
}

// Notify 实现 Notifier
func (n *LogNotifier) Notify(_ context.Context, summary Summary) error {
	if summary.FailureCount > 0 {
		n.log.Warn("retention cleanup finished with failures",
			zap.Int("success", summary.SuccessCount),
			zap.Int("failed", summary.FailureCount),
			zap.Bool("dry_run", summary.DryRun))
		return nil
	}
	n.log.Info("retention cleanup finished",
		zap.Int("success", summary.SuccessCount),
		zap.Bool("dry_run", summary.DryRun))
	return nil
}

// KafkaConfig Kafka 通知配置
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
	Version  string
}

// KafkaNotifier 将汇总发布到 Kafka topic
type KafkaNotifier struct {
	producer sarama.SyncProducer
	topic    string
	key      string
	log      *zap.Logger
}

// NewKafkaNotifier 使用 SyncProducer 创建 Kafka 通知
func NewKafkaNotifier(producer sarama.SyncProducer, topic, key string) *KafkaNotifier {
	return &KafkaNotifier{
		producer: producer,
		topic:    topic,
		key:      key,
		log:      logger.Named("notify"),
	}
}

// DialKafkaNotifier 连接 Kafka 并创建通知
func DialKafkaNotifier(cfg KafkaConfig, key string) (*KafkaNotifier, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("kafka brokers is required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("kafka notification topic is required")
	}

	saramaConfig := sarama.NewConfig()
	if cfg.Version != "" {
		version, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("parse kafka version failed: %w", err)
		}
		saramaConfig.Version = version
	}
	if cfg.ClientID != "" {
		saramaConfig.ClientID = cfg.ClientID
	}
	saramaConfig.Producer.RequiredAcks = sarama.WaitForAll
	saramaConfig.Producer.Retry.Max = 3
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(cfg.Brokers, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create sync producer failed: %w", err)
	}

	logger.Info("kafka notifier created",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic))

	return NewKafkaNotifier(producer, cfg.Topic, key), nil
}

// Notify 实现 Notifier
func (n *KafkaNotifier) Notify(_ context.Context, summary Summary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("marshal summary: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: n.topic,
		Value: sarama.ByteEncoder(payload),
	}
	if n.key != "" {
		msg.Key = sarama.StringEncoder(n.key)
	}

	partition, offset, err := n.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish cleanup summary: %w", err)
	}

	n.log.Debug("cleanup summary published",
		zap.String("topic", n.topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset))
	return nil
}

// Close 关闭生产者
func (n *KafkaNotifier) Close() error {
	return n.producer.Close()
}

var (
	_ Notifier = (*LogNotifier)(nil)
	_ Notifier = (*KafkaNotifier)(nil)
)
