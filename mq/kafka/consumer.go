package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/hl8/hl8-go-pkg/isolation"
	"github.com/hl8/hl8-go-pkg/mq"
)

/* ========================================================================
 * Kafka Consumer
 * ========================================================================
 * 职责: 实现 mq.Consumer 接口，投递前从消息 header 还原隔离上下文
 * 技术: IBM/sarama
 * ======================================================================== */

const (
	defaultMaxRetries     = 3
	defaultRetryBaseDelay = 100 * time.Millisecond
)

func init() {
	mq.RegisterConsumerFactory(mq.TypeKafka, NewConsumerAdapter)
}

// ConsumerAdapter Kafka 消费者适配器
type ConsumerAdapter struct {
	client   sarama.ConsumerGroup
	logger   *zap.Logger
	config   *mq.KafkaConfig
	handlers map[string]mq.MessageHandler
	topics   []string
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	mu       sync.RWMutex
	ready    chan bool
}

// NewConsumerAdapter 创建 Kafka 消费者适配器
func NewConsumerAdapter(cfg *mq.Config, logger *zap.Logger) (mq.Consumer, error) {
	if cfg.Kafka == nil {
		return nil, fmt.Errorf("kafka config is required")
	}

	kafkaCfg := cfg.Kafka

	saramaCfg, err := buildConsumerConfig(kafkaCfg)
	if err != nil {
		return nil, fmt.Errorf("build sarama config: %w", err)
	}

	client, err := sarama.NewConsumerGroup(kafkaCfg.Brokers, kafkaCfg.Consumer.GroupID, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	logger.Info("kafka consumer created",
		zap.String("group", kafkaCfg.Consumer.GroupID),
		zap.Strings("brokers", kafkaCfg.Brokers),
	)

	return &ConsumerAdapter{
		client:   client,
		logger:   logger,
		config:   kafkaCfg,
		handlers: make(map[string]mq.MessageHandler),
		topics:   make([]string, 0),
		ready:    make(chan bool),
	}, nil
}

// Subscribe 订阅主题
func (c *ConsumerAdapter) Subscribe(topic string, handler mq.MessageHandler) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.handlers[topic] = handler
	c.topics = append(c.topics, topic)

	c.logger.Info("subscribed to topic", zap.String("topic", topic))
	return nil
}

// Start 启动消费者，阻塞到消费者组就绪
func (c *ConsumerAdapter) Start() error {
	c.mu.RLock()
	topics := c.topics
	c.mu.RUnlock()

	if len(topics) == 0 {
		return fmt.Errorf("no topics subscribed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	handler := &consumerGroupHandler{
		adapter: c,
		ready:   c.ready,
	}

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		for {
			// Consume 在 rebalance 后返回并需要重新调用
			if err := c.client.Consume(ctx, topics, handler); err != nil {
				if ctx.Err() != nil {
					return
				}
				c.logger.Error("consumer error", zap.Error(err))
			}

			if ctx.Err() != nil {
				return
			}

			c.ready = make(chan bool)
		}
	}()

	<-c.ready

	c.logger.Info("kafka consumer started", zap.Strings("topics", topics))
	return nil
}

// Close 关闭消费者
func (c *ConsumerAdapter) Close() error {
	if c.cancel != nil {
		c.cancel()
	}

	c.wg.Wait()

	if err := c.client.Close(); err != nil {
		c.logger.Error("close consumer", zap.Error(err))
		return err
	}

	c.logger.Info("kafka consumer closed")
	return nil
}

// =============================================================================
// ConsumerGroup Handler
// =============================================================================

type consumerGroupHandler struct {
	adapter *ConsumerAdapter
	ready   chan bool
}

func (h *consumerGroupHandler) Setup(session sarama.ConsumerGroupSession) error {
	close(h.ready)
	h.adapter.logger.Debug("consumer group setup",
		zap.Int32("generation_id", session.GenerationID()),
	)
	return nil
}

func (h *consumerGroupHandler) Cleanup(session sarama.ConsumerGroupSession) error {
	h.adapter.logger.Debug("consumer group cleanup",
		zap.Int32("generation_id", session.GenerationID()),
	)
	return nil
}

func (h *consumerGroupHandler) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	topic := claim.Topic()

	h.adapter.mu.RLock()
	handler, ok := h.adapter.handlers[topic]
	h.adapter.mu.RUnlock()

	if !ok {
		h.adapter.logger.Warn("no handler for topic", zap.String("topic", topic))
		return nil
	}

	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}

			converted := fromConsumerMessage(msg)

			// Handler 在消息自带的隔离上下文中执行，仓储/缓存
			// 访问自动落在消息所属租户的可见范围内
			handlerCtx := isolation.WithContext(session.Context(), converted.IsolationContext())

			var lastErr error
			for retry := 0; retry < defaultMaxRetries; retry++ {
				_, lastErr = handler(handlerCtx, []*mq.ConsumedMessage{converted})
				if lastErr == nil {
					break
				}

				h.adapter.logger.Warn("message handling failed, retrying",
					zap.String("topic", topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Int("retry", retry+1),
					zap.Int("max_retries", defaultMaxRetries),
					zap.Error(lastErr),
				)

				select {
				case <-session.Context().Done():
					return nil
				case <-time.After(defaultRetryBaseDelay * time.Duration(retry+1)):
				}
			}

			if lastErr != nil {
				h.adapter.logger.Error("message handling failed after all retries",
					zap.String("topic", topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
					zap.Error(lastErr),
				)
				// 不标记已消费，消息会按 Kafka 配置重新投递。
				// 调用方需要实现幂等处理。
				continue
			}

			session.MarkMessage(msg, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// =============================================================================
// 辅助函数
// =============================================================================

func buildConsumerConfig(cfg *mq.KafkaConfig) (*sarama.Config, error) {
	saramaCfg := sarama.NewConfig()

	if cfg.Version != "" {
		version, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid kafka version: %w", err)
		}
		saramaCfg.Version = version
	}

	saramaCfg.Consumer.Return.Errors = true

	switch cfg.Consumer.InitialOffset {
	case "oldest":
		saramaCfg.Consumer.Offsets.Initial = sarama.OffsetOldest
	default:
		saramaCfg.Consumer.Offsets.Initial = sarama.OffsetNewest
	}

	saramaCfg.Consumer.Offsets.AutoCommit.Enable = cfg.Consumer.AutoCommit
	if cfg.Consumer.AutoCommitInterval > 0 {
		saramaCfg.Consumer.Offsets.AutoCommit.Interval = cfg.Consumer.AutoCommitInterval
	}

	if cfg.Consumer.SessionTimeout > 0 {
		saramaCfg.Consumer.Group.Session.Timeout = cfg.Consumer.SessionTimeout
	}
	if cfg.Consumer.HeartbeatInterval > 0 {
		saramaCfg.Consumer.Group.Heartbeat.Interval = cfg.Consumer.HeartbeatInterval
	}

	if cfg.Consumer.FetchMin > 0 {
		saramaCfg.Consumer.Fetch.Min = cfg.Consumer.FetchMin
	}
	if cfg.Consumer.FetchMax > 0 {
		saramaCfg.Consumer.Fetch.Max = cfg.Consumer.FetchMax
	}
	if cfg.Consumer.FetchDefault > 0 {
		saramaCfg.Consumer.Fetch.Default = cfg.Consumer.FetchDefault
	}
	if cfg.Consumer.MaxWaitTime > 0 {
		saramaCfg.Consumer.MaxWaitTime = cfg.Consumer.MaxWaitTime
	}
	if cfg.Consumer.MaxProcessingTime > 0 {
		saramaCfg.Consumer.MaxProcessingTime = cfg.Consumer.MaxProcessingTime
	}

	if err := applySecurity(saramaCfg, cfg); err != nil {
		return nil, err
	}

	return saramaCfg, nil
}

func fromConsumerMessage(msg *sarama.ConsumerMessage) *mq.ConsumedMessage {
	result := &mq.ConsumedMessage{
		Topic:      msg.Topic,
		Body:       msg.Value,
		MsgID:      messageID(msg.Topic, msg.Partition, msg.Offset),
		Offset:     msg.Offset,
		Partition:  msg.Partition,
		BornTime:   msg.Timestamp,
		Properties: make(map[string]string),
	}

	if msg.Key != nil {
		result.Key = string(msg.Key)
	}

	for _, header := range msg.Headers {
		key := string(header.Key)
		value := string(header.Value)

		if key == tagHeaderKey {
			result.Tag = value
		} else {
			result.Properties[key] = value
		}
	}

	return result
}
