package kafka

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/hl8/hl8-go-pkg/mq"
)

/* ========================================================================
 * Kafka Producer
 * ========================================================================
 * 职责: 实现 mq.Producer 接口，发送前把隔离上下文写入消息 header
 * 技术: IBM/sarama
 * ======================================================================== */

const tagHeaderKey = "X-Tag"

func init() {
	mq.RegisterProducerFactory(mq.TypeKafka, NewProducerAdapter)
}

// ProducerAdapter Kafka 生产者适配器
type ProducerAdapter struct {
	syncProducer  sarama.SyncProducer
	asyncProducer sarama.AsyncProducer
	logger        *zap.Logger
	wg            sync.WaitGroup
	closed        bool
	mu            sync.RWMutex
	ctx           context.Context
	cancel        context.CancelFunc
}

// NewProducerAdapter 创建 Kafka 生产者适配器
func NewProducerAdapter(cfg *mq.Config, logger *zap.Logger) (mq.Producer, error) {
	if cfg.Kafka == nil {
		return nil, fmt.Errorf("kafka config is required")
	}

	kafkaCfg := cfg.Kafka

	saramaCfg, err := buildSaramaConfig(kafkaCfg)
	if err != nil {
		return nil, fmt.Errorf("build sarama config: %w", err)
	}

	syncProducer, err := sarama.NewSyncProducer(kafkaCfg.Brokers, saramaCfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka sync producer: %w", err)
	}

	asyncProducer, err := sarama.NewAsyncProducer(kafkaCfg.Brokers, saramaCfg)
	if err != nil {
		syncProducer.Close()
		return nil, fmt.Errorf("create kafka async producer: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	adapter := &ProducerAdapter{
		syncProducer:  syncProducer,
		asyncProducer: asyncProducer,
		logger:        logger,
		ctx:           ctx,
		cancel:        cancel,
	}

	adapter.wg.Add(1)
	go adapter.handleAsyncResults()

	logger.Info("kafka producer started", zap.Strings("brokers", kafkaCfg.Brokers))

	return adapter, nil
}

// handleAsyncResults 消费异步生产者的成功/失败 channel。
// 回调通过 ProducerMessage.Metadata 关联。
func (p *ProducerAdapter) handleAsyncResults() {
	defer p.wg.Done()

	for {
		select {
		case err, ok := <-p.asyncProducer.Errors():
			if !ok {
				return
			}
			if cb, ok := err.Msg.Metadata.(mq.SendCallback); ok && cb != nil {
				cb(nil, err.Err)
			} else {
				p.logger.Error("async producer error",
					zap.String("topic", err.Msg.Topic),
					zap.Error(err.Err),
				)
			}
		case msg, ok := <-p.asyncProducer.Successes():
			if !ok {
				return
			}
			if cb, ok := msg.Metadata.(mq.SendCallback); ok && cb != nil {
				cb(&mq.SendResult{
					MsgID:     messageID(msg.Topic, msg.Partition, msg.Offset),
					Topic:     msg.Topic,
					Partition: msg.Partition,
					Offset:    msg.Offset,
					Status:    mq.SendStatusOK,
				}, nil)
			} else {
				p.logger.Debug("async message sent",
					zap.String("topic", msg.Topic),
					zap.Int32("partition", msg.Partition),
					zap.Int64("offset", msg.Offset),
				)
			}
		case <-p.ctx.Done():
			return
		}
	}
}

// SendSync 同步发送消息
func (p *ProducerAdapter) SendSync(ctx context.Context, msg *mq.Message) (*mq.SendResult, error) {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return nil, fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	kafkaMsg := toProducerMessage(msg.StampIsolation(ctx))

	partition, offset, err := p.syncProducer.SendMessage(kafkaMsg)
	if err != nil {
		p.logger.Error("send message", zap.String("topic", msg.Topic), zap.Error(err))
		return nil, err
	}

	p.logger.Debug("message sent",
		zap.String("topic", msg.Topic),
		zap.Int32("partition", partition),
		zap.Int64("offset", offset),
	)

	return &mq.SendResult{
		MsgID:     messageID(msg.Topic, partition, offset),
		Topic:     msg.Topic,
		Partition: partition,
		Offset:    offset,
		Status:    mq.SendStatusOK,
	}, nil
}

// SendAsync 异步发送消息
func (p *ProducerAdapter) SendAsync(ctx context.Context, msg *mq.Message, callback mq.SendCallback) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return fmt.Errorf("producer is closed")
	}
	p.mu.RUnlock()

	kafkaMsg := toProducerMessage(msg.StampIsolation(ctx))
	kafkaMsg.Metadata = callback

	select {
	case p.asyncProducer.Input() <- kafkaMsg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close 关闭生产者
func (p *ProducerAdapter) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.mu.Unlock()

	var errs []error

	if err := p.asyncProducer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("async producer close: %w", err))
	}
	p.cancel()

	if err := p.syncProducer.Close(); err != nil {
		errs = append(errs, fmt.Errorf("sync producer close: %w", err))
	}

	p.wg.Wait()

	if len(errs) > 0 {
		p.logger.Error("close producer", zap.Errors("errors", errs))
		return errs[0]
	}

	p.logger.Info("kafka producer closed")
	return nil
}

// =============================================================================
// 辅助函数
// =============================================================================

func messageID(topic string, partition int32, offset int64) string {
	return fmt.Sprintf("%s-%d-%d", topic, partition, offset)
}

func buildSaramaConfig(cfg *mq.KafkaConfig) (*sarama.Config, error) {
	saramaCfg := sarama.NewConfig()

	if cfg.Version != "" {
		version, err := sarama.ParseKafkaVersion(cfg.Version)
		if err != nil {
			return nil, fmt.Errorf("invalid kafka version: %w", err)
		}
		saramaCfg.Version = version
	}

	saramaCfg.Producer.Return.Successes = true
	saramaCfg.Producer.Return.Errors = true
	saramaCfg.Producer.Retry.Max = cfg.Producer.RetryMax
	saramaCfg.Producer.Timeout = cfg.Producer.Timeout

	switch cfg.Producer.RequiredAcks {
	case "none":
		saramaCfg.Producer.RequiredAcks = sarama.NoResponse
	case "all":
		saramaCfg.Producer.RequiredAcks = sarama.WaitForAll
	default:
		saramaCfg.Producer.RequiredAcks = sarama.WaitForLocal
	}

	switch cfg.Producer.Compression {
	case "gzip":
		saramaCfg.Producer.Compression = sarama.CompressionGZIP
	case "snappy":
		saramaCfg.Producer.Compression = sarama.CompressionSnappy
	case "lz4":
		saramaCfg.Producer.Compression = sarama.CompressionLZ4
	case "zstd":
		saramaCfg.Producer.Compression = sarama.CompressionZSTD
	default:
		saramaCfg.Producer.Compression = sarama.CompressionNone
	}

	saramaCfg.Producer.Idempotent = cfg.Producer.Idempotent
	if cfg.Producer.Idempotent {
		saramaCfg.Net.MaxOpenRequests = 1
	}

	if cfg.Producer.MaxMessageBytes > 0 {
		saramaCfg.Producer.MaxMessageBytes = cfg.Producer.MaxMessageBytes
	}

	if err := applySecurity(saramaCfg, cfg); err != nil {
		return nil, err
	}

	return saramaCfg, nil
}

// applySecurity 配置 SASL 与 TLS，生产者与消费者共用
func applySecurity(saramaCfg *sarama.Config, cfg *mq.KafkaConfig) error {
	if cfg.SASL.Enable {
		saramaCfg.Net.SASL.Enable = true
		saramaCfg.Net.SASL.User = cfg.SASL.Username
		saramaCfg.Net.SASL.Password = cfg.SASL.Password

		switch cfg.SASL.Mechanism {
		case "SCRAM-SHA-256":
			saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA256}
			}
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA256
		case "SCRAM-SHA-512":
			saramaCfg.Net.SASL.SCRAMClientGeneratorFunc = func() sarama.SCRAMClient {
				return &XDGSCRAMClient{HashGeneratorFcn: SHA512}
			}
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypeSCRAMSHA512
		default:
			saramaCfg.Net.SASL.Mechanism = sarama.SASLTypePlaintext
		}
	}

	if cfg.TLS.Enable {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return fmt.Errorf("build TLS config: %w", err)
		}
		saramaCfg.Net.TLS.Enable = true
		saramaCfg.Net.TLS.Config = tlsConfig
	}

	return nil
}

func buildTLSConfig(cfg mq.KafkaTLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: cfg.Insecure,
	}

	if cfg.CAFile != "" {
		caCert, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("read CA file: %w", err)
		}
		caCertPool := x509.NewCertPool()
		caCertPool.AppendCertsFromPEM(caCert)
		tlsConfig.RootCAs = caCertPool
	}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("load cert/key pair: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func toProducerMessage(msg *mq.Message) *sarama.ProducerMessage {
	kafkaMsg := &sarama.ProducerMessage{
		Topic:     msg.Topic,
		Value:     sarama.ByteEncoder(msg.Body),
		Timestamp: time.Now(),
	}

	if msg.Key != "" {
		kafkaMsg.Key = sarama.StringEncoder(msg.Key)
	}

	if len(msg.Properties) > 0 {
		headers := make([]sarama.RecordHeader, 0, len(msg.Properties)+1)
		for k, v := range msg.Properties {
			headers = append(headers, sarama.RecordHeader{
				Key:   []byte(k),
				Value: []byte(v),
			})
		}
		kafkaMsg.Headers = headers
	}

	if msg.Tag != "" {
		kafkaMsg.Headers = append(kafkaMsg.Headers, sarama.RecordHeader{
			Key:   []byte(tagHeaderKey),
			Value: []byte(msg.Tag),
		})
	}

	return kafkaMsg
}
