package mq

import (
	"context"
	"time"

	"github.com/hl8/hl8-go-pkg/isolation"
)

/* ========================================================================
 * MQ 抽象接口
 * ========================================================================
 * 职责: 定义统一的消息队列接口，消息属性承载隔离上下文标识，
 *       保证事件在异步链路上保留租户归属
 * 实现: Kafka (mq/kafka)
 * ======================================================================== */

// Producer 消息生产者接口
type Producer interface {
	// SendSync 同步发送消息。ctx 中的隔离上下文会写入消息属性。
	SendSync(ctx context.Context, msg *Message) (*SendResult, error)

	// SendAsync 异步发送消息
	SendAsync(ctx context.Context, msg *Message, callback SendCallback) error

	// Close 关闭生产者
	Close() error
}

// Consumer 消息消费者接口
type Consumer interface {
	// Subscribe 订阅主题
	Subscribe(topic string, handler MessageHandler) error

	// Start 启动消费者
	Start() error

	// Close 关闭消费者
	Close() error
}

// =============================================================================
// 消息模型
// =============================================================================

// Message 消息结构（broker 无关）
type Message struct {
	Topic      string            // 主题
	Body       []byte            // 消息体
	Key        string            // 消息键（用于分区/顺序）
	Tag        string            // 标签，按 header 传递
	Properties map[string]string // 自定义属性
}

// NewMessage 创建消息
func NewMessage(topic string, body []byte) *Message {
	return &Message{
		Topic:      topic,
		Body:       body,
		Properties: make(map[string]string),
	}
}

// WithKey 设置消息键
func (m *Message) WithKey(key string) *Message {
	m.Key = key
	return m
}

// WithTag 设置标签
func (m *Message) WithTag(tag string) *Message {
	m.Tag = tag
	return m
}

// WithProperty 设置属性
func (m *Message) WithProperty(key, value string) *Message {
	if m.Properties == nil {
		m.Properties = make(map[string]string)
	}
	m.Properties[key] = value
	return m
}

// WithProperties 批量设置属性
func (m *Message) WithProperties(props map[string]string) *Message {
	if m.Properties == nil {
		m.Properties = make(map[string]string)
	}
	for k, v := range props {
		m.Properties[k] = v
	}
	return m
}

// StampIsolation 将 ctx 中的隔离标识写入消息属性。
// 已显式设置的同名属性不会被覆盖。
func (m *Message) StampIsolation(ctx context.Context) *Message {
	headers := isolation.CarryHeaders(ctx)
	if len(headers) == 0 {
		return m
	}
	if m.Properties == nil {
		m.Properties = make(map[string]string, len(headers))
	}
	for k, v := range headers {
		if _, exists := m.Properties[k]; !exists {
			m.Properties[k] = v
		}
	}
	return m
}

// =============================================================================
// 消费消息模型
// =============================================================================

// ConsumedMessage 已消费的消息
type ConsumedMessage struct {
	Topic        string            // 主题
	Body         []byte            // 消息体
	Key          string            // 消息键
	Tag          string            // 标签
	Properties   map[string]string // 属性
	MsgID        string            // 消息 ID
	Offset       int64             // 偏移量
	Partition    int32             // 分区
	BornTime     time.Time         // 消息产生时间
	ReconsumeCnt int32             // 重试次数
}

// IsolationContext 从消息属性还原隔离上下文。
// 属性非法或缺失时返回平台级上下文，调用方据此决定可见范围。
func (m *ConsumedMessage) IsolationContext() *isolation.Context {
	ic, err := isolation.FromHeaderLookup(func(key string) string {
		return m.Properties[key]
	})
	if err != nil {
		return isolation.Platform()
	}
	return ic
}

// =============================================================================
// 回调与结果
// =============================================================================

// SendResult 发送结果
type SendResult struct {
	MsgID     string // 消息 ID
	Topic     string // 主题
	Partition int32  // 分区
	Offset    int64  // 偏移量
	Status    SendStatus
}

// SendStatus 发送状态
type SendStatus int

const (
	SendStatusOK SendStatus = iota
	SendStatusUnknownError
)

// SendCallback 异步发送回调
type SendCallback func(result *SendResult, err error)

// =============================================================================
// 消费处理
// =============================================================================

// ConsumeResult 消费结果
type ConsumeResult int

const (
	ConsumeSuccess    ConsumeResult = iota // 消费成功
	ConsumeRetryLater                      // 稍后重试
)

// MessageHandler 消息处理函数。ctx 已注入消息携带的隔离上下文。
type MessageHandler func(ctx context.Context, msgs []*ConsumedMessage) (ConsumeResult, error)

// =============================================================================
// MQ 类型
// =============================================================================

// Type MQ 类型
type Type string

const (
	TypeKafka Type = "kafka"
)
