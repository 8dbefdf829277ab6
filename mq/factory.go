package mq

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

/* ========================================================================
 * MQ 工厂 - 根据配置创建对应实现
 * ========================================================================
 * 职责: 注册表式工厂，实现包在 init 中注册自己
 * 当前内置 kafka 适配器，注册表保留给后续其他 broker 实现
 * ======================================================================== */

// ProducerFactory 生产者工厂函数类型
type ProducerFactory func(cfg *Config, logger *zap.Logger) (Producer, error)

// ConsumerFactory 消费者工厂函数类型
type ConsumerFactory func(cfg *Config, logger *zap.Logger) (Consumer, error)

var (
	producerFactories = make(map[Type]ProducerFactory)
	consumerFactories = make(map[Type]ConsumerFactory)
	factoryMu         sync.RWMutex
)

// RegisterProducerFactory 注册生产者工厂，由各实现包的 init 调用
func RegisterProducerFactory(mqType Type, factory ProducerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	producerFactories[mqType] = factory
}

// RegisterConsumerFactory 注册消费者工厂
func RegisterConsumerFactory(mqType Type, factory ConsumerFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	consumerFactories[mqType] = factory
}

// NewProducer 按 cfg.Type 创建生产者
// 对应实现包（如 mq/kafka）必须已被 import，否则类型未注册
func NewProducer(cfg *Config, logger *zap.Logger) (Producer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mq config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	factoryMu.RLock()
	factory, ok := producerFactories[cfg.Type]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported MQ type: %s", cfg.Type)
	}

	logger.Info("creating MQ producer", zap.String("type", string(cfg.Type)))
	return factory(cfg, logger)
}

// NewConsumer 按 cfg.Type 创建消费者
func NewConsumer(cfg *Config, logger *zap.Logger) (Consumer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("mq config is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	factoryMu.RLock()
	factory, ok := consumerFactories[cfg.Type]
	factoryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported MQ type: %s", cfg.Type)
	}

	logger.Info("creating MQ consumer", zap.String("type", string(cfg.Type)))
	return factory(cfg, logger)
}

// AvailableTypes 返回已注册的 MQ 类型
func AvailableTypes() []Type {
	factoryMu.RLock()
	defer factoryMu.RUnlock()

	types := make([]Type, 0, len(producerFactories))
	for t := range producerFactories {
		types = append(types, t)
	}
	return types
}
