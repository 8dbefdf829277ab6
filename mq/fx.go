package mq

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

/* ========================================================================
 * Fx 模块 - MQ 依赖注入
 * ========================================================================
 * 职责: 把 Producer/Consumer 的创建与启停挂到应用生命周期上
 * 消费者 Start 前要在 fx.Invoke 阶段完成订阅
 * ======================================================================== */

// Module 根据配置创建 Producer 与 Consumer 并绑定生命周期
var Module = fx.Module("mq",
	fx.Provide(
		ProvideProducer,
		ProvideConsumer,
	),
)

// ProducerParams Producer 依赖参数
type ProducerParams struct {
	fx.In

	Config *Config
	Logger *zap.Logger
}

// ProducerResult Producer 返回结果
type ProducerResult struct {
	fx.Out

	Producer Producer
}

// ProvideProducer 提供 Producer（用于 Fx）
func ProvideProducer(lc fx.Lifecycle, params ProducerParams) (ProducerResult, error) {
	producer, err := NewProducer(params.Config, params.Logger)
	if err != nil {
		return ProducerResult{}, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return producer.Close()
		},
	})

	return ProducerResult{Producer: producer}, nil
}

// ConsumerParams Consumer 依赖参数
type ConsumerParams struct {
	fx.In

	Config *Config
	Logger *zap.Logger
}

// ConsumerResult Consumer 返回结果
type ConsumerResult struct {
	fx.Out

	Consumer Consumer
}

// ProvideConsumer 提供 Consumer（用于 Fx）。
// Start 在 OnStart 里执行，订阅要在 fx.Invoke 阶段完成。
func ProvideConsumer(lc fx.Lifecycle, params ConsumerParams) (ConsumerResult, error) {
	consumer, err := NewConsumer(params.Config, params.Logger)
	if err != nil {
		return ConsumerResult{}, err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return consumer.Start()
		},
		OnStop: func(ctx context.Context) error {
			return consumer.Close()
		},
	})

	return ConsumerResult{Consumer: consumer}, nil
}

// ProducerOnlyModule 仅提供 Producer 的模块
var ProducerOnlyModule = fx.Module("mq-producer",
	fx.Provide(ProvideProducer),
)

// ConsumerOnlyModule 仅提供 Consumer 的模块
var ConsumerOnlyModule = fx.Module("mq-consumer",
	fx.Provide(ProvideConsumer),
)
