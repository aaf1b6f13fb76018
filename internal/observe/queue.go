package observe

import (
	"context"
)

// Handler 处理来自消息队列的观察消息原文。
type Handler func(ctx context.Context, body string) error

// Producer 负责向队列投递观察消息。
type Producer interface {
	Publish(ctx context.Context, body string) error
	Close() error
}

// Consumer 负责从队列中消费观察消息。
type Consumer interface {
	Consume(ctx context.Context, workerCount int, handler Handler) error
	Close() error
}

// Queue 同时具备生产者与消费者能力。
type Queue interface {
	Producer
	Consumer
}
