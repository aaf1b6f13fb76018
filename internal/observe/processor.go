package observe

import (
	"context"
	"log/slog"
	"time"

	"TrustMesh/internal/drift"
	"TrustMesh/internal/geometry"
	"TrustMesh/internal/handshake"
	"TrustMesh/pkg/logger"
)

// Processor 消费观察队列并驱动握手协议与漂移检测。
type Processor struct {
	protocol    *handshake.Protocol
	detector    *drift.Detector
	queue       Consumer
	workerCount int
	log         *slog.Logger
}

// ProcessorOption 配置 Processor 的可选参数。
type ProcessorOption func(*Processor)

// WithWorkerCount 设置消费工作协程数量。
func WithWorkerCount(count int) ProcessorOption {
	return func(p *Processor) {
		if count > 0 {
			p.workerCount = count
		}
	}
}

// NewProcessor 创建观察消息处理器。
func NewProcessor(queue Consumer, protocol *handshake.Protocol, detector *drift.Detector, opts ...ProcessorOption) *Processor {
	p := &Processor{
		protocol:    protocol,
		detector:    detector,
		queue:       queue,
		workerCount: 4,
		log:         logger.Named("observe"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run 启动消费循环，阻塞直到 ctx 取消。
func (p *Processor) Run(ctx context.Context) error {
	p.log.Info("observation processor started", "workers", p.workerCount)
	return p.queue.Consume(ctx, p.workerCount, p.handle)
}

// handle 处理单条观察消息。畸形消息记录日志后丢弃，不再回投。
func (p *Processor) handle(_ context.Context, body string) error {
	msg, err := ParseMessage(body)
	if err != nil {
		p.log.Warn("discarding malformed observation", "error", err)
		return nil
	}

	switch msg.Kind {
	case KindHandshake:
		resp, err := p.protocol.Initiate(handshake.Request{
			PeerID:      msg.PeerID,
			DisplayName: msg.DisplayName,
			Scores:      msg.Scores,
			Timestamp:   msg.Timestamp,
			Version:     msg.Version,
		})
		if err != nil {
			p.log.Warn("handshake observation rejected", "peer_id", msg.PeerID, "error", err)
			return nil
		}
		p.log.Info("handshake observation processed",
			"peer_id", msg.PeerID,
			"accepted", resp.Accepted,
			"overlap", resp.Overlap,
		)
	case KindReport:
		v, err := geometry.FromScores(msg.Scores)
		if err != nil {
			p.log.Warn("discarding report with invalid scores", "peer_id", msg.PeerID, "error", err)
			return nil
		}
		check := p.protocol.CheckChannelDrift(msg.PeerID, v)
		result := p.detector.CheckPeer(msg.PeerID, v)
		p.log.Info("report observation processed",
			"peer_id", msg.PeerID,
			"drifted", check.Drifted || result.Drifted,
			"overlap", result.NewOverlap,
		)
	}
	return nil
}

// Observe 将一条观察消息投递到队列，供本地组件入队使用。
func Observe(ctx context.Context, producer Producer, msg *Message) error {
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().Unix()
	}
	body, err := msg.Encode()
	if err != nil {
		return err
	}
	return producer.Publish(ctx, body)
}
