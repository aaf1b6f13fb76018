package handshake

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"TrustMesh/internal/geometry"
	"TrustMesh/internal/registry"
	"TrustMesh/pkg/logger"
)

// Request 是入站握手请求。向量以稀疏分值映射携带，缺失类别取 0。
type Request struct {
	PeerID      string             `json:"peer_id"`
	DisplayName string             `json:"display_name"`
	Scores      map[string]float64 `json:"scores"`
	Timestamp   int64              `json:"timestamp"`
	Version     string             `json:"version"`
}

// Response 是握手的决策结果。拒绝属于正常业务结果而非错误，Message
// 中嵌入了做出决策的数值比较，调用方据字段分支而非捕获异常。
type Response struct {
	ResponseID string          `json:"response_id"`
	PeerID     string          `json:"peer_id"`
	Accepted   bool            `json:"accepted"`
	Overlap    float64         `json:"overlap"`
	Threshold  float64         `json:"threshold"`
	Aligned    []string        `json:"aligned"`
	Divergent  []string        `json:"divergent"`
	Status     registry.Status `json:"status"`
	Message    string          `json:"message"`
	Timestamp  int64           `json:"timestamp"`
}

// Channel 是一条当前被接受的信任关系的内存记录。只有握手被接受时才
// 会创建；底层对端一旦进入隔离状态，通道立即销毁。不做任何持久化。
type Channel struct {
	LocalPeerID       string          `json:"local_peer_id"`
	RemotePeerID      string          `json:"remote_peer_id"`
	RemoteDisplayName string          `json:"remote_display_name"`
	Overlap           float64         `json:"overlap"`
	Status            registry.Status `json:"status"`
	OpenedAt          int64           `json:"opened_at"`
	LastSeen          int64           `json:"last_seen"`
}

// Protocol 维护本节点的握手会话状态。所有相似度计算委托给 geometry,
// 所有对端状态变更委托给注册表，这里只负责通道生命周期。
type Protocol struct {
	mu        sync.RWMutex
	localID   string
	localName string
	reg       *registry.Registry
	channels  map[string]*Channel
	log       *slog.Logger
}

// New 构造握手协议实例，并订阅注册表的隔离事件：对端一旦被隔离——
// 无论由粗检查、漂移探测器还是手动操作触发——其通道当即销毁。
func New(localID, localName string, reg *registry.Registry) *Protocol {
	p := &Protocol{
		localID:   localID,
		localName: localName,
		reg:       reg,
		channels:  make(map[string]*Channel),
		log:       logger.Named("handshake"),
	}
	reg.OnQuarantine(p.dropChannel)
	return p
}

// dropChannel 在对端进入隔离状态时销毁其通道。幂等。
func (p *Protocol) dropChannel(peerID, reason string) {
	p.mu.Lock()
	_, open := p.channels[peerID]
	if open {
		delete(p.channels, peerID)
	}
	p.mu.Unlock()

	if open {
		logger.Audit().Warn("channel closed on quarantine",
			slog.String("peer_id", peerID),
			slog.String("reason", reason),
		)
	}
}

// Initiate 处理一次入站握手：计算重合度、无条件注册对端（被拒绝的
// 尝试同样留痕）、在接受时创建或覆盖通道。新开通道始终从 trusted
// 状态起步，因为接受的门槛就是信任阈值。
func (p *Protocol) Initiate(req Request) (*Response, error) {
	vector, err := geometry.FromScores(req.Scores)
	if err != nil {
		return nil, err
	}

	result := geometry.Overlap(p.reg.LocalGeometry(), vector)
	accepted := result.Overlap >= registry.TrustThreshold

	rec := p.reg.RegisterPeer(req.PeerID, req.DisplayName, vector)

	now := time.Now().Unix()
	resp := &Response{
		ResponseID: uuid.NewString(),
		PeerID:     req.PeerID,
		Accepted:   accepted,
		Overlap:    result.Overlap,
		Threshold:  registry.TrustThreshold,
		Aligned:    result.Aligned,
		Divergent:  result.Divergent,
		Timestamp:  now,
	}
	if rec != nil {
		resp.Status = rec.Status
	}
	if accepted {
		resp.Message = fmt.Sprintf("Handshake accepted: %.3f >= %.3f", result.Overlap, registry.TrustThreshold)
	} else {
		resp.Message = fmt.Sprintf("Handshake rejected: %.3f < %.3f", result.Overlap, registry.TrustThreshold)
	}

	if accepted {
		p.mu.Lock()
		p.channels[req.PeerID] = &Channel{
			LocalPeerID:       p.localID,
			RemotePeerID:      req.PeerID,
			RemoteDisplayName: req.DisplayName,
			Overlap:           result.Overlap,
			Status:            registry.StatusTrusted,
			OpenedAt:          now,
			LastSeen:          now,
		}
		p.mu.Unlock()
	}

	logger.Audit().Info("handshake decided",
		slog.String("peer_id", req.PeerID),
		slog.Bool("accepted", accepted),
		slog.Float64("overlap", result.Overlap),
		slog.String("message", resp.Message),
	)
	return resp, nil
}

// Receive 记录对端返回的握手响应，仅做观察性日志，不改变任何状态。
func (p *Protocol) Receive(resp *Response) {
	if resp == nil {
		return
	}
	p.log.Info("收到握手响应",
		slog.String("peer_id", resp.PeerID),
		slog.Bool("accepted", resp.Accepted),
		slog.Float64("overlap", resp.Overlap),
		slog.String("message", resp.Message),
	)
}

// CheckChannelDrift 用新的几何观测对某条通道做粗粒度复查。检查委托
// 给注册表；对端若因此被隔离，通道当即销毁，否则刷新通道上的
// 重合度、状态与 LastSeen。
func (p *Protocol) CheckChannelDrift(peerID string, v geometry.Vector) registry.DriftCheck {
	check := p.reg.CheckDrift(peerID, v)

	// 隔离引发的通道销毁已经由注册表的监听器完成，这里只负责刷新
	// 存活通道。
	status, known := p.reg.PeerStatus(peerID)
	if !known || status == registry.StatusQuarantined {
		return check
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	ch, open := p.channels[peerID]
	if !open {
		return check
	}
	ch.Overlap = check.NewOverlap
	ch.Status = status
	ch.LastSeen = time.Now().Unix()
	return check
}

// Channel 返回指定对端的通道；不存在时返回 nil。
func (p *Protocol) Channel(peerID string) *Channel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	ch, ok := p.channels[peerID]
	if !ok {
		return nil
	}
	clone := *ch
	return &clone
}

// ListChannels 返回全部打开通道的副本。
func (p *Protocol) ListChannels() []*Channel {
	p.mu.RLock()
	defer p.mu.RUnlock()
	channels := make([]*Channel, 0, len(p.channels))
	for _, ch := range p.channels {
		clone := *ch
		channels = append(channels, &clone)
	}
	return channels
}

// CloseChannel 手动拆除通道并强制隔离对端，无论其当前重合度多高：
// 手动关闭永远覆盖计算得出的信任。通道不存在时返回 false。
func (p *Protocol) CloseChannel(peerID, reason string) bool {
	p.mu.Lock()
	_, open := p.channels[peerID]
	if !open {
		p.mu.Unlock()
		return false
	}
	delete(p.channels, peerID)
	p.mu.Unlock()

	p.reg.QuarantinePeer(peerID, reason)

	logger.Audit().Warn("channel closed manually",
		slog.String("peer_id", peerID),
		slog.String("reason", reason),
	)
	return true
}
