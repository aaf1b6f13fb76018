package registry

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"TrustMesh/internal/geometry"
	"TrustMesh/pkg/logger"
)

// Registry 维护全部已知对端的信任记录，并把每次变更镜像到持久化存储。
// 本地基线向量是唯一的共享可变字段；SetLocalGeometry 预期在初始化或
// 重配置阶段调用，而不是在并发读压力下调用。
type Registry struct {
	mu        sync.RWMutex
	local     geometry.Vector
	peers     map[string]*PeerRecord
	store     Store
	log       *slog.Logger
	listeners []QuarantineListener
}

// QuarantineListener 在对端进入隔离状态时被回调，用于联动销毁通道等
// 内存侧资源。回调在注册表锁释放之后执行。
type QuarantineListener func(id, reason string)

// Stats 汇总注册表中各状态的对端数量。
type Stats struct {
	Total       int `json:"total"`
	Trusted     int `json:"trusted"`
	Quarantined int `json:"quarantined"`
	Unknown     int `json:"unknown"`
}

// New 构造注册表并加载既有的持久化记录。
func New(local geometry.Vector, store Store) (*Registry, error) {
	r := &Registry{
		local: local,
		peers: make(map[string]*PeerRecord),
		store: store,
		log:   logger.Named("registry"),
	}
	if store != nil {
		peers, err := store.Load(context.Background())
		if err != nil {
			return nil, err
		}
		for _, rec := range peers {
			r.peers[rec.ID] = clonePeer(rec)
		}
	}
	return r, nil
}

// OnQuarantine 注册隔离事件监听器。监听器必须自行保证幂等。
func (r *Registry) OnQuarantine(fn QuarantineListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) notifyQuarantine(id, reason string) {
	r.mu.RLock()
	listeners := make([]QuarantineListener, len(r.listeners))
	copy(listeners, r.listeners)
	r.mu.RUnlock()
	for _, fn := range listeners {
		fn(id, reason)
	}
}

// RegisterPeer 依据本地基线重算对端的信任状态并持久化。首次注册写入
// RegisteredAt；重注册保留 RegisteredAt，刷新其余全部字段。重合度低于
// 隔离下限时自动隔离。被拒绝的握手同样经过这里，以便留下审计痕迹。
func (r *Registry) RegisterPeer(id, name string, v geometry.Vector) *PeerRecord {
	if id == "" {
		r.log.Warn("忽略空 ID 的注册请求")
		return nil
	}

	r.mu.Lock()

	result := geometry.Overlap(r.local, v)
	now := time.Now().Unix()

	rec, exists := r.peers[id]
	if !exists {
		rec = &PeerRecord{ID: id, RegisteredAt: now}
		r.peers[id] = rec
	}
	rec.DisplayName = name
	rec.GeometryHash = geometry.Hash(v).Hex()
	rec.Overlap = result.Overlap
	rec.Status = statusForOverlap(result.Overlap)
	rec.QuarantineReason = ""
	rec.LastSeen = now
	if rec.Status == StatusQuarantined {
		rec.QuarantineReason = fmt.Sprintf("Low overlap: %.3f < %.3f", result.Overlap, QuarantineFloor)
	}

	r.mirror(rec)
	clone := clonePeer(rec)
	r.mu.Unlock()

	logger.Audit().Info("peer registered",
		slog.String("peer_id", id),
		slog.String("display_name", name),
		slog.Float64("overlap", result.Overlap),
		slog.String("status", string(clone.Status)),
	)
	if clone.Status == StatusQuarantined {
		r.notifyQuarantine(id, clone.QuarantineReason)
	}
	return clone
}

// PeerStatus 返回指定对端的当前状态。
func (r *Registry) PeerStatus(id string) (Status, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.peers[id]
	if !ok {
		return StatusUnknown, false
	}
	return rec.Status, true
}

// Peer 返回指定对端记录的副本。
func (r *Registry) Peer(id string) (*PeerRecord, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	return clonePeer(rec), true
}

// ListPeers 返回全部对端记录的副本。
func (r *Registry) ListPeers() []*PeerRecord {
	r.mu.RLock()
	defer r.mu.RUnlock()
	peers := make([]*PeerRecord, 0, len(r.peers))
	for _, rec := range r.peers {
		peers = append(peers, clonePeer(rec))
	}
	return peers
}

// QuarantinePeer 无条件手动隔离指定对端，与当前重合度无关。
// 对端不存在时返回 false。
func (r *Registry) QuarantinePeer(id, reason string) bool {
	r.mu.Lock()

	rec, ok := r.peers[id]
	if !ok {
		r.mu.Unlock()
		return false
	}
	rec.Status = StatusQuarantined
	rec.QuarantineReason = reason
	rec.LastSeen = time.Now().Unix()
	r.mirror(rec)
	r.mu.Unlock()

	logger.Audit().Warn("peer quarantined",
		slog.String("peer_id", id),
		slog.String("reason", reason),
	)
	r.notifyQuarantine(id, reason)
	return true
}

// CheckDrift 是粗粒度的漂移检查：重合度变化超出告警带宽或跌破隔离
// 下限即视为漂移，后者在未隔离时触发自动隔离。无论结果如何都会刷新
// 存储的哈希、重合度与 LastSeen。未注册的对端不会创建记录。
//
// 已隔离的对端不会因为这里的重算而恢复状态：隔离只能通过重新注册或
// 手动操作解除。
func (r *Registry) CheckDrift(id string, v geometry.Vector) DriftCheck {
	r.mu.Lock()

	rec, ok := r.peers[id]
	if !ok {
		r.mu.Unlock()
		return DriftCheck{Drifted: false, Reason: "peer not registered"}
	}

	result := geometry.Overlap(r.local, v)
	oldOverlap := rec.Overlap
	newOverlap := result.Overlap
	delta := newOverlap - oldOverlap

	check := DriftCheck{
		OldOverlap: oldOverlap,
		NewOverlap: newOverlap,
	}

	justQuarantined := false
	switch {
	case newOverlap < QuarantineFloor:
		check.Drifted = true
		check.Reason = fmt.Sprintf("Overlap drifted from %.3f to %.3f, below quarantine floor %.3f",
			oldOverlap, newOverlap, QuarantineFloor)
		if rec.Status != StatusQuarantined {
			rec.Status = StatusQuarantined
			rec.QuarantineReason = check.Reason
			justQuarantined = true
		}
	case math.Abs(delta) > DriftBand:
		check.Drifted = true
		check.Reason = fmt.Sprintf("Overlap moved from %.3f to %.3f, outside warning band %.3f",
			oldOverlap, newOverlap, DriftBand)
		if rec.Status != StatusQuarantined {
			rec.Status = statusForOverlap(newOverlap)
		}
	default:
		if rec.Status != StatusQuarantined {
			rec.Status = statusForOverlap(newOverlap)
		}
	}

	rec.GeometryHash = geometry.Hash(v).Hex()
	rec.Overlap = newOverlap
	rec.LastSeen = time.Now().Unix()
	r.mirror(rec)
	r.mu.Unlock()

	if justQuarantined {
		logger.Audit().Warn("peer auto-quarantined on drift",
			slog.String("peer_id", id),
			slog.String("reason", check.Reason),
		)
		r.notifyQuarantine(id, check.Reason)
	}
	return check
}

// RemovePeer 显式移除对端记录，返回其是否存在。记录从不自动删除。
func (r *Registry) RemovePeer(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.peers[id]; !ok {
		return false
	}
	delete(r.peers, id)
	if r.store != nil {
		if _, err := r.store.Delete(context.Background(), id); err != nil {
			r.log.Error("删除持久化记录失败", slog.String("peer_id", id), slog.Any("error", err))
		}
	}
	return true
}

// SetLocalGeometry 替换本地基线向量。既有对端的重合度不会被立刻
// 重算，而是保持过期状态直到它们的下一次检查。
func (r *Registry) SetLocalGeometry(v geometry.Vector) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.local = v
}

// LocalGeometry 返回本地基线向量的只读副本，供漂移探测器使用。
func (r *Registry) LocalGeometry() geometry.Vector {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.local
}

// RefreshObservation 刷新存储的几何观测值而不触碰状态机，供漂移探测
// 器在巡检后推进基线使用。对端不存在时返回 false。
func (r *Registry) RefreshObservation(id, hash string, overlap float64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.peers[id]
	if !ok {
		return false
	}
	rec.GeometryHash = hash
	rec.Overlap = overlap
	rec.LastSeen = time.Now().Unix()
	r.mirror(rec)
	return true
}

// Stats 返回按状态统计的对端数量。
func (r *Registry) Stats() Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := Stats{Total: len(r.peers)}
	for _, rec := range r.peers {
		switch rec.Status {
		case StatusTrusted:
			stats.Trusted++
		case StatusQuarantined:
			stats.Quarantined++
		default:
			stats.Unknown++
		}
	}
	return stats
}

// Close 释放持久化资源。
func (r *Registry) Close() error {
	if r.store != nil {
		return r.store.Close()
	}
	return nil
}

// mirror 把记录同步写入持久化存储。写入失败只记录告警, 内存中的注册
// 表仍然是权威状态, 注册表操作对调用方保持全量成功语义。
func (r *Registry) mirror(rec *PeerRecord) {
	if r.store == nil {
		return
	}
	if err := r.store.Upsert(context.Background(), rec); err != nil {
		r.log.Error("镜像对端记录失败", slog.String("peer_id", rec.ID), slog.Any("error", err))
	}
}
