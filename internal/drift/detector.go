package drift

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"TrustMesh/internal/geometry"
	"TrustMesh/internal/registry"
	"TrustMesh/pkg/logger"
)

// DefaultThreshold 是漂移判定的默认重合度变化阈值。远比注册表的
// 0.15 告警带宽严格：巡检在带外运行，宁可噪声偏高也要更早发现
// 对声明画像的缓慢篡改。
const DefaultThreshold = 0.003

// DefaultEventCapacity 是事件环形缓冲的默认容量。
const DefaultEventCapacity = 100

// Event 是一次已判定漂移的审计记录，只追加，由环形缓冲限容。
type Event struct {
	PeerID      string  `json:"peer_id"`
	DisplayName string  `json:"display_name"`
	Timestamp   int64   `json:"timestamp"`
	OldOverlap  float64 `json:"old_overlap"`
	NewOverlap  float64 `json:"new_overlap"`
	Delta       float64 `json:"delta"`
	Quarantined bool    `json:"quarantined"`
	Reason      string  `json:"reason"`
}

// Result 是单个对端一次巡检的结果。
type Result struct {
	PeerID      string  `json:"peer_id"`
	Known       bool    `json:"known"`
	Drifted     bool    `json:"drifted"`
	OldOverlap  float64 `json:"old_overlap"`
	NewOverlap  float64 `json:"new_overlap"`
	Delta       float64 `json:"delta"`
	Quarantined bool    `json:"quarantined"`
	Reason      string  `json:"reason,omitempty"`
}

// Stats 汇总探测器自启动或上次重置以来的运行计数。
type Stats struct {
	Checks          int     `json:"checks"`
	Drifts          int     `json:"drifts"`
	Quarantines     int     `json:"quarantines"`
	CumulativeDelta float64 `json:"cumulative_delta"`
	PeakDelta       float64 `json:"peak_delta"`
}

// SweepSummary 是一轮全量巡检的聚合结果。
type SweepSummary struct {
	Considered  int `json:"considered"`
	Skipped     int `json:"skipped"`
	Drifted     int `json:"drifted"`
	Quarantined int `json:"quarantined"`
}

// Detector 对注册表中的对端做高精度漂移巡检。自身不持久化任何状态，
// 以注册表存储的哈希与重合度为旧基线。与注册表一样预期串行调用。
type Detector struct {
	mu        sync.Mutex
	reg       *registry.Registry
	threshold float64
	capacity  int
	events    []Event
	stats     Stats
	log       *slog.Logger
}

// Option 定义可选的探测器配置。
type Option func(*Detector)

// WithThreshold 覆盖默认的漂移阈值。
func WithThreshold(threshold float64) Option {
	return func(d *Detector) {
		if threshold > 0 {
			d.threshold = threshold
		}
	}
}

// WithEventCapacity 覆盖事件缓冲容量。
func WithEventCapacity(capacity int) Option {
	return func(d *Detector) {
		if capacity > 0 {
			d.capacity = capacity
		}
	}
}

// New 构造漂移探测器。
func New(reg *registry.Registry, opts ...Option) *Detector {
	d := &Detector{
		reg:       reg,
		threshold: DefaultThreshold,
		capacity:  DefaultEventCapacity,
		log:       logger.Named("drift"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(d)
		}
	}
	return d
}

// Threshold 返回当前漂移阈值。
func (d *Detector) Threshold() float64 {
	return d.threshold
}

// CheckPeer 对单个对端做一次高精度检查。未注册的对端不产生任何副作
// 用。只有几何哈希确实变化且重合度变化超过阈值才判定漂移——哈希未变
// 的输入永远不算，即使存在浮点噪声。判定漂移时记录事件并在对端尚未
// 隔离时触发隔离；已隔离的对端只留痕不重复隔离。无论结果如何都会把
// 注册表中的观测值推进到本次巡检。
func (d *Detector) CheckPeer(peerID string, v geometry.Vector) Result {
	rec, known := d.reg.Peer(peerID)
	if !known {
		return Result{PeerID: peerID, Known: false}
	}

	newHash := geometry.Hash(v).Hex()
	newOverlap := geometry.Overlap(d.reg.LocalGeometry(), v).Overlap
	delta := newOverlap - rec.Overlap

	result := Result{
		PeerID:     peerID,
		Known:      true,
		OldOverlap: rec.Overlap,
		NewOverlap: newOverlap,
		Delta:      delta,
	}

	d.mu.Lock()
	d.stats.Checks++
	drifted := newHash != rec.GeometryHash && math.Abs(delta) > d.threshold
	if drifted {
		d.stats.Drifts++
		d.stats.CumulativeDelta += math.Abs(delta)
		if math.Abs(delta) > d.stats.PeakDelta {
			d.stats.PeakDelta = math.Abs(delta)
		}
	}
	d.mu.Unlock()

	if drifted {
		result.Drifted = true
		result.Reason = fmt.Sprintf("Geometry drift detected: |Δoverlap| %.6f exceeds threshold %.6f", math.Abs(delta), d.threshold)

		alreadyQuarantined := rec.Status == registry.StatusQuarantined
		if !alreadyQuarantined {
			if d.reg.QuarantinePeer(peerID, result.Reason) {
				result.Quarantined = true
				d.mu.Lock()
				d.stats.Quarantines++
				d.mu.Unlock()
			}
		}

		event := Event{
			PeerID:      peerID,
			DisplayName: rec.DisplayName,
			Timestamp:   time.Now().Unix(),
			OldOverlap:  rec.Overlap,
			NewOverlap:  newOverlap,
			Delta:       delta,
			Quarantined: result.Quarantined,
			Reason:      result.Reason,
		}
		d.appendEvent(event)

		logger.Audit().Warn("drift event",
			slog.String("peer_id", peerID),
			slog.Float64("old_overlap", rec.Overlap),
			slog.Float64("new_overlap", newOverlap),
			slog.Float64("delta", delta),
			slog.Bool("quarantined", result.Quarantined),
		)
	}

	d.reg.RefreshObservation(peerID, newHash, newOverlap)
	return result
}

// CheckBatch 依次巡检一批对端。
func (d *Detector) CheckBatch(vectors map[string]geometry.Vector) []Result {
	results := make([]Result, 0, len(vectors))
	for peerID, v := range vectors {
		results = append(results, d.CheckPeer(peerID, v))
	}
	return results
}

// MonitorAll 对注册表中已存在的对端做一轮全量巡检。vectors 中不在
// 注册表里的条目直接跳过，不会创建记录。
func (d *Detector) MonitorAll(vectors map[string]geometry.Vector) SweepSummary {
	summary := SweepSummary{}
	for peerID, v := range vectors {
		if _, known := d.reg.Peer(peerID); !known {
			summary.Skipped++
			continue
		}
		result := d.CheckPeer(peerID, v)
		summary.Considered++
		if result.Drifted {
			summary.Drifted++
		}
		if result.Quarantined {
			summary.Quarantined++
		}
	}
	d.log.Info("sweep completed",
		slog.Int("considered", summary.Considered),
		slog.Int("skipped", summary.Skipped),
		slog.Int("drifted", summary.Drifted),
		slog.Int("quarantined", summary.Quarantined),
	)
	return summary
}

// appendEvent 追加事件并按容量淘汰最旧条目。
func (d *Detector) appendEvent(event Event) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.events = append(d.events, event)
	if len(d.events) > d.capacity {
		d.events = d.events[len(d.events)-d.capacity:]
	}
}

// Stats 返回运行计数的快照。
func (d *Detector) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

// RecentEvents 返回最近的 limit 条事件，最新的在前。limit 不为正时
// 返回全部。
func (d *Detector) RecentEvents(limit int) []Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := len(d.events)
	if limit <= 0 || limit > n {
		limit = n
	}
	events := make([]Event, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		events = append(events, d.events[i])
	}
	return events
}

// Reset 清空计数器与事件缓冲。
func (d *Detector) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stats = Stats{}
	d.events = nil
}

// ExportEvents 把事件缓冲导出为 JSON，按时间先后排列。
func (d *Detector) ExportEvents() ([]byte, error) {
	d.mu.Lock()
	events := make([]Event, len(d.events))
	copy(events, d.events)
	d.mu.Unlock()
	return json.MarshalIndent(events, "", "  ")
}
