package registry

import (
	xerrors "TrustMesh/internal/errors"
)

// Status 表示对端在信任生命周期中的状态。
type Status string

const (
	StatusTrusted     Status = "trusted"
	StatusQuarantined Status = "quarantined"
	StatusUnknown     Status = "unknown"
)

const (
	// TrustThreshold 是进入 trusted 状态所需的最小重合度。
	TrustThreshold = 0.8
	// QuarantineFloor 是触发自动隔离的重合度下限。
	QuarantineFloor = 0.6
	// DriftBand 是粗粒度漂移检查的告警带宽。
	DriftBand = 0.15
)

// statusForOverlap 是状态机的唯一迁移函数：状态完全由最近一次重算的
// 重合度决定。手动隔离是唯一的粘性覆盖，不经过这里。
func statusForOverlap(overlap float64) Status {
	switch {
	case overlap >= TrustThreshold:
		return StatusTrusted
	case overlap < QuarantineFloor:
		return StatusQuarantined
	default:
		return StatusUnknown
	}
}

// PeerRecord 是注册表中持久化的对端记录。RegisteredAt 仅在首次注册时
// 写入，之后的重注册保留原值并刷新其余字段；记录不会被自动删除。
type PeerRecord struct {
	ID               string  `json:"id"`
	DisplayName      string  `json:"display_name"`
	GeometryHash     string  `json:"geometry_hash"`
	Overlap          float64 `json:"overlap"`
	Status           Status  `json:"status"`
	QuarantineReason string  `json:"quarantine_reason,omitempty"`
	RegisteredAt     int64   `json:"registered_at"`
	LastSeen         int64   `json:"last_seen"`
}

// DriftCheck 是粗粒度漂移检查的结果，属于正常业务结果而非错误。
type DriftCheck struct {
	Drifted    bool    `json:"drifted"`
	OldOverlap float64 `json:"old_overlap"`
	NewOverlap float64 `json:"new_overlap"`
	Reason     string  `json:"reason,omitempty"`
}

var (
	// ErrPeerNotFound 表示指定的对端不存在。
	ErrPeerNotFound = xerrors.New(CodePeerNotFound, "peer not found")
)

const (
	CodePeerNotFound xerrors.Code = "PEER_NOT_FOUND"
	CodePeerStorage  xerrors.Code = "PEER_STORAGE_FAILED"
)

func init() {
	xerrors.Register(CodePeerNotFound, xerrors.Attributes{
		Message:   "peer not found",
		Severity:  xerrors.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
	xerrors.Register(CodePeerStorage, xerrors.Attributes{
		Message:   "peer storage failed",
		Severity:  xerrors.SeverityCritical,
		Retryable: true,
		Alert:     true,
	})
}

// IsValidStatus 检查给定的状态是否为支持的枚举值。
func IsValidStatus(status Status) bool {
	switch status {
	case StatusTrusted, StatusQuarantined, StatusUnknown:
		return true
	default:
		return false
	}
}

func clonePeer(rec *PeerRecord) *PeerRecord {
	if rec == nil {
		return nil
	}
	clone := *rec
	return &clone
}
