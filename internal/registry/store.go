package registry

import "context"

// SnapshotVersion 是持久化格式的当前版本号。
const SnapshotVersion = 1

// Snapshot 是注册表落盘时的整体结构。
type Snapshot struct {
	Peers       []*PeerRecord `json:"peers"`
	Version     int           `json:"version"`
	LastUpdated int64         `json:"last_updated"`
}

// Store 抽象了对端记录的持久化接口。注册表在每次变更后同步镜像，
// 本系统是存储的唯一拥有者与读取方。
type Store interface {
	Load(ctx context.Context) ([]*PeerRecord, error)
	Upsert(ctx context.Context, rec *PeerRecord) error
	Delete(ctx context.Context, id string) (bool, error)
	Close() error
}
