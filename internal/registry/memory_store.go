package registry

import (
	"context"
	"sync"

	xerrors "TrustMesh/internal/errors"
)

// MemoryStore 以内存方式保存对端记录，主要用于测试。
type MemoryStore struct {
	mu    sync.RWMutex
	peers map[string]*PeerRecord
}

// NewMemoryStore 创建 MemoryStore。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{peers: make(map[string]*PeerRecord)}
}

// Load 返回全部对端记录。
func (m *MemoryStore) Load(_ context.Context) ([]*PeerRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	peers := make([]*PeerRecord, 0, len(m.peers))
	for _, rec := range m.peers {
		peers = append(peers, clonePeer(rec))
	}
	return peers, nil
}

// Upsert 实现 Store 接口。
func (m *MemoryStore) Upsert(_ context.Context, rec *PeerRecord) error {
	if rec == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "记录不能为空")
	}
	if rec.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "对端 ID 不能为空")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.peers[rec.ID] = clonePeer(rec)
	return nil
}

// Delete 移除指定对端，返回其是否存在。
func (m *MemoryStore) Delete(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.peers[id]; !ok {
		return false, nil
	}
	delete(m.peers, id)
	return true, nil
}

// Close 对内存存储无需操作。
func (m *MemoryStore) Close() error {
	return nil
}

var _ Store = (*MemoryStore)(nil)
