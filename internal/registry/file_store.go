package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	xerrors "TrustMesh/internal/errors"
	"TrustMesh/pkg/logger"
)

// FileStore 将注册表整体镜像为一个 JSON 快照文件，每次变更全量重写。
// 文件缺失或损坏时回退为空表并记录告警，绝不让调用方崩溃。
type FileStore struct {
	mu    sync.Mutex
	path  string
	peers map[string]*PeerRecord
}

// NewFileStore 创建 FileStore 并立即尝试加载既有快照。
func NewFileStore(path string) (*FileStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "快照文件路径不能为空")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, xerrors.Wrap(CodePeerStorage, err, "创建快照目录失败")
	}
	store := &FileStore{path: path, peers: make(map[string]*PeerRecord)}
	store.loadSnapshot()
	return store, nil
}

// loadSnapshot 读取快照文件。缺失视为首次启动；损坏时告警并清空。
func (f *FileStore) loadSnapshot() {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if !os.IsNotExist(err) {
			logger.L().Warn("读取注册表快照失败, 以空表启动",
				slog.String("path", f.path), slog.Any("error", err))
		}
		return
	}
	var snapshot Snapshot
	if err := json.Unmarshal(content, &snapshot); err != nil {
		logger.L().Warn("注册表快照损坏, 以空表启动",
			slog.String("path", f.path), slog.Any("error", err))
		return
	}
	for _, rec := range snapshot.Peers {
		if rec == nil || rec.ID == "" {
			continue
		}
		f.peers[rec.ID] = clonePeer(rec)
	}
}

// flush 将当前内容全量写回快照文件。先写临时文件再原子替换。
func (f *FileStore) flush() error {
	peers := make([]*PeerRecord, 0, len(f.peers))
	for _, rec := range f.peers {
		peers = append(peers, rec)
	}
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })

	snapshot := Snapshot{
		Peers:       peers,
		Version:     SnapshotVersion,
		LastUpdated: time.Now().Unix(),
	}
	content, err := json.MarshalIndent(&snapshot, "", "  ")
	if err != nil {
		return xerrors.Wrap(CodePeerStorage, err, "编码注册表快照失败")
	}

	tmp := f.path + ".tmp"
	if err := os.WriteFile(tmp, content, 0o644); err != nil {
		return xerrors.Wrap(CodePeerStorage, err, "写入注册表快照失败")
	}
	if err := os.Rename(tmp, f.path); err != nil {
		return xerrors.Wrap(CodePeerStorage, err, "替换注册表快照失败")
	}
	return nil
}

// Load 返回全部对端记录。
func (f *FileStore) Load(_ context.Context) ([]*PeerRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	peers := make([]*PeerRecord, 0, len(f.peers))
	for _, rec := range f.peers {
		peers = append(peers, clonePeer(rec))
	}
	return peers, nil
}

// Upsert 更新记录并立即落盘。
func (f *FileStore) Upsert(_ context.Context, rec *PeerRecord) error {
	if rec == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "记录不能为空")
	}
	if rec.ID == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "对端 ID 不能为空")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.peers[rec.ID] = clonePeer(rec)
	return f.flush()
}

// Delete 移除记录并立即落盘，返回其是否存在。
func (f *FileStore) Delete(_ context.Context, id string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.peers[id]; !ok {
		return false, nil
	}
	delete(f.peers, id)
	if err := f.flush(); err != nil {
		return true, err
	}
	return true, nil
}

// Close 对文件存储无需操作，快照在每次变更后已经落盘。
func (f *FileStore) Close() error {
	return nil
}

var _ Store = (*FileStore)(nil)
