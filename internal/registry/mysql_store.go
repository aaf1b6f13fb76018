package registry

import (
	"context"
	"database/sql"
	stdErrors "errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	xerrors "TrustMesh/internal/errors"
)

// MySQLStore 使用 MySQL 记录对端状态，适合多实例共享一份注册表的部署。
// 多进程访问时仍需外部对写入串行化。
type MySQLStore struct {
	db *sql.DB
}

// NewMySQLStore 创建一个新的 MySQLStore。
func NewMySQLStore(dsn string) (*MySQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "MySQL DSN 不能为空")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "连接 MySQL 失败")
	}

	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(10 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "无法连接到 MySQL")
	}

	store := &MySQLStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *MySQLStore) initSchema() error {
	const schema = `CREATE TABLE IF NOT EXISTS peer_records (
        id VARCHAR(64) PRIMARY KEY,
        display_name VARCHAR(255) DEFAULT '',
        geometry_hash VARCHAR(66) DEFAULT '',
        overlap DOUBLE NOT NULL DEFAULT 0,
        status VARCHAR(16) NOT NULL,
        quarantine_reason TEXT,
        registered_at BIGINT NOT NULL,
        last_seen BIGINT NOT NULL,
        INDEX idx_peer_status (status),
        INDEX idx_peer_last_seen (last_seen)
)`

	if _, err := s.db.Exec(schema); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "初始化 peer_records 表失败")
	}
	return nil
}

// Load 返回全部对端记录。
func (s *MySQLStore) Load(ctx context.Context) ([]*PeerRecord, error) {
	const stmt = `SELECT id, display_name, geometry_hash, overlap, status, quarantine_reason, registered_at, last_seen
        FROM peer_records ORDER BY registered_at ASC, id ASC`

	rows, err := s.db.QueryContext(ctx, stmt)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "加载对端记录失败")
	}
	defer rows.Close()

	peers := make([]*PeerRecord, 0, 16)
	for rows.Next() {
		var rec PeerRecord
		var reason sql.NullString
		if err := rows.Scan(
			&rec.ID,
			&rec.DisplayName,
			&rec.GeometryHash,
			&rec.Overlap,
			&rec.Status,
			&reason,
			&rec.RegisteredAt,
			&rec.LastSeen,
		); err != nil {
			return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "解析对端记录失败")
		}
		if reason.Valid {
			rec.QuarantineReason = reason.String
		}
		peers = append(peers, &rec)
	}
	if err := rows.Err(); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "遍历对端记录失败")
	}
	return peers, nil
}

// Upsert 插入或更新对端记录。
func (s *MySQLStore) Upsert(ctx context.Context, rec *PeerRecord) error {
	if rec == nil {
		return xerrors.New(xerrors.CodeInvalidArgument, "记录不能为空")
	}
	if strings.TrimSpace(rec.ID) == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "对端 ID 不能为空")
	}

	const stmt = `INSERT INTO peer_records
        (id, display_name, geometry_hash, overlap, status, quarantine_reason, registered_at, last_seen)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
        ON DUPLICATE KEY UPDATE
        display_name = VALUES(display_name),
        geometry_hash = VALUES(geometry_hash),
        overlap = VALUES(overlap),
        status = VALUES(status),
        quarantine_reason = VALUES(quarantine_reason),
        last_seen = VALUES(last_seen)`

	_, err := s.db.ExecContext(ctx, stmt,
		rec.ID,
		rec.DisplayName,
		rec.GeometryHash,
		rec.Overlap,
		rec.Status,
		rec.QuarantineReason,
		rec.RegisteredAt,
		rec.LastSeen,
	)
	if err != nil {
		var mysqlErr *mysql.MySQLError
		if stdErrors.As(err, &mysqlErr) {
			return xerrors.Wrap(CodePeerStorage, err, "写入对端记录失败",
				xerrors.WithMetadata("mysql_errno", strconv.Itoa(int(mysqlErr.Number))))
		}
		return xerrors.Wrap(CodePeerStorage, err, "写入对端记录失败")
	}
	return nil
}

// Delete 删除对端记录，返回其是否存在。
func (s *MySQLStore) Delete(ctx context.Context, id string) (bool, error) {
	const stmt = `DELETE FROM peer_records WHERE id = ?`

	res, err := s.db.ExecContext(ctx, stmt, id)
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "删除对端记录失败")
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, xerrors.Wrap(xerrors.CodeStorageFailure, err, "获取影响行数失败")
	}
	return affected > 0, nil
}

// Close 关闭底层数据库连接。
func (s *MySQLStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

var _ Store = (*MySQLStore)(nil)
