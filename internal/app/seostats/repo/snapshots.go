package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"seostats.local/internal/app/seostats/snapshot"
	"seostats.local/internal/mozscape"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 200
)

// SnapshotRow 是 metric_snapshots 的一行
type SnapshotRow struct {
	ID        int64                 `json:"id"`
	Target    string                `json:"target"`
	Cols      uint64                `json:"cols"`
	Metrics   mozscape.MetricRecord `json:"metrics"`
	FetchedAt time.Time             `json:"fetched_at"`
}

type SnapshotsRepo struct {
	db *pgxpool.Pool
}

func NewSnapshotsRepo(db *pgxpool.Pool) *SnapshotsRepo {
	return &SnapshotsRepo{db: db}
}

// InsertSnapshots 一批一次往返。
func (r *SnapshotsRepo) InsertSnapshots(ctx context.Context, batch []snapshot.Snapshot) error {
	if len(batch) == 0 {
		return nil
	}
	b := &pgx.Batch{}
	for _, s := range batch {
		metrics, err := json.Marshal(s.Metrics)
		if err != nil {
			return fmt.Errorf("marshal metrics for %q: %w", s.Target, err)
		}
		b.Queue(`INSERT INTO metric_snapshots (target, cols, metrics, fetched_at) VALUES ($1, $2, $3, $4)`,
			s.Target, int64(s.Cols), metrics, s.FetchedAt)
	}
	if err := r.db.SendBatch(ctx, b).Close(); err != nil {
		return fmt.Errorf("insert snapshots: %w", err)
	}
	return nil
}

// History 按抓取时间倒序。
func (r *SnapshotsRepo) History(ctx context.Context, target string, limit int) ([]SnapshotRow, error) {
	limit = ClampLimit(limit)

	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	rows, err := r.db.Query(dbctx,
		`SELECT id, target, cols, metrics, fetched_at FROM metric_snapshots WHERE target = $1 ORDER BY fetched_at DESC, id DESC LIMIT $2`,
		target, limit)
	if err != nil {
		return nil, fmt.Errorf("query history: %w", err)
	}
	defer rows.Close()

	out := make([]SnapshotRow, 0, limit)
	for rows.Next() {
		var (
			row  SnapshotRow
			cols int64
			raw  []byte
		)
		if err := rows.Scan(&row.ID, &row.Target, &cols, &raw, &row.FetchedAt); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		row.Cols = uint64(cols)
		if err := json.Unmarshal(raw, &row.Metrics); err != nil {
			return nil, fmt.Errorf("decode metrics of snapshot %d: %w", row.ID, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ClampLimit <=0 用默认值，超过上限截断。
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		return MaxHistoryLimit
	default:
		return limit
	}
}
