package repository

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/models"
)

// Mirror PostgreSQL 只读副本
// 只插入上次同步之后新增的记录；导入替换列表后清空重建
type Mirror struct {
	q      Querier
	logger *zap.Logger

	mu           sync.Mutex
	travels      int
	moves        int
	geolocations int
	resync       bool
}

// NewMirror 创建镜像
func NewMirror(q Querier, logger *zap.Logger) *Mirror {
	return &Mirror{q: q, logger: logger}
}

// Migrate 创建镜像表
func (m *Mirror) Migrate(ctx context.Context) error {
	return migrate(ctx, m.q)
}

// Replicate 实现 Replicator
func (m *Mirror) Replicate(ctx context.Context, doc models.Document, full bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	// 清空失败时保留标记，下次同步重试
	if full {
		m.resync = true
	}
	if m.resync {
		if _, err := m.q.Exec(ctx, `TRUNCATE geolocations, moves, travels`); err != nil {
			return fmt.Errorf("truncate mirror: %w", err)
		}
		m.travels, m.moves, m.geolocations = 0, 0, 0
		m.resync = false
		m.logger.Info("Mirror cleared for full resync")
	}

	for i := m.travels; i < len(doc.Travel); i++ {
		if err := m.insertTravel(ctx, doc.Travel[i]); err != nil {
			return err
		}
		m.travels = i + 1
	}
	for i := m.moves; i < len(doc.Move); i++ {
		if err := m.insertMove(ctx, doc.Move[i]); err != nil {
			return err
		}
		m.moves = i + 1
	}
	for i := m.geolocations; i < len(doc.Geolocation); i++ {
		if err := m.insertGeolocation(ctx, i, doc.Geolocation[i]); err != nil {
			return err
		}
		m.geolocations = i + 1
	}

	m.logger.Debug("Mirror replicated",
		zap.Int("travels", m.travels),
		zap.Int("moves", m.moves),
		zap.Int("geolocations", m.geolocations))
	return nil
}

func (m *Mirror) insertTravel(ctx context.Context, t models.Travel) error {
	query := `
		INSERT INTO travels (id, name, description)
		VALUES ($1, $2, $3)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := m.q.Exec(ctx, query, t.ID, t.Name, t.Description); err != nil {
		return fmt.Errorf("insert travel %s: %w", t.ID, err)
	}
	return nil
}

func (m *Mirror) insertMove(ctx context.Context, mv models.Move) error {
	query := `
		INSERT INTO moves (id, travel_id)
		VALUES ($1, $2)
		ON CONFLICT (id) DO NOTHING
	`
	if _, err := m.q.Exec(ctx, query, mv.ID, mv.TravelID); err != nil {
		return fmt.Errorf("insert move %s: %w", mv.ID, err)
	}
	return nil
}

// insertGeolocation seq 为样本在日志中的下标
func (m *Mirror) insertGeolocation(ctx context.Context, seq int, g models.Geolocation) error {
	query := `
		INSERT INTO geolocations (seq, move_id, recorded_at, latitude, longitude, altitude, altitude_accuracy, speed, heading)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (seq) DO NOTHING
	`
	_, err := m.q.Exec(ctx, query,
		int64(seq),
		g.MoveID,
		g.Timestamp,
		g.Latitude,
		g.Longitude,
		g.Altitude,
		g.AltitudeAccuracy,
		g.Speed,
		g.Heading,
	)
	if err != nil {
		return fmt.Errorf("insert geolocation %d: %w", seq, err)
	}
	return nil
}

// GeolocationCount 镜像中的样本总数
func (m *Mirror) GeolocationCount(ctx context.Context) (int64, error) {
	var count int64
	if err := m.q.QueryRow(ctx, `SELECT COUNT(*) FROM geolocations`).Scan(&count); err != nil {
		return 0, fmt.Errorf("count geolocations: %w", err)
	}
	return count, nil
}
