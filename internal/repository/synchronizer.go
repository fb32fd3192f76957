package repository

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/models"
	"github.com/langchou/overmove/internal/store"
)

// Source 需要持久化的内存列表
type Source interface {
	Travels() []models.Travel
	Moves() []models.Move
	Geolocations() []models.Geolocation
}

// Replicator 每次写盘后接收完整文档的副本 (例如 PostgreSQL 镜像)
// full 为 true 时列表已被整体替换，副本需要从头同步
type Replicator interface {
	Replicate(ctx context.Context, doc models.Document, full bool) error
}

// Synchronizer 把内存中的三个列表同步到磁盘日志
// 变更通知只标记脏列表，由单个 worker 合并写入
type Synchronizer struct {
	source       Source
	travels      *ListLog[models.Travel]
	moves        *ListLog[models.Move]
	geolocations *ListLog[models.Geolocation]
	replicator   Replicator
	logger       *zap.Logger

	mu      sync.Mutex
	dirty   map[store.Kind]bool
	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup

	signal chan struct{}
	// 串行化写盘 (worker 与 Flush/Overwrite)
	ioMu sync.Mutex
}

// NewSynchronizer 创建同步器，日志文件位于 dir
func NewSynchronizer(dir string, source Source, logger *zap.Logger) *Synchronizer {
	return &Synchronizer{
		source:       source,
		travels:      NewListLog[models.Travel](dir, TravelListName, models.SchemaVersion),
		moves:        NewListLog[models.Move](dir, MoveListName, models.SchemaVersion),
		geolocations: NewListLog[models.Geolocation](dir, GeolocationListName, models.SchemaVersion),
		logger:       logger,
		dirty:        make(map[store.Kind]bool),
		signal:       make(chan struct{}, 1),
	}
}

// SetReplicator 设置写盘后的副本
func (s *Synchronizer) SetReplicator(r Replicator) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()
	s.replicator = r
}

// Load 读取三个日志，缺失的文件创建为空数组
// 解析失败直接返回错误，不会把文件重置为空
func (s *Synchronizer) Load() (models.Document, error) {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	for _, ensure := range []func() error{
		s.travels.EnsureExists,
		s.moves.EnsureExists,
		s.geolocations.EnsureExists,
	} {
		if err := ensure(); err != nil {
			return models.Document{}, err
		}
	}

	travels, err := s.travels.Read()
	if err != nil {
		return models.Document{}, fmt.Errorf("load travels: %w", err)
	}
	moves, err := s.moves.Read()
	if err != nil {
		return models.Document{}, fmt.Errorf("load moves: %w", err)
	}
	geolocations, err := s.geolocations.Read()
	if err != nil {
		return models.Document{}, fmt.Errorf("load geolocations: %w", err)
	}

	s.logger.Info("Loaded list logs",
		zap.Int("travels", len(travels)),
		zap.Int("moves", len(moves)),
		zap.Int("geolocations", len(geolocations)))

	return models.NewDocument(travels, moves, geolocations), nil
}

// ListChanged 实现 store.Observer，只做标记，不阻塞调用方
func (s *Synchronizer) ListChanged(kind store.Kind) {
	s.mu.Lock()
	s.dirty[kind] = true
	s.mu.Unlock()

	select {
	case s.signal <- struct{}{}:
	default:
	}
}

// Start 启动写盘 worker
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.stopCh = make(chan struct{})
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.loop(ctx)
}

// Stop 停止 worker 并把剩余的变更写盘
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()

	if err := s.Flush(context.Background()); err != nil {
		s.logger.Error("Final flush failed", zap.Error(err))
	}
}

func (s *Synchronizer) loop(ctx context.Context) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-s.signal:
			if err := s.Flush(ctx); err != nil {
				s.logger.Error("Failed to sync list logs", zap.Error(err))
			}
		}
	}
}

// Flush 同步写入所有脏列表
func (s *Synchronizer) Flush(ctx context.Context) error {
	s.mu.Lock()
	pending := s.dirty
	s.dirty = make(map[store.Kind]bool)
	s.mu.Unlock()

	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	var errs []error
	wrote := false
	for _, kind := range store.Kinds {
		if !pending[kind] {
			continue
		}
		written, err := s.syncKind(kind)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		wrote = wrote || written
	}

	if wrote {
		if err := s.replicate(ctx, s.snapshot(), false); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *Synchronizer) syncKind(kind store.Kind) (bool, error) {
	var (
		written bool
		err     error
		size    int
	)
	switch kind {
	case store.KindTravel:
		items := s.source.Travels()
		size = len(items)
		written, err = s.travels.WriteIfGrown(items)
	case store.KindMove:
		items := s.source.Moves()
		size = len(items)
		written, err = s.moves.WriteIfGrown(items)
	case store.KindGeolocation:
		items := s.source.Geolocations()
		size = len(items)
		written, err = s.geolocations.WriteIfGrown(items)
	default:
		return false, fmt.Errorf("unknown list kind %q", kind)
	}
	if err != nil {
		return false, fmt.Errorf("sync %s list: %w", kind, err)
	}

	if written {
		s.logger.Debug("List log written", zap.String("kind", string(kind)), zap.Int("count", size))
	} else {
		s.logger.Debug("List log up to date, skipping write", zap.String("kind", string(kind)))
	}
	return written, nil
}

// Overwrite 用内存中的当前列表无条件覆盖三个日志 (导入时使用)
// 脏标记保持不变，覆盖之后的变更仍由 worker 写入
func (s *Synchronizer) Overwrite(ctx context.Context) error {
	s.ioMu.Lock()
	defer s.ioMu.Unlock()

	doc := s.snapshot()
	if err := s.travels.Overwrite(doc.Travel); err != nil {
		return fmt.Errorf("overwrite travels: %w", err)
	}
	if err := s.moves.Overwrite(doc.Move); err != nil {
		return fmt.Errorf("overwrite moves: %w", err)
	}
	if err := s.geolocations.Overwrite(doc.Geolocation); err != nil {
		return fmt.Errorf("overwrite geolocations: %w", err)
	}

	s.logger.Info("List logs overwritten",
		zap.Int("travels", len(doc.Travel)),
		zap.Int("moves", len(doc.Move)),
		zap.Int("geolocations", len(doc.Geolocation)))

	return s.replicate(ctx, doc, true)
}

func (s *Synchronizer) snapshot() models.Document {
	return models.NewDocument(s.source.Travels(), s.source.Moves(), s.source.Geolocations())
}

func (s *Synchronizer) replicate(ctx context.Context, doc models.Document, full bool) error {
	if s.replicator == nil {
		return nil
	}
	if err := s.replicator.Replicate(ctx, doc, full); err != nil {
		return fmt.Errorf("replicate: %w", err)
	}
	return nil
}
