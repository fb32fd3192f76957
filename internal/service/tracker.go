package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb/geojson"
	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/ingest"
	"github.com/langchou/overmove/internal/migrate"
	"github.com/langchou/overmove/internal/models"
	"github.com/langchou/overmove/internal/repository"
	"github.com/langchou/overmove/internal/state"
	"github.com/langchou/overmove/internal/stats"
	"github.com/langchou/overmove/internal/store"
	"github.com/langchou/overmove/pkg/ws"
)

// 错误定义
var (
	ErrTravelNotFound     = store.ErrTravelNotFound
	ErrMoveNotFound       = store.ErrMoveNotFound
	ErrInvalidTravel      = store.ErrInvalidTravel
	ErrPermissionDenied   = ingest.ErrPermissionDenied
	ErrUnsupportedVersion = migrate.ErrUnsupportedVersion
	ErrMalformedDocument  = migrate.ErrMalformedDocument
	ErrRecordingActive    = errors.New("not allowed while recording")
)

// Option 服务选项
type Option func(*TrackerService)

// WithIDGenerator 自定义旅行与移动的 ID 生成
func WithIDGenerator(newID func() string) Option {
	return func(s *TrackerService) { s.newID = newID }
}

// WithHub 设置 WebSocket Hub
func WithHub(hub *ws.Hub) Option {
	return func(s *TrackerService) { s.wsHub = hub }
}

// WithProvider 设置位置源及重新订阅的退避区间
func WithProvider(provider ingest.Provider, retryInitial, retryMax time.Duration) Option {
	return func(s *TrackerService) {
		s.provider = provider
		s.retryInitial = retryInitial
		s.retryMax = retryMax
	}
}

// TrackerService 旅行记录服务
type TrackerService struct {
	logger   *zap.Logger
	store    *store.Store
	sync     *repository.Synchronizer
	recorder *state.Recorder
	ingestor *ingest.Ingestor
	wsHub    *ws.Hub
	newID    func() string

	provider     ingest.Provider
	retryInitial time.Duration
	retryMax     time.Duration

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewTrackerService 创建服务
func NewTrackerService(logger *zap.Logger, st *store.Store, syncer *repository.Synchronizer, opts ...Option) *TrackerService {
	svc := &TrackerService{
		logger: logger,
		store:  st,
		sync:   syncer,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(svc)
	}

	svc.recorder = state.NewRecorder(st, logger,
		state.WithIDGenerator(svc.newID),
		state.WithOnChange(svc.onRecorderChange))
	svc.ingestor = ingest.New(svc.provider, svc.recorder, st, logger,
		ingest.WithRetry(svc.retryInitial, svc.retryMax))

	st.Subscribe(syncer)

	if svc.wsHub != nil {
		svc.wsHub.SetInitDataProvider(svc.initData)
	}

	return svc
}

// Load 从列表日志恢复数据
func (s *TrackerService) Load() error {
	doc, err := s.sync.Load()
	if err != nil {
		return err
	}
	s.store.Load(doc.Travel, doc.Move, doc.Geolocation)
	return nil
}

// Start 启动写盘 worker 与位置订阅
func (s *TrackerService) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		s.logger.Info("Tracker service already running, skipping start")
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.running = true
	s.mu.Unlock()

	s.logger.Info("Starting tracker service")

	s.sync.Start(ctx)

	if s.wsHub != nil {
		updates := s.ingestor.Subscribe()
		s.wg.Add(1)
		go s.forwardPositions(ctx, updates)
	}

	if s.provider != nil {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			if err := s.ingestor.Run(ctx); err != nil {
				s.logger.Error("Location ingestion stopped", zap.Error(err))
				if s.wsHub != nil {
					s.wsHub.BroadcastError(err.Error())
				}
			}
		}()
	} else {
		s.logger.Info("No location provider configured, accepting pushed positions only")
	}
}

// Stop 停止服务并把未写入的变更写盘
func (s *TrackerService) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	cancel := s.cancel
	s.mu.Unlock()

	s.logger.Info("Stopping tracker service")

	cancel()
	s.wg.Wait()
	s.sync.Stop()

	s.logger.Info("Tracker service stopped")
}

// Flush 同步写盘
func (s *TrackerService) Flush(ctx context.Context) error {
	return s.sync.Flush(ctx)
}

func (s *TrackerService) forwardPositions(ctx context.Context, updates <-chan models.Geolocation) {
	defer s.wg.Done()
	defer s.ingestor.Unsubscribe(updates)

	for {
		select {
		case <-ctx.Done():
			return
		case geo, ok := <-updates:
			if !ok {
				return
			}
			s.wsHub.BroadcastPosition(geo)
		}
	}
}

func (s *TrackerService) onRecorderChange(status state.Status) {
	if s.wsHub != nil {
		s.wsHub.BroadcastRecorder(status)
	}
}

func (s *TrackerService) initData() *ws.InitData {
	data := &ws.InitData{
		Recorder: s.recorder.Status(),
		Travels:  s.store.Travels(),
	}
	if pos, ok := s.ingestor.Current(); ok {
		data.Position = pos
	}
	return data
}

// CreateTravel 创建旅行
func (s *TrackerService) CreateTravel(name, description string) (models.Travel, error) {
	travel := models.Travel{
		ID:          s.newID(),
		Name:        strings.TrimSpace(name),
		Description: description,
	}
	if err := s.store.CreateTravel(travel); err != nil {
		return models.Travel{}, err
	}

	s.logger.Info("Travel created", zap.String("travel_id", travel.ID), zap.String("name", travel.Name))
	return travel, nil
}

// ListTravels 全部旅行
func (s *TrackerService) ListTravels() []models.Travel {
	return s.store.Travels()
}

// GetTravel 获取旅行
func (s *TrackerService) GetTravel(id string) (models.Travel, error) {
	travel, ok := s.store.Travel(id)
	if !ok {
		return models.Travel{}, fmt.Errorf("travel %s: %w", id, ErrTravelNotFound)
	}
	return travel, nil
}

// ListMoves 旅行下的移动
func (s *TrackerService) ListMoves(travelID string) ([]models.Move, error) {
	if !s.store.HasTravel(travelID) {
		return nil, fmt.Errorf("travel %s: %w", travelID, ErrTravelNotFound)
	}
	return s.store.MovesByTravel(travelID), nil
}

// MoveGeolocations 移动的位置记录
func (s *TrackerService) MoveGeolocations(moveID string) ([]models.Geolocation, error) {
	if _, ok := s.store.Move(moveID); !ok {
		return nil, fmt.Errorf("move %s: %w", moveID, ErrMoveNotFound)
	}
	return s.store.GeolocationsByMove(moveID), nil
}

// SelectTravel 选择当前旅行，"" 取消选择
func (s *TrackerService) SelectTravel(travelID string) (state.Status, error) {
	if err := s.recorder.SelectTravel(travelID); err != nil {
		if errors.Is(err, state.ErrTravelNotFound) {
			return s.recorder.Status(), fmt.Errorf("travel %s: %w", travelID, ErrTravelNotFound)
		}
		return s.recorder.Status(), err
	}
	return s.recorder.Status(), nil
}

// SetRecording 开始或停止记录，返回状态是否变化
func (s *TrackerService) SetRecording(on bool) (state.Status, bool, error) {
	changed, err := s.recorder.SetRecording(on)
	return s.recorder.Status(), changed, err
}

// Status 记录器状态
func (s *TrackerService) Status() state.Status {
	return s.recorder.Status()
}

// CurrentPosition 最近一次定位
func (s *TrackerService) CurrentPosition() (models.Geolocation, bool) {
	return s.ingestor.Current()
}

// PushPosition 接收外部推送的定位
func (s *TrackerService) PushPosition(fix ingest.Fix) (models.Geolocation, error) {
	return s.ingestor.Ingest(fix)
}

// TravelStatistics 旅行统计
func (s *TrackerService) TravelStatistics(travelID string) (stats.TravelStatistics, error) {
	travel, err := s.GetTravel(travelID)
	if err != nil {
		return stats.TravelStatistics{}, err
	}
	moves := s.store.MovesByTravel(travelID)
	return stats.ComputeTravel(travel, moves, s.travelGeolocations(moves)), nil
}

// MoveStatistics 移动统计
func (s *TrackerService) MoveStatistics(moveID string) (stats.MoveStatistics, error) {
	move, ok := s.store.Move(moveID)
	if !ok {
		return stats.MoveStatistics{}, fmt.Errorf("move %s: %w", moveID, ErrMoveNotFound)
	}
	return stats.ComputeMove(move, s.store.GeolocationsByMove(moveID)), nil
}

// TravelGeoJSON 旅行轨迹
func (s *TrackerService) TravelGeoJSON(travelID string) (*geojson.FeatureCollection, error) {
	travel, err := s.GetTravel(travelID)
	if err != nil {
		return nil, err
	}
	moves := s.store.MovesByTravel(travelID)
	return stats.TravelFeatureCollection(travel, moves, s.travelGeolocations(moves)), nil
}

func (s *TrackerService) travelGeolocations(moves []models.Move) []models.Geolocation {
	var geos []models.Geolocation
	for _, m := range moves {
		geos = append(geos, s.store.GeolocationsByMove(m.ID)...)
	}
	return geos
}

// Export 以缩进 JSON 导出全部数据，记录中不允许导出
func (s *TrackerService) Export(w io.Writer) error {
	var doc models.Document
	err := s.recorder.WithActiveMove(func(_ string, recording bool) error {
		if recording {
			return ErrRecordingActive
		}
		doc = s.store.Snapshot()
		return nil
	})
	if err != nil {
		return fmt.Errorf("export: %w", err)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode export: %w", err)
	}

	s.logger.Info("Exported data",
		zap.Int("travels", len(doc.Travel)),
		zap.Int("moves", len(doc.Move)),
		zap.Int("geolocations", len(doc.Geolocation)))
	return nil
}

// Import 导入文档 (旧版本先迁移)，替换全部数据并覆盖列表日志
func (s *TrackerService) Import(ctx context.Context, data []byte) (migrate.Report, error) {
	doc, report, err := migrate.Decode(data)
	if err != nil {
		return migrate.Report{}, fmt.Errorf("import: %w", err)
	}

	err = s.recorder.WithActiveMove(func(_ string, recording bool) error {
		if recording {
			return ErrRecordingActive
		}
		s.store.Replace(doc)
		return nil
	})
	if err != nil {
		return migrate.Report{}, fmt.Errorf("import: %w", err)
	}

	if err := s.sync.Overwrite(ctx); err != nil {
		return report, fmt.Errorf("import: %w", err)
	}

	// 当前选择的旅行可能已不存在
	if status := s.recorder.Status(); status.TravelID != "" && !s.store.HasTravel(status.TravelID) {
		if err := s.recorder.SelectTravel(""); err != nil {
			s.logger.Warn("Failed to clear selected travel", zap.Error(err))
		}
	}

	if report.Migrated() {
		s.logger.Info("Imported legacy document",
			zap.String("source_version", report.SourceVersion),
			zap.Int("dropped", report.Dropped()))
		for _, m := range report.OrphanMoves {
			s.logger.Warn("Dropped move without owning travel", zap.String("move_id", m.ID))
		}
		for _, g := range report.OrphanGeolocations {
			s.logger.Warn("Dropped geolocation outside every move", zap.Time("timestamp", g.Timestamp))
		}
	}

	s.logger.Info("Imported data",
		zap.Int("travels", len(doc.Travel)),
		zap.Int("moves", len(doc.Move)),
		zap.Int("geolocations", len(doc.Geolocation)))
	return report, nil
}
