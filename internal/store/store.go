// Package store 持有旅行、移动、位置三个列表，所有修改都经过这里串行化
package store

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/langchou/overmove/internal/models"
)

// 错误定义
var (
	ErrInvalidTravel  = errors.New("travel name must not be empty")
	ErrDuplicateID    = errors.New("duplicate id")
	ErrTravelNotFound = errors.New("travel not found")
	ErrMoveNotFound   = errors.New("move not found")
)

// Kind 列表类型
type Kind string

const (
	KindTravel      Kind = "travel"
	KindMove        Kind = "move"
	KindGeolocation Kind = "geolocation"
)

// Kinds 全部列表类型
var Kinds = []Kind{KindTravel, KindMove, KindGeolocation}

// Observer 列表变化的观察者
// 回调在锁外同步调用，实现方不应阻塞
type Observer interface {
	ListChanged(kind Kind)
}

// ObserverFunc 函数适配 Observer
type ObserverFunc func(kind Kind)

// ListChanged 实现 Observer
func (f ObserverFunc) ListChanged(kind Kind) { f(kind) }

// Store 进程内唯一的数据存储
type Store struct {
	mu           sync.RWMutex
	travels      []models.Travel
	moves        []models.Move
	geolocations []models.Geolocation

	travelIndex map[string]int
	moveIndex   map[string]int

	obsMu     sync.RWMutex
	observers []Observer
}

// New 创建空存储
func New() *Store {
	return &Store{
		travelIndex: make(map[string]int),
		moveIndex:   make(map[string]int),
	}
}

// Subscribe 注册观察者
func (s *Store) Subscribe(o Observer) {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()
	s.observers = append(s.observers, o)
}

func (s *Store) notify(kinds ...Kind) {
	s.obsMu.RLock()
	observers := append([]Observer(nil), s.observers...)
	s.obsMu.RUnlock()

	for _, kind := range kinds {
		for _, o := range observers {
			o.ListChanged(kind)
		}
	}
}

// Load 用持久化数据初始化存储，不触发通知
func (s *Store) Load(travels []models.Travel, moves []models.Move, geolocations []models.Geolocation) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.replaceLocked(travels, moves, geolocations)
}

// Replace 整体替换三个列表（导入时使用）并通知全部观察者
func (s *Store) Replace(doc models.Document) {
	s.mu.Lock()
	s.replaceLocked(doc.Travel, doc.Move, doc.Geolocation)
	s.mu.Unlock()

	s.notify(Kinds...)
}

func (s *Store) replaceLocked(travels []models.Travel, moves []models.Move, geolocations []models.Geolocation) {
	s.travels = append([]models.Travel(nil), travels...)
	s.moves = append([]models.Move(nil), moves...)
	s.geolocations = append([]models.Geolocation(nil), geolocations...)

	s.travelIndex = make(map[string]int, len(s.travels))
	for i, t := range s.travels {
		s.travelIndex[t.ID] = i
	}
	s.moveIndex = make(map[string]int, len(s.moves))
	for i, m := range s.moves {
		s.moveIndex[m.ID] = i
	}
}

// CreateTravel 追加旅行
func (s *Store) CreateTravel(travel models.Travel) error {
	if strings.TrimSpace(travel.Name) == "" {
		return ErrInvalidTravel
	}

	s.mu.Lock()
	if _, ok := s.travelIndex[travel.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("create travel %s: %w", travel.ID, ErrDuplicateID)
	}
	s.travelIndex[travel.ID] = len(s.travels)
	s.travels = append(s.travels, travel)
	s.mu.Unlock()

	s.notify(KindTravel)
	return nil
}

// CreateMove 追加移动，所属旅行必须存在
func (s *Store) CreateMove(move models.Move) error {
	s.mu.Lock()
	if _, ok := s.travelIndex[move.TravelID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("create move %s: %w", move.ID, ErrTravelNotFound)
	}
	if _, ok := s.moveIndex[move.ID]; ok {
		s.mu.Unlock()
		return fmt.Errorf("create move %s: %w", move.ID, ErrDuplicateID)
	}
	s.moveIndex[move.ID] = len(s.moves)
	s.moves = append(s.moves, move)
	s.mu.Unlock()

	s.notify(KindMove)
	return nil
}

// AppendGeolocation 追加位置记录，所属移动必须存在
func (s *Store) AppendGeolocation(geo models.Geolocation) error {
	s.mu.Lock()
	if _, ok := s.moveIndex[geo.MoveID]; !ok {
		s.mu.Unlock()
		return fmt.Errorf("append geolocation for move %s: %w", geo.MoveID, ErrMoveNotFound)
	}
	s.geolocations = append(s.geolocations, geo)
	s.mu.Unlock()

	s.notify(KindGeolocation)
	return nil
}

// HasTravel 旅行是否存在
func (s *Store) HasTravel(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.travelIndex[id]
	return ok
}

// Travel 获取旅行
func (s *Store) Travel(id string) (models.Travel, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.travelIndex[id]
	if !ok {
		return models.Travel{}, false
	}
	return s.travels[i], true
}

// Move 获取移动
func (s *Store) Move(id string) (models.Move, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	i, ok := s.moveIndex[id]
	if !ok {
		return models.Move{}, false
	}
	return s.moves[i], true
}

// Travels 旅行列表的副本
func (s *Store) Travels() []models.Travel {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Travel{}, s.travels...)
}

// Moves 移动列表的副本
func (s *Store) Moves() []models.Move {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Move{}, s.moves...)
}

// Geolocations 位置列表的副本
func (s *Store) Geolocations() []models.Geolocation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]models.Geolocation{}, s.geolocations...)
}

// MovesByTravel 旅行下的移动
func (s *Store) MovesByTravel(travelID string) []models.Move {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Move{}
	for _, m := range s.moves {
		if m.TravelID == travelID {
			out = append(out, m)
		}
	}
	return out
}

// GeolocationsByMove 移动下的位置记录，保持采样顺序
func (s *Store) GeolocationsByMove(moveID string) []models.Geolocation {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []models.Geolocation{}
	for _, g := range s.geolocations {
		if g.MoveID == moveID {
			out = append(out, g)
		}
	}
	return out
}

// Len 指定列表的长度
func (s *Store) Len(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	switch kind {
	case KindTravel:
		return len(s.travels)
	case KindMove:
		return len(s.moves)
	case KindGeolocation:
		return len(s.geolocations)
	}
	return 0
}

// Snapshot 当前数据的完整文档
func (s *Store) Snapshot() models.Document {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return models.NewDocument(
		append([]models.Travel{}, s.travels...),
		append([]models.Move{}, s.moves...),
		append([]models.Geolocation{}, s.geolocations...),
	)
}
