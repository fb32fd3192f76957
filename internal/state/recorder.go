package state

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/looplab/fsm"
	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/models"
)

// 记录器状态常量
const (
	StateIdle      = "idle"
	StateRecording = "recording"
)

// 事件常量
const (
	EventStartRecording = "start_recording"
	EventStopRecording  = "stop_recording"
)

// ErrTravelNotFound 选择了不存在的旅行
var ErrTravelNotFound = errors.New("travel not found")

// MoveStore 记录器依赖的存储操作
type MoveStore interface {
	HasTravel(id string) bool
	CreateMove(move models.Move) error
}

// Status 记录器状态快照
type Status struct {
	State     string    `json:"state"`
	Recording bool      `json:"recording"`
	TravelID  string    `json:"travel_id,omitempty"`
	MoveID    string    `json:"move_id,omitempty"`
	Since     time.Time `json:"since"`
}

// Option 记录器选项
type Option func(*Recorder)

// WithIDGenerator 自定义移动 ID 生成
func WithIDGenerator(newID func() string) Option {
	return func(r *Recorder) { r.newID = newID }
}

// WithClock 自定义时钟
func WithClock(now func() time.Time) Option {
	return func(r *Recorder) { r.now = now }
}

// WithOnChange 状态变化回调，在锁外调用
func WithOnChange(fn func(Status)) Option {
	return func(r *Recorder) { r.onChange = fn }
}

// Recorder 移动记录状态机 (idle <-> recording)
// 持有当前选择的旅行与正在记录的移动
type Recorder struct {
	mu       sync.Mutex
	fsm      *fsm.FSM
	store    MoveStore
	logger   *zap.Logger
	newID    func() string
	now      func() time.Time
	onChange func(Status)

	travelID string
	moveID   string
	since    time.Time
}

// NewRecorder 创建记录器，初始为 idle
func NewRecorder(store MoveStore, logger *zap.Logger, opts ...Option) *Recorder {
	r := &Recorder{
		store:  store,
		logger: logger,
		newID:  uuid.NewString,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.since = r.now()

	r.fsm = fsm.NewFSM(
		StateIdle,
		fsm.Events{
			{Name: EventStartRecording, Src: []string{StateIdle}, Dst: StateRecording},
			{Name: EventStopRecording, Src: []string{StateRecording}, Dst: StateIdle},
		},
		fsm.Callbacks{
			"after_event": func(_ context.Context, e *fsm.Event) {
				r.since = r.now()
				r.logger.Info("Recorder state changed",
					zap.String("from", e.Src),
					zap.String("to", e.Dst),
					zap.String("travel_id", r.travelID))
			},
		},
	)

	return r
}

// SelectTravel 切换当前旅行，"" 表示不选择
// 正在记录时先强制停止，保证一个移动不会跨越两个旅行
func (r *Recorder) SelectTravel(travelID string) error {
	r.mu.Lock()
	if travelID != "" && !r.store.HasTravel(travelID) {
		r.mu.Unlock()
		return fmt.Errorf("select travel %s: %w", travelID, ErrTravelNotFound)
	}
	if travelID == r.travelID {
		r.mu.Unlock()
		return nil
	}

	if r.fsm.Current() == StateRecording {
		if err := r.stopLocked(); err != nil {
			r.mu.Unlock()
			return err
		}
	}
	r.travelID = travelID
	status := r.statusLocked()
	r.mu.Unlock()

	r.logger.Info("Travel selected", zap.String("travel_id", travelID))
	r.emit(status)
	return nil
}

// SetRecording 开始或停止记录
// 没有选择旅行时开始记录、idle 时停止记录都是 no-op，返回 false
func (r *Recorder) SetRecording(on bool) (bool, error) {
	r.mu.Lock()

	var err error
	changed := false
	if on {
		changed, err = r.startLocked()
	} else if r.fsm.Current() == StateRecording {
		err = r.stopLocked()
		changed = err == nil
	}
	status := r.statusLocked()
	r.mu.Unlock()

	if changed {
		r.emit(status)
	}
	return changed, err
}

func (r *Recorder) startLocked() (bool, error) {
	if r.travelID == "" {
		r.logger.Debug("Ignoring start recording without a selected travel")
		return false, nil
	}
	if !r.fsm.Can(EventStartRecording) {
		return false, nil
	}

	move := models.Move{ID: r.newID(), TravelID: r.travelID}
	if err := r.store.CreateMove(move); err != nil {
		return false, fmt.Errorf("create move: %w", err)
	}
	r.moveID = move.ID

	if err := r.fsm.Event(context.Background(), EventStartRecording); err != nil {
		return false, fmt.Errorf("trigger event %s: %w", EventStartRecording, err)
	}

	r.logger.Info("Started move",
		zap.String("move_id", move.ID),
		zap.String("travel_id", move.TravelID))
	return true, nil
}

func (r *Recorder) stopLocked() error {
	moveID := r.moveID
	if err := r.fsm.Event(context.Background(), EventStopRecording); err != nil {
		return fmt.Errorf("trigger event %s: %w", EventStopRecording, err)
	}
	r.moveID = ""

	r.logger.Info("Stopped move", zap.String("move_id", moveID))
	return nil
}

// WithActiveMove 在记录器锁内执行 fn
// 保证位置记录不会被归属到已经停止的移动
func (r *Recorder) WithActiveMove(fn func(moveID string, recording bool) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.moveID, r.fsm.Current() == StateRecording)
}

// ActiveMoveID 正在记录的移动
func (r *Recorder) ActiveMoveID() (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.fsm.Current() != StateRecording {
		return "", false
	}
	return r.moveID, true
}

// IsRecording 是否正在记录
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fsm.Current() == StateRecording
}

// Status 获取状态快照
func (r *Recorder) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.statusLocked()
}

func (r *Recorder) statusLocked() Status {
	current := r.fsm.Current()
	return Status{
		State:     current,
		Recording: current == StateRecording,
		TravelID:  r.travelID,
		MoveID:    r.moveID,
		Since:     r.since,
	}
}

func (r *Recorder) emit(status Status) {
	if r.onChange != nil {
		r.onChange(status)
	}
}
