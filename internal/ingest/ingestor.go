package ingest

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/models"
)

// ErrPermissionDenied 没有获得位置权限
var ErrPermissionDenied = errors.New("location permission denied")

// ErrInvalidFix 定位结果无法使用
var ErrInvalidFix = errors.New("invalid fix")

// Recorder 提供当前正在记录的移动
type Recorder interface {
	WithActiveMove(fn func(moveID string, recording bool) error) error
}

// Appender 保存位置记录
type Appender interface {
	AppendGeolocation(geo models.Geolocation) error
}

// Option 选项
type Option func(*Ingestor)

// WithRetry 设置重新订阅的退避区间
func WithRetry(initial, max time.Duration) Option {
	return func(i *Ingestor) {
		if initial > 0 {
			i.retryInitial = initial
		}
		if max >= i.retryInitial {
			i.retryMax = max
		}
	}
}

// Ingestor 订阅位置源，把定位写入当前移动
type Ingestor struct {
	provider Provider
	recorder Recorder
	store    Appender
	logger   *zap.Logger

	retryInitial time.Duration
	retryMax     time.Duration

	mu          sync.RWMutex
	current     *models.Geolocation
	subscribers []chan models.Geolocation
}

// New 创建 Ingestor
func New(provider Provider, recorder Recorder, store Appender, logger *zap.Logger, opts ...Option) *Ingestor {
	i := &Ingestor{
		provider:     provider,
		recorder:     recorder,
		store:        store,
		logger:       logger,
		retryInitial: 1 * time.Second,
		retryMax:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(i)
	}
	return i
}

// Run 检查权限后持续订阅位置源，直到 ctx 取消
// 订阅失败或流结束后按指数退避重新订阅
func (i *Ingestor) Run(ctx context.Context) error {
	if err := i.ensurePermission(ctx); err != nil {
		i.logger.Error("Location permission not granted, ingestion disabled", zap.Error(err))
		return err
	}

	delay := i.retryInitial
	for {
		events, err := i.provider.Watch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			i.logger.Warn("Location watch failed, will retry",
				zap.Duration("delay", delay),
				zap.Error(err))
		} else {
			i.logger.Info("Location watch started")
			if i.consume(ctx, events) > 0 {
				delay = i.retryInitial
			}
			if ctx.Err() != nil {
				i.logger.Info("Location watch stopped")
				return nil
			}
			i.logger.Warn("Location watch ended, will resubscribe", zap.Duration("delay", delay))
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		// 指数退避
		delay *= 2
		if delay > i.retryMax {
			delay = i.retryMax
		}
	}
}

func (i *Ingestor) ensurePermission(ctx context.Context) error {
	state, err := i.provider.CheckPermissions(ctx)
	if err != nil {
		return fmt.Errorf("check permissions: %w", err)
	}

	if state.NeedsRequest() {
		state, err = i.provider.RequestPermissions(ctx)
		if err != nil {
			return fmt.Errorf("request permissions: %w", err)
		}
	}

	if state != PermissionGranted {
		return fmt.Errorf("permission %s: %w", state, ErrPermissionDenied)
	}
	return nil
}

// consume 处理订阅流直到关闭，返回接受的定位数
func (i *Ingestor) consume(ctx context.Context, events <-chan Event) int {
	accepted := 0
	for {
		select {
		case <-ctx.Done():
			return accepted
		case ev, ok := <-events:
			if !ok {
				return accepted
			}
			switch {
			case ev.Err != nil:
				i.logger.Warn("Location provider error", zap.Error(ev.Err))
			case ev.Fix == nil:
				i.logger.Debug("Location provider reported no fix")
			default:
				if _, err := i.Ingest(*ev.Fix); err != nil {
					i.logger.Warn("Dropping fix", zap.Error(err))
					continue
				}
				accepted++
			}
		}
	}
}

// Ingest 处理一次定位：记录中则写入当前移动，总是更新当前位置
func (i *Ingestor) Ingest(fix Fix) (models.Geolocation, error) {
	geo, err := Canonicalize(fix)
	if err != nil {
		return models.Geolocation{}, err
	}

	err = i.recorder.WithActiveMove(func(moveID string, recording bool) error {
		if !recording {
			geo.MoveID = models.UnassignedMoveID
			return nil
		}
		geo.MoveID = moveID
		return i.store.AppendGeolocation(geo)
	})
	if err != nil {
		return models.Geolocation{}, fmt.Errorf("append geolocation: %w", err)
	}

	i.publish(geo)
	return geo, nil
}

// Canonicalize 校验定位并清理可选字段
// NaN、负速度、超出 [0,360] 的航向置为 nil
func Canonicalize(fix Fix) (models.Geolocation, error) {
	if fix.Timestamp.IsZero() {
		return models.Geolocation{}, fmt.Errorf("missing timestamp: %w", ErrInvalidFix)
	}
	if !finite(fix.Latitude) || fix.Latitude < -90 || fix.Latitude > 90 {
		return models.Geolocation{}, fmt.Errorf("latitude %v: %w", fix.Latitude, ErrInvalidFix)
	}
	if !finite(fix.Longitude) || fix.Longitude < -180 || fix.Longitude > 180 {
		return models.Geolocation{}, fmt.Errorf("longitude %v: %w", fix.Longitude, ErrInvalidFix)
	}

	geo := models.Geolocation{
		MoveID:           models.UnassignedMoveID,
		Timestamp:        fix.Timestamp,
		Latitude:         fix.Latitude,
		Longitude:        fix.Longitude,
		Altitude:         finiteOrNil(fix.Altitude),
		AltitudeAccuracy: finiteOrNil(fix.AltitudeAccuracy),
		Speed:            finiteOrNil(fix.Speed),
		Heading:          finiteOrNil(fix.Heading),
	}
	if geo.Speed != nil && *geo.Speed < 0 {
		geo.Speed = nil
	}
	if geo.Heading != nil && (*geo.Heading < 0 || *geo.Heading > 360) {
		geo.Heading = nil
	}
	return geo, nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func finiteOrNil(v *float64) *float64 {
	if v == nil || !finite(*v) {
		return nil
	}
	out := *v
	return &out
}

// Current 最近一次定位
func (i *Ingestor) Current() (models.Geolocation, bool) {
	i.mu.RLock()
	defer i.mu.RUnlock()
	if i.current == nil {
		return models.Geolocation{}, false
	}
	return *i.current, true
}

// Subscribe 订阅定位更新
func (i *Ingestor) Subscribe() <-chan models.Geolocation {
	i.mu.Lock()
	defer i.mu.Unlock()

	ch := make(chan models.Geolocation, 10)
	i.subscribers = append(i.subscribers, ch)
	return ch
}

// Unsubscribe 取消订阅
func (i *Ingestor) Unsubscribe(ch <-chan models.Geolocation) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for idx, sub := range i.subscribers {
		if sub == ch {
			i.subscribers = append(i.subscribers[:idx], i.subscribers[idx+1:]...)
			close(sub)
			return
		}
	}
}

func (i *Ingestor) publish(geo models.Geolocation) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.current = &geo
	for _, ch := range i.subscribers {
		select {
		case ch <- geo:
		default:
			// 订阅者处理不过来时丢弃
		}
	}
}
