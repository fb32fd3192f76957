// Package locator 通过 WebSocket 订阅外部位置源
package locator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/ingest"
)

// Position 位置源推送的消息，与浏览器 Geolocation API 的 Position 相同
// 消息为 null 表示当前没有定位
type Position struct {
	Timestamp int64  `json:"timestamp"` // 毫秒
	Coords    Coords `json:"coords"`
	Error     string `json:"error,omitempty"`
}

// Coords 坐标
type Coords struct {
	Latitude         float64  `json:"latitude"`
	Longitude        float64  `json:"longitude"`
	Altitude         *float64 `json:"altitude"`
	AltitudeAccuracy *float64 `json:"altitudeAccuracy"`
	Speed            *float64 `json:"speed"`
	Heading          *float64 `json:"heading"`
}

// Fix 转换为定位结果
func (p Position) Fix() ingest.Fix {
	return ingest.Fix{
		Timestamp:        time.UnixMilli(p.Timestamp).UTC(),
		Latitude:         p.Coords.Latitude,
		Longitude:        p.Coords.Longitude,
		Altitude:         p.Coords.Altitude,
		AltitudeAccuracy: p.Coords.AltitudeAccuracy,
		Speed:            p.Coords.Speed,
		Heading:          p.Coords.Heading,
	}
}

var nullMessage = []byte("null")

// Client WebSocket 位置源客户端，实现 ingest.Provider
type Client struct {
	logger      *zap.Logger
	url         string
	readTimeout time.Duration

	mu         sync.RWMutex
	permission ingest.PermissionState
}

// NewClient 创建客户端，permission 为初始权限状态
func NewClient(url string, permission ingest.PermissionState, logger *zap.Logger) *Client {
	return &Client{
		logger:      logger,
		url:         url,
		readTimeout: 2 * time.Minute,
		permission:  permission,
	}
}

// SetReadTimeout 设置读取超时 (用于测试)
func (c *Client) SetReadTimeout(d time.Duration) {
	c.readTimeout = d
}

// CheckPermissions 当前权限状态
func (c *Client) CheckPermissions(context.Context) (ingest.PermissionState, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.permission, nil
}

// RequestPermissions 请求权限，已拒绝的权限保持拒绝
func (c *Client) RequestPermissions(context.Context) (ingest.PermissionState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.permission.NeedsRequest() {
		c.permission = ingest.PermissionGranted
		c.logger.Info("Location permission granted", zap.String("url", c.url))
	}
	return c.permission, nil
}

// Watch 连接位置源并开始读取
// 连接断开或 ctx 取消时关闭返回的 channel
func (c *Client) Watch(ctx context.Context) (<-chan ingest.Event, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}

	conn, _, err := dialer.DialContext(ctx, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial location feed: %w", err)
	}

	c.logger.Info("Location feed connected", zap.String("url", c.url))

	events := make(chan ingest.Event)
	done := make(chan struct{})

	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	go c.readLoop(ctx, conn, events, done)

	return events, nil
}

// readLoop 消息读取循环
func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn, events chan<- ingest.Event, done chan struct{}) {
	defer func() {
		close(done)
		conn.Close()
		close(events)
	}()

	for {
		if c.readTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.readTimeout))
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			switch {
			case ctx.Err() != nil:
			case websocket.IsCloseError(err, websocket.CloseNormalClosure):
				c.logger.Debug("Location feed closed normally")
			default:
				c.logger.Warn("Location feed read error", zap.Error(err))
			}
			return
		}

		ev, ok := c.decode(message)
		if !ok {
			continue
		}

		select {
		case events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// decode 解析消息，无法解析的消息丢弃
func (c *Client) decode(message []byte) (ingest.Event, bool) {
	trimmed := bytes.TrimSpace(message)
	if bytes.Equal(trimmed, nullMessage) {
		return ingest.Event{}, true
	}

	var pos Position
	if err := json.Unmarshal(trimmed, &pos); err != nil {
		c.logger.Warn("Failed to parse location message",
			zap.String("message", string(message)),
			zap.Error(err))
		return ingest.Event{}, false
	}
	if pos.Error != "" {
		return ingest.Event{Err: errors.New(pos.Error)}, true
	}

	fix := pos.Fix()
	return ingest.Event{Fix: &fix}, true
}
