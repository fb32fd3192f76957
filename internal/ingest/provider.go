// Package ingest 订阅位置源，把定位结果转换为位置记录
package ingest

import (
	"context"
	"time"
)

// PermissionState 位置权限状态
type PermissionState string

// 权限状态常量
const (
	PermissionGranted             PermissionState = "granted"
	PermissionDenied              PermissionState = "denied"
	PermissionPrompt              PermissionState = "prompt"
	PermissionPromptWithRationale PermissionState = "prompt-with-rationale"
)

// ParsePermissionState 解析权限状态，未知值返回 false
func ParsePermissionState(s string) (PermissionState, bool) {
	switch p := PermissionState(s); p {
	case PermissionGranted, PermissionDenied, PermissionPrompt, PermissionPromptWithRationale:
		return p, true
	}
	return "", false
}

// NeedsRequest 是否需要向用户请求权限
func (p PermissionState) NeedsRequest() bool {
	return p == PermissionPrompt || p == PermissionPromptWithRationale
}

// Fix 位置源返回的一次定位
// 可选字段为 nil 表示位置源没有提供
type Fix struct {
	Timestamp        time.Time
	Latitude         float64
	Longitude        float64
	Altitude         *float64
	AltitudeAccuracy *float64
	Speed            *float64
	Heading          *float64
}

// Event 订阅流中的一个元素
// Fix 与 Err 都为 nil 表示位置源报告当前没有定位
type Event struct {
	Fix *Fix
	Err error
}

// Provider 位置源
// Watch 返回的 channel 在流结束时关闭，ctx 取消时也会关闭
type Provider interface {
	CheckPermissions(ctx context.Context) (PermissionState, error)
	RequestPermissions(ctx context.Context) (PermissionState, error)
	Watch(ctx context.Context) (<-chan Event, error)
}
