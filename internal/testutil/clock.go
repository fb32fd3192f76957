// Package testutil 测试用的时钟与 ID 生成器
package testutil

import (
	"fmt"
	"sync"
	"time"
)

// StubClock 固定时间的时钟，并发安全
type StubClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewStubClock 创建指定时间的时钟
func NewStubClock(t time.Time) *StubClock {
	return &StubClock{now: t}
}

// FixedClock 2024-05-01 10:00:00 UTC
func FixedClock() *StubClock {
	return NewStubClock(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC))
}

// Now 当前时间
func (c *StubClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 时钟前进 d
func (c *StubClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// StubIDGenerator 按顺序生成 prefix-1, prefix-2 ...
type StubIDGenerator struct {
	mu      sync.Mutex
	prefix  string
	counter int
}

// NewStubIDGenerator 创建 ID 生成器
func NewStubIDGenerator(prefix string) *StubIDGenerator {
	return &StubIDGenerator{prefix: prefix}
}

// New 下一个 ID
func (g *StubIDGenerator) New() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.counter++
	return fmt.Sprintf("%s-%d", g.prefix, g.counter)
}
