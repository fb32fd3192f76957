package ingest

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/langchou/overmove/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func ptr(v float64) *float64 { return &v }

// fakeProvider 每次 Watch 返回预先排好的一批事件，之后关闭 channel
type fakeProvider struct {
	mu         sync.Mutex
	check      PermissionState
	request    PermissionState
	requested  int
	batches    [][]Event
	watchErrs  []error
	watchCalls int
}

func (p *fakeProvider) CheckPermissions(context.Context) (PermissionState, error) {
	return p.check, nil
}

func (p *fakeProvider) RequestPermissions(context.Context) (PermissionState, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requested++
	return p.request, nil
}

func (p *fakeProvider) Watch(ctx context.Context) (<-chan Event, error) {
	p.mu.Lock()
	call := p.watchCalls
	p.watchCalls++
	var err error
	if call < len(p.watchErrs) {
		err = p.watchErrs[call]
	}
	if err != nil {
		p.mu.Unlock()
		return nil, err
	}
	var batch []Event
	if len(p.batches) > 0 {
		batch = p.batches[0]
		p.batches = p.batches[1:]
	}
	p.mu.Unlock()

	ch := make(chan Event)
	go func() {
		defer close(ch)
		for _, ev := range batch {
			select {
			case ch <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

func (p *fakeProvider) calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.watchCalls
}

type fakeRecorder struct {
	mu        sync.Mutex
	moveID    string
	recording bool
}

func (r *fakeRecorder) WithActiveMove(fn func(string, bool) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return fn(r.moveID, r.recording)
}

type memAppender struct {
	mu   sync.Mutex
	geos []models.Geolocation
}

func (a *memAppender) AppendGeolocation(geo models.Geolocation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.geos = append(a.geos, geo)
	return nil
}

func (a *memAppender) all() []models.Geolocation {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]models.Geolocation(nil), a.geos...)
}

func fixAt(sec int) *Fix {
	return &Fix{
		Timestamp: time.Date(2024, 5, 1, 10, 0, sec, 0, time.UTC),
		Latitude:  35.0,
		Longitude: 135.0 + float64(sec)/1000,
	}
}

func TestCanonicalize(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		fix     Fix
		wantErr bool
		check   func(t *testing.T, g models.Geolocation)
	}{
		{
			name: "all fields",
			fix:  Fix{Timestamp: ts, Latitude: 35, Longitude: 135, Altitude: ptr(12), AltitudeAccuracy: ptr(3), Speed: ptr(1.2), Heading: ptr(90)},
			check: func(t *testing.T, g models.Geolocation) {
				assert.Equal(t, models.UnassignedMoveID, g.MoveID)
				assert.Equal(t, 12.0, *g.Altitude)
				assert.Equal(t, 3.0, *g.AltitudeAccuracy)
				assert.Equal(t, 1.2, *g.Speed)
				assert.Equal(t, 90.0, *g.Heading)
			},
		},
		{
			name: "NaN optional fields become nil",
			fix:  Fix{Timestamp: ts, Latitude: 35, Longitude: 135, Altitude: ptr(math.NaN()), Speed: ptr(math.NaN()), Heading: ptr(math.NaN())},
			check: func(t *testing.T, g models.Geolocation) {
				assert.Nil(t, g.Altitude)
				assert.Nil(t, g.Speed)
				assert.Nil(t, g.Heading)
			},
		},
		{
			name: "negative speed and out of range heading",
			fix:  Fix{Timestamp: ts, Latitude: 35, Longitude: 135, Speed: ptr(-1), Heading: ptr(361)},
			check: func(t *testing.T, g models.Geolocation) {
				assert.Nil(t, g.Speed)
				assert.Nil(t, g.Heading)
			},
		},
		{
			name: "heading boundaries kept",
			fix:  Fix{Timestamp: ts, Latitude: 35, Longitude: 135, Speed: ptr(0), Heading: ptr(360)},
			check: func(t *testing.T, g models.Geolocation) {
				assert.Equal(t, 0.0, *g.Speed)
				assert.Equal(t, 360.0, *g.Heading)
			},
		},
		{name: "missing timestamp", fix: Fix{Latitude: 35, Longitude: 135}, wantErr: true},
		{name: "NaN latitude", fix: Fix{Timestamp: ts, Latitude: math.NaN(), Longitude: 135}, wantErr: true},
		{name: "latitude out of range", fix: Fix{Timestamp: ts, Latitude: 91, Longitude: 135}, wantErr: true},
		{name: "longitude out of range", fix: Fix{Timestamp: ts, Latitude: 35, Longitude: -181}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, err := Canonicalize(tt.fix)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidFix)
				return
			}
			require.NoError(t, err)
			tt.check(t, g)
		})
	}
}

func TestIngest_TagsByRecordingState(t *testing.T) {
	rec := &fakeRecorder{}
	app := &memAppender{}
	ing := New(&fakeProvider{}, rec, app, zap.NewNop())

	geo, err := ing.Ingest(*fixAt(0))
	require.NoError(t, err)
	assert.Equal(t, models.UnassignedMoveID, geo.MoveID)
	assert.Empty(t, app.all(), "idle samples are not stored")

	cur, ok := ing.Current()
	require.True(t, ok)
	assert.Equal(t, geo, cur)

	rec.moveID, rec.recording = "m1", true
	geo, err = ing.Ingest(*fixAt(1))
	require.NoError(t, err)
	assert.Equal(t, "m1", geo.MoveID)
	require.Len(t, app.all(), 1)
	assert.Equal(t, "m1", app.all()[0].MoveID)
}

func TestIngest_Subscribe(t *testing.T) {
	ing := New(&fakeProvider{}, &fakeRecorder{}, &memAppender{}, zap.NewNop())
	ch := ing.Subscribe()

	_, err := ing.Ingest(*fixAt(0))
	require.NoError(t, err)

	select {
	case geo := <-ch:
		assert.Equal(t, 35.0, geo.Latitude)
	case <-time.After(time.Second):
		t.Fatal("no update published")
	}

	ing.Unsubscribe(ch)
	_, ok := <-ch
	assert.False(t, ok)
}

func TestRun_PermissionDenied(t *testing.T) {
	p := &fakeProvider{check: PermissionPrompt, request: PermissionDenied}
	ing := New(p, &fakeRecorder{}, &memAppender{}, zap.NewNop())

	err := ing.Run(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Equal(t, 1, p.requested)
	assert.Zero(t, p.calls(), "watch must not start without permission")
}

func TestRun_PermissionDeniedWithoutPrompt(t *testing.T) {
	p := &fakeProvider{check: PermissionDenied}
	err := New(p, &fakeRecorder{}, &memAppender{}, zap.NewNop()).Run(context.Background())
	assert.ErrorIs(t, err, ErrPermissionDenied)
	assert.Zero(t, p.requested)
}

func TestRun_IngestsAndSkipsBadEvents(t *testing.T) {
	p := &fakeProvider{
		check:   PermissionPromptWithRationale,
		request: PermissionGranted,
		batches: [][]Event{{
			{Fix: fixAt(0)},
			{},
			{Err: errors.New("signal lost")},
			{Fix: &Fix{Latitude: 200, Longitude: 0, Timestamp: time.Now()}},
			{Fix: fixAt(2)},
		}},
	}
	rec := &fakeRecorder{moveID: "m1", recording: true}
	app := &memAppender{}
	ing := New(p, rec, app, zap.NewNop(), WithRetry(time.Millisecond, 5*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	require.Eventually(t, func() bool { return len(app.all()) == 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	for _, g := range app.all() {
		assert.Equal(t, "m1", g.MoveID)
	}
}

func TestRun_ResubscribesAfterFailure(t *testing.T) {
	p := &fakeProvider{
		check:     PermissionGranted,
		watchErrs: []error{errors.New("unavailable"), errors.New("unavailable")},
		batches:   [][]Event{{{Fix: fixAt(0)}}},
	}
	app := &memAppender{}
	ing := New(p, &fakeRecorder{moveID: "m1", recording: true}, app, zap.NewNop(),
		WithRetry(time.Millisecond, 4*time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ing.Run(ctx) }()

	require.Eventually(t, func() bool { return p.calls() >= 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, <-done)
	assert.Len(t, app.all(), 1)
}

func TestParsePermissionState(t *testing.T) {
	p, ok := ParsePermissionState("prompt-with-rationale")
	assert.True(t, ok)
	assert.True(t, p.NeedsRequest())

	p, ok = ParsePermissionState("granted")
	assert.True(t, ok)
	assert.False(t, p.NeedsRequest())

	_, ok = ParsePermissionState("maybe")
	assert.False(t, ok)
}
