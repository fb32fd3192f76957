package stats

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/langchou/overmove/internal/models"
)

func ptr(v float64) *float64 { return &v }

// rightAnglePath 以 (lat, lng) 为起点，先向北 2km，再向东 2km
func rightAnglePath(moveID string, start time.Time, lat, lng float64) []models.Geolocation {
	lat2 := lat + metersToLatDeg(2000)
	lng3 := lng + metersToLngDeg(2000, lat2)
	return []models.Geolocation{
		{MoveID: moveID, Timestamp: start, Latitude: lat, Longitude: lng, Speed: ptr(10)},
		{MoveID: moveID, Timestamp: start.Add(200 * time.Second), Latitude: lat2, Longitude: lng, Speed: ptr(12.5), Heading: ptr(0)},
		{MoveID: moveID, Timestamp: start.Add(400 * time.Second), Latitude: lat2, Longitude: lng3, Heading: ptr(90)},
	}
}

func TestComputeMove_RightAnglePath(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	move := models.Move{ID: "m1", TravelID: "t1"}
	geos := rightAnglePath("m1", start, 35.0, 139.0)

	st := ComputeMove(move, geos)

	assert.Equal(t, 3, st.SampleCount)
	assert.InDelta(t, 4000, st.DistanceMeters, 0.01)
	assert.InDelta(t, 4.0, st.DistanceKm(), 0.00001)
	assert.Equal(t, int64(400), st.DurationSeconds)
	require.NotNil(t, st.MaxSpeed)
	assert.Equal(t, 12.5, *st.MaxSpeed)
	require.NotNil(t, st.AverageSpeed)
	assert.InDelta(t, 10.0, *st.AverageSpeed, 0.001)
	require.NotNil(t, st.AverageSpeedKmh())
	assert.InDelta(t, 36.0, *st.AverageSpeedKmh(), 0.01)
	assert.Equal(t, DirectionEast, st.LastHeading)
	require.NotNil(t, st.StartTime)
	assert.True(t, st.StartTime.Equal(start))
	assert.True(t, st.EndTime.Equal(start.Add(400*time.Second)))
}

func TestComputeMove_Empty(t *testing.T) {
	st := ComputeMove(models.Move{ID: "m1", TravelID: "t1"}, nil)

	assert.Equal(t, 0, st.SampleCount)
	assert.Equal(t, 0.0, st.DistanceMeters)
	assert.Equal(t, int64(0), st.DurationSeconds)
	assert.Nil(t, st.MaxSpeed)
	assert.Nil(t, st.AverageSpeed)
	assert.Nil(t, st.AverageSpeedKmh())
	assert.Nil(t, st.StartTime)
}

func TestComputeMove_SingleSample(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	st := ComputeMove(models.Move{ID: "m1"}, []models.Geolocation{
		{MoveID: "m1", Timestamp: ts, Latitude: 35, Longitude: 139, Speed: ptr(0)},
	})

	assert.Equal(t, 0.0, st.DistanceMeters)
	assert.Equal(t, int64(0), st.DurationSeconds)
	assert.Nil(t, st.AverageSpeed)
	// 速度为 0 也是有效值
	require.NotNil(t, st.MaxSpeed)
	assert.Equal(t, 0.0, *st.MaxSpeed)
}

func TestComputeMove_DurationTruncatesToWholeSeconds(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	st := ComputeMove(models.Move{ID: "m1"}, []models.Geolocation{
		{MoveID: "m1", Timestamp: ts, Latitude: 35, Longitude: 139},
		{MoveID: "m1", Timestamp: ts.Add(2999 * time.Millisecond), Latitude: 35, Longitude: 139},
	})
	assert.Equal(t, int64(2), st.DurationSeconds)
}

func TestComputeMove_OutOfOrderTimestampsNeverNegative(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	st := ComputeMove(models.Move{ID: "m1"}, []models.Geolocation{
		{MoveID: "m1", Timestamp: ts.Add(time.Minute), Latitude: 35, Longitude: 139},
		{MoveID: "m1", Timestamp: ts, Latitude: 35.001, Longitude: 139},
	})
	assert.Equal(t, int64(60), st.DurationSeconds)
}

func TestComputeTravel_AdditiveRollup(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	travel := models.Travel{ID: "t1", Name: "Hokkaido"}
	moves := []models.Move{
		{ID: "m1", TravelID: "t1"},
		{ID: "m2", TravelID: "t1"},
		{ID: "m3", TravelID: "t2"},
		{ID: "m4", TravelID: "t1"}, // 没有位置记录
	}

	var geos []models.Geolocation
	geos = append(geos, rightAnglePath("m1", start, 35.0, 139.0)...)
	// m2 只有 100 秒、约 4km
	m2 := rightAnglePath("m2", start.Add(time.Hour), 36.0, 140.0)
	m2[1].Timestamp = start.Add(time.Hour + 50*time.Second)
	m2[2].Timestamp = start.Add(time.Hour + 100*time.Second)
	m2[1].Speed = ptr(40)
	geos = append(geos, m2...)
	geos = append(geos, rightAnglePath("m3", start, 10.0, 10.0)...)
	geos = append(geos, models.Geolocation{MoveID: models.UnassignedMoveID, Timestamp: start, Latitude: 1, Longitude: 1})

	st := ComputeTravel(travel, moves, geos)

	assert.Equal(t, "t1", st.TravelID)
	assert.Equal(t, 3, st.MoveCount)
	assert.Len(t, st.Moves, 3)
	assert.Equal(t, 6, st.SampleCount)
	assert.InDelta(t, 8000, st.DistanceMeters, 0.02)
	assert.Equal(t, int64(500), st.DurationSeconds)
	require.NotNil(t, st.AverageSpeed)
	// 8000 / 500 = 16，而不是 (10 + 40) / 2
	assert.InDelta(t, 16.0, *st.AverageSpeed, 0.001)
	require.NotNil(t, st.MaxSpeed)
	assert.Equal(t, 40.0, *st.MaxSpeed)
	require.NotNil(t, st.MaxSpeedKmh())
	assert.InDelta(t, 144.0, *st.MaxSpeedKmh(), 1e-9)
}

func TestComputeTravel_NoMoves(t *testing.T) {
	st := ComputeTravel(models.Travel{ID: "t1"}, nil, nil)

	assert.Equal(t, 0, st.MoveCount)
	assert.Nil(t, st.AverageSpeed)
	assert.Nil(t, st.MaxSpeedKmh())
	assert.NotNil(t, st.Moves)
}

func TestTravelFeatureCollection(t *testing.T) {
	start := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	travel := models.Travel{ID: "t1", Name: "Hokkaido"}
	moves := []models.Move{{ID: "m1", TravelID: "t1"}, {ID: "m2", TravelID: "t1"}}
	geos := rightAnglePath("m1", start, 35.0, 139.0)

	fc := TravelFeatureCollection(travel, moves, geos)

	require.Len(t, fc.Features, 1)
	f := fc.Features[0]
	assert.Equal(t, "m1", f.ID)
	assert.Equal(t, "LineString", f.Geometry.GeoJSONType())
	assert.Equal(t, 3, f.Properties["sample_count"])
	require.Len(t, fc.BBox, 4)
	assert.InDelta(t, 139.0, fc.BBox[0], 1e-9)
	assert.InDelta(t, 35.0, fc.BBox[1], 1e-9)

	data, err := json.Marshal(fc)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"FeatureCollection"`)
}
