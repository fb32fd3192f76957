package stats

import (
	"time"

	"github.com/langchou/overmove/internal/models"
)

// MpsToKmh m/s 转 km/h
func MpsToKmh(mps float64) float64 {
	return mps * 3.6
}

// MoveStatistics 单个移动的统计
type MoveStatistics struct {
	MoveID          string     `json:"move_id"`
	TravelID        string     `json:"travel_id"`
	SampleCount     int        `json:"sample_count"`
	DistanceMeters  float64    `json:"distance_m"`
	DurationSeconds int64      `json:"duration_sec"`
	MaxSpeed        *float64   `json:"max_speed_mps"`
	AverageSpeed    *float64   `json:"average_speed_mps"`
	StartTime       *time.Time `json:"start_time,omitempty"`
	EndTime         *time.Time `json:"end_time,omitempty"`
	LastHeading     string     `json:"last_heading,omitempty"`
}

// DistanceKm 距离 (km)
func (s MoveStatistics) DistanceKm() float64 {
	return s.DistanceMeters / 1000
}

// AverageSpeedKmh 平均速度 (km/h)，时长为 0 时返回 nil
func (s MoveStatistics) AverageSpeedKmh() *float64 {
	return kmh(s.AverageSpeed)
}

// MaxSpeedKmh 最高速度 (km/h)
func (s MoveStatistics) MaxSpeedKmh() *float64 {
	return kmh(s.MaxSpeed)
}

// ComputeMove 计算移动的统计数据
// geolocations 按采样顺序排列，调用方负责过滤出属于该移动的记录
func ComputeMove(move models.Move, geolocations []models.Geolocation) MoveStatistics {
	st := MoveStatistics{
		MoveID:         move.ID,
		TravelID:       move.TravelID,
		SampleCount:    len(geolocations),
		DistanceMeters: PathDistance(geolocations),
	}
	if len(geolocations) == 0 {
		return st
	}

	start := geolocations[0].Timestamp
	end := geolocations[0].Timestamp
	for _, g := range geolocations {
		if g.Timestamp.Before(start) {
			start = g.Timestamp
		}
		if g.Timestamp.After(end) {
			end = g.Timestamp
		}
		if g.Speed != nil && (st.MaxSpeed == nil || *g.Speed > *st.MaxSpeed) {
			speed := *g.Speed
			st.MaxSpeed = &speed
		}
	}
	st.StartTime = &start
	st.EndTime = &end
	st.DurationSeconds = int64(end.Sub(start) / time.Second)
	st.AverageSpeed = averageSpeed(st.DistanceMeters, st.DurationSeconds)

	if last := geolocations[len(geolocations)-1]; last.Heading != nil {
		st.LastHeading = HeadingDirection(*last.Heading)
	}
	return st
}

// TravelStatistics 旅行统计：各移动的简单累加
type TravelStatistics struct {
	TravelID        string           `json:"travel_id"`
	MoveCount       int              `json:"move_count"`
	SampleCount     int              `json:"sample_count"`
	DistanceMeters  float64          `json:"distance_m"`
	DurationSeconds int64            `json:"duration_sec"`
	MaxSpeed        *float64         `json:"max_speed_mps"`
	AverageSpeed    *float64         `json:"average_speed_mps"`
	Moves           []MoveStatistics `json:"moves"`
}

// DistanceKm 距离 (km)
func (s TravelStatistics) DistanceKm() float64 {
	return s.DistanceMeters / 1000
}

// AverageSpeedKmh 平均速度 (km/h)
func (s TravelStatistics) AverageSpeedKmh() *float64 {
	return kmh(s.AverageSpeed)
}

// MaxSpeedKmh 最高速度 (km/h)
func (s TravelStatistics) MaxSpeedKmh() *float64 {
	return kmh(s.MaxSpeed)
}

// ComputeTravel 计算旅行统计
// moves 与 geolocations 可以是全量列表，函数内部按 travel_id / move_id 过滤
func ComputeTravel(travel models.Travel, moves []models.Move, geolocations []models.Geolocation) TravelStatistics {
	byMove := GroupByMove(geolocations)

	st := TravelStatistics{
		TravelID: travel.ID,
		Moves:    []MoveStatistics{},
	}
	for _, m := range moves {
		if m.TravelID != travel.ID {
			continue
		}
		ms := ComputeMove(m, byMove[m.ID])
		st.Moves = append(st.Moves, ms)
		st.MoveCount++
		st.SampleCount += ms.SampleCount
		st.DistanceMeters += ms.DistanceMeters
		st.DurationSeconds += ms.DurationSeconds
		if ms.MaxSpeed != nil && (st.MaxSpeed == nil || *ms.MaxSpeed > *st.MaxSpeed) {
			speed := *ms.MaxSpeed
			st.MaxSpeed = &speed
		}
	}
	// 按总距离/总时长重新计算，而不是对平均速度求平均
	st.AverageSpeed = averageSpeed(st.DistanceMeters, st.DurationSeconds)
	return st
}

// GroupByMove 按 move_id 分组，保持原有顺序
func GroupByMove(geolocations []models.Geolocation) map[string][]models.Geolocation {
	out := make(map[string][]models.Geolocation)
	for _, g := range geolocations {
		if !g.IsAssigned() {
			continue
		}
		out[g.MoveID] = append(out[g.MoveID], g)
	}
	return out
}

func averageSpeed(distanceMeters float64, durationSeconds int64) *float64 {
	if durationSeconds <= 0 {
		return nil
	}
	v := distanceMeters / float64(durationSeconds)
	return &v
}

func kmh(mps *float64) *float64 {
	if mps == nil {
		return nil
	}
	v := MpsToKmh(*mps)
	return &v
}
