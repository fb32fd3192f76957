package models

import "time"

// 数据结构版本
const (
	SchemaVersion       = "0.2.0"
	LegacySchemaVersion = "0.1.0"
)

// Document 导入/导出用的完整数据（当前版本）
type Document struct {
	Version     string        `json:"version"`
	Travel      []Travel      `json:"travel"`
	Move        []Move        `json:"move"`
	Geolocation []Geolocation `json:"geolocation"`
}

// NewDocument 创建当前版本的文档，nil 列表会被替换成空列表
func NewDocument(travels []Travel, moves []Move, geolocations []Geolocation) Document {
	if travels == nil {
		travels = []Travel{}
	}
	if moves == nil {
		moves = []Move{}
	}
	if geolocations == nil {
		geolocations = []Geolocation{}
	}
	return Document{
		Version:     SchemaVersion,
		Travel:      travels,
		Move:        moves,
		Geolocation: geolocations,
	}
}

// LegacyTravel v0.1.0 的旅行，持有移动 ID 列表
type LegacyTravel struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	MoveIDList  []string `json:"move_id_list"`
}

// LegacyMove v0.1.0 的移动，用时间范围标识
type LegacyMove struct {
	ID    string    `json:"id"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Contains 时间点是否落在 [Start, End] 内
func (m LegacyMove) Contains(t time.Time) bool {
	return !t.Before(m.Start) && !t.After(m.End)
}

// LegacyGeolocation v0.1.0 的位置，没有 move_id
type LegacyGeolocation struct {
	Timestamp        time.Time `json:"timestamp"`
	Latitude         float64   `json:"latitude"`
	Longitude        float64   `json:"longitude"`
	Altitude         *float64  `json:"altitude"`
	AltitudeAccuracy *float64  `json:"altitudeAccuracy"`
	Speed            *float64  `json:"speed"`
	Heading          *float64  `json:"heading"`
}

// LegacyDocument v0.1.0 的完整数据
type LegacyDocument struct {
	Version     string              `json:"version"`
	Travel      []LegacyTravel      `json:"travel"`
	Move        []LegacyMove        `json:"move"`
	Geolocation []LegacyGeolocation `json:"geolocation"`
}
