package models

import "time"

// UnassignedMoveID 未在记录时的位置所使用的 move_id
const UnassignedMoveID = "none"

// Geolocation 位置记录（一次 GPS 定位）
type Geolocation struct {
	MoveID           string    `json:"move_id" db:"move_id"`
	Timestamp        time.Time `json:"timestamp" db:"recorded_at"`
	Latitude         float64   `json:"latitude" db:"latitude"`
	Longitude        float64   `json:"longitude" db:"longitude"`
	Altitude         *float64  `json:"altitude" db:"altitude"`                  // 米
	AltitudeAccuracy *float64  `json:"altitudeAccuracy" db:"altitude_accuracy"` // 米
	Speed            *float64  `json:"speed" db:"speed"`                        // m/s
	Heading          *float64  `json:"heading" db:"heading"`                    // 度 0-360
}

// IsAssigned 是否属于某个移动
func (g Geolocation) IsAssigned() bool {
	return g.MoveID != "" && g.MoveID != UnassignedMoveID
}
