package stats

// 方位标签
const (
	DirectionNorth     = "N"
	DirectionNorthEast = "NE"
	DirectionEast      = "E"
	DirectionSouthEast = "SE"
	DirectionSouth     = "S"
	DirectionSouthWest = "SW"
	DirectionWest      = "W"
	DirectionNorthWest = "NW"
)

var sectors = []string{
	DirectionNorth,
	DirectionNorthEast,
	DirectionEast,
	DirectionSouthEast,
	DirectionSouth,
	DirectionSouthWest,
	DirectionWest,
	DirectionNorthWest,
}

// HeadingDirection 把航向角 (度) 转换为 8 方位标签
// 每个扇区宽 45°，以方位为中心；N 覆盖 [337.5,360) ∪ [0,22.5)
// 超出 [0,360) 返回空字符串
func HeadingDirection(heading float64) string {
	if !(heading >= 0 && heading < 360) {
		return ""
	}
	idx := int((heading+22.5)/45) % len(sectors)
	return sectors[idx]
}
