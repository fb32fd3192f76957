// Package stats 计算移动与旅行的距离、时长、速度等统计数据
package stats

import (
	"math"

	"github.com/langchou/overmove/internal/models"
)

// EarthRadiusKm 地球赤道半径 (km)
const EarthRadiusKm = 6378.137

// earthRadiusM 地球赤道半径 (m)
const earthRadiusM = EarthRadiusKm * 1000

func toRadians(deg float64) float64 {
	return deg * math.Pi / 180
}

// Distance 两点之间的大圆距离 (米)，经纬度单位为度
func Distance(lat1, lon1, lat2, lon2 float64) float64 {
	phi1 := toRadians(lat1)
	phi2 := toRadians(lat2)
	dPhi := toRadians(lat2 - lat1)
	dLambda := toRadians(lon2 - lon1)

	a := math.Sin(dPhi/2)*math.Sin(dPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*math.Sin(dLambda/2)*math.Sin(dLambda/2)
	// 浮点误差可能让 a 略微越界
	a = clamp(a, 0, 1)

	return 2 * earthRadiusM * math.Asin(math.Sqrt(a))
}

// GeolocationDistance 两个位置记录之间的距离 (米)
func GeolocationDistance(a, b models.Geolocation) float64 {
	return Distance(a.Latitude, a.Longitude, b.Latitude, b.Longitude)
}

// PathDistance 按顺序累加相邻位置之间的距离 (米)
func PathDistance(geolocations []models.Geolocation) float64 {
	sum := 0.0
	for i := 1; i < len(geolocations); i++ {
		sum += GeolocationDistance(geolocations[i-1], geolocations[i])
	}
	return sum
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
