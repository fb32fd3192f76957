package stats

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/langchou/overmove/internal/models"
)

// Path 位置记录转换为轨迹线 (orb 使用 [lng, lat] 顺序)
func Path(geolocations []models.Geolocation) orb.LineString {
	ls := make(orb.LineString, 0, len(geolocations))
	for _, g := range geolocations {
		ls = append(ls, orb.Point{g.Longitude, g.Latitude})
	}
	return ls
}

// TravelFeatureCollection 旅行轨迹的 GeoJSON
// 每个有位置记录的移动对应一个 LineString Feature，属性中带统计数据
func TravelFeatureCollection(travel models.Travel, moves []models.Move, geolocations []models.Geolocation) *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	byMove := GroupByMove(geolocations)

	var bound orb.Bound
	hasBound := false

	for _, m := range moves {
		if m.TravelID != travel.ID {
			continue
		}
		geos := byMove[m.ID]
		if len(geos) == 0 {
			continue
		}

		path := Path(geos)
		st := ComputeMove(m, geos)

		f := geojson.NewFeature(path)
		f.ID = m.ID
		f.Properties["travel_id"] = travel.ID
		f.Properties["travel_name"] = travel.Name
		f.Properties["move_id"] = m.ID
		f.Properties["sample_count"] = st.SampleCount
		f.Properties["distance_m"] = st.DistanceMeters
		f.Properties["duration_sec"] = st.DurationSeconds
		if st.MaxSpeed != nil {
			f.Properties["max_speed_mps"] = *st.MaxSpeed
		}
		if st.AverageSpeed != nil {
			f.Properties["average_speed_mps"] = *st.AverageSpeed
		}
		fc.Append(f)

		if hasBound {
			bound = bound.Union(path.Bound())
		} else {
			bound = path.Bound()
			hasBound = true
		}
	}

	if hasBound {
		fc.BBox = geojson.NewBBox(bound)
	}
	return fc
}
