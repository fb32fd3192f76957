// Package migrate 把旧版本的导出文档转换为当前版本
package migrate

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/langchou/overmove/internal/models"
)

// 错误定义
var (
	ErrUnsupportedVersion = errors.New("unsupported schema version")
	ErrMalformedDocument  = errors.New("malformed document")
)

// Report 迁移中丢弃的记录
type Report struct {
	SourceVersion      string                     `json:"source_version"`
	OrphanMoves        []models.LegacyMove        `json:"orphan_moves,omitempty"`
	OrphanGeolocations []models.LegacyGeolocation `json:"orphan_geolocations,omitempty"`
}

// Migrated 是否经过了版本转换
func (r Report) Migrated() bool {
	return r.SourceVersion != models.SchemaVersion
}

// Dropped 丢弃的记录总数
func (r Report) Dropped() int {
	return len(r.OrphanMoves) + len(r.OrphanGeolocations)
}

type header struct {
	Version string `json:"version"`
}

// Decode 按 version 字段解析文档
// 当前版本直接解析，其余较旧的版本按 v0.1.0 解析后迁移
func Decode(data []byte) (models.Document, Report, error) {
	var h header
	if err := json.Unmarshal(data, &h); err != nil {
		return models.Document{}, Report{}, fmt.Errorf("%w: header: %w", ErrMalformedDocument, err)
	}

	if h.Version == models.SchemaVersion {
		var doc models.Document
		if err := json.Unmarshal(data, &doc); err != nil {
			return models.Document{}, Report{}, fmt.Errorf("%w: version %s: %w", ErrMalformedDocument, h.Version, err)
		}
		doc = models.NewDocument(doc.Travel, doc.Move, doc.Geolocation)
		return doc, Report{SourceVersion: h.Version}, nil
	}

	if newerThanCurrent(h.Version) {
		return models.Document{}, Report{}, fmt.Errorf("version %q: %w", h.Version, ErrUnsupportedVersion)
	}

	var legacy models.LegacyDocument
	if err := json.Unmarshal(data, &legacy); err != nil {
		return models.Document{}, Report{}, fmt.Errorf("%w: legacy: %w", ErrMalformedDocument, err)
	}
	doc, report := Migrate(legacy)
	return doc, report, nil
}

// Migrate v0.1.0 -> v0.2.0
// 移动归属于第一个 move_id_list 包含它的旅行，位置归属于第一个时间范围包含它的移动
// 找不到归属的记录不进入结果，记录在 Report 中
func Migrate(legacy models.LegacyDocument) (models.Document, Report) {
	report := Report{SourceVersion: legacy.Version}

	travels := make([]models.Travel, 0, len(legacy.Travel))
	for _, t := range legacy.Travel {
		travels = append(travels, models.Travel{
			ID:          t.ID,
			Name:        t.Name,
			Description: t.Description,
		})
	}

	moves := make([]models.Move, 0, len(legacy.Move))
	for _, m := range legacy.Move {
		owner, ok := ownerTravel(legacy.Travel, m.ID)
		if !ok {
			report.OrphanMoves = append(report.OrphanMoves, m)
			continue
		}
		moves = append(moves, models.Move{ID: m.ID, TravelID: owner})
	}

	geolocations := make([]models.Geolocation, 0, len(legacy.Geolocation))
	for _, g := range legacy.Geolocation {
		moveID, ok := containingMove(legacy.Move, g)
		if !ok {
			report.OrphanGeolocations = append(report.OrphanGeolocations, g)
			continue
		}
		geolocations = append(geolocations, models.Geolocation{
			MoveID:           moveID,
			Timestamp:        g.Timestamp,
			Latitude:         g.Latitude,
			Longitude:        g.Longitude,
			Altitude:         g.Altitude,
			AltitudeAccuracy: g.AltitudeAccuracy,
			Speed:            g.Speed,
			Heading:          g.Heading,
		})
	}

	return models.NewDocument(travels, moves, geolocations), report
}

func ownerTravel(travels []models.LegacyTravel, moveID string) (string, bool) {
	for _, t := range travels {
		for _, id := range t.MoveIDList {
			if id == moveID {
				return t.ID, true
			}
		}
	}
	return "", false
}

// 注意：时间范围内的移动不一定有所属旅行，位置仍然归属于它
func containingMove(moves []models.LegacyMove, g models.LegacyGeolocation) (string, bool) {
	for _, m := range moves {
		if m.Contains(g.Timestamp) {
			return m.ID, true
		}
	}
	return "", false
}

// newerThanCurrent 比较 major.minor.patch，无法解析的版本视为旧版本
func newerThanCurrent(version string) bool {
	v, ok := parseVersion(version)
	if !ok {
		return false
	}
	cur, _ := parseVersion(models.SchemaVersion)
	for i := range v {
		if v[i] != cur[i] {
			return v[i] > cur[i]
		}
	}
	return false
}

func parseVersion(version string) ([3]int, bool) {
	var out [3]int
	parts := strings.Split(strings.TrimPrefix(version, "v"), ".")
	if len(parts) != 3 {
		return out, false
	}
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return out, false
		}
		out[i] = n
	}
	return out, true
}
