package transform

import (
	"fmt"

	"statcan/internal/model"
)

// Skip kinds reported by FlattenIndicators.
const (
	SkipSeriesInfoFailed   = "series_info_failed"
	SkipSeriesInfoNoVector = "series_info_no_vector"
	SkipDataFailed         = "data_failed"
)

// Skipped counts dropped upstream items by kind.
type Skipped map[string]int

// Total returns the number of dropped items.
func (s Skipped) Total() int {
	n := 0
	for _, v := range s {
		n += v
	}
	return n
}

// FlattenCubes emits one row per cube in Cubes schema order, keeping input
// order.
func FlattenCubes(cubes []model.Cube) [][]any {
	rows := make([][]any, 0, len(cubes))
	for _, c := range cubes {
		rows = append(rows, []any{
			c.ProductID.OrEmpty(),
			orEmpty(c.CansimID),
			c.TitleEn(),
			c.TitleFr(),
			c.Archived.Ptr(),
			c.ArchiveStatusEn,
			c.ArchiveStatusFr,
			c.SubjectCode.OrEmpty(),
			c.SurveyCode.OrEmpty(),
			c.FrequencyCode.Ptr(),
			orEmpty(c.CubeStartDate),
			orEmpty(c.CubeEndDate),
			orEmpty(c.ReleaseTime),
		})
	}
	return rows
}

type vectorMeta struct {
	titleEn    *string
	titleFr    *string
	productID  string
	coordinate *string
	frequency  *int64
}

// FlattenIndicators joins data points to their series metadata and emits
// one row per data point in Indicators schema order. Only SUCCESS items
// take part on either side. A data item whose vector has no SUCCESS
// metadata still emits rows, with null metadata columns.
func FlattenIndicators(snap model.IndicatorsSnapshot) ([][]any, Skipped, error) {
	skipped := Skipped{}
	meta := make(map[int64]vectorMeta, len(snap.SeriesInfo))
	for i, it := range snap.SeriesInfo {
		if !it.OK() {
			skipped[SkipSeriesInfoFailed]++
			continue
		}
		info, err := model.Decode[model.SeriesInfo](it)
		if err != nil {
			return nil, nil, fmt.Errorf("series_info[%d]: %w", i, err)
		}
		if info.VectorID == nil || *info.VectorID == 0 {
			skipped[SkipSeriesInfoNoVector]++
			continue
		}
		meta[*info.VectorID] = vectorMeta{
			titleEn:    info.TitleEn(),
			titleFr:    info.TitleFr(),
			productID:  info.ProductID.OrEmpty(),
			coordinate: info.Coordinate,
			frequency:  info.FrequencyCode,
		}
	}

	var rows [][]any
	for i, it := range snap.Data {
		if !it.OK() {
			skipped[SkipDataFailed]++
			continue
		}
		vd, err := model.Decode[model.VectorData](it)
		if err != nil {
			return nil, nil, fmt.Errorf("data[%d]: %w", i, err)
		}
		var m vectorMeta
		var productID *string
		if vd.VectorID != nil {
			if found, ok := meta[*vd.VectorID]; ok {
				m = found
				productID = &found.productID
			}
		}
		for _, p := range vd.Points {
			rows = append(rows, []any{
				vd.VectorID,
				p.RefPer,
				p.RefPer2,
				p.Value,
				p.ScalarFactorCode,
				p.Decimals,
				p.StatusCode,
				p.SymbolCode,
				p.ReleaseTime,
				m.titleEn,
				m.titleFr,
				productID,
				m.coordinate,
				m.frequency,
			})
		}
	}
	return rows, skipped, nil
}

func orEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
