// Package fixtures generates synthetic raw snapshots shaped like WDS
// responses, for offline transform runs and tests. Output is a pure
// function of the arguments.
package fixtures

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"statcan/internal/model"
)

var frequencies = []int{1, 6, 9, 12}

// Cubes returns a cubes snapshot with n entries.
func Cubes(n int, seed int64) ([]byte, error) {
	rng := rand.New(rand.NewSource(seed))
	out := make([]map[string]any, n)
	for i := 0; i < n; i++ {
		pid := 10100000 + i + 1
		archived := "2"
		statusEn, statusFr := "CURRENT - a cube available to the public and that is current", "ACTIF - un cube qui est disponible au public et qui est toujours mis a jour"
		if rng.Intn(10) == 0 {
			archived = "1"
			statusEn, statusFr = "ARCHIVED - a cube that is available to the public but no longer updated", "ARCHIVÉ - un cube qui est disponible au public mais qui n'est plus mis à jour"
		}
		start := time.Date(1990+rng.Intn(25), 1, 1, 0, 0, 0, 0, time.UTC)
		out[i] = map[string]any{
			"productId":       pid,
			"cansimId":        fmt.Sprintf("%03d-%04d", 100+i%900, i%10000),
			"cubeTitleEn":     fmt.Sprintf("Synthetic table %d", i+1),
			"cubeTitleFr":     fmt.Sprintf("Tableau synthétique %d", i+1),
			"archived":        archived,
			"archiveStatusEn": statusEn,
			"archiveStatusFr": statusFr,
			"subjectCode":     []string{fmt.Sprintf("%02d", 10+rng.Intn(40)), fmt.Sprintf("%04d", rng.Intn(10000))},
			"surveyCode":      []string{fmt.Sprintf("%04d", 1000+rng.Intn(9000))},
			"frequencyCode":   frequencies[rng.Intn(len(frequencies))],
			"cubeStartDate":   start.Format(time.DateOnly),
			"cubeEndDate":     start.AddDate(10+rng.Intn(20), 0, 0).Format(time.DateOnly),
			"releaseTime":     "2024-03-15T08:30",
		}
	}
	return json.Marshal(out)
}

// Indicators returns an economic indicators snapshot with points monthly
// observations per vector. Vectors in failed get a FAILED item in both
// batches.
func Indicators(vectors []int64, points int, failed []int64, seed int64) ([]byte, error) {
	rng := rand.New(rand.NewSource(seed))
	isFailed := make(map[int64]bool, len(failed))
	for _, v := range failed {
		isFailed[v] = true
	}
	var info, data []map[string]any
	for i, v := range vectors {
		if isFailed[v] {
			miss := map[string]any{"status": "FAILED", "object": fmt.Sprintf("Vector %d not found", v)}
			info = append(info, miss)
			data = append(data, miss)
			continue
		}
		pid := 36100000 + 100*i
		coord := fmt.Sprintf("%d.%d.0.0.0.0.0.0.0.0", 1+i%9, 1+rng.Intn(9))
		info = append(info, map[string]any{"status": model.StatusSuccess, "object": map[string]any{
			"vectorId":         v,
			"productId":        pid,
			"coordinate":       coord,
			"SeriesTitleEn":    fmt.Sprintf("Synthetic series %d", v),
			"SeriesTitleFr":    fmt.Sprintf("Série synthétique %d", v),
			"frequencyCode":    6,
			"scalarFactorCode": 3,
			"memberUomCode":    81,
		}})

		level := 1000 + rng.Float64()*1000
		pts := make([]map[string]any, points)
		for p := 0; p < points; p++ {
			ref := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, p-points+1, 0)
			level *= 1 + (rng.Float64()-0.45)/50
			var value any = float64(int64(level*10)) / 10
			if rng.Intn(40) == 0 {
				value = nil
			}
			pts[p] = map[string]any{
				"refPer":           ref.Format(time.DateOnly),
				"refPer2":          "",
				"value":            value,
				"scalarFactorCode": 3,
				"decimals":         1,
				"statusCode":       0,
				"symbolCode":       0,
				"releaseTime":      ref.AddDate(0, 1, 10).Format("2006-01-02T15:04"),
			}
		}
		data = append(data, map[string]any{"status": model.StatusSuccess, "object": map[string]any{
			"vectorId":        v,
			"productId":       pid,
			"coordinate":      coord,
			"vectorDataPoint": pts,
		}})
	}
	if info == nil {
		info = []map[string]any{}
	}
	if data == nil {
		data = []map[string]any{}
	}
	return json.Marshal(map[string]any{"series_info": info, "data": data})
}
