package transform

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"statcan/internal/config"
	"statcan/internal/fixtures"
	"statcan/internal/logging"
	"statcan/internal/metrics"
	"statcan/internal/model"
	"statcan/internal/rawstore"
	"statcan/internal/sink"
	"statcan/internal/table"
	"statcan/internal/validate"
)

const gdpSnapshot = `{"series_info":[{"status":"SUCCESS","object":{"vectorId":1,"SeriesTitleEn":"GDP","productId":101,"coordinate":"1.1","frequencyCode":12}}],
"data":[{"status":"SUCCESS","object":{"vectorId":1,"vectorDataPoint":[{"refPer":"2024-01","value":100.5,"scalarFactorCode":0,"decimals":1,"statusCode":1,"symbolCode":0,"releaseTime":"2024-02-01"}]}}]}`

func indicatorRows(t *testing.T, raw string) (*table.Table, Skipped) {
	t.Helper()
	snap, err := model.ParseIndicators([]byte(raw))
	require.NoError(t, err)
	rows, skipped, err := FlattenIndicators(snap)
	require.NoError(t, err)
	tb, err := table.New(Indicators.Schema, rows)
	require.NoError(t, err)
	return tb, skipped
}

func cell(t *testing.T, tb *table.Table, row int, col string) any {
	t.Helper()
	idx := tb.Schema().Index(col)
	require.GreaterOrEqual(t, idx, 0, col)
	return tb.Row(row)[idx]
}

func TestFlattenIndicators_GDPExample(t *testing.T) {
	tb, skipped := indicatorRows(t, gdpSnapshot)
	require.Equal(t, 1, tb.Len())
	assert.Zero(t, skipped.Total())

	assert.Equal(t, int64(1), cell(t, tb, 0, "vector_id"))
	assert.Equal(t, "2024-01", cell(t, tb, 0, "ref_period"))
	assert.Equal(t, 100.5, cell(t, tb, 0, "value"))
	assert.Equal(t, "GDP", cell(t, tb, 0, "title_en"))
	assert.Equal(t, "101", cell(t, tb, 0, "product_id"))
	assert.Equal(t, "1.1", cell(t, tb, 0, "coordinate"))
	assert.Equal(t, int64(12), cell(t, tb, 0, "frequency"))
	assert.Equal(t, int64(0), cell(t, tb, 0, "scalar_factor"))
	assert.Equal(t, int64(1), cell(t, tb, 0, "decimals"))
	assert.Equal(t, int64(1), cell(t, tb, 0, "status_code"))
	assert.Equal(t, "2024-02-01", cell(t, tb, 0, "release_time"))
	assert.Nil(t, cell(t, tb, 0, "ref_period_2"))
	assert.Nil(t, cell(t, tb, 0, "title_fr"))
}

func TestFlattenIndicators_JoinUsesOnlySuccessMetadata(t *testing.T) {
	raw := `{"series_info":[
  {"status":"SUCCESS","object":{"vectorId":1,"SeriesTitleEn":"GDP","productId":101}},
  {"status":"FAILED","object":{"vectorId":2,"SeriesTitleEn":"should not join","productId":202}},
  {"status":"SUCCESS","object":{"vectorId":0,"SeriesTitleEn":"zero"}},
  {"status":"SUCCESS","object":{"SeriesTitleEn":"no id"}}
],
"data":[
  {"status":"SUCCESS","object":{"vectorId":1,"vectorDataPoint":[{"refPer":"2024-01","value":1},{"refPer":"2024-02","value":null}]}},
  {"status":"SUCCESS","object":{"vectorId":2,"vectorDataPoint":[{"refPer":"2024-01","value":2}]}},
  {"status":"SUCCESS","object":{"vectorId":3,"vectorDataPoint":[{"refPer":"2024-01","value":3}]}}
]}`
	tb, skipped := indicatorRows(t, raw)
	require.Equal(t, 4, tb.Len())

	assert.Equal(t, "GDP", cell(t, tb, 0, "title_en"))
	assert.Equal(t, "101", cell(t, tb, 1, "product_id"))
	assert.Nil(t, cell(t, tb, 1, "value"))

	for _, r := range []int{2, 3} {
		assert.Nil(t, cell(t, tb, r, "title_en"), "row %d", r)
		assert.Nil(t, cell(t, tb, r, "product_id"), "row %d", r)
		assert.Nil(t, cell(t, tb, r, "frequency"), "row %d", r)
	}
	assert.Equal(t, int64(2), cell(t, tb, 2, "vector_id"))

	assert.Equal(t, 1, skipped[SkipSeriesInfoFailed])
	assert.Equal(t, 2, skipped[SkipSeriesInfoNoVector])
	assert.Zero(t, skipped[SkipDataFailed])
}

func TestFlattenIndicators_FailedDataContributesNoRows(t *testing.T) {
	raw := `{"series_info":[],"data":[
  {"status":"FAILED","object":"Vector 99 not found"},
  {"status":"SUCCESS","object":{"vectorId":5,"vectorDataPoint":[{"refPer":"2024-01","value":5}]}}
]}`
	tb, skipped := indicatorRows(t, raw)
	require.Equal(t, 1, tb.Len())
	assert.Equal(t, int64(5), cell(t, tb, 0, "vector_id"))
	assert.Equal(t, 1, skipped[SkipDataFailed])
}

func TestBuild_AllFailedIsEmptyResult(t *testing.T) {
	raw := `{"series_info":[{"status":"FAILED","object":"x"}],"data":[{"status":"FAILED","object":"Vector 1 not found"}]}`
	_, skipped, err := Build(Indicators, []byte(raw))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrEmptyResult))
	assert.Contains(t, err.Error(), "statcan_economic_indicators")
	assert.Equal(t, 2, skipped.Total())
}

func TestBuild_EmptyCubesIsEmptyResult(t *testing.T) {
	_, _, err := Build(Cubes, []byte(`[]`))
	assert.True(t, errors.Is(err, ErrEmptyResult))
}

func TestBuild_MalformedSnapshot(t *testing.T) {
	_, _, err := Build(Indicators, []byte(`{"data":[]}`))
	assert.True(t, errors.Is(err, model.ErrMalformedSnapshot))
	_, _, err = Build(Cubes, []byte(`{"not":"an array"}`))
	assert.True(t, errors.Is(err, model.ErrMalformedSnapshot))
	_, _, err = Build(Indicators, []byte(`{"series_info":[],"data":[{"status":"SUCCESS","object":"oops"}]}`))
	assert.True(t, errors.Is(err, model.ErrMalformedSnapshot))
}

func TestFlattenIndicators_SuccessWithoutObjectEmitsNoRows(t *testing.T) {
	raw := `{"series_info":[{"status":"SUCCESS"}],"data":[
  {"status":"SUCCESS"},
  {"status":"SUCCESS","object":null},
  {"status":"SUCCESS","object":{"vectorId":5,"vectorDataPoint":[{"refPer":"2024-01","value":5}]}}
]}`
	tb, skipped := indicatorRows(t, raw)
	require.Equal(t, 1, tb.Len())
	assert.Equal(t, int64(5), cell(t, tb, 0, "vector_id"))
	assert.Equal(t, 1, skipped[SkipSeriesInfoNoVector])
}

func TestFlattenCubes_Defaults(t *testing.T) {
	cubes, err := model.ParseCubes([]byte(`[
  {"productId":10100001,"cubeTitleEn":"Tité","archived":2,"subjectCode":["10","1001"],"surveyCode":3701,"frequencyCode":12},
  {}
]`))
	require.NoError(t, err)
	tb, err := table.New(Cubes.Schema, FlattenCubes(cubes))
	require.NoError(t, err)

	assert.Equal(t, "10100001", cell(t, tb, 0, "product_id"))
	assert.Equal(t, "Tité", cell(t, tb, 0, "cube_title_en"))
	assert.Equal(t, "2", cell(t, tb, 0, "archived"))
	assert.Equal(t, "10,1001", cell(t, tb, 0, "subject_code"))
	assert.Equal(t, "3701", cell(t, tb, 0, "survey_code"))
	assert.Equal(t, "12", cell(t, tb, 0, "frequency_code"))
	assert.Nil(t, cell(t, tb, 0, "archive_status_en"))

	for _, col := range []string{"product_id", "cansim_id", "cube_title_en", "cube_title_fr", "subject_code", "survey_code", "start_period", "end_period", "release_time"} {
		assert.Equal(t, "", cell(t, tb, 1, col), col)
	}
	for _, col := range []string{"archived", "frequency_code", "archive_status_en", "archive_status_fr"} {
		assert.Nil(t, cell(t, tb, 1, col), col)
	}
}

func TestBuild_CubesFromFixture(t *testing.T) {
	raw, err := fixtures.Cubes(150, 1)
	require.NoError(t, err)
	tb, _, err := Build(Cubes, raw)
	require.NoError(t, err)
	assert.Equal(t, 150, tb.Len())

	ids, err := tb.Column("product_id")
	require.NoError(t, err)
	seen := map[any]bool{}
	for _, id := range ids {
		require.NotNil(t, id)
		require.False(t, seen[id], "duplicate %v", id)
		seen[id] = true
	}
}

func TestBuild_CubesValidation(t *testing.T) {
	raw, err := fixtures.Cubes(99, 1)
	require.NoError(t, err)
	_, _, err = Build(Cubes, raw)
	var verr *validate.Error
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, err.Error(), "row count 99 below minimum 100")

	dup := []byte(`[` + repeatCube(`{"productId":1,"cubeTitleEn":"same"}`, 120) + `]`)
	_, _, err = Build(Cubes, dup)
	require.True(t, errors.As(err, &verr))
	assert.Contains(t, err.Error(), "duplicate values")
}

func repeatCube(obj string, n int) string {
	out := obj
	for i := 1; i < n; i++ {
		out += "," + obj
	}
	return out
}

func TestBuild_IndicatorsNeedFiveVectors(t *testing.T) {
	raw, err := fixtures.Indicators([]int64{1, 2, 3, 4}, 50, nil, 7)
	require.NoError(t, err)
	_, _, err = Build(Indicators, raw)
	var verr *validate.Error
	require.True(t, errors.As(err, &verr), "got %v", err)
	assert.Contains(t, err.Error(), "distinct")

	raw, err = fixtures.Indicators([]int64{1, 2, 3, 4, 5, 6}, 30, []int64{6}, 7)
	require.NoError(t, err)
	tb, skipped, err := Build(Indicators, raw)
	require.NoError(t, err)
	assert.Equal(t, 150, tb.Len())
	assert.Equal(t, 1, skipped[SkipDataFailed])
	assert.Equal(t, 1, skipped[SkipSeriesInfoFailed])
}

func TestBuild_Idempotent(t *testing.T) {
	raw, err := fixtures.Indicators(config.KeyVectors, 20, []int64{1558}, 3)
	require.NoError(t, err)
	a, _, err := Build(Indicators, raw)
	require.NoError(t, err)
	b, _, err := Build(Indicators, raw)
	require.NoError(t, err)

	da, err := a.Digest()
	require.NoError(t, err)
	db, err := b.Digest()
	require.NoError(t, err)
	assert.Equal(t, da, db)
	require.Equal(t, a.Len(), b.Len())
	for i := 0; i < a.Len(); i++ {
		ra, err := a.EncodeRow(i)
		require.NoError(t, err)
		rb, err := b.EncodeRow(i)
		require.NoError(t, err)
		require.Equal(t, ra, rb, "row %d", i)
	}
}

func newTestJob(t *testing.T, ds Dataset, store rawstore.Store) (*Job, *sink.FileUploader, *sink.FileCatalog, *metrics.Registry) {
	t.Helper()
	up, err := sink.NewFileUploader(t.TempDir())
	require.NoError(t, err)
	cat := sink.NewFileCatalog(t.TempDir())
	reg := metrics.NewRegistry()
	job := NewJob(ds, store, up, cat, config.Run{ID: "test-run"}, logging.Discard(), reg)
	job.now = func() time.Time { return time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC) }
	return job, up, cat, reg
}

func TestJob_UploadsAndPublishes(t *testing.T) {
	store := rawstore.NewInMemoryStore()
	raw, err := fixtures.Indicators(config.KeyVectors, 12, []int64{20974}, 11)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), model.SlotIndicators, raw))

	job, up, cat, reg := newTestJob(t, Indicators, store)
	require.NoError(t, job.Run(context.Background()))

	entry, err := cat.Read(Indicators.ID)
	require.NoError(t, err)
	assert.Equal(t, "test-run", entry.RunID)
	assert.Equal(t, 17*12, entry.Rows)
	assert.Len(t, entry.Digest, 64)
	assert.NotEmpty(t, entry.UploadID)
	assert.Equal(t, up.Path(Indicators.ID), entry.Location)
	assert.Equal(t, Indicators.Title, entry.Title)
	assert.Len(t, entry.Columns, len(Indicators.Schema))
	assert.Equal(t, "Reference period", entry.Columns[1].Description)

	_, err = os.Stat(up.Path(Indicators.ID))
	require.NoError(t, err)
	assert.Equal(t, float64(17*12), testutil.ToFloat64(reg.RowsEmitted.WithLabelValues(Indicators.ID)))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.ItemsSkipped.WithLabelValues(Indicators.ID, SkipDataFailed)))
}

func TestJob_RerunIsByteIdentical(t *testing.T) {
	store := rawstore.NewInMemoryStore()
	raw, err := fixtures.Cubes(120, 5)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), model.SlotCubes, raw))

	job, up, cat, _ := newTestJob(t, Cubes, store)
	require.NoError(t, job.Run(context.Background()))
	first, err := os.ReadFile(up.Path(Cubes.ID))
	require.NoError(t, err)
	e1, err := cat.Read(Cubes.ID)
	require.NoError(t, err)

	require.NoError(t, job.Run(context.Background()))
	second, err := os.ReadFile(up.Path(Cubes.ID))
	require.NoError(t, err)
	e2, err := cat.Read(Cubes.ID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, e1.Digest, e2.Digest)
	assert.NotEqual(t, e1.UploadID, e2.UploadID)
}

func TestJob_MissingSnapshot(t *testing.T) {
	job, _, _, reg := newTestJob(t, Cubes, rawstore.NewInMemoryStore())
	err := job.Run(context.Background())
	assert.True(t, errors.Is(err, rawstore.ErrNotFound))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.JobFailures.WithLabelValues("transform_cubes")))
}

type countingUploader struct{ calls int }

func (c *countingUploader) Upload(context.Context, *table.Table, string, sink.Mode) (sink.Receipt, error) {
	c.calls++
	return sink.Receipt{}, nil
}

func TestJob_InvalidTableIsNotUploaded(t *testing.T) {
	store := rawstore.NewInMemoryStore()
	raw, err := fixtures.Cubes(10, 1)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), model.SlotCubes, raw))

	up := &countingUploader{}
	job := NewJob(Cubes, store, up, sink.NewFileCatalog(t.TempDir()), config.Run{ID: "r"}, logging.Discard(), metrics.NewRegistry())
	err = job.Run(context.Background())
	var verr *validate.Error
	assert.True(t, errors.As(err, &verr))
	assert.Zero(t, up.calls)
}
