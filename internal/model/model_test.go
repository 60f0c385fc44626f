package model

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestText_Unmarshal(t *testing.T) {
	cases := []struct {
		in    string
		want  string
		valid bool
	}{
		{`"abc"`, "abc", true},
		{`10100001`, "10100001", true},
		{`12.5`, "12.5", true},
		{`true`, "true", true},
		{`["3", 4, null]`, "3,4", true},
		{`[]`, "", true},
		{`null`, "", false},
	}
	for _, c := range cases {
		var got Text
		require.NoError(t, json.Unmarshal([]byte(c.in), &got), c.in)
		assert.Equal(t, c.want, got.Value, c.in)
		assert.Equal(t, c.valid, got.Valid, c.in)
	}

	var bad Text
	require.Error(t, json.Unmarshal([]byte(`{"a":1}`), &bad))
}

func TestText_AbsentField(t *testing.T) {
	var c Cube
	require.NoError(t, json.Unmarshal([]byte(`{"cubeTitleEn":"x"}`), &c))
	assert.False(t, c.ProductID.Valid)
	assert.Nil(t, c.ProductID.Ptr())
	assert.Equal(t, "", c.ProductID.OrEmpty())
}

func TestCube_TitlesNormalized(t *testing.T) {
	decomposed := "Indice des prix a\u0300 la consommation, e\u0301te\u0301"
	c := Cube{CubeTitleFr: &decomposed}
	assert.Equal(t, "Indice des prix \u00e0 la consommation, \u00e9t\u00e9", c.TitleFr())
	assert.Equal(t, "", c.TitleEn())
}

func TestItem_DecodeSkipsFailedObjects(t *testing.T) {
	raw := `[
	  {"status":"SUCCESS","object":{"vectorId":1,"SeriesTitleEn":"GDP","productId":101}},
	  {"status":"FAILED","object":"Vector does not exist"}
	]`
	var items []Item
	require.NoError(t, json.Unmarshal([]byte(raw), &items))
	require.Len(t, items, 2)

	assert.True(t, items[0].OK())
	info, err := Decode[SeriesInfo](items[0])
	require.NoError(t, err)
	require.NotNil(t, info.VectorID)
	assert.Equal(t, int64(1), *info.VectorID)
	assert.Equal(t, "101", info.ProductID.Value)
	assert.Equal(t, "GDP", *info.TitleEn())
	assert.Nil(t, info.TitleFr())

	assert.False(t, items[1].OK())
	_, err = Decode[SeriesInfo](items[1])
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMalformedSnapshot))
}

func TestParseCubes(t *testing.T) {
	cubes, err := ParseCubes([]byte(`[{"productId":10100001,"subjectCode":["10","1001"],"archived":"2","frequencyCode":12}]`))
	require.NoError(t, err)
	require.Len(t, cubes, 1)
	assert.Equal(t, "10100001", cubes[0].ProductID.Value)
	assert.Equal(t, "10,1001", cubes[0].SubjectCode.Value)
	assert.Equal(t, "2", cubes[0].Archived.Value)
	assert.Equal(t, "12", cubes[0].FrequencyCode.Value)
}

func TestParseCubes_RejectsWrongShape(t *testing.T) {
	for _, raw := range []string{`{"cubes":[]}`, `[1,2]`, `not json`} {
		_, err := ParseCubes([]byte(raw))
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrMalformedSnapshot), raw)
	}
}

func TestParseIndicators(t *testing.T) {
	raw := `{"series_info":[{"status":"SUCCESS","object":{"vectorId":1}}],"data":[{"status":"FAILED","object":"nope"}]}`
	snap, err := ParseIndicators([]byte(raw))
	require.NoError(t, err)
	assert.Len(t, snap.SeriesInfo, 1)
	assert.Len(t, snap.Data, 1)
}

func TestParseIndicators_RejectsWrongShape(t *testing.T) {
	for _, raw := range []string{
		`[]`,
		`{"series_info":[]}`,
		`{"series_info":[],"data":[{"object":{}}]}`,
		`{"series_info":[],"data":[{"status":1}]}`,
	} {
		_, err := ParseIndicators([]byte(raw))
		require.Error(t, err, raw)
		assert.True(t, errors.Is(err, ErrMalformedSnapshot), raw)
	}
}

func TestCheckSnapshot_UnknownSlotNeedsValidJSON(t *testing.T) {
	require.NoError(t, CheckSnapshot("other", []byte(`{"x":1}`)))
	require.Error(t, CheckSnapshot("other", []byte(`{`)))
}

func TestDecode_MissingObjectIsZeroValue(t *testing.T) {
	var items []Item
	require.NoError(t, json.Unmarshal([]byte(`[{"status":"SUCCESS"}]`), &items))
	vd, err := Decode[VectorData](items[0])
	require.NoError(t, err)
	assert.Nil(t, vd.VectorID)
	assert.Empty(t, vd.Points)
}

func TestDecode_IgnoresFieldsOutsideTheSchemas(t *testing.T) {
	var items []Item
	require.NoError(t, json.Unmarshal([]byte(`[{"status":"SUCCESS","object":{
  "vectorId":7,"productId":3610043401,"coordinate":"1.2.0.0.0.0.0.0.0.0","memberUomCode":81,
  "vectorDataPoint":[{"refPer":"2024-01-01","value":1.5}]}}]`), &items))
	vd, err := Decode[VectorData](items[0])
	require.NoError(t, err)
	require.NotNil(t, vd.VectorID)
	assert.Equal(t, int64(7), *vd.VectorID)
	require.Len(t, vd.Points, 1)
}
