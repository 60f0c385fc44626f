// Package model holds the WDS payload shapes. Fields the API may omit are
// pointers; accessors apply the defaults the tables expect.
package model

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// Raw-JSON slot names.
const (
	SlotCubes      = "cubes"
	SlotIndicators = "economic_indicators"
)

// StatusSuccess marks a batch item the API resolved.
const StatusSuccess = "SUCCESS"

// ErrMalformedSnapshot is returned when a raw snapshot does not have the
// shape the API documents.
var ErrMalformedSnapshot = errors.New("malformed raw snapshot")

// Item is one entry of a batched POST response. Object is kept raw because
// failed items carry an error string instead of an object.
type Item struct {
	Status string          `json:"status"`
	Object json.RawMessage `json:"object"`
}

// OK reports whether the API resolved this item.
func (it Item) OK() bool { return it.Status == StatusSuccess }

// Decode unmarshals the item object into T. A missing object decodes like
// null, to the zero value.
func Decode[T any](it Item) (T, error) {
	var v T
	if len(it.Object) == 0 {
		return v, nil
	}
	if err := json.Unmarshal(it.Object, &v); err != nil {
		return v, fmt.Errorf("%w: decode %T: %v", ErrMalformedSnapshot, v, err)
	}
	return v, nil
}

// Text is an upstream scalar that arrives as a string, a number, or an array
// of either. Arrays render comma-joined. Null and absent leave Valid false.
type Text struct {
	Value string
	Valid bool
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*t = Text{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*t = Text{Value: s, Valid: true}
	case '[':
		var elems []Text
		if err := json.Unmarshal(b, &elems); err != nil {
			return err
		}
		parts := make([]string, 0, len(elems))
		for _, e := range elems {
			if e.Valid {
				parts = append(parts, e.Value)
			}
		}
		*t = Text{Value: strings.Join(parts, ","), Valid: true}
	case '{':
		return fmt.Errorf("cannot use object as text: %s", b)
	default:
		// numbers and booleans keep their literal spelling
		*t = Text{Value: string(b), Valid: true}
	}
	return nil
}

// OrEmpty returns the value, or "" when absent.
func (t Text) OrEmpty() string { return t.Value }

// Ptr returns nil when absent.
func (t Text) Ptr() *string {
	if !t.Valid {
		return nil
	}
	v := t.Value
	return &v
}

// Cube is one entry of getAllCubesListLite.
type Cube struct {
	ProductID       Text    `json:"productId"`
	CansimID        *string `json:"cansimId"`
	CubeTitleEn     *string `json:"cubeTitleEn"`
	CubeTitleFr     *string `json:"cubeTitleFr"`
	Archived        Text    `json:"archived"`
	ArchiveStatusEn *string `json:"archiveStatusEn"`
	ArchiveStatusFr *string `json:"archiveStatusFr"`
	SubjectCode     Text    `json:"subjectCode"`
	SurveyCode      Text    `json:"surveyCode"`
	FrequencyCode   Text    `json:"frequencyCode"`
	CubeStartDate   *string `json:"cubeStartDate"`
	CubeEndDate     *string `json:"cubeEndDate"`
	ReleaseTime     *string `json:"releaseTime"`
}

// TitleEn returns the NFC-normalized English title, or "".
func (c Cube) TitleEn() string { return title(c.CubeTitleEn) }

// TitleFr returns the NFC-normalized French title, or "".
func (c Cube) TitleFr() string { return title(c.CubeTitleFr) }

// SeriesInfo is the object of one getSeriesInfoFromVector item.
type SeriesInfo struct {
	VectorID      *int64  `json:"vectorId"`
	ProductID     Text    `json:"productId"`
	Coordinate    *string `json:"coordinate"`
	SeriesTitleEn *string `json:"SeriesTitleEn"`
	SeriesTitleFr *string `json:"SeriesTitleFr"`
	FrequencyCode *int64  `json:"frequencyCode"`
}

// TitleEn returns the NFC-normalized English title, nil when absent.
func (s SeriesInfo) TitleEn() *string { return titlePtr(s.SeriesTitleEn) }

// TitleFr returns the NFC-normalized French title, nil when absent.
func (s SeriesInfo) TitleFr() *string { return titlePtr(s.SeriesTitleFr) }

// VectorData is the object of one getDataFromVectorsAndLatestNPeriods item.
type VectorData struct {
	VectorID *int64      `json:"vectorId"`
	Points   []DataPoint `json:"vectorDataPoint"`
}

// DataPoint is a single observation.
type DataPoint struct {
	RefPer           *string  `json:"refPer"`
	RefPer2          *string  `json:"refPer2"`
	Value            *float64 `json:"value"`
	ScalarFactorCode *int64   `json:"scalarFactorCode"`
	Decimals         *int64   `json:"decimals"`
	StatusCode       *int64   `json:"statusCode"`
	SymbolCode       *int64   `json:"symbolCode"`
	ReleaseTime      *string  `json:"releaseTime"`
}

// IndicatorsEnvelope is what the indicators ingest writes: both batch
// responses side by side, untouched.
type IndicatorsEnvelope struct {
	SeriesInfo json.RawMessage `json:"series_info"`
	Data       json.RawMessage `json:"data"`
}

// IndicatorsSnapshot is the decoded form of IndicatorsEnvelope.
type IndicatorsSnapshot struct {
	SeriesInfo []Item `json:"series_info"`
	Data       []Item `json:"data"`
}

// ParseCubes decodes a cubes snapshot after checking its shape.
func ParseCubes(raw []byte) ([]Cube, error) {
	if err := CheckSnapshot(SlotCubes, raw); err != nil {
		return nil, err
	}
	var cubes []Cube
	if err := json.Unmarshal(raw, &cubes); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return cubes, nil
}

// ParseIndicators decodes an economic indicators snapshot after checking its
// shape.
func ParseIndicators(raw []byte) (IndicatorsSnapshot, error) {
	if err := CheckSnapshot(SlotIndicators, raw); err != nil {
		return IndicatorsSnapshot{}, err
	}
	var snap IndicatorsSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return IndicatorsSnapshot{}, fmt.Errorf("%w: %v", ErrMalformedSnapshot, err)
	}
	return snap, nil
}

func title(s *string) string {
	if s == nil {
		return ""
	}
	return norm.NFC.String(*s)
}

func titlePtr(s *string) *string {
	if s == nil {
		return nil
	}
	v := norm.NFC.String(*s)
	return &v
}
