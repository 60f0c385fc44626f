package transform

import (
	"statcan/internal/model"
	"statcan/internal/table"
	"statcan/internal/validate"
)

// Dataset is a published table: where its raw input lives, its fixed schema,
// the rules it must pass and its catalogue text.
type Dataset struct {
	ID          string
	Slot        string
	Title       string
	Description string
	Schema      table.Schema
	Rules       validate.Rules
}

// Cubes is the cube catalogue, one row per cube.
var Cubes = Dataset{
	ID:    "statcan_cubes",
	Slot:  model.SlotCubes,
	Title: "Statistics Canada Data Cubes",
	Description: "Catalogue of all available data cubes (tables) from Statistics Canada. " +
		"Each cube represents a statistical table with data on various topics.",
	Schema: table.Schema{
		{Name: "product_id", Type: table.String, Description: "Unique product identifier for the cube"},
		{Name: "cansim_id", Type: table.String, Description: "Legacy CANSIM table identifier"},
		{Name: "cube_title_en", Type: table.String, Description: "English title of the cube"},
		{Name: "cube_title_fr", Type: table.String, Description: "French title of the cube"},
		{Name: "archived", Type: table.String, Description: "Archive status code ('1'=archived, '2'=current)"},
		{Name: "archive_status_en", Type: table.String, Description: "Archive status label in English"},
		{Name: "archive_status_fr", Type: table.String, Description: "Archive status label in French"},
		{Name: "subject_code", Type: table.String, Description: "Subject classification codes, comma-separated"},
		{Name: "survey_code", Type: table.String, Description: "Survey codes, comma-separated"},
		{Name: "frequency_code", Type: table.String, Description: "Data release frequency code"},
		{Name: "start_period", Type: table.String, Description: "Start period of data availability"},
		{Name: "end_period", Type: table.String, Description: "End period of data availability"},
		{Name: "release_time", Type: table.String, Description: "Timestamp of most recent data release"},
	},
	Rules: validate.Rules{
		Columns: map[string]table.Type{
			"product_id":     table.String,
			"cube_title_en":  table.String,
			"archived":       table.String,
			"frequency_code": table.String,
		},
		NotNull: []string{"product_id", "cube_title_en"},
		Unique:  []string{"product_id"},
		MinRows: 100,
	},
}

// Indicators is the economic indicators time series, one row per
// observation.
var Indicators = Dataset{
	ID:    "statcan_economic_indicators",
	Slot:  model.SlotIndicators,
	Title: "Statistics Canada Economic Indicators",
	Description: "Key economic indicators from Statistics Canada including GDP, employment, " +
		"CPI, trade, and other macroeconomic series.",
	Schema: table.Schema{
		{Name: "vector_id", Type: table.Int64, Description: "StatCan vector identifier"},
		{Name: "ref_period", Type: table.String, Description: "Reference period"},
		{Name: "ref_period_2", Type: table.String, Description: "Secondary reference period"},
		{Name: "value", Type: table.Float64, Description: "Data value"},
		{Name: "scalar_factor", Type: table.Int64, Description: "Scalar factor code"},
		{Name: "decimals", Type: table.Int64, Description: "Number of decimal places"},
		{Name: "status_code", Type: table.Int64, Description: "Data status code"},
		{Name: "symbol_code", Type: table.Int64, Description: "Symbol code"},
		{Name: "release_time", Type: table.String, Description: "Data release timestamp"},
		{Name: "title_en", Type: table.String, Description: "Series title in English"},
		{Name: "title_fr", Type: table.String, Description: "Series title in French"},
		{Name: "product_id", Type: table.String, Description: "Product identifier"},
		{Name: "coordinate", Type: table.String, Description: "Table coordinate"},
		{Name: "frequency", Type: table.Int64, Description: "Data frequency code"},
	},
	Rules: validate.Rules{
		Columns: map[string]table.Type{
			"vector_id":  table.Int64,
			"ref_period": table.String,
			"value":      table.Float64,
			"title_en":   table.String,
		},
		NotNull:     []string{"vector_id", "ref_period"},
		MinRows:     100,
		MinDistinct: map[string]int{"vector_id": 5},
	},
}

// Datasets lists every dataset in run order.
var Datasets = []Dataset{Cubes, Indicators}
