package render

import (
	"bytes"
	"encoding/json"
	"testing"

	"github.com/cmdrvl/rvl/internal/align"
	"github.com/cmdrvl/rvl/internal/dialect"
	"github.com/cmdrvl/rvl/internal/diffengine"
	"github.com/cmdrvl/rvl/internal/refusal"
	"github.com/cmdrvl/rvl/internal/verdict"
	"github.com/stretchr/testify/assert"
)

func intp(n int) *int { return &n }

func tabDialect() dialect.Dialect {
	return dialect.Dialect{Delimiter: '\t', Escape: dialect.EscapeBackslash}
}

func baseSettings() Settings {
	return Settings{
		OldPath:    "old.csv",
		NewPath:    "new.csv",
		Threshold:  0.8,
		Tolerance:  1e-9,
		OldDialect: tabDialect(),
		NewDialect: tabDialect(),

		RowsOld:             intp(2),
		RowsNew:             intp(2),
		RowsAligned:         intp(2),
		ColumnsOld:          intp(2),
		ColumnsNew:          intp(2),
		ColumnsCommon:       intp(2),
		ColumnsOldOnly:      intp(0),
		ColumnsNewOnly:      intp(0),
		NumericColumns:      intp(1),
		NumericCellsChecked: intp(2),
		NumericCellsChanged: intp(1),
	}
}

type jsonEnvelope struct {
	Version   string `json:"version"`
	Outcome   string `json:"outcome"`
	Files     struct {
		Old string `json:"old"`
		New string `json:"new"`
	} `json:"files"`
	Alignment struct {
		Mode      string  `json:"mode"`
		KeyColumn *string `json:"key_column"`
	} `json:"alignment"`
	Dialect struct {
		Old struct {
			Delimiter string `json:"delimiter"`
			Quote     string `json:"quote"`
			Escape    string `json:"escape"`
		} `json:"old"`
		New struct {
			Delimiter string `json:"delimiter"`
			Quote     string `json:"quote"`
			Escape    string `json:"escape"`
		} `json:"new"`
	} `json:"dialect"`
	Threshold float64    `json:"threshold"`
	Tolerance float64    `json:"tolerance"`
	Counts    jsonCounts `json:"counts"`
	Metrics   *struct {
		TotalChange  float64  `json:"total_change"`
		MaxAbsDelta  float64  `json:"max_abs_delta"`
		TopKCoverage *float64 `json:"top_k_coverage"`
	} `json:"metrics"`
	Limits struct {
		MaxContributors int `json:"max_contributors"`
	} `json:"limits"`
	Contributors []struct {
		RowID           string  `json:"row_id"`
		Column          string  `json:"column"`
		Old             float64 `json:"old"`
		New             float64 `json:"new"`
		Delta           float64 `json:"delta"`
		Contribution    float64 `json:"contribution"`
		Share           float64 `json:"share"`
		CumulativeShare float64 `json:"cumulative_share"`
	} `json:"contributors"`
	Refusal *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
		Next    string `json:"next"`
	} `json:"refusal"`
}

func decode(t *testing.T, buf *bytes.Buffer) jsonEnvelope {
	t.Helper()
	var env jsonEnvelope
	assert.NoError(t, json.Unmarshal(buf.Bytes(), &env))
	return env
}

func TestJSONRealChange(t *testing.T) {
	s := baseSettings()
	coverage := 1.0
	o := verdict.Outcome{
		Kind:        verdict.RealChange,
		TotalChange: 10,
		MaxAbsDelta: 6,
		Coverage:    &coverage,
		Contributors: []diffengine.Contributor{
			{RowID: align.RowID{Index: 1}, Column: []byte("amount"), Old: 100, New: 106, Delta: 6, Contribution: 6},
			{RowID: align.RowID{Index: 2}, Column: []byte("amount"), Old: 50, New: 54, Delta: 4, Contribution: 4},
		},
	}

	var buf bytes.Buffer
	assert.NoError(t, JSON(&buf, s, o))
	env := decode(t, &buf)

	assert.Equal(t, "rvl.v0", env.Version)
	assert.Equal(t, "REAL_CHANGE", env.Outcome)
	assert.Equal(t, "old.csv", env.Files.Old)
	assert.Equal(t, "new.csv", env.Files.New)
	assert.Equal(t, "row-order", env.Alignment.Mode)
	assert.Nil(t, env.Alignment.KeyColumn)

	assert.Equal(t, "\t", env.Dialect.Old.Delimiter)
	assert.Equal(t, "\"", env.Dialect.Old.Quote)
	assert.Equal(t, `\`, env.Dialect.Old.Escape)

	assert.Equal(t, intp(2), env.Counts.RowsOld)
	assert.Equal(t, intp(2), env.Counts.RowsNew)
	assert.Equal(t, intp(2), env.Counts.RowsAligned)
	assert.Equal(t, intp(2), env.Counts.ColumnsOld)
	assert.Equal(t, intp(2), env.Counts.ColumnsNew)
	assert.Equal(t, intp(2), env.Counts.ColumnsCommon)
	assert.Equal(t, intp(0), env.Counts.ColumnsOldOnly)
	assert.Equal(t, intp(0), env.Counts.ColumnsNewOnly)
	assert.Equal(t, intp(1), env.Counts.NumericColumns)
	assert.Equal(t, intp(2), env.Counts.NumericCellsChecked)
	assert.Equal(t, intp(1), env.Counts.NumericCellsChanged)

	assert.NotNil(t, env.Metrics)
	assert.Equal(t, 10.0, env.Metrics.TotalChange)
	assert.Equal(t, 6.0, env.Metrics.MaxAbsDelta)
	assert.NotNil(t, env.Metrics.TopKCoverage)
	assert.Equal(t, 1.0, *env.Metrics.TopKCoverage)

	assert.Equal(t, 25, env.Limits.MaxContributors)

	assert.Len(t, env.Contributors, 2)
	var cumulative float64
	for _, c := range env.Contributors {
		assert.Greater(t, c.Contribution, 0.0)
		assert.GreaterOrEqual(t, c.Share, 0.0)
		assert.GreaterOrEqual(t, c.CumulativeShare, cumulative)
		assert.LessOrEqual(t, c.CumulativeShare, 1.0+1e-9)
		cumulative = c.CumulativeShare
	}
	assert.InDelta(t, 1.0, env.Contributors[len(env.Contributors)-1].CumulativeShare, 1e-9)
	assert.Nil(t, env.Refusal)
}

func TestJSONNoRealChange(t *testing.T) {
	s := baseSettings()
	o := verdict.Outcome{Kind: verdict.NoRealChange, TotalChange: 0, MaxAbsDelta: 0.0000000001}

	var buf bytes.Buffer
	assert.NoError(t, JSON(&buf, s, o))
	env := decode(t, &buf)

	assert.Equal(t, "NO_REAL_CHANGE", env.Outcome)
	assert.NotNil(t, env.Metrics)
	assert.Equal(t, 0.0, env.Metrics.TotalChange)
	assert.Nil(t, env.Metrics.TopKCoverage)
	assert.Empty(t, env.Contributors)
	assert.Nil(t, env.Refusal)

	assert.Equal(t, intp(1), env.Counts.NumericColumns)
	assert.Equal(t, intp(2), env.Counts.NumericCellsChecked)
	assert.Equal(t, intp(1), env.Counts.NumericCellsChanged)
}

func TestJSONRefusalNeedKeyNullsNumericCounts(t *testing.T) {
	s := baseSettings()
	r := refusal.New(refusal.ENeedKey, "rerun with --key id", "rows appear reordered")
	o := verdict.Outcome{Kind: verdict.Refusal, Refusal: r, TotalChange: 10, MaxAbsDelta: 6}

	var buf bytes.Buffer
	assert.NoError(t, JSON(&buf, s, o))
	env := decode(t, &buf)

	assert.Equal(t, "REFUSAL", env.Outcome)
	assert.Nil(t, env.Metrics)
	assert.Empty(t, env.Contributors)

	assert.Equal(t, intp(2), env.Counts.RowsOld)
	assert.Nil(t, env.Counts.NumericColumns)
	assert.Nil(t, env.Counts.NumericCellsChecked)
	assert.Nil(t, env.Counts.NumericCellsChanged)

	assert.NotNil(t, env.Refusal)
	assert.Equal(t, string(refusal.ENeedKey), env.Refusal.Code)
	assert.Equal(t, "rerun with --key id", env.Refusal.Next)
}

func TestJSONRefusalDiffuseKeepsMetrics(t *testing.T) {
	s := baseSettings()
	coverage := 0.4
	r := refusal.New(refusal.EDiffuse, "lower --threshold or inspect directly", "top contributors cover only 40 percent")
	o := verdict.Outcome{Kind: verdict.Refusal, Refusal: r, TotalChange: 10, MaxAbsDelta: 6, Coverage: &coverage}

	var buf bytes.Buffer
	assert.NoError(t, JSON(&buf, s, o))
	env := decode(t, &buf)

	assert.Equal(t, "REFUSAL", env.Outcome)
	assert.NotNil(t, env.Metrics)
	assert.Equal(t, 10.0, env.Metrics.TotalChange)
	assert.NotNil(t, env.Metrics.TopKCoverage)
	assert.Equal(t, 0.4, *env.Metrics.TopKCoverage)
	assert.Equal(t, string(refusal.EDiffuse), env.Refusal.Code)
}

func TestJSONKeyedAlignmentEncodesKeyColumn(t *testing.T) {
	s := baseSettings()
	s.Key = []byte("id")
	o := verdict.Outcome{Kind: verdict.NoRealChange}

	var buf bytes.Buffer
	assert.NoError(t, JSON(&buf, s, o))
	env := decode(t, &buf)

	assert.Equal(t, "key", env.Alignment.Mode)
	assert.NotNil(t, env.Alignment.KeyColumn)
	assert.Equal(t, "u8:id", *env.Alignment.KeyColumn)
}
