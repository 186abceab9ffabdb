package sandbox

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleFullResults() map[string]Frame {
	return map[string]Frame{
		"1_sql": {
			{"id": "u1", "status": "ACTIVE", "score": 3.0},
			{"id": "u2", "status": "INACTIVE", "score": 1.0},
			{"id": "u3", "status": "ACTIVE", "score": 9.0},
		},
	}
}

func runScript(t *testing.T, script string) any {
	t.Helper()
	interp := NewInterp(context.Background(), sampleFullResults(), nil)
	out, err := interp.Run(script)
	require.NoError(t, err)
	return out
}

func TestInterpFilterSelectLimit(t *testing.T) {
	out := runScript(t, `
result = full_results["1_sql"].filter(pl.col("status") == "ACTIVE").select(["id","score"]).limit(5)
print_results(result.to_dicts())
`)
	rows, ok := out.([]map[string]any)
	require.True(t, ok)
	assert.Len(t, rows, 2)
	for _, r := range rows {
		assert.NotContains(t, r, "status")
	}
}

func TestInterpSortDesc(t *testing.T) {
	out := runScript(t, `
result = full_results["1_sql"].sort("score", true)
print_results(result.to_dicts())
`)
	rows := out.([]map[string]any)
	require.Len(t, rows, 3)
	assert.Equal(t, "u3", rows[0]["id"])
}

func TestInterpCount(t *testing.T) {
	out := runScript(t, `
result = full_results["1_sql"].filter(pl.col("status") == "ACTIVE").count()
print_results(result.to_dicts())
`)
	rows := out.([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, 2, rows[0]["count"])
}

func TestInterpGroupByAggregate(t *testing.T) {
	out := runScript(t, `
grouped = full_results["1_sql"].group_by("status")
result = grouped.aggregate("score", "sum")
print_results(result.to_dicts())
`)
	rows := out.([]map[string]any)
	assert.Len(t, rows, 2)
}

func TestInterpAndCombinator(t *testing.T) {
	out := runScript(t, `
result = full_results["1_sql"].filter(pl.col("status") == "ACTIVE" & pl.col("score") > 5).to_dicts()
print_results(result)
`)
	rows := out.([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "u3", rows[0]["id"])
}

func TestInterpDistinctAndJoin(t *testing.T) {
	interp := NewInterp(context.Background(), map[string]Frame{
		"1_sql": {{"id": "u1", "status": "ACTIVE"}, {"id": "u1", "status": "ACTIVE"}},
		"2_api": {{"id": "u1", "group": "admins"}},
	}, nil)
	out, err := interp.Run(`
dedup = full_results["1_sql"].distinct(["id"])
joined = dedup.join(full_results["2_api"], "id", "inner")
print_results(joined.to_dicts())
`)
	require.NoError(t, err)
	rows := out.([]map[string]any)
	require.Len(t, rows, 1)
	assert.Equal(t, "admins", rows[0]["group"])
}

func TestInterpUnknownSlotFails(t *testing.T) {
	interp := NewInterp(context.Background(), sampleFullResults(), nil)
	_, err := interp.Run(`
result = full_results["9_sql"]
print_results(result)
`)
	assert.Error(t, err)
}

func TestInterpNonWhitelistedMethodFails(t *testing.T) {
	interp := NewInterp(context.Background(), sampleFullResults(), nil)
	_, err := interp.Run(`
result = full_results["1_sql"].delete_all()
print_results(result)
`)
	assert.Error(t, err)
}

func TestInterpMissingPrintResultsFails(t *testing.T) {
	interp := NewInterp(context.Background(), sampleFullResults(), nil)
	_, err := interp.Run(`result = full_results["1_sql"]`)
	assert.Error(t, err)
}

type stubAPIClient struct {
	frame Frame
	err   error
}

func (s *stubAPIClient) Call(ctx context.Context, entity, operation string, params map[string]any) (Frame, error) {
	return s.frame, s.err
}

func TestInterpAPICallBuiltin(t *testing.T) {
	api := &stubAPIClient{frame: Frame{{"id": "g1"}}}
	interp := NewInterp(context.Background(), map[string]Frame{}, api)
	out, err := interp.Run(`
result = api_call("group", "list", "{}")
print_results(result)
`)
	require.NoError(t, err)
	frame, ok := out.(Frame)
	require.True(t, ok)
	assert.Equal(t, "g1", frame[0]["id"])
}

func TestWriteAndExtractQueryResultsRoundTrip(t *testing.T) {
	framed, err := writeQueryResults([]map[string]any{{"a": 1}})
	require.NoError(t, err)

	raw, err := extractQueryResults(append([]byte("some debug log line\n"), framed...))
	require.NoError(t, err)

	var decoded []map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, float64(1), decoded[0]["a"])
}

func TestExtractQueryResultsMissingBlock(t *testing.T) {
	_, err := extractQueryResults([]byte("just some log output\n"))
	assert.Error(t, err)
}
