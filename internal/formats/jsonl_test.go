package formats

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketcore/internal/errors"
	"marketcore/pkg/contracts/domain"
)

func readJSON(t *testing.T, content string) (*domain.NormalizedTable, error) {
	t.Helper()
	f := &JSONLinesFormat{}
	return f.Read(context.Background(), domain.SourceDescriptor{Path: "test.jsonl"}, []byte(content))
}

func TestJSONLinesFormat_Read(t *testing.T) {
	tbl, err := readJSON(t, `{"ts":"2024-01-02T00:00:00Z","close":10,"volume":100,"note":"a"}
{"ts":"2024-01-03T00:00:00Z","close":10.5,"volume":200,"extra":true}
`)
	require.NoError(t, err)

	assert.Equal(t, domain.Signature{
		{Name: "ts", Type: domain.TypeTimestamp},
		{Name: "close", Type: domain.TypeFloat},
		{Name: "volume", Type: domain.TypeInteger},
		{Name: "note", Type: domain.TypeText},
		{Name: "extra", Type: domain.TypeBoolean},
	}, tbl.Signature())
	assert.Equal(t, 10.0, tbl.Value(1, 0))
	assert.Nil(t, tbl.Value(3, 1))
	assert.Nil(t, tbl.Value(4, 0))
}

func TestJSONLinesFormat_Array(t *testing.T) {
	tbl, err := readJSON(t, `[{"a":1},{"a":2}]`)
	require.NoError(t, err)
	assert.Equal(t, 2, tbl.NumRows())
	assert.Equal(t, int64(2), tbl.Value(0, 1))
}

func TestJSONLinesFormat_MixedKindsBecomeText(t *testing.T) {
	tbl, err := readJSON(t, "{\"a\":1}\n{\"a\":\"x\"}\n{\"a\":{\"k\":1}}\n")
	require.NoError(t, err)
	assert.Equal(t, domain.TypeText, tbl.ColumnType(0))
	assert.Equal(t, "1", tbl.Value(0, 0))
	assert.Equal(t, `{"k":1}`, tbl.Value(0, 2))
}

func TestJSONLinesFormat_Errors(t *testing.T) {
	tests := []struct {
		name    string
		content string
		line    int
	}{
		{name: "no records", content: "\n\n"},
		{name: "not an object", content: "{\"a\":1}\n5\n", line: 2},
		{name: "truncated", content: "{\"a\":1}\n{\"a\":", line: 2},
		{name: "csv text", content: "a,b\n1,2\n", line: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tbl, err := readJSON(t, tt.content)
			require.Error(t, err)
			assert.Nil(t, tbl)

			var re *errors.ReadError
			require.ErrorAs(t, err, &re)
			if tt.line > 0 {
				assert.Equal(t, tt.line, re.Line)
			}
		})
	}
}
