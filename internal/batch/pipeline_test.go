package batch

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/raaihank/lexmask/internal/alias"
	"github.com/raaihank/lexmask/internal/config"
	"github.com/raaihank/lexmask/internal/logger"
	"github.com/raaihank/lexmask/internal/privacy"
	"github.com/raaihank/lexmask/internal/storage"
	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEngine(t *testing.T) *privacy.Engine {
	t.Helper()
	store, err := alias.Load(context.Background(), storage.NewMemoryStore(), "k", logger.Nop())
	require.NoError(t, err)
	e, err := privacy.New(config.GetDefaults().Privacy, store, nil, nil, logger.Nop())
	require.NoError(t, err)
	return e
}

func run(t *testing.T, e *privacy.Engine, mode Mode, columns []string, in, out string) *ProcessingResult {
	t.Helper()
	p, err := NewPipeline(e, Config{Mode: mode, Columns: columns}, logger.Nop())
	require.NoError(t, err)
	res, err := p.ProcessFile(context.Background(), in, out)
	require.NoError(t, err)
	return res
}

func TestCSVRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	input := "id,text,note\n1,Mail Jane Doe at jane@example.com,keep Jane Doe\n2,no secrets here,x\n3,jane@example.com again,y\n"
	require.NoError(t, os.WriteFile(in, []byte(input), 0o600))

	e := newEngine(t)
	masked := filepath.Join(dir, "masked.csv")
	res := run(t, e, ModeRedact, []string{"text"}, in, masked)
	assert.Equal(t, int64(3), res.TotalRecords)
	assert.Equal(t, int64(2), res.FieldsChanged)
	assert.Equal(t, 2, res.Findings["Email"])

	data, err := os.ReadFile(masked)
	require.NoError(t, err)
	assert.Equal(t, "id,text,note\n1,[Client_1] at [Email_1],keep Jane Doe\n2,no secrets here,x\n3,[Email_1] again,y\n", string(data))

	restored := filepath.Join(dir, "restored.csv")
	run(t, e, ModeRestore, []string{"text"}, masked, restored)
	data, err = os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, input, string(data))
}

func TestCSVMissingColumn(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(in, []byte("a,b\n1,2\n"), 0o600))

	p, err := NewPipeline(newEngine(t), Config{Mode: ModeRedact, Columns: []string{"text"}}, logger.Nop())
	require.NoError(t, err)
	_, err = p.ProcessFile(context.Background(), in, filepath.Join(dir, "out.csv"))
	assert.Error(t, err)
}

func TestJSONLines(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(`{"id":1,"body":"call 123-45-6789","title":"a@b.com"}`+"\n\n"+`{"id":2,"body":7}`+"\n"), 0o600))

	out := filepath.Join(dir, "out.jsonl")
	res := run(t, newEngine(t), ModeRedact, []string{"body"}, in, out)
	assert.Equal(t, int64(2), res.TotalRecords)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, `{"id":1,"body":"call [ID_1]","title":"a@b.com"}`+"\n"+`{"id":2,"body":7}`+"\n", string(data))
}

func TestJSONLinesKeepsUntouchedFields(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl")
	input := `{"text":"mail a@b.com","id":9007199254740993,"note":"x<y"}` + "\n"
	require.NoError(t, os.WriteFile(in, []byte(input), 0o600))

	e := newEngine(t)
	masked := filepath.Join(dir, "masked.jsonl")
	run(t, e, ModeRedact, []string{"text"}, in, masked)
	data, err := os.ReadFile(masked)
	require.NoError(t, err)
	assert.Equal(t, `{"text":"mail [Email_1]","id":9007199254740993,"note":"x<y"}`+"\n", string(data))

	restored := filepath.Join(dir, "restored.jsonl")
	run(t, e, ModeRestore, []string{"text"}, masked, restored)
	data, err = os.ReadFile(restored)
	require.NoError(t, err)
	assert.Equal(t, input, string(data))
}

func TestJSONLinesRejectsNonObject(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.jsonl")
	require.NoError(t, os.WriteFile(in, []byte(`["a@b.com"]`+"\n"), 0o600))

	p, err := NewPipeline(newEngine(t), Config{Mode: ModeRedact}, logger.Nop())
	require.NoError(t, err)
	_, err = p.ProcessFile(context.Background(), in, filepath.Join(dir, "out.jsonl"))
	assert.Error(t, err)
}

func TestOutputMustDifferFromInput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	input := "text\na@b.com\n"
	require.NoError(t, os.WriteFile(in, []byte(input), 0o600))

	p, err := NewPipeline(newEngine(t), Config{Mode: ModeRedact}, logger.Nop())
	require.NoError(t, err)
	_, err = p.ProcessFile(context.Background(), in, filepath.Join(dir, ".", "in.csv"))
	assert.Error(t, err)

	data, err := os.ReadFile(in)
	require.NoError(t, err)
	assert.Equal(t, input, string(data))
}

func TestParquetRoundTrip(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.parquet")

	f, err := os.Create(in)
	require.NoError(t, err)
	w := parquet.NewGenericWriter[Record](f)
	_, err = w.Write([]Record{
		{ID: 1, Text: "card 4111 1111 1111 1111"},
		{ID: 2, Text: "nothing"},
	})
	require.NoError(t, err)
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	e := newEngine(t)
	masked := filepath.Join(dir, "masked.parquet")
	res := run(t, e, ModeRedact, nil, in, masked)
	assert.Equal(t, int64(2), res.TotalRecords)
	assert.Equal(t, int64(1), res.FieldsChanged)

	rows := readParquet(t, masked)
	require.Len(t, rows, 2)
	assert.Equal(t, Record{ID: 1, Text: "card [Card_1]"}, rows[0])
	assert.Equal(t, Record{ID: 2, Text: "nothing"}, rows[1])

	restored := filepath.Join(dir, "restored.parquet")
	run(t, e, ModeRestore, nil, masked, restored)
	assert.Equal(t, "card 4111 1111 1111 1111", readParquet(t, restored)[0].Text)
}

func readParquet(t *testing.T, path string) []Record {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	reader := parquet.NewReader(f)
	defer reader.Close()

	var rows []Record
	for {
		var r Record
		if err := reader.Read(&r); err != nil {
			break
		}
		rows = append(rows, r)
	}
	return rows
}

func TestDryRunWritesNothing(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "in.csv")
	require.NoError(t, os.WriteFile(in, []byte("text\na@b.com\n"), 0o600))
	out := filepath.Join(dir, "out.csv")

	p, err := NewPipeline(newEngine(t), Config{Mode: ModeRedact, DryRun: true}, logger.Nop())
	require.NoError(t, err)
	res, err := p.ProcessFile(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.FieldsChanged)
	assert.NoFileExists(t, out)
}

func TestPipelineConfig(t *testing.T) {
	_, err := NewPipeline(newEngine(t), Config{Mode: "shred"}, logger.Nop())
	assert.Error(t, err)

	assert.Equal(t, FormatJSONL, DetectFileFormat("x.NDJSON"))
	assert.Equal(t, FormatUnknown, DetectFileFormat("x.xlsx"))
}
