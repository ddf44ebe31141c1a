package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/raaihank/pii-scrubber/internal/config"
	"github.com/raaihank/pii-scrubber/internal/logger"
	"github.com/raaihank/pii-scrubber/internal/privacy"
	"github.com/raaihank/pii-scrubber/internal/stats"
	"github.com/raaihank/pii-scrubber/internal/websocket"
	"github.com/segmentio/parquet-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []websocket.RedactionEvent
}

func (r *recordingPublisher) BroadcastRedaction(ev websocket.RedactionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func newTestPipeline(t *testing.T, cfg config.BatchConfig, opts ...Option) *Pipeline {
	t.Helper()
	scrubber, err := privacy.New(config.PrivacyConfig{DefaultMode: "placeholder"}, logger.NewNop(), nil)
	require.NoError(t, err)
	return NewPipeline(scrubber, privacy.ModePlaceholder, cfg, logger.NewNop(), opts...)
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func readJSONOutput(t *testing.T, path string) []OutputRecord {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []OutputRecord
	require.NoError(t, json.Unmarshal(data, &out))
	return out
}

func TestProcessCSVToJSON(t *testing.T) {
	in := writeFile(t, "in.csv", "id,text\n"+
		"a,\"Email john.smith@example.com, call 555 1234\"\n"+
		"b,Meeting in London on 2024-03-01 at 14:30\n"+
		",nothing here\n")
	out := filepath.Join(t.TempDir(), "out.json")

	p := newTestPipeline(t, config.BatchConfig{BatchSize: 2, WorkerCount: 2})
	result, err := p.ProcessFile(context.Background(), in, out)
	require.NoError(t, err)

	assert.Equal(t, int64(3), result.TotalRecords)
	assert.Equal(t, int64(3), result.Processed)
	assert.Zero(t, result.Failed)
	assert.Equal(t, int64(5), result.Entities)
	assert.Equal(t, int64(1), result.Counts["LOCATION"])

	rows := readJSONOutput(t, out)
	require.Len(t, rows, 3)
	assert.Equal(t, OutputRecord{ID: "a", Redacted: "Email [EMAIL], call [PHONE]", EntityCount: 2, Categories: "EMAIL,PHONE"}, rows[0])
	assert.Equal(t, OutputRecord{ID: "b", Redacted: "Meeting in [LOCATION] on [DATE] at [TIME]", EntityCount: 3, Categories: "LOCATION,DATE,TIME"}, rows[1])
	assert.Equal(t, OutputRecord{ID: "3", Redacted: "nothing here", EntityCount: 0, Categories: ""}, rows[2])
}

func TestProcessPreservesOrder(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("text,id\n")
	for i := 0; i < 50; i++ {
		fmt.Fprintf(&sb, "user%d@example.com,%d\n", i, i)
	}
	in := writeFile(t, "in.csv", sb.String())
	out := filepath.Join(t.TempDir(), "out.json")

	p := newTestPipeline(t, config.BatchConfig{BatchSize: 7, WorkerCount: 4, ProgressReport: 10})
	result, err := p.ProcessFile(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, int64(50), result.Processed)

	rows := readJSONOutput(t, out)
	require.Len(t, rows, 50)
	for i, row := range rows {
		assert.Equal(t, fmt.Sprint(i), row.ID)
		assert.Equal(t, "[EMAIL]", row.Redacted)
	}
}

func TestProcessJSONLinesSkipsMalformedRecords(t *testing.T) {
	in := writeFile(t, "in.jsonl", `{"id": 1, "text": "ip 10.0.0.1"}
{"id": "x", "text": 7}
{"id": "y"}
{"text": "https://example.com"}
`)
	out := filepath.Join(t.TempDir(), "out.json")

	result, err := newTestPipeline(t, config.BatchConfig{BatchSize: 10, WorkerCount: 2}).ProcessFile(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, int64(4), result.TotalRecords)
	assert.Equal(t, int64(2), result.Processed)
	assert.Equal(t, int64(2), result.Failed)
	assert.Len(t, result.Errors, 2)

	rows := readJSONOutput(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, OutputRecord{ID: "1", Redacted: "ip [IP_ADDRESS]", EntityCount: 1, Categories: "IP_ADDRESS"}, rows[0])
	assert.Equal(t, OutputRecord{ID: "4", Redacted: "[URL]", EntityCount: 1, Categories: "URL"}, rows[1])
}

func TestProcessJSONArrayToParquet(t *testing.T) {
	in := writeFile(t, "in.json", `[
  {"id": "r1", "text": "Card 4485-9901-6622-3300"},
  {"id": "r2", "text": "plain"}
]`)
	out := filepath.Join(t.TempDir(), "out.parquet")

	result, err := newTestPipeline(t, config.BatchConfig{BatchSize: 1, WorkerCount: 1}).ProcessFile(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Processed)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer f.Close()
	info, err := f.Stat()
	require.NoError(t, err)
	pf, err := parquet.OpenFile(f, info.Size())
	require.NoError(t, err)

	reader := parquet.NewReader(pf)
	defer reader.Close()

	var rows []OutputRecord
	for {
		var row OutputRecord
		err := reader.Read(&row)
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		rows = append(rows, row)
	}
	require.Len(t, rows, 2)
	assert.Equal(t, "r1", rows[0].ID)
	assert.Equal(t, "Card [CARD_NUMBER]", rows[0].Redacted)
	assert.Equal(t, "plain", rows[1].Redacted)
}

func TestProcessParquetInput(t *testing.T) {
	in := filepath.Join(t.TempDir(), "in.parquet")
	f, err := os.Create(in)
	require.NoError(t, err)
	w := parquet.NewWriter(f, parquet.SchemaOf(new(Record)))
	require.NoError(t, w.Write(&Record{ID: "p1", Text: "mail a@b.io"}))
	require.NoError(t, w.Write(&Record{ID: "p2", Text: "at 09:15"}))
	require.NoError(t, w.Close())
	require.NoError(t, f.Close())

	out := filepath.Join(t.TempDir(), "out.json")
	store := stats.NewMemoryStore()
	pub := &recordingPublisher{}

	result, err := newTestPipeline(t, config.BatchConfig{BatchSize: 10, WorkerCount: 2}, WithStats(store), WithPublisher(pub)).
		ProcessFile(context.Background(), in, out)
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Processed)

	rows := readJSONOutput(t, out)
	require.Len(t, rows, 2)
	assert.Equal(t, "mail [EMAIL]", rows[0].Redacted)
	assert.Equal(t, "at [TIME]", rows[1].Redacted)

	snap, _ := store.Snapshot(context.Background())
	assert.Equal(t, map[string]int64{"EMAIL": 1, "TIME": 1}, snap)

	require.Len(t, pub.events, 1)
	assert.Equal(t, "batch", pub.events[0].Source)
	assert.Equal(t, 2, pub.events[0].TotalEntities)
}

func TestProcessEmptyInputWritesEmptyArray(t *testing.T) {
	in := writeFile(t, "in.csv", "id,text\n")
	out := filepath.Join(t.TempDir(), "out.json")

	result, err := newTestPipeline(t, config.BatchConfig{}).ProcessFile(context.Background(), in, out)
	require.NoError(t, err)
	assert.Zero(t, result.TotalRecords)
	assert.Empty(t, readJSONOutput(t, out))
}

func TestProcessRejectsUnsupportedFormats(t *testing.T) {
	p := newTestPipeline(t, config.BatchConfig{})
	dir := t.TempDir()

	_, err := p.ProcessFile(context.Background(), writeFile(t, "in.xlsx", ""), filepath.Join(dir, "out.json"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = p.ProcessFile(context.Background(), writeFile(t, "in.csv", "id,text\n"), filepath.Join(dir, "out.csv"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = p.ProcessFile(context.Background(), writeFile(t, "in.csv", "id,body\n1,x\n"), filepath.Join(dir, "out.json"))
	assert.ErrorContains(t, err, "no text column")
}

func TestProcessHonoursCancellation(t *testing.T) {
	in := writeFile(t, "in.csv", "id,text\n1,a\n2,b\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestPipeline(t, config.BatchConfig{}).ProcessFile(ctx, in, filepath.Join(t.TempDir(), "out.json"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectFileFormat(t *testing.T) {
	tests := map[string]FileFormat{
		"a.csv":     FormatCSV,
		"A.PARQUET": FormatParquet,
		"a.json":    FormatJSON,
		"a.jsonl":   FormatJSON,
	}
	for name, want := range tests {
		got, err := DetectFileFormat(name)
		require.NoError(t, err)
		assert.Equal(t, want, got, name)
	}

	_, err := DetectFileFormat("a.txt")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}
