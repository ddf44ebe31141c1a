package batch

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/segmentio/parquet-go"
)

// recordReader yields input rows one at a time. A non-nil error with
// skip=true marks a malformed row that was consumed; io.EOF ends the stream.
type recordReader interface {
	Next() (rec Record, skip bool, err error)
	Close() error
}

func openReader(path string) (recordReader, error) {
	format, err := DetectFileFormat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open input: %w", err)
	}

	var reader recordReader
	switch format {
	case FormatCSV:
		reader, err = newCSVReader(file)
	case FormatJSON:
		reader, err = newJSONReader(file)
	case FormatParquet:
		reader, err = newParquetReader(file)
	}
	if err != nil {
		file.Close()
		return nil, err
	}
	return reader, nil
}

// csvReader reads files with an "id,text" header; extra columns are ignored
// and rows without an id get their row number
type csvReader struct {
	file    *os.File
	reader  *csv.Reader
	idCol   int
	textCol int
	row     int
}

func newCSVReader(file *os.File) (*csvReader, error) {
	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	r := &csvReader{file: file, reader: reader, idCol: -1, textCol: -1}
	for i, col := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(col, "\ufeff"))) {
		case "id":
			r.idCol = i
		case "text":
			r.textCol = i
		}
	}
	if r.textCol < 0 {
		return nil, fmt.Errorf("CSV header has no text column: %v", header)
	}
	return r, nil
}

func (r *csvReader) Next() (Record, bool, error) {
	fields, err := r.reader.Read()
	if err == io.EOF {
		return Record{}, false, io.EOF
	}
	r.row++
	if err != nil {
		return Record{}, true, fmt.Errorf("row %d: %w", r.row, err)
	}
	if r.textCol >= len(fields) {
		return Record{}, true, fmt.Errorf("row %d: missing text column", r.row)
	}

	rec := Record{Text: fields[r.textCol]}
	if r.idCol >= 0 && r.idCol < len(fields) {
		rec.ID = strings.TrimSpace(fields[r.idCol])
	}
	if rec.ID == "" {
		rec.ID = strconv.Itoa(r.row)
	}
	return rec, false, nil
}

func (r *csvReader) Close() error { return r.file.Close() }

// jsonReader accepts a JSON array of objects or one object per line
type jsonReader struct {
	file    *os.File
	decoder *json.Decoder
	array   bool
	row     int
}

func newJSONReader(file *os.File) (*jsonReader, error) {
	buffered := bufio.NewReader(file)
	r := &jsonReader{file: file}

	for {
		b, err := buffered.Peek(1)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read JSON input: %w", err)
		}
		if b[0] == ' ' || b[0] == '\n' || b[0] == '\r' || b[0] == '\t' {
			buffered.ReadByte()
			continue
		}
		r.array = b[0] == '['
		break
	}

	r.decoder = json.NewDecoder(buffered)
	if r.array {
		if _, err := r.decoder.Token(); err != nil {
			return nil, fmt.Errorf("failed to read JSON array: %w", err)
		}
	}
	return r, nil
}

func (r *jsonReader) Next() (Record, bool, error) {
	if r.array && !r.decoder.More() {
		return Record{}, false, io.EOF
	}

	var raw struct {
		ID   json.RawMessage `json:"id"`
		Text *string         `json:"text"`
	}
	err := r.decoder.Decode(&raw)
	if err == io.EOF {
		return Record{}, false, io.EOF
	}
	r.row++
	if err != nil {
		// the decoder cannot resynchronise after a syntax error
		if _, ok := err.(*json.SyntaxError); ok {
			return Record{}, false, fmt.Errorf("record %d: %w", r.row, err)
		}
		return Record{}, true, fmt.Errorf("record %d: %w", r.row, err)
	}
	if raw.Text == nil {
		return Record{}, true, fmt.Errorf("record %d: missing text field", r.row)
	}

	return Record{ID: jsonID(raw.ID, r.row), Text: *raw.Text}, false, nil
}

// jsonID accepts string or numeric ids
func jsonID(raw json.RawMessage, row int) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil && s != "" {
		return s
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil && n != "" {
		return n.String()
	}
	return strconv.Itoa(row)
}

func (r *jsonReader) Close() error { return r.file.Close() }

type parquetReader struct {
	file   *os.File
	reader *parquet.Reader
	row    int
}

func newParquetReader(file *os.File) (*parquetReader, error) {
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat Parquet file: %w", err)
	}
	pf, err := parquet.OpenFile(file, info.Size())
	if err != nil {
		return nil, fmt.Errorf("failed to open Parquet file: %w", err)
	}
	return &parquetReader{file: file, reader: parquet.NewReader(pf)}, nil
}

func (r *parquetReader) Next() (Record, bool, error) {
	var rec Record
	err := r.reader.Read(&rec)
	if err == io.EOF {
		return Record{}, false, io.EOF
	}
	r.row++
	if err != nil {
		return Record{}, false, fmt.Errorf("parquet row %d: %w", r.row, err)
	}
	if rec.ID == "" {
		rec.ID = strconv.Itoa(r.row)
	}
	return rec, false, nil
}

func (r *parquetReader) Close() error {
	r.reader.Close()
	return r.file.Close()
}
