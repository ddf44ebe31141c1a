package batch

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"

	"github.com/segmentio/parquet-go"
)

// recordWriter persists output rows in input order
type recordWriter interface {
	Write(rec OutputRecord) error
	Close() error
}

func createWriter(path string) (recordWriter, error) {
	format, err := DetectFileFormat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, path)
	}
	if format == FormatCSV {
		return nil, fmt.Errorf("%w: output must be .parquet or .json", ErrUnsupportedFormat)
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create output: %w", err)
	}

	if format == FormatParquet {
		return &parquetWriter{
			file:   file,
			writer: parquet.NewWriter(file, parquet.SchemaOf(new(OutputRecord))),
		}, nil
	}
	return newJSONWriter(file), nil
}

type parquetWriter struct {
	file   *os.File
	writer *parquet.Writer
}

func (w *parquetWriter) Write(rec OutputRecord) error {
	return w.writer.Write(&rec)
}

func (w *parquetWriter) Close() error {
	if err := w.writer.Close(); err != nil {
		w.file.Close()
		return fmt.Errorf("failed to finalize Parquet output: %w", err)
	}
	return w.file.Close()
}

// jsonWriter streams a JSON array, one object per line
type jsonWriter struct {
	file  *os.File
	buf   *bufio.Writer
	count int
}

func newJSONWriter(file *os.File) *jsonWriter {
	return &jsonWriter{file: file, buf: bufio.NewWriter(file)}
}

func (w *jsonWriter) Write(rec OutputRecord) error {
	b, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	sep := ",\n  "
	if w.count == 0 {
		sep = "[\n  "
	}
	if _, err := w.buf.WriteString(sep); err != nil {
		return err
	}
	_, err = w.buf.Write(b)
	w.count++
	return err
}

func (w *jsonWriter) Close() error {
	tail := "\n]\n"
	if w.count == 0 {
		tail = "[]\n"
	}
	if _, err := w.buf.WriteString(tail); err != nil {
		w.file.Close()
		return err
	}
	if err := w.buf.Flush(); err != nil {
		w.file.Close()
		return err
	}
	return w.file.Close()
}
