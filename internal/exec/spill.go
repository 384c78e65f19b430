package exec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dsnet/golib/memfile"
	"github.com/google/uuid"
	"github.com/yashagw/herondb/internal/record"
	"github.com/yashagw/herondb/internal/types"
)

// SpillFile is one disk-backed (or test-backed) partition of a grace hash
// join. Remove must release the backing storage and is called from the
// owning operator's Close, unconditionally.
type SpillFile interface {
	io.ReadWriteSeeker
	Remove() error
}

// SpillFactory allocates spill files. Factories are injected through
// Config so tests can substitute resource-tracked in-memory doubles.
type SpillFactory func() (SpillFile, error)

type tempSpillFile struct {
	*os.File
}

func (f *tempSpillFile) Remove() error {
	name := f.Name()
	f.File.Close()
	return os.Remove(name)
}

// TempSpillFactory backs spill files with files in the OS temp directory,
// uniquely named per partition.
func TempSpillFactory() SpillFactory {
	return func() (SpillFile, error) {
		path := filepath.Join(os.TempDir(), "herondb-spill-"+uuid.NewString())
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o600)
		if err != nil {
			return nil, fmt.Errorf("create spill file: %w", err)
		}
		return &tempSpillFile{File: f}, nil
	}
}

type memSpillFile struct {
	*memfile.File
}

func (f *memSpillFile) Remove() error {
	f.Truncate(0)
	return nil
}

// MemSpillFactory backs spill files with in-memory buffers. Intended for
// tests and small embedded uses where disk spill is undesirable.
func MemSpillFactory() SpillFactory {
	return func() (SpillFile, error) {
		return &memSpillFile{File: memfile.New(nil)}, nil
	}
}

// Row framing on a spill file: per value one kind byte, then the fixed
// 8-byte payload for numerics or a length-prefixed payload for text.
// A row starts with its value count.

type spillWriter struct {
	file SpillFile
	buf  *bufio.Writer
	rows int64
}

func newSpillWriter(file SpillFile) *spillWriter {
	return &spillWriter{file: file, buf: bufio.NewWriter(file)}
}

func (w *spillWriter) WriteRow(row record.Row) error {
	if err := binary.Write(w.buf, binary.LittleEndian, uint16(len(row))); err != nil {
		return fmt.Errorf("spill write: %w", err)
	}
	for _, v := range row {
		if err := writeValue(w.buf, v); err != nil {
			return fmt.Errorf("spill write: %w", err)
		}
	}
	w.rows++
	return nil
}

// Finish flushes buffered rows and rewinds the file for reading.
func (w *spillWriter) Finish() error {
	if err := w.buf.Flush(); err != nil {
		return fmt.Errorf("spill flush: %w", err)
	}
	if _, err := w.file.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("spill rewind: %w", err)
	}
	return nil
}

func writeValue(w io.Writer, v types.Value) error {
	if err := binary.Write(w, binary.LittleEndian, uint8(v.Kind())); err != nil {
		return err
	}
	switch v.Kind() {
	case types.KindInt64:
		return binary.Write(w, binary.LittleEndian, v.AsInt64())
	case types.KindFloat64:
		return binary.Write(w, binary.LittleEndian, v.AsFloat64())
	case types.KindText:
		s := v.AsText()
		if err := binary.Write(w, binary.LittleEndian, uint32(len(s))); err != nil {
			return err
		}
		_, err := w.Write([]byte(s))
		return err
	default:
		return nil
	}
}

type spillReader struct {
	buf *bufio.Reader
}

func newSpillReader(file SpillFile) *spillReader {
	return &spillReader{buf: bufio.NewReader(file)}
}

// ReadRow returns the next row, or (nil, nil) at end of file.
func (r *spillReader) ReadRow() (record.Row, error) {
	var count uint16
	if err := binary.Read(r.buf, binary.LittleEndian, &count); err != nil {
		if err == io.EOF {
			return nil, nil
		}
		return nil, fmt.Errorf("spill read: %w", err)
	}
	row := make(record.Row, count)
	for i := range row {
		v, err := readValue(r.buf)
		if err != nil {
			return nil, fmt.Errorf("spill read: %w", err)
		}
		row[i] = v
	}
	return row, nil
}

func readValue(r io.Reader) (types.Value, error) {
	var kind uint8
	if err := binary.Read(r, binary.LittleEndian, &kind); err != nil {
		return types.Value{}, err
	}
	switch types.Kind(kind) {
	case types.KindInt64:
		var v int64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return types.Value{}, err
		}
		return types.NewInt64Value(v), nil
	case types.KindFloat64:
		var v float64
		if err := binary.Read(r, binary.LittleEndian, &v); err != nil {
			return types.Value{}, err
		}
		return types.NewFloat64Value(v), nil
	case types.KindText:
		var n uint32
		if err := binary.Read(r, binary.LittleEndian, &n); err != nil {
			return types.Value{}, err
		}
		b := make([]byte, n)
		if _, err := io.ReadFull(r, b); err != nil {
			return types.Value{}, err
		}
		return types.NewTextValue(string(b)), nil
	default:
		return types.NewNullValue(), nil
	}
}

// rowBytes estimates a row's materialized size for memory accounting.
func rowBytes(row record.Row) int64 {
	size := int64(16)
	for _, v := range row {
		size += 16
		if v.Kind() == types.KindText {
			size += int64(len(v.AsText()))
		}
	}
	return size
}
