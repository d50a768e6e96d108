package coupling

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
)

// Encoding selects how a record file is written.
type Encoding struct {
	// Binary writes the numeric payload as raw little-endian float64 values
	// instead of text.
	Binary bool
	// Gzip compresses the whole file and appends ".gz" to its name.
	Gzip bool
}

// Format renders one tuple as a line of text. The first column uses
// LeadDigits significant digits and the others RestDigits.
type Format struct {
	Indent     string
	Paren      bool
	LeadDigits int
	RestDigits int
}

var (
	// tableFormat is used for the internal coupling tables: "    (t v1 v2)".
	tableFormat  = Format{Indent: "    ", Paren: true, LeadDigits: 6, RestDigits: 12}
	heightFormat = Format{Indent: "    ", LeadDigits: 6}
	vectorFormat = Format{Paren: true, LeadDigits: 6, RestDigits: 6}
	scalarFormat = Format{LeadDigits: 6}
)

func (f Format) appendTuple(dst []byte, tuple []float64) []byte {
	dst = append(dst, f.Indent...)
	if f.Paren {
		dst = append(dst, '(')
	}
	for i, v := range tuple {
		if i == 0 {
			dst = strconv.AppendFloat(dst, v, 'g', f.LeadDigits, 64)
			continue
		}
		dst = append(dst, ' ')
		dst = strconv.AppendFloat(dst, v, 'g', f.RestDigits, 64)
	}
	if f.Paren {
		dst = append(dst, ')')
	}
	return append(dst, '\n')
}

// Block is an ordered run of fixed-arity tuples stored row-major, with
// literal text written before and after it.
type Block struct {
	Header string
	Footer string
	Arity  int
	Values []float64
	Format Format
}

// Len returns the number of tuples in the block.
func (b Block) Len() int {
	if b.Arity == 0 {
		return 0
	}
	return len(b.Values) / b.Arity
}

func (b Block) check() error {
	if b.Arity <= 0 || len(b.Values)%b.Arity != 0 {
		return fmt.Errorf("block of %d values does not split into tuples of %d", len(b.Values), b.Arity)
	}
	return nil
}

// writeText writes the header line, one line per tuple and the footer line.
// Empty header or footer lines are left out.
func writeText(w io.Writer, b Block) error {
	if err := b.check(); err != nil {
		return err
	}
	var line []byte
	if b.Header != "" {
		if _, err := io.WriteString(w, b.Header+"\n"); err != nil {
			return err
		}
	}
	for i := 0; i < len(b.Values); i += b.Arity {
		line = b.Format.appendTuple(line[:0], b.Values[i:i+b.Arity])
		if _, err := w.Write(line); err != nil {
			return err
		}
	}
	if b.Footer != "" {
		if _, err := io.WriteString(w, b.Footer+"\n"); err != nil {
			return err
		}
	}
	return nil
}

// writeBinary writes the header as text, the tuples as raw row-major
// float64 values and the parenthesis that closes the list. The footer is
// not written.
func writeBinary(w io.Writer, b Block) error {
	if err := b.check(); err != nil {
		return err
	}
	if _, err := io.WriteString(w, b.Header); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, b.Values); err != nil {
		return err
	}
	_, err := io.WriteString(w, ")")
	return err
}

// RecordFile is an output file that blocks of records are written to.
type RecordFile struct {
	path string
	enc  Encoding
	f    *os.File
	zw   *gzip.Writer
	bw   *bufio.Writer
}

// CreateRecordFile creates or truncates the file at path, creating parent
// directories as needed. With enc.Gzip the path gets a ".gz" suffix.
func CreateRecordFile(path string, enc Encoding) (*RecordFile, error) {
	if enc.Gzip && !strings.HasSuffix(path, ".gz") {
		path += ".gz"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	rf := &RecordFile{path: path, enc: enc, f: f}
	if enc.Gzip {
		rf.zw = gzip.NewWriter(f)
		rf.bw = bufio.NewWriter(rf.zw)
	} else {
		rf.bw = bufio.NewWriter(f)
	}
	return rf, nil
}

// Path returns the path of the file, including any ".gz" suffix.
func (rf *RecordFile) Path() string {
	return rf.path
}

// WriteBlock writes b in the file's encoding.
func (rf *RecordFile) WriteBlock(b Block) error {
	if rf.enc.Binary {
		return writeBinary(rf.bw, b)
	}
	return writeText(rf.bw, b)
}

// WriteString writes s verbatim.
func (rf *RecordFile) WriteString(s string) error {
	_, err := rf.bw.WriteString(s)
	return err
}

// Close flushes buffered data, finishes the gzip stream and closes the file.
func (rf *RecordFile) Close() error {
	err := rf.bw.Flush()
	if rf.zw != nil {
		if zerr := rf.zw.Close(); err == nil {
			err = zerr
		}
	}
	if ferr := rf.f.Close(); err == nil {
		err = ferr
	}
	if err != nil {
		return fmt.Errorf("cannot write %s: %w", rf.path, err)
	}
	return nil
}

// writeRecordFile creates path and fills it with write.
func writeRecordFile(path string, enc Encoding, write func(*RecordFile) error) (string, error) {
	rf, err := CreateRecordFile(path, enc)
	if err != nil {
		return "", err
	}
	if err := write(rf); err != nil {
		err = fmt.Errorf("cannot write %s: %w", rf.Path(), err)
		if cerr := rf.Close(); cerr != nil {
			err = errors.Join(err, cerr)
		}
		if rerr := os.Remove(rf.Path()); rerr != nil {
			err = errors.Join(err, rerr)
		}
		return rf.Path(), err
	}
	return rf.Path(), rf.Close()
}
