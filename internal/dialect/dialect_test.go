package dialect

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScannerSimpleCSV(t *testing.T) {
	data := []byte("a,b,c\n1,2,3\n")
	s := NewScanner(data, 0, Dialect{Delimiter: ','})
	header, eof, err := s.ReadRecord()
	assert.NoError(t, err)
	assert.False(t, eof)
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b"), []byte("c")}, header)

	row, eof, err := s.ReadRecord()
	assert.NoError(t, err)
	assert.False(t, eof)
	assert.Equal(t, [][]byte{[]byte("1"), []byte("2"), []byte("3")}, row)

	assert.True(t, s.Done())
}

func TestScannerQuotedFieldWithDoubledQuote(t *testing.T) {
	data := []byte(`"say ""hi""",b` + "\n")
	s := NewScanner(data, 0, Dialect{Delimiter: ',', Escape: EscapeNone})
	fields, _, err := s.ReadRecord()
	assert.NoError(t, err)
	assert.Equal(t, `say "hi"`, string(fields[0]))
	assert.Equal(t, "b", string(fields[1]))
}

func TestScannerBackslashEscape(t *testing.T) {
	data := []byte(`"say \"hi\"",b` + "\n")
	s := NewScanner(data, 0, Dialect{Delimiter: ',', Escape: EscapeBackslash})
	fields, _, err := s.ReadRecord()
	assert.NoError(t, err)
	assert.Equal(t, `say "hi"`, string(fields[0]))
}

func TestScannerUnterminatedQuote(t *testing.T) {
	data := []byte(`"open`)
	s := NewScanner(data, 0, Dialect{Delimiter: ','})
	_, _, err := s.ReadRecord()
	assert.ErrorIs(t, err, ErrUnterminatedQuote)
}

func TestScannerStrayCharsAfterQuote(t *testing.T) {
	data := []byte(`"a"b,c` + "\n")
	s := NewScanner(data, 0, Dialect{Delimiter: ','})
	_, _, err := s.ReadRecord()
	assert.ErrorIs(t, err, ErrStrayCharsAfterQuote)
}

func TestScannerCRLFTermination(t *testing.T) {
	data := []byte("a,b\r\nc,d\r\n")
	s := NewScanner(data, 0, Dialect{Delimiter: ','})
	r1, _, _ := s.ReadRecord()
	r2, _, _ := s.ReadRecord()
	assert.Equal(t, [][]byte{[]byte("a"), []byte("b")}, r1)
	assert.Equal(t, [][]byte{[]byte("c"), []byte("d")}, r2)
}
