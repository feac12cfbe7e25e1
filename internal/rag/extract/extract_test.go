package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupported(t *testing.T) {
	for _, name := range []string{"a.pdf", "b.TXT", "c.text", "d.md", "e.Markdown"} {
		assert.True(t, Supported(name), name)
	}
	for _, name := range []string{"a.docx", "noext", "x.pdf.exe"} {
		assert.False(t, Supported(name), name)
	}
	assert.Equal(t, []string{".markdown", ".md", ".pdf", ".text", ".txt"}, Extensions())
}

func TestExtract_Text(t *testing.T) {
	text, err := Extract("notes.md", []byte("\xEF\xBB\xBF# Title\r\nbody\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "# Title\nbody\n", text)
}

func TestExtract_Errors(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		wantIs   error
	}{
		{name: "unsupported", filename: "a.docx", data: []byte("x"), wantIs: ErrUnsupported},
		{name: "empty file", filename: "a.txt", data: nil, wantIs: ErrEmpty},
		{name: "whitespace only", filename: "a.txt", data: []byte(" \n\t "), wantIs: ErrEmpty},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Extract(tt.filename, tt.data)
			assert.ErrorIs(t, err, tt.wantIs)
		})
	}
}

func TestExtract_InvalidUTF8(t *testing.T) {
	_, err := Extract("a.txt", []byte{0xff, 0xfe, 0xfd})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnsupported)
}

func TestExtract_BrokenPDF(t *testing.T) {
	_, err := Extract("a.pdf", []byte("%PDF-1.4 this is not really a pdf"))
	assert.Error(t, err)
}
