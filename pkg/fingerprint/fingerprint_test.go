package fingerprint

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBytesIgnoresLineEndings(t *testing.T) {
	unixFp, unixSize := Bytes([]byte("first line\nsecond line\n"))

	tests := []struct {
		name     string
		contents string
		expSize  int64
	}{
		{"Windows", "first line\r\nsecond line\r\n", 25},
		{"OldMac", "first line\rsecond line\r", 23},
		{"NoTrailingNewline", "first line\nsecond line", 22},
		{"Mixed", "first line\r\nsecond line\n", 24},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fp, size := Bytes([]byte(test.contents))
			assert.Equal(t, unixFp, fp,
				"line ending changes shouldn't affect the fingerprint")
			assert.Equal(t, test.expSize, size,
				"the raw size should count every byte")
		})
	}

	assert.Equal(t, int64(23), unixSize)

	differentFp, _ := Bytes([]byte("first line\nsecond lime\n"))
	assert.NotEqual(t, unixFp, differentFp)
}

func TestDigesterChunking(t *testing.T) {
	contents := "chunk one\r\nchunk two\r\nchunk three"

	oneShot, oneShotSize := Bytes([]byte(contents))

	// Write a byte at a time so every CRLF pair is split across writes.
	digester := NewDigester()
	for i := 0; i < len(contents); i++ {
		n, err := digester.Write([]byte{contents[i]})
		require.NoError(t, err)
		require.Equal(t, 1, n)
	}

	chunked, chunkedSize := digester.Sum()
	assert.Equal(t, oneShot, chunked)
	assert.Equal(t, oneShotSize, chunkedSize)
}

func TestEmptyContents(t *testing.T) {
	fp, size := Bytes(nil)
	assert.False(t, fp.Unknown())
	assert.Zero(t, size)

	newlinesOnly, newlinesSize := Bytes([]byte("\r\n\n\r"))
	assert.Equal(t, fp, newlinesOnly,
		"contents made of only line endings should hash like empty contents")
	assert.Equal(t, int64(4), newlinesSize)
}

func TestReader(t *testing.T) {
	contents := "<?php\r\necho 'hello';\r\n"
	expFp, expSize := Bytes([]byte(contents))

	fp, size, err := Reader(strings.NewReader(contents))
	require.NoError(t, err)
	assert.Equal(t, expFp, fp)
	assert.Equal(t, expSize, size)
}

func TestLineTrimmed(t *testing.T) {
	base := LineTrimmed([]byte("if (x) {\n    doThing();\n}\n"))

	tests := []struct {
		name     string
		contents string
		expMatch bool
	}{
		{"TrailingSpaces", "if (x) {  \n    doThing();\t\n}\n", true},
		{"IndentationChange", "if (x) {\n\tdoThing();\n}\n", true},
		{"WindowsEndings", "if (x) {\r\n    doThing();\r\n}\r\n", true},
		{"ChangedToken", "if (y) {\n    doThing();\n}\n", false},
		{"SpaceInsideLine", "if (x) {\n    do Thing();\n}\n", false},
	}

	for _, test := range tests {
		test := test
		t.Run(test.name, func(t *testing.T) {
			fp := LineTrimmed([]byte(test.contents))
			if test.expMatch {
				assert.Equal(t, base, fp)
			} else {
				assert.NotEqual(t, base, fp)
			}
		})
	}
}

func TestLineTrimmedBinaryFallback(t *testing.T) {
	binary := []byte{0x89, 0x50, 0x4e, 0x47, 0xff, 0x0d, 0x0a, 0xfe}
	expFp, _ := Bytes(binary)
	assert.Equal(t, expFp, LineTrimmed(binary))
}
