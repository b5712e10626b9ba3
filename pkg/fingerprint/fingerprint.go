// Package fingerprint computes line-ending independent content digests.
// Files pushed over FTP in text mode can change their line endings in
// transit, so digests are taken over the content with all CR and LF bytes
// removed. The raw byte size is tracked separately since it's still useful
// as a cheap comparison signal.
package fingerprint

import (
	"crypto/md5"
	"encoding/hex"
	"hash"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/stagecheck/stagecheck/pkg/errors"
)

// Fingerprint is the hex encoded digest of a file's normalized contents. The
// zero value means the fingerprint is unknown.
type Fingerprint string

// Unknown returns whether the fingerprint hasn't been computed.
func (fp Fingerprint) Unknown() bool {
	return fp == ""
}

// Digester computes the fingerprint of a stream. Write it like any other
// sink (e.g. as the destination of a remote fetch), then call Sum.
type Digester struct {
	hasher  hash.Hash
	rawSize int64
}

// NewDigester creates an empty Digester.
func NewDigester() *Digester {
	return &Digester{hasher: md5.New()}
}

// Write feeds a chunk of the stream into the digest. CR and LF bytes are
// dropped before hashing, but still count towards the raw size.
func (d *Digester) Write(p []byte) (int, error) {
	d.rawSize += int64(len(p))

	start := 0
	for i, b := range p {
		if b != '\r' && b != '\n' {
			continue
		}
		if start < i {
			d.hasher.Write(p[start:i])
		}
		start = i + 1
	}
	if start < len(p) {
		d.hasher.Write(p[start:])
	}
	return len(p), nil
}

// Sum returns the fingerprint of the bytes written so far, along with their
// raw (un-normalized) size.
func (d *Digester) Sum() (Fingerprint, int64) {
	return Fingerprint(hex.EncodeToString(d.hasher.Sum(nil))), d.rawSize
}

// Reader consumes r and returns its fingerprint and raw size.
func Reader(r io.Reader) (Fingerprint, int64, error) {
	digester := NewDigester()
	if _, err := io.Copy(digester, r); err != nil {
		return "", 0, errors.WithContext(err, "read")
	}

	fp, size := digester.Sum()
	return fp, size, nil
}

// Bytes returns the fingerprint and raw size of the given contents.
func Bytes(contents []byte) (Fingerprint, int64) {
	digester := NewDigester()
	digester.Write(contents)
	return digester.Sum()
}

// LineTrimmed returns a fingerprint that also ignores leading and trailing
// whitespace on each line. It's more forgiving than the standard
// normalization (e.g. it ignores trailing spaces and indentation changes on
// otherwise identical lines), so it's only used for ad hoc comparisons,
// never for deployment decisions. Contents that aren't valid UTF-8 fall
// back to the standard normalization.
func LineTrimmed(contents []byte) Fingerprint {
	if !utf8.Valid(contents) {
		fp, _ := Bytes(contents)
		return fp
	}

	text := strings.ReplaceAll(string(contents), "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")

	hasher := md5.New()
	for _, line := range strings.Split(text, "\n") {
		io.WriteString(hasher, strings.TrimSpace(line))
	}
	return Fingerprint(hex.EncodeToString(hasher.Sum(nil)))
}
