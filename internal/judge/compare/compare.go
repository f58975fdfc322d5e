// Package compare implements streaming byte-exact output comparison.
package compare

import (
	"bytes"
	"io"
	"os"
	"strings"
	"unicode/utf8"
)

const (
	chunkSize    = 64 * 1024
	previewBytes = 200
)

// Diagnostic carries bounded previews of both files and the byte offset of
// the first differing byte. MismatchPos is nil when the files are equal.
type Diagnostic struct {
	ExpectedPreview string `json:"expected_preview"`
	ActualPreview   string `json:"actual_preview"`
	MismatchPos     *int64 `json:"mismatch_pos"`
}

// Files compares two files chunk by chunk without ever loading either fully.
// Equality is byte-exact; no whitespace normalization happens here.
func Files(expectedPath, actualPath string) (bool, Diagnostic, error) {
	diag := Diagnostic{}
	var err error
	diag.ExpectedPreview, err = Preview(expectedPath, previewBytes)
	if err != nil {
		return false, diag, err
	}
	diag.ActualPreview, err = Preview(actualPath, previewBytes)
	if err != nil {
		return false, diag, err
	}

	exp, err := os.Open(expectedPath)
	if err != nil {
		return false, diag, err
	}
	defer exp.Close()
	act, err := os.Open(actualPath)
	if err != nil {
		return false, diag, err
	}
	defer act.Close()

	expBuf := make([]byte, chunkSize)
	actBuf := make([]byte, chunkSize)
	var offset int64
	for {
		expN, expErr := io.ReadFull(exp, expBuf)
		actN, actErr := io.ReadFull(act, actBuf)
		if expErr != nil && expErr != io.EOF && expErr != io.ErrUnexpectedEOF {
			return false, diag, expErr
		}
		if actErr != nil && actErr != io.EOF && actErr != io.ErrUnexpectedEOF {
			return false, diag, actErr
		}
		if expN == 0 && actN == 0 {
			return true, diag, nil
		}
		if expN != actN || !bytes.Equal(expBuf[:expN], actBuf[:actN]) {
			shorter := expN
			if actN < shorter {
				shorter = actN
			}
			i := 0
			for i < shorter && expBuf[i] == actBuf[i] {
				i++
			}
			pos := offset + int64(i)
			diag.MismatchPos = &pos
			return false, diag, nil
		}
		offset += int64(expN)
	}
}

// Preview reads up to limit bytes from path and returns them as lossy UTF-8.
func Preview(path string, limit int) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()
	buf := make([]byte, limit)
	n, err := io.ReadFull(file, buf)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	return LossyUTF8(buf[:n]), nil
}

// LossyUTF8 converts bytes to a string, replacing invalid sequences.
func LossyUTF8(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
