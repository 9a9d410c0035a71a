package audit

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

// Digest computes the whole-log digest: SHA-256 over the exact canonical bytes,
// hex-encoded.
//
// The input must already be a finalized log (sorted, newline-terminated). Any
// third party holding the seeds and params can recompute it.
func Digest(log []byte) string {
	sum := sha256.Sum256(log)
	return hex.EncodeToString(sum[:])
}

// FirstDifference returns the 1-based number of the first line at which a and b
// differ, or 0 if they are byte-identical.
//
// A log that is a strict prefix of the other differs at the first line the
// shorter one lacks.
func FirstDifference(a, b []byte) int {
	if bytes.Equal(a, b) {
		return 0
	}
	la := bytes.SplitAfter(a, []byte{'\n'})
	lb := bytes.SplitAfter(b, []byte{'\n'})
	n := len(la)
	if len(lb) < n {
		n = len(lb)
	}
	for i := 0; i < n; i++ {
		if !bytes.Equal(la[i], lb[i]) {
			return i + 1
		}
	}
	return n + 1
}

// SplitLines splits a finalized log into its lines, without newlines.
// The log must be empty or end with a newline.
func SplitLines(log []byte) ([][]byte, error) {
	if len(log) == 0 {
		return nil, nil
	}
	if log[len(log)-1] != '\n' {
		return nil, errors.New("log does not end with a newline")
	}
	lines := bytes.Split(log[:len(log)-1], []byte{'\n'})
	for i, l := range lines {
		if len(l) == 0 {
			return nil, fmt.Errorf("line %d is empty", i+1)
		}
	}
	return lines, nil
}
