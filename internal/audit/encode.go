// Package audit serializes tick records into the canonical append-only audit
// log and computes its digest.
//
// Canonical line format (profile rnse-audit/1), one record per line, '\n'
// terminated, fields always present and always in this order:
//
//	{"t":<uint>,"seed64":<uint>,"params":{"tau":<f>,"q":<int>,"alpha":<f>,"window":<int>,"scale":<f>},
//	 "C":<f>,"accepted":<bool>,"x":<f>,"h":<f>,"D":<f>,"w":[<f>,<f>,<f>],"interp":"<label>","noise":<f>}
//
// Floats are fixed-point with FloatPrecision fractional digits. Negative zero
// (including negatives that round to zero) is written without a sign. NaN and
// infinities are rejected. Go's strconv formatting is exact, so the bytes are
// identical on every platform.
//
// IMPORTANT: the log is the single source of truth for reproducibility checks;
// byte-for-byte stability is required.
package audit

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	"rnseaudit/internal/core"
)

// FormatVersion identifies the line format.
const FormatVersion = core.ProfileVersion

// FloatPrecision is the number of fractional digits of every float field.
const FloatPrecision = 12

// FormatFloat renders v in the canonical fixed-point form.
func FormatFloat(v float64) (string, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return "", fmt.Errorf("non-finite value %v", v)
	}
	s := strconv.FormatFloat(v, 'f', FloatPrecision, 64)
	if s[0] == '-' && isZeroDigits(s[1:]) {
		s = s[1:]
	}
	return s, nil
}

func isZeroDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] != '0' && s[i] != '.' {
			return false
		}
	}
	return true
}

type lineWriter struct {
	buf bytes.Buffer
	err error
}

func (w *lineWriter) raw(s string) {
	w.buf.WriteString(s)
}

func (w *lineWriter) float(name string, v float64) {
	if w.err != nil {
		return
	}
	s, err := FormatFloat(v)
	if err != nil {
		w.err = fmt.Errorf("%s: %w", name, err)
		return
	}
	w.buf.WriteString(s)
}

func (w *lineWriter) uint(v uint64) {
	w.buf.WriteString(strconv.FormatUint(v, 10))
}

func (w *lineWriter) int(v int) {
	w.buf.WriteString(strconv.Itoa(v))
}

// EncodeRecord returns the canonical line of r without the trailing newline.
func EncodeRecord(r core.TickRecord) ([]byte, error) {
	if !r.Interp.Valid() {
		return nil, fmt.Errorf("interp %q is not in the label set", r.Interp)
	}

	var w lineWriter
	w.raw(`{"t":`)
	w.uint(r.T)
	w.raw(`,"seed64":`)
	w.uint(r.Seed)

	w.raw(`,"params":{"tau":`)
	w.float("params.tau", r.Params.Tau)
	w.raw(`,"q":`)
	w.int(r.Params.Q)
	w.raw(`,"alpha":`)
	w.float("params.alpha", r.Params.Alpha)
	w.raw(`,"window":`)
	w.int(r.Params.Window)
	w.raw(`,"scale":`)
	w.float("params.scale", r.Params.Scale)
	w.raw(`}`)

	w.raw(`,"C":`)
	w.float("C", r.C)
	w.raw(`,"accepted":`)
	w.raw(strconv.FormatBool(r.Accepted))
	w.raw(`,"x":`)
	w.float("x", r.X)
	w.raw(`,"h":`)
	w.float("h", r.H)
	w.raw(`,"D":`)
	w.float("D", r.D)

	w.raw(`,"w":[`)
	for i, v := range r.W {
		if i > 0 {
			w.raw(",")
		}
		w.float(fmt.Sprintf("w[%d]", i), v)
	}
	w.raw(`]`)

	// Labels are validated above and contain no characters that need escaping.
	w.raw(`,"interp":"`)
	w.raw(string(r.Interp))
	w.raw(`","noise":`)
	w.float("noise", r.Noise)
	w.raw(`}`)

	if w.err != nil {
		return nil, fmt.Errorf("encode record t=%d seed=%#016x: %w", r.T, r.Seed, w.err)
	}
	return w.buf.Bytes(), nil
}
