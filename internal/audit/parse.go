package audit

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"rnseaudit/internal/core"
)

type wireParams struct {
	Tau    float64 `json:"tau"`
	Q      int     `json:"q"`
	Alpha  float64 `json:"alpha"`
	Window int     `json:"window"`
	Scale  float64 `json:"scale"`
}

type wireRecord struct {
	T        uint64     `json:"t"`
	Seed     uint64     `json:"seed64"`
	Params   wireParams `json:"params"`
	C        float64    `json:"C"`
	Accepted bool       `json:"accepted"`
	X        float64    `json:"x"`
	H        float64    `json:"h"`
	D        float64    `json:"D"`
	W        [3]float64 `json:"w"`
	Interp   string     `json:"interp"`
	Noise    float64    `json:"noise"`
}

// ParseLine decodes one canonical line (without newline).
//
// The decoder is strict: unknown fields and trailing data are rejected, and the
// decoded record must re-encode to exactly the same bytes. A line that parses
// but is not canonical (reordered fields, other precision, extra whitespace) is
// an error. The returned record has Stream 0; see ParseLog.
func ParseLine(line []byte) (core.TickRecord, error) {
	dec := json.NewDecoder(bytes.NewReader(line))
	dec.DisallowUnknownFields()

	var w wireRecord
	if err := dec.Decode(&w); err != nil {
		return core.TickRecord{}, fmt.Errorf("decode record: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return core.TickRecord{}, errors.New("decode record: trailing content")
	}

	rec := core.TickRecord{
		T:    w.T,
		Seed: w.Seed,
		Params: core.Params{
			Tau:    w.Params.Tau,
			Q:      w.Params.Q,
			Alpha:  w.Params.Alpha,
			Window: w.Params.Window,
			Scale:  w.Params.Scale,
		},
		C:        w.C,
		Accepted: w.Accepted,
		X:        w.X,
		H:        w.H,
		D:        w.D,
		W:        w.W,
		Interp:   core.Label(w.Interp),
		Noise:    w.Noise,
	}

	again, err := EncodeRecord(rec)
	if err != nil {
		return core.TickRecord{}, err
	}
	if !bytes.Equal(again, line) {
		return core.TickRecord{}, errors.New("record is not in canonical form")
	}
	return rec, nil
}

// ParseLog decodes a finalized log.
//
// Stream indices are recovered from the merge order: the first distinct seed is
// stream 0, the next distinct seed stream 1, and so on. Within a stream, tick
// indices must start at 0 and increase by one; a seed that reappears after
// another stream has started is rejected.
func ParseLog(r io.Reader) ([]core.TickRecord, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), 1<<20)

	var (
		out     []core.TickRecord
		streams = map[uint64]int{}
		current = -1
		next    uint64
		lineNo  int
	)
	for sc.Scan() {
		lineNo++
		rec, err := ParseLine(sc.Bytes())
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		idx, known := streams[rec.Seed]
		switch {
		case !known:
			current++
			idx = current
			streams[rec.Seed] = idx
			next = 0
		case idx != current:
			return nil, fmt.Errorf("line %d: seed %#016x reappears after stream %d", lineNo, rec.Seed, current)
		}
		if rec.T != next {
			return nil, fmt.Errorf("line %d: expected tick %d for stream %d, got %d", lineNo, next, idx, rec.T)
		}
		next++
		rec.Stream = idx
		out = append(out, rec)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	return out, nil
}
