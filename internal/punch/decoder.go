package punch

import (
	"bytes"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"
)

// TimestampLayout is the terminal's local timestamp format
const TimestampLayout = "2006-01-02 15:04:05"

// Direction tells whether a punch opens or closes a shift
type Direction string

const (
	CheckIn  Direction = "check_in"
	CheckOut Direction = "check_out"
)

var verifyMethods = [...]string{
	0: "password",
	1: "fingerprint",
	2: "card",
	3: "password+fingerprint",
	4: "password+card",
	5: "fingerprint+card",
	6: "password+fingerprint+card",
	7: "face",
}

// VerifyMethod maps a terminal verify code to its name
func VerifyMethod(code int) string {
	if code < 0 || code >= len(verifyMethods) {
		return "unknown"
	}
	return verifyMethods[code]
}

// Punch is one decoded clock event. Timestamp is in UTC.
type Punch struct {
	DeviceUserID string    `json:"deviceUserId"`
	Timestamp    time.Time `json:"timestamp"`
	Direction    Direction `json:"direction"`
	VerifyMethod string    `json:"verifyMethod"`
	WorkCode     string    `json:"workCode,omitempty"`
}

// maxErrorText caps how much of a bad line ends up in logs and sync details
const maxErrorText = 80

// DecodeError describes a log line that could not be decoded
type DecodeError struct {
	Line int
	Text string
	Err  error
}

func (e *DecodeError) Error() string {
	text := e.Text
	if len(text) > maxErrorText {
		text = text[:maxErrorText] + "..."
	}
	return fmt.Sprintf("attendance log line %d %q: %v", e.Line, text, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Decoder turns raw attendance buffers into punches
type Decoder struct {
	loc *time.Location
}

// NewDecoder creates a decoder that reads timestamps in loc (UTC when nil)
func NewDecoder(loc *time.Location) *Decoder {
	if loc == nil {
		loc = time.UTC
	}
	return &Decoder{loc: loc}
}

// Decode parses tab-delimited lines:
// deviceUserId, timestamp, statusCode, verifyCode, workCode, reserved.
// Lines with fewer than three fields are skipped silently; lines that cannot
// be decoded are skipped and returned as errors.
func (d *Decoder) Decode(raw []byte) ([]Punch, []*DecodeError) {
	var (
		punches []Punch
		errs    []*DecodeError
	)

	for i, line := range bytes.Split(raw, []byte("\n")) {
		text := strings.TrimRight(string(line), "\r")
		fields := strings.Split(text, "\t")
		if len(fields) < 3 {
			continue
		}

		p, err := d.decodeFields(fields)
		if err != nil {
			derr := &DecodeError{Line: i + 1, Text: text, Err: err}
			log.Printf("⚠️ %v", derr)
			errs = append(errs, derr)
			continue
		}
		punches = append(punches, p)
	}
	return punches, errs
}

func (d *Decoder) decodeFields(fields []string) (Punch, error) {
	id := strings.TrimSpace(fields[0])
	if id == "" {
		return Punch{}, fmt.Errorf("empty device user id")
	}

	raw := strings.TrimSpace(fields[1])
	if len(raw) != len(TimestampLayout) {
		return Punch{}, fmt.Errorf("bad timestamp: want %s, got %d bytes", TimestampLayout, len(raw))
	}
	ts, err := time.ParseInLocation(TimestampLayout, raw, d.loc)
	if err != nil {
		return Punch{}, fmt.Errorf("bad timestamp: %w", err)
	}

	p := Punch{
		DeviceUserID: id,
		Timestamp:    ts.UTC(),
		Direction:    CheckOut,
		VerifyMethod: "unknown",
	}

	if status, err := strconv.Atoi(strings.TrimSpace(fields[2])); err == nil && status == 0 {
		p.Direction = CheckIn
	}
	if len(fields) > 3 {
		if code, err := strconv.Atoi(strings.TrimSpace(fields[3])); err == nil {
			p.VerifyMethod = VerifyMethod(code)
		}
	}
	if len(fields) > 4 {
		p.WorkCode = strings.TrimSpace(fields[4])
	}
	return p, nil
}

// FilterRange keeps punches with start <= timestamp <= end. Nil bounds are open.
func FilterRange(punches []Punch, start, end *time.Time) []Punch {
	if start == nil && end == nil {
		return punches
	}
	out := punches[:0:0]
	for _, p := range punches {
		if start != nil && p.Timestamp.Before(*start) {
			continue
		}
		if end != nil && p.Timestamp.After(*end) {
			continue
		}
		out = append(out, p)
	}
	return out
}
