package nmea

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrParse is wrapped by every field-format failure returned from ParseRMC.
var ErrParse = errors.New("nmea: parse error")

// Time is the UTC time of a fix as reported by the receiver.
type Time struct {
	Hours   int
	Minutes int
	// Seconds keeps the fractional part, e.g. 8.25.
	Seconds float64
}

func (t Time) String() string {
	return fmt.Sprintf("%02d:%02d:%06.3f", t.Hours, t.Minutes, t.Seconds)
}

// Fix is the decoded content of an RMC sentence.
//
// When Valid is false, Latitude and Longitude are always 0: a receiver
// without a fix reports empty coordinate fields.
type Fix struct {
	Time      Time
	Valid     bool
	Latitude  float64 // decimal degrees, south negative
	Longitude float64 // decimal degrees, west negative
}

// FieldError describes which RMC field failed and why.
type FieldError struct {
	Field  string
	Value  string
	Reason string
}

func (e *FieldError) Error() string {
	return fmt.Sprintf("nmea: rmc %s %q: %s", e.Field, e.Value, e.Reason)
}

func (e *FieldError) Unwrap() error { return ErrParse }

// RMC field positions, after splitting on ','.
//
//	0: talker+type ($GNRMC)
//	1: time (hhmmss[.sss])
//	2: status (A=active, V=void)
//	3: latitude (ddmm.mmmm)
//	4: N/S
//	5: longitude (dddmm.mmmm)
//	6: E/W
//
// Everything after field 6 (speed, course, date, ...) is ignored.
type fieldPos int

const (
	fieldID fieldPos = iota
	fieldTime
	fieldStatus
	fieldLat
	fieldLatHemi
	fieldLon
	fieldLonHemi

	numFields
)

var fieldNames = [numFields]string{
	fieldID:      "id",
	fieldTime:    "time",
	fieldStatus:  "status",
	fieldLat:     "latitude",
	fieldLatHemi: "latitude hemisphere",
	fieldLon:     "longitude",
	fieldLonHemi: "longitude hemisphere",
}

func (p fieldPos) String() string {
	if p < 0 || p >= numFields {
		return "field(" + strconv.Itoa(int(p)) + ")"
	}
	return fieldNames[p]
}

// fieldHandler decodes one field into fix. done=true stops the parse early
// with success.
type fieldHandler func(fix *Fix, tok string) (done bool, err error)

var fieldHandlers = [numFields]fieldHandler{
	fieldID:      parseID,
	fieldTime:    parseTime,
	fieldStatus:  parseStatus,
	fieldLat:     parseLatitude,
	fieldLatHemi: parseLatHemisphere,
	fieldLon:     parseLongitude,
	fieldLonHemi: parseLonHemisphere,
}

const (
	minTimeLen = len("hhmmss")
	minLatLen  = len("ddmm.mmmm")
	minLonLen  = len("dddmm.mmmm")

	// Minutes are read from at most mm.mmmmmm.
	maxMinutesLen = len("mm.mmmmmm")
)

// ParseRMC decodes a framed RMC sentence. The sentence is expected to have
// passed IsRMC. No partial Fix is returned on error.
func ParseRMC(sentence []byte) (Fix, error) {
	sentence = bytes.TrimRight(sentence, "\x00")
	if len(sentence) == 0 {
		return Fix{}, &FieldError{Field: fieldID.String(), Reason: "empty sentence"}
	}

	toks := strings.SplitN(string(sentence), ",", int(numFields)+1)

	var fix Fix
	for pos := fieldID; pos < numFields; pos++ {
		if int(pos) >= len(toks) {
			return Fix{}, &FieldError{Field: pos.String(), Reason: "missing"}
		}
		done, err := fieldHandlers[pos](&fix, toks[pos])
		if err != nil {
			return Fix{}, &FieldError{Field: pos.String(), Value: toks[pos], Reason: err.Error()}
		}
		if done {
			break
		}
	}
	return fix, nil
}

func parseID(_ *Fix, tok string) (bool, error) {
	if !strings.HasPrefix(tok, "$") {
		return false, errors.New("missing '$'")
	}
	return false, nil
}

func parseTime(fix *Fix, tok string) (bool, error) {
	if len(tok) < minTimeLen {
		return false, fmt.Errorf("shorter than %d", minTimeLen)
	}
	if len(tok) > minTimeLen && tok[minTimeLen] != '.' {
		return false, errors.New("fractional seconds not marked by '.'")
	}

	if !allDigits(tok[0:minTimeLen]) {
		return false, errors.New("hhmmss must be digits")
	}
	hh, err := strconv.Atoi(tok[0:2])
	if err != nil || hh > 23 {
		return false, errors.New("bad hours")
	}
	mm, err := strconv.Atoi(tok[2:4])
	if err != nil || mm > 59 {
		return false, errors.New("bad minutes")
	}
	secStr := tok[4:min(len(tok), 4+len("ss.sss"))]
	ss, err := strconv.ParseFloat(secStr, 64)
	if err != nil || ss < 0 || ss >= 61 {
		return false, errors.New("bad seconds")
	}

	fix.Time = Time{Hours: hh, Minutes: mm, Seconds: ss}
	return false, nil
}

func parseStatus(fix *Fix, tok string) (bool, error) {
	if tok == "" {
		return false, errors.New("empty")
	}
	switch tok[0] {
	case 'A':
		fix.Valid = true
		return false, nil
	case 'V':
		fix.Valid = false
		fix.Latitude = 0
		fix.Longitude = 0
		// No fix: the coordinate fields are empty.
		return true, nil
	default:
		return false, errors.New("want A or V")
	}
}

func parseLatitude(fix *Fix, tok string) (bool, error) {
	v, err := degreesMinutes(tok, minLatLen, 2)
	if err != nil {
		return false, err
	}
	fix.Latitude = v
	return false, nil
}

func parseLongitude(fix *Fix, tok string) (bool, error) {
	v, err := degreesMinutes(tok, minLonLen, 3)
	if err != nil {
		return false, err
	}
	fix.Longitude = v
	return false, nil
}

func parseLatHemisphere(fix *Fix, tok string) (bool, error) {
	sign, err := hemisphereSign(tok, 'N', 'S')
	if err != nil {
		return false, err
	}
	fix.Latitude *= sign
	return false, nil
}

func parseLonHemisphere(fix *Fix, tok string) (bool, error) {
	sign, err := hemisphereSign(tok, 'E', 'W')
	if err != nil {
		return false, err
	}
	fix.Longitude *= sign
	return false, nil
}

// degreesMinutes converts ddmm.mmmm (degDigits=2) or dddmm.mmmm (degDigits=3)
// to decimal degrees. The '.' must sit right after the minutes' integer part.
func degreesMinutes(tok string, minLen int, degDigits int) (float64, error) {
	if len(tok) < minLen {
		return 0, fmt.Errorf("shorter than %d", minLen)
	}
	if tok[degDigits+2] != '.' {
		return 0, fmt.Errorf("'.' not at offset %d", degDigits+2)
	}
	// Atoi and ParseFloat both take a sign; the receiver never sends one.
	if !allDigits(tok[:degDigits+2]) {
		return 0, errors.New("degrees and minutes must be digits")
	}
	deg, err := strconv.Atoi(tok[:degDigits])
	if err != nil {
		return 0, errors.New("bad degrees")
	}
	minStr := tok[degDigits:min(len(tok), degDigits+maxMinutesLen)]
	mins, err := strconv.ParseFloat(minStr, 64)
	if err != nil || mins < 0 || mins >= 60 {
		return 0, errors.New("bad minutes")
	}
	return float64(deg) + mins/60.0, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func hemisphereSign(tok string, pos, neg byte) (float64, error) {
	if tok == "" {
		return 0, errors.New("empty")
	}
	switch tok[0] {
	case pos:
		return 1, nil
	case neg:
		return -1, nil
	default:
		return 0, fmt.Errorf("want %c or %c", pos, neg)
	}
}
