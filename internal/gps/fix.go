package gps

import (
	"fmt"
	"strconv"
	"strings"
	"sync"
)

// Initial raw timestamp and date of a fresh fix. A daemon that has not seen
// an RMC yet still reports a well-formed TPV time.
const (
	DefaultTimeOfDay = "135454.873"
	DefaultDate      = "291120"
)

// Fix is a point-in-time copy of the simulated receiver state.
//
// Optional values are nil until a sentence provides them.
type Fix struct {
	Mode    int    `json:"mode"`
	Quality int    `json:"quality"`
	Status  string `json:"status"`

	// Raw NMEA values: hhmmss.sss and ddmmyy.
	TimeOfDay string `json:"time_of_day"`
	Date      string `json:"date"`

	Lat    *float64 `json:"lat,omitempty"`
	LatDir string   `json:"lat_dir"`
	Lon    *float64 `json:"lon,omitempty"`
	LonDir string   `json:"lon_dir"`

	Speed    *float64 `json:"speed_kt,omitempty"`
	Heading  *float64 `json:"heading_deg,omitempty"`
	Altitude *float64 `json:"alt_m,omitempty"`
}

// NewFix returns the state of a receiver that has not seen any sentence.
func NewFix() Fix {
	return Fix{
		Status:    "V",
		TimeOfDay: DefaultTimeOfDay,
		Date:      DefaultDate,
		LatDir:    "N",
		LonDir:    "E",
	}
}

// FormattedDate converts the raw ddmmyy date to yyyy:mm:dd. Two-digit years
// below 70 are in the 2000s.
func (f Fix) FormattedDate() (string, error) {
	d := f.Date
	if len(d) != 6 || !allDigits(d) {
		return "", &FormatError{Field: "date", Value: d}
	}
	yy, _ := strconv.Atoi(d[4:6])
	century := "19"
	if yy < 70 {
		century = "20"
	}
	return century + d[4:6] + ":" + d[2:4] + ":" + d[0:2], nil
}

// FormattedTime converts the raw hhmmss.sss time to hh:mm:ss.sss.
func (f Fix) FormattedTime() (string, error) {
	whole, frac, ok := strings.Cut(f.TimeOfDay, ".")
	if !ok || len(whole) != 6 || !allDigits(whole) || frac == "" || !allDigits(frac) {
		return "", &FormatError{Field: "time", Value: f.TimeOfDay}
	}
	return whole[0:2] + ":" + whole[2:4] + ":" + whole[4:6] + "." + frac, nil
}

// State is the shared, mutable fix. Apply and Snapshot may be called from
// different goroutines.
type State struct {
	mu  sync.RWMutex
	fix Fix
}

func NewState() *State {
	return &State{fix: NewFix()}
}

// Snapshot returns a copy of the current fix. Optional values are never
// mutated in place, so the copy can be read without holding the lock.
func (s *State) Snapshot() Fix {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fix
}

// Apply folds one sentence into the fix. Sentence kinds only touch the fields
// they own. A malformed field rejects the whole sentence and leaves the fix
// unchanged.
func (s *State) Apply(sent Sentence) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.fix
	var err error
	switch sent.Kind {
	case KindRMC:
		err = applyRMC(&next, sent.Fields)
	case KindGGA:
		err = applyGGA(&next, sent.Fields)
	case KindGSA:
		err = applyGSA(&next, sent.Fields)
	default:
		return nil
	}
	if err != nil {
		return err
	}
	s.fix = next
	return nil
}

// RMC fields (after the type prefix):
//
//	0: time (hhmmss.sss)
//	1: status (A=active, V=void)
//	2: latitude (ddmm.mmmm)
//	3: N/S
//	4: longitude (dddmm.mmmm)
//	5: E/W
//	6: speed over ground (knots)
//	7: course over ground (deg)
//	8: date (ddmmyy)
func applyRMC(f *Fix, fields []string) error {
	if len(fields) < 9 {
		return &FieldFormatError{Kind: KindRMC, Index: -1, Err: ErrTooFewFields}
	}
	lat, err := optionalFloat(KindRMC, fields, 2)
	if err != nil {
		return err
	}
	lon, err := optionalFloat(KindRMC, fields, 4)
	if err != nil {
		return err
	}
	speed, err := requiredFloat(KindRMC, fields, 6)
	if err != nil {
		return err
	}
	heading, err := requiredFloat(KindRMC, fields, 7)
	if err != nil {
		return err
	}

	f.TimeOfDay = strings.TrimSpace(fields[0])
	f.Status = strings.TrimSpace(fields[1])
	f.Lat = lat
	f.LatDir = strings.TrimSpace(fields[3])
	f.Lon = lon
	f.LonDir = strings.TrimSpace(fields[5])
	f.Speed = &speed
	f.Heading = &heading
	f.Date = strings.TrimSpace(fields[8])
	return nil
}

// GGA fields: 5 is fix quality, 8 is altitude above mean sea level (meters).
func applyGGA(f *Fix, fields []string) error {
	if len(fields) < 9 {
		return &FieldFormatError{Kind: KindGGA, Index: -1, Err: ErrTooFewFields}
	}
	quality, err := requiredInt(KindGGA, fields, 5)
	if err != nil {
		return err
	}
	alt, err := requiredFloat(KindGGA, fields, 8)
	if err != nil {
		return err
	}
	f.Quality = quality
	f.Altitude = &alt
	return nil
}

// GSA field 1 is the fix type: 1 none, 2 2D, 3 3D.
func applyGSA(f *Fix, fields []string) error {
	if len(fields) < 2 {
		return &FieldFormatError{Kind: KindGSA, Index: -1, Err: ErrTooFewFields}
	}
	mode, err := requiredInt(KindGSA, fields, 1)
	if err != nil {
		return err
	}
	f.Mode = mode
	return nil
}

func requiredFloat(kind Kind, fields []string, i int) (float64, error) {
	raw := strings.TrimSpace(fields[i])
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, &FieldFormatError{Kind: kind, Index: i, Value: raw, Err: err}
	}
	return v, nil
}

func optionalFloat(kind Kind, fields []string, i int) (*float64, error) {
	raw := strings.TrimSpace(fields[i])
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, &FieldFormatError{Kind: kind, Index: i, Value: raw, Err: err}
	}
	return &v, nil
}

func requiredInt(kind Kind, fields []string, i int) (int, error) {
	raw := strings.TrimSpace(fields[i])
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, &FieldFormatError{Kind: kind, Index: i, Value: raw, Err: fmt.Errorf("not an integer: %w", err)}
	}
	return v, nil
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
