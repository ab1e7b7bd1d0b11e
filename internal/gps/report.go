package gps

import (
	"fmt"
	"strings"
)

// Version describes the daemon as announced in VERSION reports.
type Version struct {
	Release    string `yaml:"release"`
	Rev        string `yaml:"rev"`
	ProtoMajor int    `yaml:"proto_major"`
	ProtoMinor int    `yaml:"proto_minor"`
	// Device is the receiver path quoted in TPV and DEVICES reports.
	Device string `yaml:"device"`
}

func DefaultVersion() Version {
	return Version{
		Release:    "3.20",
		Rev:        "3.20",
		ProtoMajor: 3,
		ProtoMinor: 1,
		Device:     "/dev/pts/1",
	}
}

// LonSignRule selects how the sign of the reported longitude is derived.
type LonSignRule string

const (
	// LonSignLiteral reproduces the legacy daemon: the longitude is positive
	// only when the latitude hemisphere reads "E", which never happens, so
	// every longitude is reported negative. Existing clients depend on it.
	LonSignLiteral LonSignRule = "literal"
	// LonSignHemisphere signs the longitude by its own E/W hemisphere.
	LonSignHemisphere LonSignRule = "hemisphere"
)

func ParseLonSignRule(s string) (LonSignRule, error) {
	switch LonSignRule(strings.ToLower(strings.TrimSpace(s))) {
	case "", LonSignLiteral:
		return LonSignLiteral, nil
	case LonSignHemisphere:
		return LonSignHemisphere, nil
	default:
		return "", fmt.Errorf("unknown lon sign rule %q", s)
	}
}

type VersionReport struct {
	Class      string `json:"class"`
	Version    string `json:"version"`
	Rev        string `json:"rev"`
	ProtoMajor int    `json:"proto_major"`
	ProtoMinor int    `json:"proto_minor"`
}

type TPVReport struct {
	Class  string `json:"class"`
	Device string `json:"device"`
	Time   string `json:"time"`
	Mode   int    `json:"mode"`

	Lat   *float64 `json:"lat,omitempty"`
	Lon   *float64 `json:"lon,omitempty"`
	Track *float64 `json:"track,omitempty"`
	// Speed is in knots, unlike real gpsd which reports m/s.
	Speed *float64 `json:"speed,omitempty"`
	Alt   *float64 `json:"alt,omitempty"`
}

type DeviceReport struct {
	Class string `json:"class"`
	Path  string `json:"path"`
}

type DevicesReport struct {
	Class   string         `json:"class"`
	Devices []DeviceReport `json:"devices"`
}

type WatchReport struct {
	Class  string `json:"class"`
	Enable bool   `json:"enable"`
	JSON   bool   `json:"json"`
}

// NewVersionReport builds the VERSION report for v.
func NewVersionReport(v Version) VersionReport {
	return VersionReport{
		Class:      "VERSION",
		Version:    v.Release,
		Rev:        v.Rev,
		ProtoMajor: v.ProtoMajor,
		ProtoMinor: v.ProtoMinor,
	}
}

// NewTPVReport derives a TPV report from a fix.
//
// Position, track and speed need at least a 2D fix; altitude needs a 3D fix.
// Absent values are left out rather than zeroed.
func NewTPVReport(f Fix, device string, rule LonSignRule) TPVReport {
	tpv := TPVReport{
		Class:  "TPV",
		Device: device,
		Time:   reportTime(f),
		Mode:   f.Mode,
	}

	if f.Mode >= 2 {
		if f.Lat != nil && f.Lon != nil {
			lat := *f.Lat
			if f.LatDir != "N" {
				lat = -lat
			}
			lon := *f.Lon
			if !lonPositive(f, rule) {
				lon = -lon
			}
			tpv.Lat = &lat
			tpv.Lon = &lon
		}
		if f.Heading != nil {
			v := *f.Heading
			tpv.Track = &v
		}
		if f.Speed != nil {
			v := *f.Speed
			tpv.Speed = &v
		}
	}
	if f.Mode == 3 && f.Altitude != nil {
		v := *f.Altitude
		tpv.Alt = &v
	}
	return tpv
}

func lonPositive(f Fix, rule LonSignRule) bool {
	if rule == LonSignHemisphere {
		return f.LonDir == "E"
	}
	return f.LatDir == "E"
}

// reportTime falls back to the raw NMEA value for any part that cannot be
// formatted.
func reportTime(f Fix) string {
	date, err := f.FormattedDate()
	if err != nil {
		date = f.Date
	}
	tod, err := f.FormattedTime()
	if err != nil {
		tod = f.TimeOfDay
	}
	return date + "T" + tod + "Z"
}

// Reporter builds client reports from the shared fix. All methods are safe
// for concurrent use and never modify the fix.
type Reporter struct {
	state   *State
	version Version
	lonSign LonSignRule
}

func NewReporter(state *State, version Version, lonSign LonSignRule) *Reporter {
	if lonSign == "" {
		lonSign = LonSignLiteral
	}
	return &Reporter{state: state, version: version, lonSign: lonSign}
}

func (r *Reporter) Version() VersionReport {
	return NewVersionReport(r.version)
}

func (r *Reporter) Position() TPVReport {
	return NewTPVReport(r.state.Snapshot(), r.version.Device, r.lonSign)
}

func (r *Reporter) Devices() DevicesReport {
	return DevicesReport{
		Class:   "DEVICES",
		Devices: []DeviceReport{{Class: "DEVICE", Path: r.version.Device}},
	}
}

func (r *Reporter) Watch(enable, json bool) WatchReport {
	return WatchReport{Class: "WATCH", Enable: enable, JSON: json}
}
