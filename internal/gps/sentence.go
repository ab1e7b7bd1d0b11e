package gps

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	nmea "github.com/adrianmo/go-nmea"
)

// Kind is the closed set of sentence kinds the fix understands.
type Kind int

const (
	KindOther Kind = iota
	// KindRMC is the recommended minimum position/velocity sentence.
	KindRMC
	// KindGGA is the fix quality sentence.
	KindGGA
	// KindGSA is the DOP and active satellites sentence.
	KindGSA
)

func (k Kind) String() string {
	switch k {
	case KindRMC:
		return "RMC"
	case KindGGA:
		return "GGA"
	case KindGSA:
		return "GSA"
	default:
		return "other"
	}
}

// Sentence is one decoded NMEA line.
type Sentence struct {
	Kind   Kind
	Talker string
	Type   string
	// Fields is the comma-split payload after the type prefix, without the
	// checksum.
	Fields []string
	Raw    string
}

// Decode parses one line of NMEA text.
//
// The checksum is optional: lines without a '*' separator get one computed.
// A checksum that is present must match. RMC, GGA and GSA bodies are also run
// through go-nmea so malformed bodies are rejected here rather than in the fix.
func Decode(line string) (Sentence, error) {
	line = strings.TrimSpace(line)
	sent, canonical, err := splitEnvelope(line)
	if err != nil {
		return Sentence{}, &DecodeError{Line: line, Err: err}
	}

	switch sent.Type {
	case "RMC":
		sent.Kind = KindRMC
	case "GGA":
		sent.Kind = KindGGA
	case "GSA":
		sent.Kind = KindGSA
	default:
		sent.Kind = KindOther
		return sent, nil
	}

	if err := validateBody(canonical, sent.Kind); err != nil {
		return Sentence{}, &DecodeError{Line: line, Err: err}
	}
	return sent, nil
}

func splitEnvelope(line string) (Sentence, string, error) {
	if line == "" {
		return Sentence{}, "", errors.New("empty line")
	}
	if line[0] != '$' && line[0] != '!' {
		return Sentence{}, "", errors.New("missing '$'")
	}

	payload := line[1:]
	var sum byte
	star := strings.LastIndexByte(line, '*')
	if star != -1 {
		payload = line[1:star]
		ck := strings.TrimSpace(line[star+1:])
		if len(ck) < 2 {
			return Sentence{}, "", errors.New("short checksum")
		}
		want, err := hex.DecodeString(ck[:2])
		if err != nil || len(want) != 1 {
			return Sentence{}, "", errors.New("bad checksum")
		}
		sum = checksum(payload)
		if sum != want[0] {
			return Sentence{}, "", fmt.Errorf("checksum mismatch: got %02X want %02X", sum, want[0])
		}
	} else {
		sum = checksum(payload)
	}

	parts := strings.Split(payload, ",")
	prefix := parts[0]
	if len(prefix) < 3 {
		return Sentence{}, "", errors.New("short type")
	}

	sent := Sentence{Fields: parts[1:], Raw: line}
	if strings.HasPrefix(prefix, "P") {
		// Proprietary sentences carry a manufacturer code, not a talker.
		sent.Talker = "P"
		sent.Type = strings.ToUpper(prefix[1:])
	} else {
		// Accept GNxxx/GPxxx, etc; normalize to last 3 chars.
		sent.Talker = strings.ToUpper(prefix[:len(prefix)-3])
		sent.Type = strings.ToUpper(prefix[len(prefix)-3:])
	}

	canonical := fmt.Sprintf("%c%s*%02X", line[0], payload, sum)
	return sent, canonical, nil
}

// bodyParser only requires the fields the fix reads. Short or odd sentences
// that carry them are accepted.
var bodyParser = nmea.SentenceParser{
	CustomParsers: map[string]nmea.ParserFunc{
		"RMC": fieldsParser("RMC", "time", "validity", "latitude", "latitude direction",
			"longitude", "longitude direction", "speed", "course", "date"),
		"GGA": fieldsParser("GGA", "time", "latitude", "latitude direction", "longitude",
			"longitude direction", "fix quality", "satellites", "hdop", "altitude"),
		"GSA": fieldsParser("GSA", "selection mode", "fix type"),
	},
}

type fixBody struct {
	nmea.BaseSentence
}

func fieldsParser(typ string, names ...string) nmea.ParserFunc {
	return func(s nmea.BaseSentence) (nmea.Sentence, error) {
		p := nmea.NewParser(s)
		p.AssertType(typ)
		for i, name := range names {
			p.String(i, name)
		}
		return fixBody{BaseSentence: s}, p.Err()
	}
}

func validateBody(canonical string, kind Kind) error {
	s, err := bodyParser.Parse(canonical)
	if err != nil {
		return err
	}
	if _, ok := s.(fixBody); !ok {
		return fmt.Errorf("unexpected sentence %s for %s", s.DataType(), kind)
	}
	return nil
}

func checksum(payload string) byte {
	var ck byte
	for i := 0; i < len(payload); i++ {
		ck ^= payload[i]
	}
	return ck
}
