package gpsd

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Commands understood by the daemon.
const (
	CmdVersion = "VERSION"
	CmdPoll    = "POLL"
	CmdTPV     = "TPV"
	CmdDevices = "DEVICES"
	CmdWatch   = "WATCH"
)

// Request is one framed client command, e.g. ?WATCH={"enable":true}.
type Request struct {
	Command string
	// Params is the JSON object argument, if any.
	Params json.RawMessage
}

// ParseRequest accepts the gpsd ?COMMAND[=json] form as well as a bare JSON
// object whose "class" names the command.
func ParseRequest(raw []byte) (Request, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Request{}, &ProtocolError{Reason: "empty request"}
	}

	switch raw[0] {
	case '?':
		name, arg, _ := bytes.Cut(raw[1:], []byte("="))
		cmd := strings.ToUpper(strings.TrimSpace(string(name)))
		if !isCommandName(cmd) {
			return Request{}, &ProtocolError{Request: string(raw), Reason: "bad command name"}
		}
		arg = bytes.TrimSpace(arg)
		if len(arg) == 0 {
			return Request{Command: cmd}, nil
		}
		if arg[0] != '{' || !json.Valid(arg) {
			return Request{}, &ProtocolError{Request: string(raw), Reason: "argument is not a JSON object"}
		}
		return Request{Command: cmd, Params: json.RawMessage(arg)}, nil
	case '{':
		var obj struct {
			Class string `json:"class"`
		}
		if err := json.Unmarshal(raw, &obj); err != nil {
			return Request{}, &ProtocolError{Request: string(raw), Reason: "invalid JSON"}
		}
		cmd := strings.ToUpper(strings.TrimSpace(obj.Class))
		if !isCommandName(cmd) {
			return Request{}, &ProtocolError{Request: string(raw), Reason: "missing class"}
		}
		return Request{Command: cmd, Params: json.RawMessage(raw)}, nil
	default:
		return Request{}, &ProtocolError{Request: string(raw), Reason: "request must start with '?' or '{'"}
	}
}

// watchParams is the ?WATCH argument. Enable defaults to true like gpsd.
type watchParams struct {
	Enable *bool `json:"enable"`
	JSON   *bool `json:"json"`
}

func (r Request) watch() (enable, asJSON bool, err error) {
	enable = true
	if len(r.Params) == 0 {
		return enable, asJSON, nil
	}
	var p watchParams
	if err := json.Unmarshal(r.Params, &p); err != nil {
		return false, false, &ProtocolError{Request: string(r.Params), Reason: "invalid WATCH argument"}
	}
	if p.Enable != nil {
		enable = *p.Enable
	}
	if p.JSON != nil {
		asJSON = *p.JSON
	}
	return enable, asJSON, nil
}

func isCommandName(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < 'A' || s[i] > 'Z' {
			return false
		}
	}
	return true
}
