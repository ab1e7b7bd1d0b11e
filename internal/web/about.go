package web

import (
	"net/http"
	"runtime"
	"runtime/debug"

	"gpsd-sim/internal/gps"
)

// AboutResponse describes the gpsd this process pretends to be and the
// binary doing it.
type AboutResponse struct {
	Service  string        `json:"service"`
	Emulates EmulatedGPSD  `json:"emulates"`
	Build    BuildIdentity `json:"build"`
}

// EmulatedGPSD is what clients see in VERSION and TPV reports.
type EmulatedGPSD struct {
	Release    string `json:"release"`
	Rev        string `json:"rev"`
	ProtoMajor int    `json:"proto_major"`
	ProtoMinor int    `json:"proto_minor"`
	Device     string `json:"device"`
}

type BuildIdentity struct {
	GoVersion string `json:"go_version"`
	Module    string `json:"module,omitempty"`
	Version   string `json:"version,omitempty"`
	Commit    string `json:"commit,omitempty"`
	Dirty     bool   `json:"dirty,omitempty"`
}

func AboutHandler(v gps.Version) http.Handler {
	resp := AboutResponse{
		Service: "gpsd-sim",
		Emulates: EmulatedGPSD{
			Release:    v.Release,
			Rev:        v.Rev,
			ProtoMajor: v.ProtoMajor,
			ProtoMinor: v.ProtoMinor,
			Device:     v.Device,
		},
		Build: readBuild(),
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, resp)
	})
}

func readBuild() BuildIdentity {
	b := BuildIdentity{GoVersion: runtime.Version()}
	bi, ok := debug.ReadBuildInfo()
	if !ok || bi == nil {
		return b
	}
	b.Module = bi.Main.Path
	b.Version = bi.Main.Version
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			b.Commit = s.Value
		case "vcs.modified":
			b.Dirty = s.Value == "true"
		}
	}
	return b
}
