package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"gpsd-sim/internal/gps"
)

// Deps are the read-only views the status endpoints expose. Any of them may
// be nil.
type Deps struct {
	Status   *Status
	Fix      FixSource
	Sessions SessionLister
	Logs     *LogBuffer
	Metrics  http.Handler
	Version  gps.Version
}

func Handler(d Deps) http.Handler {
	if d.Status == nil {
		d.Status = NewStatus()
	}
	mux := http.NewServeMux()

	mux.HandleFunc("/api/status", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, d.Status.Snapshot(time.Now().UTC(), d.Fix, d.Sessions))
	})

	mux.HandleFunc("/api/sessions", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		ids := []string{}
		if d.Sessions != nil {
			ids = d.Sessions.IDs()
		}
		writeJSON(w, struct {
			Count    int      `json:"count"`
			Sessions []string `json:"sessions"`
		}{len(ids), ids})
	})

	if d.Logs != nil {
		mux.Handle("/api/logs", d.Logs.Handler())
	}
	if d.Metrics != nil {
		mux.Handle("/metrics", d.Metrics)
	}
	mux.Handle("/api/about", AboutHandler(d.Version))

	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet {
			w.Header().Set("Allow", http.MethodGet)
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		snap := d.Status.Snapshot(time.Now().UTC(), d.Fix, d.Sessions)
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = fmt.Fprintf(w, "<!doctype html><html><head><meta charset=\"utf-8\"><title>gpsd-sim</title></head><body>")
		_, _ = fmt.Fprintf(w, "<h1>gpsd-sim</h1>")
		_, _ = fmt.Fprintf(w, "<p>See <a href=\"/api/status\">/api/status</a>.</p>")
		_, _ = fmt.Fprintf(w, "<pre>listen=%s\nsource=%s\nsessions=%d\nsentences_applied=%d\nlast_sentence_utc=%s</pre>",
			snap.Static.Listen, snap.Static.Source, len(snap.Sessions), snap.SentencesApplied, snap.LastSentenceUTC,
		)
		_, _ = fmt.Fprintf(w, "</body></html>")
	})

	return mux
}

// Serve runs the status server until ctx is done.
func Serve(ctx context.Context, listenAddr string, h http.Handler) error {
	srv := &http.Server{
		Addr:              listenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       30 * time.Second,
		MaxHeaderBytes:    1 << 20, // 1 MiB
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
