// Package gpsd serves the gpsd client protocol over TCP.
//
// Each accepted connection gets a Session that frames client requests
// (?VERSION;, ?POLL;, ?DEVICES;, ?WATCH={...};) and answers them with JSON
// reports, one per line. Sessions are tracked in a Registry so replayed fixes
// can be broadcast to every connected client.
package gpsd
