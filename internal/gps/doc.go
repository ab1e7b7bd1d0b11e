// Package gps holds the simulated receiver: NMEA sentence decoding, the
// running fix assembled from RMC/GGA/GSA sentences, and the gpsd JSON
// reports (VERSION, TPV, DEVICES, WATCH) derived from that fix.
//
// The fix deliberately keeps raw NMEA time and date strings; they are only
// reformatted when a report is built.
package gps
