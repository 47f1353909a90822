// Package gps ingests NMEA-0183 from a serial GNSS receiver and keeps a
// lock-protected navigation state for concurrent readers.
//
// A LineReader polls a Port for pending bytes and hands complete lines to a
// handler. An Aggregator classifies each line (GGA, GSA, GSV, RMC, VTG),
// validates every field against a compiled template and applies the
// sentence to its NavState. Service wires the two together through a
// bounded channel.
package gps
