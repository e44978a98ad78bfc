// Package gps acquires RMC fixes from a GNSS receiver streaming NMEA over a
// byte transport.
//
// The pipeline mirrors a UART interrupt design:
//   - a pump goroutine calls Receiver.Ingest once per received byte,
//   - Ingest pushes into a lock-free ring and flags complete lines,
//   - a poll goroutine calls Receiver.Read, which frames one sentence,
//     checks it is RMC and parses it into a Reading.
//
// Read never blocks. ErrNoData is the normal answer when no new line arrived.
package gps
