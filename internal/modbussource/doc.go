// Package modbussource reads module telemetry from a Modbus TCP device.
//
// Each module occupies four holding registers starting at
// BaseAddress + index*4:
//
//	+0 health (0 ok, 1 warn, 2 error)
//	+1 orders
//	+2 success rate in tenths of a percent (0..1000)
//	+3 failed
//
// Blocks are read in requests of at most 125 registers. Any read or range
// error fails the whole sample.
package modbussource
