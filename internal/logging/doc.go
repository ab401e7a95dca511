// Package logging builds the process zerolog.Logger from LogConfig.
package logging
