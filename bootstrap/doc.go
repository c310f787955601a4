// Package bootstrap is the application's startup sequence: it reads the
// layered configuration for the selected environment, registers the
// database client, checks connectivity once and then hosts the process
// until it is told to stop.
package bootstrap
