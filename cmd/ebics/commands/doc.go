// Package commands implements the ebics command line client.
//
// Every command reads the YAML configuration given with --config, opens the
// configured record and key stores and runs one client operation.
package commands
