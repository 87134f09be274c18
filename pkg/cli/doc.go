// Package cli provides the command-line interface for eventsock.
//
// The command tree is built with cobra:
//
//	eventsock serve     run the event socket server in the foreground
//	eventsock connect   attach to an event socket and print its status stream
//	eventsock version   print build information
//
// Every command honors the persistent --json flag.
package cli
