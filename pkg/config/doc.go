// Package config provides configuration types and loading for the event socket server.
//
// A configuration file is YAML (.yaml, .yml) or JSON (anything else). Values
// present in the file overlay Default(); absent values keep their defaults.
//
//	server:
//	  host: 127.0.0.1
//	  port: 8080
//	  path: /events
//	  shutdownTimeout: 5s
//	socket:
//	  interval: 2s
//	  closeKeyword: bye
//	  closeReason: Thanks
//	logging:
//	  level: info
//	  format: text
//	metrics:
//	  enabled: true
//	events:
//	  natsURL: nats://127.0.0.1:4222
//	  subjectPrefix: eventsock
//
// Durations are Go duration strings ("2s", "1m30s") or integer milliseconds.
//
// Environment variables EVENTSOCK_PORT, EVENTSOCK_LOG_LEVEL and
// EVENTSOCK_NATS_URL override the loaded values; see ApplyEnv.
package config
