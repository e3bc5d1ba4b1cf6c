// Package config provides settings management for fwdctl.
//
// Settings are layered, later sources overriding earlier ones:
//
//  1. Defaults built into the binary
//  2. User settings (~/.config/fwdctl/config.yaml)
//  3. Project settings (./.fwdctl/config.yaml)
//
// An explicit file passed with --config replaces layers 2 and 3.
//
// # Settings File
//
//	kubectl:
//	  path: "kubectl"
//	  restartSignature: "lost connection to pod"
//	storage:
//	  dataDir: "/home/me/.config/fwdctl"
//	logging:
//	  level: "info"      # debug, info, warn, error
//	  format: "text"     # text or json
//	api:
//	  host: "127.0.0.1"
//	  port: 7531
//	dispatcher:
//	  queueSize: 64
//
// Forward definitions are not part of the settings file. They are stored as
// JSON in the data directory and managed through the fwdctl commands.
package config
