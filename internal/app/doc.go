// Package app provides application bootstrap and lifecycle management for
// gavault.
//
// NewApplication loads the configuration (defaults, YAML file, environment),
// initializes logging, validates the result and builds every component on top
// of the configured key-value store:
//
//	store -> cipher -> vault -> refresh engine
//	      -> authorization code broker
//	      -> usage guard + plan table
//	      -> OAuth connect handler -> HTTP server
//
// Run serves HTTP until the context is canceled and, when a config file is
// used, reloads plan limits from it on change. Readiness and shutdown are
// reported to systemd when running under it.
package app
