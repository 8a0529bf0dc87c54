// Package config loads the gavault configuration.
//
// Configuration is built in three layers, each overriding the previous one:
//
//  1. Built-in defaults (GetDefaultConfig)
//  2. A YAML file, usually passed with --config
//  3. GAVAULT_* environment variables, read once at startup
//
// Secrets (the encryption key, store token, Google and plugin client
// secrets, the plugin signing key) are expected from the environment.
//
// Example file:
//
//	server:
//	  listenAddr: ":8080"
//	  publicUrl: "https://gavault.example.com"
//	  secureCookies: true
//	storage:
//	  type: rest
//	  rest:
//	    url: "https://eu1-example.upstash.io"
//	google:
//	  clientId: "1234.apps.googleusercontent.com"
//	plugin:
//	  clientId: "gavault-plugin"
//	  redirectUris: ["https://plugin.example.com/callback"]
//	plans:
//	  defaultTier: free
//	  tiers:
//	    free: {query: 50, properties: 200}
//	    pro:  {query: 5000, properties: -1}
//
// Only the plans section is reloaded at runtime (Watch).
package config
