// Package config loads crawler settings from defaults, a YAML file, .env
// files, PIXIVCRAWL_* environment variables and command line flags, in that
// order of increasing precedence.
//
//	cfg, err := config.Load("", map[string]interface{}{
//		"author":     "2188232",
//		"concurrent": 6,
//	})
//
// The session cookie is kept as the raw browser string and parsed with
// ParseCookie when the HTTP client is built.
package config
