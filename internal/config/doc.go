// Package config loads the repoupdate settings.
//
// Values are layered with koanf: built-in defaults, an optional YAML file
// and REPOUPDATE_* environment variables. The CLI applies explicitly set
// flags on top and calls Validate.
package config
