// Package config loads lockstep configuration from YAML and LOCKSTEP_*
// environment variables and validates it against an embedded CUE schema.
package config
