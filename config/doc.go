// Package config loads verifier settings from STREAM_* environment variables
// and destination bindings from an optional YAML file.
package config
