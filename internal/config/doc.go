// Package config loads, normalizes, and validates linkrelay configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// NEXTCLOUD_PASSWORD and MEGAPLAN_API_KEY. The Config type centralizes every
// knob the daemon and CLI need, so journal locations, remote credentials, and
// recovery timing are discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
