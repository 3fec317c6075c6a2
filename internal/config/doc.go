// Package config loads, normalizes, and validates ebookconverter configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// DATABASE_URL and NTFY_TOPIC. The Config type centralizes every knob the
// converter and CLI need: the public file tree and cache layout, the catalog
// connection, the external engine invocation, per-category source size
// ceilings, and logging.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors. The
// returned Config is built once per process and passed explicitly to every
// component.
package config
