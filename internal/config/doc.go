// Package config loads, normalizes, and validates facewatch configuration.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// FACEWATCH_ENGINE_SCRIPT. The Config type gathers every knob the engine
// supervisor, camera arbiter, identification workflows, and HTTP surface need
// so they can be discovered in one pass.
//
// Always obtain settings through this package so downstream code receives
// absolute paths, canonical log formats, and clear validation errors.
package config
