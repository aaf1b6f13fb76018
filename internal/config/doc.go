// Package config provides centralized configuration management for the
// TrustMesh runtime: the local trust-profile source, the registry persistence
// backend, drift-detector tuning, and observation queue wiring. Defaults are
// filled in relative to the configuration file's directory.
package config
