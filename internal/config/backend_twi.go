//go:build twi_legacy && !twi_nextgen

package config

// DefaultBackend is the backend selected at build time.
const DefaultBackend = BackendTWI
