// Package testutil provides deterministic time and batch token sources for
// tests and conformance scenarios.
package testutil
