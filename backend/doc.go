// Package backend keeps the data set of the authoritative store in a bolt file.
// The store is seeded from it at startup, and committed writes can be
// written through to it while the hierarchy runs.
package backend
