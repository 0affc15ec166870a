// Package store defines the durable persistence surface for class-relay and
// provides the SQLite implementation plus an in-memory mock for tests.
package store
