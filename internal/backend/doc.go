// Package backend contains the store.Backend implementations: in-memory,
// SQLite, PostgreSQL, Redis and MongoDB.
//
// Every backend persists documents through store.EncodeDocument and keeps
// a claim deadline next to each record so the provider can lease jobs.
// Records under one path are claimed in insertion order.
package backend
