// Package stats receives the GameResult records of finished sessions.
//
// Long-term aggregation lives outside this server; the recorders here only
// hand results over. FileRecorder appends one JSON line per participant,
// MemoryRecorder keeps them in memory for tests and embedding.
package stats
