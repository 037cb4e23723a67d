package scheduler

// Package scheduler provides scheduled job management for the market data
// backend. It handles:
// - Per-tier quote refresh cycles during market hours
// - The end-of-day index snapshot after the close
// - Periodic rebuilds of the local history archive
//
// The jobs are implemented in jobs.go
