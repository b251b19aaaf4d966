// Package database provides connection pool management for the optional
// PostgreSQL candle cache.
package database
