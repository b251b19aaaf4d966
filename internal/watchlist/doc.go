// Package watchlist holds the symbol set the feed tracks, with change
// notifications so transports can follow additions and removals.
package watchlist
