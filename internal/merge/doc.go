// Package merge reconciles the two market-data sources into one
// authoritative price table.
//
// Push trades (streaming) and poll snapshots (REST) arrive independently;
// the Merger applies a freshness policy so downstream consumers never see
// source conflicts: push wins while recent, poll backfills session fields
// and takes over when the stream goes quiet. The Poller drives the REST
// side at an adaptive cadence keyed to push health and market hours.
package merge
