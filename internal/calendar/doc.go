// Package calendar provides the trading-day oracle and session clock for
// US equities: weekday/holiday trading-day checks and timezone-correct
// session boundaries (09:30–16:00 America/New_York).
package calendar
