// Package chart implements the chart session layered on the connection
// engine: one resolved symbol with a live candle series.
//
// A Session registers itself with the engine under a generated cs_ id,
// resolves a symbol and creates a series for it, then folds
// timescale_update and du packets into a time-keyed bar map. Candle
// field interpretation stops at (time, open, high, low, close,
// volume); everything beyond that is the caller's business.
package chart
