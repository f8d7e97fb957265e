// Package zoom computes and persists guest zoom levels.
//
// Levels are persisted per (origin, partition). Zoom level and factor relate
// by factor = 1.2^level, the fixed invertible mapping used throughout the
// host: level 0 is factor 1.0, each unit step multiplies the factor by 1.2.
package zoom
