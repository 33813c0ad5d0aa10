// Package source provides the mutable keyed collection at the head of a
// liveview pipeline.
package source
