// Package errors provides the error taxonomy of the liveview pipeline.
//
// Per-item failures (projection, predicate) and page range corrections are
// absorbed by the stage that detects them and never abort a change set.
// Only invariant violations, where a stage cache disagrees with an incoming
// change set, surface to the owner of the pipeline.
package errors
