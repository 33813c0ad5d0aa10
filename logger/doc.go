// Package logger provides structured logging for liveview using zerolog.
//
// Every pipeline stage receives a component-tagged *Logger. Per-item
// failures (predicate or projection errors) are logged with the stage,
// key and reason fields so a degraded view can be traced back to the
// records that caused it.
//
// # Configuration
//
//	logging:
//	  level: "info"
//	  format: "json"
//	  components:
//	    view: "debug"
//
// # Usage
//
//	log := logger.Get("sort")
//	log.Warn("comparator panicked", logger.Fields("key", 42))
package logger
