// Package validation turns bad input into INVALID_INPUT errors.
//
// Validate checks tagged structs (page requests, configuration) through
// go-playground/validator. Validator collects hand-written checks for
// values with no struct to hang tags on:
//
//	err := validation.New().
//		UUID("client", c.Query("client")).
//		Check(req.Paused != nil || req.AutoPause != nil, "body", "set paused or auto_pause").
//		Err()
package validation
