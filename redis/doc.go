// Package redis wraps go-redis with the service logger, config conventions
// and a lifecycle component. The relay package uses its publish/subscribe
// calls to replicate collections between processes.
//
//	rc := redis.NewComponent(cfg.Redis, log)
//	app.RegisterComponent(rc)
//	// after start
//	n, err := rc.Client().Publish(ctx, "trades", payload)
package redis
