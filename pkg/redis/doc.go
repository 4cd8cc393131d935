// Package redis connects to the Redis server backing the distributed rate
// limiter. Redis is optional: when Config.ConnectionURL is empty callers keep
// their in-process implementations.
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//	store := throttle.NewRedisStore(client, "mfa:throttle:")
package redis
