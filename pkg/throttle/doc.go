// Package throttle implements token bucket rate limiting with in-memory and
// Redis backed stores.
//
// Unlike a counting limiter, a denied call does not consume tokens, so a
// client hammering a locked key regains access as soon as the bucket refills.
//
//	limiter, err := throttle.New(throttle.NewMemoryStore(), throttle.Config{
//	    Capacity:       3,
//	    RefillRate:     1,
//	    RefillInterval: time.Minute,
//	}, throttle.WithKeyPrefix("mfa:email:"))
//	if err != nil {
//	    return err
//	}
//	res, err := limiter.Allow(ctx, userID)
//	if err != nil {
//	    return err
//	}
//	if !res.Allowed {
//	    // too many requests
//	}
//
// RedisStore runs the same algorithm in a Lua script so several processes
// share the bucket.
package throttle
