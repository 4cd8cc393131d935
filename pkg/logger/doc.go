// Package logger builds *slog.Logger instances and provides attribute helpers
// shared by the MFA packages.
//
// New applies functional options on top of an INFO level JSON handler writing
// to stdout. WithEnvironment switches to debug level text output for
// development. A decorator handler adds attributes taken from the record's
// context, registered with WithContextValue or WithContextExtractors.
//
//	log := logger.New(
//	    logger.WithEnvironment("production", "mfakit"),
//	    logger.WithContextValue("request_id", requestIDKey{}),
//	)
//	log.InfoContext(ctx, "factor verified",
//	    logger.UserID(userID),
//	    logger.Factor("totp"),
//	)
//
// Verification failure reasons are logged with Reason at debug level and are
// never returned to callers.
package logger
