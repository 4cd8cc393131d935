// Package mfa is a multi-factor authentication engine. It provides three
// independent factors and a Registry that ties them to per-user policy.
//
// # Factors
//
//   • TOTPFactor   – RFC 6238 codes from authenticator apps. Secrets are stored
//     sealed with AES-256-GCM when TOTPConfig.EncryptionKey is set.
//
//   • EmailFactor  – short numeric codes delivered through an email.Sender. Only
//     the newest issued code is accepted; every guess counts toward
//     EmailConfig.MaxAttempts before the comparison happens.
//
//   • BackupFactor – printable single-use codes kept as bcrypt hashes and
//     consumed with a compare-and-set so a code works at most once.
//
// Backup codes cannot be a primary factor: a user who only has backup codes
// does not satisfy a policy that requires MFA.
//
// # Storage
//
// Factors persist through the interfaces in storage.go. MemoryStorage serves
// tests and single-process tools; the pgstore subpackage is the PostgreSQL
// backend. Storage failures are joined with ErrStorage.
//
// # Usage
//
//	store := mfa.NewMemoryStorage()
//	reg, _ := mfa.NewRegistry(mfa.RegistryConfig{}, store, store)
//
//	totpFactor, _ := mfa.NewTOTPFactor(mfa.TOTPConfig{Issuer: "Acme"}, store, users)
//	backupFactor, _ := mfa.NewBackupFactor(mfa.BackupConfig{}, store)
//	_ = reg.Register(totpFactor)
//	_ = reg.Register(backupFactor)
//
//	res, _ := reg.Setup(ctx, userID, mfa.FactorTOTP, nil)
//	// show res.OTPAuthURI / res.QRCodeURL, then:
//	ok, err := reg.Verify(ctx, userID, mfa.FactorTOTP, "123456")
//
// A wrong code is reported as (false, nil). Errors mean infrastructure
// failures, disabled MFA or rate limiting (ErrTooManyRequests).
//
// # Maintenance
//
// Sweeper runs Cleaner implementations on a gocron schedule to drop expired
// email codes and consumed codes past EmailConfig.Retention.
package mfa
