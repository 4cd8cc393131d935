package mfa_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/mfakit/pkg/mfa"
)

func TestEmailCode_State(t *testing.T) {
	t.Parallel()
	now := epoch
	used := now
	tests := []struct {
		name string
		code mfa.EmailCode
		want mfa.EmailCodeState
	}{
		{"issued", mfa.EmailCode{ExpiresAt: now.Add(time.Minute)}, mfa.EmailCodeIssued},
		{"attempted", mfa.EmailCode{ExpiresAt: now.Add(time.Minute), Attempts: 1}, mfa.EmailCodeAttempted},
		{"expired", mfa.EmailCode{ExpiresAt: now}, mfa.EmailCodeExpired},
		{"exhausted", mfa.EmailCode{ExpiresAt: now.Add(time.Minute), Attempts: 3}, mfa.EmailCodeExhausted},
		{"exhausted wins over expired", mfa.EmailCode{ExpiresAt: now.Add(-time.Minute), Attempts: 3}, mfa.EmailCodeExhausted},
		{"consumed wins", mfa.EmailCode{ExpiresAt: now.Add(-time.Minute), Used: true, UsedAt: &used, Attempts: 3}, mfa.EmailCodeConsumed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.code.State(now, 3))
		})
	}
}

func TestMemoryStorage_FactorConfig(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := mfa.NewMemoryStorage()

	_, err := s.GetFactorConfig(ctx, "u1", mfa.FactorTOTP)
	assert.ErrorIs(t, err, mfa.ErrNotFound)
	assert.ErrorIs(t, s.SetFactorEnabled(ctx, "u1", mfa.FactorTOTP, true), mfa.ErrNotFound)

	require.NoError(t, s.UpsertFactorConfig(ctx, mfa.FactorConfig{UserID: "u1", Factor: mfa.FactorTOTP, Enabled: true, Data: map[string]any{"digits": 6}}))
	require.NoError(t, s.UpsertFactorConfig(ctx, mfa.FactorConfig{UserID: "u1", Factor: mfa.FactorBackup, Enabled: true}))

	got, err := s.GetFactorConfig(ctx, "u1", mfa.FactorTOTP)
	require.NoError(t, err)
	got.Data["digits"] = 8
	again, err := s.GetFactorConfig(ctx, "u1", mfa.FactorTOTP)
	require.NoError(t, err)
	assert.Equal(t, 6, again.Data["digits"], "returned rows must not alias stored data")

	list, err := s.ListFactorConfigs(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, mfa.FactorBackup, list[0].Factor)

	require.NoError(t, s.SetFactorEnabled(ctx, "u1", mfa.FactorTOTP, false))
	got, err = s.GetFactorConfig(ctx, "u1", mfa.FactorTOTP)
	require.NoError(t, err)
	assert.False(t, got.Enabled)

	require.NoError(t, s.DeleteFactorConfig(ctx, "u1", mfa.FactorTOTP))
	require.NoError(t, s.DeleteFactorConfig(ctx, "u1", mfa.FactorTOTP))
}

func TestMemoryStorage_EmailCodesSameTimestamp(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := mfa.NewMemoryStorage()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.CreateEmailCode(ctx, mfa.EmailCode{ID: id, UserID: "u1", Code: "123456", ExpiresAt: epoch.Add(time.Minute), CreatedAt: epoch}))

		latest, err := s.LatestEligibleEmailCode(ctx, "u1", epoch, 3)
		require.NoError(t, err)
		assert.Equal(t, id, latest.ID)
	}
}

func TestMemoryStorage_EmailCodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := mfa.NewMemoryStorage()
	now := epoch

	require.NoError(t, s.CreateEmailCode(ctx, mfa.EmailCode{ID: "a", UserID: "u1", Code: "111111", ExpiresAt: now.Add(time.Minute), CreatedAt: now}))
	require.NoError(t, s.CreateEmailCode(ctx, mfa.EmailCode{ID: "b", UserID: "u1", Code: "222222", ExpiresAt: now.Add(time.Minute), CreatedAt: now.Add(time.Second)}))

	latest, err := s.LatestEligibleEmailCode(ctx, "u1", now, 3)
	require.NoError(t, err)
	assert.Equal(t, "b", latest.ID)

	ok, err := s.ConsumeEmailCode(ctx, "b", now)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ConsumeEmailCode(ctx, "b", now)
	require.NoError(t, err)
	assert.False(t, ok)

	// With b consumed the older code becomes the newest eligible one.
	latest, err = s.LatestEligibleEmailCode(ctx, "u1", now, 3)
	require.NoError(t, err)
	assert.Equal(t, "a", latest.ID)

	for range 3 {
		ok, err := s.IncrementEmailCodeAttempts(ctx, "a", 3, now)
		require.NoError(t, err)
		assert.True(t, ok)
	}
	ok, err = s.IncrementEmailCodeAttempts(ctx, "a", 3, now)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.LatestEligibleEmailCode(ctx, "u1", now, 3)
	assert.ErrorIs(t, err, mfa.ErrNotFound)

	// Both codes have expired by then.
	n, err := s.DeleteStaleEmailCodes(ctx, now.Add(2*time.Minute), now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestMemoryStorage_BackupCodes(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	s := mfa.NewMemoryStorage()

	require.NoError(t, s.ReplaceBackupCodes(ctx, "u1", []mfa.BackupCode{
		{ID: "1", UserID: "u1", CodeHash: "h1"},
		{ID: "2", UserID: "u1", CodeHash: "h2"},
	}))

	ok, err := s.ConsumeBackupCode(ctx, "u1", "1", epoch)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = s.ConsumeBackupCode(ctx, "u1", "1", epoch)
	require.NoError(t, err)
	assert.False(t, ok)
	ok, err = s.ConsumeBackupCode(ctx, "u2", "2", epoch)
	require.NoError(t, err)
	assert.False(t, ok, "codes are scoped to their owner")

	st, err := s.BackupCodeStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, mfa.BackupCodeStats{Total: 2, Used: 1, Remaining: 1}, st)

	unused, err := s.ListUnusedBackupCodes(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, unused, 1)
	assert.Equal(t, "2", unused[0].ID)

	require.NoError(t, s.DeleteBackupCodes(ctx, "u1"))
	st, err = s.BackupCodeStats(ctx, "u1")
	require.NoError(t, err)
	assert.Zero(t, st.Total)
}
