package mfa

import (
	"context"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"
)

type configKey struct{ userID, factor string }

// MemoryStorage is an in-process Storage. Every method holds a single mutex,
// which gives the compare-and-set operations their atomicity.
type MemoryStorage struct {
	mu          sync.Mutex
	configs     map[configKey]FactorConfig
	backupCodes map[string][]BackupCode // by user
	emailCodes  []EmailCode             // in creation order
	audit       []AuditEvent
}

var _ Storage = (*MemoryStorage)(nil)

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		configs:     make(map[configKey]FactorConfig),
		backupCodes: make(map[string][]BackupCode),
	}
}

func cloneConfig(c FactorConfig) FactorConfig {
	c.Data = maps.Clone(c.Data)
	return c
}

func (s *MemoryStorage) GetFactorConfig(_ context.Context, userID, factor string) (*FactorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.configs[configKey{userID, factor}]
	if !ok {
		return nil, ErrNotFound
	}
	c = cloneConfig(c)
	return &c, nil
}

func (s *MemoryStorage) UpsertFactorConfig(_ context.Context, cfg FactorConfig) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := configKey{cfg.UserID, cfg.Factor}
	if prev, ok := s.configs[key]; ok && !prev.CreatedAt.IsZero() {
		cfg.CreatedAt = prev.CreatedAt
	}
	s.configs[key] = cloneConfig(cfg)
	return nil
}

func (s *MemoryStorage) DeleteFactorConfig(_ context.Context, userID, factor string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.configs, configKey{userID, factor})
	return nil
}

func (s *MemoryStorage) ListFactorConfigs(_ context.Context, userID string) ([]FactorConfig, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []FactorConfig
	for k, c := range s.configs {
		if k.userID == userID {
			out = append(out, cloneConfig(c))
		}
	}
	slices.SortFunc(out, func(a, b FactorConfig) int {
		return strings.Compare(a.Factor, b.Factor)
	})
	return out, nil
}

func (s *MemoryStorage) SetFactorEnabled(_ context.Context, userID, factor string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := configKey{userID, factor}
	c, ok := s.configs[key]
	if !ok {
		return ErrNotFound
	}
	c.Enabled = enabled
	s.configs[key] = c
	return nil
}

func (s *MemoryStorage) ReplaceBackupCodes(_ context.Context, userID string, codes []BackupCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backupCodes[userID] = slices.Clone(codes)
	return nil
}

func (s *MemoryStorage) ListUnusedBackupCodes(_ context.Context, userID string) ([]BackupCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []BackupCode
	for _, c := range s.backupCodes[userID] {
		if !c.Used {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MemoryStorage) ConsumeBackupCode(_ context.Context, userID, codeID string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	codes := s.backupCodes[userID]
	for i := range codes {
		if codes[i].ID != codeID {
			continue
		}
		if codes[i].Used {
			return false, nil
		}
		codes[i].Used = true
		codes[i].UsedAt = &usedAt
		return true, nil
	}
	return false, nil
}

func (s *MemoryStorage) BackupCodeStats(_ context.Context, userID string) (BackupCodeStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var st BackupCodeStats
	for _, c := range s.backupCodes[userID] {
		st.Total++
		if c.Used {
			st.Used++
		}
	}
	st.Remaining = st.Total - st.Used
	return st, nil
}

func (s *MemoryStorage) DeleteBackupCodes(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.backupCodes, userID)
	return nil
}

func (s *MemoryStorage) CreateEmailCode(_ context.Context, code EmailCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailCodes = append(s.emailCodes, code)
	return nil
}

func eligible(c EmailCode, now time.Time, maxAttempts int) bool {
	return !c.Used && now.Before(c.ExpiresAt) && c.Attempts < maxAttempts
}

func (s *MemoryStorage) LatestEligibleEmailCode(_ context.Context, userID string, now time.Time, maxAttempts int) (*EmailCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var latest *EmailCode
	for i := range s.emailCodes {
		c := s.emailCodes[i]
		if c.UserID != userID || !eligible(c, now, maxAttempts) {
			continue
		}
		// Later entries win ties on CreatedAt.
		if latest == nil || !c.CreatedAt.Before(latest.CreatedAt) {
			latest = &c
		}
	}
	if latest == nil {
		return nil, ErrNotFound
	}
	return latest, nil
}

func (s *MemoryStorage) IncrementEmailCodeAttempts(_ context.Context, codeID string, maxAttempts int, now time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.emailCodes {
		if s.emailCodes[i].ID != codeID {
			continue
		}
		if !eligible(s.emailCodes[i], now, maxAttempts) {
			return false, nil
		}
		s.emailCodes[i].Attempts++
		return true, nil
	}
	return false, nil
}

func (s *MemoryStorage) ConsumeEmailCode(_ context.Context, codeID string, usedAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.emailCodes {
		c := &s.emailCodes[i]
		if c.ID != codeID {
			continue
		}
		if c.Used || !usedAt.Before(c.ExpiresAt) {
			return false, nil
		}
		c.Used = true
		c.UsedAt = &usedAt
		return true, nil
	}
	return false, nil
}

func (s *MemoryStorage) DeleteEmailCodes(_ context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emailCodes = slices.DeleteFunc(s.emailCodes, func(c EmailCode) bool {
		return c.UserID == userID
	})
	return nil
}

func (s *MemoryStorage) DeleteStaleEmailCodes(_ context.Context, now, usedBefore time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	before := len(s.emailCodes)
	s.emailCodes = slices.DeleteFunc(s.emailCodes, func(c EmailCode) bool {
		return c.ExpiresAt.Before(now) || (c.Used && c.CreatedAt.Before(usedBefore))
	})
	return int64(before - len(s.emailCodes)), nil
}

// EmailCodes returns a snapshot of the user's codes, oldest first.
func (s *MemoryStorage) EmailCodes(userID string) []EmailCode {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []EmailCode
	for _, c := range s.emailCodes {
		if c.UserID == userID {
			out = append(out, c)
		}
	}
	return out
}

func (s *MemoryStorage) StoreAuditEvent(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	event.Details = maps.Clone(event.Details)
	s.audit = append(s.audit, event)
	return nil
}

func (s *MemoryStorage) CountVerifications(_ context.Context, userID string, since time.Time) (total, succeeded int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.audit {
		if e.UserID != userID || e.Action != ActionVerify || e.CreatedAt.Before(since) {
			continue
		}
		total++
		if e.Success {
			succeeded++
		}
	}
	return total, succeeded, nil
}

// AuditEvents returns a snapshot of the recorded events for userID.
func (s *MemoryStorage) AuditEvents(userID string) []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []AuditEvent
	for _, e := range s.audit {
		if e.UserID == userID {
			out = append(out, e)
		}
	}
	return out
}
