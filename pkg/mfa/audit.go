package mfa

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dmitrymomot/mfakit/pkg/logger"
)

// Audited actions.
const (
	ActionSetup    = "setup"
	ActionVerify   = "verify"
	ActionRevoke   = "revoke"
	ActionEnable   = "enable"
	ActionDisable  = "disable"
	ActionSendCode = "send_code"
)

// AuditEvent records one security relevant operation.
type AuditEvent struct {
	ID        string
	UserID    string
	Factor    string
	Action    string
	Success   bool
	Details   map[string]any
	IP        string
	UserAgent string
	CreatedAt time.Time
}

type requestInfoKey struct{}

type requestInfo struct {
	ip, userAgent string
}

// WithRequestInfo attaches client metadata recorded on audit events.
func WithRequestInfo(ctx context.Context, ip, userAgent string) context.Context {
	return context.WithValue(ctx, requestInfoKey{}, requestInfo{ip: ip, userAgent: userAgent})
}

func requestInfoFrom(ctx context.Context) requestInfo {
	info, _ := ctx.Value(requestInfoKey{}).(requestInfo)
	return info
}

// auditor writes events without ever failing the calling operation.
type auditor struct {
	store  AuditStore
	logger *slog.Logger
	now    func() time.Time
}

func (a auditor) record(ctx context.Context, userID, factor, action string, success bool, details map[string]any) {
	if a.store == nil {
		return
	}
	info := requestInfoFrom(ctx)
	event := AuditEvent{
		ID:        uuid.NewString(),
		UserID:    userID,
		Factor:    factor,
		Action:    action,
		Success:   success,
		Details:   details,
		IP:        info.ip,
		UserAgent: info.userAgent,
		CreatedAt: a.now(),
	}
	if err := a.store.StoreAuditEvent(ctx, event); err != nil {
		a.logger.ErrorContext(ctx, "failed to store audit event",
			logger.UserID(userID),
			logger.Factor(factor),
			logger.Action(action),
			logger.Error(err),
		)
	}
}
