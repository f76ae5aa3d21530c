package service

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	auditdomain "github.com/countercore/tally/internal/audit/domain"
	"github.com/countercore/tally/internal/audit/repository"
	"github.com/countercore/tally/internal/clock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) (auditdomain.Service, *clock.FakeClock) {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, conn.AutoMigrate(&auditdomain.AuditLog{}))

	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	fake := clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	svc := New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: fake,
		Repo:  repository.Provide(),
	})
	return svc, fake
}

func TestAuditLogAndListByAction(t *testing.T) {
	svc, fake := newTestService(t)
	ctx := context.Background()

	assert.NoError(t, svc.AuditLog(ctx, "cashier-1", "checkout.confirm", "invoice", "INV-1", map[string]any{"total": 100}))
	fake.Advance(time.Minute)
	assert.NoError(t, svc.AuditLog(ctx, "cashier-1", "discount.commit", "invoice", "INV-1", nil))

	resp, err := svc.List(ctx, auditdomain.ListAuditLogRequest{Action: "checkout.confirm"})
	assert.NoError(t, err)
	assert.Len(t, resp.AuditLogs, 1)
	assert.Equal(t, "INV-1", resp.AuditLogs[0].TargetID)
}

func TestAuditLogRequiresAction(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.AuditLog(context.Background(), "cashier-1", "  ", "invoice", "INV-1", nil)
	assert.ErrorIs(t, err, auditdomain.ErrInvalidAction)
}

func TestListRejectsInvertedTimeRange(t *testing.T) {
	svc, _ := newTestService(t)

	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	end := start.Add(-time.Hour)
	_, err := svc.List(context.Background(), auditdomain.ListAuditLogRequest{StartAt: &start, EndAt: &end})
	assert.ErrorIs(t, err, auditdomain.ErrInvalidTimeRange)
}
