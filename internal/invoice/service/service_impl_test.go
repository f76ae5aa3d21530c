package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/glebarez/sqlite"
	"github.com/countercore/tally/internal/clock"
	"github.com/countercore/tally/internal/invoice/domain"
	"github.com/countercore/tally/internal/invoice/repository"
	orderdomain "github.com/countercore/tally/internal/order/domain"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

func newTestService(t *testing.T) domain.Service {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	assert.NoError(t, err)
	assert.NoError(t, conn.AutoMigrate(&domain.Invoice{}))

	node, err := snowflake.NewNode(1)
	assert.NoError(t, err)

	return New(Params{
		DB:    conn,
		Log:   zap.NewNop(),
		GenID: node,
		Clock: clock.NewFakeClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		Repo:  repository.Provide(),
	})
}

func submitReq() domain.SubmitRequest {
	return domain.SubmitRequest{
		CustomerID:  "cust-1",
		BillingMode: orderdomain.BillingModeWithGST,
		Lines: []orderdomain.LineItem{
			{ProductID: "p1", Name: "Tea", Quantity: 2, UnitPrice: 100000},
		},
		Method:         "cash",
		Subtotal:       200000,
		DiscountAmount: 20000,
		TaxAmount:      32400,
		Total:          212400,
		PaidAmount:     212400,
		PaymentDetail:  map[string]any{"amount_received": int64(220000)},
	}
}

func TestSubmitRecordsInvoice(t *testing.T) {
	svc := newTestService(t)

	invoice, err := svc.Submit(context.Background(), submitReq())
	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(invoice.Number, "INV-"))
	assert.Equal(t, int64(212400), invoice.Total)

	loaded, err := svc.GetByNumber(context.Background(), invoice.Number)
	assert.NoError(t, err)
	assert.Equal(t, invoice.Number, loaded.Number)
	assert.Equal(t, "cash", loaded.Method)
}

func TestSubmitRecomputesTotal(t *testing.T) {
	svc := newTestService(t)

	req := submitReq()
	req.Total = 999999

	invoice, err := svc.Submit(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, int64(212400), invoice.Total)
}

func TestSubmitValidation(t *testing.T) {
	svc := newTestService(t)

	req := submitReq()
	req.Lines = nil
	_, err := svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidSubmission)

	req = submitReq()
	req.Method = ""
	_, err = svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidSubmission)

	req = submitReq()
	req.DiscountAmount = req.Subtotal + 1
	_, err = svc.Submit(context.Background(), req)
	assert.ErrorIs(t, err, domain.ErrInvalidSubmission)
}

func TestGetByNumberNotFound(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetByNumber(context.Background(), "INV-404")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = svc.GetByNumber(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
