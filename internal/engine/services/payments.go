package services

import (
	"context"

	"github.com/dmitrijs2005/slotkeeper/internal/engine/repositories/payments"
)

// PaymentGate reports approved-payment facts for an (application, email)
// pair. It informs reconciliation and the optional quota policy only.
type PaymentGate interface {
	HasApprovedPayment(ctx context.Context, appID int64, email string) (bool, error)
	ApprovedCount(ctx context.Context, appID int64, email string) (int, error)
}

// RepoPaymentGate is a PaymentGate over the payments repository.
type RepoPaymentGate struct {
	repo payments.Repository
}

func NewPaymentGate(repo payments.Repository) *RepoPaymentGate {
	return &RepoPaymentGate{repo: repo}
}

func (g *RepoPaymentGate) HasApprovedPayment(ctx context.Context, appID int64, email string) (bool, error) {
	n, err := g.repo.CountApproved(ctx, appID, email)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (g *RepoPaymentGate) ApprovedCount(ctx context.Context, appID int64, email string) (int, error) {
	return g.repo.CountApproved(ctx, appID, email)
}
