package services

import (
	"context"
	"fmt"

	"github.com/outlivion/portal/core"
)

// HistoryLocator finds a payment by scanning the user's payment history.
// The backend has no lookup by id; a future endpoint only needs another
// core.PaymentLocator.
type HistoryLocator struct {
	backend core.Backend
}

var _ core.PaymentLocator = (*HistoryLocator)(nil)

func NewHistoryLocator(backend core.Backend) *HistoryLocator {
	return &HistoryLocator{backend: backend}
}

func (l *HistoryLocator) FindPayment(ctx context.Context, paymentID string) (*core.Payment, error) {
	var payments []core.Payment
	if err := l.backend.Get(ctx, core.EndpointPayments.Path, &payments); err != nil {
		return nil, err
	}
	for i := range payments {
		if payments[i].ID == paymentID {
			return &payments[i], nil
		}
	}
	return nil, fmt.Errorf("%w: payment %s", core.ErrNotFound, paymentID)
}
