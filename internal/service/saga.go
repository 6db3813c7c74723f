package service

import (
	"context"
	"time"

	"checkout-service/internal/util"

	"go.uber.org/zap"
)

// sagaStep pairs a completed forward step with the action that undoes it
type sagaStep struct {
	name       string
	compensate func(ctx context.Context) error
}

// saga records the mutations an order operation has made so they can be
// undone if a later step fails. Compensation runs at most once, in reverse
// order, and on a context the caller cannot cancel.
type saga struct {
	orderID string
	timeout time.Duration
	steps   []sagaStep
	done    bool
	logger  *zap.Logger
}

func newSaga(orderID string, timeout time.Duration, logger *zap.Logger) *saga {
	return &saga{orderID: orderID, timeout: timeout, logger: logger}
}

// record registers the inverse of a step that has succeeded
func (s *saga) record(name string, compensate func(ctx context.Context) error) {
	s.steps = append(s.steps, sagaStep{name: name, compensate: compensate})
}

// compensate undoes every recorded step. Failures are logged and counted;
// the operator reconciles them by hand.
func (s *saga) compensate(ctx context.Context) {
	if s.done {
		return
	}
	s.done = true

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	ctx, span := util.StartSpan(ctx, "Saga.Compensate")
	defer span.End()

	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.compensate(ctx); err != nil {
			util.CompensationsTotal.WithLabelValues(step.name, "failed").Inc()
			util.RecordError(span, err)
			s.logger.Error("Compensation failed, manual reconciliation required",
				zap.String("order_id", s.orderID),
				zap.String("step", step.name),
				zap.Error(err))
			continue
		}
		util.CompensationsTotal.WithLabelValues(step.name, "succeeded").Inc()
		s.logger.Warn("Compensated order step",
			zap.String("order_id", s.orderID),
			zap.String("step", step.name))
	}
}
