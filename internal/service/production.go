package service

import (
	"context"
	"encoding/json"
	"github.com/katoapp/agrimarket/internal/access"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/events"
	"github.com/katoapp/agrimarket/internal/metrics"
	"github.com/katoapp/agrimarket/internal/orders"
	"github.com/katoapp/agrimarket/internal/production"
	"github.com/katoapp/agrimarket/internal/store"
	"go.uber.org/zap"
)

// Production tracks processing stages of approved orders.
type Production struct {
	Deps
}

type StartStageInput struct {
	OrderID  string
	Stage    production.Stage
	Readings production.Readings
}

func stageRule(st production.Stage) access.Rule {
	return access.Require(access.RoleManagement).WithSubroles(st.Subrole())
}

// StartStage opens the record for (order, stage). The first stage started
// on an approved order moves the order into production.
func (s *Production) StartStage(ctx context.Context, actor access.Actor, in StartStageInput) (production.Record, error) {
	if _, err := production.ParseStage(string(in.Stage)); err != nil {
		return production.Record{}, s.fail(ctx, "start stage", apperr.Validation("%v", err))
	}
	if err := authorize(actor, stageRule(in.Stage), "operate stage "+string(in.Stage)); err != nil {
		return production.Record{}, s.fail(ctx, "start stage", err)
	}
	if err := in.Readings.Validate(); err != nil {
		return production.Record{}, s.fail(ctx, "start stage", err)
	}

	var (
		rec production.Record
		ch  *change
	)
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, in.OrderID)
		if err != nil {
			return err
		}
		if !o.Status.ProductionEligible() {
			return apperr.InvalidState("order %s is %s, production needs an approved order", o.OrderNumber, o.Status)
		}

		now := s.now()
		rec = production.Record{
			OrderID:    o.ID,
			Stage:      in.Stage,
			Status:     production.StatusInProgress,
			OperatorID: actor.ID,
			StartedAt:  &now,
		}
		in.Readings.Apply(&rec)
		if err := tx.Productions().Insert(ctx, &rec); err != nil {
			return err
		}

		if o.Status == orders.StatusApproved {
			c, err := applyTransition(ctx, tx, actor, o, orders.StatusInProduction, "", now)
			if err != nil {
				return err
			}
			ch = &c
		}
		return nil
	})
	if err != nil {
		return production.Record{}, s.fail(ctx, "start stage", err)
	}

	s.log(ctx).Info("production stage started",
		zap.String("record_id", rec.ID),
		zap.String("order_id", rec.OrderID),
		zap.String("stage", string(rec.Stage)),
	)
	s.publish(ctx, events.TypeProductionStageStarted, rec.OrderID, stagePayload(rec))
	if ch != nil {
		s.announce(ctx, actor, *ch)
	}
	return rec, nil
}

type CompleteStageInput struct {
	QualityMetrics json.RawMessage
	Notes          *string
}

// CompleteStage closes an in-progress record. When this completes the last
// required stage of an in-production order, the order moves to
// ready_for_delivery through the regular transition path in the same
// transaction.
func (s *Production) CompleteStage(ctx context.Context, actor access.Actor, recordID string, in CompleteStageInput) (production.Record, error) {
	readings := production.Readings{QualityMetrics: in.QualityMetrics, Notes: in.Notes}
	if err := readings.Validate(); err != nil {
		return production.Record{}, s.fail(ctx, "complete stage", err)
	}

	var (
		rec production.Record
		ch  *change
	)
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		peek, err := tx.Productions().Get(ctx, recordID)
		if err != nil {
			return err
		}
		if err := authorize(actor, stageRule(peek.Stage), "operate stage "+string(peek.Stage)); err != nil {
			return err
		}

		// The order row is locked before the record so that concurrent
		// completions for one order run one after another and exactly one
		// of them sees every required stage done.
		o, err := tx.Orders().GetForUpdate(ctx, peek.OrderID)
		if err != nil {
			return err
		}
		rec, err = tx.Productions().GetForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if rec.Status != production.StatusInProgress {
			return apperr.NotInProgress()
		}

		now := s.now()
		rec.Status = production.StatusCompleted
		rec.CompletedAt = &now
		readings.Apply(&rec)
		if err := tx.Productions().Update(ctx, rec); err != nil {
			return err
		}

		if o.Status != orders.StatusInProduction {
			return nil
		}
		recs, err := tx.Productions().ListByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if !production.AllRequiredCompleted(recs) {
			return nil
		}
		c, err := applyTransition(ctx, tx, actor, o, orders.StatusReadyForDelivery, "", now)
		if err != nil {
			return err
		}
		ch = &c
		return nil
	})
	if err != nil {
		return production.Record{}, s.fail(ctx, "complete stage", err)
	}

	metrics.StagesCompleted.WithLabelValues(string(rec.Stage)).Inc()
	s.log(ctx).Info("production stage completed",
		zap.String("record_id", rec.ID),
		zap.String("order_id", rec.OrderID),
		zap.String("stage", string(rec.Stage)),
		zap.Bool("order_ready", ch != nil),
	)
	s.publish(ctx, events.TypeProductionStageCompleted, rec.OrderID, stagePayload(rec))
	if ch != nil {
		s.announce(ctx, actor, *ch)
	}
	return rec, nil
}

// UpdateReadings amends environment readings, notes or quality metrics of
// a record without changing its status.
func (s *Production) UpdateReadings(ctx context.Context, actor access.Actor, recordID string, r production.Readings) (production.Record, error) {
	if err := r.Validate(); err != nil {
		return production.Record{}, s.fail(ctx, "update readings", err)
	}
	var rec production.Record
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rec, err = tx.Productions().GetForUpdate(ctx, recordID)
		if err != nil {
			return err
		}
		if err := authorize(actor, stageRule(rec.Stage), "operate stage "+string(rec.Stage)); err != nil {
			return err
		}
		r.Apply(&rec)
		return tx.Productions().Update(ctx, rec)
	})
	if err != nil {
		return production.Record{}, s.fail(ctx, "update readings", err)
	}
	return rec, nil
}

func staff(a access.Actor) bool {
	return a.Role == access.RoleAdmin || a.Role == access.RoleManagement
}

// Get returns a record to staff, or to the customer and supplier of its
// order.
func (s *Production) Get(ctx context.Context, actor access.Actor, id string) (production.Record, error) {
	if err := authenticated(actor); err != nil {
		return production.Record{}, err
	}
	var rec production.Record
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		rec, err = tx.Productions().Get(ctx, id)
		if err != nil || staff(actor) {
			return err
		}
		o, err := tx.Orders().Get(ctx, rec.OrderID)
		if err != nil {
			return err
		}
		if !orders.CanView(actor, o) {
			return apperr.Unauthorized("not allowed to view this production record")
		}
		return nil
	})
	if err != nil {
		return production.Record{}, s.fail(ctx, "get production record", err)
	}
	return rec, nil
}

// List returns records matching f. Non-staff actors must name an order
// they can view.
func (s *Production) List(ctx context.Context, actor access.Actor, f production.Filter) ([]production.Record, error) {
	if err := authenticated(actor); err != nil {
		return nil, err
	}
	f.Limit, f.Offset = clampPage(f.Limit, f.Offset)

	var out []production.Record
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if !staff(actor) {
			if f.OrderID == "" {
				return apperr.Validation("order_id is required")
			}
			o, err := tx.Orders().Get(ctx, f.OrderID)
			if err != nil {
				return err
			}
			if !orders.CanView(actor, o) {
				return apperr.Unauthorized("not allowed to view this order")
			}
		}
		var err error
		out, err = tx.Productions().List(ctx, f)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "list production records", err)
	}
	return out, nil
}

func stagePayload(r production.Record) events.ProductionStagePayload {
	return events.ProductionStagePayload{
		RecordID:   r.ID,
		OrderID:    r.OrderID,
		Stage:      string(r.Stage),
		Status:     string(r.Status),
		OperatorID: r.OperatorID,
	}
}
