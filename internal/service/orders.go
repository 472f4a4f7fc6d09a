package service

import (
	"context"
	"github.com/katoapp/agrimarket/internal/access"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/events"
	"github.com/katoapp/agrimarket/internal/inventory"
	"github.com/katoapp/agrimarket/internal/metrics"
	"github.com/katoapp/agrimarket/internal/orders"
	"github.com/katoapp/agrimarket/internal/store"
	"go.uber.org/zap"
	"time"
)

type Orders struct {
	Deps
}

// Create places a pending order. Reservation, sequence allocation and the
// insert share one transaction: either all of them commit or none does.
func (s *Orders) Create(ctx context.Context, actor access.Actor, in orders.CreateInput) (orders.Order, error) {
	o, _, err := s.CreateIdempotent(ctx, actor, "", in)
	return o, err
}

// CreateIdempotent is Create keyed by a client supplied idempotency key.
// The key is stored on the order row and looked up in the creating
// transaction, so a retry (even one racing the original request) returns
// the original order with created=false and reserves nothing. An empty key
// disables the lookup.
func (s *Orders) CreateIdempotent(ctx context.Context, actor access.Actor, key string, in orders.CreateInput) (o orders.Order, created bool, err error) {
	if err := authorize(actor, access.Require(access.RoleCustomer), "place orders"); err != nil {
		return orders.Order{}, false, s.fail(ctx, "create order", err)
	}
	if len(key) > orders.MaxIdempotencyKeyLen {
		return orders.Order{}, false, s.fail(ctx, "create order",
			apperr.Validation("idempotency key must be at most %d characters", orders.MaxIdempotencyKeyLen))
	}
	now := s.now()
	if err := in.Normalize(now); err != nil {
		return orders.Order{}, false, s.fail(ctx, "create order", err)
	}

	err = s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if key != "" {
			prev, found, err := tx.Orders().FindByIdempotencyKey(ctx, actor.ID, key)
			if err != nil {
				return err
			}
			if found {
				o = prev
				return nil
			}
		}
		item, err := inventory.Reserve(ctx, tx.Items(), in.InventoryID, in.Quantity)
		if err != nil {
			return err
		}
		seq, err := tx.Orders().NextSequence(ctx, orders.DayKey(now))
		if err != nil {
			return err
		}

		o = orders.Order{
			OrderNumber:           orders.FormatNumber(orders.DayKey(now), seq),
			SupplierID:            item.OwnerID,
			CustomerID:            actor.ID,
			InventoryID:           item.ID,
			Quantity:              in.Quantity,
			UnitPrice:             item.PricePerUnit,
			TotalAmount:           item.PricePerUnit.Mul(in.Quantity).Round(2),
			Status:                orders.StatusPending,
			DeliveryAddress:       in.DeliveryAddress,
			DeliveryMethod:        in.DeliveryMethod,
			RequestedDeliveryDate: in.RequestedDeliveryDate,
			Notes:                 in.Notes,
			IdempotencyKey:        key,
		}
		created = true
		return tx.Orders().Insert(ctx, &o)
	})
	if err != nil {
		switch apperr.KindOf(err) {
		case apperr.KindInsufficientStock, apperr.KindNotAvailable, apperr.KindNotFound:
			metrics.ReservationFailures.WithLabelValues(apperr.KindOf(err).String()).Inc()
		}
		return orders.Order{}, false, s.fail(ctx, "create order", err)
	}
	if !created {
		s.log(ctx).Info("order create replayed", zap.String("order_id", o.ID), zap.String("order_number", o.OrderNumber))
		return o, false, nil
	}

	metrics.OrdersCreated.Inc()
	s.log(ctx).Info("order created",
		zap.String("order_id", o.ID),
		zap.String("order_number", o.OrderNumber),
		zap.String("inventory_id", o.InventoryID),
		zap.String("quantity", o.Quantity.String()),
	)
	s.publish(ctx, events.TypeOrderCreated, o.ID, events.OrderCreatedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		SupplierID:  o.SupplierID,
		InventoryID: o.InventoryID,
		Quantity:    o.Quantity.String(),
		TotalAmount: o.TotalAmount.String(),
	})
	return o, true, nil
}

// TransitionInput is a requested status change. Reason is kept only for
// rejections.
type TransitionInput struct {
	Status orders.Status
	Reason string
}

// Transition moves an order to a new status on behalf of actor. Any
// (role, current, target) triple outside the table, or an order the actor
// does not own, is refused with Unauthorized and nothing is written.
func (s *Orders) Transition(ctx context.Context, actor access.Actor, orderID string, in TransitionInput) (orders.Order, error) {
	if _, err := orders.ParseStatus(string(in.Status)); err != nil {
		return orders.Order{}, s.fail(ctx, "transition order", apperr.Validation("%v", err))
	}
	if err := authorize(actor, access.Require(access.RoleAdmin, access.RolePetani, access.RoleManagement, access.RoleCustomer), "change order status"); err != nil {
		return orders.Order{}, s.fail(ctx, "transition order", err)
	}

	var ch change
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		o, err := tx.Orders().GetForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		ch, err = applyTransition(ctx, tx, actor, o, in.Status, in.Reason, s.now())
		return err
	})
	if err != nil {
		return orders.Order{}, s.fail(ctx, "transition order", err)
	}
	s.announce(ctx, actor, ch)
	return ch.order, nil
}

// change is a committed transition waiting to be announced.
type change struct {
	order orders.Order
	from  orders.Status
}

// applyTransition is the only code path that writes an order status. It
// checks the transition table and ownership, then runs the ledger side
// effect in the caller's transaction.
func applyTransition(ctx context.Context, tx store.Tx, actor access.Actor, o orders.Order, to orders.Status, reason string, now time.Time) (change, error) {
	from := o.Status
	if !orders.CanTransition(actor.Role, from, to) {
		return change{}, apperr.Unauthorized("%s cannot move an order from %s to %s", actor.Role, from, to)
	}
	switch actor.Role {
	case access.RoleCustomer:
		if o.CustomerID != actor.ID {
			return change{}, apperr.Unauthorized("only the ordering customer can cancel this order")
		}
	case access.RolePetani:
		if o.SupplierID != actor.ID {
			return change{}, apperr.Unauthorized("only the supplier can decide on this order")
		}
	}

	if to.ReleasesStock() {
		if _, err := inventory.Release(ctx, tx.Items(), o.InventoryID, o.Quantity); err != nil {
			return change{}, err
		}
	}
	switch to {
	case orders.StatusApproved:
		o.ApprovedAt = &now
	case orders.StatusRejected:
		o.RejectionReason = reason
	case orders.StatusDelivered:
		o.DeliveredAt = &now
	case orders.StatusCompleted:
		if _, err := inventory.MarkStatus(ctx, tx.Items(), o.InventoryID, inventory.StatusCompleted); err != nil {
			return change{}, err
		}
	}

	o.Status = to
	if err := tx.Orders().Update(ctx, o); err != nil {
		return change{}, err
	}
	return change{order: o, from: from}, nil
}

func (d Deps) announce(ctx context.Context, actor access.Actor, ch change) {
	o := ch.order
	metrics.OrderTransitions.WithLabelValues(string(ch.from), string(o.Status)).Inc()
	d.log(ctx).Info("order status changed",
		zap.String("order_id", o.ID),
		zap.String("from", string(ch.from)),
		zap.String("to", string(o.Status)),
		zap.String("actor_id", actor.ID),
	)
	d.publish(ctx, events.TypeOrderStatusChanged, o.ID, events.OrderStatusChangedPayload{
		OrderID:     o.ID,
		OrderNumber: o.OrderNumber,
		CustomerID:  o.CustomerID,
		SupplierID:  o.SupplierID,
		From:        string(ch.from),
		To:          string(o.Status),
		ActorID:     actor.ID,
		Reason:      o.RejectionReason,
	})
}

func (s *Orders) Get(ctx context.Context, actor access.Actor, id string) (orders.Order, error) {
	if err := authenticated(actor); err != nil {
		return orders.Order{}, err
	}
	var o orders.Order
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		o, err = tx.Orders().Get(ctx, id)
		return err
	})
	if err != nil {
		return orders.Order{}, s.fail(ctx, "get order", err)
	}
	if !orders.CanView(actor, o) {
		return orders.Order{}, s.fail(ctx, "get order", apperr.Unauthorized("not allowed to view this order"))
	}
	return o, nil
}

// List returns the orders actor may see, narrowed by f.
func (s *Orders) List(ctx context.Context, actor access.Actor, f orders.Filter) ([]orders.Order, error) {
	if err := authenticated(actor); err != nil {
		return nil, err
	}
	f = orders.ScopeFilter(actor, f)
	f.Limit, f.Offset = clampPage(f.Limit, f.Offset)

	var out []orders.Order
	err := s.DB.WithinTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.Orders().List(ctx, f)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "list orders", err)
	}
	return out, nil
}
