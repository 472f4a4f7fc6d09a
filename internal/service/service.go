// Package service holds the mutating operations of the marketplace. Every
// operation takes the acting access.Actor explicitly, runs its checks and
// writes inside one store transaction, and publishes events only after the
// transaction committed.
package service

import (
	"context"
	"github.com/katoapp/agrimarket/internal/access"
	"github.com/katoapp/agrimarket/internal/apperr"
	"github.com/katoapp/agrimarket/internal/events"
	"github.com/katoapp/agrimarket/internal/logger"
	"github.com/katoapp/agrimarket/internal/metrics"
	"github.com/katoapp/agrimarket/internal/store"
	"go.uber.org/zap"
	"time"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// Deps are shared by all services.
type Deps struct {
	DB       store.Runner
	Events   events.Sink
	Log      *zap.Logger
	Producer string
	Now      func() time.Time
}

func (d Deps) now() time.Time {
	if d.Now != nil {
		return d.Now().UTC()
	}
	return time.Now().UTC()
}

func (d Deps) log(ctx context.Context) *zap.Logger {
	if l, ok := logger.Lookup(ctx); ok {
		return l
	}
	if d.Log != nil {
		return d.Log
	}
	return zap.NewNop()
}

// fail logs err at the level its kind deserves and returns it unchanged.
// Expected domain errors are debug noise; anything else is a system fault.
func (d Deps) fail(ctx context.Context, op string, err error) error {
	l := d.log(ctx)
	if apperr.Expected(err) {
		l.Debug(op+" refused", zap.String("code", apperr.KindOf(err).String()), zap.Error(err))
	} else {
		l.Error(op+" failed", zap.Error(err))
	}
	return err
}

func (d Deps) publish(ctx context.Context, eventType, correlationID string, payload any) {
	sink := d.Events
	if sink == nil {
		sink = events.Discard
	}
	e := events.New(eventType, d.Producer, correlationID, payload)
	e.TraceID = events.TraceFrom(ctx)
	sink.Publish(ctx, e)
	metrics.EventsPublished.WithLabelValues(eventType, "queued").Inc()
}

// authorize turns a policy refusal into an Unauthorized error.
func authorize(a access.Actor, rule access.Rule, action string) error {
	if !access.Authorize(a, rule) {
		return apperr.Unauthorized("not allowed to %s", action)
	}
	return nil
}

// authenticated checks that a is a well-formed actor, for read paths that
// have no role restriction.
func authenticated(a access.Actor) error {
	if err := a.Validate(); err != nil {
		return apperr.Unauthenticated(err.Error())
	}
	return nil
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

type Services struct {
	Orders     *Orders
	Production *Production
	Inventory  *Inventory
	Stats      *Stats
}

func New(d Deps, stats store.StatsReader) *Services {
	return &Services{
		Orders:     &Orders{Deps: d},
		Production: &Production{Deps: d},
		Inventory:  &Inventory{Deps: d},
		Stats:      &Stats{Reader: stats},
	}
}
