// Package ledger implements the ChainProof staking and reward ledger: token
// registry, user profiles, the stake/unstake state machine and the reward
// pool. Every operation runs as one unit of work on a storage.AccountStore
// and its events are emitted only once that unit has committed.
package ledger

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"chainproof-ledger/internal/custody"
	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/events"
	"chainproof-ledger/internal/idhash"
	"chainproof-ledger/internal/observability"
	"chainproof-ledger/internal/storage"
)

// Clock provides the current unix time in seconds.
type Clock interface {
	Now() int64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() int64

// Now implements Clock.
func (f ClockFunc) Now() int64 { return f() }

func systemNow() int64 { return time.Now().Unix() }

// Engine wires ledger logic with the account store, custody and event emission.
type Engine struct {
	store    storage.AccountStore
	deriver  *idhash.Deriver
	tokens   *custody.TokenProgram
	transfer custody.Transferer
	params   domain.Params
	emitter  events.Emitter
	clock    Clock
	log      *logrus.Entry
}

// NewEngine constructs an engine over store. tokens manages the stake mint;
// it is also the default transfer primitive.
func NewEngine(store storage.AccountStore, deriver *idhash.Deriver, tokens *custody.TokenProgram, params domain.Params) *Engine {
	return &Engine{
		store:    store,
		deriver:  deriver,
		tokens:   tokens,
		transfer: tokens,
		params:   params,
		emitter:  events.NoopEmitter{},
		clock:    ClockFunc(systemNow),
		log:      logrus.WithField("component", "ledger"),
	}
}

// SetEmitter configures the event emitter used by the engine.
func (e *Engine) SetEmitter(emitter events.Emitter) {
	if emitter == nil {
		e.emitter = events.NoopEmitter{}
		return
	}
	e.emitter = emitter
}

// SetClock overrides the time source.
func (e *Engine) SetClock(c Clock) {
	if c == nil {
		c = ClockFunc(systemNow)
	}
	e.clock = c
}

// SetNowFunc overrides the time source used for deterministic testing.
func (e *Engine) SetNowFunc(now func() int64) {
	if now == nil {
		e.clock = ClockFunc(systemNow)
		return
	}
	e.clock = ClockFunc(now)
}

// SetTransferer replaces the value-transfer primitive.
func (e *Engine) SetTransferer(t custody.Transferer) {
	if t == nil {
		e.transfer = e.tokens
		return
	}
	e.transfer = t
}

// SetLogger configures the engine logger.
func (e *Engine) SetLogger(log *logrus.Entry) {
	if log != nil {
		e.log = log
	}
}

// Params returns the program parameters in effect.
func (e *Engine) Params() domain.Params { return e.params }

// Deriver returns the address deriver of the deployment.
func (e *Engine) Deriver() *idhash.Deriver { return e.deriver }

// program owns every ledger record.
func (e *Engine) program() domain.Address { return e.deriver.Program() }

func (e *Engine) now() int64 {
	if e == nil || e.clock == nil {
		return systemNow()
	}
	return e.clock.Now()
}

// unit is the state of one operation while its unit of work is open.
type unit struct {
	ctx    context.Context
	tx     storage.Tx
	now    int64
	events []domain.EventPayload
	after  []func()
}

func (u *unit) emit(p domain.EventPayload) {
	u.events = append(u.events, p)
}

// onCommit schedules fn to run once the unit has committed.
func (u *unit) onCommit(fn func()) {
	u.after = append(u.after, fn)
}

// run executes fn as one unit of work. The store may call fn more than once
// when it retries a conflicting transaction; only the attempt that commits
// contributes events.
func (e *Engine) run(ctx context.Context, operation string, fn func(u *unit) error) error {
	if e == nil || e.store == nil {
		return errNilStore
	}
	start := time.Now()
	now := e.now()

	var committed *unit
	err := e.store.Update(ctx, func(tx storage.Tx) error {
		u := &unit{ctx: ctx, tx: tx, now: now}
		if err := fn(u); err != nil {
			return err
		}
		committed = u
		return nil
	})
	observability.RecordOperation(operation, resultLabel(err), time.Since(start).Seconds())
	if err != nil {
		e.log.WithError(err).WithField("operation", operation).Debug("operation rejected")
		return err
	}

	for _, fn := range committed.after {
		fn()
	}
	e.publish(ctx, committed)
	return nil
}

func (e *Engine) publish(ctx context.Context, u *unit) {
	if len(u.events) == 0 {
		return
	}
	source := uuid.NewString()
	for i, p := range u.events {
		evt := &domain.Event{
			ID:        idhash.ComputeEventID(source, i, p.EventName()),
			Source:    source,
			Index:     i,
			Timestamp: u.now,
			Payload:   p,
		}
		observe(p)
		e.emitter.Emit(ctx, evt)
	}
}

// observe records the metrics an event implies.
func observe(p domain.EventPayload) {
	observability.RecordEventEmitted(p.EventName())
	switch ev := p.(type) {
	case domain.Staked:
		observability.RecordStake(ev.Amount)
	case domain.Unstaked:
		observability.RecordUnstake(ev.Amount)
	case domain.ProjectVerified:
		observability.RecordVerification(true)
	case domain.ProjectVerificationRevoked:
		observability.RecordVerification(false)
	case domain.RewardsDistributed:
		observability.RecordDistribution(ev.CycleTimestamp)
	}
}

func resultLabel(err error) string {
	if err == nil {
		return "ok"
	}
	if le, ok := AsError(err); ok {
		return string(le.Kind)
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "canceled"
	}
	return "error"
}
