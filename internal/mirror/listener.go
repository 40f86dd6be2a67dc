package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/events"
	"chainproof-ledger/internal/observability"
	"chainproof-ledger/internal/solana"
	"chainproof-ledger/internal/storage"
)

const (
	maxRetries        = 3
	baseRetryDelay    = 500 * time.Millisecond
	defaultBatchLimit = 1000
)

// EventListener forwards events logged by the program to an emitter, live
// over a logs subscription and historically via Backfill.
type EventListener struct {
	ws         solana.WSClient
	rpc        solana.RPCClient
	program    domain.Address
	emitter    events.Emitter
	progress   storage.SyncProgressStore
	commitment string
	batchLimit int
	retryDelay time.Duration
	nowFn      func() time.Time
	log        *logrus.Entry
}

// EventListenerOptions configures an EventListener.
type EventListenerOptions struct {
	WS       solana.WSClient
	RPC      solana.RPCClient
	Program  domain.Address
	Emitter  events.Emitter
	Progress storage.SyncProgressStore // optional
	// Commitment for the logs subscription; empty selects "confirmed".
	Commitment string
	// BatchLimit caps signatures fetched per page during backfill.
	BatchLimit int
	RetryDelay time.Duration
	NowFn      func() time.Time
	Logger     *logrus.Entry
}

// NewEventListener creates an event listener.
func NewEventListener(opts EventListenerOptions) *EventListener {
	l := &EventListener{
		ws:         opts.WS,
		rpc:        opts.RPC,
		program:    opts.Program,
		emitter:    opts.Emitter,
		progress:   opts.Progress,
		commitment: opts.Commitment,
		batchLimit: opts.BatchLimit,
		retryDelay: opts.RetryDelay,
		nowFn:      opts.NowFn,
		log:        opts.Logger,
	}
	if l.emitter == nil {
		l.emitter = events.NoopEmitter{}
	}
	if l.batchLimit <= 0 {
		l.batchLimit = defaultBatchLimit
	}
	if l.retryDelay <= 0 {
		l.retryDelay = baseRetryDelay
	}
	if l.nowFn == nil {
		l.nowFn = time.Now
	}
	if l.log == nil {
		l.log = logrus.WithField("component", "mirror-events")
	}
	return l
}

// Run subscribes to the program's logs and forwards decoded events until ctx
// is cancelled or the subscription closes.
func (l *EventListener) Run(ctx context.Context) error {
	if l.ws == nil {
		return errors.New("mirror: no websocket client")
	}
	ch, err := l.ws.SubscribeLogs(ctx, solana.LogsFilter{
		Mentions:   []string{l.program.String()},
		Commitment: l.commitment,
	})
	if err != nil {
		return fmt.Errorf("subscribe logs: %w", err)
	}
	l.log.WithField("program", l.program.String()).Info("listening for program events")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case notif, ok := <-ch:
			if !ok {
				return errors.New("mirror: logs subscription closed")
			}
			if notif.Err != nil {
				continue
			}
			ts := l.blockTime(ctx, notif.Signature)
			n := l.forward(ctx, notif.Signature, notif.Slot, ts, notif.Logs)
			if n > 0 {
				l.saveProgress(ctx, notif.Slot, notif.Signature)
			}
		}
	}
}

// BackfillResult summarizes a backfill.
type BackfillResult struct {
	Transactions int
	Events       int
	Failed       int // failed transactions skipped
	Errors       int // transactions that could not be fetched
	Duration     time.Duration
}

// Backfill replays program transactions newer than the saved progress, oldest
// first, and records progress after each one. Without saved progress it
// replays the whole history the RPC node retains.
func (l *EventListener) Backfill(ctx context.Context) (*BackfillResult, error) {
	if l.rpc == nil {
		return nil, errors.New("mirror: no rpc client")
	}
	start := time.Now()
	result := &BackfillResult{}

	until := ""
	if l.progress != nil {
		p, err := l.progress.GetLastProcessed(ctx)
		switch {
		case err == nil:
			until = p.Signature
		case !errors.Is(err, storage.ErrNotFound):
			return nil, fmt.Errorf("load progress: %w", err)
		}
	}

	sigs, err := l.collectSignatures(ctx, until)
	if err != nil {
		return nil, err
	}

	// signatures arrive newest first
	for i := len(sigs) - 1; i >= 0; i-- {
		sig := sigs[i]
		if sig.Err != nil {
			result.Failed++
			continue
		}
		tx, err := l.retryGetTransaction(ctx, sig.Signature)
		if err != nil || tx == nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Errors++
			l.log.WithError(err).WithField("signature", sig.Signature).Warn("fetch transaction")
			continue
		}
		result.Transactions++
		if tx.Failed() {
			result.Failed++
			continue
		}
		ts := tx.BlockTime
		if ts == 0 && sig.BlockTime != nil {
			ts = *sig.BlockTime
		}
		var logs []string
		if tx.Meta != nil {
			logs = tx.Meta.LogMessages
		}
		result.Events += l.forward(ctx, sig.Signature, tx.Slot, ts, logs)
		l.saveProgress(ctx, tx.Slot, sig.Signature)
	}

	result.Duration = time.Since(start)
	l.log.WithFields(logrus.Fields{
		"transactions": result.Transactions,
		"events":       result.Events,
		"failed":       result.Failed,
		"errors":       result.Errors,
		"duration":     result.Duration,
	}).Info("backfill complete")
	return result, nil
}

// collectSignatures pages through the program's signatures newer than until.
func (l *EventListener) collectSignatures(ctx context.Context, until string) ([]solana.SignatureInfo, error) {
	var (
		all    []solana.SignatureInfo
		before string
	)
	for {
		page, err := l.rpc.GetSignaturesForAddress(ctx, l.program.String(), &solana.SignaturesOpts{
			Before: before,
			Until:  until,
			Limit:  l.batchLimit,
		})
		if err != nil {
			return nil, fmt.Errorf("get signatures: %w", err)
		}
		all = append(all, page...)
		if len(page) < l.batchLimit {
			return all, nil
		}
		before = page[len(page)-1].Signature
	}
}

// forward decodes the program events in logs and emits them. It returns the
// number of events emitted.
func (l *EventListener) forward(ctx context.Context, signature string, slot, ts int64, logs []string) int {
	payloads := ParseProgramEvents(logs, l.program.String())
	for _, evt := range BuildEvents(signature, slot, ts, payloads) {
		l.emitter.Emit(ctx, evt)
		observability.RecordMirroredEvent(evt.Name())
	}
	if slot > 0 {
		observability.UpdateHighestSlot(slot)
	}
	if len(payloads) > 0 {
		l.log.WithFields(logrus.Fields{
			"signature": signature,
			"slot":      slot,
			"events":    len(payloads),
		}).Debug("mirrored transaction")
	}
	return len(payloads)
}

// blockTime resolves the block time of a live notification, falling back to
// the local clock when the transaction cannot be fetched.
func (l *EventListener) blockTime(ctx context.Context, signature string) int64 {
	if l.rpc != nil {
		tx, err := l.retryGetTransaction(ctx, signature)
		if err == nil && tx != nil && tx.BlockTime > 0 {
			return tx.BlockTime
		}
	}
	return l.nowFn().Unix()
}

// retryGetTransaction fetches a transaction with exponential backoff retry.
func (l *EventListener) retryGetTransaction(ctx context.Context, signature string) (*solana.Transaction, error) {
	var lastErr error
	for attempt := 0; attempt < maxRetries; attempt++ {
		tx, err := l.rpc.GetTransaction(ctx, signature)
		if err == nil {
			return tx, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		delay := l.retryDelay * time.Duration(1<<attempt)
		l.log.WithError(err).WithFields(logrus.Fields{
			"signature": signature,
			"attempt":   attempt + 1,
			"delay":     delay,
		}).Debug("retry get transaction")
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return nil, lastErr
}

func (l *EventListener) saveProgress(ctx context.Context, slot int64, signature string) {
	if l.progress == nil {
		return
	}
	if err := l.progress.SetLastProcessed(ctx, &storage.SyncProgress{Slot: slot, Signature: signature}); err != nil {
		l.log.WithError(err).Warn("save progress")
	}
}
