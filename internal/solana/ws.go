package solana

import "context"

// WSClient streams program logs over the node's pubsub endpoint.
type WSClient interface {
	// SubscribeLogs streams log notifications for transactions matching filter.
	SubscribeLogs(ctx context.Context, filter LogsFilter) (<-chan LogNotification, error)
	Close() error
}

// LogsFilter selects the transactions a logs subscription reports.
type LogsFilter struct {
	Mentions   []string // program ids; empty subscribes to all transactions
	Commitment string   // "confirmed" when empty
}

func (f LogsFilter) commitment() string {
	if f.Commitment != "" {
		return f.Commitment
	}
	return defaultCommitment
}

// LogNotification is one transaction's logs as pushed by logsSubscribe.
// Err is set when the transaction failed.
type LogNotification struct {
	Signature string
	Slot      int64
	Logs      []string
	Err       interface{}
}
