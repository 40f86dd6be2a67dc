// Package solana is a small Solana client covering what the ledger mirror
// reads: program accounts, program signatures, transactions and program log
// subscriptions.
package solana

import (
	"context"
	"encoding/base64"
	"fmt"
)

// RPCClient defines the Solana RPC HTTP calls the mirror needs.
type RPCClient interface {
	// GetTransaction retrieves a transaction by signature. Returns nil if unknown.
	GetTransaction(ctx context.Context, signature string) (*Transaction, error)

	// GetSignaturesForAddress retrieves signatures for an address with pagination,
	// newest first.
	GetSignaturesForAddress(ctx context.Context, address string, opts *SignaturesOpts) ([]SignatureInfo, error)

	// GetAccountInfo retrieves one account. Returns nil if it does not exist.
	GetAccountInfo(ctx context.Context, pubkey string) (*AccountInfo, error)

	// GetProgramAccounts retrieves the accounts owned by program matching filters.
	GetProgramAccounts(ctx context.Context, program string, filters []AccountFilter) ([]ProgramAccount, error)

	// GetSlot retrieves the current slot.
	GetSlot(ctx context.Context) (int64, error)
}

// Transaction is a confirmed transaction reduced to what event decoding needs.
type Transaction struct {
	Slot      int64
	Signature string
	BlockTime int64 // unix seconds, 0 when the node has no block time
	Meta      *TransactionMeta
}

// Failed reports whether the transaction was executed with an error.
// Failed transactions emit no program events.
func (t *Transaction) Failed() bool {
	return t.Meta != nil && t.Meta.Err != nil
}

// TransactionMeta holds the execution result and program logs.
type TransactionMeta struct {
	Err         interface{}
	LogMessages []string
}

// SignatureInfo is one entry of getSignaturesForAddress.
type SignatureInfo struct {
	Signature string
	Slot      int64
	BlockTime *int64
	Err       interface{}
}

// SignaturesOpts pages through getSignaturesForAddress, newest first.
type SignaturesOpts struct {
	Before string // exclusive upper bound
	Until  string // exclusive lower bound
	Limit  int    // page size, node default when 0
}

// AccountInfo is an account as returned with base64 encoding.
type AccountInfo struct {
	Lamports   uint64 `json:"lamports"`
	Owner      string `json:"owner"`
	Data       string `json:"data"` // base64
	Executable bool   `json:"executable"`
}

// DecodeData returns the raw account bytes.
func (a *AccountInfo) DecodeData() ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(a.Data)
	if err != nil {
		return nil, fmt.Errorf("decode account data: %w", err)
	}
	return data, nil
}

// AccountFilter narrows getProgramAccounts. Set either Memcmp or DataSize.
type AccountFilter struct {
	Memcmp   *MemcmpFilter
	DataSize uint64
}

// MemcmpFilter matches accounts whose data holds Bytes at Offset.
type MemcmpFilter struct {
	Offset uint64
	Bytes  []byte
}

// ProgramAccount is one result of getProgramAccounts.
type ProgramAccount struct {
	Pubkey  string
	Account AccountInfo
}

var _ RPCClient = (*HTTPClient)(nil)
