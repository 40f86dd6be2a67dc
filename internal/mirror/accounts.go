// Package mirror imports the deployed program's on-chain state and events
// into the local stores.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/layout"
	"chainproof-ledger/internal/observability"
	"chainproof-ledger/internal/solana"
	"chainproof-ledger/internal/storage"
)

// ProgramKinds are the record types owned by the program, in import order.
var ProgramKinds = []layout.Kind{
	layout.KindRewardPool,
	layout.KindDeveloperRegistry,
	layout.KindTokenEntry,
	layout.KindUserProfile,
	layout.KindProjectStakes,
	layout.KindUserStake,
}

// SyncResult summarizes one account sync pass.
type SyncResult struct {
	Imported map[layout.Kind]int
	Skipped  int // accounts whose data failed to decode
	Duration time.Duration
}

// Total returns the number of imported accounts.
func (r *SyncResult) Total() int {
	n := 0
	for _, c := range r.Imported {
		n += c
	}
	return n
}

// AccountSyncer copies program accounts from chain into an AccountStore.
type AccountSyncer struct {
	rpc     solana.RPCClient
	store   storage.AccountStore
	program domain.Address
	nowFn   func() time.Time
	log     *logrus.Entry
}

// AccountSyncerOptions configures an AccountSyncer.
type AccountSyncerOptions struct {
	RPC     solana.RPCClient
	Store   storage.AccountStore
	Program domain.Address
	NowFn   func() time.Time
	Logger  *logrus.Entry
}

// NewAccountSyncer creates an account syncer.
func NewAccountSyncer(opts AccountSyncerOptions) *AccountSyncer {
	nowFn := opts.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = logrus.WithField("component", "mirror-accounts")
	}
	return &AccountSyncer{
		rpc:     opts.RPC,
		store:   opts.Store,
		program: opts.Program,
		nowFn:   nowFn,
		log:     logger,
	}
}

type fetched struct {
	addr  domain.Address
	owner domain.Address
	kind  layout.Kind
	data  []byte
}

// SyncAll imports every program-owned record.
func (s *AccountSyncer) SyncAll(ctx context.Context) (*SyncResult, error) {
	start := time.Now()
	result := &SyncResult{Imported: make(map[layout.Kind]int)}
	for _, kind := range ProgramKinds {
		n, skipped, err := s.SyncKind(ctx, kind)
		if err != nil {
			return result, fmt.Errorf("sync %s: %w", kind, err)
		}
		result.Imported[kind] = n
		result.Skipped += skipped
	}
	result.Duration = time.Since(start)
	s.log.WithFields(logrus.Fields{
		"imported": result.Total(),
		"skipped":  result.Skipped,
		"duration": result.Duration,
	}).Info("account sync complete")
	return result, nil
}

// SyncKind imports all program accounts of one kind, selected by their
// discriminator. It returns the imported and skipped counts.
func (s *AccountSyncer) SyncKind(ctx context.Context, kind layout.Kind) (int, int, error) {
	disc := layout.AccountDiscriminator(kind)
	accounts, err := s.rpc.GetProgramAccounts(ctx, s.program.String(), []solana.AccountFilter{
		{Memcmp: &solana.MemcmpFilter{Offset: 0, Bytes: disc[:]}},
	})
	if err != nil {
		return 0, 0, fmt.Errorf("get program accounts: %w", err)
	}

	batch := make([]fetched, 0, len(accounts))
	skipped := 0
	for _, pa := range accounts {
		f, err := s.decode(pa.Pubkey, &pa.Account)
		if err != nil {
			skipped++
			s.log.WithError(err).WithField("address", pa.Pubkey).Warn("skip undecodable account")
			continue
		}
		if f.kind != kind {
			skipped++
			continue
		}
		batch = append(batch, f)
	}
	if err := s.importAccounts(ctx, batch); err != nil {
		return 0, skipped, err
	}
	return len(batch), skipped, nil
}

// SyncAccount imports one account by address. Token accounts are accepted
// too. Returns storage.ErrNotFound if the account does not exist on chain.
func (s *AccountSyncer) SyncAccount(ctx context.Context, addr domain.Address) (layout.Kind, error) {
	info, err := s.rpc.GetAccountInfo(ctx, addr.String())
	if err != nil {
		return "", fmt.Errorf("get account info: %w", err)
	}
	if info == nil {
		return "", fmt.Errorf("account %s: %w", addr, storage.ErrNotFound)
	}
	f, err := s.decode(addr.String(), info)
	if err != nil {
		return "", err
	}
	if err := s.importAccounts(ctx, []fetched{f}); err != nil {
		return "", err
	}
	return f.kind, nil
}

func (s *AccountSyncer) decode(pubkey string, info *solana.AccountInfo) (fetched, error) {
	addr, err := domain.ParseAddress(pubkey)
	if err != nil {
		return fetched{}, fmt.Errorf("address: %w", err)
	}
	owner, err := domain.ParseAddress(info.Owner)
	if err != nil {
		return fetched{}, fmt.Errorf("owner: %w", err)
	}
	data, err := info.DecodeData()
	if err != nil {
		return fetched{}, err
	}
	kind, _, err := layout.DecodeAccount(data)
	if err != nil {
		return fetched{}, fmt.Errorf("decode %s: %w", pubkey, err)
	}
	return fetched{addr: addr, owner: owner, kind: kind, data: data}, nil
}

// importAccounts writes the batch in one unit of work, creating new records
// and overwriting existing ones.
func (s *AccountSyncer) importAccounts(ctx context.Context, batch []fetched) error {
	if len(batch) == 0 {
		return nil
	}
	now := s.nowFn().Unix()
	err := s.store.Update(ctx, func(tx storage.Tx) error {
		for _, f := range batch {
			acct := &storage.Account{
				Address:   f.addr,
				Owner:     f.owner,
				Kind:      string(f.kind),
				Data:      f.data,
				UpdatedAt: now,
			}
			_, err := tx.Get(ctx, f.addr)
			switch {
			case errors.Is(err, storage.ErrNotFound):
				err = tx.Create(ctx, acct)
			case err == nil:
				err = tx.Put(ctx, acct)
			}
			if err != nil {
				return fmt.Errorf("import %s: %w", f.addr, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, f := range batch {
		observability.RecordAccountSynced(string(f.kind))
	}
	return nil
}
