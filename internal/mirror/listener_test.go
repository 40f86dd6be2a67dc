package mirror

import (
	"context"
	"encoding/base64"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/events"
	"chainproof-ledger/internal/idhash"
	"chainproof-ledger/internal/layout"
	"chainproof-ledger/internal/solana"
	"chainproof-ledger/internal/solana/stub"
	"chainproof-ledger/internal/storage"
	"chainproof-ledger/internal/storage/memory"
)

const tokenProgramID = domain.TokenProgramID

func dataLine(t *testing.T, p domain.EventPayload) string {
	t.Helper()
	raw, err := layout.EncodeEvent(p)
	require.NoError(t, err)
	return "Program data: " + base64.StdEncoding.EncodeToString(raw)
}

func stakeLogs(t *testing.T, amount, total uint64) []string {
	t.Helper()
	p := program.String()
	return []string{
		"Program " + p + " invoke [1]",
		"Program log: Instruction: Stake",
		"Program " + tokenProgramID + " invoke [2]",
		dataLine(t, domain.Staked{User: staker, ProjectMint: projectMint, Amount: 1, TotalStakes: 1}),
		"Program " + tokenProgramID + " success",
		dataLine(t, domain.Staked{User: staker, ProjectMint: projectMint, Amount: amount, TotalStakes: total}),
		"Program " + p + " consumed 21000 of 200000 compute units",
		"Program " + p + " success",
	}
}

func TestParseProgramEvents(t *testing.T) {
	payloads := ParseProgramEvents(stakeLogs(t, 250, 4), program.String())
	require.Len(t, payloads, 1)
	assert.Equal(t, domain.Staked{User: staker, ProjectMint: projectMint, Amount: 250, TotalStakes: 4}, payloads[0])
}

func TestParseProgramEvents_SkipsForeignAndMalformed(t *testing.T) {
	p := program.String()
	logs := []string{
		dataLine(t, domain.ProjectVerified{ProjectMint: projectMint, TotalStakes: 10}), // outside any invocation
		"Program " + p + " invoke [1]",
		"Program data: !!!not-base64",
		"Program data: " + base64.StdEncoding.EncodeToString([]byte("unknown-disc")),
		dataLine(t, domain.ProjectVerified{ProjectMint: projectMint, TotalStakes: 10}),
		"Program " + p + " failed: custom program error: 0x1771",
		dataLine(t, domain.ProjectVerified{ProjectMint: projectMint, TotalStakes: 11}),
	}
	payloads := ParseProgramEvents(logs, p)
	require.Len(t, payloads, 1)
	assert.Equal(t, domain.ProjectVerified{ProjectMint: projectMint, TotalStakes: 10}, payloads[0])
}

func TestBuildEvents(t *testing.T) {
	evts := BuildEvents("sig1", 42, 1700000000, []domain.EventPayload{
		domain.Staked{User: staker, ProjectMint: projectMint, Amount: 10, TotalStakes: 10},
		domain.ProjectVerified{ProjectMint: projectMint, TotalStakes: 10},
	})
	require.Len(t, evts, 2)
	assert.Equal(t, idhash.ComputeEventID("sig1", 0, domain.EventStaked), evts[0].ID)
	assert.Equal(t, idhash.ComputeEventID("sig1", 1, domain.EventProjectVerified), evts[1].ID)
	assert.Equal(t, 1, evts[1].Index)
	assert.Equal(t, int64(42), evts[1].Slot)
	assert.Equal(t, "sig1", evts[0].Source)
}

func addTx(rpc *stub.RPCClient, sig string, slot int64, logs []string, failed bool) {
	meta := &solana.TransactionMeta{LogMessages: logs}
	if failed {
		meta.Err = map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}
	}
	rpc.AddTransaction(&solana.Transaction{
		Slot:      slot,
		Signature: sig,
		BlockTime: 1700000000 + slot,
		Meta:      meta,
	})
}

func TestBackfill(t *testing.T) {
	ctx := context.Background()
	rpc := stub.NewRPCClient()
	progress := memory.NewSyncProgressStore()
	rec := &events.Recorder{}

	addTx(rpc, "sigA", 10, stakeLogs(t, 100, 1), false)
	addTx(rpc, "sigB", 11, stakeLogs(t, 200, 2), true)
	addTx(rpc, "sigC", 12, stakeLogs(t, 300, 2), false)
	rpc.AddSignatures(program.String(), []solana.SignatureInfo{
		{Signature: "sigC", Slot: 12},
		{Signature: "sigB", Slot: 11},
		{Signature: "sigA", Slot: 10},
	})

	l := NewEventListener(EventListenerOptions{
		RPC:        rpc,
		Program:    program,
		Emitter:    rec,
		Progress:   progress,
		BatchLimit: 2,
		RetryDelay: time.Millisecond,
	})
	result, err := l.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Transactions)
	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 2, result.Events)

	got := rec.Events()
	require.Len(t, got, 2)
	assert.Equal(t, "sigA", got[0].Source)
	assert.Equal(t, int64(1700000010), got[0].Timestamp)
	assert.Equal(t, uint64(300), got[1].Payload.(domain.Staked).Amount)

	p, err := progress.GetLastProcessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, "sigC", p.Signature)
	assert.Equal(t, int64(12), p.Slot)

	// resumes after the saved signature
	addTx(rpc, "sigD", 13, stakeLogs(t, 400, 3), false)
	rpc.AddSignatures(program.String(), []solana.SignatureInfo{
		{Signature: "sigD", Slot: 13},
		{Signature: "sigC", Slot: 12},
		{Signature: "sigB", Slot: 11},
		{Signature: "sigA", Slot: 10},
	})
	rec.Reset()
	result, err = l.Backfill(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Transactions)
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "sigD", rec.Events()[0].Source)
}

func TestBackfill_MissingTransaction(t *testing.T) {
	rpc := stub.NewRPCClient()
	rpc.AddSignatures(program.String(), []solana.SignatureInfo{{Signature: "gone", Slot: 5}})

	l := NewEventListener(EventListenerOptions{RPC: rpc, Program: program, RetryDelay: time.Millisecond})
	result, err := l.Backfill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 0, result.Transactions)
}

func TestRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ws := stub.NewWSClient(4)
	rpc := stub.NewRPCClient()
	addTx(rpc, "live1", 20, nil, false)
	rec := &events.Recorder{}
	progress := memory.NewSyncProgressStore()

	l := NewEventListener(EventListenerOptions{
		WS:         ws,
		RPC:        rpc,
		Program:    program,
		Emitter:    rec,
		Progress:   progress,
		RetryDelay: time.Millisecond,
	})

	done := runListener(ctx, l)
	<-ws.Subscribed()
	ws.Push(solana.LogNotification{Signature: "failed", Slot: 19, Logs: stakeLogs(t, 1, 1), Err: "boom"})
	ws.Push(solana.LogNotification{Signature: "live1", Slot: 20, Logs: stakeLogs(t, 700, 5)})
	ws.Close()

	err := waitRun(t, done)
	require.Error(t, err)
	assert.False(t, errors.Is(err, context.Canceled))
	assert.Contains(t, err.Error(), "subscription closed")

	require.Len(t, ws.Filters, 1)
	assert.Equal(t, []string{program.String()}, ws.Filters[0].Mentions)

	got := rec.Events()
	require.Len(t, got, 1)
	assert.Equal(t, "live1", got[0].Source)
	assert.Equal(t, int64(1700000020), got[0].Timestamp)
	assert.Equal(t, int64(20), got[0].Slot)

	p, err := progress.GetLastProcessed(ctx)
	require.NoError(t, err)
	assert.Equal(t, "live1", p.Signature)
}

func TestRun_ProgressStoreErrorsAreNotFatal(t *testing.T) {
	ws := stub.NewWSClient(1)
	rec := &events.Recorder{}
	l := NewEventListener(EventListenerOptions{
		WS:       ws,
		Program:  program,
		Emitter:  rec,
		Progress: failingProgress{},
		NowFn:    func() time.Time { return fixedNow },
	})
	done := runListener(context.Background(), l)
	<-ws.Subscribed()
	ws.Push(solana.LogNotification{Signature: "x", Slot: 1, Logs: stakeLogs(t, 5, 1)})
	ws.Close()

	require.Error(t, waitRun(t, done))
	require.Len(t, rec.Events(), 1)
	assert.Equal(t, fixedNow.Unix(), rec.Events()[0].Timestamp)
}

// runListener starts Run so notifications can be pushed after it subscribes.
func runListener(ctx context.Context, l *EventListener) <-chan error {
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx) }()
	return done
}

func waitRun(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
		return nil
	}
}

type failingProgress struct{}

func (failingProgress) GetLastProcessed(context.Context) (*storage.SyncProgress, error) {
	return nil, errors.New("down")
}

func (failingProgress) SetLastProcessed(context.Context, *storage.SyncProgress) error {
	return errors.New("down")
}
