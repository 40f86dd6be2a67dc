package layout

import (
	"encoding/hex"
	"errors"
	"testing"

	"chainproof-ledger/internal/domain"
)

func TestEventDiscriminator(t *testing.T) {
	d := EventDiscriminator(domain.EventStaked)
	if got := hex.EncodeToString(d[:]); got != "0b922dcde63ad5f0" {
		t.Errorf("Expected 0b922dcde63ad5f0, got %s", got)
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	payloads := []domain.EventPayload{
		domain.Staked{User: testWallet, ProjectMint: testMint, Amount: 100, TotalStakes: 10},
		domain.ProfileCreated{Wallet: testWallet, Username: "alice", IsDeveloper: true, Timestamp: 1_700_000_000},
		domain.UnstakeRequested{User: testWallet, ProjectMint: testMint, CooldownEnds: 1_700_172_800},
		domain.RewardsDistributed{CycleTimestamp: 1_700_604_800, DeveloperShare: 600, UserShare: 400, TotalDevelopers: 3},
	}
	for _, p := range payloads {
		data, err := EncodeEvent(p)
		if err != nil {
			t.Fatalf("EncodeEvent(%s) failed: %v", p.EventName(), err)
		}
		got, err := DecodeEvent(data)
		if err != nil {
			t.Fatalf("DecodeEvent(%s) failed: %v", p.EventName(), err)
		}
		if got != p {
			t.Errorf("Expected %+v, got %+v", p, got)
		}
	}
}

func TestRewardsDistributed_NoAuthorityOnWire(t *testing.T) {
	p := domain.RewardsDistributed{Authority: testWallet, CycleTimestamp: 1, DeveloperShare: 6, UserShare: 4}
	data, err := EncodeEvent(p)
	if err != nil {
		t.Fatalf("EncodeEvent failed: %v", err)
	}
	if len(data) != DiscriminatorLength+32 {
		t.Errorf("Expected %d bytes, got %d", DiscriminatorLength+32, len(data))
	}
	got, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent failed: %v", err)
	}
	if !got.(domain.RewardsDistributed).Authority.IsZero() {
		t.Error("Expected zero authority after decode")
	}
}

func TestDecodeEvent_Unknown(t *testing.T) {
	if _, err := DecodeEvent([]byte("notanevent-payload")); !errors.Is(err, ErrUnknownDiscriminator) {
		t.Errorf("Expected ErrUnknownDiscriminator, got %v", err)
	}
	if _, err := DecodeEvent([]byte{1, 2}); !errors.Is(err, ErrShortBuffer) {
		t.Errorf("Expected ErrShortBuffer, got %v", err)
	}
}
