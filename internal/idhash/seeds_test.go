package idhash

import (
	"testing"

	"chainproof-ledger/internal/domain"
)

const (
	testWallet = "9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM"
)

func TestDeriver_KnownAddresses(t *testing.T) {
	d := DefaultDeriver()
	wallet := domain.MustParseAddress(testWallet)
	mint := domain.MustParseAddress(domain.StakeTokenMint)

	tests := []struct {
		name     string
		got      Derived
		wantAddr string
		wantBump uint8
	}{
		{"reward_pool", d.RewardPool(), "FeafTq8WENQ6PzYnAuGiTe1aUzuX7MGVEVhn3pghzB8a", 254},
		{"developer_registry", d.DeveloperRegistry(), "KGPf226WVSsND95KruWdbZ3QpqnYkMCBcbV6bjVUguy", 254},
		{"user_profile", d.UserProfile(wallet), "HoezuUvJSBM3BbbZgZrduMGZehKDtu2YSwe9GLrsZpoN", 255},
		{"project_stakes", d.ProjectStakes(mint), "Fy7DCevh9szgWe2zcwJECX894fY4YTP26vvwaSWGP8cj", 255},
		{"user_stake", d.UserStake(wallet, mint), "EKEu2RnHj9wjji9MAxNbauNq5hVJvPSnERCzLzZvTnpY", 255},
		{"stake_vault", d.StakeVault(mint), "GDfE1Dtm8fMVK4k9MNw4tjVyZBRa71fLwJvbz3eSBCSL", 250},
		{"token_entry", d.TokenEntry(mint), "G8kLJ3ENiigrSHZhFXBsLrWRvmynZGNmWDQvv4Jm2Lnm", 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got.Address.String() != tt.wantAddr {
				t.Errorf("address = %s, want %s", tt.got.Address, tt.wantAddr)
			}
			if tt.got.Bump != tt.wantBump {
				t.Errorf("bump = %d, want %d", tt.got.Bump, tt.wantBump)
			}
		})
	}
}

func TestDeriver_AssociatedTokenAccount(t *testing.T) {
	d := DefaultDeriver()
	wallet := domain.MustParseAddress(testWallet)

	got := d.AssociatedTokenAccount(wallet, domain.MustParseAddress(domain.StakeTokenMint))
	if got.String() != "Bva1Rxt9ZqqJ96W38oi5jawxs2bXJzd22UB2TAgvcRGP" {
		t.Errorf("stake mint ATA = %s", got)
	}

	usdc := domain.MustParseAddress("EPjFWdd5AufqSSqeM2qN1xzybapC8G4wEGGkZwyTDt1v")
	got = d.AssociatedTokenAccount(wallet, usdc)
	if got.String() != "FGETo8T8wMcN2wCjav8VK6eh3dLk63evNDPxzLSJra8B" {
		t.Errorf("usdc ATA = %s", got)
	}
}

func TestDeriver_Determinism(t *testing.T) {
	d := DefaultDeriver()
	wallet := domain.MustParseAddress(testWallet)
	mint := domain.MustParseAddress(domain.StakeTokenMint)

	first := d.UserStake(wallet, mint)
	for i := 0; i < 10; i++ {
		if got := d.UserStake(wallet, mint); got != first {
			t.Fatalf("Determinism failed: %v != %v", got, first)
		}
	}
}

func TestDeriver_DistinctInputs(t *testing.T) {
	d := DefaultDeriver()
	wallet := domain.MustParseAddress(testWallet)
	mint := domain.MustParseAddress(domain.StakeTokenMint)

	seen := map[domain.Address]string{}
	add := func(name string, got Derived) {
		if prev, ok := seen[got.Address]; ok {
			t.Errorf("%s collides with %s", name, prev)
		}
		seen[got.Address] = name
	}

	add("user_stake(w,m)", d.UserStake(wallet, mint))
	add("user_stake(m,w)", d.UserStake(mint, wallet))
	add("user_profile(w)", d.UserProfile(wallet))
	add("project_stakes(m)", d.ProjectStakes(mint))
	add("stake_vault(m)", d.StakeVault(mint))
	add("token_entry(m)", d.TokenEntry(mint))

	other := NewDeriver(wallet, domain.MustParseAddress(domain.TokenProgramID), domain.MustParseAddress(domain.AssociatedTokenProgramID))
	add("reward_pool(other program)", other.RewardPool())
	add("reward_pool", d.RewardPool())
}

func TestDerived_OffCurve(t *testing.T) {
	d := DefaultDeriver()
	for _, got := range []Derived{d.RewardPool(), d.DeveloperRegistry()} {
		if IsOnCurve(got.Address[:]) {
			t.Errorf("%s is on curve", got.Address)
		}
	}
	// A regular wallet key is a curve point.
	if !IsOnCurve(domain.MustParseAddress(testWallet).Bytes()) {
		t.Error("wallet key should be on curve")
	}
}
