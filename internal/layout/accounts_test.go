package layout

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"testing"

	"chainproof-ledger/internal/domain"
)

var (
	testWallet = domain.MustParseAddress("9WzDXwBbmkg8ZTbNMqUxvQRAyrZzDsGYdLVL9zYtAWWM")
	testMint   = domain.MustParseAddress(domain.StakeTokenMint)
)

func TestAccountDiscriminator(t *testing.T) {
	tests := []struct {
		kind Kind
		want string
	}{
		{KindUserStake, "6635a36b098a5799"},
		{KindRewardPool, "8679c5d3859a5220"},
	}
	for _, tt := range tests {
		d := AccountDiscriminator(tt.kind)
		if got := hex.EncodeToString(d[:]); got != tt.want {
			t.Errorf("AccountDiscriminator(%s) = %s, want %s", tt.kind, got, tt.want)
		}
	}
}

func TestAccountSpaces(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"TokenEntry", TokenEntrySpace, 253},
		{"RewardPool", RewardPoolSpace, 77},
		{"UserProfile", UserProfileSpace, 139},
		{"DeveloperRegistry", DeveloperRegistrySpace, 49},
		{"ProjectStakes", ProjectStakesSpace, 50},
		{"UserStake", UserStakeSpace, 98},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s space = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestEncodeRewardPool_FieldOffsets(t *testing.T) {
	pool := &domain.RewardPool{
		Authority:                   testWallet,
		TotalDeposited:              1_000_000,
		TotalDistributed:            250_000,
		LastDistributionAt:          1_700_000_000,
		DistributionIntervalSeconds: domain.DistributionIntervalSeconds,
		DeveloperShareBps:           domain.DeveloperShareBps,
		UserShareBps:                domain.UserShareBps,
		Bump:                        254,
	}

	data, err := EncodeRewardPool(pool)
	if err != nil {
		t.Fatalf("EncodeRewardPool failed: %v", err)
	}
	if len(data) != RewardPoolSpace {
		t.Fatalf("Expected %d bytes, got %d", RewardPoolSpace, len(data))
	}
	if got := binary.LittleEndian.Uint64(data[40:48]); got != 1_000_000 {
		t.Errorf("Expected totalDeposited 1000000 at offset 40, got %d", got)
	}
	if got := binary.LittleEndian.Uint64(data[64:72]); got != 604800 {
		t.Errorf("Expected interval 604800 at offset 64, got %d", got)
	}
	if got := binary.LittleEndian.Uint16(data[72:74]); got != 6000 {
		t.Errorf("Expected developer share 6000 at offset 72, got %d", got)
	}
	if data[76] != 254 {
		t.Errorf("Expected bump 254 in last byte, got %d", data[76])
	}

	decoded, err := DecodeRewardPool(data)
	if err != nil {
		t.Fatalf("DecodeRewardPool failed: %v", err)
	}
	if *decoded != *pool {
		t.Errorf("Decoded pool mismatch: %+v", decoded)
	}
}

func TestUserProfile_ReferralCodeOption(t *testing.T) {
	code := domain.DeveloperReferralCode
	withCode := &domain.UserProfile{
		Wallet:       testWallet,
		Username:     "alice",
		ReferralCode: &code,
		IsDeveloper:  true,
		CreatedAt:    1_700_000_000,
		Bump:         255,
	}
	withoutCode := withCode.Clone()
	withoutCode.ReferralCode = nil
	withoutCode.IsDeveloper = false

	for _, p := range []*domain.UserProfile{withCode, withoutCode} {
		data, err := EncodeUserProfile(p)
		if err != nil {
			t.Fatalf("EncodeUserProfile failed: %v", err)
		}
		if len(data) != UserProfileSpace {
			t.Fatalf("Expected %d bytes, got %d", UserProfileSpace, len(data))
		}
		got, err := DecodeUserProfile(data)
		if err != nil {
			t.Fatalf("DecodeUserProfile failed: %v", err)
		}
		if got.Username != p.Username || got.IsDeveloper != p.IsDeveloper || got.Bump != p.Bump {
			t.Errorf("Decoded profile mismatch: %+v", got)
		}
		if (got.ReferralCode == nil) != (p.ReferralCode == nil) {
			t.Fatalf("Expected referral presence %v, got %v", p.ReferralCode != nil, got.ReferralCode != nil)
		}
		if p.ReferralCode != nil && *got.ReferralCode != *p.ReferralCode {
			t.Errorf("Expected referral %q, got %q", *p.ReferralCode, *got.ReferralCode)
		}
	}
}

func TestUserStake_CooldownTimestamp(t *testing.T) {
	requested := int64(1_700_100_000)
	stake := &domain.UserStake{
		User:               testWallet,
		ProjectMint:        testMint,
		Amount:             500,
		StakedAt:           1_700_000_000,
		UnstakeRequestedAt: &requested,
		Bump:               255,
	}

	data, err := EncodeUserStake(stake)
	if err != nil {
		t.Fatalf("EncodeUserStake failed: %v", err)
	}
	// option tag follows discriminator, two keys, amount and stakedAt
	if data[88] != 1 {
		t.Errorf("Expected option tag 1 at offset 88, got %d", data[88])
	}

	got, err := DecodeUserStake(data)
	if err != nil {
		t.Fatalf("DecodeUserStake failed: %v", err)
	}
	if got.UnstakeRequestedAt == nil || *got.UnstakeRequestedAt != requested {
		t.Errorf("Expected unstakeRequestedAt %d, got %v", requested, got.UnstakeRequestedAt)
	}
	if got.Phase() != domain.StakePhaseCooldownPending {
		t.Errorf("Expected phase COOLDOWN_PENDING, got %s", got.Phase())
	}
}

func TestEncodeTokenEntry_TooLarge(t *testing.T) {
	entry := &domain.TokenEntry{
		Authority: testWallet,
		Mint:      testMint,
		Name:      string(make([]byte, 200)),
	}
	if _, err := EncodeTokenEntry(entry); err == nil {
		t.Error("Expected error for entry exceeding account space")
	}
}

func TestDecode_WrongDiscriminator(t *testing.T) {
	data, err := EncodeProjectStakes(&domain.ProjectStakes{ProjectMint: testMint, TotalStakes: 3})
	if err != nil {
		t.Fatalf("EncodeProjectStakes failed: %v", err)
	}
	_, err = DecodeUserStake(data)
	if !errors.Is(err, ErrDiscriminatorMismatch) {
		t.Errorf("Expected ErrDiscriminatorMismatch, got %v", err)
	}
}

func TestDecode_ShortBuffer(t *testing.T) {
	data, err := EncodeDeveloperRegistry(&domain.DeveloperRegistry{Authority: testWallet, TotalDevelopers: 2})
	if err != nil {
		t.Fatalf("EncodeDeveloperRegistry failed: %v", err)
	}
	_, err = DecodeDeveloperRegistry(data[:20])
	if !errors.Is(err, ErrShortBuffer) {
		t.Errorf("Expected ErrShortBuffer, got %v", err)
	}
}

func TestDecodeAccount(t *testing.T) {
	data, err := EncodeProjectStakes(&domain.ProjectStakes{ProjectMint: testMint, TotalStakes: 10, IsVerified: true, Bump: 255})
	if err != nil {
		t.Fatalf("EncodeProjectStakes failed: %v", err)
	}
	kind, v, err := DecodeAccount(data)
	if err != nil {
		t.Fatalf("DecodeAccount failed: %v", err)
	}
	if kind != KindProjectStakes {
		t.Errorf("Expected kind ProjectStakes, got %s", kind)
	}
	ps, ok := v.(*domain.ProjectStakes)
	if !ok {
		t.Fatalf("Expected *domain.ProjectStakes, got %T", v)
	}
	if !ps.IsVerified || ps.TotalStakes != 10 {
		t.Errorf("Unexpected project stakes: %+v", ps)
	}

	if _, _, err := DecodeAccount(make([]byte, 40)); !errors.Is(err, ErrUnknownDiscriminator) {
		t.Errorf("Expected ErrUnknownDiscriminator, got %v", err)
	}
}

func TestTokenAccount(t *testing.T) {
	acct := &domain.TokenAccount{Mint: testMint, Owner: testWallet, Amount: 42}
	data := EncodeTokenAccount(acct)
	if len(data) != TokenAccountSpace {
		t.Fatalf("Expected %d bytes, got %d", TokenAccountSpace, len(data))
	}
	if data[108] != 1 {
		t.Errorf("Expected initialized state at offset 108, got %d", data[108])
	}
	kind, err := KindOf(data)
	if err != nil || kind != KindTokenAccount {
		t.Errorf("Expected KindTokenAccount, got %s (%v)", kind, err)
	}
	got, err := DecodeTokenAccount(data)
	if err != nil {
		t.Fatalf("DecodeTokenAccount failed: %v", err)
	}
	if *got != *acct {
		t.Errorf("Expected %+v, got %+v", acct, got)
	}
}
