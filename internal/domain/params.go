package domain

// Well-known program and token ids of the deployed ChainProof program.
const (
	ChainProofProgramID      = "45gVbLLSYYcW254TFoJMXmfupM5dJaFxTLsbny2eqKWx"
	StakeTokenMint           = "2FKjWV4zh7AVsmXonL7AM9Lh9zfpcE3e1dCYejWvd5W8"
	TokenProgramID           = "TokenkegQfeZyiNwAJbNbGKPFXCWuBvf9Ss623VQ5DA"
	AssociatedTokenProgramID = "ATokenGPvbdGVxr1b2hvZbsiqW5xWH25efTNsLJA8knL"
)

// Staking and reward constants.
const (
	VerificationThreshold  uint64 = 10
	UnstakeCooldownSeconds int64  = 172800 // 48h
	DeveloperReferralCode         = "CHAINPROOFDEV"

	DistributionIntervalSeconds int64  = 604800 // 1 week
	DeveloperShareBps           uint16 = 6000
	UserShareBps                uint16 = 4000
	BpsDenominator              uint64 = 10000
)

// Field bounds, in bytes, matching the account space reserved on chain.
const (
	MaxTokenNameLen    = 50
	MaxTokenSymbolLen  = 10
	MaxIpfsHashLen     = 100
	MinUsernameLen     = 3
	MaxUsernameLen     = 32
	MaxReferralCodeLen = 32
)

// Params are the tunable program parameters. The zero value is not usable;
// start from DefaultParams.
type Params struct {
	VerificationThreshold       uint64
	UnstakeCooldownSeconds      int64
	DeveloperReferralCode       string
	DistributionIntervalSeconds int64
	DeveloperShareBps           uint16
	UserShareBps                uint16
}

// DefaultParams returns the parameters of the deployed program.
func DefaultParams() Params {
	return Params{
		VerificationThreshold:       VerificationThreshold,
		UnstakeCooldownSeconds:      UnstakeCooldownSeconds,
		DeveloperReferralCode:       DeveloperReferralCode,
		DistributionIntervalSeconds: DistributionIntervalSeconds,
		DeveloperShareBps:           DeveloperShareBps,
		UserShareBps:                UserShareBps,
	}
}
