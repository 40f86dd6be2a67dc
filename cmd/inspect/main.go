// Package main derives ChainProof record addresses for a wallet and/or
// project mint and prints the decoded on-chain records as JSON.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"chainproof-ledger/internal/config"
	"chainproof-ledger/internal/domain"
	"chainproof-ledger/internal/idhash"
	"chainproof-ledger/internal/layout"
	"chainproof-ledger/internal/solana"
)

// record is one derived address and what was found there.
type record struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Bump    *uint8 `json:"bump,omitempty"`
	Exists  bool   `json:"exists"`
	Kind    string `json:"kind,omitempty"`
	Owner   string `json:"owner,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

type target struct {
	name    string
	address domain.Address
	bump    *uint8
}

func main() {
	configPath := flag.String("config", os.Getenv("CHAINPROOF_CONFIG"), "Path to YAML config file (program ids)")
	rpcEndpoint := flag.String("rpc-endpoint", os.Getenv("SOLANA_RPC_ENDPOINT"), "Solana RPC HTTP endpoint (overrides config)")
	wallet := flag.String("wallet", "", "Wallet address: profile, token account and (with -mint) stake")
	mint := flag.String("mint", "", "Project mint: registry entry, project stakes and vault")
	account := flag.String("account", "", "Decode a single account address")
	offline := flag.Bool("offline", false, "Only derive addresses, do not query the cluster")
	timeout := flag.Duration("timeout", 30*time.Second, "Overall RPC timeout")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		var err error
		if cfg, err = config.Load(*configPath); err != nil {
			fatalf("config: %v", err)
		}
	}
	if *rpcEndpoint != "" {
		cfg.Solana.RPCEndpoint = *rpcEndpoint
	}
	addrs, err := cfg.ProgramAddresses()
	if err != nil {
		fatalf("program addresses: %v", err)
	}

	targets, err := buildTargets(addrs, *wallet, *mint, *account)
	if err != nil {
		fatalf("%v", err)
	}

	records := make([]record, 0, len(targets))
	for _, t := range targets {
		records = append(records, record{Name: t.name, Address: t.address.String(), Bump: t.bump})
	}

	if !*offline {
		ctx, cancel := context.WithTimeout(context.Background(), *timeout)
		defer cancel()
		rpc := solana.NewHTTPClient(cfg.Solana.RPCEndpoint)
		if slot, err := rpc.GetSlot(ctx); err == nil {
			fmt.Fprintf(os.Stderr, "snapshot at slot %d\n", slot)
		}
		for i := range records {
			fetch(ctx, rpc, &records[i])
		}
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(records); err != nil {
		fatalf("encode: %v", err)
	}
}

func buildTargets(addrs config.Addresses, wallet, mint, account string) ([]target, error) {
	d := idhash.NewDeriver(addrs.Program, addrs.TokenProgram, addrs.AssociatedTokenProgram)
	derived := func(name string, dv idhash.Derived) target {
		bump := dv.Bump
		return target{name: name, address: dv.Address, bump: &bump}
	}

	pool := d.RewardPool()
	targets := []target{
		derived("rewardPool", pool),
		{name: "rewardPoolTokenAccount", address: d.AssociatedTokenAccount(pool.Address, addrs.StakeMint)},
		derived("developerRegistry", d.DeveloperRegistry()),
	}

	var walletAddr, mintAddr domain.Address
	var err error
	if wallet != "" {
		if walletAddr, err = domain.ParseAddress(wallet); err != nil {
			return nil, fmt.Errorf("wallet: %w", err)
		}
		targets = append(targets,
			derived("userProfile", d.UserProfile(walletAddr)),
			target{name: "stakeTokenAccount", address: d.AssociatedTokenAccount(walletAddr, addrs.StakeMint)},
		)
	}
	if mint != "" {
		if mintAddr, err = domain.ParseAddress(mint); err != nil {
			return nil, fmt.Errorf("mint: %w", err)
		}
		targets = append(targets,
			derived("tokenEntry", d.TokenEntry(mintAddr)),
			derived("projectStakes", d.ProjectStakes(mintAddr)),
			derived("stakeVault", d.StakeVault(mintAddr)),
		)
	}
	if wallet != "" && mint != "" {
		targets = append(targets, derived("userStake", d.UserStake(walletAddr, mintAddr)))
	}
	if account != "" {
		a, err := domain.ParseAddress(account)
		if err != nil {
			return nil, fmt.Errorf("account: %w", err)
		}
		targets = append(targets, target{name: "account", address: a})
	}
	return targets, nil
}

func fetch(ctx context.Context, rpc solana.RPCClient, r *record) {
	info, err := rpc.GetAccountInfo(ctx, r.Address)
	if err != nil {
		r.Error = err.Error()
		return
	}
	if info == nil {
		return
	}
	r.Exists = true
	r.Owner = info.Owner

	data, err := info.DecodeData()
	if err != nil {
		r.Error = err.Error()
		return
	}
	kind, v, err := layout.DecodeAccount(data)
	if err != nil {
		r.Error = err.Error()
		return
	}
	r.Kind = string(kind)
	r.Data = v
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
