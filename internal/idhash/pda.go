package idhash

import (
	"crypto/sha256"
	"errors"

	"filippo.io/edwards25519"

	"chainproof-ledger/internal/domain"
)

const (
	// MaxSeeds is the maximum number of seeds, bump included.
	MaxSeeds = 16
	// MaxSeedLength is the maximum length of a single seed in bytes.
	MaxSeedLength = 32

	pdaMarker = "ProgramDerivedAddress"
)

var (
	// ErrMaxSeedLength is returned when a seed is longer than MaxSeedLength.
	ErrMaxSeedLength = errors.New("idhash: seed exceeds 32 bytes")
	// ErrTooManySeeds is returned when more than MaxSeeds seeds are supplied.
	ErrTooManySeeds = errors.New("idhash: too many seeds")
	// ErrOnCurve is returned when the hashed seeds land on the ed25519 curve
	// and therefore could have a private key.
	ErrOnCurve = errors.New("idhash: derived address is on the ed25519 curve")
	// ErrNoViableBump is returned when no bump in [0,255] yields an off-curve address.
	ErrNoViableBump = errors.New("idhash: unable to find a viable program address bump")
)

// CreateProgramAddress computes
// SHA256(seed_0 || ... || seed_n || program || "ProgramDerivedAddress")
// and rejects results that are valid curve points.
func CreateProgramAddress(seeds [][]byte, program domain.Address) (domain.Address, error) {
	var addr domain.Address
	if len(seeds) > MaxSeeds {
		return addr, ErrTooManySeeds
	}

	h := sha256.New()
	for _, seed := range seeds {
		if len(seed) > MaxSeedLength {
			return addr, ErrMaxSeedLength
		}
		h.Write(seed)
	}
	h.Write(program[:])
	h.Write([]byte(pdaMarker))
	copy(addr[:], h.Sum(nil))

	if IsOnCurve(addr[:]) {
		return domain.Address{}, ErrOnCurve
	}
	return addr, nil
}

// FindProgramAddress searches bumps from 255 down to 0 and returns the first
// off-curve address with its bump. The bump is appended as the last seed.
func FindProgramAddress(seeds [][]byte, program domain.Address) (domain.Address, uint8, error) {
	if len(seeds) >= MaxSeeds {
		return domain.Address{}, 0, ErrTooManySeeds
	}

	withBump := make([][]byte, len(seeds)+1)
	copy(withBump, seeds)
	bump := []byte{0}
	withBump[len(seeds)] = bump

	for b := 255; b >= 0; b-- {
		bump[0] = byte(b)
		addr, err := CreateProgramAddress(withBump, program)
		if err == nil {
			return addr, byte(b), nil
		}
		if !errors.Is(err, ErrOnCurve) {
			return domain.Address{}, 0, err
		}
	}
	return domain.Address{}, 0, ErrNoViableBump
}

// IsOnCurve reports whether b is the compressed encoding of an ed25519 point.
func IsOnCurve(b []byte) bool {
	_, err := new(edwards25519.Point).SetBytes(b)
	return err == nil
}
