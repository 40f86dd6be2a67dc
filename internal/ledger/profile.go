package ledger

import (
	"context"

	"chainproof-ledger/internal/domain"
)

// CreateProfile creates the profile of user. Developer status is derived from
// referralCode here and never changes afterwards.
func (e *Engine) CreateProfile(ctx context.Context, user domain.Address, username string, referralCode *string) (*domain.UserProfile, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}
	if err := validateReferralCode(referralCode); err != nil {
		return nil, err
	}

	var profile *domain.UserProfile
	err := e.run(ctx, "create_profile", func(u *unit) error {
		d := e.deriver.UserProfile(user)
		profile = &domain.UserProfile{
			Wallet:       user,
			Username:     username,
			ReferralCode: copyString(referralCode),
			IsDeveloper:  referralCode != nil && *referralCode == e.params.DeveloperReferralCode,
			CreatedAt:    u.now,
			Bump:         d.Bump,
		}
		if err := create(u, profiles, e.program(), d.Address, profile); err != nil {
			return err
		}
		u.emit(domain.ProfileCreated{
			Wallet:      user,
			Username:    username,
			IsDeveloper: profile.IsDeveloper,
			Timestamp:   u.now,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// UpdateProfile changes the username of user's profile. Counters and
// developer status are left untouched.
func (e *Engine) UpdateProfile(ctx context.Context, user domain.Address, username string) (*domain.UserProfile, error) {
	if err := validateUsername(username); err != nil {
		return nil, err
	}

	var profile *domain.UserProfile
	err := e.run(ctx, "update_profile", func(u *unit) error {
		addr := e.deriver.UserProfile(user).Address
		p, err := load(u.ctx, u.tx, profiles, addr)
		if err != nil {
			return err
		}
		if p.Wallet != user {
			return ErrUnauthorized.withDetail("profile %s belongs to %s", addr, p.Wallet)
		}
		p.Username = username
		if err := save(u, profiles, e.program(), addr, p); err != nil {
			return err
		}
		u.emit(domain.ProfileUpdated{Wallet: user, Username: username})
		profile = p
		return nil
	})
	if err != nil {
		return nil, err
	}
	return profile, nil
}

// InitializeDeveloperRegistry creates the singleton developer registry.
func (e *Engine) InitializeDeveloperRegistry(ctx context.Context, authority domain.Address) (*domain.DeveloperRegistry, error) {
	var reg *domain.DeveloperRegistry
	err := e.run(ctx, "initialize_developer_registry", func(u *unit) error {
		d := e.deriver.DeveloperRegistry()
		reg = &domain.DeveloperRegistry{Authority: authority, Bump: d.Bump}
		if err := create(u, registries, e.program(), d.Address, reg); err != nil {
			return err
		}
		u.emit(domain.DeveloperRegistryInitialized{Authority: authority})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

// RegisterDeveloper counts user as a developer. Every call increments the
// counter; there is no per-wallet registration record.
func (e *Engine) RegisterDeveloper(ctx context.Context, user domain.Address) (*domain.DeveloperRegistry, error) {
	var reg *domain.DeveloperRegistry
	err := e.run(ctx, "register_developer", func(u *unit) error {
		profile, err := load(u.ctx, u.tx, profiles, e.deriver.UserProfile(user).Address)
		if err != nil {
			return err
		}
		regAddr := e.deriver.DeveloperRegistry().Address
		r, err := load(u.ctx, u.tx, registries, regAddr)
		if err != nil {
			return err
		}
		if !profile.IsDeveloper {
			return ErrNotADeveloper.withDetail("%s", user)
		}
		if r.TotalDevelopers, err = checkedAdd(r.TotalDevelopers, 1); err != nil {
			return err
		}
		if err := save(u, registries, e.program(), regAddr, r); err != nil {
			return err
		}
		u.emit(domain.DeveloperRegistered{Wallet: user, TotalDevelopers: r.TotalDevelopers})
		reg = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return reg, nil
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}
