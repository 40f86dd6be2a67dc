package ledger

import "chainproof-ledger/internal/domain"

// Lengths are byte lengths, matching the space reserved in the account layout.

func validateTokenFields(name, symbol, ipfsHash string) error {
	if len(name) > domain.MaxTokenNameLen {
		return ErrNameTooLong.withDetail("%d bytes", len(name))
	}
	if len(symbol) > domain.MaxTokenSymbolLen {
		return ErrSymbolTooLong.withDetail("%d bytes", len(symbol))
	}
	if len(ipfsHash) > domain.MaxIpfsHashLen {
		return ErrIpfsHashTooLong.withDetail("%d bytes", len(ipfsHash))
	}
	return nil
}

func validateUsername(username string) error {
	if len(username) > domain.MaxUsernameLen {
		return ErrUsernameTooLong.withDetail("%d bytes", len(username))
	}
	if len(username) < domain.MinUsernameLen {
		return ErrUsernameTooShort.withDetail("%d bytes", len(username))
	}
	return nil
}

func validateReferralCode(code *string) error {
	if code != nil && len(*code) > domain.MaxReferralCodeLen {
		return ErrReferralCodeTooLong.withDetail("%d bytes", len(*code))
	}
	return nil
}
