package domain

import (
	"errors"
)

// ──────────────────────────────────────────────────────────────────────────────
// Sentinel errors — compare with errors.Is()
// ──────────────────────────────────────────────────────────────────────────────

// Account / instrument errors
var (
	// ErrAccountNotFound is returned when no account matches the given ID.
	ErrAccountNotFound = errors.New("account not found")

	// ErrInstrumentNotFound is returned when no instrument exists for an account.
	ErrInstrumentNotFound = errors.New("instrument not found")

	// ErrInstrumentDelisted is returned when trading is attempted against a
	// delisted account's instrument.
	ErrInstrumentDelisted = errors.New("instrument is delisted")

	// ErrOptedOut is returned when a buy is attempted on an opted-out account
	// whose price is decaying toward removal.
	ErrOptedOut = errors.New("account has opted out of the market")

	// ErrSelfTrade is returned when an account tries to trade its own instrument.
	ErrSelfTrade = errors.New("cannot trade your own instrument")
)

// Wallet errors
var (
	// ErrWalletNotFound is returned when no wallet exists for the account.
	ErrWalletNotFound = errors.New("wallet not found")

	// ErrInsufficientFunds is returned when a wallet's balance is too low to
	// cover a buy, collateral escrow, or fund contribution.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrDailyAlreadyClaimed is returned when the daily bonus was already
	// claimed within the current calendar day.
	ErrDailyAlreadyClaimed = errors.New("daily bonus already claimed today")
)

// Trading errors
var (
	// ErrInsufficientShares is returned when a sell exceeds the seller's holding.
	ErrInsufficientShares = errors.New("insufficient shares held")

	// ErrInsufficientFloat is returned when not enough shares remain in the
	// available float to buy or to borrow for a new short.
	ErrInsufficientFloat = errors.New("insufficient shares available")

	// ErrMaxOwnershipExceeded is returned when a buy would push a single holder
	// above the per-instrument ownership cap.
	ErrMaxOwnershipExceeded = errors.New("maximum ownership percentage exceeded")

	// ErrLockupActive is returned on voluntary sells and short covers attempted
	// before the lockup window has elapsed. Forced liquidation ignores it.
	ErrLockupActive = errors.New("position is still in its lockup window")

	// ErrInvalidOrderParameters is returned for non-positive share counts or
	// prices on trades, shorts, and limit orders.
	ErrInvalidOrderParameters = errors.New("invalid order parameters")

	// ErrShortNotFound is returned when no open short position matches.
	ErrShortNotFound = errors.New("short position not found")

	// ErrPositionAlreadyClosed is returned when a close races a concurrent
	// cover or liquidation that already settled the position.
	ErrPositionAlreadyClosed = errors.New("short position already closed")

	// ErrOrderNotFound is returned when no open limit order matches.
	ErrOrderNotFound = errors.New("limit order not found")
)

// Hedge fund errors
var (
	// ErrFundNotFound is returned when no hedge fund matches the given criteria.
	ErrFundNotFound = errors.New("hedge fund not found")

	// ErrDuplicateFundName is returned when creating a fund with a taken name.
	ErrDuplicateFundName = errors.New("hedge fund name is already taken")

	// ErrNotFundMember is returned when a fund operation is attempted by a
	// non-member, or a treasury trade by a member without the required role.
	ErrNotFundMember = errors.New("not a member of this hedge fund")
)

// Concurrency errors
var (
	// ErrConcurrentModification is returned when the per-key lock for an
	// account or instrument could not be acquired within the bounded wait.
	// Callers should retry; the gateway maps it to a retry-later response.
	ErrConcurrentModification = errors.New("concurrent modification, retry")
)

// ──────────────────────────────────────────────────────────────────────────────
// Helper predicates
// ──────────────────────────────────────────────────────────────────────────────

// notFoundErrors collects all "entity not found" sentinel errors so that
// IsNotFound can stay in sync automatically.
var notFoundErrors = []error{
	ErrAccountNotFound,
	ErrInstrumentNotFound,
	ErrWalletNotFound,
	ErrShortNotFound,
	ErrOrderNotFound,
	ErrFundNotFound,
}

// IsNotFound returns true when err (or any error in its chain) is one of the
// domain "not found" errors. Use this instead of comparing error values
// directly when translating domain errors to HTTP 404 responses.
func IsNotFound(err error) bool {
	for _, target := range notFoundErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsRejection returns true for errors that represent a rejected precondition:
// the operation was refused with zero side effects, and retrying with the
// same inputs will fail again.
func IsRejection(err error) bool {
	rejections := []error{
		ErrInsufficientFunds,
		ErrInsufficientShares,
		ErrInsufficientFloat,
		ErrMaxOwnershipExceeded,
		ErrLockupActive,
		ErrInvalidOrderParameters,
		ErrInstrumentDelisted,
		ErrOptedOut,
		ErrSelfTrade,
		ErrDailyAlreadyClaimed,
		ErrNotFundMember,
	}
	for _, target := range rejections {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsConflict returns true for errors that represent a state conflict
// (duplicate creation or double settlement).
func IsConflict(err error) bool {
	conflictErrors := []error{
		ErrDuplicateFundName,
		ErrPositionAlreadyClosed,
	}
	for _, target := range conflictErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

// IsTransient returns true for errors the caller should retry as-is.
func IsTransient(err error) bool {
	return errors.Is(err, ErrConcurrentModification)
}
