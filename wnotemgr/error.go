// Copyright (c) 2024 The zecsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wnotemgr

import (
	"errors"
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
)

// ErrorCode identifies a category of error.
type ErrorCode int

// These constants are used to identify a specific Error.
const (
	// ErrDatabase indicates an error with the underlying database.  When
	// this error code is set, the Err field of the Error will be
	// set to the underlying error returned from the database.
	ErrDatabase ErrorCode = iota

	// ErrData describes an error where data stored in the store is
	// incorrect.  This may be due to missing values, short reads, or
	// values of wrong sizes.  It generally indicates external corruption.
	ErrData

	// ErrNoExist indicates that a requested note, account, or block record
	// is not present in the store.
	ErrNoExist

	// ErrNeedsUpgrade indicates that the store's recorded schema version
	// does not match the version this package understands, and that the
	// migration runner has not been run to completion.
	ErrNeedsUpgrade

	// ErrDuplicateNote indicates an attempt to record a received note that
	// is already present with a different value or owning account.  This
	// is a corruption signal from the scanning layer, never silently
	// resolved.
	ErrDuplicateNote

	// ErrConflictingSpend indicates that a nullifier matched a note that
	// is already marked spent by a different transaction.  This implies a
	// chain reorganization was not rolled back before scanning resumed.
	ErrConflictingSpend

	// ErrBlockDiscontinuity indicates that a scanned block's height does
	// not directly follow the store's current chain tip.
	ErrBlockDiscontinuity

	// ErrBlockMismatch indicates that a scanned block's parent hash does
	// not link to the store's current chain tip, or that a re-submitted
	// block disagrees with the block already recorded at its height.
	ErrBlockMismatch

	// ErrNoSuchCheckpoint indicates that no tree checkpoint is recorded at
	// a requested height, e.g. a rewind target before the wallet began
	// scanning.
	ErrNoSuchCheckpoint

	// ErrWitnessUnavailable indicates that the witness for a note at the
	// requested anchor has been pruned beyond the rewind horizon.  This is
	// a structural limit, not a retryable condition.
	ErrWitnessUnavailable

	// ErrRewindExceedsLimit indicates a rewind target more blocks behind
	// the chain tip than the configured maximum rewind depth.
	ErrRewindExceedsLimit

	// ErrInsufficientFunds indicates that note selection could not cover
	// the requested target value.  The wrapped error carries the
	// shortfall.
	ErrInsufficientFunds

	// ErrTreeFull indicates an attempt to append a commitment to a
	// commitment tree that already holds the maximum number of leaves.
	ErrTreeFull
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrDatabase:           "ErrDatabase",
	ErrData:               "ErrData",
	ErrNoExist:            "ErrNoExist",
	ErrNeedsUpgrade:       "ErrNeedsUpgrade",
	ErrDuplicateNote:      "ErrDuplicateNote",
	ErrConflictingSpend:   "ErrConflictingSpend",
	ErrBlockDiscontinuity: "ErrBlockDiscontinuity",
	ErrBlockMismatch:      "ErrBlockMismatch",
	ErrNoSuchCheckpoint:   "ErrNoSuchCheckpoint",
	ErrWitnessUnavailable: "ErrWitnessUnavailable",
	ErrRewindExceedsLimit: "ErrRewindExceedsLimit",
	ErrInsufficientFunds:  "ErrInsufficientFunds",
	ErrTreeFull:           "ErrTreeFull",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// Error provides a single type for errors that can happen during note store
// operation.
type Error struct {
	Code        ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
	Err         error     // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e Error) Error() string {
	if e.Err != nil {
		return e.Description + ": " + e.Err.Error()
	}
	return e.Description
}

// Unwrap returns the underlying error, if any.
func (e Error) Unwrap() error {
	return e.Err
}

// storeError creates an Error given a set of arguments.
func storeError(c ErrorCode, desc string, err error) Error {
	return Error{Code: c, Description: desc, Err: err}
}

// IsError returns whether the error is an Error with a matching error code.
func IsError(err error, code ErrorCode) bool {
	var e Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// InsufficientFundsError carries the detail of a failed note selection: how
// much was spendable under the caller's constraints versus how much was
// needed.  It is always wrapped in an Error with code ErrInsufficientFunds.
type InsufficientFundsError struct {
	// Available is the summed value of all eligible notes.
	Available btcutil.Amount

	// Needed is the requested target value.
	Needed btcutil.Amount
}

// Error satisfies the error interface.
func (e InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: %v spendable of %v needed "+
		"(short %v)", e.Available, e.Needed, e.Needed-e.Available)
}

// RewindLimitError carries the detail of a rejected rewind: the requested
// target height and the minimum height the store can still rewind to.  It is
// always wrapped in an Error with code ErrRewindExceedsLimit.
type RewindLimitError struct {
	// RequestedHeight is the rewind target that was asked for.
	RequestedHeight int32

	// MinHeight is the lowest height the retained checkpoints permit
	// rewinding to.
	MinHeight int32
}

// Error satisfies the error interface.
func (e RewindLimitError) Error() string {
	return fmt.Sprintf("cannot rewind to height %d: oldest retained "+
		"checkpoint is at height %d", e.RequestedHeight, e.MinHeight)
}
