package core

import "errors"

// Misuse and transfer failures are reported as distinct error kinds so
// callers can tell them apart with errors.Is.
var (
	// ErrFinalized is returned when channel registration is attempted
	// after the descriptor chain has been built (i.e. after the first
	// Send), or when the chain would be built twice.
	ErrFinalized = errors.New("descriptor chain already built")

	// ErrBadPin is returned for pin numbers outside the 32-bit bank
	// the slot masks cover.
	ErrBadPin = errors.New("pin outside bank 0 (0..31)")

	// ErrByteRange is returned by SetByte for a byte index beyond the
	// largest registered channel capacity.
	ErrByteRange = errors.New("byte index beyond registered capacity")

	// ErrNoChannels is returned by Send when no channel has been
	// registered, so there is nothing to transfer.
	ErrNoChannels = errors.New("no channels registered")

	// ErrTransfer is returned by Send when the engine raised its error
	// flag during the transfer.
	ErrTransfer = errors.New("transfer engine reported an error")

	// ErrSendTimeout is returned by Send when the transfer neither
	// completed nor failed within the send timeout.
	ErrSendTimeout = errors.New("transfer did not complete in time")
)
