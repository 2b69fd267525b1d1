// Package core defines the domain types and sentinel errors shared across
// the capture, decode, flow, process, and alert stages. It has zero
// external dependencies so every other package may depend on it freely.
package core

import "errors"

// Sentinel errors, one per error kind in the error-handling design. Only
// ErrCaptureOpenFailed ever propagates out of the running core; every
// other kind is recovered locally by the component that produced it.
var (
	// ErrCaptureOpenFailed is fatal at startup.
	ErrCaptureOpenFailed = errors.New("netwatch: capture open failed")

	// ErrCaptureRead signals a mid-run read failure; the capture thread
	// restarts with exponential backoff.
	ErrCaptureRead = errors.New("netwatch: capture read failed")

	// ErrPacketTooShort and ErrUnsupportedProto mark a malformed or
	// undecodable frame. Non-fatal: the packet is dropped and a counter
	// increments.
	ErrPacketTooShort   = errors.New("netwatch: packet too short")
	ErrUnsupportedProto = errors.New("netwatch: unsupported protocol")

	// ErrResolverUnavailable means a socket-table refresh failed; the
	// resolver keeps serving its last-good maps and retries next tick.
	ErrResolverUnavailable = errors.New("netwatch: socket resolver unavailable")

	// ErrSocketMapMiss is an internal signal: the packet could not be
	// attributed to a process and is counted unattributed.
	ErrSocketMapMiss = errors.New("netwatch: no socket mapping for connection")

	// ErrAlertActionFailed marks a kill/command/notify action that did
	// not complete; the alert stays armed for the next cycle.
	ErrAlertActionFailed = errors.New("netwatch: alert action failed")

	// ErrPublishFailed marks a failed downstream bus publish; the
	// summary is dropped and the pipeline continues.
	ErrPublishFailed = errors.New("netwatch: publish to downstream bus failed")

	// ErrConfigInvalid marks a configuration that failed validation.
	ErrConfigInvalid = errors.New("netwatch: invalid configuration")
)
