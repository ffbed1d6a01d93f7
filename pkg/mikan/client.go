// Package mikan describes the MikanXR compositor client API: the calls a
// client makes, the events it polls, and the payload types both carry.
package mikan

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxScriptMessageLen is the longest script message the compositor accepts,
// including its terminator.
const MaxScriptMessageLen = 1024

var (
	// ErrNotConnected is returned when a call requires an open connection.
	ErrNotConnected = errors.New("mikan: not connected")
	// ErrNoEvent is returned by PollNextEvent when the queue is empty.
	ErrNoEvent = errors.New("mikan: no event pending")
	// ErrNotFound is returned when an anchor or video source does not exist.
	ErrNotFound = errors.New("mikan: not found")
	// ErrTimeout is returned when the compositor did not answer in time.
	ErrTimeout = errors.New("mikan: request timed out")
	// ErrUninitialized is returned when Initialize has not been called.
	ErrUninitialized = errors.New("mikan: client not initialized")
	// ErrGeneral covers every other non-success result code.
	ErrGeneral = errors.New("mikan: request failed")
)

// ResultCode is the numeric status returned by the compositor.
type ResultCode int

const (
	ResultSuccess ResultCode = iota
	ResultGeneralError
	ResultNotConnected
	ResultNoData
	ResultNotFound
	ResultTimeout
	ResultUninitialized
)

// Err maps a result code to its sentinel error, nil for success.
func (r ResultCode) Err() error {
	switch r {
	case ResultSuccess:
		return nil
	case ResultNotConnected:
		return ErrNotConnected
	case ResultNoData:
		return ErrNoEvent
	case ResultNotFound:
		return ErrNotFound
	case ResultTimeout:
		return ErrTimeout
	case ResultUninitialized:
		return ErrUninitialized
	default:
		return fmt.Errorf("%w (code %d)", ErrGeneral, int(r))
	}
}

// LogLevel is the compositor's log severity.
type LogLevel int

const (
	LogTrace LogLevel = iota
	LogDebug
	LogInfo
	LogWarning
	LogError
	LogFatal
)

// LogCallback receives log lines emitted by the client library.
type LogCallback func(level LogLevel, message string)

// Client is the compositor API surface consumed by the bridge.
//
// PollNextEvent never blocks: an empty queue returns ErrNoEvent immediately.
// Query calls take a context because remote implementations round-trip to the
// compositor process.
type Client interface {
	Initialize(level LogLevel, logFn LogCallback) error
	Shutdown() error

	Connect(ctx context.Context, info ClientInfo) error
	Disconnect(ctx context.Context) error
	IsConnected() bool
	PollNextEvent() (Event, error)

	GetSpatialAnchorList(ctx context.Context) ([]AnchorID, error)
	GetSpatialAnchorInfo(ctx context.Context, id AnchorID) (SpatialAnchorInfo, error)

	GetVideoSourceIntrinsics(ctx context.Context) (VideoSourceIntrinsics, error)
	GetVideoSourceMode(ctx context.Context) (VideoSourceMode, error)
	GetVideoSourceAttachment(ctx context.Context) (VideoSourceAttachment, error)

	AllocateRenderTargetBuffers(ctx context.Context, desc RenderTargetDescriptor) error
	FreeRenderTargetBuffers(ctx context.Context) error
	PublishRenderTargetTexture(handle uintptr, frame uint64) error

	SendScriptMessage(ctx context.Context, message string) error
}

// TruncateScriptMessage clips a message to what the compositor accepts. The
// cut never splits a UTF-8 sequence.
func TruncateScriptMessage(message string) string {
	if len(message) < MaxScriptMessageLen {
		return message
	}
	cut := MaxScriptMessageLen - 1
	for cut > 0 && !utf8.RuneStart(message[cut]) {
		cut--
	}
	return message[:cut]
}
