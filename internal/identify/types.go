package identify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"facewatch/internal/camera"
	"facewatch/internal/engine"
	"facewatch/internal/records"
)

var (
	// ErrRequestInFlight is returned when the workflow already awaits a reply.
	ErrRequestInFlight = errors.New("identification already in progress")
	// ErrEngineBusy is returned when another modality holds the engine.
	ErrEngineBusy = errors.New("engine busy with another identification")
	// ErrNoCamera is returned by webcam operations when no camera is configured.
	ErrNoCamera = errors.New("no camera configured")
	// ErrStopped is returned once the coordinator loop has exited.
	ErrStopped = errors.New("coordinator stopped")
	// ErrInvalidInput wraps rejected operation arguments.
	ErrInvalidInput = errors.New("invalid input")

	errAwaitingStaleReply = fmt.Errorf("%w: still awaiting the reply to an abandoned request (reset again to discard it)", ErrEngineBusy)
)

// Modality names a workflow.
type Modality string

const (
	ModalityImage  Modality = "image"
	ModalityVideo  Modality = "video"
	ModalityWebcam Modality = "webcam"
)

// ParseModality accepts the lowercase modality names.
func ParseModality(s string) (Modality, bool) {
	switch Modality(s) {
	case ModalityImage, ModalityVideo, ModalityWebcam:
		return Modality(s), true
	default:
		return "", false
	}
}

// State is a workflow's position in its state machine.
type State string

const (
	StateIdle          State = "idle"
	StateAwaitingInput State = "awaiting_input"
	StateRequesting    State = "requesting"
	StateIdentifying   State = "identifying"
	StateFound         State = "found"
	StateNotFound      State = "not_found"
)

// Terminal reports whether the state ends a search.
func (s State) Terminal() bool {
	return s == StateFound || s == StateNotFound
}

// Reason qualifies a NotFound state.
type Reason string

const (
	ReasonUnknownSubject    Reason = "unknown_subject"
	ReasonLookupError       Reason = "lookup_error"
	ReasonAttemptsExhausted Reason = "attempts_exhausted"
)

// Result is what a Found workflow presents.
type Result struct {
	Subject string          `json:"subject"`
	Record  *records.Record `json:"record"`
	// Photos are display paths; webcam results start with the matching frame.
	Photos []string `json:"photos,omitempty"`
}

// Status is an immutable snapshot of one workflow.
type Status struct {
	Modality  Modality  `json:"modality"`
	State     State     `json:"state"`
	Input     string    `json:"input,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Reason    Reason    `json:"reason,omitempty"`
	LastError string    `json:"last_error,omitempty"`
	Result    *Result   `json:"result,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`

	WebcamOn    bool   `json:"webcam_on,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	MaxAttempts int    `json:"max_attempts,omitempty"`
	Device      string `json:"device,omitempty"`
}

// Engine sends protocol commands. *engine.Supervisor implements it.
type Engine interface {
	Send(cmd engine.Command) error
}

// RecordStore is the subset of the record store the workflows use.
// *records.Store implements it.
type RecordStore interface {
	GetRecord(ctx context.Context, id int64) (*records.Record, error)
	GetRecordWithPhotos(ctx context.Context, id int64) (*records.Record, []records.Photo, error)
	AddRecord(ctx context.Context, rec records.NewRecord) (int64, error)
	AddPhoto(ctx context.Context, recordID int64, data []byte) (int64, error)
}

// Camera is the device arbiter as seen by the webcam workflow.
// *camera.Arbiter implements it.
type Camera interface {
	EnablePreview(ctx context.Context) error
	DisablePreview()
	Capture(ctx context.Context, path string) (camera.Frame, error)
	Mode() camera.Mode
}

// Ticker drives webcam captures.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// TickerFactory creates a Ticker firing every d.
type TickerFactory func(d time.Duration) Ticker

// NewTimeTicker adapts time.Ticker.
func NewTimeTicker(d time.Duration) Ticker {
	return timeTicker{t: time.NewTicker(d)}
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }
