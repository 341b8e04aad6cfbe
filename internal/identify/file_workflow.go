package identify

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"facewatch/internal/engine"
	"facewatch/internal/logging"
	"facewatch/internal/records"
)

// fileWorkflow identifies a user-supplied image or video file. NotFound is
// terminal until new input is selected; there is no automatic retry.
type fileWorkflow struct {
	c        *Coordinator
	modality Modality

	state     State
	input     string
	requestID string
	reason    Reason
	lastErr   string
	result    *Result
	// pending is true while the gate is held for this workflow's request.
	pending bool
	gen     uint64
	log     *slog.Logger
}

func newFileWorkflow(c *Coordinator, m Modality) *fileWorkflow {
	return &fileWorkflow{c: c, modality: m, state: StateIdle, log: c.logger}
}

func (w *fileWorkflow) status() Status {
	return Status{
		Modality:  w.modality,
		State:     w.state,
		Input:     w.input,
		RequestID: w.requestID,
		Reason:    w.reason,
		LastError: w.lastErr,
		Result:    w.result,
	}
}

func (w *fileWorkflow) publish() {
	w.c.publish(w.status())
}

func (w *fileWorkflow) command(path string) engine.Command {
	if w.modality == ModalityVideo {
		return engine.IdentifyVideo(path)
	}
	return engine.IdentifyImage(path)
}

func (w *fileWorkflow) selectInput(path string) error {
	path = strings.TrimSpace(path)
	if path == "" {
		return fmt.Errorf("%w: input path required", ErrInvalidInput)
	}
	if w.pending || w.state == StateIdentifying {
		return ErrRequestInFlight
	}
	cmd := w.command(path)
	if err := cmd.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	w.gen++
	w.state = StateAwaitingInput
	w.input = path
	w.reason = ""
	w.lastErr = ""
	w.result = nil
	w.requestID = w.c.newRequestID()
	w.log = w.c.requestLogger(w.modality, w.requestID)

	if err := w.c.gate.acquire(w.modality); err != nil {
		w.lastErr = err.Error()
		w.publish()
		return err
	}
	if err := w.c.opts.Engine.Send(cmd); err != nil {
		// The command never reached the engine, so no reply will come.
		w.c.gate.release(w.modality)
		w.state = StateRequesting
		w.lastErr = err.Error()
		w.publish()
		w.log.Warn("identify request not delivered",
			logging.String(logging.FieldEventType, "identify_write_failed"),
			logging.String(logging.FieldImpact, "search stays pending until reset or new input"),
			logging.Error(err),
		)
		return err
	}
	w.pending = true
	w.state = StateRequesting
	w.publish()
	w.log.Info("identify request sent",
		logging.String(logging.FieldEventType, "identify_requested"),
		logging.String("input", path),
	)
	return nil
}

func (w *fileWorkflow) reply(ev engine.Event) {
	w.pending = false
	if ev.Kind != engine.EventIdentity {
		w.notFound(ReasonUnknownSubject, "")
		return
	}
	id, err := records.ParseID(ev.Value)
	if err != nil {
		w.notFound(ReasonUnknownSubject, "")
		return
	}

	w.state = StateIdentifying
	w.publish()
	gen := w.gen
	ctx := w.c.runCtx
	store := w.c.opts.Store
	withPhotos := w.modality == ModalityVideo
	go func() {
		var (
			rec    *records.Record
			photos []records.Photo
			err    error
		)
		if withPhotos {
			rec, photos, err = store.GetRecordWithPhotos(ctx, id)
		} else {
			rec, err = store.GetRecord(ctx, id)
		}
		w.c.post(func() { w.lookupDone(gen, ev.Value, rec, photos, err) })
	}()
}

func (w *fileWorkflow) lookupDone(gen uint64, subject string, rec *records.Record, photos []records.Photo, err error) {
	if gen != w.gen || w.state != StateIdentifying {
		return
	}
	switch {
	case errors.Is(err, records.ErrNotFound):
		w.notFound(ReasonUnknownSubject, "")
	case err != nil:
		w.log.Warn("record lookup failed",
			logging.String(logging.FieldEventType, "record_lookup_failed"),
			logging.String(logging.FieldImpact, "match reported as not found"),
			logging.String("subject", subject),
			logging.Error(err),
		)
		w.notFound(ReasonLookupError, err.Error())
	default:
		result := &Result{Subject: subject, Record: rec}
		if len(photos) > 0 {
			result.Photos = records.MaterializePhotos(w.c.opts.PhotoDir, rec.ID, photos, w.log)
		}
		w.state = StateFound
		w.result = result
		w.publish()
		w.c.metrics.Outcome(string(w.modality), string(StateFound))
		w.log.Info("subject identified",
			logging.String(logging.FieldEventType, "identify_found"),
			logging.Int64("record_id", rec.ID),
		)
	}
}

func (w *fileWorkflow) notFound(reason Reason, detail string) {
	w.state = StateNotFound
	w.reason = reason
	if detail != "" {
		w.lastErr = detail
	}
	w.publish()
	w.c.metrics.Outcome(string(w.modality), string(reason))
	w.log.Info("subject not identified",
		logging.String(logging.FieldEventType, "identify_not_found"),
		logging.String("reason", string(reason)),
	)
}

func (w *fileWorkflow) reset() {
	if w.pending {
		w.c.gate.abandon(w.modality)
		w.log.Info("abandoning in-flight request", logging.String(logging.FieldEventType, "identify_abandoned"))
	}
	w.gen++
	w.pending = false
	w.state = StateIdle
	w.input = ""
	w.requestID = ""
	w.reason = ""
	w.lastErr = ""
	w.result = nil
	w.log = w.c.logger
	w.publish()
}
