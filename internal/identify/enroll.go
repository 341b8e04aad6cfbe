package identify

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"facewatch/internal/engine"
	"facewatch/internal/logging"
	"facewatch/internal/records"
)

// Enrollment is the outcome of registering a subject.
type Enrollment struct {
	RecordID int64
	Photos   int
	// Ack is closed when the engine confirms the subject with "added <id>".
	// It is nil when no photos were stored, since nothing is announced then.
	Ack <-chan struct{}
}

// NormalizeName trims, collapses whitespace and title-cases a subject name.
func NormalizeName(name string) string {
	fields := strings.Fields(name)
	if len(fields) == 0 {
		return ""
	}
	// Casers carry state, so each call gets its own.
	return cases.Title(language.Und).String(strings.ToLower(strings.Join(fields, " ")))
}

// Enroll stores a new record with its readable photos and announces it to the
// engine. Enrollment does not take the identify request gate: the engine's
// acknowledgement names the record id.
func (c *Coordinator) Enroll(ctx context.Context, rec records.NewRecord, photoPaths []string) (Enrollment, error) {
	rec.Name = NormalizeName(rec.Name)
	if rec.Name == "" {
		return Enrollment{}, fmt.Errorf("%w: name is required", ErrInvalidInput)
	}

	photos := make([][]byte, 0, len(photoPaths))
	paths := make([]string, 0, len(photoPaths))
	for _, p := range photoPaths {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		data, err := os.ReadFile(p)
		if err != nil || len(data) == 0 {
			c.logger.Warn("skipping unreadable enrollment photo",
				logging.String(logging.FieldEventType, "enroll_photo_skipped"),
				logging.String("path", p),
				logging.Error(err),
			)
			continue
		}
		photos = append(photos, data)
		paths = append(paths, p)
	}
	if len(paths) > 0 {
		if err := engine.Add("1", paths...).Validate(); err != nil {
			return Enrollment{}, err
		}
	}

	id, err := c.opts.Store.AddRecord(ctx, rec)
	if err != nil {
		return Enrollment{}, fmt.Errorf("store record: %w", err)
	}
	for i, data := range photos {
		if _, err := c.opts.Store.AddPhoto(ctx, id, data); err != nil {
			return Enrollment{RecordID: id}, fmt.Errorf("store photo %s: %w", paths[i], err)
		}
	}
	result := Enrollment{RecordID: id, Photos: len(photos)}
	if len(paths) == 0 {
		c.logger.Info("subject enrolled without photos", logging.Int64("record_id", id))
		return result, nil
	}

	idText := records.FormatID(id)
	ack := make(chan struct{})
	var sendErr error
	if err := c.do(ctx, func() {
		c.pendingAdds[idText] = append(c.pendingAdds[idText], ack)
		if sendErr = c.opts.Engine.Send(engine.Add(idText, paths...)); sendErr != nil {
			c.dropAck(idText, ack)
		}
	}); err != nil {
		return result, err
	}
	if sendErr != nil {
		return result, sendErr
	}
	c.logger.Info("subject enrolled",
		logging.String(logging.FieldEventType, "enrolled"),
		logging.Int64("record_id", id),
		logging.Int("photos", len(paths)),
	)
	result.Ack = ack
	return result, nil
}

func (c *Coordinator) dropAck(id string, ack chan struct{}) {
	waiters := c.pendingAdds[id]
	for i, w := range waiters {
		if w == ack {
			waiters = append(waiters[:i], waiters[i+1:]...)
			break
		}
	}
	if len(waiters) == 0 {
		delete(c.pendingAdds, id)
		return
	}
	c.pendingAdds[id] = waiters
}

func (c *Coordinator) handleAdded(id string) {
	waiters, ok := c.pendingAdds[id]
	if !ok {
		c.logger.Debug("engine acknowledged unknown enrollment", logging.String("record_id", id))
		return
	}
	delete(c.pendingAdds, id)
	for _, ack := range waiters {
		close(ack)
	}
	c.logger.Info("engine acknowledged enrollment",
		logging.String(logging.FieldEventType, "enroll_acknowledged"),
		logging.String("record_id", id),
	)
}
