// Package identify drives the image, video and webcam identification workflows.
//
// A single Coordinator goroutine owns every workflow, the engine event stream
// and the request gate. The engine protocol carries no correlation id, so the
// gate allows one identify request in flight across all modalities; a reply
// always belongs to the gate's owner. Requests abandoned by reset or toggle-off
// orphan the gate and the next identify reply is discarded.
//
// Store lookups and camera captures run on helper goroutines and post their
// results back to the coordinator, tagged with a generation so results for a
// superseded search are dropped.
package identify
