package metrics_test

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"facewatch/internal/metrics"
)

func TestNilCollectorsAreSafe(t *testing.T) {
	var c *metrics.Collectors
	c.EngineLine("stdout")
	c.CommandSent("identify")
	c.CommandFailed()
	c.EventDecoded("identity")
	c.EventDiscarded()
	c.Outcome("image", "found")
	c.Capture("ok")
	c.SetWebcamAttempts(3)
	c.SetDeviceMode("closed", "closed", "preview")
	c.SetEngineRunning(true)
	if c.Registry() != nil {
		t.Fatal("expected nil registry")
	}
}

func TestHandlerExposesCounters(t *testing.T) {
	c := metrics.New()
	c.CommandSent("start")
	c.Outcome("webcam", "not_found")
	c.SetWebcamAttempts(10)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	for _, want := range []string{
		`facewatch_engine_commands_total{verb="start"} 1`,
		`facewatch_identify_outcomes_total{modality="webcam",outcome="not_found"} 1`,
		`facewatch_webcam_attempts 10`,
	} {
		if !strings.Contains(text, want) {
			t.Fatalf("metrics output missing %q", want)
		}
	}
}
