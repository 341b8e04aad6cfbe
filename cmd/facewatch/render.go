package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"facewatch/internal/identify"
	"facewatch/internal/records"
)

const recordDateFormat = "2006-01-02 15:04"

func shouldColorize(writer io.Writer) bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	file, ok := writer.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func stateLabel(state identify.State, colorize bool) string {
	label := strings.ToUpper(strings.ReplaceAll(string(state), "_", " "))
	if !colorize {
		return label
	}
	var c *color.Color
	switch state {
	case identify.StateFound:
		c = color.New(color.FgHiGreen, color.Bold)
	case identify.StateNotFound:
		c = color.New(color.FgRed, color.Bold)
	default:
		c = color.New(color.FgYellow)
	}
	c.EnableColor()
	return c.Sprint(label)
}

// renderOutcome prints a workflow status the way one-shot commands report it.
func renderOutcome(w io.Writer, st identify.Status, colorize bool) {
	fmt.Fprintf(w, "%s: %s", capitalize(string(st.Modality)), stateLabel(st.State, colorize))
	if st.Reason != "" {
		fmt.Fprintf(w, " (%s)", st.Reason)
	}
	fmt.Fprintln(w)
	if st.Input != "" {
		fmt.Fprintf(w, "Input: %s\n", st.Input)
	}
	if st.Modality == identify.ModalityWebcam && st.MaxAttempts > 0 {
		fmt.Fprintf(w, "Attempts: %d/%d\n", st.Attempts, st.MaxAttempts)
	}
	if st.LastError != "" {
		fmt.Fprintf(w, "Last error: %s\n", st.LastError)
	}
	if st.Result == nil || st.Result.Record == nil {
		return
	}
	fmt.Fprintln(w, renderRecord(st.Result.Record))
	for _, p := range st.Result.Photos {
		fmt.Fprintf(w, "Photo: %s\n", p)
	}
}

func renderRecord(rec *records.Record) string {
	return renderFields([][2]string{
		{"ID", records.FormatID(rec.ID)},
		{"Name", rec.Name},
		{"Father's name", dash(rec.FathersName)},
		{"Date of arrest", formatDate(rec.DateOfArrest)},
		{"Last seen", formatDate(rec.LastSeen)},
		{"Crimes", strconv.Itoa(rec.NoOfCrimes)},
		{"Arrested at", dash(rec.ArrestedLocation)},
	})
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format(recordDateFormat)
}

func dash(value string) string {
	if strings.TrimSpace(value) == "" {
		return "-"
	}
	return value
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
