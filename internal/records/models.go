package records

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrNotFound is returned when no record has the requested id.
var ErrNotFound = errors.New("record not found")

// lastSeenOffset is how far before the arrest last_seen defaults to.
const lastSeenOffset = 16 * time.Hour

// Record is one registered subject.
type Record struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	FathersName      string    `json:"fathers_name,omitempty"`
	DateOfArrest     time.Time `json:"date_of_arrest"`
	LastSeen         time.Time `json:"last_seen"`
	NoOfCrimes       int       `json:"no_of_crimes"`
	ArrestedLocation string    `json:"arrested_location,omitempty"`
}

// NewRecord carries the fields supplied at enrollment. Zero times and counts
// are replaced with defaults by AddRecord.
type NewRecord struct {
	Name             string    `json:"name"`
	FathersName      string    `json:"fathers_name,omitempty"`
	ArrestedLocation string    `json:"arrested_location,omitempty"`
	NoOfCrimes       int       `json:"no_of_crimes,omitempty"`
	DateOfArrest     time.Time `json:"date_of_arrest,omitempty"`
	LastSeen         time.Time `json:"last_seen,omitempty"`
}

func (n NewRecord) withDefaults(now time.Time) NewRecord {
	n.Name = strings.TrimSpace(n.Name)
	n.FathersName = strings.TrimSpace(n.FathersName)
	n.ArrestedLocation = strings.TrimSpace(n.ArrestedLocation)
	if n.DateOfArrest.IsZero() {
		n.DateOfArrest = now
	}
	if n.LastSeen.IsZero() {
		n.LastSeen = n.DateOfArrest.Add(-lastSeenOffset)
	}
	if n.NoOfCrimes <= 0 {
		n.NoOfCrimes = 1
	}
	return n
}

// Photo is one stored image of a subject.
type Photo struct {
	ID       int64
	RecordID int64
	Data     []byte
}

// ParseID converts the subject id the engine reports into a record id.
func ParseID(value string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid record id %q", value)
	}
	return id, nil
}

// FormatID is the inverse of ParseID.
func FormatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
