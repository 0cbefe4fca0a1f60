// Package record defines the domain model for tracked incident records.
//
// A Record is one incident row from the shared error tracker file. Records
// are written by an external reporting tool and read by every dashboard
// screen, so the on-disk shape is loose: optional fields, legacy annotation
// formats, mixed-case statuses. Normalize performs a single defaulting pass
// at load time so the rest of the system never re-checks optional fields.
package record

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Feedback status values. Anything that is not StatusDone counts as pending.
const (
	StatusPending = "pending"
	StatusDone    = "done"
)

// DateFormat is the on-disk date layout used by the tracker files.
const DateFormat = "2006/01/02"

// TimeFormat is the on-disk time-of-day layout.
const TimeFormat = "15:04:05"

// Occurrence is one repeat sighting of the same incident.
type Occurrence struct {
	Date string `json:"date"`
	Time string `json:"time"`
}

// Record is a single incident. Immutable once persisted except for the
// feedback fields, which UpdateStatus mutates in place before the whole
// collection is rewritten.
type Record struct {
	ID           string       `json:"id"`
	UserID       string       `json:"user_id"`
	Date         string       `json:"date"`
	Time         string       `json:"time"`
	ASIN         string       `json:"asin,omitempty"`
	BinID        string       `json:"bin_id,omitempty"`
	OldContainer string       `json:"old_container,omitempty"`
	NewContainer string       `json:"new_container,omitempty"`
	Violation    string       `json:"violation"`
	Quantity     int          `json:"quantity,omitempty"`
	Occurrences  []Occurrence `json:"occurrences,omitempty"`

	FeedbackStatus  string `json:"feedback_status,omitempty"`
	FeedbackUser    string `json:"feedback_user,omitempty"`
	FeedbackDate    string `json:"feedback_date,omitempty"`
	FeedbackMotive  string `json:"feedback_motive,omitempty"`
	FeedbackComment string `json:"feedback_comment,omitempty"`

	FeedbackNotified bool `json:"feedback_notified,omitempty"`
	TimesNotified    int  `json:"times_notified,omitempty"`
}

// Pending reports whether the record still needs feedback.
func (r *Record) Pending() bool {
	return r.FeedbackStatus != StatusDone
}

// Hour returns the record's hour-of-day bucket (0-23), or -1 if the time
// field is unparseable.
func (r *Record) Hour() int {
	parts := strings.SplitN(r.Time, ":", 2)
	if len(parts) < 2 {
		return -1
	}
	var h int
	if _, err := fmt.Sscanf(parts[0], "%d", &h); err != nil {
		return -1
	}
	if h < 0 || h > 23 {
		return -1
	}
	return h
}

// Collection is the full record set for one logical resource. The on-disk
// document is {"errors": [...]}. Reads and writes are whole-collection.
type Collection struct {
	Errors []Record `json:"errors"`
}

// DecodeCollection parses a tracker document. A parse failure here is a
// malformed-data condition, distinct from the I/O failures of the resolver.
func DecodeCollection(data []byte) (*Collection, error) {
	var c Collection
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("decode record collection: %w", err)
	}
	if c.Errors == nil {
		c.Errors = []Record{}
	}
	return &c, nil
}

// Encode serializes the collection to its on-disk document form.
func (c *Collection) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode record collection: %w", err)
	}
	return data, nil
}

// Normalize applies the defaulting rules once, at load time:
//   - status is lowercased; empty becomes pending
//   - occurrences default to the record's own date/time pair
//   - quantity defaults to the occurrence count, minimum 1
//   - feedback fields and counters default to zero values
//   - legacy "motive: comment" annotations are split into the two fields
func (c *Collection) Normalize() {
	for i := range c.Errors {
		r := &c.Errors[i]

		r.FeedbackStatus = strings.ToLower(r.FeedbackStatus)
		if r.FeedbackStatus == "" {
			r.FeedbackStatus = StatusPending
		}

		if len(r.Occurrences) == 0 {
			r.Occurrences = []Occurrence{{Date: r.Date, Time: r.Time}}
		}

		if r.Quantity <= 0 {
			r.Quantity = len(r.Occurrences)
		}
		if r.Quantity <= 0 {
			r.Quantity = 1
		}

		if r.FeedbackMotive == "" && r.FeedbackComment != "" {
			if motive, comment, ok := strings.Cut(r.FeedbackComment, ":"); ok {
				r.FeedbackMotive = strings.TrimSpace(motive)
				r.FeedbackComment = strings.TrimSpace(comment)
			} else {
				r.FeedbackMotive = strings.TrimSpace(r.FeedbackComment)
				r.FeedbackComment = ""
			}
		}
	}
}

// UpdateStatus mutates the feedback fields of the record with the given id
// and stamps the feedback date. Returns false if no record matches. The
// caller is responsible for rewriting the whole collection afterwards.
func (c *Collection) UpdateStatus(id, status, user, motive, comment string, now time.Time) bool {
	for i := range c.Errors {
		r := &c.Errors[i]
		if r.ID != id {
			continue
		}
		r.FeedbackStatus = strings.ToLower(status)
		r.FeedbackUser = user
		r.FeedbackDate = now.Format(DateFormat)
		if motive != "" {
			r.FeedbackMotive = motive
		}
		if comment != "" {
			r.FeedbackComment = comment
		}
		return true
	}
	return false
}

// FilterByDate returns the records whose date field matches the given day.
func (c *Collection) FilterByDate(date string) []Record {
	var out []Record
	for _, r := range c.Errors {
		if r.Date == date {
			out = append(out, r)
		}
	}
	return out
}

// TotalQuantity sums the quantity of every record in the collection.
func (c *Collection) TotalQuantity() int {
	total := 0
	for _, r := range c.Errors {
		total += r.Quantity
	}
	return total
}
