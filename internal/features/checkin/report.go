package checkin

import (
	"fmt"
	"strings"
	"time"

	"checkin-runner/internal/infra/fs"
)

const (
	glyphOK   = "✅"
	glyphFail = "❌"
)

// Report is the outcome of one batch: either ConfigErr is set and no account
// ran, or Outcomes holds one entry per account in input order.
type Report struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration
	Outcomes  []Outcome
	ConfigErr error
}

func (r *Report) Failed() bool {
	if r.ConfigErr != nil {
		return true
	}
	for _, o := range r.Outcomes {
		if !o.OK() {
			return true
		}
	}
	return false
}

func (r *Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Lines renders "name: <glyph> <message>" per account.
func (r *Report) Lines() []string {
	if r.ConfigErr != nil {
		return []string{fmt.Sprintf("%s %s", glyphFail, r.ConfigErr.Error())}
	}
	lines := make([]string, len(r.Outcomes))
	for i, o := range r.Outcomes {
		glyph := glyphOK
		if !o.OK() {
			glyph = glyphFail
		}
		lines[i] = fmt.Sprintf("%s: %s %s", o.Account, glyph, o.Message())
	}
	return lines
}

func (r *Report) String() string {
	return strings.Join(r.Lines(), "\n")
}

// Markdown separates lines with blank lines so relays keep them apart.
func (r *Report) Markdown() string {
	return strings.Join(r.Lines(), "\n\n")
}

func (r *Report) Title() string {
	if r.ConfigErr != nil {
		return "Check-in aborted: configuration error"
	}
	return fmt.Sprintf("Check-in report: %d/%d succeeded", r.Succeeded(), len(r.Outcomes))
}

// Snapshot is the persisted form of the report.
func (r *Report) Snapshot() fs.RunSnapshot {
	s := fs.RunSnapshot{
		RunID:      r.RunID,
		StartedAt:  r.StartedAt,
		DurationMs: r.Duration.Milliseconds(),
		Failed:     r.Failed(),
		Lines:      r.Lines(),
	}
	if r.ConfigErr != nil {
		s.ConfigError = r.ConfigErr.Error()
	}
	for _, o := range r.Outcomes {
		s.Accounts = append(s.Accounts, fs.AccountSnapshot{
			Name:         o.Account,
			OK:           o.OK(),
			Message:      o.Message(),
			PushPlusSent: o.PushPlusSent,
		})
	}
	return s
}
