package output

import (
	"io"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter/tw"

	"github.com/agentstation/apicorpus/internal/utils/ptr"
	"github.com/agentstation/apicorpus/pkg/registry"
	"github.com/agentstation/apicorpus/pkg/sync"
)

// OutcomeRow is the per-candidate view of a run.
type OutcomeRow struct {
	Provider string `json:"provider"`
	Service  string `json:"service,omitempty"`
	Version  string `json:"version"`
	State    string `json:"state"`
	Kind     string `json:"kind,omitempty"`
	Message  string `json:"message,omitempty"`
}

// ResultTable renders one row per processed candidate.
func ResultTable(r *sync.Result) Data {
	d := Data{Headers: []string{"Provider", "Service", "Version", "State", "Detail"}}
	for _, o := range r.Outcomes {
		detail := ""
		switch {
		case o.Moved:
			detail = "from " + o.From.Version
		case o.Err != nil:
			detail = o.Message()
			if o.ErrorContext != "" {
				detail += " at " + o.ErrorContext
			}
		}
		d.Rows = append(d.Rows, []string{
			o.Key.Provider, o.Key.Service, o.Key.Version, string(o.State), detail,
		})
	}
	return d
}

// Outcomes flattens a run result for json and yaml output.
func Outcomes(r *sync.Result) []OutcomeRow {
	rows := make([]OutcomeRow, 0, len(r.Outcomes))
	for _, o := range r.Outcomes {
		rows = append(rows, OutcomeRow{
			Provider: o.Key.Provider,
			Service:  o.Key.Service,
			Version:  o.Key.Version,
			State:    string(o.State),
			Kind:     string(o.Kind),
			Message:  o.Message(),
		})
	}
	return rows
}

// CandidateRow is the listing view of a tracked candidate.
type CandidateRow struct {
	Provider  string    `json:"provider"`
	Service   string    `json:"service,omitempty"`
	Version   string    `json:"version"`
	Format    string    `json:"format"`
	Endpoints int       `json:"endpoints"`
	Status    int       `json:"status,omitempty"`
	Preferred bool      `json:"preferred"`
	Updated   time.Time `json:"updated"`
	Source    string    `json:"source"`
}

// Candidates flattens a registry snapshot in key order.
func Candidates(keys []registry.Key, get func(registry.Key) (registry.Candidate, bool)) []CandidateRow {
	rows := make([]CandidateRow, 0, len(keys))
	for _, k := range keys {
		c, ok := get(k)
		if !ok {
			continue
		}
		rows = append(rows, CandidateRow{
			Provider:  k.Provider,
			Service:   k.Service,
			Version:   k.Version,
			Format:    string(c.Format) + " " + c.FormatVersion,
			Endpoints: c.Endpoints,
			Status:    ptr.Deref(c.Status, 0),
			Preferred: c.Preferred,
			Updated:   c.Updated.Time,
			Source:    c.Source,
		})
	}
	return rows
}

// CandidateTable renders the listing with numeric columns right aligned.
func CandidateTable(rows []CandidateRow) Data {
	d := Data{
		Headers: []string{"Provider", "Service", "Version", "Format", "Endpoints", "Preferred", "Updated"},
		ColumnAlignment: []tw.Align{
			tw.AlignLeft, tw.AlignLeft, tw.AlignLeft, tw.AlignLeft, tw.AlignRight, tw.AlignCenter, tw.AlignLeft,
		},
	}
	for _, r := range rows {
		preferred := ""
		if r.Preferred {
			preferred = "*"
		}
		updated := ""
		if !r.Updated.IsZero() {
			updated = r.Updated.Format(time.DateOnly)
		}
		d.Rows = append(d.Rows, []string{
			r.Provider, r.Service, r.Version, r.Format, strconv.Itoa(r.Endpoints), preferred, updated,
		})
	}
	return d
}

// WriteResult writes a run result in the requested format. Tables are
// followed by the one-line summary.
func WriteResult(w io.Writer, format Format, r *sync.Result) error {
	switch format {
	case FormatJSON, FormatYAML:
		return NewFormatter(format).Format(w, struct {
			RunID    string         `json:"run_id" yaml:"run_id"`
			Summary  string         `json:"summary" yaml:"summary"`
			Outcomes []OutcomeRow   `json:"outcomes" yaml:"outcomes"`
			Failures []sync.Failure `json:"failures" yaml:"failures"`
		}{r.RunID, r.Summary(), Outcomes(r), r.Failures})
	default:
		if len(r.Outcomes) > 0 {
			if err := NewFormatter(FormatTable).Format(w, ResultTable(r)); err != nil {
				return err
			}
		}
		_, err := io.WriteString(w, r.Summary()+"\n")
		return err
	}
}
