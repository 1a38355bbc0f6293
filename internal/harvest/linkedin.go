package harvest

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/tmc-media/leadgen-cli/internal/model"
)

// LinkedIn searches the web for public LinkedIn profiles matching a role
// and location and inserts them as person leads. Only profile URLs under
// linkedin.com/in/ are kept.
func (h *Harvester) LinkedIn(ctx context.Context, role, location string, max int) (*Result, error) {
	if h.session == nil {
		return nil, eris.Wrap(ErrSourceUnavailable, "linkedin")
	}
	if max <= 0 {
		max = 20
	}

	query := fmt.Sprintf(`site:linkedin.com/in/ %q %q`, role, location)
	results, err := h.session.Search(ctx, query, max)
	if err != nil {
		return nil, err
	}

	var leads []model.Lead
	for _, r := range results {
		if !strings.Contains(r.URL, "linkedin.com/in/") {
			continue
		}
		name, title := splitProfileTitle(r.Title)
		if name == "" {
			continue
		}
		leads = append(leads, model.Lead{
			TS:         time.Now().UTC(),
			RecordType: model.RecordTypePerson,
			Source:     "linkedin_search",
			Name:       name,
			Title:      title,
			LinkedIn:   r.URL,
			Address:    location,
		})
	}
	return h.insert(ctx, "linkedin_search", leads)
}

// splitProfileTitle parses "Name - Title | LinkedIn" result titles.
func splitProfileTitle(title string) (string, string) {
	title = strings.TrimSuffix(title, "| LinkedIn")
	title = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(title), "|"))
	parts := strings.SplitN(title, " - ", 2)
	name := strings.TrimSpace(parts[0])
	role := ""
	if len(parts) == 2 {
		role = strings.TrimSpace(parts[1])
	}
	return name, role
}
