// Package gate routes enrichment decisions through a language model. Every
// verdict parses a strict JSON contract; anything that fails to parse is
// treated as a rejection so bad data never enters the store.
package gate

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/tmc-media/leadgen-cli/internal/cost"
	"github.com/tmc-media/leadgen-cli/pkg/llm"
)

// ErrUnparseable reports a model reply that did not carry the requested
// JSON contract.
var ErrUnparseable = eris.New("gate: unparseable model reply")

// Gate issues model verdicts for the enrichment flow.
type Gate struct {
	client    llm.Client
	model     string
	maxTokens int64
	costs     *cost.Logger
	calc      *cost.Calculator
}

// New creates a Gate using the given model.
func New(client llm.Client, model string, maxTokens int64, costs *cost.Logger, calc *cost.Calculator) *Gate {
	if maxTokens <= 0 {
		maxTokens = 1024
	}
	return &Gate{client: client, model: model, maxTokens: maxTokens, costs: costs, calc: calc}
}

// ask sends one prompt and returns the interpreted result, logging cost.
func (g *Gate) ask(ctx context.Context, prompt, queryInfo string, expectJSON bool) (llm.Result, error) {
	resp, err := g.client.CreateMessage(ctx, llm.MessageRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Prompt:    prompt,
	})
	if err != nil {
		return llm.Result{}, err
	}
	g.costs.Log("llm_"+g.model, g.calc.LLM(g.model, resp.Usage.InputTokens, resp.Usage.OutputTokens), queryInfo)
	return llm.Interpret(resp, expectJSON), nil
}

// SiteCandidate is one search result under validation.
type SiteCandidate struct {
	Title   string
	URL     string
	Snippet string
}

// ValidateWebsite decides whether a search result is the business's
// official website. The verdict is issued from the result's title, URL,
// and snippet alone; the page is never fetched before acceptance. A
// reply missing the expected key, or unparseable, counts as false.
func (g *Gate) ValidateWebsite(ctx context.Context, name, address string, cand SiteCandidate) (bool, error) {
	result, err := g.ask(ctx, websitePrompt(name, address, cand), "validate_website "+name, true)
	if err != nil {
		return false, err
	}
	if result.Kind != llm.Structured {
		zap.L().Debug("website verdict unparseable, rejecting",
			zap.String("name", name))
		return false, nil
	}
	var verdict struct {
		IsCorrectWebsite *bool `json:"is_correct_website"`
	}
	if err := json.Unmarshal(result.JSON, &verdict); err != nil || verdict.IsCorrectWebsite == nil {
		return false, nil
	}
	return *verdict.IsCorrectWebsite, nil
}

// ContactDetails are fields extracted from a confirmed website. Nil
// pointers mean the page did not carry the field.
type ContactDetails struct {
	Phone   *string `json:"phone"`
	Email   *string `json:"email"`
	Address *string `json:"address"`
}

// ExtractContact pulls contact fields from a confirmed website's text.
// An unparseable reply yields empty details, not an error.
func (g *Gate) ExtractContact(ctx context.Context, name, pageText string) (ContactDetails, error) {
	result, err := g.ask(ctx, contactPrompt(name, pageText), "extract_contact "+name, true)
	if err != nil {
		return ContactDetails{}, err
	}
	if result.Kind != llm.Structured {
		return ContactDetails{}, nil
	}
	var details ContactDetails
	if err := json.Unmarshal(result.JSON, &details); err != nil {
		return ContactDetails{}, nil
	}
	return details, nil
}

// EntryVerdict is the result of validating a manual record.
type EntryVerdict struct {
	IsValid bool   `json:"is_valid"`
	Reason  string `json:"reason"`
}

// ValidateEntry checks that a manually entered record looks like a real
// person or business. An unparseable reply is ErrUnparseable: the caller
// asked for a gate and got no answer.
func (g *Gate) ValidateEntry(ctx context.Context, recordType, name, details string) (EntryVerdict, error) {
	result, err := g.ask(ctx, entryPrompt(recordType, name, details), "validate_entry "+name, true)
	if err != nil {
		return EntryVerdict{}, err
	}
	if result.Kind != llm.Structured {
		return EntryVerdict{}, eris.Wrapf(ErrUnparseable, "entry %s", name)
	}
	var verdict EntryVerdict
	if err := json.Unmarshal(result.JSON, &verdict); err != nil {
		return EntryVerdict{}, eris.Wrapf(ErrUnparseable, "entry %s", name)
	}
	return verdict, nil
}

// ListVerdict is the result of evaluating one lead against list criteria.
type ListVerdict struct {
	Match         bool   `json:"match"`
	Category      string `json:"category"`
	Justification string `json:"justification"`
}

// ClassifyForList decides whether a lead matches smart-list criteria.
// Unparseable replies reject the lead.
func (g *Gate) ClassifyForList(ctx context.Context, criteria, name, details string) (ListVerdict, error) {
	result, err := g.ask(ctx, smartListPrompt(criteria, name, details), "smart_list "+name, true)
	if err != nil {
		return ListVerdict{}, err
	}
	if result.Kind != llm.Structured {
		return ListVerdict{Match: false, Justification: "model reply unparseable"}, nil
	}
	var verdict ListVerdict
	if err := json.Unmarshal(result.JSON, &verdict); err != nil {
		return ListVerdict{Match: false, Justification: "model reply unparseable"}, nil
	}
	return verdict, nil
}

// ReportFindings is the structured body of a deep-analysis report.
type ReportFindings struct {
	IdentifiedNeeds     []string          `json:"identified_needs"`
	OutreachStrategy    []string          `json:"outreach_strategy"`
	CriticalMissingInfo string            `json:"critical_missing_info"`
	WebsiteNotes        string            `json:"website_analysis_notes"`
	SocialMediaLinks    map[string]string `json:"social_media_links"`
}

// AnalyzeForReport builds report findings from a prospect's website text.
func (g *Gate) AnalyzeForReport(ctx context.Context, profile, name, pageText string) (ReportFindings, error) {
	result, err := g.ask(ctx, reportPrompt(profile, name, pageText), "deep_analysis "+name, true)
	if err != nil {
		return ReportFindings{}, err
	}
	if result.Kind != llm.Structured {
		return ReportFindings{}, eris.Wrapf(ErrUnparseable, "report for %s", name)
	}
	var findings ReportFindings
	if err := json.Unmarshal(result.JSON, &findings); err != nil {
		return ReportFindings{}, eris.Wrapf(ErrUnparseable, "report for %s", name)
	}
	return findings, nil
}
