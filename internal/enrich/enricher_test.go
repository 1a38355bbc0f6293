package enrich

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/tmc-media/leadgen-cli/internal/cost"
	"github.com/tmc-media/leadgen-cli/internal/gate"
	"github.com/tmc-media/leadgen-cli/internal/lookup"
	"github.com/tmc-media/leadgen-cli/internal/model"
	"github.com/tmc-media/leadgen-cli/internal/store/mocks"
	"github.com/tmc-media/leadgen-cli/pkg/browser"
	"github.com/tmc-media/leadgen-cli/pkg/llm"
)

// scriptedLLM returns canned replies keyed by a substring of the prompt.
type scriptedLLM struct {
	replies map[string]string
	calls   int
}

func (s *scriptedLLM) CreateMessage(ctx context.Context, req llm.MessageRequest) (*llm.MessageResponse, error) {
	s.calls++
	for key, text := range s.replies {
		if strings.Contains(req.Prompt, key) {
			return &llm.MessageResponse{Text: text}, nil
		}
	}
	return &llm.MessageResponse{Text: `{}`}, nil
}

// fakeStrategy returns a fixed candidate list per query, or a fixed
// error for every query.
type fakeStrategy struct {
	results map[string][]lookup.Candidate
	err     error
	queries []string
}

func (f *fakeStrategy) Name() string { return "fake" }

func (f *fakeStrategy) Search(ctx context.Context, query string, max int) ([]lookup.Candidate, error) {
	f.queries = append(f.queries, query)
	if f.err != nil {
		return nil, f.err
	}
	return f.results[query], nil
}

// fakeSession serves canned page text per URL and per followed link
// text, recording every navigation and follow attempt.
type fakeSession struct {
	pages   map[string]string
	links   map[string]string
	navs    []string
	follows []string
}

func (f *fakeSession) Navigate(ctx context.Context, pageURL string) (string, error) {
	f.navs = append(f.navs, pageURL)
	if text, ok := f.pages[pageURL]; ok {
		return text, nil
	}
	return "", assert.AnError
}

func (f *fakeSession) Search(ctx context.Context, query string, max int) ([]browser.SearchResult, error) {
	return nil, nil
}

func (f *fakeSession) FindAndFollow(ctx context.Context, linkText string) (string, error) {
	f.follows = append(f.follows, linkText)
	if text, ok := f.links[linkText]; ok {
		return text, nil
	}
	return "", assert.AnError
}

func (f *fakeSession) CapturePage(dir string) (string, error) {
	return dir + "/capture.html", nil
}

func (f *fakeSession) Close() error { return nil }

func testGate(replies map[string]string) (*gate.Gate, *scriptedLLM) {
	s := &scriptedLLM{replies: replies}
	return gate.New(s, "claude-haiku-4-5-20251001", 512,
		cost.NewLogger(""), cost.NewCalculator(cost.DefaultRates())), s
}

func TestFindFillRequiresSession(t *testing.T) {
	g, _ := testGate(nil)
	e := New(&mocks.MockStore{}, g, &fakeStrategy{})

	_, err := e.FindFill(context.Background())
	assert.ErrorIs(t, err, ErrSessionUnavailable)
}

func TestFindFillAcceptCommitsWebsiteThenDomain(t *testing.T) {
	st := &mocks.MockStore{}
	lead := &model.Lead{ID: 1, Name: "Acme Corp", Address: "123 Main St"}

	st.On("LeadsMissingContact", mock.Anything, 100).
		Return([]model.Lead{*lead}, nil)
	st.On("GetLead", mock.Anything, int64(1)).Return(lead, nil)
	st.On("UpdateLeadField", mock.Anything, int64(1), "website", "https://acme.com").
		Return(true, nil).Once()
	st.On("UpdateLeadField", mock.Anything, int64(1), "domain", "acme.com").
		Return(true, nil).Once()
	st.On("UpdateLeadField", mock.Anything, int64(1), "phone", "555-0100").
		Return(true, nil).Once()

	strategy := &fakeStrategy{results: map[string][]lookup.Candidate{
		`"Acme Corp" "123 Main St" official website`: {
			{Title: "Acme", URL: "https://acme.com", Snippet: "Welcome to Acme Corp"},
		},
	}}
	session := &fakeSession{pages: map[string]string{
		"https://acme.com": "ACME-HOMEPAGE Welcome to Acme Corp",
	}}
	g, _ := testGate(map[string]string{
		"verifying whether a web search result": `{"is_correct_website": true}`,
		"Extract contact details":               `{"phone": "555-0100", "email": null, "address": null}`,
	})

	e := New(st, g, strategy, WithSession(session), WithCourtesyDelay(1000))
	summary, err := e.FindFill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, OutcomeUpdated, summary.PerLead[1])

	// Most-specific query ran first.
	require.NotEmpty(t, strategy.queries)
	assert.Contains(t, strategy.queries[0], "123 Main St")
	st.AssertExpectations(t)
	// Website commit is exactly website then domain, nothing more.
	st.AssertNumberOfCalls(t, "UpdateLeadField", 3)
	// The accepted site is the only page fetched: the candidate was
	// judged on its search metadata, not a pre-verdict fetch.
	assert.Equal(t, []string{"https://acme.com"}, session.navs)
}

func TestFindFillRejectedWebsiteSkipsContact(t *testing.T) {
	st := &mocks.MockStore{}
	lead := &model.Lead{ID: 2, Name: "Beta LLC"}

	st.On("LeadsMissingContact", mock.Anything, 100).
		Return([]model.Lead{*lead}, nil)
	st.On("GetLead", mock.Anything, int64(2)).Return(lead, nil)

	strategy := &fakeStrategy{results: map[string][]lookup.Candidate{
		`"Beta LLC" official website`: {{Title: "Not Beta", URL: "https://not-beta.com"}},
	}}
	session := &fakeSession{}
	g, scripted := testGate(map[string]string{
		"verifying whether a web search result": `{"is_correct_website": false}`,
	})

	e := New(st, g, strategy, WithSession(session), WithCourtesyDelay(1000))
	summary, err := e.FindFill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.NoNewData)
	assert.Equal(t, OutcomeNoNewData, summary.PerLead[2])

	// One validation call, no contact extraction, and no page fetch at
	// all for the rejected candidate.
	assert.Equal(t, 1, scripted.calls)
	assert.Empty(t, session.navs)
	st.AssertNotCalled(t, "UpdateLeadField", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFindFillFieldWriteOnce(t *testing.T) {
	st := &mocks.MockStore{}
	// Lead already has a website and a phone; only email may be written.
	lead := &model.Lead{ID: 3, Name: "Gamma Inc", Website: "https://gamma.dev", Phone: "555-9999"}

	st.On("LeadsMissingContact", mock.Anything, 100).
		Return([]model.Lead{*lead}, nil)
	st.On("GetLead", mock.Anything, int64(3)).Return(lead, nil)
	st.On("UpdateLeadField", mock.Anything, int64(3), "email", "hi@gamma.dev").
		Return(true, nil).Once()

	session := &fakeSession{pages: map[string]string{
		"https://gamma.dev": "Gamma Inc homepage",
	}}
	g, _ := testGate(map[string]string{
		"Extract contact details": `{"phone": "555-0000", "email": "hi@gamma.dev", "address": null}`,
	})

	e := New(st, g, &fakeStrategy{}, WithSession(session), WithCourtesyDelay(1000))
	summary, err := e.FindFill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	// The extracted phone must not overwrite the existing one.
	st.AssertExpectations(t)
	st.AssertNumberOfCalls(t, "UpdateLeadField", 1)
}

func TestFindFillPrefersContactPage(t *testing.T) {
	st := &mocks.MockStore{}
	lead := &model.Lead{ID: 5, Name: "Epsilon Ltd", Website: "https://epsilon.io"}

	st.On("LeadsMissingContact", mock.Anything, 100).
		Return([]model.Lead{*lead}, nil)
	st.On("GetLead", mock.Anything, int64(5)).Return(lead, nil)
	st.On("UpdateLeadField", mock.Anything, int64(5), "email", "team@epsilon.io").
		Return(true, nil).Once()

	// The homepage carries no contact details; only the contact page,
	// reached by link text, does.
	session := &fakeSession{
		pages: map[string]string{"https://epsilon.io": "EPSILON-HOMEPAGE"},
		links: map[string]string{"contact": "EPSILON-CONTACT-PAGE reach us at team@epsilon.io"},
	}
	g, _ := testGate(map[string]string{
		"EPSILON-CONTACT-PAGE": `{"phone": null, "email": "team@epsilon.io", "address": null}`,
	})

	e := New(st, g, &fakeStrategy{}, WithSession(session), WithCourtesyDelay(1000))
	summary, err := e.FindFill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	// The contact link was followed, and the first match stopped the hunt.
	assert.Equal(t, []string{"contact"}, session.follows)
	st.AssertExpectations(t)
}

func TestFindFillContactFallsBackToHomepage(t *testing.T) {
	st := &mocks.MockStore{}
	lead := &model.Lead{ID: 6, Name: "Zeta Co", Website: "https://zeta.dev"}

	st.On("LeadsMissingContact", mock.Anything, 100).
		Return([]model.Lead{*lead}, nil)
	st.On("GetLead", mock.Anything, int64(6)).Return(lead, nil)
	st.On("UpdateLeadField", mock.Anything, int64(6), "phone", "555-0111").
		Return(true, nil).Once()

	// No contact-style link anywhere; extraction runs on the homepage.
	session := &fakeSession{pages: map[string]string{
		"https://zeta.dev": "ZETA-HOMEPAGE call 555-0111",
	}}
	g, _ := testGate(map[string]string{
		"ZETA-HOMEPAGE": `{"phone": "555-0111", "email": null, "address": null}`,
	})

	e := New(st, g, &fakeStrategy{}, WithSession(session), WithCourtesyDelay(1000))
	summary, err := e.FindFill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, []string{"contact", "about", "connect"}, session.follows)
	st.AssertExpectations(t)
}

func TestFindFillLookupErrorTriesNextVariant(t *testing.T) {
	st := &mocks.MockStore{}
	lead := &model.Lead{ID: 8, Name: "Theta Group", Address: "9 High St"}

	st.On("LeadsMissingContact", mock.Anything, 100).
		Return([]model.Lead{*lead}, nil)
	st.On("GetLead", mock.Anything, int64(8)).Return(lead, nil)

	strategy := &fakeStrategy{err: assert.AnError}
	g, _ := testGate(nil)

	e := New(st, g, strategy, WithSession(&fakeSession{}), WithCourtesyDelay(1000))
	summary, err := e.FindFill(context.Background())
	require.NoError(t, err)

	// A failing lookup means no candidate, not a failed record. Every
	// query variant is still attempted.
	assert.Equal(t, 1, summary.NoNewData)
	assert.Zero(t, summary.Failed)
	assert.Equal(t, OutcomeNoNewData, summary.PerLead[8])
	assert.Len(t, strategy.queries, 2)
	st.AssertNotCalled(t, "UpdateLeadField", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestFindFillIsolatesPerLeadFailures(t *testing.T) {
	st := &mocks.MockStore{}
	broken := model.Lead{ID: 10, Name: "Broken Co"}
	healthy := &model.Lead{ID: 11, Name: "Healthy Co", Website: "https://healthy.com"}

	st.On("LeadsMissingContact", mock.Anything, 100).
		Return([]model.Lead{broken, *healthy}, nil)
	st.On("GetLead", mock.Anything, int64(10)).Return(nil, assert.AnError)
	st.On("GetLead", mock.Anything, int64(11)).Return(healthy, nil)
	st.On("UpdateLeadField", mock.Anything, int64(11), "phone", "555-0100").
		Return(true, nil)

	session := &fakeSession{pages: map[string]string{
		"https://healthy.com": "Healthy Co page",
	}}
	g, _ := testGate(map[string]string{
		"Extract contact details": `{"phone": "555-0100", "email": null, "address": null}`,
	})

	e := New(st, g, &fakeStrategy{}, WithSession(session), WithCourtesyDelay(1000))
	summary, err := e.FindFill(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Processed)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 1, summary.Updated)
	assert.Equal(t, OutcomeFailed, summary.PerLead[10])
	assert.Equal(t, OutcomeUpdated, summary.PerLead[11])
}

func TestFindFillStopsOnCancellation(t *testing.T) {
	st := &mocks.MockStore{}
	st.On("LeadsMissingContact", mock.Anything, 100).
		Return([]model.Lead{{ID: 1, Name: "A"}, {ID: 2, Name: "B"}}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	g, _ := testGate(nil)
	e := New(st, g, &fakeStrategy{}, WithSession(&fakeSession{}))
	summary, err := e.FindFill(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Processed)
	st.AssertNotCalled(t, "GetLead", mock.Anything, mock.Anything)
}

func TestFindFillProgressCallback(t *testing.T) {
	st := &mocks.MockStore{}
	lead := &model.Lead{ID: 7, Name: "Solo Co"}
	st.On("LeadsMissingContact", mock.Anything, 100).
		Return([]model.Lead{*lead}, nil)
	st.On("GetLead", mock.Anything, int64(7)).Return(lead, nil)

	var events []Progress
	g, _ := testGate(nil)
	e := New(st, g, &fakeStrategy{},
		WithSession(&fakeSession{}),
		WithProgress(func(p Progress) { events = append(events, p) }))

	_, err := e.FindFill(context.Background())
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, int64(7), events[0].LeadID)
	assert.Equal(t, 1, events[0].Index)
	assert.Equal(t, 1, events[0].Total)
	assert.Equal(t, OutcomeNoNewData, events[0].Outcome)
}

func TestFindWebsitesLeavesContactAlone(t *testing.T) {
	st := &mocks.MockStore{}
	lead := &model.Lead{ID: 4, Name: "Delta Co"}

	st.On("ListLeads", mock.Anything, mock.Anything).
		Return([]model.Lead{*lead}, nil)
	st.On("GetLead", mock.Anything, int64(4)).Return(lead, nil)
	st.On("UpdateLeadField", mock.Anything, int64(4), "website", "https://delta.co").
		Return(true, nil).Once()
	st.On("UpdateLeadField", mock.Anything, int64(4), "domain", "delta.co").
		Return(true, nil).Once()

	strategy := &fakeStrategy{results: map[string][]lookup.Candidate{
		`"Delta Co" official website`: {{Title: "Delta Co", URL: "https://delta.co"}},
	}}
	session := &fakeSession{}
	g, scripted := testGate(map[string]string{
		"verifying whether a web search result": `{"is_correct_website": true}`,
	})

	e := New(st, g, strategy, WithSession(session), WithCourtesyDelay(1000))
	summary, err := e.FindWebsites(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Updated)

	// No contact extraction in website-only mode.
	assert.Equal(t, 1, scripted.calls)
	st.AssertNumberOfCalls(t, "UpdateLeadField", 2)
}
