package pagespeed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "https://acme.com", r.URL.Query().Get("url"))
		assert.Equal(t, "performance", r.URL.Query().Get("category"))
		w.Write([]byte(`{"lighthouseResult":{"categories":{"performance":{"score":0.87}}}}`))
	}))
	defer srv.Close()

	c := NewClient("", WithBaseURL(srv.URL))
	score, err := c.Score(context.Background(), "https://acme.com")
	require.NoError(t, err)
	assert.Equal(t, 87, score)
}

func TestScoreErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "lighthouse failed", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient("key", WithBaseURL(srv.URL))
	_, err := c.Score(context.Background(), "https://acme.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 500")
}
