package websearch

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rail-inspection-ai-api/internal/config"
)

func TestClient_Search(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req searchRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if req.Query != "철도 안전 최신 정책" || req.APIKey != "k" {
			http.Error(w, "unexpected request", http.StatusBadRequest)
			return
		}
		_, _ = w.Write([]byte(`{"results":[
			{"title":"국토부 발표","url":"https://example.com/a","content":"신규 점검 기준"},
			{"title":"no url","url":"","content":"skip"},
			{"title":"B","url":"https://example.com/b","snippet":"스니펫"},
			{"title":"C","url":"https://example.com/c","content":"over limit"}
		]}`))
	}))
	defer srv.Close()

	c, err := NewClient(&config.WebSearchConfig{Endpoint: srv.URL, APIKey: "k"})
	require.NoError(t, err)

	res, err := c.Search(context.Background(), "철도 안전 최신 정책", 2)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "https://example.com/a", res[0].URL)
	assert.Equal(t, "신규 점검 기준", res[0].Snippet)
	assert.Equal(t, "스니펫", res[1].Snippet)
}

func TestClient_SearchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := NewClient(&config.WebSearchConfig{Endpoint: srv.URL})
	require.NoError(t, err)
	_, err = c.Search(context.Background(), "q", 3)
	assert.ErrorContains(t, err, "429")
}

func TestNewClient_RequiresEndpoint(t *testing.T) {
	_, err := NewClient(&config.WebSearchConfig{})
	assert.Error(t, err)
}
