package classifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"mailsift/internal/metrics"
	"mailsift/internal/models"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCategories = []models.Category{
	{Name: "Work", Description: "job related mail"},
	{Name: "Promo", Description: "promotions and offers"},
}

func TestClassify_GenerateMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "mistral", req.Model)
		assert.False(t, req.Stream)
		assert.Contains(t, req.Prompt, "(1) Work: job related mail")
		assert.Contains(t, req.Prompt, "(2) Promo: promotions and offers")
		assert.Contains(t, req.Prompt, "Subject: Quarterly report")

		json.NewEncoder(w).Encode(generateResponse{
			Response: `{"category":"Work","summary":"The quarterly report is attached."}`,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "mistral", "generate", 5*time.Second)
	result := c.Classify(context.Background(), "Quarterly report", "please find attached", testCategories)

	assert.Equal(t, "Work", result.Category)
	assert.Equal(t, "The quarterly report is attached.", result.Summary)
}

func TestClassify_ChatMode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req chatRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Messages, 1)
		assert.Equal(t, "user", req.Messages[0].Role)

		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"{\"category\":\"Promo\",\"summary\":\"A discount offer.\"}"}}]}`))
	}))
	defer srv.Close()

	c := New(srv.URL, "gpt-4o-mini", "chat", 5*time.Second)
	result := c.Classify(context.Background(), "50% off", "sale ends soon", testCategories)

	assert.Equal(t, "Promo", result.Category)
	assert.Equal(t, "A discount offer.", result.Summary)
}

func TestClassify_FallbackOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	before := testutil.ToFloat64(metrics.ClassifierFallbacks.WithLabelValues("status"))

	c := New(srv.URL, "mistral", "generate", 5*time.Second)
	result := c.Classify(context.Background(), "subject", "body", testCategories)

	assert.Equal(t, DefaultCategory, result.Category)
	assert.Equal(t, fallbackSummary, result.Summary)

	// Non-2xx replies are counted separately from transport failures.
	after := testutil.ToFloat64(metrics.ClassifierFallbacks.WithLabelValues("status"))
	assert.Equal(t, 1.0, after-before)
}

func TestClassify_FallbackOnTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(500 * time.Millisecond)
		json.NewEncoder(w).Encode(generateResponse{Response: `{"category":"Work","summary":"late"}`})
	}))
	defer srv.Close()

	c := New(srv.URL, "mistral", "generate", 50*time.Millisecond)
	result := c.Classify(context.Background(), "subject", "body", testCategories)

	assert.Equal(t, DefaultCategory, result.Category)
	assert.Equal(t, fallbackSummary, result.Summary)
}

func TestClassify_FallbackOnMalformedReply(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: "Sure! The category is Work."})
	}))
	defer srv.Close()

	c := New(srv.URL, "mistral", "generate", 5*time.Second)
	result := c.Classify(context.Background(), "subject", "body", testCategories)

	assert.Equal(t, DefaultCategory, result.Category)
	assert.Equal(t, fallbackSummary, result.Summary)
}

func TestClassify_EmptyCategoryDefaults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(generateResponse{Response: `{"summary":"no category given"}`})
	}))
	defer srv.Close()

	c := New(srv.URL, "mistral", "generate", 5*time.Second)
	result := c.Classify(context.Background(), "subject", "body", testCategories)

	assert.Equal(t, DefaultCategory, result.Category)
	assert.Equal(t, "no category given", result.Summary)
}

func TestClassify_TruncatesLongBody(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPrompt = req.Prompt
		json.NewEncoder(w).Encode(generateResponse{Response: `{"category":"Work","summary":"ok"}`})
	}))
	defer srv.Close()

	body := strings.Repeat("a", maxBodyChars) + "OVERFLOW"

	c := New(srv.URL, "mistral", "generate", 5*time.Second)
	c.Classify(context.Background(), "subject", body, testCategories)

	assert.Contains(t, gotPrompt, strings.Repeat("a", maxBodyChars))
	assert.NotContains(t, gotPrompt, "OVERFLOW")
}

func TestClassify_TruncationKeepsRuneBoundary(t *testing.T) {
	var gotPrompt string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req generateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		gotPrompt = req.Prompt
		json.NewEncoder(w).Encode(generateResponse{Response: `{"category":"Work","summary":"ok"}`})
	}))
	defer srv.Close()

	// The two-byte rune straddles the cut point.
	body := strings.Repeat("a", maxBodyChars-1) + "é" + strings.Repeat("b", 100)

	c := New(srv.URL, "mistral", "generate", 5*time.Second)
	c.Classify(context.Background(), "subject", body, testCategories)

	assert.True(t, utf8.ValidString(gotPrompt))
	assert.NotContains(t, gotPrompt, "é")
	assert.NotContains(t, gotPrompt, "�")
}

func TestTruncate(t *testing.T) {
	s := strings.Repeat("a", 5) + "héllo"

	got := truncate(s, 7) // byte 7 is the tail of the two-byte é
	assert.Equal(t, "aaaaah", got)
	assert.True(t, utf8.ValidString(got))

	assert.Equal(t, s, truncate(s, len(s)))
	assert.Equal(t, s, truncate(s, 100))
	assert.Equal(t, "", truncate("日本", 1))
}
