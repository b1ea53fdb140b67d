package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/leadcapture/internal/leads"
)

func TestDiscordContent(t *testing.T) {
	msg, err := DiscordContent("lead-1", leads.LeadView{"form_type": "hdb", "name": "A", "town": "Tampines"})
	require.NoError(t, err)
	assert.Equal(t, discordUsername, msg.Username)
	assert.True(t, strings.HasPrefix(msg.Content, "New hdb lead: A\n```json\n"))
	assert.Contains(t, msg.Content, `"town": "Tampines"`)
	assert.True(t, strings.HasSuffix(msg.Content, "\n```"))
}

func TestDiscordContent_Truncates(t *testing.T) {
	msg, err := DiscordContent("lead-1", leads.LeadView{"name": "A", "notes": strings.Repeat("x", 5000)})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(msg.Content), discordContentMax)
	assert.True(t, strings.HasSuffix(msg.Content, "...\n```"))
}

func TestDiscordContent_LongNameStaysWithinLimit(t *testing.T) {
	msg, err := DiscordContent("lead-1", leads.LeadView{"form_type": "hdb", "name": strings.Repeat("A", 2500)})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(msg.Content), discordContentMax)
	header, _, ok := strings.Cut(msg.Content, "\n")
	require.True(t, ok)
	assert.Len(t, header, discordHeaderMax)
	assert.True(t, strings.HasSuffix(header, "..."))
	assert.True(t, strings.HasSuffix(msg.Content, "\n```"))
}

func TestDiscordContent_CutsOnRuneBoundary(t *testing.T) {
	msg, err := DiscordContent("lead-1", leads.LeadView{"name": strings.Repeat("界", 900), "notes": strings.Repeat("é", 2000)})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(msg.Content), discordContentMax)
	assert.True(t, utf8.ValidString(msg.Content))
}

func TestDiscordContent_IDIsStoredLeadID(t *testing.T) {
	msg, err := DiscordContent("lead-1", leads.LeadView{"id": "someone-else", "name": "A"})
	require.NoError(t, err)
	assert.Contains(t, msg.Content, `"id": "lead-1"`)
	assert.NotContains(t, msg.Content, "someone-else")
}

func TestClip(t *testing.T) {
	assert.Equal(t, "abc", clip("abc", 3))
	assert.Equal(t, "a...", clip("abcdef", 4))
	assert.Equal(t, "..", clip("abcdef", 2))
	assert.Equal(t, "", clip("abcdef", -5))
	assert.Equal(t, "...", clip("界界", 5))
}

func TestDiscord_NotifyLead(t *testing.T) {
	var calls int32
	var got DiscordMessage
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	NewDiscord(nil, srv.URL, nil, nil).NotifyLead(context.Background(), "lead-1", leads.LeadView{"name": "A"})
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Contains(t, got.Content, `"id": "lead-1"`)
}

func TestDiscord_LongNameDoesNotPanic(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	assert.NotPanics(t, func() {
		NewDiscord(nil, srv.URL, nil, nil).NotifyLead(context.Background(), "lead-1", leads.LeadView{
			"form_type": "hdb",
			"name":      strings.Repeat("A", 2000),
		})
	})
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestDiscord_FailureIsSwallowed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	assert.NotPanics(t, func() {
		NewDiscord(nil, srv.URL, nil, nil).NotifyLead(context.Background(), "lead-1", leads.LeadView{})
		NewDiscord(nil, "", nil, nil).NotifyLead(context.Background(), "lead-1", leads.LeadView{})
	})
}
