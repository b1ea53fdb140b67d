package compliance

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/leadcapture/internal/httpclient"
	"github.com/wolfman30/leadcapture/internal/leads"
)

type fakeModerator struct {
	junk bool
	err  error
	text string
}

func (f *fakeModerator) IsJunk(ctx context.Context, text string) (bool, error) {
	f.text = text
	return f.junk, f.err
}

type fakeDNC struct {
	listed bool
	err    error
}

func (f *fakeDNC) Listed(ctx context.Context, email, phone string) (bool, error) {
	return f.listed, f.err
}

type fakeIP struct {
	ip  string
	err error
}

func (f *fakeIP) PublicIP(ctx context.Context) (string, error) {
	return f.ip, f.err
}

type fakeFrequency struct {
	calls int
	last  Summary
	err   error
}

func (f *fakeFrequency) Forward(ctx context.Context, s Summary) error {
	f.calls++
	f.last = s
	return f.err
}

type fakeRecorder struct {
	leadIDs   []string
	decisions []Decision
}

func (f *fakeRecorder) LogDecision(ctx context.Context, leadID string, d Decision) error {
	f.leadIDs = append(f.leadIDs, leadID)
	f.decisions = append(f.decisions, d)
	return nil
}

func hdbView() leads.LeadView {
	return leads.LeadView{
		"id":           "lead-1",
		"form_type":    "hdb",
		"source_url":   "https://x.test",
		"name":         "A",
		"phone_number": "999",
		"email":        "a@x.test",
		"town":         "Tampines",
	}
}

func TestEvaluate_Statuses(t *testing.T) {
	upstream := errors.New("timeout")
	tests := []struct {
		name          string
		moderator     *fakeModerator
		dnc           *fakeDNC
		wantStatus    Status
		wantFrequency bool
	}{
		{"clear", &fakeModerator{}, &fakeDNC{}, StatusClear, true},
		{"junk", &fakeModerator{junk: true}, &fakeDNC{}, StatusJunk, false},
		{"dnc", &fakeModerator{}, &fakeDNC{listed: true}, StatusDNC, false},
		{"junk wins over dnc", &fakeModerator{junk: true}, &fakeDNC{listed: true}, StatusJunk, false},
		{"moderation failure", &fakeModerator{err: upstream}, &fakeDNC{}, StatusUnknown, false},
		{"dnc failure", &fakeModerator{}, &fakeDNC{err: upstream}, StatusUnknown, false},
		{"dnc hit with moderation failure", &fakeModerator{err: upstream}, &fakeDNC{listed: true}, StatusDNC, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			freq := &fakeFrequency{}
			rec := &fakeRecorder{}
			g := NewGateway(GatewayConfig{
				Moderator: tt.moderator,
				DNC:       tt.dnc,
				IP:        &fakeIP{ip: "203.0.113.9"},
				Frequency: freq,
				Recorder:  rec,
			})

			d := g.Evaluate(context.Background(), Input{View: hdbView()})
			assert.Equal(t, tt.wantStatus, d.Status)
			assert.Equal(t, tt.wantFrequency, d.FrequencySent)
			assert.Equal(t, tt.wantFrequency, freq.calls == 1)
			require.NotNil(t, d.IPAddress)
			assert.Equal(t, "203.0.113.9", *d.IPAddress)
			require.Len(t, rec.decisions, 1)
			assert.Equal(t, tt.wantStatus, rec.decisions[0].Status)
		})
	}
}

func TestEvaluate_RecordsStoredLeadID(t *testing.T) {
	rec := &fakeRecorder{}
	view := hdbView()
	view["id"] = "submitted-id"
	g := NewGateway(GatewayConfig{Moderator: &fakeModerator{}, DNC: &fakeDNC{}, Recorder: rec})

	g.Evaluate(context.Background(), Input{LeadID: "lead-1", View: view})
	assert.Equal(t, []string{"lead-1"}, rec.leadIDs)
}

func TestEvaluate_ModerationFailureUpstreamError(t *testing.T) {
	g := NewGateway(GatewayConfig{
		Moderator: &fakeModerator{err: errors.New("boom")},
		DNC:       &fakeDNC{},
	})
	d := g.Evaluate(context.Background(), Input{View: hdbView()})
	require.Len(t, d.Upstream, 1)
	var upErr *UpstreamError
	require.ErrorAs(t, d.Upstream[0], &upErr)
	assert.Equal(t, "moderation", upErr.Call)
}

func TestEvaluate_IPFailureIsBestEffort(t *testing.T) {
	g := NewGateway(GatewayConfig{
		Moderator: &fakeModerator{},
		DNC:       &fakeDNC{},
		IP:        &fakeIP{err: errors.New("no route")},
	})
	d := g.Evaluate(context.Background(), Input{View: hdbView()})
	assert.Equal(t, StatusClear, d.Status)
	assert.Nil(t, d.IPAddress)
	assert.Len(t, d.Upstream, 1)
}

func TestEvaluate_FrequencyFailureKeepsClear(t *testing.T) {
	freq := &fakeFrequency{err: errors.New("503")}
	g := NewGateway(GatewayConfig{Moderator: &fakeModerator{}, DNC: &fakeDNC{}, Frequency: freq})
	d := g.Evaluate(context.Background(), Input{View: hdbView()})
	assert.Equal(t, StatusClear, d.Status)
	assert.False(t, d.FrequencySent)
	assert.Equal(t, 1, freq.calls)
}

func TestEvaluate_Verification(t *testing.T) {
	freq := &fakeFrequency{}
	mod := &fakeModerator{}
	g := NewGateway(GatewayConfig{Moderator: mod, DNC: &fakeDNC{}, Frequency: freq})

	d := g.Evaluate(context.Background(), Input{View: hdbView(), SentCode: "4321", UserCode: "4321"})
	assert.True(t, d.Verified)
	last := freq.last.AdditionalData[len(freq.last.AdditionalData)-1]
	assert.Equal(t, leads.Field{Key: VerifiedKey, Value: "Yes"}, last)
	assert.Contains(t, mod.text, `"mobile_number":"999"`)

	d = g.Evaluate(context.Background(), Input{View: hdbView(), SentCode: "4321", UserCode: "0000"})
	assert.False(t, d.Verified)
}

func TestEvaluate_NoChecksConfigured(t *testing.T) {
	d := NewGateway(GatewayConfig{}).Evaluate(context.Background(), Input{View: hdbView()})
	assert.Equal(t, StatusClear, d.Status)
	assert.False(t, d.FrequencySent)
	assert.Nil(t, d.IPAddress)
	assert.Empty(t, d.Upstream)
}

func TestEvaluate_HTTPClients(t *testing.T) {
	var moderationBody, frequencyAuth string
	var frequencyCalls int32
	var frequencySummary Summary

	mux := http.NewServeMux()
	mux.HandleFunc("/moderate", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "text/plain", r.Header.Get("Content-Type"))
		assert.Equal(t, "mod-key", r.Header.Get("Ocp-Apim-Subscription-Key"))
		b, _ := io.ReadAll(r.Body)
		moderationBody = string(b)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"Terms":null,"Status":{"Code":3000}}`))
	})
	mux.HandleFunc("/dnc", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@x.test", body["email"])
		assert.Equal(t, "999", body["ph_number"])
		_, _ = w.Write([]byte(`{"status":false}`))
	})
	mux.HandleFunc("/ip", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ip":"198.51.100.7"}`))
	})
	mux.HandleFunc("/frequency", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&frequencyCalls, 1)
		frequencyAuth = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&frequencySummary))
		w.WriteHeader(http.StatusOK)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := httpclient.New(httpclient.Config{Timeout: 2 * time.Second})
	g := NewGateway(GatewayConfig{
		Moderator: NewModerationClient(client, srv.URL+"/moderate", "mod-key"),
		DNC:       NewDNCClient(client, srv.URL+"/dnc"),
		IP:        NewIPEchoClient(client, srv.URL+"/ip"),
		Frequency: NewFrequencyClient(client, srv.URL+"/frequency", "user:pass"),
	})

	d := g.Evaluate(context.Background(), Input{View: hdbView()})
	assert.Equal(t, StatusClear, d.Status)
	assert.True(t, d.FrequencySent)
	require.NotNil(t, d.IPAddress)
	assert.Equal(t, "198.51.100.7", *d.IPAddress)
	assert.Contains(t, moderationBody, `"name":"A"`)
	assert.Equal(t, "Basic dXNlcjpwYXNz", frequencyAuth)
	assert.Equal(t, int32(1), atomic.LoadInt32(&frequencyCalls))
	assert.Equal(t, "https://x.test", frequencySummary.SourceURL)
	assert.Equal(t, leads.Field{Key: "Town", Value: "Tampines"}, frequencySummary.AdditionalData[1])
}

func TestClients_FlagsAndStatusErrors(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/junk", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"Terms":[{"Term":"spam"}]}`))
	})
	mux.HandleFunc("/listed", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"1"}`))
	})
	mux.HandleFunc("/down", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()
	client := httpclient.New(httpclient.Config{Timeout: time.Second})
	ctx := context.Background()

	junk, err := NewModerationClient(client, srv.URL+"/junk", "k").IsJunk(ctx, "text")
	require.NoError(t, err)
	assert.True(t, junk)

	listed, err := NewDNCClient(client, srv.URL+"/listed").Listed(ctx, "a@x.test", "1")
	require.NoError(t, err)
	assert.True(t, listed)

	_, err = NewDNCClient(client, srv.URL+"/down").Listed(ctx, "a@x.test", "1")
	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusBadGateway, statusErr.Code)

	_, err = NewIPEchoClient(client, srv.URL+"/down").PublicIP(ctx)
	assert.Error(t, err)
}

func TestLooselyEmpty(t *testing.T) {
	for _, raw := range []string{``, `null`, `false`, `0`, `0.0`, `""`, `"0"`, `[]`, `{}`} {
		assert.True(t, looselyEmpty(json.RawMessage(raw)), raw)
	}
	for _, raw := range []string{`true`, `1`, `"yes"`, `["x"]`, `{"a":1}`} {
		assert.False(t, looselyEmpty(json.RawMessage(raw)), raw)
	}
}
