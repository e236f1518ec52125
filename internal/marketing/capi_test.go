package marketing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"clinic_webhook_backend/internal/tenants"

	"github.com/stretchr/testify/require"
)

type testConfig struct {
	url      string
	testCode string
}

func (c testConfig) GetMetaGraphURL() string      { return c.url }
func (c testConfig) GetMetaAPIVersion() string    { return "v18.0" }
func (c testConfig) GetMetaTestEventCode() string { return c.testCode }

func TestTrackLeadPostsHashedPhone(t *testing.T) {
	var (
		gotPath string
		gotBody eventsRequest
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_, _ = w.Write([]byte(`{"events_received":1,"fbtrace_id":"abc"}`))
	}))
	defer srv.Close()

	client := NewClient(testConfig{url: srv.URL, testCode: "TEST123"}, "US", nil)
	client.now = func() time.Time { return time.Unix(1700000000, 0) }
	tenant := tenants.Tenant{Slug: "t1", MetaPixelID: "PIXEL", MetaAccessToken: "TOKEN"}

	result, err := client.TrackLead(context.Background(), tenant, "+1 201-555-0123")
	require.NoError(t, err)
	require.Equal(t, 1, result.EventsReceived)
	require.Equal(t, "/v18.0/PIXEL/events", gotPath)

	sum := sha256.Sum256([]byte("12015550123"))
	require.Len(t, gotBody.Data, 1)
	event := gotBody.Data[0]
	require.Equal(t, "Lead", event.EventName)
	require.Equal(t, "chat", event.ActionSource)
	require.EqualValues(t, 1700000000, event.EventTime)
	require.Equal(t, []string{hex.EncodeToString(sum[:])}, event.UserData.Phones)
	require.Equal(t, "TOKEN", gotBody.AccessToken)
	require.Equal(t, "TEST123", gotBody.TestEventCode)
}

func TestTrackLeadNotConfigured(t *testing.T) {
	client := NewClient(testConfig{url: "http://unused"}, "US", nil)
	_, err := client.TrackLead(context.Background(), tenants.Tenant{MetaPixelID: "PIXEL"}, "+12015550123")
	require.ErrorIs(t, err, ErrNotConfigured)
}

func TestTrackLeadAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":{"message":"Invalid token"}}`, http.StatusBadRequest)
	}))
	defer srv.Close()

	client := NewClient(testConfig{url: srv.URL}, "US", nil)
	_, err := client.TrackLead(context.Background(), tenants.Tenant{MetaPixelID: "P", MetaAccessToken: "T"}, "+12015550123")
	require.ErrorContains(t, err, "400")
}

func TestHashPhoneEmpty(t *testing.T) {
	require.Empty(t, HashPhone("", "US"))
}
