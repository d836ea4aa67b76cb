package notify

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWebhookNotifierPostsJSON(t *testing.T) {
	var (
		got       Event
		eventHdr  string
		gotMethod string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		eventHdr = r.Header.Get("X-Realty-Event")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, srv.Client())
	tenantID := uuid.New()
	err := n.Notify(context.Background(), Event{Type: EventNewLead, TenantID: tenantID, Phone: "5511987654321"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "new_lead", eventHdr)
	assert.Equal(t, tenantID, got.TenantID)
	assert.Equal(t, "5511987654321", got.Phone)
}

func TestWebhookNotifierNon2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewWebhookNotifier(srv.URL, srv.Client()).Notify(context.Background(), Event{Type: EventNewLead})
	assert.ErrorContains(t, err, "502")
}

func TestNewWebhookNotifierDisabled(t *testing.T) {
	assert.Nil(t, NewWebhookNotifier("  ", nil))
}
