package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/realty-inbox/internal/conversation"
	"github.com/wolfman30/realty-inbox/internal/http/middleware"
)

const tenantID = "7a1c2a9e-3b7d-4c1e-9a55-0d2f7e6b8c41"

func TestOperatorTokenPassesOperatorAuth(t *testing.T) {
	token, err := operatorToken("secret", tenantID, time.Minute)
	require.NoError(t, err)

	var seen string
	h := middleware.OperatorJWT("secret")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims, _ := middleware.OperatorClaimsFromContext(r.Context())
		seen = claims.TenantID
	}))
	req := httptest.NewRequest(http.MethodPost, "/api/projects/x/documents", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	h.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, tenantID, seen)

	_, err = operatorToken("", tenantID, time.Minute)
	assert.Error(t, err)
}

func TestSeedBatchesDocuments(t *testing.T) {
	var batches []int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/projects/p1/documents", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		var body struct {
			Documents []conversation.DocumentChunk `json:"documents"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		batches = append(batches, len(body.Documents))
		w.WriteHeader(http.StatusCreated)
		_, _ = fmt.Fprintf(w, `{"stored":%d}`, len(body.Documents))
	}))
	defer srv.Close()

	file := documentFile{ProjectID: "p1"}
	for i := 0; i < 45; i++ {
		file.Documents = append(file.Documents, conversation.DocumentChunk{Title: fmt.Sprintf("doc %d", i), Content: "texto"})
	}

	stored, err := seed(context.Background(), srv.Client(), srv.URL, "tok", file)
	require.NoError(t, err)
	assert.Equal(t, 45, stored)
	assert.Equal(t, []int{20, 20, 5}, batches)
}

func TestSeedStopsOnRejectedBatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "agent not configured", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	file := documentFile{ProjectID: "p1", Documents: []conversation.DocumentChunk{{Title: "a", Content: "b"}}}
	stored, err := seed(context.Background(), srv.Client(), srv.URL, "tok", file)
	assert.Zero(t, stored)
	assert.ErrorContains(t, err, "status 503")

	_, err = seed(context.Background(), srv.Client(), srv.URL, "tok", documentFile{})
	assert.ErrorContains(t, err, "project_id")
}
