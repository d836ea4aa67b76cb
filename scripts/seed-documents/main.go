// Command seed-documents uploads a project's reference documents through the
// operator API so the agent can retrieve them.
//
//	OPERATOR_JWT_SECRET=... TENANT_ID=... go run ./scripts/seed-documents docs.json
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wolfman30/realty-inbox/internal/conversation"
	"github.com/wolfman30/realty-inbox/internal/http/middleware"
	"github.com/wolfman30/realty-inbox/pkg/logging"
)

// batchSize matches what one embedding round-trip comfortably handles.
const batchSize = 20

type documentFile struct {
	ProjectID   string                       `json:"project_id"`
	ProjectName string                       `json:"project_name"`
	Documents   []conversation.DocumentChunk `json:"documents"`
}

func main() {
	logger := logging.New(os.Getenv("LOG_LEVEL"))
	if len(os.Args) < 2 {
		fmt.Println("Usage: go run ./scripts/seed-documents <documents.json>")
		os.Exit(1)
	}

	apiURL := strings.TrimRight(os.Getenv("API_URL"), "/")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	token, err := operatorToken(os.Getenv("OPERATOR_JWT_SECRET"), os.Getenv("TENANT_ID"), time.Hour)
	if err != nil {
		logger.Error("cannot sign operator token", "error", err)
		os.Exit(1)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		logger.Error("cannot read documents file", "error", err)
		os.Exit(1)
	}
	var file documentFile
	if err := json.Unmarshal(data, &file); err != nil {
		logger.Error("cannot parse documents file", "error", err)
		os.Exit(1)
	}

	logger.Info("seeding project documents",
		"api_url", apiURL,
		"project", file.ProjectName,
		"documents", len(file.Documents),
	)
	client := &http.Client{Timeout: 60 * time.Second}
	stored, err := seed(context.Background(), client, apiURL, token, file)
	if err != nil {
		logger.Error("seeding failed", "stored", stored, "error", err)
		os.Exit(1)
	}
	logger.Info("seeding complete", "stored", stored)
}

// operatorToken signs the same claims the operator API verifies.
func operatorToken(secret, tenantID string, ttl time.Duration) (string, error) {
	if secret == "" || tenantID == "" {
		return "", fmt.Errorf("OPERATOR_JWT_SECRET and TENANT_ID are required")
	}
	claims := middleware.OperatorClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "seed-documents",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
		TenantID: tenantID,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// seed posts the documents in batches and returns how many the API stored.
func seed(ctx context.Context, client *http.Client, apiURL, token string, file documentFile) (int, error) {
	if file.ProjectID == "" {
		return 0, fmt.Errorf("project_id is required")
	}
	url := fmt.Sprintf("%s/api/projects/%s/documents", apiURL, file.ProjectID)

	total := 0
	for i := 0; i < len(file.Documents); i += batchSize {
		end := min(i+batchSize, len(file.Documents))
		payload, err := json.Marshal(map[string]any{"documents": file.Documents[i:end]})
		if err != nil {
			return total, err
		}
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return total, err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)

		resp, err := client.Do(req)
		if err != nil {
			return total, fmt.Errorf("batch %d: %w", i/batchSize+1, err)
		}
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusCreated {
			return total, fmt.Errorf("batch %d: status %d: %s", i/batchSize+1, resp.StatusCode, strings.TrimSpace(string(body)))
		}
		var result struct {
			Stored int `json:"stored"`
		}
		if err := json.Unmarshal(body, &result); err != nil {
			return total, fmt.Errorf("batch %d: decode response: %w", i/batchSize+1, err)
		}
		total += result.Stored
	}
	return total, nil
}
