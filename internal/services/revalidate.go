package services

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
)

// RevalidateService asks the storefront frontend to revalidate cached pages
// after an order changes state. Best-effort: failures are logged and the
// page converges on its next natural revalidation.
type RevalidateService struct {
	baseURL string
	secret  string
	client  *http.Client
}

func NewRevalidateService(baseURL, secret string) *RevalidateService {
	return &RevalidateService{
		baseURL: strings.TrimRight(baseURL, "/"),
		secret:  secret,
		client:  httpClient,
	}
}

type revalidateRequest struct {
	Path   string `json:"path"`
	Secret string `json:"secret"`
}

// Revalidate triggers cache revalidation for a frontend path.
func (s *RevalidateService) Revalidate(path string) error {
	if s.baseURL == "" || s.secret == "" {
		log.Printf("[Revalidate] not configured, skipping %s", path)
		return nil
	}

	body, err := json.Marshal(revalidateRequest{Path: path, Secret: s.secret})
	if err != nil {
		return err
	}

	resp, err := s.client.Post(s.baseURL+"/api/revalidate", "application/json", bytes.NewReader(body))
	if err != nil {
		log.Printf("[Revalidate] request for %s failed: %v", path, err)
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[Revalidate] unexpected status %d for %s", resp.StatusCode, path)
		return fmt.Errorf("revalidate returned status %d", resp.StatusCode)
	}

	return nil
}
