package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patze/bridge/internal/telemetry"
)

// IngestSink posts envelopes to the control-plane HTTP ingestion endpoint
// as single JSON lines: POST <base>/v1/events with one envelope per request.
type IngestSink struct {
	client *http.Client
	base   string
	token  string
}

// NewIngestSink creates a sink for the ingestion API at baseURL. token is
// optional and sent as a bearer token when set.
func NewIngestSink(baseURL, token string) *IngestSink {
	c := &http.Client{Timeout: 5 * time.Second}
	return &IngestSink{client: c, base: strings.TrimRight(baseURL, "/"), token: token}
}

func (s *IngestSink) Send(ctx context.Context, e telemetry.Envelope) error {
	line, _ := json.Marshal(e)
	req, _ := http.NewRequestWithContext(ctx, http.MethodPost, s.base+"/v1/events", bytes.NewReader(append(line, '\n')))
	req.Header.Set("Content-Type", "application/json")
	if s.token != "" {
		req.Header.Set("Authorization", "Bearer "+s.token)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("ingest sink status %d", resp.StatusCode)
	}
	return nil
}
