package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Thin outbound-call helpers. Every call carries the request context; the
// shared client's timeout bounds the wait.

func getPayload(ctx context.Context, client *http.Client, rawURL string, headers map[string]string) (Payload, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return doPayload(client, req)
}

func postFormPayload(ctx context.Context, client *http.Client, rawURL string, form url.Values) (Payload, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")
	return doPayload(client, req)
}

func postJSONPayload(ctx context.Context, client *http.Client, rawURL string, body any) (Payload, int, error) {
	buf, err := json.Marshal(body)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, rawURL, bytes.NewReader(buf))
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return doPayload(client, req)
}

func doPayload(client *http.Client, req *http.Request) (Payload, int, error) {
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()
	p, err := DecodePayload(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("status %d: %w", resp.StatusCode, err)
	}
	return p, resp.StatusCode, nil
}

func httpCode(status int) string { return fmt.Sprintf("http_%d", status) }
