package httputils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is shared by the outbound helpers. Streaming calls rely on the
// request context for cancellation, so there is no overall timeout.
var Client = &http.Client{
	Transport: &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConnsPerHost:   8,
		IdleConnTimeout:       90 * time.Second,
		ResponseHeaderTimeout: 60 * time.Second,
	},
}

// StatusError is returned for any non-2xx response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("bad status: %d %s", e.Code, e.Body)
}

func newRequest(ctx context.Context, method, url string, headers map[string]string, body interface{}) (*http.Request, error) {
	var reader io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(jsonBody)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	return req, nil
}

func do(ctx context.Context, method, url string, headers map[string]string, body interface{}) (*http.Response, error) {
	req, err := newRequest(ctx, method, url, headers, body)
	if err != nil {
		return nil, err
	}
	r, err := Client.Do(req)
	if err != nil {
		return nil, err
	}
	if r.StatusCode < 200 || r.StatusCode > 299 {
		defer r.Body.Close()
		b, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
		return nil, &StatusError{Code: r.StatusCode, Body: string(b)}
	}
	return r, nil
}

// DoJSON sends body (if any) as JSON and decodes the response into resp (if any).
func DoJSON(ctx context.Context, method, url string, headers map[string]string, body interface{}, resp interface{}) error {
	r, err := do(ctx, method, url, headers, body)
	if err != nil {
		return err
	}
	defer r.Body.Close()
	if resp != nil {
		return json.NewDecoder(r.Body).Decode(resp)
	}
	return nil
}

func PostJSON(ctx context.Context, url string, headers map[string]string, body interface{}, resp interface{}) error {
	return DoJSON(ctx, http.MethodPost, url, headers, body, resp)
}

func GetJSON(ctx context.Context, url string, headers map[string]string, resp interface{}) error {
	return DoJSON(ctx, http.MethodGet, url, headers, nil, resp)
}

// PostStream returns the open response body; the caller closes it.
func PostStream(ctx context.Context, url string, headers map[string]string, body interface{}) (io.ReadCloser, error) {
	r, err := do(ctx, http.MethodPost, url, headers, body)
	if err != nil {
		return nil, err
	}
	return r.Body, nil
}

func Bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}
