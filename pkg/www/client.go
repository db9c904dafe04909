package www

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// Perform the request, and if any errors occurs (transport or non-2xx status code), return an error
// This does the work for you of checking for a bad response, reading the response body,
// and turning it into an error.
// If client is nil, http.DefaultClient is used.
func Do(client *http.Client, req *http.Request) (*http.Response, error) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respB, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		resp.Body.Close()
		return nil, HTTPError{resp.StatusCode, fmt.Sprintf("HTTP error %v (%v)", resp.Status, string(respB))}
	}
	return resp, nil
}

// ReadAll performs the request and returns the response body
func ReadAll(client *http.Client, req *http.Request) ([]byte, error) {
	resp, err := Do(client, req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}

// FetchJSON performs the request and decodes the JSON response into output
func FetchJSON(client *http.Client, req *http.Request, output any) error {
	resp, err := Do(client, req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	return json.NewDecoder(resp.Body).Decode(output)
}

// NewJSONRequest creates a request whose body is the JSON encoding of body
func NewJSONRequest(ctx context.Context, method, url string, body any) (*http.Request, error) {
	b, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}
	return NewRawJSONRequest(ctx, method, url, b)
}

// NewRawJSONRequest creates a request with an already-encoded JSON body
func NewRawJSONRequest(ctx context.Context, method, url string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}

// StatusCode returns the HTTP status code carried by err, or zero if err is not an HTTPError
func StatusCode(err error) int {
	if hErr, ok := err.(HTTPError); ok {
		return hErr.Code
	}
	return 0
}
