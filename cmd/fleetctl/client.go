package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// apiClient talks to the fleet tracker server.
type apiClient struct {
	baseURL   string
	authToken string
	http      *http.Client
}

func newAPIClient(baseURL, authToken string) *apiClient {
	return &apiClient{
		baseURL:   strings.TrimSuffix(baseURL, "/"),
		authToken: authToken,
		http:      &http.Client{Timeout: 60 * time.Second},
	}
}

// apiError is a non-2xx response.
type apiError struct {
	Status int
	Body   []byte
}

func (e *apiError) Error() string {
	msg := strings.TrimSpace(string(e.Body))
	if msg == "" {
		msg = http.StatusText(e.Status)
	}
	return fmt.Sprintf("server returned %d: %s", e.Status, msg)
}

func (c *apiClient) do(method, path, contentType string, body io.Reader) (*http.Response, error) {
	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if c.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.authToken)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	return resp, nil
}

// getJSON decodes a 2xx response into out. Other responses become *apiError.
func (c *apiClient) getJSON(method, path string, out any) error {
	resp, err := c.do(method, path, "", nil)
	if err != nil {
		return err
	}
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out any) error {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &apiError{Status: resp.StatusCode, Body: body}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// upload posts file as the multipart "file" field.
func (c *apiClient) upload(path, file string) (*http.Response, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(file))
	if err != nil {
		return nil, err
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	return c.do(http.MethodPost, path, mw.FormDataContentType(), &body)
}

// download saves the response body of path to dest. An empty dest uses the
// file name suggested by the server.
func (c *apiClient) download(path, dest string) (string, error) {
	resp, err := c.do(http.MethodGet, path, "", nil)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return "", &apiError{Status: resp.StatusCode, Body: body}
	}
	if dest == "" {
		dest = suggestedName(resp.Header.Get("Content-Disposition"))
	}
	if dest == "" {
		dest = filepath.Base(path) + ".xlsx"
	}

	out, err := os.Create(dest)
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		out.Close()
		return "", fmt.Errorf("write %s: %w", dest, err)
	}
	return dest, out.Close()
}

func suggestedName(disposition string) string {
	_, params, err := mime.ParseMediaType(disposition)
	if err != nil || params["filename"] == "" {
		return ""
	}
	return filepath.Base(params["filename"])
}
