package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// client talks to a running backend.
type client struct {
	baseURL string
	http    *http.Client
}

type chatReply struct {
	Reply    string `json:"reply"`
	Chart    string `json:"chart"`
	Download string `json:"download"`
	Error    string `json:"error"`
}

type apiError struct {
	Status  int
	Message string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
}

func (c *client) url(path string) string {
	return strings.TrimRight(c.baseURL, "/") + path
}

func (c *client) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		return nil, &apiError{Status: resp.StatusCode, Message: body.Error}
	}
	return resp, nil
}

func (c *client) postJSON(ctx context.Context, path string, payload any) (*http.Response, error) {
	buf, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url(path), bytes.NewReader(buf))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func (c *client) health(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/"), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", err
	}
	return body.Message, nil
}

func (c *client) chat(ctx context.Context, session, message, format string) (chatReply, error) {
	resp, err := c.postJSON(ctx, "/chat", map[string]string{
		"session_id": session,
		"message":    message,
		"format":     format,
	})
	if err != nil {
		return chatReply{}, err
	}
	defer resp.Body.Close()

	var out chatReply
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out, err
}

// stream reads the SSE endpoint and calls onEvent for every event.
func (c *client) stream(ctx context.Context, session, message, format string, onEvent func(event, data string)) error {
	q := url.Values{}
	q.Set("session_id", session)
	q.Set("message", message)
	if format != "" {
		q.Set("format", format)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url("/chat/stream?"+q.Encode()), nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "text/event-stream")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var event string
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64<<10), 8<<20)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			onEvent(event, strings.TrimPrefix(line, "data: "))
		}
	}
	return scanner.Err()
}

func (c *client) upload(ctx context.Context, session, path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	if err := writer.WriteField("session_id", session); err != nil {
		return "", err
	}
	part, err := writer.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url("/upload"), body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())
	resp, err := c.do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var out struct {
		Message string `json:"message"`
	}
	err = json.NewDecoder(resp.Body).Decode(&out)
	return out.Message, err
}

// export downloads the transcript into dir and returns the written path.
func (c *client) export(ctx context.Context, session, format, dir string) (string, error) {
	resp, err := c.postJSON(ctx, "/export", map[string]string{"session_id": session, "format": format})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	name := session + "." + format
	if _, params, err := mime.ParseMediaType(resp.Header.Get("Content-Disposition")); err == nil && params["filename"] != "" {
		name = filepath.Base(params["filename"])
	}

	path := filepath.Join(dir, name)
	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return "", err
	}
	return path, nil
}
