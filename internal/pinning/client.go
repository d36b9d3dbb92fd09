package pinning

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

const defaultBaseURL = "https://api.pinata.cloud"

// Pinner pins content to IPFS and returns its content identifier
type Pinner interface {
	PinFile(ctx context.Context, name string, content io.Reader) (string, error)
	PinJSON(ctx context.Context, payload interface{}) (string, error)
}

// PinataClient pins content through the Pinata HTTP API
type PinataClient struct {
	baseURL string
	jwt     string
	client  *http.Client
}

// NewPinataClient creates a Pinata client authenticated with a bearer JWT
func NewPinataClient(baseURL, jwt string) *PinataClient {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	return &PinataClient{
		baseURL: baseURL,
		jwt:     jwt,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

type pinResponse struct {
	IpfsHash string `json:"IpfsHash"`
	Error    string `json:"error"`
	Message  string `json:"message"`
}

// PinFile pins a single file and returns its CID
func (c *PinataClient) PinFile(ctx context.Context, name string, content io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	// Pinata expects a single 'file' field; extra fields trigger "Unexpected field"
	part, err := writer.CreateFormFile("file", name)
	if err != nil {
		return "", fmt.Errorf("build multipart body: %w", err)
	}
	if _, err := io.Copy(part, content); err != nil {
		return "", fmt.Errorf("read file content: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finalize multipart body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinning/pinFileToIPFS", &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.jwt)
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req)
}

// PinJSON pins a JSON payload and returns its CID
func (c *PinataClient) PinJSON(ctx context.Context, payload interface{}) (string, error) {
	body, err := json.Marshal(map[string]interface{}{"pinataContent": payload})
	if err != nil {
		return "", fmt.Errorf("encode pin payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/pinning/pinJSONToIPFS", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.jwt)
	req.Header.Set("Content-Type", "application/json")

	return c.do(req)
}

func (c *PinataClient) do(req *http.Request) (string, error) {
	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("pinning request failed: %w", err)
	}
	defer resp.Body.Close()

	// Error bodies are not always JSON; keep the raw text as a fallback
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("read pinning response: %w", err)
	}
	var parsed pinResponse
	_ = json.Unmarshal(raw, &parsed)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := parsed.Error
		if msg == "" {
			msg = parsed.Message
		}
		if msg == "" {
			msg = string(bytes.TrimSpace(raw))
		}
		return "", fmt.Errorf("pinning service returned %d: %s", resp.StatusCode, msg)
	}
	if parsed.IpfsHash == "" {
		return "", fmt.Errorf("pinning service returned no content id")
	}
	return parsed.IpfsHash, nil
}
