package gateway

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/inercia/hermes/internal/logging"
)

// ErrNotFound is returned when the server does not know a kernel.
var ErrNotFound = errors.New("kernel not found")

// DefaultTimeout bounds every REST call.
const DefaultTimeout = 30 * time.Second

// Client provides HTTP methods for the Jupyter kernel REST API.
// It is safe for concurrent use.
type Client struct {
	baseURL    string
	wsURL      string // explicit WebSocket base, if any
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(client *Client) {
		client.httpClient = c
	}
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) Option {
	return func(client *Client) {
		client.httpClient.Timeout = d
	}
}

// WithToken sets the server token, sent as "Authorization: token <t>".
func WithToken(token string) Option {
	return func(client *Client) {
		client.token = token
	}
}

// WithWSURL overrides the WebSocket base URL derived from the server URL.
func WithWSURL(u string) Option {
	return func(client *Client) {
		client.wsURL = u
	}
}

// WithLogger sets the logger. Default is the "gateway" component logger.
func WithLogger(l *slog.Logger) Option {
	return func(client *Client) {
		client.logger = l
	}
}

// New creates a client for the Jupyter server at baseURL
// (e.g. "http://localhost:8888").
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logging.Gateway()
	}
	return c
}

// BaseURL returns the base URL of the client.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// BaseWSURL returns the WebSocket base URL under which kernel channels are
// served: the WithWSURL override, else the server URL with http mapped to
// ws and https to wss.
func (c *Client) BaseWSURL() string {
	if c.wsURL != "" {
		return strings.TrimSuffix(c.wsURL, "/")
	}
	switch {
	case strings.HasPrefix(c.baseURL, "https://"):
		return "wss://" + strings.TrimPrefix(c.baseURL, "https://")
	case strings.HasPrefix(c.baseURL, "http://"):
		return "ws://" + strings.TrimPrefix(c.baseURL, "http://")
	default:
		return c.baseURL
	}
}

// Kernel describes a running kernel.
type Kernel struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	LastActivity   string `json:"last_activity,omitempty"`
	ExecutionState string `json:"execution_state,omitempty"`
	Connections    int    `json:"connections,omitempty"`
}

// KernelSpec describes an installable kernel.
type KernelSpec struct {
	Name string `json:"name"`
	Spec struct {
		Language    string   `json:"language"`
		DisplayName string   `json:"display_name"`
		Argv        []string `json:"argv,omitempty"`
	} `json:"spec"`
}

// KernelSpecs is the kernelspecs listing of a server.
type KernelSpecs struct {
	Default     string                `json:"default"`
	KernelSpecs map[string]KernelSpec `json:"kernelspecs"`
}

// ListKernelSpecs returns the kernel specs the server can start.
func (c *Client) ListKernelSpecs() (*KernelSpecs, error) {
	var specs KernelSpecs
	if err := c.do(http.MethodGet, "/api/kernelspecs", nil, &specs, http.StatusOK); err != nil {
		return nil, fmt.Errorf("list kernel specs: %w", err)
	}
	return &specs, nil
}

// ListKernels returns the running kernels.
func (c *Client) ListKernels() ([]Kernel, error) {
	var kernels []Kernel
	if err := c.do(http.MethodGet, "/api/kernels", nil, &kernels, http.StatusOK); err != nil {
		return nil, fmt.Errorf("list kernels: %w", err)
	}
	return kernels, nil
}

// StartKernel starts a kernel of the given spec name. An empty name starts
// the server default.
func (c *Client) StartKernel(name string) (*Kernel, error) {
	body := map[string]string{}
	if name != "" {
		body["name"] = name
	}
	var k Kernel
	if err := c.do(http.MethodPost, "/api/kernels", body, &k, http.StatusCreated, http.StatusOK); err != nil {
		return nil, fmt.Errorf("start kernel: %w", err)
	}
	c.logger.Info("kernel started", "kernel_id", k.ID, "name", k.Name)
	return &k, nil
}

// GetKernel returns the kernel with the given ID.
func (c *Client) GetKernel(id string) (*Kernel, error) {
	var k Kernel
	if err := c.do(http.MethodGet, "/api/kernels/"+url.PathEscape(id), nil, &k, http.StatusOK); err != nil {
		return nil, fmt.Errorf("get kernel %s: %w", id, err)
	}
	return &k, nil
}

// ShutdownKernel stops the kernel with the given ID.
func (c *Client) ShutdownKernel(id string) error {
	if err := c.do(http.MethodDelete, "/api/kernels/"+url.PathEscape(id), nil, nil, http.StatusNoContent, http.StatusOK); err != nil {
		return fmt.Errorf("shutdown kernel %s: %w", id, err)
	}
	c.logger.Info("kernel shut down", "kernel_id", id)
	return nil
}

// do performs one REST call. in, if non-nil, is sent as JSON; out, if
// non-nil, receives the decoded response.
func (c *Client) do(method, path string, in, out any, okStatus ...int) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "token "+c.token)
	}

	c.logger.Debug("request", "method", method, "path", path)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	ok := false
	for _, s := range okStatus {
		if resp.StatusCode == s {
			ok = true
			break
		}
	}
	if !ok {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode: %w", err)
	}
	return nil
}
