// Package fabric provides a client for the fabric manager REST API, the
// remote control plane that stores blueprints and runs deployment workflows.
package fabric

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const apiPrefix = "/api/v3.1"

// Client provides methods for interacting with the fabric manager.
type Client struct {
	baseURL    string
	username   string
	password   string
	tenant     string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config holds fabric client configuration.
type Config struct {
	BaseURL  string // Manager base URL, e.g., "http://fabric.local"
	Username string
	Password string
	Tenant   string
	Timeout  time.Duration
}

// NewClient creates a new fabric manager client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		username: cfg.Username,
		password: cfg.Password,
		tenant:   cfg.Tenant,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "fabric"),
	}
}

// =============================================================================
// Blueprints
// =============================================================================

// PublishArchive uploads a blueprint archive under the given id. It blocks
// until the manager has stored and parsed the archive.
func (c *Client) PublishArchive(ctx context.Context, blueprintID string, archive io.Reader) error {
	q := url.Values{"application_file_name": {"blueprint.yaml"}}
	return c.do(ctx, http.MethodPut, "/blueprints/"+url.PathEscape(blueprintID), q, archive, "application/octet-stream", nil)
}

// DeleteBlueprint removes a blueprint from the manager.
func (c *Client) DeleteBlueprint(ctx context.Context, blueprintID string) error {
	return c.do(ctx, http.MethodDelete, "/blueprints/"+url.PathEscape(blueprintID), nil, nil, "", nil)
}

// =============================================================================
// Deployments
// =============================================================================

// CreateDeployment creates a deployment of a published blueprint. The
// manager starts the environment creation workflow asynchronously.
func (c *Client) CreateDeployment(ctx context.Context, deploymentID, blueprintID string, inputs map[string]string) error {
	if inputs == nil {
		inputs = map[string]string{}
	}
	body := map[string]any{
		"blueprint_id": blueprintID,
		"inputs":       inputs,
	}
	return c.doJSON(ctx, http.MethodPut, "/deployments/"+url.PathEscape(deploymentID), nil, body, nil)
}

// DeleteDeployment removes a deployment. The manager starts the environment
// deletion workflow asynchronously.
func (c *Client) DeleteDeployment(ctx context.Context, deploymentID string) error {
	return c.do(ctx, http.MethodDelete, "/deployments/"+url.PathEscape(deploymentID), nil, nil, "", nil)
}

// GetDeployment returns a deployment including its declared outputs.
func (c *Client) GetDeployment(ctx context.Context, deploymentID string) (*Deployment, error) {
	var d Deployment
	if err := c.do(ctx, http.MethodGet, "/deployments/"+url.PathEscape(deploymentID), nil, nil, "", &d); err != nil {
		return nil, err
	}
	return &d, nil
}

// GetDeploymentOutputs returns the evaluated outputs of a deployment.
func (c *Client) GetDeploymentOutputs(ctx context.Context, deploymentID string) (*DeploymentOutputs, error) {
	var out DeploymentOutputs
	if err := c.do(ctx, http.MethodGet, "/deployments/"+url.PathEscape(deploymentID)+"/outputs", nil, nil, "", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListNodeInstances returns the node instances of a deployment.
func (c *Client) ListNodeInstances(ctx context.Context, deploymentID string) ([]NodeInstance, error) {
	var resp listResponse[NodeInstance]
	q := url.Values{"deployment_id": {deploymentID}}
	if err := c.do(ctx, http.MethodGet, "/node-instances", q, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// =============================================================================
// Executions
// =============================================================================

// ListExecutions returns the executions of a deployment, optionally filtered
// by workflow id.
func (c *Client) ListExecutions(ctx context.Context, deploymentID, workflowID string) ([]Execution, error) {
	q := url.Values{"deployment_id": {deploymentID}}
	if workflowID != "" {
		q.Set("workflow_id", workflowID)
	}
	var resp listResponse[Execution]
	if err := c.do(ctx, http.MethodGet, "/executions", q, nil, "", &resp); err != nil {
		return nil, err
	}
	return resp.Items, nil
}

// GetExecution returns a single execution.
func (c *Client) GetExecution(ctx context.Context, executionID string) (*Execution, error) {
	var e Execution
	if err := c.do(ctx, http.MethodGet, "/executions/"+url.PathEscape(executionID), nil, nil, "", &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// StartExecution starts a workflow on a deployment.
func (c *Client) StartExecution(ctx context.Context, deploymentID, workflowID string) (*Execution, error) {
	body := map[string]any{
		"deployment_id": deploymentID,
		"workflow_id":   workflowID,
	}
	var e Execution
	if err := c.doJSON(ctx, http.MethodPost, "/executions", nil, body, &e); err != nil {
		return nil, err
	}
	return &e, nil
}

// =============================================================================
// Transport
// =============================================================================

func (c *Client) doJSON(ctx context.Context, method, path string, q url.Values, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, method, path, q, bytes.NewReader(body), "application/json", out)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, body io.Reader, contentType string, out any) error {
	target := c.baseURL + apiPrefix + path
	if len(q) > 0 {
		target += "?" + q.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.setHeaders(req)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	c.logger.Debug("fabric request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return decodeError(method, path, resp)
	}

	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/json")
	if c.username != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if c.tenant != "" {
		req.Header.Set("Tenant", c.tenant)
	}
}

func decodeError(method, path string, resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	apiErr := &APIError{
		Method:     method,
		Path:       path,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(raw)),
	}
	var body errorResponse
	if json.Unmarshal(raw, &body) == nil && body.Message != "" {
		apiErr.Message = body.Message
		apiErr.Code = body.ErrorCode
	}
	return apiErr
}
