// Package platformclient is an HTTP client for the control-plane REST API
// that on-prem providers are created through.
//
// Every request is scoped to one customer and authenticated with a static
// API token sent in the X-AUTH-YW-API-TOKEN header.
//
// Example usage:
//
//	client, err := platformclient.New("https://platform.example.com",
//		platformclient.WithCustomer(customerUUID),
//		platformclient.WithToken(token))
//	ref, err := client.CreateProvider(ctx, bootstrap.ProviderRequest{Code: "onprem", Name: "dc1"})
package platformclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/nomis52/goprovision/bootstrap"
	"github.com/nomis52/goprovision/document"
)

// TokenHeader carries the API token.
const TokenHeader = "X-AUTH-YW-API-TOKEN"

const defaultTimeout = 30 * time.Second

var _ bootstrap.ResourceClient = (*Client)(nil)

// Client talks to the control-plane API. It is safe for concurrent use.
type Client struct {
	baseURL  *url.URL
	customer string
	token    string
	timeout  time.Duration
	client   *http.Client
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the API token.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = token
	}
}

// WithCustomer sets the customer UUID every route is scoped to.
func WithCustomer(customerUUID string) Option {
	return func(c *Client) {
		c.customer = customerUUID
	}
}

// WithHTTPClient replaces the default http.Client. WithTimeout has no
// effect on a client supplied this way.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.client = hc
	}
}

// WithTimeout sets the timeout of the default http.Client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithLogger sets a custom logger for the client.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// New creates a client for the API at host. The host must include the scheme.
func New(host string, opts ...Option) (*Client, error) {
	u, err := url.Parse(host)
	if err != nil {
		return nil, fmt.Errorf("invalid host URL: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("host URL must include scheme and host: %q", host)
	}

	c := &Client{
		baseURL: u,
		timeout: defaultTimeout,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.client == nil {
		c.client = &http.Client{Timeout: c.timeout}
	}
	if c.customer == "" {
		return nil, errors.New("customer uuid is required")
	}
	return c, nil
}

// CreateProvider creates an on-prem provider.
func (c *Client) CreateProvider(ctx context.Context, req bootstrap.ProviderRequest) (bootstrap.ProviderRef, error) {
	var resp providerResponse
	if err := c.post(ctx, c.customerPath("providers"), req, &resp); err != nil {
		return bootstrap.ProviderRef{}, fmt.Errorf("failed to create provider %q: %w", req.Name, err)
	}
	if resp.UUID == "" {
		return bootstrap.ProviderRef{}, fmt.Errorf("failed to create provider %q: response has no uuid", req.Name)
	}
	return bootstrap.ProviderRef{UUID: resp.UUID}, nil
}

// CreateInstanceType creates one instance type under the provider.
func (c *Client) CreateInstanceType(ctx context.Context, providerUUID string, it document.InstanceType) (bootstrap.InstanceTypeRef, error) {
	body := newInstanceTypeRequest(it)
	var resp instanceTypeResponse
	if err := c.post(ctx, c.customerPath("providers", providerUUID, "instance_types"), body, &resp); err != nil {
		return bootstrap.InstanceTypeRef{}, fmt.Errorf("failed to create instance type %q: %w", it.InstanceTypeCode, err)
	}
	code := resp.InstanceTypeCode
	if code == "" {
		code = it.InstanceTypeCode
	}
	return bootstrap.InstanceTypeRef{Code: code}, nil
}

// CreateRegion creates one region under the provider.
func (c *Client) CreateRegion(ctx context.Context, providerUUID string, r document.Region) (bootstrap.ResourceRef, error) {
	body := regionRequest{Code: r.Code, Name: nameOr(r.Name, r.Code), Latitude: r.Latitude, Longitude: r.Longitude}
	var resp resourceResponse
	if err := c.post(ctx, c.customerPath("providers", providerUUID, "regions"), body, &resp); err != nil {
		return bootstrap.ResourceRef{}, fmt.Errorf("failed to create region %q: %w", r.Code, err)
	}
	if resp.UUID == "" {
		return bootstrap.ResourceRef{}, fmt.Errorf("failed to create region %q: response has no uuid", r.Code)
	}
	return bootstrap.ResourceRef{UUID: resp.UUID, Code: r.Code}, nil
}

// CreateZone creates one availability zone under the region.
func (c *Client) CreateZone(ctx context.Context, providerUUID, regionUUID string, z document.Zone) (bootstrap.ResourceRef, error) {
	body := zoneRequest{Code: z.Code, Name: nameOr(z.Name, z.Code)}
	var resp resourceResponse
	if err := c.post(ctx, c.customerPath("providers", providerUUID, "regions", regionUUID, "zones"), body, &resp); err != nil {
		return bootstrap.ResourceRef{}, fmt.Errorf("failed to create zone %q: %w", z.Code, err)
	}
	if resp.UUID == "" {
		return bootstrap.ResourceRef{}, fmt.Errorf("failed to create zone %q: response has no uuid", z.Code)
	}
	return bootstrap.ResourceRef{UUID: resp.UUID, Code: z.Code}, nil
}

// CreateNodeInstance registers one node in the zone.
func (c *Client) CreateNodeInstance(ctx context.Context, zoneUUID string, n document.Node) (bootstrap.NodeRef, error) {
	body := nodeRequest{Nodes: []nodeDetails{{
		IP:           n.IP,
		SSHUser:      n.SSHUser,
		InstanceType: n.InstanceType,
		InstanceName: n.InstanceName,
		Region:       n.Region,
		Zone:         n.Zone,
	}}}
	var resp map[string]nodeResponse
	if err := c.post(ctx, c.customerPath("zones", zoneUUID, "nodes"), body, &resp); err != nil {
		return bootstrap.NodeRef{}, fmt.Errorf("failed to create node %q: %w", n.IP, err)
	}
	node := resp[n.IP]
	return bootstrap.NodeRef{UUID: node.NodeUUID, IP: n.IP}, nil
}

// CreateAccessKey uploads the SSH key for the provider.
func (c *Client) CreateAccessKey(ctx context.Context, providerUUID, regionUUID string, k document.AccessKey) (bootstrap.AccessKeyRef, error) {
	body := accessKeyRequest{
		KeyCode:                k.Code,
		KeyContent:             k.PrivateKeyContent,
		KeyType:                "PRIVATE",
		RegionUUID:             regionUUID,
		SSHUser:                k.SSHUser,
		SSHPort:                k.SSHPort,
		PasswordlessSudoAccess: k.PasswordlessSudoAccess,
		AirGapInstall:          k.AirGapInstall,
		SkipProvisioning:       k.SkipProvisioning,
		NTPServers:             k.NTPServers,
	}
	var resp accessKeyResponse
	if err := c.post(ctx, c.customerPath("providers", providerUUID, "access_keys"), body, &resp); err != nil {
		return bootstrap.AccessKeyRef{}, fmt.Errorf("failed to create access key %q: %w", k.Code, err)
	}
	code := resp.IDKey.KeyCode
	if code == "" {
		code = k.Code
	}
	return bootstrap.AccessKeyRef{Code: code}, nil
}

func nameOr(name, code string) string {
	if name != "" {
		return name
	}
	return code
}

// customerPath joins escaped segments below the customer route.
func (c *Client) customerPath(segments ...string) string {
	parts := []string{"/api/v1/customers", url.PathEscape(c.customer)}
	for _, s := range segments {
		parts = append(parts, url.PathEscape(s))
	}
	return strings.Join(parts, "/")
}

// buildURL appends path to the base URL, keeping any path prefix the base
// URL carries (e.g. a reverse proxy mount point).
func (c *Client) buildURL(path string) (string, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return "", fmt.Errorf("failed to build URL: %w", err)
	}
	escaped := strings.TrimSuffix(c.baseURL.EscapedPath(), "/") + "/" + strings.TrimPrefix(ref.EscapedPath(), "/")
	unescaped, err := url.PathUnescape(escaped)
	if err != nil {
		return "", fmt.Errorf("failed to build URL: %w", err)
	}
	u := *c.baseURL
	u.Path = unescaped
	u.RawPath = escaped
	u.RawQuery = ref.RawQuery
	u.Fragment = ""
	return u.String(), nil
}

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := c.doRequest(ctx, http.MethodPost, path, payload)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return newAPIError(resp.StatusCode, body)
	}
	if out == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, method, path string, payload []byte) (*http.Response, error) {
	u, err := c.buildURL(path)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set(TokenHeader, c.token)
	}

	c.logger.Debug("platform request", "method", method, "path", path)
	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	c.logger.Debug("platform response", "method", method, "path", path, "status", resp.StatusCode, "duration", time.Since(start))
	return resp, nil
}
