// Package pterodactyl provisions panels through the Pterodactyl application API.
package pterodactyl

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/LORD-OBITO-DEV/Shop-panel/internal/domain"
)

type Config struct {
	BaseURL    string
	APIKey     string
	LocationID int
}

// Client creates a panel user and a server for each order and deletes the
// server on reclaim. Servers carry the order id as external id, so a repeated
// Create for the same order returns the existing server.
type Client struct {
	baseURL    string
	apiKey     string
	locationID int
	catalog    *Catalog
	http       *http.Client
	logger     *log.Logger
}

type Option func(*Client)

func WithLogger(logger *log.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

func New(cfg Config, catalog *Catalog, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" || strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New("pterodactyl url and api key are required")
	}
	if catalog == nil {
		return nil, errors.New("pterodactyl catalog is required")
	}
	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		locationID: cfg.LocationID,
		catalog:    catalog,
		http:       &http.Client{Timeout: 30 * time.Second},
		logger:     log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

type object[T any] struct {
	Attributes T `json:"attributes"`
}

type list[T any] struct {
	Data []object[T] `json:"data"`
}

type user struct {
	ID        int    `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

type server struct {
	ID         int    `json:"id"`
	Identifier string `json:"identifier"`
	ExternalID string `json:"external_id"`
}

type userRequest struct {
	Email     string `json:"email"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Password  string `json:"password"`
}

type limits struct {
	Memory int `json:"memory"`
	Swap   int `json:"swap"`
	Disk   int `json:"disk"`
	IO     int `json:"io"`
	CPU    int `json:"cpu"`
}

type featureLimits struct {
	Databases   int `json:"databases"`
	Allocations int `json:"allocations"`
	Backups     int `json:"backups"`
}

type deploy struct {
	Locations   []int    `json:"locations"`
	DedicatedIP bool     `json:"dedicated_ip"`
	PortRange   []string `json:"port_range"`
}

type createServerRequest struct {
	Name              string            `json:"name"`
	User              int               `json:"user"`
	Egg               int               `json:"egg"`
	DockerImage       string            `json:"docker_image"`
	Startup           string            `json:"startup"`
	Environment       map[string]string `json:"environment"`
	Limits            limits            `json:"limits"`
	FeatureLimits     featureLimits     `json:"feature_limits"`
	Deploy            deploy            `json:"deploy"`
	ExternalID        string            `json:"external_id"`
	StartOnCompletion bool              `json:"start_on_completion"`
}

// Create provisions a server for spec and returns its numeric id as a string.
func (c *Client) Create(ctx context.Context, spec domain.ProvisionSpec) (string, error) {
	kind, ok := c.catalog.Lookup(spec.Kind)
	if !ok {
		return "", fmt.Errorf("unknown resource kind %q", spec.Kind)
	}

	if existing, err := c.serverByExternalID(ctx, spec.OrderID); err != nil {
		return "", err
	} else if existing != nil {
		c.logger.Printf("server already exists order=%s server=%d", spec.OrderID, existing.ID)
		return strconv.Itoa(existing.ID), nil
	}

	userID, err := c.ensureUser(ctx, spec)
	if err != nil {
		return "", err
	}

	env := make(map[string]string, len(kind.Environment))
	for k, v := range kind.Environment {
		env[k] = v
	}
	req := createServerRequest{
		Name:        spec.DisplayName,
		User:        userID,
		Egg:         kind.Egg,
		DockerImage: kind.DockerImage,
		Startup:     kind.Startup,
		Environment: env,
		Limits: limits{
			Memory: spec.Sizing.MemoryMB,
			Disk:   spec.Sizing.DiskMB,
			CPU:    spec.Sizing.CPUPercent,
			IO:     500,
		},
		FeatureLimits: featureLimits{
			Databases:   kind.Databases,
			Allocations: kind.Allocations,
			Backups:     kind.Backups,
		},
		Deploy:            deploy{Locations: []int{c.locationID}, PortRange: []string{}},
		ExternalID:        spec.OrderID,
		StartOnCompletion: true,
	}

	var created object[server]
	if err := c.do(ctx, http.MethodPost, "/api/application/servers", req, &created); err != nil {
		return "", fmt.Errorf("create server: %w", err)
	}
	c.logger.Printf("server created order=%s server=%d identifier=%s", spec.OrderID, created.Attributes.ID, created.Attributes.Identifier)
	return strconv.Itoa(created.Attributes.ID), nil
}

// Delete removes a server. A server that no longer exists reports
// domain.ErrResourceGone.
func (c *Client) Delete(ctx context.Context, resourceID string) error {
	if _, err := strconv.Atoi(resourceID); err != nil {
		// Surrogate ids never reached the panel.
		return domain.ErrResourceGone
	}
	err := c.do(ctx, http.MethodDelete, "/api/application/servers/"+url.PathEscape(resourceID), nil, nil)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return domain.ErrResourceGone
	}
	if err != nil {
		return fmt.Errorf("delete server %s: %w", resourceID, err)
	}
	return nil
}

func (c *Client) serverByExternalID(ctx context.Context, externalID string) (*server, error) {
	var found object[server]
	err := c.do(ctx, http.MethodGet, "/api/application/servers/external/"+url.PathEscape(externalID), nil, &found)
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup server: %w", err)
	}
	return &found.Attributes, nil
}

// ensureUser returns the panel user for the buyer's email. An existing user
// is updated to the credentials chosen for this order so the emailed login
// works; otherwise a new user is created with them.
func (c *Client) ensureUser(ctx context.Context, spec domain.ProvisionSpec) (int, error) {
	q := url.Values{}
	q.Set("filter[email]", spec.Email)
	var users list[user]
	if err := c.do(ctx, http.MethodGet, "/api/application/users?"+q.Encode(), nil, &users); err != nil {
		return 0, fmt.Errorf("lookup user: %w", err)
	}
	for _, u := range users.Data {
		if strings.EqualFold(u.Attributes.Email, spec.Email) {
			return c.updateUser(ctx, u.Attributes, spec.Credentials)
		}
	}

	req := userRequest{
		Email:     spec.Email,
		Username:  spec.Credentials.Username,
		FirstName: spec.Credentials.Username,
		LastName:  "Customer",
		Password:  spec.Credentials.Password,
	}
	var created object[user]
	if err := c.do(ctx, http.MethodPost, "/api/application/users", req, &created); err != nil {
		return 0, fmt.Errorf("create user: %w", err)
	}
	c.logger.Printf("panel user created user=%d username=%s", created.Attributes.ID, created.Attributes.Username)
	return created.Attributes.ID, nil
}

func (c *Client) updateUser(ctx context.Context, u user, creds domain.Credentials) (int, error) {
	req := userRequest{
		Email:     u.Email,
		Username:  creds.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Password:  creds.Password,
	}
	if req.FirstName == "" {
		req.FirstName = creds.Username
	}
	if req.LastName == "" {
		req.LastName = "Customer"
	}
	path := "/api/application/users/" + strconv.Itoa(u.ID)
	if err := c.do(ctx, http.MethodPatch, path, req, nil); err != nil {
		return 0, fmt.Errorf("update user %d: %w", u.ID, err)
	}
	c.logger.Printf("panel user updated user=%d username=%s", u.ID, creds.Username)
	return u.ID, nil
}

// APIError is a non-2xx answer from the panel.
type APIError struct {
	StatusCode int
	Code       string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("pterodactyl %d", e.StatusCode)
	}
	return fmt.Sprintf("pterodactyl %d %s: %s", e.StatusCode, e.Code, e.Detail)
}

type errorBody struct {
	Errors []struct {
		Code   string `json:"code"`
		Detail string `json:"detail"`
	} `json:"errors"`
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "Application/vnd.pterodactyl.v1+json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		var eb errorBody
		if json.Unmarshal(raw, &eb) == nil && len(eb.Errors) > 0 {
			apiErr.Code = eb.Errors[0].Code
			apiErr.Detail = eb.Errors[0].Detail
		}
		return apiErr
	}

	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
