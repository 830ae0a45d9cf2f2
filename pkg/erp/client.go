// Package erp implements the typed Odoo XML-RPC gateway: authentication
// against /xmlrpc/2/common, execute_kw against /xmlrpc/2/object, optional
// module discovery, and normalization of ERP wire values.
package erp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/kolo/xmlrpc"

	"github.com/backoffice-suite/boar/pkg/config"
)

// rpcCaller is the transport seam. Production code uses kolo/xmlrpc
// clients; tests substitute fakes.
type rpcCaller interface {
	Call(serviceMethod string, args interface{}, reply interface{}) error
}

// SearchOptions carries the optional arguments of search_read.
type SearchOptions struct {
	Limit  int
	Offset int
	Order  string
}

// Client is the ERP gateway. One instance per process; safe for concurrent
// use. Authentication happens lazily on first use and is re-run once when a
// call fails at the transport level; re-authentication is serialized.
type Client struct {
	cfg    config.ERPConfig
	logger *slog.Logger

	mu            sync.Mutex
	uid           int64
	serverVersion string
	object        rpcCaller
	available     map[string]bool

	// newCaller is overridable in tests.
	newCaller func(url string) (rpcCaller, error)
}

// NewClient builds a gateway from config. No network I/O happens here; the
// first call authenticates.
func NewClient(cfg config.ERPConfig) *Client {
	transport := &http.Transport{
		ResponseHeaderTimeout: cfg.Timeout,
	}
	return &Client{
		cfg:    cfg,
		logger: slog.Default().With("component", "erp-gateway"),
		newCaller: func(url string) (rpcCaller, error) {
			return xmlrpc.NewClient(url, transport)
		},
	}
}

// UserID returns the authenticated ERP user id, or 0 before authentication.
func (c *Client) UserID() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.uid
}

// ServerVersion returns the ERP server version string reported at
// authentication time.
func (c *Client) ServerVersion() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.serverVersion
}

// Authenticate connects to the common endpoint, verifies credentials, and
// probes optional modules. It is safe to call concurrently; only one
// authentication is in flight at a time.
func (c *Client) Authenticate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.authenticateLocked(ctx)
}

func (c *Client) authenticateLocked(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	common, err := c.newCaller(c.cfg.BaseURL + "/xmlrpc/2/common")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	var version interface{}
	if err := common.Call("version", []interface{}{}, &version); err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}
	if vm, ok := version.(map[string]interface{}); ok {
		if sv, ok := vm["server_version"].(string); ok {
			c.serverVersion = sv
		}
	}

	var rawUID interface{}
	err = common.Call("authenticate",
		[]interface{}{c.cfg.Database, c.cfg.User, c.cfg.Password, map[string]interface{}{}},
		&rawUID)
	if err != nil {
		var fault xmlrpc.FaultError
		if errors.As(err, &fault) {
			return fmt.Errorf("%w: %s", ErrAuthFailed, fault.String)
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	uid, ok := toInt64(rawUID)
	if !ok || uid == 0 {
		// Odoo returns the literal false for bad credentials.
		return ErrAuthFailed
	}

	object, err := c.newCaller(c.cfg.BaseURL + "/xmlrpc/2/object")
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnreachable, err)
	}

	c.uid = uid
	c.object = object
	c.logger.Info("Authenticated with ERP",
		"uid", uid,
		"database", c.cfg.Database,
		"server_version", c.serverVersion)

	c.discoverModulesLocked()
	return nil
}

// Execute runs an arbitrary model method via execute_kw. On a transport
// failure it re-authenticates and retries exactly once; XML-RPC faults
// (server-side errors) are returned as CallError without retry.
func (c *Client) Execute(ctx context.Context, model, method string, args []interface{}, kwargs map[string]interface{}, result interface{}) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.object == nil {
		if err := c.authenticateLocked(ctx); err != nil {
			c.mu.Unlock()
			return err
		}
	}
	object := c.object
	uid := c.uid
	c.mu.Unlock()

	err := c.call(object, uid, model, method, args, kwargs, result)
	if err == nil {
		return nil
	}

	var fault xmlrpc.FaultError
	if errors.As(err, &fault) {
		return &CallError{Model: model, Method: method, Err: err}
	}

	// Transport-level failure: re-authenticate and retry once.
	c.logger.Warn("ERP call failed at transport level, re-authenticating",
		"model", model, "method", method, "error", err)

	c.mu.Lock()
	if authErr := c.authenticateLocked(ctx); authErr != nil {
		c.mu.Unlock()
		return authErr
	}
	object = c.object
	uid = c.uid
	c.mu.Unlock()

	if err := c.call(object, uid, model, method, args, kwargs, result); err != nil {
		if errors.As(err, &fault) {
			return &CallError{Model: model, Method: method, Err: err}
		}
		return fmt.Errorf("%w: %v", ErrUnreachable, &CallError{Model: model, Method: method, Err: err})
	}
	return nil
}

func (c *Client) call(object rpcCaller, uid int64, model, method string, args []interface{}, kwargs map[string]interface{}, result interface{}) error {
	if args == nil {
		args = []interface{}{}
	}
	if kwargs == nil {
		kwargs = map[string]interface{}{}
	}
	params := []interface{}{c.cfg.Database, uid, c.cfg.Password, model, method, args, kwargs}
	return object.Call("execute_kw", params, result)
}

// Search returns matching record ids.
func (c *Client) Search(ctx context.Context, model string, domain []interface{}) ([]int64, error) {
	var raw interface{}
	if err := c.Execute(ctx, model, "search", []interface{}{domain}, nil, &raw); err != nil {
		return nil, err
	}
	return toInt64Slice(raw), nil
}

// SearchCount returns the number of records matching domain.
func (c *Client) SearchCount(ctx context.Context, model string, domain []interface{}) (int64, error) {
	var raw interface{}
	if err := c.Execute(ctx, model, "search_count", []interface{}{domain}, nil, &raw); err != nil {
		return 0, err
	}
	n, _ := toInt64(raw)
	return n, nil
}

// Read fetches the given fields for the given ids.
func (c *Client) Read(ctx context.Context, model string, ids []int64, fields []string) ([]Record, error) {
	kwargs := map[string]interface{}{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	var raw interface{}
	if err := c.Execute(ctx, model, "read", []interface{}{ids}, kwargs, &raw); err != nil {
		return nil, err
	}
	return toRecords(raw), nil
}

// SearchRead combines search and read with optional limit/offset/order.
func (c *Client) SearchRead(ctx context.Context, model string, domain []interface{}, fields []string, opts *SearchOptions) ([]Record, error) {
	kwargs := map[string]interface{}{}
	if len(fields) > 0 {
		kwargs["fields"] = fields
	}
	if opts != nil {
		if opts.Limit > 0 {
			kwargs["limit"] = opts.Limit
		}
		if opts.Offset > 0 {
			kwargs["offset"] = opts.Offset
		}
		if opts.Order != "" {
			kwargs["order"] = opts.Order
		}
	}
	var raw interface{}
	if err := c.Execute(ctx, model, "search_read", []interface{}{domain}, kwargs, &raw); err != nil {
		return nil, err
	}
	return toRecords(raw), nil
}

// Create inserts a record and returns its id.
func (c *Client) Create(ctx context.Context, model string, values map[string]interface{}) (int64, error) {
	var raw interface{}
	if err := c.Execute(ctx, model, "create", []interface{}{values}, nil, &raw); err != nil {
		return 0, err
	}
	id, _ := toInt64(raw)
	return id, nil
}

// Write updates the given records.
func (c *Client) Write(ctx context.Context, model string, ids []int64, values map[string]interface{}) (bool, error) {
	var raw interface{}
	if err := c.Execute(ctx, model, "write", []interface{}{ids, values}, nil, &raw); err != nil {
		return false, err
	}
	ok, _ := raw.(bool)
	return ok, nil
}

// Unlink deletes the given records.
func (c *Client) Unlink(ctx context.Context, model string, ids []int64) (bool, error) {
	var raw interface{}
	if err := c.Execute(ctx, model, "unlink", []interface{}{ids}, nil, &raw); err != nil {
		return false, err
	}
	ok, _ := raw.(bool)
	return ok, nil
}

// GetParam reads an ir.config_parameter value. Missing keys return "".
func (c *Client) GetParam(ctx context.Context, key string) (string, error) {
	var raw interface{}
	if err := c.Execute(ctx, "ir.config_parameter", "get_param", []interface{}{key}, nil, &raw); err != nil {
		return "", err
	}
	// Odoo returns false for a missing parameter.
	if s, ok := raw.(string); ok {
		return s, nil
	}
	return "", nil
}

// SetParam creates or updates an ir.config_parameter value.
func (c *Client) SetParam(ctx context.Context, key, value string) error {
	var raw interface{}
	return c.Execute(ctx, "ir.config_parameter", "set_param", []interface{}{key, value}, nil, &raw)
}

// DeleteParam removes an ir.config_parameter row. Deleting an absent key is
// a no-op.
func (c *Client) DeleteParam(ctx context.Context, key string) error {
	ids, err := c.Search(ctx, "ir.config_parameter", []interface{}{
		[]interface{}{"key", "=", key},
	})
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return nil
	}
	_, err = c.Unlink(ctx, "ir.config_parameter", ids)
	return err
}

func toRecords(raw interface{}) []Record {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	records := make([]Record, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]interface{}); ok {
			records = append(records, Record(m))
		}
	}
	return records
}

func toInt64Slice(raw interface{}) []int64 {
	list, ok := raw.([]interface{})
	if !ok {
		return nil
	}
	ids := make([]int64, 0, len(list))
	for _, item := range list {
		if id, ok := toInt64(item); ok {
			ids = append(ids, id)
		}
	}
	return ids
}
