package erp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kolo/xmlrpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/backoffice-suite/boar/pkg/config"
)

// fakeCaller scripts XML-RPC responses per service method.
type fakeCaller struct {
	handler func(method string, args interface{}) (interface{}, error)
	calls   int
}

func (f *fakeCaller) Call(method string, args interface{}, reply interface{}) error {
	f.calls++
	res, err := f.handler(method, args)
	if err != nil {
		return err
	}
	if p, ok := reply.(*interface{}); ok {
		*p = res
	}
	return nil
}

func testConfig() config.ERPConfig {
	return config.ERPConfig{
		BaseURL:  "http://odoo.test",
		Database: "db",
		User:     "admin",
		Password: "pw",
	}
}

// newTestClient wires a client whose common endpoint authenticates as uid 7
// and whose object endpoint is driven by objectHandler. Module probes see
// every optional model installed unless missingModels lists them.
func newTestClient(t *testing.T, objectHandler func(method string, args interface{}) (interface{}, error), missingModels ...string) (*Client, *fakeCaller) {
	t.Helper()

	missing := make(map[string]bool)
	for _, m := range missingModels {
		missing[m] = true
	}

	object := &fakeCaller{handler: func(method string, args interface{}) (interface{}, error) {
		params := args.([]interface{})
		model := params[3].(string)
		rpcMethod := params[4].(string)
		if model == "ir.model" && rpcMethod == "search_count" {
			domain := params[5].([]interface{})[0].([]interface{})
			probed := domain[0].([]interface{})[2].(string)
			if missing[probed] {
				return int64(0), nil
			}
			return int64(1), nil
		}
		return objectHandler(method, args)
	}}

	client := NewClient(testConfig())
	client.newCaller = func(url string) (rpcCaller, error) {
		if url == "http://odoo.test/xmlrpc/2/common" {
			return &fakeCaller{handler: func(method string, args interface{}) (interface{}, error) {
				switch method {
				case "version":
					return map[string]interface{}{"server_version": "17.0"}, nil
				case "authenticate":
					return int64(7), nil
				}
				return nil, fmt.Errorf("unexpected common method %s", method)
			}}, nil
		}
		return object, nil
	}
	return client, object
}

func TestAuthenticateSuccess(t *testing.T) {
	client, _ := newTestClient(t, func(string, interface{}) (interface{}, error) {
		return nil, nil
	})

	require.NoError(t, client.Authenticate(context.Background()))
	assert.Equal(t, int64(7), client.UserID())
	assert.Equal(t, "17.0", client.ServerVersion())
	assert.True(t, client.HasModel("hr.employee"))
}

func TestAuthenticateRejected(t *testing.T) {
	client := NewClient(testConfig())
	client.newCaller = func(url string) (rpcCaller, error) {
		return &fakeCaller{handler: func(method string, args interface{}) (interface{}, error) {
			if method == "version" {
				return map[string]interface{}{}, nil
			}
			// Odoo signals bad credentials with a bare false.
			return false, nil
		}}, nil
	}

	err := client.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrAuthFailed)
	assert.Equal(t, int64(0), client.UserID())
}

func TestAuthenticateUnreachable(t *testing.T) {
	client := NewClient(testConfig())
	client.newCaller = func(url string) (rpcCaller, error) {
		return &fakeCaller{handler: func(string, interface{}) (interface{}, error) {
			return nil, errors.New("connection refused")
		}}, nil
	}

	err := client.Authenticate(context.Background())
	require.ErrorIs(t, err, ErrUnreachable)
}

func TestExecuteRetriesOnceAfterReauth(t *testing.T) {
	failures := 1
	client, object := newTestClient(t, func(method string, args interface{}) (interface{}, error) {
		if failures > 0 {
			failures--
			return nil, errors.New("broken pipe")
		}
		return []interface{}{}, nil
	})

	require.NoError(t, client.Authenticate(context.Background()))

	records, err := client.SearchRead(context.Background(), "hr.employee", nil, []string{"name"}, nil)
	require.NoError(t, err)
	assert.Empty(t, records)
	// one failing call plus one successful retry, on top of module probes
	assert.GreaterOrEqual(t, object.calls, 2)
}

func TestExecuteFaultIsNotRetried(t *testing.T) {
	faults := 0
	client, _ := newTestClient(t, func(method string, args interface{}) (interface{}, error) {
		faults++
		return nil, xmlrpc.FaultError{Code: 1, String: "Access Denied"}
	})

	require.NoError(t, client.Authenticate(context.Background()))

	_, err := client.SearchCount(context.Background(), "hr.employee", nil)
	var callErr *CallError
	require.ErrorAs(t, err, &callErr)
	assert.Equal(t, "hr.employee", callErr.Model)
	assert.Equal(t, "search_count", callErr.Method)
	assert.Equal(t, 1, faults)
}

func TestRequireModelMissing(t *testing.T) {
	client, _ := newTestClient(t, func(string, interface{}) (interface{}, error) {
		return nil, nil
	}, "hr.appraisal")

	require.NoError(t, client.Authenticate(context.Background()))

	assert.NoError(t, client.RequireModel("hr.employee"))

	err := client.RequireModel("hr.appraisal")
	require.Error(t, err)
	assert.True(t, IsModuleMissing(err))
	assert.Equal(t, "HR Appraisal module (hr_appraisal) is not installed in Odoo", err.Error())
}

func TestRequireModelAuthenticatesLazily(t *testing.T) {
	client, _ := newTestClient(t, func(string, interface{}) (interface{}, error) {
		return nil, nil
	}, "hr.appraisal")

	// no explicit Authenticate: RequireModel must not guess from an empty
	// probe table
	require.NoError(t, client.RequireModel("hr.employee"))
	assert.Equal(t, int64(7), client.UserID())
	assert.True(t, IsModuleMissing(client.RequireModel("hr.appraisal")))
}

func TestRequireModelUnreachableIsNotModuleMissing(t *testing.T) {
	client := NewClient(testConfig())
	client.newCaller = func(url string) (rpcCaller, error) {
		return &fakeCaller{handler: func(string, interface{}) (interface{}, error) {
			return nil, errors.New("connection refused")
		}}, nil
	}

	err := client.RequireModel("project.task")
	require.ErrorIs(t, err, ErrUnreachable)
	assert.False(t, IsModuleMissing(err))
}

func TestGetParamMissingReturnsEmpty(t *testing.T) {
	client, _ := newTestClient(t, func(method string, args interface{}) (interface{}, error) {
		// get_param on a missing key yields false
		return false, nil
	})
	require.NoError(t, client.Authenticate(context.Background()))

	val, err := client.GetParam(context.Background(), "telegram_link_1")
	require.NoError(t, err)
	assert.Empty(t, val)
}

func TestDeleteParamAbsentIsNoop(t *testing.T) {
	unlinked := false
	client, _ := newTestClient(t, func(method string, args interface{}) (interface{}, error) {
		params := args.([]interface{})
		switch params[4].(string) {
		case "search":
			return []interface{}{}, nil
		case "unlink":
			unlinked = true
			return true, nil
		}
		return nil, nil
	})
	require.NoError(t, client.Authenticate(context.Background()))

	require.NoError(t, client.DeleteParam(context.Background(), "telegram_link_404"))
	assert.False(t, unlinked)
}
