package context

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestContextValues(t *testing.T) {
	ctx := context.Background()
	assert.Empty(t, GetRequestID(ctx))
	assert.Empty(t, Fields(ctx))

	ctx = SetRequestID(ctx, "req-1")
	ctx = SetMethod(ctx, "POST")
	ctx = SetRoute(ctx, "/api/v1/datasets/acs/years/2019")
	ctx = SetRemoteIP(ctx, "10.0.0.1")
	ctx = SetReferer(ctx, "http://scheduler")
	ctx = SetCaller(ctx, "scheduler")

	assert.Equal(t, "req-1", GetRequestID(ctx))
	assert.Equal(t, "POST", GetMethod(ctx))
	assert.Equal(t, "/api/v1/datasets/acs/years/2019", GetRoute(ctx))
	assert.Equal(t, "10.0.0.1", GetRemoteIP(ctx))
	assert.Equal(t, "http://scheduler", GetReferer(ctx))
	assert.Equal(t, "scheduler", GetCaller(ctx))

	assert.Equal(t, map[string]any{
		"request_id": "req-1",
		"method":     "POST",
		"route":      "/api/v1/datasets/acs/years/2019",
		"remote_ip":  "10.0.0.1",
		"caller":     "scheduler",
	}, Fields(ctx))
}
