// Package testutil holds helpers shared by tests that talk to a fake gateway.
package testutil

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tOgg1/gatechat/internal/gateway"
	"github.com/tOgg1/gatechat/internal/gateway/gatewaytest"
)

// SkipIfNoNetwork skips the test if GATECHAT_TEST_SKIP_NETWORK is set.
// Use this for tests that listen on a loopback port, which some sandboxes
// forbid.
func SkipIfNoNetwork(t *testing.T) {
	t.Helper()
	if os.Getenv("GATECHAT_TEST_SKIP_NETWORK") != "" {
		t.Skip("skipping network test: GATECHAT_TEST_SKIP_NETWORK is set")
	}
}

// Gateway starts a fake gateway for the duration of the test and returns it
// with a client that is not rate limited in practice.
func Gateway(t *testing.T) (*gatewaytest.Server, *gateway.Client) {
	t.Helper()
	SkipIfNoNetwork(t)
	srv := gatewaytest.New().Start()
	t.Cleanup(srv.Close)

	client, err := gateway.New(gateway.Options{BaseURL: srv.URL(), RateLimit: 1000, Burst: 1000})
	require.NoError(t, err)
	return srv, client
}
