package proxy

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHTTPClient_Direct(t *testing.T) {
	c, err := NewHTTPClient("", 0)
	require.NoError(t, err)
	assert.Nil(t, c.Transport)
	assert.Equal(t, DefaultTimeout, c.Timeout)
}

func TestNewHTTPClient_SocksUnreachable(t *testing.T) {
	// Grab a free port and close it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	c, err := NewHTTPClient(addr, 2*time.Second)
	require.NoError(t, err)
	require.NotNil(t, c.Transport)

	resp, err := c.Get("http://example.invalid/")
	if resp != nil {
		resp.Body.Close()
	}
	assert.Error(t, err)
	c.CloseIdleConnections()
}
