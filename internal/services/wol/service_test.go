package wol

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fgeck/gofleet-homelab/internal/models"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockWOLClient struct {
	wakeFunc func(broadcastIP string, mac net.HardwareAddr) error
}

func (m *mockWOLClient) Wake(broadcastIP string, mac net.HardwareAddr) error {
	if m.wakeFunc != nil {
		return m.wakeFunc(broadcastIP, mac)
	}
	return nil
}

type mockDialer struct {
	dialFunc func(ctx context.Context, network, address string) (net.Conn, error)
}

func (m *mockDialer) DialContext(ctx context.Context, network, address string) (net.Conn, error) {
	if m.dialFunc != nil {
		return m.dialFunc(ctx, network, address)
	}
	return pipeConn(), nil
}

func pipeConn() net.Conn {
	client, server := net.Pipe()
	_ = server.Close()
	return client
}

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func testTarget() models.WOLTarget {
	return models.WOLTarget{Address: "192.168.1.10", MACAddress: "AA:BB:CC:DD:EE:FF"}
}

func TestWake_Success_NoPollPort(t *testing.T) {
	var capturedMAC net.HardwareAddr
	var capturedBroadcastIP string

	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			capturedMAC = mac
			capturedBroadcastIP = broadcastIP
			return nil
		},
	}

	svc := NewWithClients(testLogger(), wolClient, nil)

	result, err := svc.Wake(context.Background(), models.WOLConfig{BroadcastIP: "192.168.1.255"}, testTarget())

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)

	expectedMAC, _ := net.ParseMAC("AA:BB:CC:DD:EE:FF")
	assert.Equal(t, expectedMAC, capturedMAC)
	assert.Equal(t, "192.168.1.255", capturedBroadcastIP)
}

func TestWake_InvalidMAC(t *testing.T) {
	svc := NewWithClients(testLogger(), &mockWOLClient{}, nil)

	result, err := svc.Wake(context.Background(), models.WOLConfig{BroadcastIP: "192.168.1.255"},
		models.WOLTarget{Address: "192.168.1.10", MACAddress: "invalid-mac"})

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "invalid MAC address")
}

func TestWake_SendFailed(t *testing.T) {
	wolClient := &mockWOLClient{
		wakeFunc: func(broadcastIP string, mac net.HardwareAddr) error {
			return errors.New("network error")
		},
	}

	svc := NewWithClients(testLogger(), wolClient, nil)

	result, err := svc.Wake(context.Background(), models.WOLConfig{BroadcastIP: "192.168.1.255"}, testTarget())

	require.NoError(t, err)
	assert.False(t, result.PacketSent)
	assert.NotNil(t, result.Error)
	assert.Contains(t, result.Error.Error(), "network error")
}

func TestWake_PollImmediateSuccess(t *testing.T) {
	var dialedAddr string
	dialer := &mockDialer{
		dialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			dialedAddr = address
			return pipeConn(), nil
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)

	cfg := models.WOLConfig{
		BroadcastIP:  "192.168.1.255",
		PollPort:     22,
		Timeout:      5 * time.Second,
		PollInterval: 100 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg, testTarget())

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.True(t, result.TargetReady)
	assert.Nil(t, result.Error)
	assert.Equal(t, "192.168.1.10:22", dialedAddr)
}

func TestWake_PollDelayedSuccess(t *testing.T) {
	var attempts atomic.Int32
	dialer := &mockDialer{
		dialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			if attempts.Add(1) < 3 {
				return nil, errors.New("connection refused")
			}
			return pipeConn(), nil
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)

	cfg := models.WOLConfig{
		BroadcastIP:  "192.168.1.255",
		PollPort:     22,
		Timeout:      5 * time.Second,
		PollInterval: 10 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg, testTarget())

	require.NoError(t, err)
	assert.True(t, result.TargetReady)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestWake_PollTimeout(t *testing.T) {
	dialer := &mockDialer{
		dialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)

	cfg := models.WOLConfig{
		BroadcastIP:  "192.168.1.255",
		PollPort:     22,
		Timeout:      50 * time.Millisecond,
		PollInterval: 10 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg, testTarget())

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.False(t, result.TargetReady)
	require.Error(t, result.Error)
	assert.ErrorIs(t, result.Error, models.ErrTimeout)
	assert.Equal(t, models.StatusTimeout, models.StatusFor(result.Error))
}

func TestWake_ContextCancelled(t *testing.T) {
	dialer := &mockDialer{
		dialFunc: func(ctx context.Context, network, address string) (net.Conn, error) {
			return nil, errors.New("connection refused")
		},
	}

	svc := NewWithClients(testLogger(), &mockWOLClient{}, dialer)

	cfg := models.WOLConfig{
		BroadcastIP:  "192.168.1.255",
		PollPort:     22,
		Timeout:      10 * time.Second,
		PollInterval: 50 * time.Millisecond,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	result, err := svc.Wake(ctx, cfg, testTarget())

	require.NoError(t, err)
	assert.False(t, result.TargetReady)
	assert.ErrorIs(t, result.Error, context.DeadlineExceeded)
}

func TestWake_WithStabilizeWait(t *testing.T) {
	svc := NewWithClients(testLogger(), &mockWOLClient{}, &mockDialer{})

	cfg := models.WOLConfig{
		BroadcastIP:   "192.168.1.255",
		PollPort:      22,
		Timeout:       5 * time.Second,
		PollInterval:  10 * time.Millisecond,
		StabilizeWait: 50 * time.Millisecond,
	}

	result, err := svc.Wake(context.Background(), cfg, testTarget())

	require.NoError(t, err)
	assert.True(t, result.TargetReady)
	assert.GreaterOrEqual(t, result.WaitDuration, 50*time.Millisecond)
}
