package service

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MrChuw/scrcpy-manager/models"
)

func newTestManager(tr *fakeTransport, records RecordLoader) *ConnectionManager {
	m := NewConnectionManager(tr, records, 5555, zerolog.Nop())
	m.USBTimeout = 50 * time.Millisecond
	m.USBPollInterval = 5 * time.Millisecond
	m.PromoteSettle = 0
	m.IPPollInterval = 5 * time.Millisecond
	return m
}

func usbDevice(serial string) models.Device {
	return models.Device{Serial: serial, State: "device", Model: "SM G973F"}
}

func TestConnectUsesCachedDevice(t *testing.T) {
	tr := &fakeTransport{}
	records := staticRecords{rec: models.DeviceRecord{Address: models.Address{Host: "192.168.1.5", Port: 5555}}}
	m := newTestManager(tr, records)

	conn, err := m.Connect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, "192.168.1.5:5555", conn.Address.String())
	assert.Equal(t, []State{StateIdle, StateTryCached, StateVerifyNetwork, StateConnected}, conn.Trace)
	assert.Zero(t, tr.called("kill-server"), "no discovery once the cache works")
	assert.Zero(t, tr.called("tcpip"))
}

func TestConnectBootstrapsOverUSB(t *testing.T) {
	tr := &fakeTransport{
		listings: [][]models.Device{
			nil, // discover
			nil, // first bootstrap poll
			nil, // second bootstrap poll
			{usbDevice("R58M123ABC")},
		},
	}
	m := newTestManager(tr, staticRecords{})

	conn, err := m.Connect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []State{
		StateIdle, StateTryCached, StateDiscover, StateBootstrapUSB,
		StatePromote, StateVerifyNetwork, StateConnected,
	}, conn.Trace)
	assert.Equal(t, "R58M123ABC", conn.Serial)
	assert.Equal(t, models.Address{Host: "192.168.1.5", Port: 5555}, conn.Address)
	assert.Equal(t, 1, tr.called("tcpip R58M123ABC"))
	assert.Equal(t, 1, tr.called("shell R58M123ABC svc wifi enable"))
	assert.GreaterOrEqual(t, tr.called("usb"), 3)
	assert.Equal(t, 4, tr.called("devices"))
}

func TestConnectFallsThroughUnreachableCache(t *testing.T) {
	tr := &fakeTransport{
		listings: [][]models.Device{{
			{Serial: "192.168.1.9:5555", State: "device"},
			{Serial: "emulator-5554", State: "offline"},
			usbDevice("R58M123ABC"),
		}},
		connect: func(addr string) (bool, string, error) {
			if addr == "10.0.0.9:5555" {
				return false, "failed to connect to 10.0.0.9:5555", nil
			}
			return true, "connected to " + addr, nil
		},
	}
	records := staticRecords{rec: models.DeviceRecord{Address: models.Address{Host: "10.0.0.9", Port: 5555}}}
	m := newTestManager(tr, records)

	conn, err := m.Connect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, []State{StateIdle, StateTryCached, StateDiscover, StateVerifyNetwork, StateConnected}, conn.Trace)
	assert.Equal(t, "R58M123ABC", conn.Serial)
	assert.Zero(t, tr.called("tcpip"))
}

func TestConnectIgnoresCorruptRecord(t *testing.T) {
	tr := &fakeTransport{listings: [][]models.Device{{usbDevice("R58M123ABC")}}}
	m := newTestManager(tr, staticRecords{err: errors.New("device record: empty file")})

	conn, err := m.Connect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, StateDiscover, conn.Trace[2])
}

func TestConnectNoDevice(t *testing.T) {
	tr := &fakeTransport{}
	m := newTestManager(tr, staticRecords{})

	conn, err := m.Connect(context.Background())

	require.ErrorIs(t, err, ErrNoDevice)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, StateBootstrapUSB, connErr.State)
	assert.Equal(t, StateAborted, conn.Trace[len(conn.Trace)-1])
	assert.Zero(t, tr.called("tcpip"))
}

func TestConnectRefused(t *testing.T) {
	tr := &fakeTransport{
		listings: [][]models.Device{{usbDevice("R58M123ABC")}},
		connect: func(addr string) (bool, string, error) {
			return false, "cannot connect to " + addr + ": Connection refused", nil
		},
	}
	m := newTestManager(tr, staticRecords{})

	_, err := m.Connect(context.Background())

	require.ErrorIs(t, err, ErrConnectRefused)
	assert.Contains(t, err.Error(), "Connection refused")
}

func TestConnectPollsForAddress(t *testing.T) {
	var polls atomic.Int32
	tr := &fakeTransport{
		listings: [][]models.Device{{usbDevice("R58M123ABC")}},
		shell: func(serial, command string) (string, error) {
			if !strings.HasPrefix(command, "ip -f inet addr show wlan0") {
				return "", nil
			}
			if polls.Add(1) < 3 {
				return "3: wlan0: <NO-CARRIER,BROADCAST> state DOWN", nil
			}
			return "    inet 10.1.2.3/24 scope global wlan0", nil
		},
	}
	m := newTestManager(tr, staticRecords{})

	conn, err := m.Connect(context.Background())

	require.NoError(t, err)
	assert.Equal(t, int32(3), polls.Load())
	assert.Equal(t, "10.1.2.3:5555", conn.Address.String())
}

func TestConnectAbortsOnTransportFailure(t *testing.T) {
	tr := &fakeTransport{killErr: errBoom}
	m := newTestManager(tr, staticRecords{})

	_, err := m.Connect(context.Background())

	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, StateDiscover, connErr.State)
	assert.ErrorIs(t, err, errBoom)
}

func TestConnectStopsPollingOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tr := &fakeTransport{
		listings: [][]models.Device{{usbDevice("R58M123ABC")}},
		shell: func(serial, command string) (string, error) {
			if strings.HasPrefix(command, "ip ") {
				cancel()
			}
			return "", nil
		},
	}
	m := newTestManager(tr, staticRecords{})

	_, err := m.Connect(ctx)

	require.ErrorIs(t, err, context.Canceled)
	var connErr *ConnectionError
	require.ErrorAs(t, err, &connErr)
	assert.Equal(t, StateVerifyNetwork, connErr.State)
}
