package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/binary"
	"encoding/json"
	"io"
	"net"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/commyio/commy/internal/logger"
	"github.com/commyio/commy/pkg/errs"
)

// MessageType tags a ProtocolMessage payload.
type MessageType int

const (
	MessageFileOperation MessageType = iota
	MessageResponse
	MessageError
	MessageHeartbeat
)

// ProtocolMessage is the framed request/response envelope exchanged over
// NetworkTransport connections. The wire serialization is JSON for now, a
// pragmatic choice rather than a fixed contract; any self-describing
// format agreed between peers is valid.
type ProtocolMessage struct {
	MessageID   string          `json:"message_id"`
	MessageType MessageType     `json:"message_type"`
	Operation   *Operation      `json:"operation,omitempty"`
	Result      *OperationResult `json:"result,omitempty"`
	ErrorMessage string         `json:"error_message,omitempty"`
	ErrorCode    string         `json:"error_code,omitempty"`
	Timestamp    time.Time      `json:"timestamp,omitempty"`
}

// TLSConfig holds the NetworkTransport's TLS dialing options.
type TLSConfig struct {
	Enabled    bool
	CABundlePEM []byte
}

// NetworkConfig holds NetworkTransport tunables.
type NetworkConfig struct {
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	TCPKeepalive   time.Duration
	TCPNoDelay     bool
	MaxConnections int
	TLS            TLSConfig
	IdleTimeout    time.Duration // connections idle longer than this are reaped
}

func DefaultNetworkConfig() NetworkConfig {
	return NetworkConfig{
		ConnectTimeout: 5 * time.Second,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		TCPKeepalive:   30 * time.Second,
		TCPNoDelay:     true,
		MaxConnections: 100,
		IdleTimeout:    5 * time.Minute,
	}
}

type pooledConn struct {
	mu       sync.Mutex
	conn     net.Conn
	lastUsed time.Time

	waitersMu sync.Mutex
	waiters   map[string]chan ProtocolMessage
}

// reapTickInterval is how often the background reaper sweeps for
// connections idle longer than cfg.IdleTimeout.
const reapTickInterval = time.Minute

// NetworkTransport opens TCP (optionally TLS-wrapped) connections to
// configured endpoints, reusing connections keyed by host:port, reaping
// idle connections after cfg.IdleTimeout.
type NetworkTransport struct {
	cfg NetworkConfig

	mu    sync.Mutex
	conns map[string]*pooledConn

	tlsConfig *tls.Config

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewNetworkTransport builds a transport from cfg, parsing the configured
// CA bundle when TLS is enabled.
func NewNetworkTransport(cfg NetworkConfig) (*NetworkTransport, error) {
	nt := &NetworkTransport{cfg: cfg, conns: make(map[string]*pooledConn)}

	if cfg.TLS.Enabled {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(cfg.TLS.CABundlePEM) {
			return nil, errs.New(errs.KindInvalidConfiguration, "network_transport.new", "invalid CA bundle PEM")
		}
		nt.tlsConfig = &tls.Config{RootCAs: pool, InsecureSkipVerify: false}
	}

	return nt, nil
}

func (t *NetworkTransport) Kind() Kind { return KindNetwork }

// NetworkBaseEstimatedLatencyUs and NetworkBaseEstimatedThroughputMbps are
// the transport's fixed baseline estimates absent any live probing,
// mirroring local.go's LocalEstimatedLatencyUs/Throughput pair.
const (
	NetworkBaseEstimatedLatencyUs      = 2000
	NetworkBaseEstimatedThroughputMbps = 100
)

// EstimatedLatencyUs reports the baseline network latency, degraded by
// 10us per open connection as a simple load signal.
func (t *NetworkTransport) EstimatedLatencyUs() float64 {
	return NetworkBaseEstimatedLatencyUs + float64(t.ActiveConnections())*10
}

// EstimatedThroughputMbps reports the baseline network throughput.
func (t *NetworkTransport) EstimatedThroughputMbps() float64 {
	return NetworkBaseEstimatedThroughputMbps
}

// ActiveConnections returns the number of pooled connections currently
// held open.
func (t *NetworkTransport) ActiveConnections() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.conns)
}

// BoundExecutor returns an Executor that routes every operation to
// remoteAddr over t, for use as Router's network Executor when a single
// default peer is configured.
func (t *NetworkTransport) BoundExecutor(remoteAddr string) Executor {
	return &boundNetworkExecutor{transport: t, remoteAddr: remoteAddr}
}

type boundNetworkExecutor struct {
	transport  *NetworkTransport
	remoteAddr string
}

func (e *boundNetworkExecutor) Kind() Kind { return KindNetwork }

func (e *boundNetworkExecutor) Execute(op Operation) (OperationResult, error) {
	return e.transport.Execute(e.remoteAddr, op)
}

func (t *NetworkTransport) dial(hostPort string) (*pooledConn, error) {
	t.mu.Lock()
	pc, ok := t.conns[hostPort]
	t.mu.Unlock()
	if ok {
		pc.mu.Lock()
		pc.lastUsed = time.Now()
		pc.mu.Unlock()
		return pc, nil
	}

	dialer := &net.Dialer{Timeout: t.cfg.ConnectTimeout, KeepAlive: t.cfg.TCPKeepalive}

	var conn net.Conn
	var err error
	if t.tlsConfig != nil {
		conn, err = tls.DialWithDialer(dialer, "tcp", hostPort, t.tlsConfig)
	} else {
		conn, err = dialer.Dial("tcp", hostPort)
	}
	if err != nil {
		return nil, errs.Wrap(errs.KindNetworkConnection, "network_transport.dial", err)
	}

	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(t.cfg.TCPNoDelay)
	}

	pc = &pooledConn{conn: conn, lastUsed: time.Now(), waiters: make(map[string]chan ProtocolMessage)}

	t.mu.Lock()
	t.conns[hostPort] = pc
	t.mu.Unlock()

	go t.readLoop(hostPort, pc)

	return pc, nil
}

func (t *NetworkTransport) readLoop(hostPort string, pc *pooledConn) {
	for {
		msg, err := readFramedMessage(pc.conn)
		if err != nil {
			logger.Debug("network transport read loop ended", "host_port", hostPort, "error", err.Error())
			t.mu.Lock()
			delete(t.conns, hostPort)
			t.mu.Unlock()
			return
		}

		pc.waitersMu.Lock()
		ch, ok := pc.waiters[msg.MessageID]
		if ok {
			delete(pc.waiters, msg.MessageID)
		}
		pc.waitersMu.Unlock()

		if ok {
			ch <- msg
		}
	}
}

// readFramedMessage reads a 4-byte big-endian length header (the same
// record-marking shape as the portmapper's TCP framing) followed by a
// JSON-encoded ProtocolMessage.
func readFramedMessage(r io.Reader) (ProtocolMessage, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return ProtocolMessage{}, err
	}

	length := binary.BigEndian.Uint32(header[:])
	buf := make([]byte, length)
	if _, err := io.ReadFull(r, buf); err != nil {
		return ProtocolMessage{}, err
	}

	var msg ProtocolMessage
	if err := json.Unmarshal(buf, &msg); err != nil {
		return ProtocolMessage{}, errs.Wrap(errs.KindJsonSerialization, "network_transport.decode", err).WithFormat("json")
	}
	return msg, nil
}

func writeFramedMessage(w io.Writer, msg ProtocolMessage) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errs.Wrap(errs.KindJsonSerialization, "network_transport.encode", err).WithFormat("json")
	}

	frame := make([]byte, 4+len(body))
	binary.BigEndian.PutUint32(frame[0:4], uint32(len(body)))
	copy(frame[4:], body)

	_, err = w.Write(frame)
	return err
}

// Execute sends op to hostPort as a FileOperation ProtocolMessage and
// awaits the correlated response, honoring the configured read/write
// timeouts.
func (t *NetworkTransport) Execute(hostPort string, op Operation) (OperationResult, error) {
	pc, err := t.dial(hostPort)
	if err != nil {
		return OperationResult{}, err
	}

	msgID := uuid.NewString()
	respCh := make(chan ProtocolMessage, 1)

	pc.waitersMu.Lock()
	pc.waiters[msgID] = respCh
	pc.waitersMu.Unlock()

	req := ProtocolMessage{MessageID: msgID, MessageType: MessageFileOperation, Operation: &op, Timestamp: time.Now()}

	pc.mu.Lock()
	_ = pc.conn.SetWriteDeadline(time.Now().Add(t.cfg.WriteTimeout))
	werr := writeFramedMessage(pc.conn, req)
	pc.mu.Unlock()
	if werr != nil {
		return OperationResult{}, errs.Wrap(errs.KindTransportError, "network_transport.execute", werr)
	}

	select {
	case resp := <-respCh:
		if resp.MessageType == MessageError {
			return OperationResult{}, errs.New(errs.KindTransportError, "network_transport.execute", resp.ErrorMessage)
		}
		if resp.Result != nil {
			return *resp.Result, nil
		}
		return OperationResult{}, nil
	case <-time.After(t.cfg.ReadTimeout):
		return OperationResult{}, errs.NewTimeout("network_transport.execute", t.cfg.ReadTimeout.Milliseconds())
	}
}

// Start launches the background idle-connection reaper.
func (t *NetworkTransport) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.wg.Add(1)
	go t.reapLoop(ctx)
}

// Stop cancels the reaper and waits for it to exit.
func (t *NetworkTransport) Stop() {
	if t.cancel != nil {
		t.cancel()
	}
	t.wg.Wait()
}

func (t *NetworkTransport) reapLoop(ctx context.Context) {
	defer t.wg.Done()
	ticker := time.NewTicker(reapTickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := t.ReapIdle(); n > 0 {
				logger.Debug("reaped idle network connections", "count", n)
			}
		}
	}
}

// ReapIdle closes connections that have been idle longer than
// cfg.IdleTimeout, returning the number closed.
func (t *NetworkTransport) ReapIdle() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	closed := 0
	now := time.Now()
	for hostPort, pc := range t.conns {
		pc.mu.Lock()
		idle := now.Sub(pc.lastUsed)
		pc.mu.Unlock()

		if idle > t.cfg.IdleTimeout {
			_ = pc.conn.Close()
			delete(t.conns, hostPort)
			closed++
		}
	}
	return closed
}

// LoadCABundle reads a PEM CA bundle from path, for wiring into TLSConfig.
func LoadCABundle(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errs.NewIoError("network_transport.load_ca_bundle", path, err)
	}
	return data, nil
}
