package mailbox

import (
	"bufio"
	"encoding/base64"
	"io"
	"net"
	"sync"
	"time"

	"meshfail/configs"
)

// queued is one (subject, payload) pair waiting to be drained.
type queued struct {
	subject string
	msg     []byte
}

// TCPMailbox is a TCP-backed Mailbox: one listener accepting framed,
// newline-delimited messages, and a cached map of outbound connections
// keyed by peer address. Grounded on the teacher's network/participant/conn.go
// Comm type: same listener/accept loop, same sync.Map connection cache, same
// SetWriteDeadline-guarded send. The framing differs: the teacher carries a
// JSON envelope with a string "Mark" field; here the payload is already a
// tagged binary network.FaultMessage/SiteFailureMessage/SiteFailureForwardMessage,
// so the subject travels as a plain-text prefix terminated by ':' ahead of
// the base64-encoded payload rather than as a JSON field, and the whole frame
// is newline-terminated.
type TCPMailbox struct {
	listener net.Listener
	connMap  sync.Map // address -> net.Conn
	sem      chan struct{}
	done     chan struct{}

	mu    sync.Mutex
	queue []queued
	avail chan struct{}
}

// NewTCPMailbox binds the listener and starts accepting connections.
func NewTCPMailbox(address string) *TCPMailbox {
	tcpAddr, err := net.ResolveTCPAddr("tcp4", address)
	configs.CheckError(err)
	ln, err := net.ListenTCP("tcp", tcpAddr)
	configs.CheckError(err)
	m := &TCPMailbox{
		listener: ln,
		sem:      make(chan struct{}, configs.MaxConnectionHandler),
		done:     make(chan struct{}),
		avail:    make(chan struct{}, 1),
	}
	go m.acceptLoop()
	return m
}

func (m *TCPMailbox) acceptLoop() {
	for {
		conn, err := m.listener.Accept()
		if err != nil {
			select {
			case <-m.done:
				return
			default:
				configs.Warn(false, err.Error())
				return
			}
		}
		m.sem <- struct{}{}
		go func() {
			defer func() { <-m.sem }()
			m.handleConn(conn)
		}()
	}
}

func (m *TCPMailbox) handleConn(conn net.Conn) {
	defer conn.Close()
	reader := bufio.NewReader(conn)
	for {
		line, err := reader.ReadString('\n')
		if err == io.EOF {
			return
		}
		configs.CheckError(err)
		subject, payload, err := decodeFrame(line)
		if err != nil {
			configs.Warn(false, err.Error())
			continue
		}
		m.push(queued{subject: subject, msg: payload})
	}
}

func (m *TCPMailbox) push(q queued) {
	m.mu.Lock()
	m.queue = append(m.queue, q)
	m.mu.Unlock()
	select {
	case m.avail <- struct{}{}:
	default:
	}
}

func (m *TCPMailbox) pushFront(q queued) {
	m.mu.Lock()
	m.queue = append([]queued{q}, m.queue...)
	m.mu.Unlock()
	select {
	case m.avail <- struct{}{}:
	default:
	}
}

func encodeFrame(subject string, msg []byte) []byte {
	out := []byte(subject)
	out = append(out, ':')
	out = append(out, []byte(base64.StdEncoding.EncodeToString(msg))...)
	out = append(out, '\n')
	return out
}

func decodeFrame(line string) (string, []byte, error) {
	if len(line) > 0 && line[len(line)-1] == '\n' {
		line = line[:len(line)-1]
	}
	idx := -1
	for i := 0; i < len(line); i++ {
		if line[i] == ':' {
			idx = i
			break
		}
	}
	if idx < 0 {
		return "", nil, io.ErrUnexpectedEOF
	}
	subject := line[:idx]
	payload, err := base64.StdEncoding.DecodeString(line[idx+1:])
	if err != nil {
		return "", nil, err
	}
	return subject, payload, nil
}

// Send dials (or reuses a cached connection to) `to` and writes the frame.
// Transport failures are logged, not returned (see Mailbox.Send doc).
func (m *TCPMailbox) Send(to string, subject string, msg []byte) {
	var conn net.Conn
	if cur, ok := m.connMap.Load(to); ok {
		conn = cur.(net.Conn)
	} else {
		newConn, err := net.DialTimeout("tcp4", to, configs.SendDialTimeout)
		if err != nil {
			configs.Warn(false, err.Error())
			return
		}
		fin, _ := m.connMap.LoadOrStore(to, newConn)
		conn = fin.(net.Conn)
	}
	frame := encodeFrame(subject, msg)
	if err := conn.SetWriteDeadline(time.Now().Add(configs.SendDialTimeout)); err != nil {
		configs.Warn(false, err.Error())
		return
	}
	if _, err := conn.Write(frame); err != nil {
		configs.Warn(false, err.Error())
		m.connMap.Delete(to)
	}
}

func (m *TCPMailbox) Recv() (string, []byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return "", nil, false
	}
	q := m.queue[0]
	m.queue = m.queue[1:]
	return q.subject, q.msg, true
}

func (m *TCPMailbox) RecvBlocking(timeout time.Duration) (string, []byte, bool) {
	if subject, msg, ok := m.Recv(); ok {
		return subject, msg, ok
	}
	select {
	case <-m.avail:
		return m.Recv()
	case <-time.After(timeout):
		return "", nil, false
	}
}

func (m *TCPMailbox) DeliverFront(subject string, msg []byte) {
	m.pushFront(queued{subject: subject, msg: msg})
}

func (m *TCPMailbox) Close() error {
	close(m.done)
	m.connMap.Range(func(_, value interface{}) bool {
		value.(net.Conn).Close()
		return true
	})
	return m.listener.Close()
}
