package pop3

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/harbormail/harbor/config"
	"github.com/harbormail/harbor/db"
	"github.com/harbormail/harbor/logger"
	"github.com/harbormail/harbor/pkg/metrics"
	serverPkg "github.com/harbormail/harbor/server"
)

// Defaults applied when the configuration leaves a limit unset.
const (
	defaultMaxErrors      = 3
	defaultMaxLineLength  = 1024
	defaultCommandTimeout = 5 * time.Minute
)

type POP3Server struct {
	addr     string
	hostname string
	db       *db.Database

	appCtx    context.Context
	cancel    context.CancelFunc
	tlsConfig *tls.Config

	maxErrors      int
	maxLineLength  int
	commandTimeout time.Duration
	enableAPOP     bool

	// Connection counters
	totalConnections         atomic.Int64
	authenticatedConnections atomic.Int64

	// Connection limiting
	connSlots chan struct{}
}

// New builds a POP3 server from its configuration section. The
// hostname goes into the greeting banner and the APOP stamp.
func New(appCtx context.Context, hostname string, database *db.Database, cfg *config.POP3ServerConfig) (*POP3Server, error) {
	serverCtx, serverCancel := context.WithCancel(appCtx)

	maxErrors := cfg.MaxErrors
	if maxErrors <= 0 {
		maxErrors = defaultMaxErrors
	}
	maxLineLength := cfg.MaxLineLength
	if maxLineLength <= 0 {
		maxLineLength = defaultMaxLineLength
	}
	commandTimeout, err := cfg.GetCommandTimeout()
	if err != nil {
		serverCancel()
		return nil, err
	}
	if commandTimeout <= 0 {
		commandTimeout = defaultCommandTimeout
	}

	s := &POP3Server{
		addr:           cfg.Addr,
		hostname:       hostname,
		db:             database,
		appCtx:         serverCtx,
		cancel:         serverCancel,
		maxErrors:      maxErrors,
		maxLineLength:  maxLineLength,
		commandTimeout: commandTimeout,
		enableAPOP:     cfg.EnableAPOP,
	}

	if cfg.MaxConnections > 0 {
		s.connSlots = make(chan struct{}, cfg.MaxConnections)
	}

	if cfg.TLS {
		cert, err := tls.LoadX509KeyPair(cfg.TLSCertFile, cfg.TLSKeyFile)
		if err != nil {
			serverCancel()
			return nil, fmt.Errorf("failed to load TLS certificate: %w", err)
		}
		s.tlsConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
			ServerName:   hostname,
			NextProtos:   []string{"pop3"},
		}
		if !cfg.TLSVerify {
			logger.Debug("POP3: TLS certificate verification not enforced")
		}
	}

	return s, nil
}

// GetTotalConnections implements server.ConnectionStatsProvider.
func (s *POP3Server) GetTotalConnections() int64 {
	return s.totalConnections.Load()
}

// GetAuthenticatedConnections implements server.ConnectionStatsProvider.
func (s *POP3Server) GetAuthenticatedConnections() int64 {
	return s.authenticatedConnections.Load()
}

// Start accepts client connections until the server context is
// cancelled. Startup failures go to errChan.
func (s *POP3Server) Start(errChan chan error) {
	var listener net.Listener
	var err error

	if s.tlsConfig != nil {
		listener, err = tls.Listen("tcp", s.addr, s.tlsConfig)
	} else {
		listener, err = net.Listen("tcp", s.addr)
	}
	if err != nil {
		s.cancel()
		errChan <- fmt.Errorf("failed to create POP3 listener: %w", err)
		return
	}
	defer listener.Close()

	logger.Info("POP3 server listening", "addr", s.addr, "tls", s.tlsConfig != nil, "apop", s.enableAPOP)

	go func() {
		<-s.appCtx.Done()
		listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if s.appCtx.Err() != nil {
				return
			}
			if errors.Is(err, net.ErrClosed) {
				return
			}
			logger.Error("POP3 accept failed", "error", err)
			continue
		}

		if s.connSlots != nil {
			select {
			case s.connSlots <- struct{}{}:
			default:
				logger.Warn("POP3 connection limit reached, rejecting", "remote", conn.RemoteAddr())
				fmt.Fprint(conn, "-ERR Too many connections, try again later\r\n")
				conn.Close()
				continue
			}
		}

		total := s.totalConnections.Add(1)
		metrics.ConnectionsTotal.WithLabelValues("pop3").Inc()
		metrics.ConnectionsCurrent.WithLabelValues("pop3").Set(float64(total))

		session := s.newSession(conn)
		go session.handleConnection()
	}
}

// Stop cancels the accept loop and every session context.
func (s *POP3Server) Stop() {
	s.cancel()
}

func (s *POP3Server) newSession(conn net.Conn) *POP3Session {
	sessionCtx, sessionCancel := context.WithCancel(s.appCtx)

	session := &POP3Session{
		server:  s,
		conn:    conn,
		ctx:     sessionCtx,
		cancel:  sessionCancel,
		started: time.Now(),
	}
	session.Session = serverPkg.Session{
		Id:       newSessionID(),
		RemoteIP: remoteIP(conn),
		HostName: s.hostname,
		Protocol: "POP3",
		Stats:    s,
	}
	if s.enableAPOP {
		session.apopStamp = newAPOPStamp(s.hostname)
	}
	return session
}

func (s *POP3Server) releaseConnection() {
	total := s.totalConnections.Add(-1)
	metrics.ConnectionsCurrent.WithLabelValues("pop3").Set(float64(total))
	if s.connSlots != nil {
		<-s.connSlots
	}
}

func newSessionID() string {
	b := make([]byte, 8)
	if _, err := rand.Read(b); err != nil {
		return fmt.Sprintf("%d", time.Now().UnixNano())
	}
	return hex.EncodeToString(b)
}

// newAPOPStamp builds the per-connection msg-id the client digests its
// secret against, in the RFC 1939 form <pid.timestamp@hostname>.
func newAPOPStamp(hostname string) string {
	return fmt.Sprintf("<%d.%d@%s>", os.Getpid(), time.Now().UnixNano(), hostname)
}

func remoteIP(conn net.Conn) string {
	if host, _, err := net.SplitHostPort(conn.RemoteAddr().String()); err == nil {
		return host
	}
	return conn.RemoteAddr().String()
}
