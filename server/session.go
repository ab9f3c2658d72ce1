// Package server holds the pieces shared by the protocol servers:
// the per-connection session identity and its logging helpers.
package server

import (
	"fmt"

	"github.com/harbormail/harbor/logger"
)

// ConnectionStatsProvider exposes the live connection counters of a
// protocol server for inclusion in session logs.
type ConnectionStatsProvider interface {
	GetTotalConnections() int64
	GetAuthenticatedConnections() int64
}

// Session is the connection-scoped identity every protocol session
// embeds. User fields stay zero until authentication succeeds.
type Session struct {
	Id       string
	RemoteIP string
	HostName string
	Protocol string
	Stats    ConnectionStatsProvider

	UserName  string
	AccountID int64
}

func (s *Session) user() string {
	if s.AccountID == 0 {
		return "none"
	}
	return fmt.Sprintf("%s/%d", s.UserName, s.AccountID)
}

func (s *Session) Log(format string, args ...any) {
	if s.Stats != nil {
		logger.Info("Session", "protocol", s.Protocol, "remote", s.RemoteIP,
			"user", s.user(), "session", s.Id,
			"conn_total", s.Stats.GetTotalConnections(),
			"conn_auth", s.Stats.GetAuthenticatedConnections(),
			"msg", fmt.Sprintf(format, args...))
		return
	}
	logger.Info("Session", "protocol", s.Protocol, "remote", s.RemoteIP,
		"user", s.user(), "session", s.Id, "msg", fmt.Sprintf(format, args...))
}

func (s *Session) DebugLog(format string, args ...any) {
	logger.Debug("Session", "protocol", s.Protocol, "remote", s.RemoteIP,
		"user", s.user(), "session", s.Id, "msg", fmt.Sprintf(format, args...))
}

func (s *Session) WarnLog(format string, args ...any) {
	logger.Warn("Session", "protocol", s.Protocol, "remote", s.RemoteIP,
		"user", s.user(), "session", s.Id, "msg", fmt.Sprintf(format, args...))
}
