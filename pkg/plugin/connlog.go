package plugin

import "log/slog"

func init() {
	Register("connlog", func() Plugin { return &connLog{} })
}

// connLog logs every connection and every update frame it sees.
type connLog struct {
	logger *slog.Logger
}

func (c *connLog) Name() string { return "connlog" }

func (c *connLog) Init(host Host, logger *slog.Logger) error {
	c.logger = logger
	host.Observe(c)
	c.logger.Info("observing connections", "keys", len(host.Snapshot()))
	return nil
}

func (c *connLog) Connected(s SessionInfo) {
	c.logger.Info("new client connected", "session", s.ID, "remote", s.RemoteAddr)
}

func (c *connLog) Disconnected(s SessionInfo) {
	c.logger.Info("client disconnected", "session", s.ID)
}

func (c *connLog) Updated(s SessionInfo, payload map[string]interface{}, ts int64) {
	c.logger.Info("update received", "session", s.ID, "keys", len(payload), "timestamp", ts)
}
