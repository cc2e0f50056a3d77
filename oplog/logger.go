package oplog

import (
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/maxpoletaev/ringkv/membership"
)

// Logger writes every event as a structured log line.
type Logger struct {
	logger log.Logger
}

func NewLogger(logger log.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) NodeAdded(self, peer membership.PeerID) {
	level.Info(l.logger).Log("msg", "node added", "self", self, "peer", peer)
}

func (l *Logger) NodeRemoved(self, peer membership.PeerID) {
	level.Info(l.logger).Log("msg", "node removed", "self", self, "peer", peer)
}

func (l *Logger) Operation(self membership.PeerID, op Op) {
	logger := level.Debug(l.logger)
	if op.Coordinator {
		logger = level.Info(l.logger)
	}

	logger.Log(
		"msg", "operation",
		"self", self,
		"kind", op.Kind,
		"role", role(op),
		"tx_id", op.TxID,
		"key", op.Key,
		"value", op.Value,
		"status", status(op),
	)
}

func role(op Op) string {
	if op.Coordinator {
		return "coordinator"
	}

	return "replica"
}

func status(op Op) string {
	if op.Success {
		return "success"
	}

	return "fail"
}
