package membership

import (
	"go.uber.org/zap"

	"github.com/andydunstall/swim/pkg/log"
	"github.com/andydunstall/swim/pkg/swim"
)

// LoggingWatcher logs changes to the membership table.
type LoggingWatcher struct {
	logger log.Logger
}

func NewLoggingWatcher(logger log.Logger) *LoggingWatcher {
	return &LoggingWatcher{
		logger: logger.WithSubsystem("membership"),
	}
}

func (w *LoggingWatcher) OnJoin(addr swim.Address) {
	w.logger.Info("member joined", zap.String("member", addr.String()))
}

func (w *LoggingWatcher) OnReachable(addr swim.Address) {
	w.logger.Info("member reachable", zap.String("member", addr.String()))
}

func (w *LoggingWatcher) OnUnreachable(addr swim.Address) {
	w.logger.Warn("member unreachable", zap.String("member", addr.String()))
}

var _ swim.Watcher = &LoggingWatcher{}
