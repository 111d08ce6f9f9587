package session

import (
	"encoding/json"

	"github.com/fafa-a/runtty/internal/bridge"
	"github.com/fafa-a/runtty/internal/protocol/wire"
	"github.com/fafa-a/runtty/internal/runstate"
	"github.com/fafa-a/runtty/pkg/logger"
)

// StatusHandler returns the project.status handler. Every valid event is
// applied to store unconditionally; malformed events are logged and dropped.
func StatusHandler(store *runstate.Store) bridge.Handler {
	return func(payload json.RawMessage) {
		var ev wire.StatusEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			logger.Warnf("session: dropping undecodable %s event: %v", wire.ChannelProjectStatus, err)
			return
		}
		if !ev.Valid() {
			logger.Warnf("session: dropping invalid %s event: %s", wire.ChannelProjectStatus, payload)
			return
		}
		store.Apply(runstate.Delta{
			Path:    ev.Path,
			Running: ev.Status == wire.StatusRunning,
			Source:  runstate.SourcePush,
		})
	}
}
