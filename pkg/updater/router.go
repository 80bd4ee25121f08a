package updater

import (
	"context"
	"encoding/json"

	"github.com/mamalluca/mamalluca-go/pkg/status"
	"github.com/mamalluca/mamalluca-go/pkg/wire"
)

// route dispatches one notification by method. seq is its inbound frame
// sequence number, 0 if unknown.
func (u *Updater) route(ctx context.Context, seq uint64, n *wire.Notification) {
	switch n.Method {
	case wire.NotifyStatusUpdate:
		if seq != 0 && seq < u.seededSeq {
			u.logger.Debug("dropping status update older than subscription", "seq", seq, "seeded", u.seededSeq)
			return
		}
		u.applyStatusUpdate(n)

	case wire.NotifyProcStatUpdate:
		u.applyProcStats(n)

	case wire.NotifyKlippyReady:
		u.setDeviceState(DeviceStateReady, "")
		u.logger.Info("klippy ready, re-subscribing")
		if err := u.Bootstrap(ctx); err != nil {
			u.logger.Warn("bootstrap failed", "conn_id", u.connID, "error", err)
		}

	case wire.NotifyKlippyShutdown:
		u.setDeviceState(DeviceStateShutdown, "")
		u.logger.Warn("klippy shutdown")

	case wire.NotifyKlippyDisconnected:
		u.setDeviceState(DeviceStateDisconnected, "")
		u.logger.Warn("klippy disconnected")

	default:
		u.logger.Debug("ignoring notification", "method", n.Method)
	}
}

// firstParam returns params[0] of a positional notification.
func (u *Updater) firstParam(n *wire.Notification) (json.RawMessage, bool) {
	params, err := n.ParamsArray()
	if err != nil {
		u.logger.Warn("dropping notification", "method", n.Method, "error", err)
		return nil, false
	}
	if len(params) == 0 {
		u.logger.Warn("dropping notification", "method", n.Method, "error", "no params")
		return nil, false
	}
	return params[0], true
}

func (u *Updater) applyStatusUpdate(n *wire.Notification) {
	first, ok := u.firstParam(n)
	if !ok {
		return
	}

	var patches map[string]json.RawMessage
	if err := json.Unmarshal(first, &patches); err != nil {
		u.logger.Warn("dropping notification", "method", n.Method, "error", err)
		return
	}

	for topic, patch := range patches {
		key, err := status.ParseKey(topic)
		if err != nil {
			u.logger.Debug("skipping status update", "topic", topic, "error", err)
			continue
		}
		if !key.Kind.Subscribable() {
			u.logger.Debug("skipping status update", "topic", topic, "reason", "not subscribable")
			continue
		}
		if err := u.cache.Merge(key, patch); err != nil {
			u.logger.Warn("skipping status update", "topic", topic, "error", err)
		}
	}
}

func (u *Updater) applyProcStats(n *wire.Notification) {
	first, ok := u.firstParam(n)
	if !ok {
		return
	}
	if err := u.cache.Merge(status.MoonrakerKey, first); err != nil {
		u.logger.Warn("dropping process stats", "error", err)
	}
}
