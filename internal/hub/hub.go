// Package hub broadcasts lifecycle events to a user's other connected
// clients. Delivery is best-effort, at-most-once: an offline client
// misses events with no replay.
package hub

import (
	"github.com/sirupsen/logrus"

	"github.com/wearlink/coordinator/internal/models"
	"github.com/wearlink/coordinator/internal/registry"
)

type Hub struct {
	reg *registry.Registry
	log *logrus.Entry

	sent func() // metrics hook, called once per delivered event
}

func New(reg *registry.Registry, log *logrus.Entry, onSent func()) *Hub {
	if onSent == nil {
		onSent = func() {}
	}
	return &Hub{reg: reg, log: log, sent: onSent}
}

// Broadcast delivers ev to every connection of userID except the device
// that produced it. Send failures are logged and skipped, never
// retried; a broken client must not stall the rest of the group.
func (h *Hub) Broadcast(userID, excludeDeviceID string, ev models.Event) {
	for _, e := range h.reg.ListByUser(userID) {
		if e.DeviceID == excludeDeviceID {
			continue
		}
		if err := e.Conn.SendEvent(ev); err != nil {
			h.log.WithError(err).WithFields(logrus.Fields{
				"user_id":   userID,
				"device_id": e.DeviceID,
				"event":     string(ev.Type),
			}).Warn("fan-out delivery failed")
			continue
		}
		h.sent()
	}
}
