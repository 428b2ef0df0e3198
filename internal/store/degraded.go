package store

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/wearlink/coordinator/internal/models"
)

// Degraded is the explicit availability-over-durability mode: every
// operation is a no-op returning empty values, so the coordinator keeps
// serving devices with session state reduced to process-local only.
// It is selected by configuration, never as a silent fallback.
type Degraded struct {
	log  *logrus.Entry
	noop func() // test/metrics hook, called once per operation
}

func NewDegraded(log *logrus.Entry, onNoop func()) *Degraded {
	if onNoop == nil {
		onNoop = func() {}
	}
	return &Degraded{log: log, noop: onNoop}
}

func (d *Degraded) skip(op string) {
	d.noop()
	d.log.WithField("op", op).Debug("store degraded, operation skipped")
}

func (d *Degraded) SetDeviceSession(ctx context.Context, ds *models.DeviceSession) error {
	d.skip("SetDeviceSession")
	return nil
}

func (d *Degraded) GetDeviceSession(ctx context.Context, deviceID string) (*models.DeviceSession, error) {
	d.skip("GetDeviceSession")
	return nil, nil
}

func (d *Degraded) RemoveDeviceSession(ctx context.Context, deviceID, userID string) error {
	d.skip("RemoveDeviceSession")
	return nil
}

func (d *Degraded) GetUserDevices(ctx context.Context, userID string) ([]*models.DeviceSession, error) {
	d.skip("GetUserDevices")
	return nil, nil
}

func (d *Degraded) SetStreamingSession(ctx context.Context, ss *models.StreamingSession) error {
	d.skip("SetStreamingSession")
	return nil
}

func (d *Degraded) GetStreamingSession(ctx context.Context, sessionID string) (*models.StreamingSession, error) {
	d.skip("GetStreamingSession")
	return nil, nil
}

func (d *Degraded) UpdateStreamingSession(ctx context.Context, sessionID string, upd SessionUpdate) (*models.StreamingSession, error) {
	d.skip("UpdateStreamingSession")
	return nil, nil
}

func (d *Degraded) HealthCheck(ctx context.Context) error {
	d.skip("HealthCheck")
	return nil
}
