package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// reportHealth publishes the current status. Called from the loop.
func (m *Monitor) reportHealth() {
	status, reason := m.determineStatus()
	msg := m.healthMessage(status, reason)

	if m.telemetry != nil {
		m.telemetry.WriteHealth(m.cfg.DeviceID, healthFields(msg))
	}
	if m.mqtt == nil {
		return
	}
	if err := m.publishHealthMessage(msg); err != nil {
		m.logWarn("failed to publish health", "error", err)
	}
}

// determineStatus evaluates the current monitor status.
func (m *Monitor) determineStatus() (HealthStatus, string) {
	// Check MQTT connection
	if m.mqtt == nil || !m.mqtt.IsConnected() {
		return HealthDegraded, "MQTT disconnected"
	}

	// Check bus connection
	if !m.knx.IsConnected() {
		return HealthDegraded, "KNX transport disconnected"
	}

	if reason := m.checkFailure.Load(); reason != nil {
		return HealthDegraded, *reason
	}

	return HealthHealthy, ""
}

// checkLoop runs the health checks every health interval, off the main
// loop so a slow dependency cannot stall it.
func (m *Monitor) checkLoop(ctx context.Context) {
	defer m.wg.Done()

	// Stop must also abort a check in progress
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer context.AfterFunc(m.ctx, cancel)()

	ticker := time.NewTicker(m.cfg.HealthInterval)
	defer ticker.Stop()

	for {
		m.runChecks(ctx)
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// runChecks records the first failing check, or clears the failure.
func (m *Monitor) runChecks(ctx context.Context) {
	for _, c := range m.checks {
		checkCtx, cancel := context.WithTimeout(ctx, checkTimeout)
		err := c.checker.HealthCheck(checkCtx)
		cancel()
		if err != nil {
			reason := c.name + " health check failed"
			if prev := m.checkFailure.Swap(&reason); prev == nil || *prev != reason {
				m.logWarn(reason, "error", err)
			}
			return
		}
	}
	if prev := m.checkFailure.Swap(nil); prev != nil {
		m.logInfo("health checks passing again", "previous", *prev)
	}
}

// healthMessage builds a health message from the transport statistics,
// the engine snapshot and the input counters.
func (m *Monitor) healthMessage(status HealthStatus, reason string) HealthMessage {
	msg := HealthMessage{
		Device:        m.cfg.DeviceID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       m.cfg.Version,
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
		Failover:      m.forceFailover || m.mqtt == nil || !m.mqtt.IsConnected(),
		Reason:        reason,
	}

	stats := m.knx.Stats()
	transport := &TransportStatus{
		Status:            "disconnected",
		TelegramsTx:       stats.TelegramsTx,
		TelegramsRx:       stats.TelegramsRx,
		TelegramsFiltered: stats.TelegramsFiltered,
		TelegramsDropped:  stats.TelegramsDropped,
		Errors:            stats.ErrorsTotal,
		Reconnects:        stats.ReconnectsTotal,
	}
	switch {
	case stats.Connected:
		transport.Status = "connected"
	case stats.Reconnecting:
		transport.Status = "reconnecting"
	}
	if !stats.LastActivity.IsZero() {
		last := stats.LastActivity.UTC()
		transport.LastActivity = &last
	}
	msg.Transport = transport

	snap := m.engine.Snapshot()
	engine := &EngineStatistics{
		Slots:       snap.Slots,
		QueueLength: snap.QueueLen,
		Waiting:     snap.Waiting,
		Reads:       snap.Reads,
		Timeouts:    snap.Timeouts,
		Updates:     snap.Updates,
	}
	if snap.Waiting {
		engine.AwaitedAddress = snap.AwaitedAddress.String()
	}
	msg.Engine = engine

	msg.Inputs = &InputStatistics{
		Events:           m.eventsTotal.Load(),
		Published:        m.eventsPublished.Load(),
		SentToKNX:        m.eventsSent.Load(),
		EventsDropped:    m.eventsDropped.Load(),
		TelegramsDropped: m.telegramsDropped.Load(),
	}
	return msg
}

// publishHealth publishes a status without statistics.
func (m *Monitor) publishHealth(status HealthStatus, reason string) error {
	return m.publishHealthMessage(HealthMessage{
		Device:        m.cfg.DeviceID,
		Timestamp:     time.Now().UTC(),
		Status:        status,
		Version:       m.cfg.Version,
		UptimeSeconds: int64(time.Since(m.startTime).Seconds()),
		Failover:      m.forceFailover,
		Reason:        reason,
	})
}

func (m *Monitor) publishHealthMessage(msg HealthMessage) error {
	if m.mqtt == nil {
		return nil
	}

	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal health message: %w", err)
	}

	// QoS 1, retained so late subscribers see the last status
	return m.mqtt.Publish(m.cfg.Topics.Health(), payload, 1, true)
}

// healthFields flattens a health message into telemetry fields.
func healthFields(msg HealthMessage) map[string]interface{} {
	fields := map[string]interface{}{
		"status":         string(msg.Status),
		"uptime_seconds": msg.UptimeSeconds,
		"failover":       msg.Failover,
	}
	if t := msg.Transport; t != nil {
		fields["telegrams_tx"] = int64(t.TelegramsTx)
		fields["telegrams_rx"] = int64(t.TelegramsRx)
		fields["telegrams_filtered"] = int64(t.TelegramsFiltered)
		fields["transport_errors"] = int64(t.Errors)
	}
	if e := msg.Engine; e != nil {
		fields["queue_length"] = e.QueueLength
		fields["reads"] = int64(e.Reads)
		fields["timeouts"] = int64(e.Timeouts)
		fields["updates"] = int64(e.Updates)
	}
	if in := msg.Inputs; in != nil {
		fields["events"] = int64(in.Events)
		fields["events_dropped"] = int64(in.EventsDropped)
	}
	return fields
}
