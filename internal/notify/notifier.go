package notify

import (
	"context"
	"log"
)

// Channel routes an outbound message to its audience.
type Channel string

const (
	// ChannelBookings carries routine booking lifecycle messages.
	ChannelBookings Channel = "bookings"
	// ChannelReturns carries clean-return confirmations.
	ChannelReturns Channel = "returns"
	// ChannelMaintenance carries damaged/missing-parts return alerts.
	ChannelMaintenance Channel = "maintenance"
	// ChannelOps carries operator anomaly alerts (races, constraint hits).
	ChannelOps Channel = "ops"
)

// Notifier sends a fire-and-forget outbound message. Implementations may
// fail; callers must treat failures as log-only and never propagate them
// into the state transition that triggered the send.
type Notifier interface {
	Send(ctx context.Context, ch Channel, message string) error
}

// LogNotifier writes notifications to the process log. It is the default
// sink and never fails.
type LogNotifier struct {
	Logger *log.Logger
}

func (n *LogNotifier) Send(_ context.Context, ch Channel, message string) error {
	logger := n.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("notify [%s] %s", ch, message)
	return nil
}

// Fire sends a notification and swallows any error, logging it instead.
// State transitions call this so a broken notifier can never fail or roll
// back the underlying write.
func Fire(ctx context.Context, n Notifier, ch Channel, message string) {
	if n == nil {
		return
	}
	if err := n.Send(ctx, ch, message); err != nil {
		log.Printf("notify [%s] send failed: %v", ch, err)
	}
}
