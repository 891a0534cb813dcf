package ports

import "context"

// EventPublisher publishes events to notify other instances
type EventPublisher interface {
	PublishSessionClosed(ctx context.Context, subject string, reason string) error
	PublishBondEstablished(ctx context.Context, patientID, keeperID string) error
}
