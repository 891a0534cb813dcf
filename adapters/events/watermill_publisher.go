package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/layer-3/keeper/ports"
)

const (
	TopicSessionClosed   = "keeper.session.closed"
	TopicBondEstablished = "keeper.bond.established"
)

// SessionClosedEvent is published when a session is closed by logout or rotation
type SessionClosedEvent struct {
	Subject string `json:"subject"`
	Reason  string `json:"reason"`
}

// BondEstablishedEvent is published when a patient bonds with a keeper
type BondEstablishedEvent struct {
	PatientID string `json:"patient_id"`
	KeeperID  string `json:"keeper_id"`
}

// WatermillPublisher implements the EventPublisher interface using Watermill
type WatermillPublisher struct {
	publisher message.Publisher
}

// NewWatermillPublisher creates a new Watermill publisher
func NewWatermillPublisher(publisher message.Publisher) ports.EventPublisher {
	return &WatermillPublisher{publisher: publisher}
}

// PublishSessionClosed publishes a session closed event
func (p *WatermillPublisher) PublishSessionClosed(ctx context.Context, subject string, reason string) error {
	return p.publish(ctx, TopicSessionClosed, SessionClosedEvent{Subject: subject, Reason: reason})
}

// PublishBondEstablished publishes a bond established event
func (p *WatermillPublisher) PublishBondEstablished(ctx context.Context, patientID, keeperID string) error {
	return p.publish(ctx, TopicBondEstablished, BondEstablishedEvent{PatientID: patientID, KeeperID: keeperID})
}

func (p *WatermillPublisher) publish(ctx context.Context, topic string, event any) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	msg.SetContext(ctx)

	if err := p.publisher.Publish(topic, msg); err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}

	return nil
}

// NopPublisher discards every event
type NopPublisher struct{}

func (NopPublisher) PublishSessionClosed(context.Context, string, string) error {
	return nil
}

func (NopPublisher) PublishBondEstablished(context.Context, string, string) error {
	return nil
}
