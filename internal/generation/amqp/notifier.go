package amqp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/rabbitmq/amqp091-go"

	"github.com/project-ncl/sbomer-sub004/internal/generation"
)

type Publisher interface {
	Publish(ctx context.Context, msg amqp091.Publishing) error
}

// Message is the body published when a generation reaches a terminal status.
type Message struct {
	ID        uuid.UUID         `json:"id"`
	Target    MessageTarget     `json:"target"`
	Generator MessageGenerator  `json:"generator"`
	Status    string            `json:"status"`
	Result    string            `json:"result"`
	Reason    string            `json:"reason"`
	Manifests []MessageManifest `json:"manifests"`
}

type MessageTarget struct {
	Type       string `json:"type"`
	Identifier string `json:"identifier"`
}

type MessageGenerator struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type MessageManifest struct {
	ID         uuid.UUID `json:"id"`
	SourcePath string    `json:"sourcePath"`
}

func NewMessage(g *generation.Generation, manifests []*generation.Manifest) *Message {
	m := &Message{
		ID:        g.ID,
		Target:    MessageTarget{Type: string(g.Target.Type), Identifier: g.Target.Identifier},
		Generator: MessageGenerator{Name: g.Generator.Name, Version: g.Generator.Version},
		Status:    g.Status.String(),
		Result:    string(g.Result),
		Reason:    g.Reason,
		Manifests: make([]MessageManifest, len(manifests)),
	}
	for i, manifest := range manifests {
		m.Manifests[i] = MessageManifest{ID: manifest.ID, SourcePath: manifest.SourcePath}
	}
	return m
}

type Notifier struct {
	publisher Publisher // required
}

func NewNotifier(publisher Publisher) *Notifier {
	return &Notifier{publisher: publisher}
}

// Notify publishes the terminal state of g together with its manifests.
func (n *Notifier) Notify(ctx context.Context, g *generation.Generation, manifests []*generation.Manifest) error {
	body := &bytes.Buffer{}
	if err := json.NewEncoder(body).Encode(NewMessage(g, manifests)); err != nil {
		return fmt.Errorf("generation.amqp: %w", err)
	}

	msg := amqp091.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp091.Persistent,
		MessageId:    g.ID.String(),
		Type:         "generation." + g.Status.String(),
		Body:         body.Bytes(),
	}
	if err := n.publisher.Publish(ctx, msg); err != nil {
		return fmt.Errorf("generation.amqp: %w", err)
	}
	return nil
}
