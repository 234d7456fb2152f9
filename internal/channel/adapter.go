// Package channel holds the outbound delivery adapters. The dispatcher depends only
// on the Adapter interface and picks one by the review request's channel.
package channel

import (
	"context"
	"errors"
	"fmt"

	appErrors "github.com/unclebandit/reviewleopard-backend/internal/errors"
	"github.com/unclebandit/reviewleopard-backend/internal/model"
)

// Message is a fully rendered outbound message.
type Message struct {
	BusinessID   int64
	BusinessName string
	To           string
	From         string
	Subject      string
	Body         string
	LinkURL      string
	PixelURL     string
	OptedOut     bool
}

// Result carries the provider's identifier for an accepted message.
type Result struct {
	MessageID string
}

type Adapter interface {
	Channel() model.Channel
	Send(ctx context.Context, msg Message) (Result, error)
}

// Registry maps each channel to its adapter.
type Registry map[model.Channel]Adapter

func NewRegistry(adapters ...Adapter) Registry {
	r := make(Registry, len(adapters))
	for _, a := range adapters {
		r[a.Channel()] = a
	}
	return r
}

func (r Registry) For(ch model.Channel) (Adapter, error) {
	a, ok := r[ch]
	if !ok {
		return nil, appErrors.NewAdapterFailure(string(ch), "no adapter configured", nil)
	}
	return a, nil
}

// callWithContext runs a blocking provider call and gives up when ctx ends.
// A call that outlives ctx is reported as a timeout failure even if the provider
// later accepts it.
func callWithContext(ctx context.Context, ch model.Channel, fn func() (string, error)) (Result, error) {
	type outcome struct {
		id  string
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		id, err := fn()
		done <- outcome{id: id, err: err}
	}()

	select {
	case <-ctx.Done():
		reason := "cancelled"
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = "timeout"
		}
		return Result{}, appErrors.NewAdapterFailure(string(ch), reason, ctx.Err())
	case out := <-done:
		if out.err != nil {
			return Result{}, appErrors.NewAdapterFailure(string(ch), "provider rejected message", out.err)
		}
		return Result{MessageID: out.id}, nil
	}
}

func requireRecipient(ch model.Channel, to string) error {
	if to == "" {
		return appErrors.NewAdapterFailure(string(ch), "invalid destination", fmt.Errorf("empty recipient"))
	}
	return nil
}
