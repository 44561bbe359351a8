package notify

import (
	"context"
	"fmt"
)

// Router picks a Sender by Message.Channel.
type Router struct {
	routes   map[string]Sender
	fallback Sender
}

func NewRouter() *Router {
	return &Router{routes: make(map[string]Sender)}
}

// Handle registers sender for channel, replacing any earlier one.
func (r *Router) Handle(channel string, sender Sender) *Router {
	r.routes[channel] = sender
	return r
}

// Fallback sets the sender used for channels without a route.
func (r *Router) Fallback(sender Sender) *Router {
	r.fallback = sender
	return r
}

func (r *Router) Send(ctx context.Context, msg Message) error {
	if sender, ok := r.routes[msg.Channel]; ok {
		return sender.Send(ctx, msg)
	}
	if r.fallback != nil {
		return r.fallback.Send(ctx, msg)
	}
	return fmt.Errorf("%w %q", ErrNoRoute, msg.Channel)
}
