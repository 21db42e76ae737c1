// Package share delivers an exported invoice through external channels.
// Channels are capability-gated: callers ask whether one is available before
// invoking it, and an unavailable channel is reported, not treated as a fault.
package share

import (
	"context"
	"errors"
	"sort"

	"billdesk/backend/internal/domain"
)

var (
	ErrUnknownChannel    = errors.New("unknown share channel")
	ErrChannelDisabled   = errors.New("share channel not available")
	ErrRecipientRequired = errors.New("recipient required")
)

// Payload is everything a channel may need. Document is only filled for
// channels that report NeedsDocument.
type Payload struct {
	InvoiceNumber string
	Message       string
	Recipient     string
	FileName      string
	Document      []byte
}

type Outcome struct {
	// URL is set by channels that complete on the client side (open a link).
	URL string
}

type Channel interface {
	Name() string
	Available() bool
	NeedsDocument() bool
	Share(ctx context.Context, p Payload) (Outcome, error)
}

type Registry struct {
	channels map[string]Channel
}

func NewRegistry(channels ...Channel) *Registry {
	r := &Registry{channels: make(map[string]Channel, len(channels))}
	for _, ch := range channels {
		r.channels[ch.Name()] = ch
	}
	return r
}

// Lookup returns the named channel if it exists and is currently available.
func (r *Registry) Lookup(name string) (Channel, error) {
	ch, ok := r.channels[name]
	if !ok {
		return nil, ErrUnknownChannel
	}
	if !ch.Available() {
		return nil, ErrChannelDisabled
	}
	return ch, nil
}

func (r *Registry) Channels() []domain.ShareChannelInfo {
	out := make([]domain.ShareChannelInfo, 0, len(r.channels))
	for name, ch := range r.channels {
		out = append(out, domain.ShareChannelInfo{Name: name, Available: ch.Available()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
