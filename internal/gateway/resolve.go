package gateway

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
)

// Capabilities served through the resolver.
const (
	CapStatus       = "status"
	CapOwner        = "owner"
	CapHandshake    = "handshake"
	CapListContacts = "listContacts"
	CapListMessages = "listMessages"
	CapSendMessage  = "sendMessage"
)

// params carries the per-call inputs shared by candidate builders and
// decoders.
type params struct {
	instance  string
	self      string // canonical phone of the tenant
	peer      string // canonical phone of the peer
	text      string
	fetchedAt time.Time
}

// candidate is one remote operation able to serve a capability.
type candidate[T any] struct {
	name   string
	build  func(p params) request
	decode func(p params, doc any) (T, error)
}

// resolve tries cands in order and returns the first successful mapping.
// The order never changes between calls.
func resolve[T any](ctx context.Context, c *Client, capability string, cands []candidate[T], p params) (T, error) {
	var zero T
	res := &ResolutionError{Capability: capability}
	log := c.logger.With(zap.String("capability", capability), zap.String("instance", p.instance))

	for _, cand := range cands {
		if err := ctx.Err(); err != nil {
			res.Attempts = append(res.Attempts, Attempt{Candidate: cand.name, Err: err})
			break
		}

		doc, err := c.do(ctx, cand.build(p))
		if err == nil {
			var v T
			v, err = cand.decode(p, doc)
			if err == nil {
				log.Debug("capability resolved", zap.String("candidate", cand.name))
				return v, nil
			}
			err = &DecodeError{Candidate: cand.name, Err: err}
		}

		var unstructured *UnstructuredResponseError
		if errors.As(err, &unstructured) {
			log.Warn("candidate returned unstructured content",
				zap.String("candidate", cand.name),
				zap.String("content_type", unstructured.ContentType))
		} else {
			log.Debug("candidate failed", zap.String("candidate", cand.name), zap.Error(err))
		}
		res.Attempts = append(res.Attempts, Attempt{Candidate: cand.name, Err: err})
	}

	if res.NotFound() {
		log.Debug("capability not found on any candidate")
	} else {
		log.Warn("capability exhausted", zap.Int("attempts", len(res.Attempts)), zap.Error(res))
	}
	return zero, res
}

// candidateNames lists the candidate names of cands in order.
func candidateNames[T any](cands []candidate[T]) []string {
	names := make([]string, len(cands))
	for i, c := range cands {
		names[i] = c.name
	}
	return names
}
