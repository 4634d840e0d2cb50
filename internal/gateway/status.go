package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Remote connection states as reported by the gateway.
const (
	StateOpen       = "open"
	StateConnecting = "connecting"
	StateClose      = "close"
)

// InstanceState is the remote view of one instance.
type InstanceState struct {
	Exists bool
	State  string // lower-cased remote state
	Phone  string // canonical phone of the linked account, if known
}

// Open reports whether the remote session is authenticated.
func (s InstanceState) Open() bool {
	return s.Exists && (s.State == StateOpen || s.State == "connected")
}

var statusCandidates = []candidate[InstanceState]{
	{
		name: "fetchInstances",
		build: func(p params) request {
			return request{
				method: http.MethodGet,
				path:   "/instance/fetchInstances",
				query:  url.Values{"instanceName": {p.instance}},
			}
		},
		decode: decodeFetchInstances,
	},
	{
		name: "connectionState",
		build: func(p params) request {
			return request{method: http.MethodGet, path: instancePath("/instance/connectionState", p.instance)}
		},
		decode: decodeConnectionState,
	},
}

// Status checks whether instance exists and whether its session is open.
// An instance every candidate answers 404 for does not exist.
func (c *Client) Status(ctx context.Context, instance string) (InstanceState, error) {
	st, err := resolve(ctx, c, CapStatus, statusCandidates, params{instance: instance})
	if err != nil {
		var re *ResolutionError
		if errors.As(err, &re) && re.NotFound() {
			return InstanceState{}, nil
		}
		return InstanceState{}, err
	}
	return st, nil
}

// Owner looks up the canonical phone of the account linked to instance.
// Only the instance listing carries it, so a reachable gateway that does not
// know the owner yields "" without error.
func (c *Client) Owner(ctx context.Context, instance string) (string, error) {
	st, err := resolve(ctx, c, CapOwner, statusCandidates[:1], params{instance: instance})
	if err != nil {
		return "", err
	}
	return st.Phone, nil
}

// decodeFetchInstances maps both the nested {instance:{instanceName,owner,
// status}} and the flat {name,connectionStatus,ownerJid,number} list items.
// A list without the instance means it does not exist.
func decodeFetchInstances(p params, doc any) (InstanceState, error) {
	list, ok := unwrapList(doc)
	if !ok {
		obj, isObj := doc.(map[string]any)
		if !isObj || firstValue(obj, "instance", "instanceName", "name") == nil {
			return InstanceState{}, errors.New("expected instance list")
		}
		list = []any{obj}
	}
	for _, item := range list {
		rec, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if inner, ok := rec["instance"].(map[string]any); ok {
			rec = inner
		}
		if firstString(rec, "instanceName", "name") != p.instance {
			continue
		}
		state := strings.ToLower(firstString(rec, "connectionStatus", "status", "state"))
		if state == "" {
			return InstanceState{}, fmt.Errorf("instance %q has no state", p.instance)
		}
		return InstanceState{
			Exists: true,
			State:  state,
			Phone:  CanonicalPhone(firstString(rec, "ownerJid", "owner", "number")),
		}, nil
	}
	return InstanceState{Exists: false}, nil
}

func decodeConnectionState(_ params, doc any) (InstanceState, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return InstanceState{}, errors.New("expected object")
	}
	state := strings.ToLower(firstString(obj, "instance.state", "state"))
	if state == "" {
		return InstanceState{}, errors.New("missing state")
	}
	return InstanceState{Exists: true, State: state}, nil
}
