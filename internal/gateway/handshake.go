package gateway

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
)

// Handshake is a pairing artifact for an unauthenticated instance.
type Handshake struct {
	Code        string // raw QR payload
	Image       string // data URL of the rendered QR
	PairingCode string
	Connected   bool // the instance turned out to be authenticated already
}

// QR returns the payload to show the user: the raw code when the gateway
// sent one, the rendered image otherwise.
func (h Handshake) QR() string {
	if h.Code != "" {
		return h.Code
	}
	return h.Image
}

var handshakeCandidates = []candidate[Handshake]{
	{
		name: "connect",
		build: func(p params) request {
			return request{method: http.MethodGet, path: instancePath("/instance/connect", p.instance)}
		},
		decode: decodeHandshake,
	},
	{
		name: "qrcode",
		build: func(p params) request {
			return request{
				method: http.MethodGet,
				path:   instancePath("/instance/qrcode", p.instance),
				query:  url.Values{"image": {"false"}},
			}
		},
		decode: decodeHandshake,
	},
}

// Handshake requests a fresh QR for instance.
func (c *Client) Handshake(ctx context.Context, instance string) (Handshake, error) {
	return resolve(ctx, c, CapHandshake, handshakeCandidates, params{instance: instance})
}

func decodeHandshake(_ params, doc any) (Handshake, error) {
	obj, ok := doc.(map[string]any)
	if !ok {
		return Handshake{}, errors.New("expected object")
	}
	if strings.EqualFold(firstString(obj, "instance.state", "state"), StateOpen) {
		return Handshake{Connected: true}, nil
	}
	h := handshakeFrom(obj)
	if h.QR() == "" && h.PairingCode == "" {
		return Handshake{}, errors.New("no qr code in response")
	}
	return h, nil
}

func handshakeFrom(obj map[string]any) Handshake {
	return Handshake{
		Code:        firstString(obj, "code", "qrcode.code"),
		Image:       firstString(obj, "base64", "qrcode.base64"),
		PairingCode: firstString(obj, "pairingCode", "qrcode.pairingCode"),
	}
}
