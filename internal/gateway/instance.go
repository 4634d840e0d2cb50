package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// conflictHints are the body fragments some gateway releases use instead of
// HTTP 409 to report a taken instance name.
var conflictHints = []string{"already in use", "already exists"}

type createRequest struct {
	InstanceName string `json:"instanceName"`
	QRCode       bool   `json:"qrcode"`
	Integration  string `json:"integration,omitempty"`
}

// Create creates instance and returns the pairing artifact sent with the
// creation answer, which may be empty. A lost creation race is reported as
// an error matching ErrInstanceConflict.
func (c *Client) Create(ctx context.Context, instance string) (Handshake, error) {
	doc, err := c.do(ctx, request{
		method: http.MethodPost,
		path:   "/instance/create",
		body:   createRequest{InstanceName: instance, QRCode: true, Integration: c.integration},
	})
	if err != nil {
		var te *TransportError
		if errors.As(err, &te) && isConflict(te) {
			te.Err = ErrInstanceConflict
			return Handshake{}, te
		}
		return Handshake{}, fmt.Errorf("create instance %s: %w", instance, err)
	}

	obj, ok := doc.(map[string]any)
	if !ok {
		return Handshake{}, &DecodeError{Candidate: "create", Err: errors.New("expected object")}
	}
	return handshakeFrom(obj), nil
}

func isConflict(te *TransportError) bool {
	switch te.StatusCode {
	case http.StatusConflict:
		return true
	case http.StatusForbidden, http.StatusBadRequest:
		body := strings.ToLower(te.Body)
		for _, hint := range conflictHints {
			if strings.Contains(body, hint) {
				return true
			}
		}
	}
	return false
}

// Logout ends the authenticated session of instance, keeping the instance.
// Any 2xx answer counts as success regardless of its content type.
func (c *Client) Logout(ctx context.Context, instance string) error {
	_, _, err := c.exchange(ctx, request{
		method: http.MethodDelete,
		path:   instancePath("/instance/logout", instance),
	})
	if err != nil {
		return fmt.Errorf("logout %s: %w", instance, err)
	}
	return nil
}
