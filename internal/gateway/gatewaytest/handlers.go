package gatewaytest

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

func (s *Server) fetchInstances(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("instanceName")

	s.mu.Lock()
	defer s.mu.Unlock()
	list := []map[string]any{}
	for _, inst := range s.instances {
		if name != "" && inst.Name != name {
			continue
		}
		list = append(list, map[string]any{
			"name":             inst.Name,
			"connectionStatus": inst.State,
			"ownerJid":         inst.Owner,
			"integration":      "WHATSAPP-BAILEYS",
		})
	}
	writeJSON(w, http.StatusOK, list)
}

func (s *Server) connectionState(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "instance")

	s.mu.Lock()
	inst, ok := s.instances[name]
	var state string
	if ok {
		state = inst.State
	}
	s.mu.Unlock()

	if !ok {
		notFound(w, name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"instance": map[string]any{"instanceName": name, "state": state},
	})
}

func (s *Server) connect(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "instance")

	s.mu.Lock()
	inst, ok := s.instances[name]
	if !ok {
		s.mu.Unlock()
		notFound(w, name)
		return
	}
	if inst.State == "open" {
		s.mu.Unlock()
		writeJSON(w, http.StatusOK, map[string]any{
			"instance": map[string]any{"instanceName": name, "state": "open"},
		})
		return
	}
	inst.State = "connecting"
	inst.QR = s.nextQR(name)
	qr := inst.QR
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"pairingCode": nil,
		"code":        qr,
		"base64":      "data:image/png;base64,iVBORw0KGgo=",
		"count":       1,
	})
}

func (s *Server) qrcode(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "instance")

	s.mu.Lock()
	inst, ok := s.instances[name]
	if !ok {
		s.mu.Unlock()
		notFound(w, name)
		return
	}
	if inst.QR == "" {
		inst.QR = s.nextQR(name)
	}
	qr := inst.QR
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{"code": qr})
}

func (s *Server) create(w http.ResponseWriter, r *http.Request) {
	var req struct {
		InstanceName string `json:"instanceName"`
		QRCode       bool   `json:"qrcode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.InstanceName == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "error": "Bad Request"})
		return
	}

	s.mu.Lock()
	_, exists := s.instances[req.InstanceName]
	if s.conflictOnCreate && !exists {
		s.conflictOnCreate = false
		s.instances[req.InstanceName] = &Instance{Name: req.InstanceName, State: "connecting", QR: s.nextQR(req.InstanceName)}
		exists = true
	}
	if exists {
		s.mu.Unlock()
		writeJSON(w, http.StatusForbidden, map[string]any{
			"status": 403,
			"error":  "Forbidden",
			"response": map[string]any{
				"message": []string{`This name "` + req.InstanceName + `" is already in use.`},
			},
		})
		return
	}
	inst := &Instance{Name: req.InstanceName, State: "connecting", QR: s.nextQR(req.InstanceName)}
	s.instances[req.InstanceName] = inst
	qr := inst.QR
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"instance": map[string]any{"instanceName": req.InstanceName, "status": "created"},
		"hash":     "0A1B2C3D",
		"qrcode":   map[string]any{"code": qr, "base64": "data:image/png;base64,iVBORw0KGgo="},
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "instance")

	s.mu.Lock()
	inst, ok := s.instances[name]
	if ok {
		inst.State = "close"
		inst.Owner = ""
	}
	s.mu.Unlock()

	if !ok {
		notFound(w, name)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "SUCCESS", "error": false})
}

func (s *Server) findChats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "instance")

	s.mu.Lock()
	records := append([]map[string]any{}, s.contacts[name]...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) findMessages(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "instance")

	jid := r.URL.Query().Get("remoteJid")
	if r.Method == http.MethodPost {
		var req struct {
			Where struct {
				RemoteJID string `json:"remoteJid"`
				Key       struct {
					RemoteJID string `json:"remoteJid"`
				} `json:"key"`
			} `json:"where"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		jid = req.Where.Key.RemoteJID
		if jid == "" {
			jid = req.Where.RemoteJID
		}
	}

	s.mu.Lock()
	records := append([]map[string]any{}, s.messages[name+"|"+jid]...)
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"messages": map[string]any{
			"total":       len(records),
			"pages":       1,
			"currentPage": 1,
			"records":     records,
		},
	})
}

func (s *Server) sendText(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "instance")

	var req struct {
		Number string `json:"number"`
		Text   string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Number == "" || req.Text == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "error": "Bad Request"})
		return
	}

	s.mu.Lock()
	inst, ok := s.instances[name]
	open := ok && inst.State == "open"
	if open {
		s.sent = append(s.sent, Sent{Instance: name, Number: req.Number, Text: req.Text})
	}
	s.mu.Unlock()

	if !ok {
		notFound(w, name)
		return
	}
	if !open {
		writeJSON(w, http.StatusBadRequest, map[string]any{"status": 400, "error": "Connection Closed"})
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"key": map[string]any{
			"remoteJid": req.Number + "@s.whatsapp.net",
			"fromMe":    true,
			"id":        newMessageID(),
		},
		"message":          map[string]any{"conversation": req.Text},
		"messageTimestamp": time.Now().Unix(),
		"status":           "PENDING",
	})
}

func notFound(w http.ResponseWriter, name string) {
	writeJSON(w, http.StatusNotFound, map[string]any{
		"status": 404,
		"error":  "Not Found",
		"response": map[string]any{
			"message": []string{`The "` + name + `" instance does not exist`},
		},
	})
}
