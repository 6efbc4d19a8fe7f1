package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"deployhook/internal/deploy"
	"deployhook/internal/events"
	"deployhook/internal/history"
)

const (
	DeliveryHeader = "X-GitHub-Delivery"
	EventHeader    = "X-GitHub-Event"
)

// pushInfo holds the fields read from a webhook payload. OtherRef carries the
// JSON text of a ref that is set to something other than a string.
type pushInfo struct {
	Ref      string
	OtherRef string
	After    string
}

// parsePush extracts ref and after from a JSON object payload. Anything that
// is not a JSON object yields empty values. A non-string ref counts as set
// only when it is a non-zero number, true, or a non-empty array or object.
func parsePush(body []byte) pushInfo {
	var payload map[string]interface{}
	if err := json.Unmarshal(body, &payload); err != nil {
		return pushInfo{}
	}

	var info pushInfo
	switch ref := payload["ref"].(type) {
	case string:
		info.Ref = ref
	default:
		if isSet(ref) {
			raw, _ := json.Marshal(ref)
			info.OtherRef = string(raw)
		}
	}
	info.After, _ = payload["after"].(string)
	return info
}

func isSet(v interface{}) bool {
	switch t := v.(type) {
	case bool:
		return t
	case float64:
		return t != 0
	case []interface{}:
		return len(t) > 0
	case map[string]interface{}:
		return len(t) > 0
	}
	return false
}

// HandleDeploy handles webhook deliveries on the deploy path
func (s *Server) HandleDeploy(w http.ResponseWriter, r *http.Request) {
	deliveryID := r.Header.Get(DeliveryHeader)
	event := r.Header.Get(EventHeader)

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, s.Config.MaxPayloadBytes))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			s.Logger.Warn("payload too large", "limit", maxErr.Limit, "remote_addr", r.RemoteAddr)
			respondText(w, http.StatusRequestEntityTooLarge, "Payload too large")
			return
		}
		s.Logger.Error("failed to read request body", "error", err, "remote_addr", r.RemoteAddr)
		respondText(w, http.StatusBadRequest, "Failed to read payload")
		return
	}

	if !Verify(body, s.Config.Secret, r.Header.Get(SignatureHeader)) {
		s.Logger.Warn("invalid signature", "remote_addr", r.RemoteAddr, "delivery_id", deliveryID)
		s.record(r.Context(), &history.TriggerRecord{
			Ref:          parsePush(body).Ref,
			DeliveryID:   stringPtrOrNil(deliveryID),
			Event:        stringPtrOrNil(event),
			RemoteAddr:   r.RemoteAddr,
			Status:       history.StatusRejected,
			ErrorMessage: stringPtr("invalid signature"),
		})
		respondText(w, http.StatusForbidden, "Invalid signature")
		return
	}

	push := parsePush(body)

	if skipRef := push.skipRef(s.Config.MatchesRef); skipRef != "" {
		msg := fmt.Sprintf("Skipped: %s != %s", skipRef, s.Config.TargetRef())
		s.Logger.Info("deploy skipped", "ref", skipRef, "branch", s.Config.Branch)
		s.record(r.Context(), &history.TriggerRecord{
			Ref:        skipRef,
			CommitHash: stringPtrOrNil(push.After),
			DeliveryID: stringPtrOrNil(deliveryID),
			Event:      stringPtrOrNil(event),
			RemoteAddr: r.RemoteAddr,
			Status:     history.StatusSkipped,
		})
		respondText(w, http.StatusOK, msg)
		return
	}

	trigger := deploy.NewTrigger(push.Ref, push.After, deliveryID, event)

	if !s.beginLaunch() {
		s.Logger.Warn("deploy refused during shutdown", "ref", trigger.Ref, "delivery_id", deliveryID)
		respondText(w, http.StatusServiceUnavailable, "Service shutting down")
		return
	}

	// The caller gets its answer before anything is spawned
	respondText(w, http.StatusOK, "Deploy started")
	if f, ok := w.(http.Flusher); ok {
		f.Flush()
	}

	s.Logger.Info("deploy triggered", "ref", trigger.Ref, "deploy_id", trigger.ID, "delivery_id", deliveryID)

	remoteAddr := r.RemoteAddr
	go func() {
		defer s.launchWg.Done()
		s.launch(context.Background(), trigger, remoteAddr)
	}()
}

// skipRef returns the ref to report when the push is for another branch, or
// empty when the deploy should go ahead.
func (p pushInfo) skipRef(matches func(string) bool) string {
	if p.OtherRef != "" {
		return p.OtherRef
	}
	if p.Ref != "" && !matches(p.Ref) {
		return p.Ref
	}
	return ""
}

// launch spawns the deploy process and records the outcome. Failures are
// logged only; the response has already been sent.
func (s *Server) launch(ctx context.Context, t deploy.Trigger, remoteAddr string) {
	record := &history.TriggerRecord{
		DeployID:   stringPtr(t.ID),
		Ref:        t.Ref,
		CommitHash: stringPtrOrNil(t.Commit),
		DeliveryID: stringPtrOrNil(t.DeliveryID),
		Event:      stringPtrOrNil(t.Event),
		RemoteAddr: remoteAddr,
	}

	proc, err := s.Launcher.Launch(t)
	if err != nil {
		s.Logger.Error("deploy launch failed", "deploy_id", t.ID, "ref", t.Ref, "error", err)
		record.Status = history.StatusLaunchFailed
		record.ErrorMessage = stringPtr(err.Error())
		s.record(ctx, record)
		return
	}

	s.Logger.Info("deploy process started", "deploy_id", t.ID, "pid", proc.PID, "command", proc.Command)
	record.Status = history.StatusStarted
	record.PID = &proc.PID
	s.record(ctx, record)

	s.publish(ctx, events.DeployTriggered{
		DeployID:    t.ID,
		Ref:         t.Ref,
		Commit:      t.Commit,
		DeliveryID:  t.DeliveryID,
		PID:         proc.PID,
		TriggeredAt: time.Now().UTC(),
	})
}

// record stores a trigger outcome when history is enabled
func (s *Server) record(ctx context.Context, record *history.TriggerRecord) {
	if s.History == nil {
		return
	}
	if _, err := s.History.RecordTrigger(ctx, record); err != nil {
		s.Logger.Error("failed to record trigger in history", "error", err, "status", record.Status)
	}
}

// publish sends a deploy notification when a bus is configured
func (s *Server) publish(ctx context.Context, ev events.DeployTriggered) {
	if s.Bus == nil {
		return
	}

	data, err := json.Marshal(ev)
	if err != nil {
		s.Logger.Error("failed to marshal deploy event", "deploy_id", ev.DeployID, "error", err)
		return
	}

	if err := s.Bus.Publish(ctx, s.Config.NATSSubject, data); err != nil {
		s.Logger.Error("failed to publish deploy event",
			"deploy_id", ev.DeployID,
			"subject", s.Config.NATSSubject,
			"error", err)
	}
}

// HandleHealth handles health check requests
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	respondText(w, http.StatusOK, "ok")
}

func notFound(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotFound)
}

// respondText sends a plain text response
func respondText(w http.ResponseWriter, statusCode int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(statusCode)
	_, _ = io.WriteString(w, body)
}

// Helper functions
func stringPtr(s string) *string {
	return &s
}

func stringPtrOrNil(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
