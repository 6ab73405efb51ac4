package domain

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestSetRepliesModerationOptionDerivesCommentsEnabled(t *testing.T) {
	e := NewEvent("https://example.com/?p=1")

	if err := e.SetRepliesModerationOption(RepliesAllowAll); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if e.CommentsEnabled == nil || !*e.CommentsEnabled {
		t.Error("allow_all must derive commentsEnabled=true")
	}

	if err := e.SetRepliesModerationOption(RepliesClosed); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if e.CommentsEnabled == nil || *e.CommentsEnabled {
		t.Error("closed must derive commentsEnabled=false")
	}
}

func TestSetCommentsEnabledDerivesOption(t *testing.T) {
	e := NewEvent("https://example.com/?p=1")

	e.SetCommentsEnabled(true)
	if e.RepliesModerationOption != RepliesAllowAll {
		t.Errorf("Expected allow_all, got %q", e.RepliesModerationOption)
	}

	e.SetCommentsEnabled(false)
	if e.RepliesModerationOption != RepliesClosed {
		t.Errorf("Expected closed, got %q", e.RepliesModerationOption)
	}
}

func TestInvalidEnumKeepsPriorValue(t *testing.T) {
	e := NewEvent("https://example.com/?p=1")

	if err := e.SetStatus(EventStatusConfirmed); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	err := e.SetStatus("MAYBE")
	if err == nil {
		t.Fatal("Invalid status must be refused")
	}
	if !errors.Is(err, ErrInvalidValue) {
		t.Errorf("Expected ErrInvalidValue, got %v", err)
	}
	if e.Status != EventStatusConfirmed {
		t.Errorf("Prior value must be retained, got %q", e.Status)
	}
}

func TestSetJoinMode(t *testing.T) {
	e := NewEvent("https://example.com/?p=1")

	for _, mode := range []string{JoinModeFree, JoinModeRestricted, JoinModeInvite, JoinModeExternal} {
		if err := e.SetJoinMode(mode); err != nil {
			t.Errorf("Mode %q should be accepted: %v", mode, err)
		}
	}

	if err := e.SetJoinMode("walk-in"); err == nil {
		t.Error("Unknown join mode must be refused")
	}
	if e.JoinMode != JoinModeExternal {
		t.Errorf("Prior value must be retained, got %q", e.JoinMode)
	}
}

func TestSetExternalParticipationURL(t *testing.T) {
	e := NewEvent("https://example.com/?p=1")

	if err := e.SetExternalParticipationURL("https://tickets.example.com/buy"); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if e.JoinMode != JoinModeExternal {
		t.Errorf("Valid external URL must imply joinMode external, got %q", e.JoinMode)
	}

	if err := e.SetExternalParticipationURL("ftp://example.com"); err == nil {
		t.Error("Non-http URL must be refused")
	}
	if err := e.SetExternalParticipationURL("not a url"); err == nil {
		t.Error("Garbage must be refused")
	}
}

func TestEventRoundTrip(t *testing.T) {
	e := NewEvent("https://example.com/?p=7")
	e.Name = "Release party"
	e.StartTime = "2026-10-01T18:00:00Z"
	e.SetCommentsEnabled(true)
	if err := e.SetStatus(EventStatusConfirmed); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}

	doc, err := e.ToJSON()
	if err != nil {
		t.Fatalf("ToJSON failed: %v", err)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal([]byte(doc), &parsed); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	if parsed["type"] != "Event" {
		t.Errorf("Expected Event type, got %v", parsed["type"])
	}
	if parsed["status"] != EventStatusConfirmed {
		t.Errorf("Expected CONFIRMED, got %v", parsed["status"])
	}
	if parsed["commentsEnabled"] != true {
		t.Errorf("Expected commentsEnabled=true, got %v", parsed["commentsEnabled"])
	}
	if parsed["repliesModerationOption"] != RepliesAllowAll {
		t.Errorf("Expected allow_all, got %v", parsed["repliesModerationOption"])
	}

	// Context must carry the vocabulary extension alongside ActivityStreams
	ctx, ok := parsed["@context"].([]interface{})
	if !ok {
		t.Fatalf("Expected context array, got %T", parsed["@context"])
	}
	if ctx[0] != ContextActivityStreams {
		t.Errorf("ActivityStreams context must come first, got %v", ctx[0])
	}
	defs, ok := ctx[len(ctx)-1].(map[string]interface{})
	if !ok {
		t.Fatalf("Expected definition map last, got %T", ctx[len(ctx)-1])
	}
	if defs["status"] != "ical:status" {
		t.Errorf("Expected ical status mapping, got %v", defs["status"])
	}
}
