package main

import (
	"bytes"
	"strings"
	"testing"
)

func sendResponse() map[string]any {
	return map[string]any{
		"id": "ABC234",
		"card": map[string]any{
			"send_credits": float64(2),
			"read_credits": float64(3),
			"valid":        true,
		},
	}
}

func TestPrintTableSendResponse(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, sendResponse())
	out := buf.String()

	if !strings.Contains(out, "id") || !strings.Contains(out, "ABC234") {
		t.Errorf("table should show the whisper id, got:\n%s", out)
	}
	if !strings.Contains(out, "CARD") {
		t.Errorf("table should show a card section, got:\n%s", out)
	}
	if !strings.Contains(out, "send_credits") || !strings.Contains(out, "2") {
		t.Errorf("table should show remaining send credits, got:\n%s", out)
	}
	// id renders before the card block
	if strings.Index(out, "ABC234") > strings.Index(out, "CARD") {
		t.Errorf("id should come before the card section, got:\n%s", out)
	}
}

func TestPrintTableReadResponse(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, map[string]any{
		"plaintext": "the cake is a lie",
		"card": map[string]any{
			"send_credits": float64(3),
			"read_credits": float64(2),
			"valid":        true,
		},
	})
	out := buf.String()

	if !strings.Contains(out, "the cake is a lie") {
		t.Errorf("table should show the plaintext, got:\n%s", out)
	}
	if !strings.Contains(out, "read_credits") {
		t.Errorf("table should show remaining read credits, got:\n%s", out)
	}
}

func TestPrintTableUnknownFields(t *testing.T) {
	var buf bytes.Buffer
	printTable(&buf, map[string]any{"id": "ABC234", "extra": "surprise"})
	out := buf.String()

	if !strings.Contains(out, "extra") || !strings.Contains(out, "surprise") {
		t.Errorf("unknown fields should still render, got:\n%s", out)
	}
}

func TestPrintRawFlattensCard(t *testing.T) {
	var buf bytes.Buffer
	printRaw(&buf, sendResponse())
	out := buf.String()

	if !strings.Contains(out, "id=ABC234") {
		t.Errorf("raw output should contain id=ABC234, got:\n%s", out)
	}
	if !strings.Contains(out, "card.send_credits=2") {
		t.Errorf("raw output should flatten card fields, got:\n%s", out)
	}
}

func TestPrintRawSingleField(t *testing.T) {
	outputField = "id"
	defer func() { outputField = "" }()

	var buf bytes.Buffer
	printRaw(&buf, sendResponse())
	if got := strings.TrimSpace(buf.String()); got != "ABC234" {
		t.Errorf("expected bare id, got %q", got)
	}
}

func TestPrintRawCardField(t *testing.T) {
	outputField = "read_credits"
	defer func() { outputField = "" }()

	var buf bytes.Buffer
	printRaw(&buf, sendResponse())
	if got := strings.TrimSpace(buf.String()); got != "3" {
		t.Errorf("expected remaining read credits, got %q", got)
	}
}
