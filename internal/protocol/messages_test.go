package protocol

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParseTranscriptPartial(t *testing.T) {
	raw := []byte(`{"status":"partial","text":"qual o valor"}`)
	msg, err := ParseTranscript(raw)
	if err != nil {
		t.Fatalf("ParseTranscript() error = %v", err)
	}
	if msg.Final() {
		t.Fatalf("partial frame reported final")
	}
	if msg.Text != "qual o valor" {
		t.Fatalf("Text = %q", msg.Text)
	}
}

func TestParseTranscriptFinalWithWords(t *testing.T) {
	raw := []byte(`{"status":"final","text":"qual o valor do dólar","words":[{"word":"qual","start":0,"end":0.2},{"word":"o","start":0.2,"end":0.25}]}`)
	msg, err := ParseTranscript(raw)
	if err != nil {
		t.Fatalf("ParseTranscript() error = %v", err)
	}
	if !msg.Final() {
		t.Fatalf("final frame not reported final")
	}
	if len(msg.Words) != 2 || msg.Words[0].Word != "qual" || msg.Words[1].End != 0.25 {
		t.Fatalf("unexpected words: %+v", msg.Words)
	}
}

func TestParseTranscriptRejectsUnknownStatus(t *testing.T) {
	if _, err := ParseTranscript([]byte(`{"status":"draining","text":"x"}`)); !errors.Is(err, ErrUnknownStatus) {
		t.Fatalf("error = %v, want ErrUnknownStatus", err)
	}
	if _, err := ParseTranscript([]byte(`{{`)); err == nil {
		t.Fatalf("malformed JSON accepted")
	}
}

func TestConfigMessageShape(t *testing.T) {
	raw, err := json.Marshal(NewConfigMessage("pt-BR", 16000, "pcm16"))
	if err != nil {
		t.Fatalf("marshal error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("unmarshal error = %v", err)
	}
	if decoded["type"] != "config" || decoded["language"] != "pt-BR" || decoded["format"] != "pcm16" {
		t.Fatalf("unexpected config frame: %v", decoded)
	}
	if decoded["sampleRate"] != float64(16000) {
		t.Fatalf("sampleRate = %v, want 16000", decoded["sampleRate"])
	}
}

func TestNormalizeText(t *testing.T) {
	if got := NormalizeText("   \n\t "); got != "" {
		t.Fatalf("NormalizeText(whitespace) = %q, want empty", got)
	}
	if got := NormalizeText("  olá  "); got != "olá" {
		t.Fatalf("NormalizeText = %q, want %q", got, "olá")
	}
}
