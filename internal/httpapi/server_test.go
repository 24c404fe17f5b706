package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/renai-app/renai/internal/config"
	"github.com/renai-app/renai/internal/history"
	"github.com/renai-app/renai/internal/llm"
	"github.com/renai-app/renai/internal/observability"
	"github.com/renai-app/renai/internal/tts"
)

var metricsSeq atomic.Int64

func newTestMetrics() *observability.Metrics {
	return observability.NewMetrics(fmt.Sprintf("test_httpapi_%d", metricsSeq.Add(1)))
}

type stubSpeech struct {
	text      string
	err       error
	modelSize string
	changed   []string
	changeErr error
}

func (s *stubSpeech) Transcribe(context.Context, []byte) (string, error) {
	return s.text, s.err
}

func (s *stubSpeech) ChangeModel(size string) error {
	if s.changeErr != nil {
		return s.changeErr
	}
	s.changed = append(s.changed, size)
	s.modelSize = size
	return nil
}

func (s *stubSpeech) ModelSize() string { return s.modelSize }

type stubTier struct {
	name  tts.TierName
	audio []byte
	err   error
}

func (t *stubTier) Name() tts.TierName { return t.name }

func (t *stubTier) Synthesize(context.Context, string) ([]byte, error) {
	return t.audio, t.err
}

func newTestServer(t *testing.T, client llm.Client, speech SpeechToText, synth Synthesizer) (*Server, history.Store) {
	t.Helper()
	store := history.NewInMemoryStore(0)
	if synth == nil {
		pipe, err := tts.NewPipeline(5000, []tts.Tier{
			&stubTier{name: tts.TierPrimary, audio: []byte("RIFFfakewav")},
		})
		if err != nil {
			t.Fatalf("NewPipeline: %v", err)
		}
		synth = pipe
	}
	if speech == nil {
		speech = &stubSpeech{modelSize: "base.en"}
	}
	return New(config.Config{}, client, speech, synth, store, newTestMetrics()), store
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("POST %s: %v", url, err)
	}
	return resp
}

func TestChatStreamEmitsTokensThenDone(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockClient("He", "llo"), nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/chat/stream", map[string]string{"message": "hi"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q, want text/event-stream", ct)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	want := "event: token\ndata: {\"token\":\"He\"}\n\n" +
		"event: token\ndata: {\"token\":\"llo\"}\n\n" +
		"event: done\ndata: {\"done\":true}\n\n"
	if string(body) != want {
		t.Fatalf("stream body = %q, want %q", body, want)
	}
}

func TestChatStreamEmptyMessageRejectedBeforeStreaming(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockClient("unused"), nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, body := range []map[string]string{{"message": ""}, {"message": "   "}} {
		resp := postJSON(t, ts.URL+"/api/chat/stream", body)
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d, want 400", resp.StatusCode)
		}
		if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
			t.Fatalf("Content-Type = %q, want application/json", ct)
		}
		resp.Body.Close()
	}
}

func TestChatStreamMidStreamErrorStaysInBand(t *testing.T) {
	client := llm.NewMockClient("He")
	client.FailAt = 1
	srv, _ := newTestServer(t, client, nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/chat/stream", map[string]string{"message": "hi"})
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 even when generation fails mid-stream", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	want := "event: token\ndata: {\"token\":\"He\"}\n\n" +
		"event: error\ndata: {\"error\":\"mock engine failure\"}\n\n"
	if string(body) != want {
		t.Fatalf("stream body = %q, want %q", body, want)
	}
}

func TestChatStreamRecordsBothTurns(t *testing.T) {
	srv, store := newTestServer(t, llm.NewMockClient("He", "llo"), nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/chat/stream", map[string]string{"message": "hi"})
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	turns, err := store.Recent(context.Background(), 10)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(turns))
	}
	if turns[0].Role != "user" || turns[0].Content != "hi" {
		t.Fatalf("first turn = %+v, want user/hi", turns[0])
	}
	if turns[1].Role != "assistant" || turns[1].Content != "Hello" {
		t.Fatalf("second turn = %+v, want assistant/Hello", turns[1])
	}
}

func TestChatHistoryEndpoint(t *testing.T) {
	srv, store := newTestServer(t, llm.NewMockClient(), nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for i := 0; i < 3; i++ {
		if err := store.SaveTurn(context.Background(), history.Turn{Role: "user", Content: fmt.Sprintf("msg %d", i)}); err != nil {
			t.Fatalf("SaveTurn: %v", err)
		}
	}

	resp, err := http.Get(ts.URL + "/api/chat/history?limit=2")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	defer resp.Body.Close()
	var payload struct {
		Turns []history.Turn `json:"turns"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Turns) != 2 {
		t.Fatalf("got %d turns, want 2", len(payload.Turns))
	}
	if payload.Turns[1].Content != "msg 2" {
		t.Fatalf("last turn = %q, want msg 2", payload.Turns[1].Content)
	}

	resp, err = http.Get(ts.URL + "/api/chat/history?limit=zero")
	if err != nil {
		t.Fatalf("GET history: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for bad limit", resp.StatusCode)
	}
}

func TestListModels(t *testing.T) {
	client := llm.NewMockClient()
	client.Models = []llm.ModelInfo{{Name: "llama2"}, {Name: "mistral"}}
	srv, _ := newTestServer(t, client, nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/models")
	if err != nil {
		t.Fatalf("GET models: %v", err)
	}
	defer resp.Body.Close()
	var models []llm.ModelInfo
	if err := json.NewDecoder(resp.Body).Decode(&models); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(models) != 2 || models[0].Name != "llama2" {
		t.Fatalf("models = %+v", models)
	}
}

func TestHealthReportsEngineState(t *testing.T) {
	client := llm.NewMockClient()
	srv, _ := newTestServer(t, client, nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	check := func(wantStatus, wantEngine string) {
		t.Helper()
		resp, err := http.Get(ts.URL + "/health")
		if err != nil {
			t.Fatalf("GET health: %v", err)
		}
		defer resp.Body.Close()
		var payload map[string]string
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			t.Fatalf("decode: %v", err)
		}
		if payload["status"] != wantStatus || payload["engine"] != wantEngine {
			t.Fatalf("health = %v, want %s/%s", payload, wantStatus, wantEngine)
		}
	}

	check("healthy", "connected")
	client.Up = false
	check("degraded", "disconnected")
}

func multipartAudio(t *testing.T, field string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile(field, "clip.webm")
	if err != nil {
		t.Fatalf("CreateFormFile: %v", err)
	}
	if _, err := fw.Write(data); err != nil {
		t.Fatalf("write part: %v", err)
	}
	mw.Close()
	return &buf, mw.FormDataContentType()
}

func TestTranscribeReturnsText(t *testing.T) {
	speech := &stubSpeech{text: "hello world", modelSize: "base.en"}
	srv, _ := newTestServer(t, llm.NewMockClient(), speech, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, contentType := multipartAudio(t, "audio", []byte("fake-webm"))
	resp, err := http.Post(ts.URL+"/api/stt/transcribe", contentType, body)
	if err != nil {
		t.Fatalf("POST transcribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["text"] != "hello world" {
		t.Fatalf("text = %q, want hello world", payload["text"])
	}
	if _, ok := payload["warning"]; ok {
		t.Fatalf("unexpected warning in %v", payload)
	}
}

func TestTranscribeSilenceCarriesWarning(t *testing.T) {
	speech := &stubSpeech{text: "", modelSize: "base.en"}
	srv, _ := newTestServer(t, llm.NewMockClient(), speech, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	body, contentType := multipartAudio(t, "audio", []byte("fake-webm"))
	resp, err := http.Post(ts.URL+"/api/stt/transcribe", contentType, body)
	if err != nil {
		t.Fatalf("POST transcribe: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200 for silent audio", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["text"] != "" || payload["warning"] != "no speech detected" {
		t.Fatalf("payload = %v", payload)
	}
}

func TestTranscribeRejectsMissingAndEmptyUploads(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockClient(), nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	// Wrong field name.
	body, contentType := multipartAudio(t, "file", []byte("fake"))
	resp, err := http.Post(ts.URL+"/api/stt/transcribe", contentType, body)
	if err != nil {
		t.Fatalf("POST transcribe: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing field", resp.StatusCode)
	}

	// Zero-byte upload.
	body, contentType = multipartAudio(t, "audio", nil)
	resp, err = http.Post(ts.URL+"/api/stt/transcribe", contentType, body)
	if err != nil {
		t.Fatalf("POST transcribe: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for empty upload", resp.StatusCode)
	}
}

func TestChangeModel(t *testing.T) {
	speech := &stubSpeech{modelSize: "base.en"}
	srv, _ := newTestServer(t, llm.NewMockClient(), speech, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/stt/change-model", map[string]string{"model_size": "small.en"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	var payload map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["status"] != "success" || payload["model"] != "small.en" {
		t.Fatalf("payload = %v", payload)
	}
	if len(speech.changed) != 1 || speech.changed[0] != "small.en" {
		t.Fatalf("changed = %v", speech.changed)
	}

	speech.changeErr = fmt.Errorf("unknown model size %q", "huge")
	resp = postJSON(t, ts.URL+"/api/stt/change-model", map[string]string{"model_size": "huge"})
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for invalid size", resp.StatusCode)
	}
}

func TestSynthesizeReturnsWAV(t *testing.T) {
	wav := []byte("RIFFxxxxWAVEfmt fake")
	pipe, err := tts.NewPipeline(5000, []tts.Tier{&stubTier{name: tts.TierPrimary, audio: wav}})
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	srv, _ := newTestServer(t, llm.NewMockClient(), nil, pipe)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp := postJSON(t, ts.URL+"/api/tts/synthesize", map[string]string{"text": "hello"})
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "audio/wav" {
		t.Fatalf("Content-Type = %q, want audio/wav", ct)
	}
	if cd := resp.Header.Get("Content-Disposition"); !strings.Contains(cd, "speech.wav") {
		t.Fatalf("Content-Disposition = %q", cd)
	}
	body, _ := io.ReadAll(resp.Body)
	if !bytes.Equal(body, wav) {
		t.Fatalf("body = %q, want %q", body, wav)
	}
}

func TestSynthesizeRejectsInvalidText(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockClient(), nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	for _, text := range []string{"", "   ", strings.Repeat("a", 5001)} {
		resp := postJSON(t, ts.URL+"/api/tts/synthesize", map[string]string{"text": text})
		resp.Body.Close()
		if resp.StatusCode != http.StatusBadRequest {
			t.Fatalf("status = %d for %d-char text, want 400", resp.StatusCode, len(text))
		}
	}
}

func TestListVoices(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockClient(), nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/api/tts/voices")
	if err != nil {
		t.Fatalf("GET voices: %v", err)
	}
	defer resp.Body.Close()
	var payload struct {
		Voices []tts.Voice `json:"voices"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(payload.Voices) != 1 || payload.Voices[0].ID != "default" {
		t.Fatalf("voices = %+v", payload.Voices)
	}
}

func TestRootBanner(t *testing.T) {
	srv, _ := newTestServer(t, llm.NewMockClient(), nil, nil)
	ts := httptest.NewServer(srv.Router())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/")
	if err != nil {
		t.Fatalf("GET /: %v", err)
	}
	defer resp.Body.Close()
	var payload map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["message"] != "RenAI API is running" {
		t.Fatalf("banner = %v", payload)
	}
}
