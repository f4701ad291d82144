package httpapi_test

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/mnemo-ai/mnemo/internal/httpapi"
	"github.com/mnemo-ai/mnemo/internal/observe"
	"github.com/mnemo-ai/mnemo/pkg/provider/llm"
)

// readFrames collects the data payloads of an SSE response body, the literal
// "[DONE]" marker included.
func readFrames(t *testing.T, resp *http.Response) []string {
	t.Helper()
	var frames []string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		if payload, ok := strings.CutPrefix(line, "data: "); ok {
			frames = append(frames, payload)
		}
	}
	if err := scanner.Err(); err != nil {
		t.Fatalf("read SSE body: %v", err)
	}
	return frames
}

func TestChatStream_RelaysFragments(t *testing.T) {
	svc := &fakeChat{fragments: []llm.Fragment{
		{Text: "Par"},
		{Text: "is"},
		{Text: "."},
	}}
	srv, _ := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/v1/chat",
		`{"messages":[{"role":"user","content":"Capital of France?"}],"stream":true}`)

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want %q", ct, "text/event-stream")
	}

	frames := readFrames(t, resp)
	if len(frames) != 4 {
		t.Fatalf("len(frames) = %d, want 4 (3 text + [DONE]), got %q", len(frames), frames)
	}
	if frames[len(frames)-1] != "[DONE]" {
		t.Errorf("last frame = %q, want %q", frames[len(frames)-1], "[DONE]")
	}

	var full strings.Builder
	for _, f := range frames[:len(frames)-1] {
		var frame struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(f), &frame); err != nil {
			t.Fatalf("unmarshal frame %q: %v", f, err)
		}
		full.WriteString(frame.Text)
	}
	if full.String() != "Paris." {
		t.Errorf("concatenated text = %q, want %q", full.String(), "Paris.")
	}
}

func TestChatStream_MidStreamFailure(t *testing.T) {
	svc := &fakeChat{fragments: []llm.Fragment{
		{Text: "Par"},
		{Err: errors.New("connection reset")},
	}}
	srv, _ := newTestServer(t, svc)

	resp := postJSON(t, srv.URL+"/v1/chat",
		`{"messages":[{"role":"user","content":"hi"}],"stream":true}`)

	frames := readFrames(t, resp)
	if len(frames) != 3 {
		t.Fatalf("len(frames) = %d, want 3 (text + error + [DONE]), got %q", len(frames), frames)
	}

	var errFrame struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal([]byte(frames[1]), &errFrame); err != nil {
		t.Fatalf("unmarshal error frame: %v", err)
	}
	if errFrame.Error != "connection reset" {
		t.Errorf("error frame = %q, want %q", errFrame.Error, "connection reset")
	}
	if frames[2] != "[DONE]" {
		t.Errorf("last frame = %q, want %q", frames[2], "[DONE]")
	}
}

func TestChatStream_SetupFailureReturnsJSON(t *testing.T) {
	srv, _ := newTestServer(t, &fakeChat{
		streamErr: &llm.UnsupportedModelError{Model: "gpt-99"},
	})

	resp := postJSON(t, srv.URL+"/v1/chat",
		`{"messages":[{"role":"user","content":"hi"}],"model":"gpt-99","stream":true}`)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	if ct := resp.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		t.Errorf("Content-Type = %q, want JSON error envelope", ct)
	}
}

func TestChatStream_CountsFragments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	met, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	svc := &fakeChat{fragments: []llm.Fragment{
		{Text: "Par"},
		{Text: "is"},
		{Text: "."},
	}}
	mux := http.NewServeMux()
	httpapi.New(svc, nil, met, nil).Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	resp := postJSON(t, srv.URL+"/v1/chat",
		`{"messages":[{"role":"user","content":"Capital of France?"}],"stream":true}`)
	readFrames(t, resp)

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	var relayed int64 = -1
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name != "mnemo.stream.fragments" {
				continue
			}
			sum, ok := md.Data.(metricdata.Sum[int64])
			if !ok {
				t.Fatalf("stream.fragments data type = %T", md.Data)
			}
			relayed = 0
			for _, dp := range sum.DataPoints {
				relayed += dp.Value
			}
		}
	}
	if relayed != 3 {
		t.Errorf("stream fragments sum = %d, want 3", relayed)
	}
}
