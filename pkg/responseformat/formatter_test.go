package responseformat

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/vmihailenco/msgpack/v5"
)

type samplePayload struct {
	Station string  `json:"station"`
	Value   float64 `json:"value"`
}

func TestWriteResponseJSONDefault(t *testing.T) {
	f := NewFormatter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)

	if err := f.WriteResponse(w, req, samplePayload{Station: "07548X0009/F", Value: 81.2}, nil); err != nil {
		t.Fatal(err)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("content type: got %q", ct)
	}
	if cors := w.Header().Get("Access-Control-Allow-Origin"); cors != "*" {
		t.Errorf("CORS header: got %q", cors)
	}

	var got samplePayload
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got.Station != "07548X0009/F" || got.Value != 81.2 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestWriteResponseMsgPack(t *testing.T) {
	f := NewFormatter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/test?format=msgpack", nil)

	if err := f.WriteResponse(w, req, samplePayload{Station: "1234", Value: 12.5}, nil); err != nil {
		t.Fatal(err)
	}

	if ct := w.Header().Get("Content-Type"); ct != "application/x-msgpack" {
		t.Errorf("content type: got %q", ct)
	}

	decoder := msgpack.NewDecoder(w.Body)
	decoder.SetCustomStructTag("json")
	var got samplePayload
	if err := decoder.Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got.Station != "1234" || got.Value != 12.5 {
		t.Errorf("round trip mismatch: %+v", got)
	}
}

func TestWriteResponseExtraHeaders(t *testing.T) {
	f := NewFormatter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)

	err := f.WriteResponse(w, req, map[string]string{"ok": "yes"},
		map[string]string{"Cache-Control": "max-age=300"})
	if err != nil {
		t.Fatal(err)
	}
	if cc := w.Header().Get("Cache-Control"); cc != "max-age=300" {
		t.Errorf("Cache-Control: got %q", cc)
	}
}

func TestWriteError(t *testing.T) {
	f := NewFormatter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/test", nil)

	if err := f.WriteError(w, req, http.StatusNotFound, "no chronicle for station"); err != nil {
		t.Fatal(err)
	}

	if w.Code != http.StatusNotFound {
		t.Errorf("status: got %d", w.Code)
	}
	var got map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatal(err)
	}
	if got["error"] != "no chronicle for station" {
		t.Errorf("error payload: got %v", got)
	}
}

func TestWriteErrorMsgPack(t *testing.T) {
	f := NewFormatter()
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/test?format=msgpack", nil)

	if err := f.WriteError(w, req, http.StatusBadRequest, "missing station parameter"); err != nil {
		t.Fatal(err)
	}

	if w.Code != http.StatusBadRequest {
		t.Errorf("status: got %d", w.Code)
	}
	var got map[string]string
	if err := msgpack.NewDecoder(w.Body).Decode(&got); err != nil {
		t.Fatal(err)
	}
	if got["error"] != "missing station parameter" {
		t.Errorf("error payload: got %v", got)
	}
}
