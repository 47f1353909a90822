package web

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"reflect"
	"testing"
)

func TestLogBufferJoinsPartialWrites(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = b.Write([]byte("gps enabled driver=sim"))
	_, _ = b.Write([]byte(" device=sim\nmqtt conn"))
	_, _ = b.Write([]byte("ected broker=tcp://x\r\n\n"))

	lines, dropped := b.Snapshot(0, "")
	want := []string{"gps enabled driver=sim device=sim", "mqtt connected broker=tcp://x"}
	if !reflect.DeepEqual(lines, want) || dropped != 0 {
		t.Fatalf("lines=%q dropped=%d", lines, dropped)
	}
}

func TestLogBufferKeepsNewestAndFilters(t *testing.T) {
	b := NewLogBuffer(3)
	for _, l := range []string{"gps a", "web b", "gps c", "gps d", "web e"} {
		_, _ = io.WriteString(b, l+"\n")
	}
	lines, dropped := b.Snapshot(10, "")
	if !reflect.DeepEqual(lines, []string{"gps c", "gps d", "web e"}) || dropped != 2 {
		t.Fatalf("lines=%q dropped=%d", lines, dropped)
	}
	lines, _ = b.Snapshot(1, "gps")
	if !reflect.DeepEqual(lines, []string{"gps d"}) {
		t.Fatalf("filtered=%q", lines)
	}
}

func TestLogBufferHandler(t *testing.T) {
	b := NewLogBuffer(10)
	_, _ = io.WriteString(b, "gps enabled\nudp forward dest=x\n")
	h := b.Handler()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/logs?contains=udp", nil))
	var resp LogsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !reflect.DeepEqual(resp.Lines, []string{"udp forward dest=x"}) {
		t.Fatalf("lines=%q", resp.Lines)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/logs?format=text&tail=1", nil))
	if got := rec.Body.String(); got != "udp forward dest=x\n" {
		t.Fatalf("text=%q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/api/logs?tail=0", nil))
	if rec.Code != 400 {
		t.Fatalf("code=%d", rec.Code)
	}
}
