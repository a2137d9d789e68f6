package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSendReportsErrorBodies(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Header.Get("X-API-Key") {
		case "json":
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusBadRequest)
			w.Write([]byte(`{"detail":"no data source"}`))
		default:
			w.WriteHeader(http.StatusBadGateway)
			w.Write([]byte("upstream down"))
		}
	}))
	defer server.Close()

	o := send(1, server.URL, "json", "data.csv", []byte("A\n1\n"), []string{"q"})
	if o.status != http.StatusBadRequest || o.err == nil || o.err.Error() != "no data source" {
		t.Errorf("Expected detail from JSON error body, got status %d err %v", o.status, o.err)
	}

	o = send(2, server.URL, "plain", "data.csv", []byte("A\n1\n"), []string{"q"})
	if o.err == nil || !strings.Contains(o.err.Error(), "502") || !strings.Contains(o.err.Error(), "upstream down") {
		t.Errorf("Expected status and body for non-JSON error, got %v", o.err)
	}
}

func TestSendDecodesResults(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if got := r.MultipartForm.Value["queries"]; len(got) != 2 {
			http.Error(w, "expected two queries", http.StatusBadRequest)
			return
		}
		w.Write([]byte(`[{"type":"text","content":"1","query":"a","cost":"$0.000001"},{"type":"text","content":"2","query":"b","cost":"$0.000001"}]`))
	}))
	defer server.Close()

	o := send(1, server.URL, "k", "data.csv", []byte("A\n1\n"), []string{"a", "b"})
	if o.err != nil {
		t.Fatalf("send failed: %v", o.err)
	}
	if len(o.results) != 2 || o.results[1].Content != "2" {
		t.Errorf("Unexpected results: %+v", o.results)
	}
}
