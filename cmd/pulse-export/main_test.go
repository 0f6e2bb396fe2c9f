package main

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"aadhaar_pulse/internal/pipeline"
)

const enrolment = `date,state,district,pincode,age_0_5,age_5_17,age_18_greater
01-01-2024,Bihar,Patna,800001,100,200,700
01-02-2024,Bihar,Patna,800001,200,400,1000
`

func TestExportWritesResult(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, pipeline.EnrolmentDir), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, pipeline.EnrolmentDir, "e.csv"), []byte(enrolment), 0o644); err != nil {
		t.Fatal(err)
	}
	out := filepath.Join(dir, "result.json")

	cmd := newRootCmd()
	cmd.SetArgs([]string{"export", "--data-dir", dir, "--out", out, "--pretty"})
	if err := cmd.Execute(); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	var res struct {
		LatestMonth string `json:"latestMonth"`
		States      []struct {
			StateID    string `json:"stateId"`
			Enrolments int64  `json:"enrolments"`
		} `json:"states"`
	}
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatal(err)
	}
	if res.LatestMonth != "2024-02" || len(res.States) != 1 || res.States[0].Enrolments != 1600 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !strings.Contains(string(raw), "\n  \"states\"") {
		t.Fatal("expected indented output")
	}
}

func TestExportMissingEnrolmentFails(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"export", "--data-dir", t.TempDir()})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error without enrolment data")
	}
}

func TestExportToUnwritablePathFails(t *testing.T) {
	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, pipeline.EnrolmentDir), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, pipeline.EnrolmentDir, "e.csv"), []byte(enrolment), 0o644); err != nil {
		t.Fatal(err)
	}
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"export", "--data-dir", dir, "--out", filepath.Join(dir, "missing", "result.json")})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected error writing into a missing directory")
	}
}

func TestWriteResultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.json")
	if err := writeResultFile(path, pipeline.Build(nil), false); err != nil {
		t.Fatal(err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(raw), `"latestMonth":""`) {
		t.Fatalf("unexpected output %s", raw)
	}
}

func TestRequestRecompute(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/ops/recompute" {
			http.NotFound(w, r)
			return
		}
		gotQuery = r.URL.RawQuery
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"id":7}`))
	}))
	defer srv.Close()

	body, err := requestRecompute(srv.Client(), srv.URL+"/", true)
	if err != nil {
		t.Fatal(err)
	}
	if body != `{"id":7}` || gotQuery != "force=true" {
		t.Fatalf("unexpected body=%q query=%q", body, gotQuery)
	}
}

func TestRequestRecomputeRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "recompute rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()
	if _, err := requestRecompute(srv.Client(), srv.URL, false); err == nil || !strings.Contains(err.Error(), "429") {
		t.Fatalf("expected 429 error, got %v", err)
	}
}
