package app

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/sirupsen/logrus"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/searchktools/tiny-httpd/config"
	"github.com/searchktools/tiny-httpd/core/observability"
)

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.LogLevel = "debug"
	cfg.LogFormat = "json"

	var buf bytes.Buffer
	log, err := NewLogger(cfg, &buf)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	if log.GetLevel() != logrus.DebugLevel {
		t.Errorf("Expected debug level, got %s", log.GetLevel())
	}

	log.WithField("fd", 7).Debug("hello")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("Expected JSON log line, got %q", buf.String())
	}
	if entry["msg"] != "hello" || entry["fd"] != float64(7) {
		t.Errorf("Unexpected log entry %v", entry)
	}

	cfg.LogLevel = "chatty"
	if _, err := NewLogger(cfg, &buf); err == nil {
		t.Error("Expected error for unknown level")
	}
}

func TestWriteStats(t *testing.T) {
	s := observability.NewStats()
	s.Accepted.Inc()
	s.RecordResponse(200, time.Millisecond)
	snap := s.Snapshot()

	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "stats.json")
	if err := WriteStats(jsonPath, snap); err != nil {
		t.Fatalf("WriteStats json: %v", err)
	}
	data, _ := os.ReadFile(jsonPath)
	var decoded observability.Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("decode json: %v", err)
	}
	if decoded.Requests != 1 || decoded.Statuses["200"] != 1 {
		t.Errorf("Unexpected decoded snapshot %+v", decoded)
	}

	pbPath := filepath.Join(dir, "stats.pb")
	if err := WriteStats(pbPath, snap); err != nil {
		t.Fatalf("WriteStats pb: %v", err)
	}
	data, _ = os.ReadFile(pbPath)
	var st structpb.Struct
	if err := proto.Unmarshal(data, &st); err != nil {
		t.Fatalf("decode protobuf: %v", err)
	}
	if got := st.Fields["accepted"].GetNumberValue(); got != 1 {
		t.Errorf("Expected accepted 1, got %v", got)
	}

	if err := WriteStats(filepath.Join(dir, "missing", "x.json"), snap); err == nil || !strings.Contains(err.Error(), "write statistics") {
		t.Errorf("Expected write error, got %v", err)
	}
}

func TestNewBuildsEngine(t *testing.T) {
	cfg := config.Default()
	cfg.Port = 8080

	a, err := New(cfg)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if a.Engine() == nil {
		t.Fatal("Expected engine")
	}

	cfg.Workers = 0
	if _, err := New(cfg); err == nil {
		t.Error("Expected error for zero workers")
	}
}
