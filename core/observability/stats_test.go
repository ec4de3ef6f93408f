package observability

import (
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

func TestStatsRecordResponse(t *testing.T) {
	s := NewStats()

	s.RecordResponse(200, 10*time.Microsecond)
	s.RecordResponse(200, 2*time.Millisecond)
	s.RecordResponse(404, time.Second)

	snap := s.Snapshot()
	if snap.Requests != 3 {
		t.Errorf("Expected 3 requests, got %d", snap.Requests)
	}
	if snap.Statuses["200"] != 2 || snap.Statuses["404"] != 1 {
		t.Errorf("Unexpected status counts: %v", snap.Statuses)
	}

	var total int64
	for _, n := range snap.Latency {
		total += n
	}
	if total != 3 {
		t.Errorf("Expected 3 latency samples, got %d", total)
	}
	if snap.Latency["lt_50µs"] != 1 || snap.Latency["ge_100ms"] != 1 {
		t.Errorf("Unexpected latency buckets: %v", snap.Latency)
	}
}

func TestSnapshotEncodings(t *testing.T) {
	s := NewStats()
	s.Accepted.Add(5)
	s.Active.Add(2)
	s.RecordResponse(403, time.Millisecond)

	snap := s.Snapshot()

	data, err := snap.MarshalJSONIndent()
	if err != nil {
		t.Fatalf("MarshalJSONIndent: %v", err)
	}
	var decoded Snapshot
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.Accepted != 5 || decoded.Statuses["403"] != 1 {
		t.Errorf("JSON lost data: %+v", decoded)
	}

	wire, err := snap.MarshalProto()
	if err != nil {
		t.Fatalf("MarshalProto: %v", err)
	}
	var st structpb.Struct
	if err := proto.Unmarshal(wire, &st); err != nil {
		t.Fatalf("proto.Unmarshal: %v", err)
	}
	if got := st.Fields["active"].GetNumberValue(); got != 2 {
		t.Errorf("Expected active=2 in proto, got %v", got)
	}
	if got := st.Fields["statuses"].GetStructValue().Fields["403"].GetNumberValue(); got != 1 {
		t.Errorf("Expected statuses.403=1 in proto, got %v", got)
	}

	if text := snap.Text(); !strings.Contains(text, "403=1") {
		t.Errorf("Text missing status counts:\n%s", text)
	}
}
