package vector

import (
	"testing"

	pb "github.com/qdrant/go-client/qdrant"
)

func TestAliasName(t *testing.T) {
	tests := map[string]string{
		"prerag_technical": "kaiwa_prerag_technical",
		"user_a@b.c":       "kaiwa_user_a_b_c",
		"rag_u1_abcd1234":  "kaiwa_rag_u1_abcd1234",
		"with space/slash": "kaiwa_with_space_slash",
	}
	for in, want := range tests {
		if got := aliasName(in); got != want {
			t.Errorf("aliasName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestPointIDStable(t *testing.T) {
	a, b := pointID("technical_0123456789abcdef"), pointID("technical_0123456789abcdef")
	if a != b {
		t.Error("point id should be deterministic")
	}
	if a == pointID("technical_other") {
		t.Error("distinct ids should map to distinct points")
	}
}

func TestBuildFilter(t *testing.T) {
	if buildFilter(nil) != nil {
		t.Error("empty filter should be nil")
	}
	f := buildFilter(map[string]string{"source": "resume", "category": "technical"})
	if len(f.GetMust()) != 2 {
		t.Fatalf("must conditions: %d", len(f.GetMust()))
	}
	if f.GetMust()[0].GetField().GetKey() != "category" {
		t.Errorf("conditions should be sorted by key, got %s", f.GetMust()[0].GetField().GetKey())
	}
}

func TestRecordFromPayload(t *testing.T) {
	payload := map[string]*pb.Value{
		payloadID:       {Kind: &pb.Value_StringValue{StringValue: "q1"}},
		payloadDocument: {Kind: &pb.Value_StringValue{StringValue: "Tell me about yourself"}},
		payloadOrdinal:  {Kind: &pb.Value_IntegerValue{IntegerValue: 7}},
		"category":      {Kind: &pb.Value_StringValue{StringValue: "self_introduction"}},
	}
	r, ord := recordFromPayload(payload)
	if r.ID != "q1" || r.Document != "Tell me about yourself" || ord != 7 {
		t.Errorf("record = %+v ord=%d", r, ord)
	}
	if r.Metadata["category"] != "self_introduction" || len(r.Metadata) != 1 {
		t.Errorf("metadata = %v", r.Metadata)
	}
}
