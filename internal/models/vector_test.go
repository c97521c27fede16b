package models

import "testing"

func TestMetadata_Matches(t *testing.T) {
	m := Metadata{MetaCategory: "technical", MetaDifficulty: "hard"}
	tests := []struct {
		name   string
		filter map[string]string
		want   bool
	}{
		{"nil filter", nil, true},
		{"single key", map[string]string{MetaCategory: "technical"}, true},
		{"conjunctive", map[string]string{MetaCategory: "technical", MetaDifficulty: "hard"}, true},
		{"one mismatch", map[string]string{MetaCategory: "technical", MetaDifficulty: "easy"}, false},
		{"missing key", map[string]string{MetaSource: "resume"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := m.Matches(tt.filter); got != tt.want {
				t.Errorf("Matches(%v) = %v, want %v", tt.filter, got, tt.want)
			}
		})
	}
}

func TestMetadata_Clone(t *testing.T) {
	m := Metadata{"a": "1"}
	c := m.Clone()
	c["a"] = "2"
	if m["a"] != "1" {
		t.Error("clone must not alias the original")
	}
	if Metadata(nil).Clone() != nil {
		t.Error("nil clone should be nil")
	}
}
