package logger

import "testing"

func TestScrubFields(t *testing.T) {
	got := scrub([]interface{}{
		"api_key", "sk-123",
		"sender", "Alice",
		"content", "I will find you",
		"context_window", 12,
		"stage", "parse",
	})
	if len(got) != 10 {
		t.Fatalf("len: want=10 got=%d", len(got))
	}
	if got[1] != "[REDACTED]" {
		t.Fatalf("api_key: want=[REDACTED] got=%v", got[1])
	}
	hashed, _ := got[3].(string)
	if len(hashed) != len("hash:")+12 || hashed[:5] != "hash:" {
		t.Fatalf("sender: want hashed value got=%v", got[3])
	}
	if got[5] != "[15 chars]" {
		t.Fatalf("content: want=[15 chars] got=%v", got[5])
	}
	if got[7] != 12 {
		t.Fatalf("context_window must not be elided: got=%v", got[7])
	}
	if got[9] != "parse" {
		t.Fatalf("stage: want=parse got=%v", got[9])
	}
}

func TestScrubOddLength(t *testing.T) {
	got := scrub([]interface{}{"stage", "hash", "dangling"})
	if len(got) != 3 || got[2] != "dangling" {
		t.Fatalf("odd kv: got=%v", got)
	}
}

func TestScrubNestedMap(t *testing.T) {
	got := scrub([]interface{}{"meta", map[string]string{"person": "Bob", "page": "3"}})
	m, ok := got[1].(map[string]interface{})
	if !ok {
		t.Fatalf("meta: want map got=%T", got[1])
	}
	if m["page"] != "3" {
		t.Fatalf("page: want=3 got=%v", m["page"])
	}
	if s, _ := m["person"].(string); s == "Bob" || s == "" {
		t.Fatalf("person: want hashed got=%v", m["person"])
	}
}

func TestHashStable(t *testing.T) {
	s := scrubber{enabled: true}
	if a, b := s.hash("bob"), s.hash("bob"); a != b {
		t.Fatalf("hash stability: want=%s got=%s", a, b)
	}
	if s.hash("") != "" {
		t.Fatalf("empty: want empty string")
	}
	salted := scrubber{enabled: true, salt: "pepper"}
	if salted.hash("bob") == s.hash("bob") {
		t.Fatalf("salt should change the digest")
	}
}
