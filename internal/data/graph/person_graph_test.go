package graph

import (
	"context"
	"testing"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
)

func TestBuildGraphParamsDedupesAndFiltersEdges(t *testing.T) {
	persons := []evidence.Person{
		{Name: "Jane  Doe", Mentions: 3, AsSender: true},
		{Name: "jane doe", Mentions: 1},
		{Name: "Bob", Mentions: 2},
		{Name: "   "},
	}
	rels := []evidence.Relationship{
		{From: "Jane Doe", To: "bob", Count: 4},
		{From: "Jane Doe", To: "Jane Doe", Count: 1},
		{From: "Jane Doe", To: "Stranger", Count: 1},
	}
	p := buildGraphParams("case-1", "rec-1", persons, rels, "now")
	if len(p.people) != 2 {
		t.Fatalf("people: want=2 got=%d", len(p.people))
	}
	if p.people[0]["name_norm"] != "jane doe" || p.people[0]["case_id"] != "case-1" {
		t.Fatalf("first person: got=%v", p.people[0])
	}
	if len(p.talks) != 1 || p.talks[0]["to"] != "bob" || p.talks[0]["count"] != 4 {
		t.Fatalf("talks: got=%v", p.talks)
	}
}

func TestNilClientIsNoop(t *testing.T) {
	g := NewPersonGraph(nil, nil)
	if err := g.UpsertRecord(context.Background(), "c", "r", []evidence.Person{{Name: "A"}}, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := g.DeleteCase(context.Background(), "c"); err != nil {
		t.Fatalf("delete case: %v", err)
	}
	if err := g.DeleteRecord(context.Background(), "r"); err != nil {
		t.Fatalf("delete record: %v", err)
	}
}
