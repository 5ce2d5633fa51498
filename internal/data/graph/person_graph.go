package graph

import (
	"context"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/yungbote/evidence-backend/internal/domain/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
	"github.com/yungbote/evidence-backend/internal/platform/neo4jdb"
)

// PersonGraph mirrors the people named in each evidence record, and who
// talked to whom, into Neo4j. A nil client disables every call.
type PersonGraph struct {
	client *neo4jdb.Client
	log    *logger.Logger
}

func NewPersonGraph(client *neo4jdb.Client, log *logger.Logger) *PersonGraph {
	if log == nil {
		log = logger.Nop()
	}
	return &PersonGraph{client: client, log: log.With("repo", "PersonGraph")}
}

var schema = []string{
	`CREATE CONSTRAINT evidence_case_id_unique IF NOT EXISTS FOR (c:Case) REQUIRE c.id IS UNIQUE`,
	`CREATE CONSTRAINT evidence_person_unique IF NOT EXISTS FOR (p:Person) REQUIRE (p.case_id, p.name_norm) IS UNIQUE`,
}

func (g *PersonGraph) enabled() bool {
	return g != nil && g.client.Enabled()
}

type graphParams struct {
	people   []map[string]any
	mentions []map[string]any
	talks    []map[string]any
}

func buildGraphParams(caseID, recordID string, persons []evidence.Person, rels []evidence.Relationship, now string) graphParams {
	var p graphParams
	seen := map[string]bool{}
	for _, person := range persons {
		norm := normalizeName(person.Name)
		if norm == "" || seen[norm] {
			continue
		}
		seen[norm] = true
		p.people = append(p.people, map[string]any{
			"case_id":   caseID,
			"name":      strings.TrimSpace(person.Name),
			"name_norm": norm,
			"synced_at": now,
		})
		p.mentions = append(p.mentions, map[string]any{
			"name_norm": norm,
			"mentions":  person.Mentions,
			"as_sender": person.AsSender,
		})
	}
	for _, r := range rels {
		from, to := normalizeName(r.From), normalizeName(r.To)
		if from == "" || to == "" || from == to || !seen[from] || !seen[to] {
			continue
		}
		p.talks = append(p.talks, map[string]any{"from": from, "to": to, "count": r.Count})
	}
	return p
}

func (g *PersonGraph) UpsertRecord(ctx context.Context, caseID, recordID string, persons []evidence.Person, rels []evidence.Relationship) error {
	if !g.enabled() || caseID == "" || recordID == "" {
		return nil
	}
	p := buildGraphParams(caseID, recordID, persons, rels, time.Now().UTC().Format(time.RFC3339Nano))
	if len(p.people) == 0 {
		return nil
	}

	g.client.EnsureSchema(ctx, schema...)

	return g.client.Write(ctx, func(tx neo4j.ManagedTransaction) error {
		stmts := []struct {
			q      string
			params map[string]any
		}{
			{`
MERGE (c:Case {id: $case_id})
MERGE (r:Record {id: $record_id})
SET r.case_id = $case_id
MERGE (c)-[:HAS_RECORD]->(r)
`, map[string]any{"case_id": caseID, "record_id": recordID}},
			{`
UNWIND $people AS p
MERGE (n:Person {case_id: p.case_id, name_norm: p.name_norm})
SET n += p
`, map[string]any{"people": p.people}},
			{`
UNWIND $mentions AS m
MATCH (r:Record {id: $record_id})
MATCH (n:Person {case_id: $case_id, name_norm: m.name_norm})
MERGE (r)-[x:MENTIONS]->(n)
SET x.count = m.mentions, x.as_sender = m.as_sender
`, map[string]any{"mentions": p.mentions, "record_id": recordID, "case_id": caseID}},
			{`
UNWIND $talks AS t
MATCH (a:Person {case_id: $case_id, name_norm: t.from})
MATCH (b:Person {case_id: $case_id, name_norm: t.to})
MERGE (a)-[x:COMMUNICATED_WITH {record_id: $record_id}]->(b)
SET x.count = t.count
`, map[string]any{"talks": p.talks, "record_id": recordID, "case_id": caseID}},
		}
		for _, s := range stmts {
			if err := neo4jdb.Exec(ctx, tx, s.q, s.params); err != nil {
				return err
			}
		}
		return nil
	})
}

// DeleteRecord removes a record node and the edges that cite it; people who
// are still mentioned by another record survive.
func (g *PersonGraph) DeleteRecord(ctx context.Context, recordID string) error {
	if !g.enabled() || recordID == "" {
		return nil
	}
	return g.write(ctx, `
MATCH ()-[x:COMMUNICATED_WITH {record_id: $record_id}]->() DELETE x
WITH count(*) AS _
MATCH (r:Record {id: $record_id}) DETACH DELETE r
`, map[string]any{"record_id": recordID})
}

func (g *PersonGraph) DeleteCase(ctx context.Context, caseID string) error {
	if !g.enabled() || caseID == "" {
		return nil
	}
	return g.write(ctx, `
OPTIONAL MATCH (r:Record {case_id: $case_id}) DETACH DELETE r
WITH count(*) AS _
OPTIONAL MATCH (p:Person {case_id: $case_id}) DETACH DELETE p
WITH count(*) AS _
OPTIONAL MATCH (c:Case {id: $case_id}) DETACH DELETE c
`, map[string]any{"case_id": caseID})
}

// RecordDeleted and CaseCleared let the graph follow deletes made through
// the consistency manager.
func (g *PersonGraph) RecordDeleted(ctx context.Context, rec *evidence.Record) {
	if rec == nil {
		return
	}
	if err := g.DeleteRecord(ctx, rec.ID.String()); err != nil {
		g.log.Warn("graph record delete failed", "record_id", rec.ID, "error", err)
	}
}

func (g *PersonGraph) CaseCleared(ctx context.Context, caseID string) {
	if err := g.DeleteCase(ctx, caseID); err != nil {
		g.log.Warn("graph case delete failed", "case_id", caseID, "error", err)
	}
}

func (g *PersonGraph) write(ctx context.Context, q string, params map[string]any) error {
	return g.client.Write(ctx, func(tx neo4j.ManagedTransaction) error {
		return neo4jdb.Exec(ctx, tx, q, params)
	})
}

func normalizeName(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
