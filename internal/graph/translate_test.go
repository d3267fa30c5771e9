package graph

import (
	"strings"
	"testing"
)

func TestTranslateMatchReturn_SingleNode(t *testing.T) {
	query := "MATCH (n) WHERE n.doc_id = $doc_id AND n.source_id <> $self_id " +
		"RETURN n.source_id AS source_id, n.valid_from AS valid_from, n.valid_to AS valid_to"
	params := map[string]any{"doc_id": "alpha", "self_id": "s2"}

	sqlText, args, err := translate(query, params)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.Contains(sqlText, "SELECT") || !strings.Contains(sqlText, "FROM graph_nodes n0") {
		t.Fatalf("sqlText = %q, missing expected shape", sqlText)
	}
	if len(args) != 2 {
		t.Fatalf("args = %v, want 2", args)
	}
}

func TestTranslateSet_SingleNode(t *testing.T) {
	query := "MATCH (n) WHERE n.source_id = $source_id SET n.valid_from = $valid_from, n.valid_to = $valid_to"
	params := map[string]any{"source_id": "s1", "valid_from": int64(100), "valid_to": int64(200)}

	sqlText, args, err := translate(query, params)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.HasPrefix(sqlText, "UPDATE graph_nodes") {
		t.Fatalf("sqlText = %q, want UPDATE", sqlText)
	}
	if len(args) != 3 {
		t.Fatalf("args = %v, want 3 (two SET values + one WHERE value)", args)
	}
}

func TestTranslateDelete_SingleNode(t *testing.T) {
	query := "MATCH (s) WHERE s.source_id = $source_id DETACH DELETE s"
	params := map[string]any{"source_id": "s1"}

	sqlText, args, err := translate(query, params)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.HasPrefix(sqlText, "DELETE n0, e FROM graph_nodes") {
		t.Fatalf("sqlText = %q, want a multi-table DELETE anchored on graph_nodes", sqlText)
	}
	if !strings.Contains(sqlText, "LEFT JOIN graph_edges") {
		t.Fatalf("sqlText = %q, want the edge join so relationships go with the node", sqlText)
	}
	if len(args) != 1 {
		t.Fatalf("args = %v, want 1 (predicate bound once)", args)
	}
}

func TestTranslateMatchReturn_CoalesceAndOrderBy(t *testing.T) {
	query := "MATCH (n) WHERE n.doc_id = $doc_id AND coalesce(n.id_fields, $id_fields) = $id_fields " +
		"AND n.source_id <> $self_id " +
		"RETURN n.source_id AS source_id, n.valid_from AS valid_from, n.valid_to AS valid_to " +
		"ORDER BY n.valid_from DESC"
	params := map[string]any{"doc_id": "alpha", "id_fields": `["doc_id"]`, "self_id": "s2"}

	sqlText, args, err := translate(query, params)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.Contains(sqlText, "COALESCE(") {
		t.Fatalf("sqlText = %q, want a COALESCE adoption predicate", sqlText)
	}
	if !strings.Contains(sqlText, "ORDER BY") || !strings.Contains(sqlText, "DESC") {
		t.Fatalf("sqlText = %q, want ORDER BY ... DESC", sqlText)
	}
	if len(args) != 4 {
		t.Fatalf("args = %v, want 4 (doc_id + id_fields twice + self_id)", args)
	}
}

func TestTranslateSet_SliceValue(t *testing.T) {
	query := "MATCH (n) WHERE n.source_id = $source_id SET n.version_independent_id_fields = $version_independent_id_fields"
	params := map[string]any{"source_id": "s1", "version_independent_id_fields": []string{"doc_id"}}

	sqlText, args, err := translate(query, params)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.Contains(sqlText, "CAST(? AS JSON)") {
		t.Fatalf("sqlText = %q, want a CAST(? AS JSON) for the slice-valued SET", sqlText)
	}
	if len(args) != 2 {
		t.Fatalf("args = %v, want 2 (encoded slice + WHERE value)", args)
	}
	if s, ok := args[0].(string); !ok || s != `["doc_id"]` {
		t.Fatalf("args[0] = %v, want JSON-encoded slice", args[0])
	}
}

func TestTranslate_OrphanedEntities(t *testing.T) {
	query := "MATCH (e)<-[:SUBJECT|OBJECT]-(f) WHERE f.fact_id IN $fact_ids " +
		"AND NOT EXISTS { MATCH (e)<-[:SUBJECT|OBJECT]-(other) WHERE NOT other.fact_id IN $fact_ids } " +
		"RETURN DISTINCT e.entity_id AS id"
	params := map[string]any{"fact_ids": []string{"f1", "f2"}}

	sqlText, args, err := translate(query, params)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.Contains(sqlText, "SUBJECT") || !strings.Contains(sqlText, "OBJECT") {
		t.Fatalf("sqlText = %q, want SUBJECT/OBJECT edge labels", sqlText)
	}
	if len(args) != 4 {
		t.Fatalf("args = %v, want 4 (fact_ids bound twice)", args)
	}
}

func TestTranslate_OrphanedFacts(t *testing.T) {
	query := "MATCH (f) WHERE f.fact_id IN $fact_ids AND NOT EXISTS { MATCH (f)-[:SUPPORTS]->(st) } RETURN f.fact_id AS id"
	params := map[string]any{"fact_ids": []string{"fact1"}}

	sqlText, args, err := translate(query, params)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.Contains(sqlText, "SUPPORTS") {
		t.Fatalf("sqlText = %q, want the SUPPORTS edge check", sqlText)
	}
	if !strings.Contains(sqlText, "f.node_id AS id") {
		t.Fatalf("sqlText = %q, want a fact node_id projection", sqlText)
	}
	if len(args) != 1 {
		t.Fatalf("args = %v, want 1 (fact_ids bound once)", args)
	}
}

func TestTranslate_DistinctTenantScan(t *testing.T) {
	query := "MATCH (s) RETURN DISTINCT s.tenant_id AS id"
	sqlText, args, err := translate(query, nil)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	if !strings.Contains(sqlText, "DISTINCT") {
		t.Fatalf("sqlText = %q, want DISTINCT", sqlText)
	}
	if len(args) != 0 {
		t.Fatalf("args = %v, want none", args)
	}
}
