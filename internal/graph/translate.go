package graph

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/lexigraph/versionengine/internal/store"
)

// translate turns one of the MATCH/WHERE/RETURN|SET|DETACH DELETE query
// shapes this module's own callers build (via store.GraphStore's
// NodeID/PropertyAssignment helpers) into parameterized SQL against the
// graph_nodes/graph_edges schema:
//
//	graph_nodes(node_id VARCHAR PK, label VARCHAR, properties JSON)
//	graph_edges(from_id VARCHAR, to_id VARCHAR, label VARCHAR)
//
// It is not a general Cypher parser — only the finite set of shapes the
// version manager, deletion planner, and upgrader emit are recognized.
// Three shapes with no clean MATCH-chain equivalent (the orphaned-entity
// NOT EXISTS query, the orphaned-fact NOT EXISTS query, and the DISTINCT
// tenant scan) are special-cased below rather than forced through the
// generic path.
func translate(query string, params map[string]any) (string, []any, error) {
	switch {
	case strings.Contains(query, "RETURN DISTINCT e.entity_id"):
		return translateOrphanedEntities(params)
	case strings.Contains(query, "NOT EXISTS") && strings.Contains(query, "f.fact_id"):
		return translateOrphanedFacts(params)
	case strings.Contains(query, "RETURN DISTINCT s.tenant_id"):
		return "SELECT DISTINCT JSON_UNQUOTE(JSON_EXTRACT(properties, '$.tenant_id')) AS id FROM graph_nodes", nil, nil
	case strings.Contains(query, "DETACH DELETE"):
		return translateDelete(query, params)
	case strings.Contains(query, " SET "):
		return translateSet(query, params)
	case strings.Contains(query, " RETURN "):
		return translateMatchReturn(query, params)
	default:
		return "", nil, fmt.Errorf("graph: unrecognized query shape: %s", query)
	}
}

var (
	reHopAlias = regexp.MustCompile(`\(([a-zA-Z][a-zA-Z0-9]*)\)`)
	reHopEdge  = regexp.MustCompile(`-\[:([A-Za-z_|]+)\]->`)
	rePred     = regexp.MustCompile(`^(NOT\s+)?([a-zA-Z][a-zA-Z0-9]*)\.([A-Za-z0-9_]+)\s*(<>|<=|>=|=|<|>|IN|IS NULL)\s*(\$[A-Za-z0-9_]+)?$`)
	reCoalesce = regexp.MustCompile(`^coalesce\(([a-zA-Z][a-zA-Z0-9]*)\.([A-Za-z0-9_]+),\s*(\$[A-Za-z0-9_]+)\)\s*=\s*(\$[A-Za-z0-9_]+)$`)
	reProj     = regexp.MustCompile(`^(DISTINCT\s+)?([a-zA-Z][a-zA-Z0-9]*)\.([A-Za-z0-9_]+)\s+AS\s+([A-Za-z0-9_]+)$`)
	reOrderBy  = regexp.MustCompile(`^([a-zA-Z][a-zA-Z0-9]*)\.([A-Za-z0-9_]+)(\s+(?:ASC|DESC))?$`)
)

// parseMatchChain parses the alias/edge-label sequence inside a MATCH(...)
// clause and returns one hop per alias, in the order the aliases appear
// (leftmost first, so the filtered node is last).
type hop struct {
	alias string
	label string // edge label leading to this alias's predecessor; empty for the first alias
}

func parseMatchChain(query string) []hop {
	matchClause := query
	if idx := strings.Index(query, " WHERE "); idx >= 0 {
		matchClause = query[:idx]
	}
	aliases := reHopAlias.FindAllStringSubmatch(matchClause, -1)
	edges := reHopEdge.FindAllStringSubmatch(matchClause, -1)

	hops := make([]hop, 0, len(aliases))
	for i, a := range aliases {
		h := hop{alias: a[1]}
		if i > 0 && i-1 < len(edges) {
			h.label = edges[i-1][1]
		}
		hops = append(hops, h)
	}
	return hops
}

// translateMatchReturn handles every read query: a single filtered node, or
// a chain of hops culminating in the filtered node, projecting one or more
// columns out.
func translateMatchReturn(query string, params map[string]any) (string, []any, error) {
	hops := parseMatchChain(query)
	if len(hops) == 0 {
		return "", nil, fmt.Errorf("graph: no MATCH aliases found in %s", query)
	}

	whereText, returnText, err := splitWhereReturn(query, "RETURN")
	if err != nil {
		return "", nil, err
	}

	tableAlias := make(map[string]string, len(hops))
	for i, h := range hops {
		tableAlias[h.alias] = fmt.Sprintf("n%d", i)
	}

	// The last alias parsed is the one closest to the filter predicates
	// (the source node in every chained query this module issues); its
	// table anchors the join, so hops are walked in reverse when the chain
	// has more than one link. Single-alias queries need no join at all.
	var fromClause strings.Builder
	fmt.Fprintf(&fromClause, "graph_nodes %s", tableAlias[hops[len(hops)-1].alias])
	for i := len(hops) - 1; i > 0; i-- {
		cur := tableAlias[hops[i].alias]
		next := tableAlias[hops[i-1].alias]
		fmt.Fprintf(&fromClause, " JOIN graph_edges e%d ON e%d.to_id = %s.node_id AND e%d.label = '%s'", i, i, cur, i, hops[i].label)
		fmt.Fprintf(&fromClause, " JOIN graph_nodes %s ON %s.node_id = e%d.from_id", next, next, i)
	}

	whereSQL, args, err := translatePredicates(whereText, tableAlias, params)
	if err != nil {
		return "", nil, err
	}

	selectSQL, err := translateProjections(returnText, tableAlias)
	if err != nil {
		return "", nil, err
	}

	sqlText := fmt.Sprintf("SELECT %s FROM %s", selectSQL, fromClause.String())
	if whereSQL != "" {
		sqlText += " WHERE " + whereSQL
	}
	orderSQL, err := translateOrderBy(query, tableAlias)
	if err != nil {
		return "", nil, err
	}
	sqlText += orderSQL
	if idx := strings.Index(query, " LIMIT "); idx >= 0 {
		limitParam := strings.TrimSpace(query[idx+len(" LIMIT "):])
		if v, ok := params[strings.TrimPrefix(limitParam, "$")]; ok {
			sqlText += " LIMIT ?"
			args = append(args, v)
		}
	}
	return sqlText, args, nil
}

func translateSet(query string, params map[string]any) (string, []any, error) {
	hops := parseMatchChain(query)
	if len(hops) != 1 {
		return "", nil, fmt.Errorf("graph: SET only supported on a single node, got %s", query)
	}
	alias := hops[0].alias

	whereText, setText, err := splitWhereReturn(query, "SET")
	if err != nil {
		return "", nil, err
	}

	tableAlias := map[string]string{alias: "n0"}
	whereSQL, whereArgs, err := translatePredicates(whereText, tableAlias, params)
	if err != nil {
		return "", nil, err
	}

	var setParts []string
	var setArgs []any
	for _, part := range strings.Split(setText, ",") {
		field, param, ok := parseAssignment(strings.TrimSpace(part), alias)
		if !ok {
			return "", nil, fmt.Errorf("graph: unrecognized SET assignment %q", part)
		}
		value := params[param]
		if isSliceValue(value) {
			encoded, err := json.Marshal(value)
			if err != nil {
				return "", nil, fmt.Errorf("graph: encoding %q for JSON storage: %w", field, err)
			}
			setParts = append(setParts, fmt.Sprintf("properties = JSON_SET(properties, '$.%s', CAST(? AS JSON))", field))
			setArgs = append(setArgs, string(encoded))
			continue
		}
		setParts = append(setParts, fmt.Sprintf("properties = JSON_SET(properties, '$.%s', ?)", field))
		setArgs = append(setArgs, value)
	}

	sqlText := fmt.Sprintf("UPDATE graph_nodes n0 SET %s WHERE %s", strings.Join(setParts, ", "), whereSQL)
	return sqlText, append(setArgs, whereArgs...), nil
}

func translateDelete(query string, params map[string]any) (string, []any, error) {
	hops := parseMatchChain(query)
	if len(hops) != 1 {
		return "", nil, fmt.Errorf("graph: DELETE only supported on a single node, got %s", query)
	}
	alias := hops[0].alias

	whereText, _, err := splitWhereReturn(query, "DETACH")
	if err != nil {
		return "", nil, err
	}
	tableAlias := map[string]string{alias: "n0"}
	whereSQL, args, err := translatePredicates(whereText, tableAlias, params)
	if err != nil {
		return "", nil, err
	}
	// A multi-table DELETE takes the node and every edge touching it in one
	// statement; database/sql can't run two statements in one Exec.
	sqlText := fmt.Sprintf(
		"DELETE n0, e FROM graph_nodes n0 "+
			"LEFT JOIN graph_edges e ON e.from_id = n0.node_id OR e.to_id = n0.node_id "+
			"WHERE %s",
		whereSQL,
	)
	return sqlText, args, nil
}

// splitWhereReturn splits query into its WHERE predicate text and the text
// following keyword (RETURN, SET, or DETACH), trimming both.
func splitWhereReturn(query, keyword string) (whereText, tail string, err error) {
	whereIdx := strings.Index(query, " WHERE ")
	if whereIdx < 0 {
		return "", "", fmt.Errorf("graph: no WHERE clause in %s", query)
	}
	kwIdx := strings.Index(query, " "+keyword+" ")
	if kwIdx < 0 || kwIdx < whereIdx {
		return "", "", fmt.Errorf("graph: no %s clause in %s", keyword, query)
	}
	whereText = strings.TrimSpace(query[whereIdx+len(" WHERE ") : kwIdx])
	tail = strings.TrimSpace(query[kwIdx+len(" "+keyword+" "):])
	if orderIdx := strings.Index(tail, " ORDER BY "); orderIdx >= 0 {
		tail = strings.TrimSpace(tail[:orderIdx])
	}
	if limitIdx := strings.Index(tail, " LIMIT "); limitIdx >= 0 {
		tail = strings.TrimSpace(tail[:limitIdx])
	}
	return whereText, tail, nil
}

// translateOrderBy renders query's ORDER BY clause, if it has one, against
// the already-resolved table aliases. Only a single `alias.field [DESC]`
// term is recognized — the one shape the version manager's
// existing-versions query uses.
func translateOrderBy(query string, tableAlias map[string]string) (string, error) {
	idx := strings.Index(query, " ORDER BY ")
	if idx < 0 {
		return "", nil
	}
	term := strings.TrimSpace(query[idx+len(" ORDER BY "):])
	if limitIdx := strings.Index(term, " LIMIT "); limitIdx >= 0 {
		term = strings.TrimSpace(term[:limitIdx])
	}
	m := reOrderBy.FindStringSubmatch(term)
	if m == nil {
		return "", fmt.Errorf("graph: unrecognized ORDER BY term %q", term)
	}
	alias, field, dir := m[1], m[2], strings.TrimSpace(m[3])
	ta, ok := tableAlias[alias]
	if !ok {
		return "", fmt.Errorf("graph: ORDER BY references unknown alias %q", alias)
	}
	col := fmt.Sprintf("CAST(JSON_EXTRACT(%s.properties, '$.%s') AS SIGNED)", ta, field)
	if dir != "" {
		col += " " + dir
	}
	return " ORDER BY " + col, nil
}

func parseAssignment(part, alias string) (field, param string, ok bool) {
	part = strings.TrimPrefix(part, alias+".")
	kv := strings.SplitN(part, "=", 2)
	if len(kv) != 2 {
		return "", "", false
	}
	field = strings.TrimSpace(kv[0])
	param = strings.TrimPrefix(strings.TrimSpace(kv[1]), "$")
	return field, param, true
}

func translatePredicates(whereText string, tableAlias map[string]string, params map[string]any) (string, []any, error) {
	var clauses []string
	var args []any
	for _, part := range strings.Split(whereText, " AND ") {
		part = strings.TrimSpace(part)
		if m := reCoalesce.FindStringSubmatch(part); m != nil {
			alias, field, lhs, rhs := m[1], m[2], m[3], m[4]
			if lhs != rhs {
				return "", nil, fmt.Errorf("graph: coalesce predicate %q must compare against its own default", part)
			}
			ta, ok := tableAlias[alias]
			if !ok {
				return "", nil, fmt.Errorf("graph: predicate references unknown alias %q", alias)
			}
			value := params[strings.TrimPrefix(lhs, "$")]
			clauses = append(clauses, fmt.Sprintf(
				"COALESCE(JSON_UNQUOTE(JSON_EXTRACT(%s.properties, '$.%s')), ?) = ?", ta, field))
			args = append(args, value, value)
			continue
		}
		m := rePred.FindStringSubmatch(part)
		if m == nil {
			return "", nil, fmt.Errorf("graph: unrecognized predicate %q", part)
		}
		negate, alias, field, op, paramTok := m[1] != "", m[2], m[3], m[4], m[5]
		ta, ok := tableAlias[alias]
		if !ok {
			return "", nil, fmt.Errorf("graph: predicate references unknown alias %q", alias)
		}
		col := fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(%s.properties, '$.%s'))", ta, field)
		if field == "node_id" {
			col = ta + ".node_id"
		}

		switch op {
		case "IS NULL":
			clauses = append(clauses, col+" IS NULL")
		case "IN":
			values, ok := toSlice(params[strings.TrimPrefix(paramTok, "$")])
			if !ok {
				return "", nil, fmt.Errorf("graph: IN predicate %q has no slice-valued param", part)
			}
			if len(values) == 0 {
				// An empty set: "x IN ()" matches nothing, "NOT x IN ()"
				// excludes nothing — both collapse to a constant.
				if negate {
					clauses = append(clauses, "1=1")
				} else {
					clauses = append(clauses, "1=0")
				}
				continue
			}
			placeholders := make([]string, len(values))
			for i, v := range values {
				placeholders[i] = "?"
				args = append(args, v)
			}
			clause := fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ","))
			if negate {
				clause = "NOT " + clause
			}
			clauses = append(clauses, clause)
		default:
			args = append(args, params[strings.TrimPrefix(paramTok, "$")])
			clauses = append(clauses, fmt.Sprintf("%s %s ?", col, op))
		}
	}
	return strings.Join(clauses, " AND "), args, nil
}

func translateProjections(returnText string, tableAlias map[string]string) (string, error) {
	var cols []string
	for _, part := range strings.Split(returnText, ",") {
		m := reProj.FindStringSubmatch(strings.TrimSpace(part))
		if m == nil {
			return "", fmt.Errorf("graph: unrecognized RETURN projection %q", part)
		}
		distinct, alias, field, as := m[1] != "", m[2], m[3], m[4]
		ta, ok := tableAlias[alias]
		if !ok {
			return "", fmt.Errorf("graph: RETURN references unknown alias %q", alias)
		}
		col := fmt.Sprintf("JSON_UNQUOTE(JSON_EXTRACT(%s.properties, '$.%s'))", ta, field)
		if field == "node_id" || strings.HasSuffix(field, "_id") && field == alias+"_id" {
			col = ta + ".node_id"
		}
		expr := fmt.Sprintf("%s AS %s", col, as)
		if distinct {
			expr = "DISTINCT " + expr
		}
		cols = append(cols, expr)
	}
	return strings.Join(cols, ", "), nil
}

func toSlice(v any) ([]any, bool) {
	switch s := v.(type) {
	case []string:
		out := make([]any, len(s))
		for i, x := range s {
			out[i] = x
		}
		return out, true
	case []any:
		return s, true
	default:
		return nil, false
	}
}

// isSliceValue reports whether v needs JSON encoding to be stored as a
// property: database/sql can only bind scalar driver values, so a slice
// destined for a JSON_SET assignment has to travel as an encoded string
// bound with CAST(? AS JSON) instead of a bare placeholder.
func isSliceValue(v any) bool {
	switch v.(type) {
	case []string, []any, []int64, []int:
		return true
	default:
		return false
	}
}

// translateOrphanedFacts handles the fact-orphan check: a fact in the
// caller's fact_ids set is kept only if it has no outgoing SUPPORTS edge
// left at all, meaning every statement it once supported is already gone.
func translateOrphanedFacts(params map[string]any) (string, []any, error) {
	factIDs, ok := toSlice(params["fact_ids"])
	if !ok {
		return "", nil, fmt.Errorf("graph: orphaned-fact query requires a fact_ids slice param")
	}
	placeholders := make([]string, len(factIDs))
	args := make([]any, len(factIDs))
	for i, id := range factIDs {
		placeholders[i] = "?"
		args[i] = id
	}
	inList := strings.Join(placeholders, ",")

	sqlText := fmt.Sprintf(`
		SELECT f.node_id AS id
		FROM graph_nodes f
		WHERE f.node_id IN (%s)
		AND NOT EXISTS (
			SELECT 1 FROM graph_edges se
			WHERE se.from_id = f.node_id AND se.label = '%s'
		)`, inList, store.RelSupports)
	return sqlText, args, nil
}

// translateOrphanedEntities handles the one query shape with no clean
// MATCH-chain translation: entities referenced only by facts in the
// caller's fact_ids set. It is expressed directly as SQL rather than
// forced through the generic hop parser.
func translateOrphanedEntities(params map[string]any) (string, []any, error) {
	factIDs, ok := toSlice(params["fact_ids"])
	if !ok {
		return "", nil, fmt.Errorf("graph: orphaned-entity query requires a fact_ids slice param")
	}
	placeholders := make([]string, len(factIDs))
	args := make([]any, 0, len(factIDs)*2)
	for i, id := range factIDs {
		placeholders[i] = "?"
		args = append(args, id)
	}
	inList := strings.Join(placeholders, ",")
	args = append(args, args...) // the fact_ids set is referenced twice below

	sqlText := fmt.Sprintf(`
		SELECT DISTINCT e.node_id AS id
		FROM graph_nodes e
		JOIN graph_edges refEdge ON refEdge.to_id = e.node_id AND refEdge.label IN ('SUBJECT','OBJECT')
		JOIN graph_nodes f ON f.node_id = refEdge.from_id
		WHERE f.node_id IN (%s)
		AND NOT EXISTS (
			SELECT 1 FROM graph_edges otherEdge
			JOIN graph_nodes other ON other.node_id = otherEdge.from_id
			WHERE otherEdge.to_id = e.node_id
			AND otherEdge.label IN ('SUBJECT','OBJECT')
			AND other.node_id NOT IN (%s)
		)`, inList, inList)
	return sqlText, args, nil
}
