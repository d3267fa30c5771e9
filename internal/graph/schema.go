package graph

import "context"

// schemaDDL creates the two tables the translator assumes exist. Dolt and
// MySQL both accept this dialect; JSON is a native column type in both.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS graph_nodes (
	node_id    VARCHAR(191) PRIMARY KEY,
	label      VARCHAR(64) NOT NULL,
	properties JSON NOT NULL
);
CREATE TABLE IF NOT EXISTS graph_edges (
	from_id VARCHAR(191) NOT NULL,
	to_id   VARCHAR(191) NOT NULL,
	label   VARCHAR(64) NOT NULL,
	PRIMARY KEY (from_id, to_id, label)
);
`

// EnsureSchema creates graph_nodes and graph_edges if they don't already
// exist. Safe to call on every startup.
func (s *SQLStore) EnsureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schemaDDL)
	return err
}
