package upgrade

import (
	"context"
	"fmt"

	"github.com/lexigraph/versionengine/internal/store"
)

// TenantIDs lists every distinct tenant_id value present in the graph, for
// a caller driving Upgrader.Upgrade across a multi-tenant deployment one
// tenant at a time.
func TenantIDs(ctx context.Context, graph store.GraphStore) ([]string, error) {
	rows, err := graph.ExecuteQuery(ctx, "MATCH (s) RETURN DISTINCT s.tenant_id AS id", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrBackend, err)
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		if id, ok := row["id"].(string); ok && id != "" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

// UpgradeAllTenants runs u.Upgrade for every tenant in the graph, returning
// one TenantStats per tenant whose upgrade returned no error, in the order
// TenantIDs reports them. It keeps going across a tenant-level failure (the
// failed tenant is logged and has no entry in the result) so one bad tenant
// doesn't block the rest of the fleet.
func UpgradeAllTenants(ctx context.Context, u *Upgrader, graph store.GraphStore) ([]TenantStats, error) {
	tenantIDs, err := TenantIDs(ctx, graph)
	if err != nil {
		return nil, err
	}
	results := make([]TenantStats, 0, len(tenantIDs))
	for _, tenantID := range tenantIDs {
		stats, err := u.Upgrade(ctx, tenantID)
		if err != nil {
			u.log.Error("tenant upgrade aborted", "tenant_id", tenantID, "error", err)
			continue
		}
		results = append(results, stats)
	}
	return results, nil
}
