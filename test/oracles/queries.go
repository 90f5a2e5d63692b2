package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_single_accepted_per_consignment",
			SQL: `SELECT consignment_id, COUNT(*) FROM agreements
                  WHERE status = 'ACCEPTED'
                  GROUP BY consignment_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O2_counter_has_successor",
			SQL: `SELECT a.id FROM agreements a
                  WHERE a.status = 'COUNTER'
                    AND NOT EXISTS (SELECT 1 FROM agreements n WHERE n.previous_version_id = a.id)`,
		},
		{
			Name: "O3_chain_stays_on_consignment",
			SQL: `SELECT n.id, n.consignment_id, p.consignment_id, p.status FROM agreements n
                  JOIN agreements p ON p.id = n.previous_version_id
                  WHERE p.consignment_id <> n.consignment_id OR p.status <> 'COUNTER'`,
		},
		{
			Name: "O4_every_version_has_creation_event",
			SQL: `SELECT a.id FROM agreements a
                  WHERE NOT EXISTS (
                      SELECT 1 FROM agreement_events e
                      WHERE e.agreement_id = a.id
                        AND e.type IN ('AGREEMENT_PROPOSED','AGREEMENT_COUNTERED'))`,
		},
		{
			Name: "O5_response_has_event",
			SQL: `SELECT a.id, a.status FROM agreements a
                  WHERE (a.status = 'ACCEPTED' AND NOT EXISTS (
                          SELECT 1 FROM agreement_events e WHERE e.agreement_id = a.id AND e.type = 'AGREEMENT_ACCEPTED'))
                     OR (a.status = 'REJECTED' AND NOT EXISTS (
                          SELECT 1 FROM agreement_events e WHERE e.agreement_id = a.id AND e.type = 'AGREEMENT_REJECTED'))`,
		},
		{
			Name: "O6_no_self_response",
			SQL: `SELECT a.id FROM agreements a
                  JOIN agreement_events e ON e.agreement_id = a.id
                  WHERE e.type IN ('AGREEMENT_ACCEPTED','AGREEMENT_REJECTED')
                    AND e.actor_id = a.proposed_by`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row text) or empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		has := rows.Next()
		if has {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
	}
	return "", "", nil
}
