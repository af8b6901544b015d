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

// All returns the SQL invariants checked while actors run. Each query
// returns rows only when the invariant is violated.
func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_terminal_states_exclusive",
			SQL: `SELECT request_id FROM verification_requests
                  WHERE completed AND refunded`,
		},
		{
			Name: "O2_single_settlement_per_request",
			SQL: `SELECT payload->>'request_id', COUNT(*) FROM outbox
                  WHERE topic IN ('verification.completed','payout.timeout_refund')
                    AND payload ? 'request_id'
                  GROUP BY 1 HAVING COUNT(*) > 1`,
		},
		{
			Name: "O3_single_settlement_per_dispute",
			SQL: `SELECT payload->>'work_id', payload->>'dispute_id', COUNT(*) FROM outbox
                  WHERE (topic = 'dispute.resolved'
                         OR (topic = 'payout.timeout_refund' AND payload ? 'dispute_id'))
                  GROUP BY 1, 2 HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_no_negative_balances",
			SQL:  `SELECT account_id, amount FROM escrow_balances WHERE amount < 0`,
		},
		{
			Name: "O5_pending_settlement_matches_state",
			SQL: `SELECT p.request_id FROM pending_requests p
                  LEFT JOIN verification_requests v ON v.request_id = p.request_id
                  LEFT JOIN disputes d ON d.oracle_request_id = p.request_id
                  WHERE (p.kind = 'verification' AND
                         (v.request_id IS NULL OR p.settled <> (v.completed OR v.refunded)))
                     OR (p.kind = 'dispute_resolution' AND
                         (d.oracle_request_id IS NULL OR p.settled <> d.resolved))`,
		},
		{
			Name: "O6_dispute_count_matches_rows",
			SQL: `SELECT w.id, w.dispute_count, COUNT(d.idx) FROM works w
                  LEFT JOIN disputes d ON d.work_id = w.id
                  GROUP BY w.id, w.dispute_count
                  HAVING w.dispute_count <> COUNT(d.idx)`,
		},
		{
			Name: "O7_dispute_indexes_dense",
			SQL: `SELECT work_id, idx FROM disputes d
                  WHERE idx >= (SELECT dispute_count FROM works WHERE id = d.work_id)
                     OR idx < 0`,
		},
		{
			Name: "O8_winner_is_a_party",
			SQL: `SELECT d.work_id, d.idx, d.winner FROM disputes d
                  JOIN works w ON w.id = d.work_id
                  WHERE d.resolved AND d.winner IS NOT NULL
                    AND d.winner <> d.challenger AND d.winner <> w.owner_account`,
		},
		{
			Name: "O9_unresolved_have_no_winner",
			SQL:  `SELECT work_id, idx FROM disputes WHERE NOT resolved AND winner IS NOT NULL`,
		},
		{
			Name: "O10_fees_nonnegative",
			SQL:  `SELECT fees_accrued FROM platform WHERE fees_accrued < 0`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample
// row text) or an empty name if all pass.
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
