package collaborators

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/api/bigquery/v2"
	"google.golang.org/api/option"

	"github.com/ocx-labs/plaid/internal/module"
)

// BigQuery implements a restricted query-execution operation, grounded on
// original_source/runtime/plaid/src/apis/gcp/bigquery.rs. Only
// SELECT-shaped queries are permitted; mutation is always out of band of
// the rule sandbox.
type BigQuery struct {
	svc       *bigquery.Service
	projectID string
}

func NewBigQuery(ctx context.Context, projectID, credentialsFile string) (*BigQuery, error) {
	opts := []option.ClientOption{option.WithScopes(bigquery.BigqueryReadonlyScope)}
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	svc, err := bigquery.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("collaborators: bigquery service: %w", err)
	}
	return &BigQuery{svc: svc, projectID: projectID}, nil
}

func (b *BigQuery) Name() string { return "bigquery" }

func (b *BigQuery) Call(ctx context.Context, caller *module.Module, operation, params string) (string, error) {
	if operation != "run_query" {
		return "", fmt.Errorf("%w: bigquery has no operation %q", ErrInvalidParams, operation)
	}
	var p struct {
		Query      string `json:"query"`
		MaxResults int64  `json:"max_results"`
	}
	if err := json.Unmarshal([]byte(params), &p); err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	if !isSelectQuery(p.Query) {
		return "", fmt.Errorf("%w: only SELECT queries are permitted", ErrInvalidParams)
	}
	req := &bigquery.QueryRequest{
		Query:      p.Query,
		MaxResults: p.MaxResults,
		UseLegacySql: func() *bool { f := false; return &f }(),
	}
	resp, err := b.svc.Jobs.Query(b.projectID, req).Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("collaborators: bigquery query: %w", err)
	}
	rows := make([][]string, 0, len(resp.Rows))
	for _, row := range resp.Rows {
		cells := make([]string, 0, len(row.F))
		for _, f := range row.F {
			if f.V != nil {
				cells = append(cells, fmt.Sprintf("%v", f.V))
			} else {
				cells = append(cells, "")
			}
		}
		rows = append(rows, cells)
	}
	encoded, _ := json.Marshal(map[string]interface{}{"rows": rows, "total_rows": resp.TotalRows})
	return string(encoded), nil
}

func isSelectQuery(q string) bool {
	trimmed := q
	for len(trimmed) > 0 && (trimmed[0] == ' ' || trimmed[0] == '\n' || trimmed[0] == '\t') {
		trimmed = trimmed[1:]
	}
	return len(trimmed) >= 6 && (trimmed[:6] == "SELECT" || trimmed[:6] == "select")
}
