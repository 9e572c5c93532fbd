package export

import (
	"context"
	"fmt"

	"cloud.google.com/go/bigquery"
)

// coverageDDL creates the snapshot table. Columns follow CoverageRow.
const coverageDDL = "CREATE TABLE IF NOT EXISTS `%s.%s.%s` (\n" +
	"	snapshot_id      STRING NOT NULL,\n" +
	"	exported_at      TIMESTAMP NOT NULL,\n" +
	"	marketplace_id   STRING NOT NULL,\n" +
	"	marketplace_name STRING,\n" +
	"	kind             STRING NOT NULL,\n" +
	"	mp_id            STRING NOT NULL,\n" +
	"	external_id      STRING,\n" +
	"	name             STRING,\n" +
	"	mapped           BOOL NOT NULL,\n" +
	"	own_ids          STRING,\n" +
	"	own_names        STRING\n" +
	")\n" +
	"PARTITION BY DATE(exported_at)"

// Table writes to one BigQuery table through a shared client.
type Table struct {
	client   *bigquery.Client
	inserter *bigquery.Inserter

	project, dataset, table string
}

// NewTable opens project.dataset.table.
func NewTable(ctx context.Context, project, dataset, table string) (*Table, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewTable: creating client: %w", err)
	}
	return &Table{
		client:   client,
		inserter: client.DatasetInProject(project, dataset).Table(table).Inserter(),
		project:  project,
		dataset:  dataset,
		table:    table,
	}, nil
}

// EnsureTable creates the table when it does not exist. The dataset must.
func (t *Table) EnsureTable(ctx context.Context) error {
	query := t.client.Query(fmt.Sprintf(coverageDDL, t.project, t.dataset, t.table))
	job, err := query.Run(ctx)
	if err != nil {
		return fmt.Errorf("EnsureTable: running query: %w", err)
	}
	status, err := job.Wait(ctx)
	if err != nil {
		return fmt.Errorf("EnsureTable: waiting for job: %w", err)
	}
	if err := status.Err(); err != nil {
		return fmt.Errorf("EnsureTable: job error: %w", err)
	}
	return nil
}

// Put implements Inserter.
func (t *Table) Put(ctx context.Context, src interface{}) error {
	return t.inserter.Put(ctx, src)
}

// Close closes the BigQuery client connection.
func (t *Table) Close() error {
	if t.client != nil {
		return t.client.Close()
	}
	return nil
}

var _ Inserter = (*Table)(nil)
