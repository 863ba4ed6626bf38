package sequencing_run_gateway

import (
	"context"
	"database/sql"
	"fmt"

	dbsql "github.com/databricks/databricks-sql-go"
)

// WarehouseService stores per-sample sequencing metrics (reads, Q30, mean
// coverage, coverage uniformity) in a Databricks SQL warehouse so the lab
// can review a run before cases are submitted.
type WarehouseService struct {
	db           *sql.DB
	metricsTable string
}

// SampleMetrics is one row of the run metrics table, collected from the
// DRAGEN mapping and coverage reports of a sample.
type SampleMetrics struct {
	RunID              string
	Sample             string
	Reads              int64
	PctQ30             float64
	MeanCoverage       float64
	CoverageUniformity float64
	PctDuplicates      float64
}

func NewWarehouseService(hostname string, port int, httpPath, accessToken, metricsTable string) (*WarehouseService, error) {
	connector, err := dbsql.NewConnector(
		dbsql.WithServerHostname(hostname),
		dbsql.WithPort(port),
		dbsql.WithHTTPPath(httpPath),
		dbsql.WithAccessToken(accessToken),
	)
	if err != nil {
		return nil, fmt.Errorf("Cannot create a databricks sql connector: %v", err)
	}
	return &WarehouseService{db: sql.OpenDB(connector), metricsTable: metricsTable}, nil
}

func (w *WarehouseService) InsertSampleMetrics(ctx context.Context, metrics SampleMetrics) error {
	query := fmt.Sprintf(`insert into %s
(run_id, sample, reads, pct_q30, mean_coverage, coverage_uniformity, pct_duplicates)
values (:run_id, :sample, :reads, :pct_q30, :mean_coverage, :coverage_uniformity, :pct_duplicates)`, w.metricsTable)
	_, err := w.db.ExecContext(ctx, query,
		dbsql.Parameter{Name: "run_id", Value: metrics.RunID},
		dbsql.Parameter{Name: "sample", Value: metrics.Sample},
		dbsql.Parameter{Name: "reads", Value: metrics.Reads},
		dbsql.Parameter{Name: "pct_q30", Value: metrics.PctQ30},
		dbsql.Parameter{Name: "mean_coverage", Value: metrics.MeanCoverage},
		dbsql.Parameter{Name: "coverage_uniformity", Value: metrics.CoverageUniformity},
		dbsql.Parameter{Name: "pct_duplicates", Value: metrics.PctDuplicates})
	if err != nil {
		return fmt.Errorf("Failed to insert metrics for sample '%s': %q", metrics.Sample, err)
	}
	return nil
}

// GetRunMetrics returns the stored metrics of every sample of a run.
func (w *WarehouseService) GetRunMetrics(ctx context.Context, runID string) ([]SampleMetrics, error) {
	query := fmt.Sprintf(`select run_id, sample, reads, pct_q30, mean_coverage, coverage_uniformity, pct_duplicates
from %s where run_id = :run_id order by sample`, w.metricsTable)
	rows, err := w.db.QueryContext(ctx, query, dbsql.Parameter{Name: "run_id", Value: runID})
	if err != nil {
		return nil, fmt.Errorf("Failed to query metrics for run '%s': %q", runID, err)
	}
	defer rows.Close()

	var runMetrics []SampleMetrics
	for rows.Next() {
		var m SampleMetrics
		err := rows.Scan(&m.RunID, &m.Sample, &m.Reads, &m.PctQ30, &m.MeanCoverage, &m.CoverageUniformity, &m.PctDuplicates)
		if err != nil {
			return nil, fmt.Errorf("Failed to scan metrics row for run '%s': %q", runID, err)
		}
		runMetrics = append(runMetrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("Failed to read metrics rows for run '%s': %q", runID, err)
	}
	return runMetrics, nil
}

// RemoveRunMetrics drops every metrics row of a run, used before a run is
// re-collected.
func (w *WarehouseService) RemoveRunMetrics(ctx context.Context, runID string) error {
	query := fmt.Sprintf("delete from %s where run_id = :run_id", w.metricsTable)
	_, err := w.db.ExecContext(ctx, query, dbsql.Parameter{Name: "run_id", Value: runID})
	if err != nil {
		return fmt.Errorf("Failed to remove metrics for run '%s': %q", runID, err)
	}
	return nil
}

func (w *WarehouseService) Close() error {
	return w.db.Close()
}
