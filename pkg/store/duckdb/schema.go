package duckdb

import (
	"context"
	"fmt"
)

// CreateObservationsTable creates the long-format observations table
const CreateObservationsTable = `
CREATE TABLE IF NOT EXISTS observations (
    series VARCHAR NOT NULL,
    ts TIMESTAMP NOT NULL,
    value DOUBLE NOT NULL,
    PRIMARY KEY (series, ts)
);
`

// CreateRunsTable creates the scan runs table
const CreateRunsTable = `
CREATE TABLE IF NOT EXISTS runs (
    run_id VARCHAR PRIMARY KEY,
    shape VARCHAR NOT NULL,
    metric VARCHAR NOT NULL,
    threshold DOUBLE NOT NULL,
    horizon INTEGER NOT NULL,
    mode VARCHAR NOT NULL,
    samples INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL
);
`

// CreateMatchesTable creates the matched segments table
const CreateMatchesTable = `
CREATE TABLE IF NOT EXISTS matches (
    run_id VARCHAR NOT NULL,
    match_id VARCHAR NOT NULL,
    match_rank INTEGER NOT NULL,
    series VARCHAR NOT NULL,
    start_offset INTEGER NOT NULL,
    end_time TIMESTAMP NOT NULL,
    distance DOUBLE NOT NULL,
    vals VARCHAR NOT NULL,
    PRIMARY KEY (run_id, match_id)
);
`

// CreateForecastStepsTable creates the forecast table
const CreateForecastStepsTable = `
CREATE TABLE IF NOT EXISTS forecast_steps (
    run_id VARCHAR NOT NULL,
    step INTEGER NOT NULL,
    prediction DOUBLE NOT NULL,
    lower_bound DOUBLE NOT NULL,
    upper_bound DOUBLE NOT NULL,
    PRIMARY KEY (run_id, step)
);
`

// CreateScenariosTable creates the scenario clusters table
const CreateScenariosTable = `
CREATE TABLE IF NOT EXISTS scenarios (
    run_id VARCHAR NOT NULL,
    cluster_id INTEGER NOT NULL,
    probability DOUBLE NOT NULL,
    trajectory VARCHAR NOT NULL,
    members VARCHAR NOT NULL,
    PRIMARY KEY (run_id, cluster_id)
);
`

var tables = []string{"scenarios", "forecast_steps", "matches", "runs", "observations"}

// InitializeSchema creates all required tables
func InitializeSchema(ctx context.Context, c *Client) error {
	schemas := []string{
		CreateObservationsTable,
		CreateRunsTable,
		CreateMatchesTable,
		CreateForecastStepsTable,
		CreateScenariosTable,
	}

	for _, schema := range schemas {
		if err := c.Exec(ctx, schema); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return nil
}

// DropAllTables drops all tables (use with caution)
func DropAllTables(ctx context.Context, c *Client) error {
	for _, table := range tables {
		if err := c.Exec(ctx, fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", table, err)
		}
	}
	return nil
}
