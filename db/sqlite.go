package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"lie-detector/models"
	"lie-detector/utils"

	_ "github.com/mattn/go-sqlite3" // SQLite driver registration
)

type SQLiteClient struct {
	db *sql.DB
}

func NewSQLiteClient(dataSourceName string) (*SQLiteClient, error) {
	// Extract the file path before query parameters
	dbPath := dataSourceName
	if idx := strings.Index(dataSourceName, "?"); idx != -1 {
		dbPath = dataSourceName[:idx]
	}

	dbDir := filepath.Dir(dbPath)
	if dbDir != "." && dbDir != "" && !strings.HasPrefix(dbPath, ":memory:") {
		if err := utils.CreateFolder(dbDir); err != nil {
			return nil, fmt.Errorf("error creating database directory: %s", err)
		}
	}

	// Add busy timeout param to DSN (milliseconds)
	if !strings.Contains(dataSourceName, "_busy_timeout") {
		if strings.Contains(dataSourceName, "?") {
			dataSourceName += "&_busy_timeout=5000"
		} else {
			dataSourceName += "?_busy_timeout=5000"
		}
	}

	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("error connecting to SQLite: %s", err)
	}
	// a single connection keeps in-memory databases shared across calls
	db.SetMaxOpenConns(1)

	if err := createTables(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("error creating tables: %s", err)
	}

	return &SQLiteClient{db: db}, nil
}

func createTables(db *sql.DB) error {
	createCheckpointsTable := `
    CREATE TABLE IF NOT EXISTS checkpoints (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        session_id TEXT NOT NULL,
        question INTEGER NOT NULL,
        blinks INTEGER NOT NULL DEFAULT 0,
        blink_rate REAL NOT NULL DEFAULT 0,
        blushing_count INTEGER NOT NULL DEFAULT 0,
        lip_pursing_count INTEGER NOT NULL DEFAULT 0,
        elapsed_seconds REAL NOT NULL DEFAULT 0,
        features TEXT NOT NULL,
        predicted_label TEXT NOT NULL,
        confidence REAL NOT NULL DEFAULT 0,
        calibrated INTEGER NOT NULL DEFAULT 0,
        final INTEGER NOT NULL DEFAULT 0,
        baseline TEXT,
        created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
    );
    CREATE INDEX IF NOT EXISTS idx_checkpoints_session ON checkpoints(session_id, question);
    CREATE INDEX IF NOT EXISTS idx_checkpoints_created ON checkpoints(created_at);
    `

	if _, err := db.Exec(createCheckpointsTable); err != nil {
		return fmt.Errorf("error creating checkpoints table: %s", err)
	}
	return nil
}

func (db *SQLiteClient) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// StoreCheckpoint inserts a checkpoint report and sets its ID.
func (db *SQLiteClient) StoreCheckpoint(ctx context.Context, report *models.CheckpointReport) error {
	featuresJSON, err := json.Marshal(report.Features)
	if err != nil {
		return fmt.Errorf("error marshaling features: %s", err)
	}

	var baselineJSON sql.NullString
	if report.Baseline != nil {
		data, err := json.Marshal(report.Baseline)
		if err != nil {
			return fmt.Errorf("error marshaling baseline: %s", err)
		}
		baselineJSON = sql.NullString{String: string(data), Valid: true}
	}

	if report.CreatedAt.IsZero() {
		report.CreatedAt = time.Now().UTC()
	}

	result, err := db.db.ExecContext(ctx, `
        INSERT INTO checkpoints (
            session_id, question, blinks, blink_rate, blushing_count, lip_pursing_count,
            elapsed_seconds, features, predicted_label, confidence, calibrated, final, baseline, created_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		report.SessionID, report.Question, report.Blinks, report.BlinkRate, report.BlushingCount,
		report.LipPursingCount, report.ElapsedSeconds, string(featuresJSON), report.PredictedLabel,
		report.Confidence, report.Calibrated, report.Final, baselineJSON, report.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("error storing checkpoint: %s", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("error reading checkpoint id: %s", err)
	}
	report.ID = id
	return nil
}

const checkpointColumns = `id, session_id, question, blinks, blink_rate, blushing_count, lip_pursing_count,
    elapsed_seconds, features, predicted_label, confidence, calibrated, final, baseline, created_at`

// SessionCheckpoints returns a session's checkpoints in question order.
func (db *SQLiteClient) SessionCheckpoints(ctx context.Context, sessionID string) ([]models.CheckpointReport, error) {
	rows, err := db.db.QueryContext(ctx,
		"SELECT "+checkpointColumns+" FROM checkpoints WHERE session_id = ? ORDER BY question ASC, id ASC", sessionID)
	if err != nil {
		return nil, fmt.Errorf("error querying checkpoints: %s", err)
	}
	defer rows.Close()

	return scanCheckpoints(rows)
}

// RecentCheckpoints returns the newest checkpoints across sessions.
func (db *SQLiteClient) RecentCheckpoints(ctx context.Context, limit int) ([]models.CheckpointReport, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := db.db.QueryContext(ctx,
		"SELECT "+checkpointColumns+" FROM checkpoints ORDER BY created_at DESC, id DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("error querying checkpoints: %s", err)
	}
	defer rows.Close()

	return scanCheckpoints(rows)
}

func scanCheckpoints(rows *sql.Rows) ([]models.CheckpointReport, error) {
	reports := []models.CheckpointReport{}
	for rows.Next() {
		var (
			report       models.CheckpointReport
			featuresJSON string
			baselineJSON sql.NullString
		)
		if err := rows.Scan(
			&report.ID, &report.SessionID, &report.Question, &report.Blinks, &report.BlinkRate,
			&report.BlushingCount, &report.LipPursingCount, &report.ElapsedSeconds, &featuresJSON,
			&report.PredictedLabel, &report.Confidence, &report.Calibrated, &report.Final,
			&baselineJSON, &report.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("error scanning row: %s", err)
		}
		if err := json.Unmarshal([]byte(featuresJSON), &report.Features); err != nil {
			return nil, fmt.Errorf("error unmarshaling features: %s", err)
		}
		if baselineJSON.Valid {
			report.Baseline = &models.BaselineReport{}
			if err := json.Unmarshal([]byte(baselineJSON.String), report.Baseline); err != nil {
				return nil, fmt.Errorf("error unmarshaling baseline: %s", err)
			}
		}
		reports = append(reports, report)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %s", err)
	}
	return reports, nil
}
