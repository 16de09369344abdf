package db

import (
	"context"
	"fmt"
	"strings"

	"lie-detector/models"
	"lie-detector/utils"
)

// ReportStore persists checkpoint reports.
type ReportStore interface {
	StoreCheckpoint(ctx context.Context, report *models.CheckpointReport) error
	SessionCheckpoints(ctx context.Context, sessionID string) ([]models.CheckpointReport, error)
	RecentCheckpoints(ctx context.Context, limit int) ([]models.CheckpointReport, error)
	Close() error
}

// NewReportStore picks the backend from DB_TYPE: "sqlite" (default),
// "mongo" or "json".
func NewReportStore(ctx context.Context) (ReportStore, error) {
	dbType := strings.ToLower(utils.GetEnv("DB_TYPE", "sqlite"))

	switch dbType {
	case "mongo", "mongodb":
		uri := utils.GetEnv("MONGO_URI", "mongodb://localhost:27017")
		return NewMongoClient(ctx, uri, utils.GetEnv("MONGO_DB", "lie_detector"))
	case "json":
		return NewJSONFileStore(utils.GetEnv("DB_DSN", "data/reports.json")), nil
	case "sqlite", "sqlite3", "":
		return NewSQLiteClient(utils.GetEnv("DB_DSN", "data/reports.db"))
	default:
		return nil, fmt.Errorf("unsupported DB_TYPE %q", dbType)
	}
}
