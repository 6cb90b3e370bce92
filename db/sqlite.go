package db

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"winequality/wine"
)

const DefaultHistoryLimit = 20

const schema = `
    CREATE TABLE IF NOT EXISTS predictions (
        id TEXT PRIMARY KEY,
        features TEXT NOT NULL,
        label VARCHAR(20) NOT NULL,
        confidence REAL NOT NULL,
        model_type VARCHAR(50),
        created_at DATETIME NOT NULL
    );
    CREATE INDEX IF NOT EXISTS idx_predictions_created_at ON predictions(created_at);
    CREATE TABLE IF NOT EXISTS training_log (
        id INTEGER PRIMARY KEY AUTOINCREMENT,
        model_name VARCHAR(50),
        scheme VARCHAR(20),
        accuracy REAL,
        precision REAL,
        recall REAL,
        data_points INTEGER,
        trained_at DATETIME
    );
    `

// Store persists prediction history and training runs in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path. Use ":memory:" for
// a throwaway store.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, errors.New("database path required")
	}
	database, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	if path == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		database.SetMaxOpenConns(1)
	}
	if _, err := database.Exec(schema); err != nil {
		database.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	return &Store{db: database}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// PredictionRecord is one served prediction.
type PredictionRecord struct {
	ID         string      `json:"id"`
	Sample     wine.Sample `json:"features"`
	Label      wine.Label  `json:"label"`
	Confidence float64     `json:"confidence"`
	ModelType  string      `json:"model_type"`
	CreatedAt  time.Time   `json:"created_at"`
}

// SavePrediction inserts rec, filling in ID and CreatedAt when empty, and
// returns the stored record.
func (s *Store) SavePrediction(rec PredictionRecord) (PredictionRecord, error) {
	if rec.Label == "" {
		return rec, errors.New("label required")
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	features, err := json.Marshal(rec.Sample)
	if err != nil {
		return rec, err
	}
	_, err = s.db.Exec(`
        INSERT INTO predictions (id, features, label, confidence, model_type, created_at)
        VALUES (?, ?, ?, ?, ?, ?)`,
		rec.ID, string(features), string(rec.Label), rec.Confidence, rec.ModelType, rec.CreatedAt)
	if err != nil {
		return rec, err
	}
	return rec, nil
}

// RecentPredictions returns up to limit records, newest first.
func (s *Store) RecentPredictions(limit int) ([]PredictionRecord, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	rows, err := s.db.Query(`
        SELECT id, features, label, confidence, model_type, created_at
        FROM predictions
        ORDER BY created_at DESC, rowid DESC
        LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]PredictionRecord, 0)
	for rows.Next() {
		var rec PredictionRecord
		var features, label string
		var modelType sql.NullString
		if err := rows.Scan(&rec.ID, &features, &label, &rec.Confidence, &modelType, &rec.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(features), &rec.Sample); err != nil {
			return nil, fmt.Errorf("prediction %s: %w", rec.ID, err)
		}
		rec.Label = wine.Label(label)
		rec.ModelType = modelType.String
		records = append(records, rec)
	}
	return records, rows.Err()
}

type TrainingLog struct {
	ModelName  string    `json:"model_name"`
	Scheme     string    `json:"scheme"`
	Accuracy   float64   `json:"accuracy"`
	Precision  float64   `json:"precision"`
	Recall     float64   `json:"recall"`
	DataPoints int       `json:"data_points"`
	TrainedAt  time.Time `json:"trained_at"`
}

func (s *Store) SaveTrainingLog(log TrainingLog) error {
	if log.ModelName == "" {
		return errors.New("model name required")
	}
	if log.TrainedAt.IsZero() {
		log.TrainedAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
        INSERT INTO training_log (model_name, scheme, accuracy, precision, recall, data_points, trained_at)
        VALUES (?, ?, ?, ?, ?, ?, ?)`,
		log.ModelName, log.Scheme, log.Accuracy, log.Precision, log.Recall, log.DataPoints, log.TrainedAt)
	return err
}

func (s *Store) LoadTrainingLog() ([]TrainingLog, error) {
	rows, err := s.db.Query(`
        SELECT model_name, scheme, accuracy, precision, recall, data_points, trained_at
        FROM training_log
        ORDER BY trained_at DESC, id DESC
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	logs := make([]TrainingLog, 0)
	for rows.Next() {
		var log TrainingLog
		var scheme sql.NullString
		if err := rows.Scan(&log.ModelName, &scheme, &log.Accuracy, &log.Precision, &log.Recall, &log.DataPoints, &log.TrainedAt); err != nil {
			return nil, err
		}
		log.Scheme = scheme.String
		logs = append(logs, log)
	}
	return logs, rows.Err()
}
