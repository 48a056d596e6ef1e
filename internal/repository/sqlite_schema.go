package repository

// Timestamps are declared DATETIME so the driver hands them back as time.Time.
var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS predictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		current_price REAL NOT NULL,
		predicted_direction TEXT NOT NULL,
		predicted_target REAL NOT NULL,
		confidence INTEGER NOT NULL,
		reasoning TEXT NOT NULL DEFAULT '',
		source TEXT NOT NULL DEFAULT 'claude',
		resolved_at DATETIME,
		actual_price REAL,
		actual_direction TEXT,
		direction_correct BOOLEAN,
		target_error_pct REAL,
		calibration_score REAL,
		is_extreme BOOLEAN,
		extreme_reason TEXT,
		learning_extracted TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_predictions_pending
		ON predictions (resolved_at, is_extreme, timestamp)`,
	`CREATE TABLE IF NOT EXISTS meta_learnings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		predictions_analyzed INTEGER NOT NULL DEFAULT 0,
		learnings_analyzed INTEGER NOT NULL DEFAULT 0,
		accuracy_at_analysis REAL NOT NULL DEFAULT 0,
		pattern_type TEXT NOT NULL DEFAULT 'unknown',
		pattern_description TEXT NOT NULL DEFAULT '',
		meta_rule TEXT NOT NULL DEFAULT '',
		confidence_score REAL NOT NULL DEFAULT 0.5,
		is_active BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS meta_rule_performance (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		meta_learning_id INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		predictions_since INTEGER NOT NULL DEFAULT 0,
		accuracy_before REAL NOT NULL DEFAULT 0,
		accuracy_after REAL NOT NULL DEFAULT 0,
		improvement REAL NOT NULL DEFAULT 0,
		FOREIGN KEY (meta_learning_id) REFERENCES meta_learnings(id)
	)`,
	`CREATE TABLE IF NOT EXISTS verifier_predictions (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prediction_id INTEGER NOT NULL,
		timestamp DATETIME NOT NULL,
		agrees_with_primary BOOLEAN NOT NULL,
		confidence_primary_correct INTEGER NOT NULL,
		reasoning TEXT NOT NULL DEFAULT '',
		concerns TEXT NOT NULL DEFAULT '[]',
		meta_rule_violations TEXT NOT NULL DEFAULT '[]',
		resolved_at DATETIME,
		verifier_was_correct BOOLEAN,
		is_extreme BOOLEAN,
		extreme_reason TEXT,
		learning_extracted TEXT,
		FOREIGN KEY (prediction_id) REFERENCES predictions(id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_verifier_prediction
		ON verifier_predictions (prediction_id)`,
	`CREATE TABLE IF NOT EXISTS verifier_meta_learnings (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		timestamp DATETIME NOT NULL,
		predictions_analyzed INTEGER NOT NULL DEFAULT 0,
		learnings_analyzed INTEGER NOT NULL DEFAULT 0,
		accuracy_at_analysis REAL NOT NULL DEFAULT 0,
		pattern_type TEXT NOT NULL DEFAULT 'unknown',
		pattern_description TEXT NOT NULL DEFAULT '',
		meta_rule TEXT NOT NULL DEFAULT '',
		confidence_score REAL NOT NULL DEFAULT 0.5,
		is_active BOOLEAN NOT NULL DEFAULT 1
	)`,
	`CREATE TABLE IF NOT EXISTS consensus_outcomes (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		prediction_id INTEGER NOT NULL UNIQUE,
		timestamp DATETIME NOT NULL,
		models_agreed BOOLEAN NOT NULL,
		consensus_direction TEXT NOT NULL,
		consensus_confidence INTEGER NOT NULL,
		primary_correct BOOLEAN NOT NULL,
		verifier_correct BOOLEAN NOT NULL,
		outcome_type TEXT NOT NULL,
		FOREIGN KEY (prediction_id) REFERENCES predictions(id)
	)`,
}
