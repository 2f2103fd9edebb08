package sql

import (
	"database/sql"
	_ "embed"
	"fmt"
	"log"
)

//go:embed init.sql
var initSQL string

//go:embed narratives.sql
var narrativesSQL string

//go:embed mentions.sql
var mentionsSQL string

//go:embed stats.sql
var statsSQL string

//go:embed alerts.sql
var alertsSQL string

// Function lists for verification
var NarrativesFunctions = []string{
	"init_narratives",
	"insert_narrative",
	"select_narrative",
	"select_active_narratives",
	"select_top_narratives",
	"update_narrative_centroid",
	"max_centroid_similarity",
}

var MentionsFunctions = []string{
	"init_mentions",
	"insert_mention",
	"insert_enrichment",
	"select_mention",
	"select_enriched_mention",
	"select_unassigned_enriched",
	"select_window_mentions",
	"select_mentions_missing_enrichment",
	"count_mentions_since",
	"assign_mentions",
}

var StatsFunctions = []string{
	"init_window_stats",
	"insert_window_stats",
	"select_window_stats",
	"select_recent_window_stats",
	"select_watermark",
	"advance_watermark",
}

var AlertsFunctions = []string{
	"init_alerts",
	"insert_alert",
	"select_alerts_since",
	"select_recent_alerts",
	"acknowledge_alert",
}

// Init intializes db extensions
func Init(db *sql.DB) error {
	_, err := db.Exec(initSQL)
	if err != nil {
		return fmt.Errorf("error executing schema SQL: %w", err)
	}

	log.Println("Database extensions initialized successfully")
	return nil
}

// LoadNarrativesSql loads narrative-related SQL functions
func LoadNarrativesSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, NarrativesFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing narratives functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(narrativesSQL)
	if err != nil {
		return fmt.Errorf("error executing narratives SQL: %w", err)
	}

	exist, err := checkFunctions(db, NarrativesFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL narratives functions loaded successfully")
	return nil
}

// LoadMentionsSql loads mention-related SQL functions
func LoadMentionsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, MentionsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing mentions functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(mentionsSQL)
	if err != nil {
		return fmt.Errorf("error executing mentions SQL: %w", err)
	}

	exist, err := checkFunctions(db, MentionsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL mentions functions loaded successfully")
	return nil
}

// LoadStatsSql loads window stats and watermark SQL functions
func LoadStatsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, StatsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing stats functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(statsSQL)
	if err != nil {
		return fmt.Errorf("error executing stats SQL: %w", err)
	}

	exist, err := checkFunctions(db, StatsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL stats functions loaded successfully")
	return nil
}

// LoadAlertsSql loads alert-related SQL functions
func LoadAlertsSql(db *sql.DB, force bool) error {
	if !force {
		exist, err := checkFunctions(db, AlertsFunctions)
		if err != nil {
			return fmt.Errorf("error checking existing alerts functions: %w", err)
		}
		if exist {
			return nil
		}
	}

	_, err := db.Exec(alertsSQL)
	if err != nil {
		return fmt.Errorf("error executing alerts SQL: %w", err)
	}

	exist, err := checkFunctions(db, AlertsFunctions)
	if err != nil {
		return fmt.Errorf("error checking existing functions: %w", err)
	}
	if !exist {
		return fmt.Errorf("not all required SQL functions were created")
	}

	log.Println("SQL alerts functions loaded successfully")
	return nil
}

// LoadAllSql loads all SQL functions
func LoadAllSql(db *sql.DB, force bool) error {
	if err := LoadNarrativesSql(db, force); err != nil {
		return err
	}

	if err := LoadMentionsSql(db, force); err != nil {
		return err
	}

	if err := LoadStatsSql(db, force); err != nil {
		return err
	}

	if err := LoadAlertsSql(db, force); err != nil {
		return err
	}

	return nil
}

// checkFunctions verifies that all required functions exist in the database
func checkFunctions(db *sql.DB, sqlFunctions []string) (bool, error) {
	var allExist bool
	for _, f := range sqlFunctions {
		err := db.QueryRow(
			`SELECT EXISTS(SELECT 1 FROM pg_proc WHERE proname = $1);`,
			f,
		).Scan(&allExist)
		if err != nil {
			return false, fmt.Errorf("error checking existence of function %s: %w", f, err)
		}
		if !allExist {
			log.Printf("Function %s does not exist", f)
			break
		}
	}
	return allExist, nil
}
