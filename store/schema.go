package store

import "fmt"

const driverName = "sqlite"

func schemaStatements(table string) []string {
	return []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s;`, table),
		fmt.Sprintf(`CREATE TABLE %s (
                id INTEGER PRIMARY KEY AUTOINCREMENT,
                dataset_id TEXT NOT NULL,
                subject_id TEXT NOT NULL,
                segment_number INTEGER NOT NULL,
                channels INTEGER NOT NULL,
                length INTEGER NOT NULL,
                segment BLOB NOT NULL
        );`, table),
	}
}

func insertQuery(table string) string {
	return fmt.Sprintf(`INSERT INTO %s (dataset_id, subject_id, segment_number, channels, length, segment)
                VALUES (?, ?, ?, ?, ?, ?)`, table)
}

func countQuery(table string) string {
	return fmt.Sprintf(`SELECT COUNT(*) FROM %s`, table)
}

func headQuery(table string) string {
	return fmt.Sprintf(`SELECT channels, length, length(segment) AS size FROM %s WHERE id = 1`, table)
}

func getQuery(table string) string {
	return fmt.Sprintf(`SELECT dataset_id, subject_id, segment_number, channels, segment FROM %s WHERE id = ?`, table)
}

func verifyQuery(table string) string {
	return fmt.Sprintf(`SELECT
                COUNT(*) AS row_count,
                COALESCE(MIN(id), 0) AS min_id,
                COALESCE(MAX(id), 0) AS max_id,
                COUNT(DISTINCT length(segment)) AS sizes,
                COUNT(DISTINCT channels || 'x' || length) AS shapes
        FROM %s`, table)
}

func datasetStatsQuery(table string) string {
	return fmt.Sprintf(`SELECT dataset_id, COUNT(*) AS row_count, COUNT(DISTINCT subject_id) AS subjects
        FROM %s GROUP BY dataset_id ORDER BY dataset_id`, table)
}

func indexQuery(table string) string {
	return fmt.Sprintf(`SELECT id, dataset_id, subject_id FROM %s ORDER BY id`, table)
}
