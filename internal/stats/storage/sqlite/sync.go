package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/louisbranch/mcpstat/internal/stats/storage"
	"github.com/louisbranch/mcpstat/internal/stats/tags"
)

type metadataRow struct {
	tags             string
	shortDescription string
	fullDescription  string
	schemaVersion    int64
}

// UpdateMetadata upserts metadata for a single entity.
func (s *Store) UpdateMetadata(ctx context.Context, entry storage.MetadataUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	name := strings.TrimSpace(entry.Name)
	if name == "" {
		return fmt.Errorf("entity name is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.sqlDB.ExecContext(
		ctx,
		`INSERT INTO mcpstat_metadata
		   (name, tags, short_description, full_description, schema_version, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(name) DO UPDATE SET
		   tags = excluded.tags,
		   short_description = excluded.short_description,
		   full_description = excluded.full_description,
		   schema_version = excluded.schema_version,
		   updated_at = excluded.updated_at`,
		name,
		tags.Join(entry.Tags),
		entry.ShortDescription,
		entry.FullDescription,
		metadataSchemaVersion,
		s.now(),
	)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	return nil
}

// SyncMetadata reconciles stored metadata against the supplied known set in
// one transaction: missing entries are inserted, changed entries are updated
// (unchanged rows are left alone to avoid updated_at churn), and when
// cleanupOrphans is set, metadata absent from the set is deleted along with
// the usage history of orphaned tools. Prompt and resource usage survives
// orphan cleanup.
func (s *Store) SyncMetadata(ctx context.Context, entries []storage.MetadataUpdate, cleanupOrphans bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin metadata sync: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	rows, err := tx.QueryContext(
		ctx,
		`SELECT name, tags, short_description, full_description, schema_version
		   FROM mcpstat_metadata`,
	)
	if err != nil {
		return fmt.Errorf("load existing metadata: %w", err)
	}
	existing := make(map[string]metadataRow)
	for rows.Next() {
		var name string
		var row metadataRow
		if err := rows.Scan(&name, &row.tags, &row.shortDescription, &row.fullDescription, &row.schemaVersion); err != nil {
			rows.Close()
			return fmt.Errorf("scan existing metadata: %w", err)
		}
		existing[name] = row
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return fmt.Errorf("load existing metadata: %w", err)
	}
	rows.Close()

	now := s.now()
	known := make(map[string]struct{}, len(entries))

	for _, entry := range entries {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			continue
		}
		known[name] = struct{}{}
		joined := tags.Join(entry.Tags)

		current, ok := existing[name]
		if !ok {
			if _, err := tx.ExecContext(
				ctx,
				`INSERT INTO mcpstat_metadata
				   (name, tags, short_description, full_description, schema_version, updated_at)
				 VALUES (?, ?, ?, ?, ?, ?)`,
				name, joined, entry.ShortDescription, entry.FullDescription, metadataSchemaVersion, now,
			); err != nil {
				return fmt.Errorf("insert metadata %s: %w", name, err)
			}
			continue
		}

		if current.tags == joined &&
			current.shortDescription == entry.ShortDescription &&
			current.fullDescription == entry.FullDescription &&
			current.schemaVersion == metadataSchemaVersion {
			continue
		}
		if _, err := tx.ExecContext(
			ctx,
			`UPDATE mcpstat_metadata
			    SET tags = ?, short_description = ?, full_description = ?,
			        schema_version = ?, updated_at = ?
			  WHERE name = ?`,
			joined, entry.ShortDescription, entry.FullDescription, metadataSchemaVersion, now, name,
		); err != nil {
			return fmt.Errorf("update metadata %s: %w", name, err)
		}
	}

	if cleanupOrphans {
		var orphans []any
		for name := range existing {
			if _, ok := known[name]; !ok {
				orphans = append(orphans, name)
			}
		}
		if len(orphans) > 0 {
			placeholders := strings.TrimSuffix(strings.Repeat("?,", len(orphans)), ",")
			if _, err := tx.ExecContext(
				ctx,
				"DELETE FROM mcpstat_metadata WHERE name IN ("+placeholders+")",
				orphans...,
			); err != nil {
				return fmt.Errorf("delete orphan metadata: %w", err)
			}
			// Tool identity is metadata-bound; prompt and resource usage
			// history outlives its metadata.
			if _, err := tx.ExecContext(
				ctx,
				"DELETE FROM mcpstat_usage WHERE name IN ("+placeholders+") AND kind = 'tool'",
				orphans...,
			); err != nil {
				return fmt.Errorf("delete orphan usage: %w", err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit metadata sync: %w", err)
	}
	return nil
}
