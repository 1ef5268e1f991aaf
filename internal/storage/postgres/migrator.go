package postgres

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"path"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
)

const (
	migrationsDir     = "sql/migrations"
	migrationLockName = "procurement.schema_migrations"
	migrationTimeout  = 5 * time.Second

	schemaMigrationsDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	migrationFiles embed.FS

	migrationFileName = regexp.MustCompile(`^(\d{4})_([a-z0-9_]+)\.(up|down)\.sql$`)

	errStoreNotInitialized = errors.New("postgres store is not initialized")
)

// schemaMigration: версия схемы закупок с парой скриптов наката и отката.
type schemaMigration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (m schemaMigration) label() string {
	return fmt.Sprintf("%04d_%s", m.Version, m.Name)
}

// SchemaState описывает состояние схемы относительно встроенных миграций.
type SchemaState struct {
	// Version: последняя применённая версия, 0 для пустой базы.
	Version int64
	Applied int
	Pending int
}

// UpToDate сообщает, что все встроенные миграции применены.
func (st SchemaState) UpToDate() bool {
	return st.Pending == 0
}

// MigrateUp накатывает не применённые миграции по возрастанию версии.
// steps=0 накатывает все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	migrations, err := embeddedMigrations()
	if err != nil {
		return err
	}

	return s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		done := make(map[int64]struct{}, len(applied))
		for _, version := range applied {
			done[version] = struct{}{}
		}

		count := 0
		for _, m := range migrations {
			if steps > 0 && count == steps {
				break
			}
			if _, ok := done[m.Version]; ok {
				continue
			}
			err := runMigrationStep(ctx, conn, "up", m, m.Up,
				`INSERT INTO schema_migrations (version, name) VALUES ($1, $2)`, m.Version, m.Name)
			if err != nil {
				return err
			}
			count++
		}
		return nil
	})
}

// MigrateDown откатывает последние применённые миграции.
// steps<=0 откатывает одну.
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	migrations, err := embeddedMigrations()
	if err != nil {
		return err
	}
	byVersion := make(map[int64]schemaMigration, len(migrations))
	for _, m := range migrations {
		byVersion[m.Version] = m
	}

	return s.withSchemaLock(ctx, func(conn *sql.Conn) error {
		applied, err := appliedVersions(ctx, conn)
		if err != nil {
			return err
		}
		for i := len(applied) - 1; i >= 0 && steps > 0; i-- {
			m, ok := byVersion[applied[i]]
			if !ok {
				return fmt.Errorf("cannot roll back unknown schema version %d", applied[i])
			}
			err := runMigrationStep(ctx, conn, "down", m, m.Down,
				`DELETE FROM schema_migrations WHERE version = $1`, m.Version)
			if err != nil {
				return err
			}
			steps--
		}
		return nil
	})
}

// MigrationStatus сравнивает применённые версии со встроенными миграциями.
func (s *Store) MigrationStatus(ctx context.Context) (SchemaState, error) {
	if s == nil || s.db == nil {
		return SchemaState{}, errStoreNotInitialized
	}
	migrations, err := embeddedMigrations()
	if err != nil {
		return SchemaState{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, schemaMigrationsDDL); err != nil {
		return SchemaState{}, fmt.Errorf("ensure schema_migrations: %w", err)
	}
	applied, err := appliedVersions(queryCtx, s.db)
	if err != nil {
		return SchemaState{}, err
	}

	state := SchemaState{Applied: len(applied)}
	if len(applied) > 0 {
		state.Version = applied[len(applied)-1]
	}
	done := make(map[int64]struct{}, len(applied))
	for _, version := range applied {
		done[version] = struct{}{}
	}
	for _, m := range migrations {
		if _, ok := done[m.Version]; !ok {
			state.Pending++
		}
	}
	return state, nil
}

// withSchemaLock выполняет fn на выделенном соединении под advisory lock,
// чтобы параллельно стартующие экземпляры не накатывали схему одновременно.
func (s *Store) withSchemaLock(ctx context.Context, fn func(conn *sql.Conn) error) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire migration connection: %w", err)
	}
	defer conn.Close()

	lockCtx, cancel := context.WithTimeout(ctx, migrationTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, `SELECT pg_advisory_lock(hashtext($1))`, migrationLockName); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), `SELECT pg_advisory_unlock(hashtext($1))`, migrationLockName)
	}()

	if _, err := conn.ExecContext(ctx, schemaMigrationsDDL); err != nil {
		return fmt.Errorf("ensure schema_migrations: %w", err)
	}
	return fn(conn)
}

// runMigrationStep выполняет скрипт и запись в schema_migrations одной транзакцией.
func runMigrationStep(ctx context.Context, conn *sql.Conn, direction string, m schemaMigration, script, record string, args ...any) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin %s migration %s: %w", direction, m.label(), err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, script); err != nil {
		return fmt.Errorf("%s migration %s: %w", direction, m.label(), err)
	}
	if _, err := tx.ExecContext(ctx, record, args...); err != nil {
		return fmt.Errorf("record %s migration %s: %w", direction, m.label(), err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %s: %w", direction, m.label(), err)
	}

	log.WithFields(log.Fields{
		"migration": m.label(),
		"direction": direction,
	}).Info("schema migration applied")
	return nil
}

// appliedVersions возвращает применённые версии по возрастанию.
func appliedVersions(ctx context.Context, q executor) ([]int64, error) {
	rows, err := q.QueryContext(ctx, `SELECT version FROM schema_migrations ORDER BY version`)
	if err != nil {
		return nil, fmt.Errorf("query schema_migrations: %w", err)
	}
	defer rows.Close()

	var versions []int64
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan schema version: %w", err)
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate schema_migrations: %w", err)
	}
	return versions, nil
}

func embeddedMigrations() ([]schemaMigration, error) {
	return parseMigrations(migrationFiles)
}

// parseMigrations собирает пары NNNN_name.up.sql / NNNN_name.down.sql из migrationsDir.
func parseMigrations(fsys fs.FS) ([]schemaMigration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", migrationsDir, err)
	}

	byVersion := make(map[int64]*schemaMigration)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		parts := migrationFileName.FindStringSubmatch(entry.Name())
		if parts == nil {
			return nil, fmt.Errorf("unexpected file %s in %s", entry.Name(), migrationsDir)
		}
		version, err := strconv.ParseInt(parts[1], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse version of %s: %w", entry.Name(), err)
		}

		body, err := fs.ReadFile(fsys, path.Join(migrationsDir, entry.Name()))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		script := strings.TrimSpace(string(body))
		if script == "" {
			return nil, fmt.Errorf("migration %s is empty", entry.Name())
		}

		m, ok := byVersion[version]
		if !ok {
			m = &schemaMigration{Version: version, Name: parts[2]}
			byVersion[version] = m
		}
		if m.Name != parts[2] {
			return nil, fmt.Errorf("schema version %d is named both %s and %s", version, m.Name, parts[2])
		}
		if parts[3] == "up" {
			m.Up = script
		} else {
			m.Down = script
		}
	}
	if len(byVersion) == 0 {
		return nil, fmt.Errorf("no migrations in %s", migrationsDir)
	}

	migrations := make([]schemaMigration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %s needs both up and down scripts", m.label())
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}
