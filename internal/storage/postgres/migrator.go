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
	migrationLockKey  = int64(20260419)
	statusTimeout     = 5 * time.Second
	migrationTableDDL = `
CREATE TABLE IF NOT EXISTS schema_migrations (
    version BIGINT PRIMARY KEY,
    name TEXT NOT NULL,
    applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`
)

var (
	//go:embed sql/migrations/*.sql
	embeddedMigrations embed.FS

	migrationFileRe = regexp.MustCompile(`^(\d+)_([a-zA-Z0-9_]+)\.(up|down)\.sql$`)
)

type direction string

const (
	directionUp   direction = "up"
	directionDown direction = "down"
)

// migration - пара up/down скриптов одной версии схемы.
type migration struct {
	Version int64
	Name    string
	Up      string
	Down    string
}

func (m migration) script(dir direction) string {
	if dir == directionDown {
		return m.Down
	}
	return m.Up
}

// MigrationState описывает состояние схемы.
type MigrationState struct {
	// Version - максимальная применённая версия, 0 если схема пуста.
	Version int64
	// Applied - число применённых миграций.
	Applied int
	// Pending - имена миграций, которые ещё не применены.
	Pending []string
}

// MigrateUp применяет up-миграции. steps=0 применяет все.
func (s *Store) MigrateUp(ctx context.Context, steps int) error {
	return s.migrate(ctx, directionUp, steps)
}

// MigrateDown откатывает последние steps миграций (минимум одну).
func (s *Store) MigrateDown(ctx context.Context, steps int) error {
	if steps <= 0 {
		steps = 1
	}
	return s.migrate(ctx, directionDown, steps)
}

// MigrationStatus возвращает текущую версию схемы и список ожидающих миграций.
func (s *Store) MigrationStatus(ctx context.Context) (MigrationState, error) {
	if s == nil || s.db == nil {
		return MigrationState{}, errStoreNotInitialized
	}

	migrations, err := readMigrations(embeddedMigrations)
	if err != nil {
		return MigrationState{}, err
	}

	queryCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(queryCtx, migrationTableDDL); err != nil {
		return MigrationState{}, fmt.Errorf("ensure migration table: %w", err)
	}

	applied, err := appliedVersions(queryCtx, s.db)
	if err != nil {
		return MigrationState{}, err
	}

	var state MigrationState
	for _, m := range migrations {
		if !applied[m.Version] {
			state.Pending = append(state.Pending, fmt.Sprintf("%04d_%s", m.Version, m.Name))
		}
	}
	for version := range applied {
		state.Applied++
		if version > state.Version {
			state.Version = version
		}
	}
	return state, nil
}

func (s *Store) migrate(ctx context.Context, dir direction, steps int) error {
	if s == nil || s.db == nil {
		return errStoreNotInitialized
	}
	if dir != directionUp && dir != directionDown {
		return fmt.Errorf("unsupported migration direction: %s", dir)
	}

	migrations, err := readMigrations(embeddedMigrations)
	if err != nil {
		return err
	}

	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("acquire db connection: %w", err)
	}
	defer conn.Close()

	// Advisory lock не даёт двум экземплярам сервиса мигрировать одновременно.
	lockCtx, cancel := context.WithTimeout(ctx, statusTimeout)
	defer cancel()
	if _, err := conn.ExecContext(lockCtx, "SELECT pg_advisory_lock($1)", migrationLockKey); err != nil {
		return fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "SELECT pg_advisory_unlock($1)", migrationLockKey)
	}()

	if _, err := conn.ExecContext(ctx, migrationTableDDL); err != nil {
		return fmt.Errorf("ensure migration table: %w", err)
	}

	applied, err := appliedVersions(ctx, conn)
	if err != nil {
		return err
	}

	plan := planSteps(migrations, applied, dir, steps)
	for _, m := range plan {
		if err := runStep(ctx, conn, m, dir); err != nil {
			return err
		}
		log.WithFields(log.Fields{
			"version":   m.Version,
			"name":      m.Name,
			"direction": dir,
		}).Info("migration applied")
	}
	return nil
}

// planSteps выбирает миграции для применения: up идут по возрастанию версий
// среди неприменённых, down по убыванию среди применённых.
func planSteps(migrations []migration, applied map[int64]bool, dir direction, steps int) []migration {
	plan := make([]migration, 0, len(migrations))
	if dir == directionUp {
		for _, m := range migrations {
			if !applied[m.Version] {
				plan = append(plan, m)
			}
		}
	} else {
		for i := len(migrations) - 1; i >= 0; i-- {
			if applied[migrations[i].Version] {
				plan = append(plan, migrations[i])
			}
		}
	}

	if steps > 0 && len(plan) > steps {
		plan = plan[:steps]
	}
	return plan
}

func runStep(ctx context.Context, conn *sql.Conn, m migration, dir direction) error {
	tx, err := conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin migration tx (%s %d): %w", dir, m.Version, err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, m.script(dir)); err != nil {
		return fmt.Errorf("execute %s migration %d_%s: %w", dir, m.Version, m.Name, err)
	}

	if dir == directionUp {
		_, err = tx.ExecContext(ctx, `INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, NOW())`, m.Version, m.Name)
	} else {
		_, err = tx.ExecContext(ctx, `DELETE FROM schema_migrations WHERE version = $1`, m.Version)
	}
	if err != nil {
		return fmt.Errorf("record %s migration %d_%s: %w", dir, m.Version, m.Name, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s migration %d_%s: %w", dir, m.Version, m.Name, err)
	}
	return nil
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func appliedVersions(ctx context.Context, q queryer) (map[int64]bool, error) {
	rows, err := q.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return nil, fmt.Errorf("query applied migrations: %w", err)
	}
	defer rows.Close()

	result := make(map[int64]bool)
	for rows.Next() {
		var version int64
		if err := rows.Scan(&version); err != nil {
			return nil, fmt.Errorf("scan applied migration version: %w", err)
		}
		result[version] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate applied migrations: %w", err)
	}
	return result, nil
}

// readMigrations собирает пары NNNN_name.up.sql / NNNN_name.down.sql.
func readMigrations(fsys fs.FS) ([]migration, error) {
	entries, err := fs.ReadDir(fsys, migrationsDir)
	if err != nil {
		return nil, fmt.Errorf("list migrations: %w", err)
	}

	byVersion := make(map[int64]*migration)
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if err := addMigrationFile(fsys, byVersion, entry.Name()); err != nil {
			return nil, err
		}
	}
	if len(byVersion) == 0 {
		return nil, errors.New("no migration files found")
	}

	migrations := make([]migration, 0, len(byVersion))
	for _, m := range byVersion {
		if m.Up == "" || m.Down == "" {
			return nil, fmt.Errorf("migration %d_%s must have both up and down files", m.Version, m.Name)
		}
		migrations = append(migrations, *m)
	}
	sort.Slice(migrations, func(i, j int) bool { return migrations[i].Version < migrations[j].Version })
	return migrations, nil
}

func addMigrationFile(fsys fs.FS, byVersion map[int64]*migration, name string) error {
	parts := migrationFileRe.FindStringSubmatch(name)
	if parts == nil {
		return fmt.Errorf("invalid migration file name: %s", name)
	}

	version, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return fmt.Errorf("parse migration version from %s: %w", name, err)
	}

	raw, err := fs.ReadFile(fsys, path.Join(migrationsDir, name))
	if err != nil {
		return fmt.Errorf("read migration file %s: %w", name, err)
	}
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return fmt.Errorf("migration file is empty: %s", name)
	}

	m, ok := byVersion[version]
	if !ok {
		m = &migration{Version: version, Name: parts[2]}
		byVersion[version] = m
	} else if m.Name != parts[2] {
		return fmt.Errorf("migration name mismatch for version %d: %s vs %s", version, m.Name, parts[2])
	}

	target := &m.Up
	if direction(parts[3]) == directionDown {
		target = &m.Down
	}
	if *target != "" {
		return fmt.Errorf("duplicate %s migration for version %d", parts[3], version)
	}
	*target = body
	return nil
}
