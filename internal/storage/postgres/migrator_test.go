package postgres

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestReadMigrations_Success(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"sql/migrations/0002_more.up.sql":   {Data: []byte("CREATE TABLE test_b (id INT);")},
		"sql/migrations/0002_more.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_b;")},
		"sql/migrations/0001_init.up.sql":   {Data: []byte("CREATE TABLE test_a (id INT);")},
		"sql/migrations/0001_init.down.sql": {Data: []byte("DROP TABLE IF EXISTS test_a;")},
	}

	migrations, err := readMigrations(fsys)
	if err != nil {
		t.Fatalf("readMigrations failed: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 migrations, got %d", len(migrations))
	}
	if migrations[0].Version != 1 || migrations[0].Name != "init" {
		t.Fatalf("unexpected first migration: %+v", migrations[0])
	}
	if migrations[1].Version != 2 || migrations[1].script(directionDown) != "DROP TABLE IF EXISTS test_b;" {
		t.Fatalf("unexpected second migration: %+v", migrations[1])
	}
}

func TestReadMigrations_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]struct {
		fsys fstest.MapFS
		want string
	}{
		"missing down": {
			fsys: fstest.MapFS{"sql/migrations/0001_init.up.sql": {Data: []byte("SELECT 1;")}},
			want: "both up and down",
		},
		"invalid name": {
			fsys: fstest.MapFS{"sql/migrations/not_a_migration.sql": {Data: []byte("SELECT 1;")}},
			want: "invalid migration file name",
		},
		"empty body": {
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":   {Data: []byte("   \n")},
				"sql/migrations/0001_init.down.sql": {Data: []byte("SELECT 1;")},
			},
			want: "empty",
		},
		"name mismatch": {
			fsys: fstest.MapFS{
				"sql/migrations/0001_init.up.sql":    {Data: []byte("SELECT 1;")},
				"sql/migrations/0001_other.down.sql": {Data: []byte("SELECT 1;")},
			},
			want: "name mismatch",
		},
	}

	for name, tc := range cases {
		tc := tc
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			_, err := readMigrations(tc.fsys)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("expected error containing %q, got %v", tc.want, err)
			}
		})
	}
}

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	t.Parallel()

	migrations, err := readMigrations(embeddedMigrations)
	if err != nil {
		t.Fatalf("embedded migrations are invalid: %v", err)
	}
	if len(migrations) != 2 {
		t.Fatalf("expected 2 embedded migrations, got %d", len(migrations))
	}
	if !strings.Contains(migrations[0].Up, constraintOnePending) {
		t.Fatal("init migration must create the one-pending-order index")
	}
}

func TestPlanSteps(t *testing.T) {
	t.Parallel()

	all := []migration{{Version: 1, Name: "a"}, {Version: 2, Name: "b"}, {Version: 3, Name: "c"}}
	applied := map[int64]bool{1: true, 2: true}

	up := planSteps(all, applied, directionUp, 0)
	if len(up) != 1 || up[0].Version != 3 {
		t.Fatalf("unexpected up plan: %+v", up)
	}

	down := planSteps(all, applied, directionDown, 0)
	if len(down) != 2 || down[0].Version != 2 || down[1].Version != 1 {
		t.Fatalf("unexpected down plan: %+v", down)
	}

	limited := planSteps(all, applied, directionDown, 1)
	if len(limited) != 1 || limited[0].Version != 2 {
		t.Fatalf("unexpected limited plan: %+v", limited)
	}
}
