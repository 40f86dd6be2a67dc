package migrations

import (
	"context"
	"fmt"
	"strings"
)

// ClickhouseDB executes one statement at a time; the native driver rejects
// multi-statement queries.
type ClickhouseDB interface {
	Exec(ctx context.Context, query string, args ...any) error
}

// RunClickhouseMigrations applies every embedded ClickHouse file. The DDL is
// idempotent (IF NOT EXISTS), so all files run on each start.
func RunClickhouseMigrations(ctx context.Context, db ClickhouseDB) error {
	files, err := load(ClickhouseFS, "clickhouse")
	if err != nil {
		return err
	}
	for _, m := range files {
		stmts, err := statements(m.SQL)
		if err != nil {
			return fmt.Errorf("migration %s: %w", m.Version, err)
		}
		for i, stmt := range stmts {
			if err := db.Exec(ctx, stmt); err != nil {
				return fmt.Errorf("apply migration %s statement %d: %w", m.Version, i+1, err)
			}
		}
	}
	return nil
}

// statements splits a migration on the semicolons that end statements,
// skipping -- comment lines and semicolons inside quoted literals.
func statements(sql string) ([]string, error) {
	var (
		out     []string
		current strings.Builder
		quoted  bool
	)
	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			out = append(out, stmt)
		}
		current.Reset()
	}

	for _, line := range strings.Split(sql, "\n") {
		if !quoted && strings.HasPrefix(strings.TrimSpace(line), "--") {
			continue
		}
		for i := 0; i < len(line); i++ {
			ch := line[i]
			switch {
			case ch == '\'' && quoted && i+1 < len(line) && line[i+1] == '\'':
				current.WriteString("''")
				i++
				continue
			case ch == '\'':
				quoted = !quoted
			case ch == ';' && !quoted:
				flush()
				continue
			}
			current.WriteByte(ch)
		}
		current.WriteByte('\n')
	}
	if quoted {
		return nil, fmt.Errorf("unterminated string literal")
	}
	flush()
	return out, nil
}
