package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/clinerva/clinerva/internal/domain/audit"
	"github.com/clinerva/clinerva/internal/platform/backup"
	"github.com/clinerva/clinerva/internal/platform/db"
	"github.com/clinerva/clinerva/internal/platform/metrics"
)

// collections lists every exported table in dependency order: parents before
// children so a restore can replay inserts top to bottom. Sessions are
// deliberately absent, they are ephemeral.
var collections = []string{
	"users",
	"patients",
	"catalog_items",
	"appointments",
	"consultations",
	"notifications",
	"audit_entries",
}

type Service struct {
	pool      *pgxpool.Pool
	backupDir string
	audit     *audit.Service
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(pool *pgxpool.Pool, backupDir string, auditSvc *audit.Service, logger zerolog.Logger) *Service {
	return &Service{
		pool:      pool,
		backupDir: backupDir,
		audit:     auditSvc,
		logger:    logger.With().Str("component", "admin").Logger(),
		now:       time.Now,
	}
}

// Export reads every collection into an archive.
func (s *Service) Export(ctx context.Context) (*backup.Archive, error) {
	a := backup.NewArchive(s.now())
	for _, name := range collections {
		docs, err := s.exportTable(ctx, name)
		if err != nil {
			return nil, fmt.Errorf("exporting %s: %w", name, err)
		}
		a.Add(name, docs)
	}
	return a, nil
}

func (s *Service) exportTable(ctx context.Context, table string) ([]map[string]interface{}, error) {
	rows, err := s.pool.Query(ctx, `SELECT * FROM `+table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	fields := rows.FieldDescriptions()
	var docs []map[string]interface{}
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return nil, err
		}
		doc := make(map[string]interface{}, len(fields))
		for i, f := range fields {
			doc[string(f.Name)] = normalizeValue(vals[i])
		}
		docs = append(docs, doc)
	}
	return docs, rows.Err()
}

// normalizeValue flattens driver types into archive-friendly values. UUIDs
// become strings, raw jsonb becomes the decoded document.
func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case [16]byte:
		return uuid.UUID(t).String()
	case []byte:
		var decoded interface{}
		if err := json.Unmarshal(t, &decoded); err == nil {
			return decoded
		}
		return string(t)
	default:
		return v
	}
}

// WriteBackup exports the archive to a timestamped file in the backup
// directory and returns its path.
func (s *Service) WriteBackup(ctx context.Context) (string, int, error) {
	a, err := s.Export(ctx)
	if err != nil {
		return "", 0, err
	}
	if err := os.MkdirAll(s.backupDir, 0o750); err != nil {
		return "", 0, err
	}
	path := filepath.Join(s.backupDir, backupFileName(s.now()))
	f, err := os.Create(path)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()
	if err := backup.Write(f, a); err != nil {
		return "", 0, err
	}

	metrics.BackupTaken()
	s.audit.Record(ctx, audit.ActionBackup, "backup", path, map[string]interface{}{
		"documents": a.DocumentCount(),
	})
	s.logger.Info().Str("path", path).Int("documents", a.DocumentCount()).Msg("backup written")
	return path, a.DocumentCount(), nil
}

// StreamBackup exports directly to the writer, for the download endpoint.
func (s *Service) StreamBackup(ctx context.Context, w io.Writer) error {
	a, err := s.Export(ctx)
	if err != nil {
		return err
	}
	if err := backup.Write(w, a); err != nil {
		return err
	}
	metrics.BackupTaken()
	s.audit.Record(ctx, audit.ActionBackup, "backup", "download", map[string]interface{}{
		"documents": a.DocumentCount(),
	})
	return nil
}

func backupFileName(now time.Time) string {
	return backup.AppName + "-" + now.UTC().Format("20060102-150405") + backup.FileExtension
}

// Restore replays an uploaded archive. Each chunk commits in its own
// transaction; a failing chunk aborts the run but keeps what already
// committed.
func (s *Service) Restore(ctx context.Context, r io.Reader) (backup.RestoreStats, error) {
	a, err := backup.Read(r)
	if err != nil {
		return backup.RestoreStats{}, err
	}
	stats, err := backup.Restore(ctx, a, func(ctx context.Context, collection string, docs []map[string]interface{}) error {
		return db.InTx(ctx, s.pool, func(txCtx context.Context) error {
			tx := db.TxFromContext(txCtx)
			for _, doc := range docs {
				sql, args := buildInsert(collection, doc)
				if _, err := tx.Exec(txCtx, sql, args...); err != nil {
					return err
				}
			}
			return nil
		})
	})
	if err != nil {
		s.audit.Record(ctx, audit.ActionRestore, "backup", "upload", map[string]interface{}{
			"documents_restored": stats.Documents,
			"aborted":            true,
		})
		return stats, err
	}
	s.audit.Record(ctx, audit.ActionRestore, "backup", "upload", map[string]interface{}{
		"documents_restored": stats.Documents,
	})
	s.logger.Info().Int("documents", stats.Documents).Msg("restore finished")
	return stats, nil
}

// buildInsert renders one document as an idempotent insert. Existing rows
// win: restoring over a live database never overwrites current data.
func buildInsert(table string, doc map[string]interface{}) (string, []interface{}) {
	cols := make([]string, 0, len(doc))
	for k := range doc {
		cols = append(cols, k)
	}
	sort.Strings(cols)

	args := make([]interface{}, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		args[i] = doc[c]
		placeholders[i] = "$" + strconv.Itoa(i+1)
	}
	sql := "INSERT INTO " + table + " (" + strings.Join(cols, ", ") + ") VALUES (" +
		strings.Join(placeholders, ", ") + ") ON CONFLICT (id) DO NOTHING"
	return sql, args
}
