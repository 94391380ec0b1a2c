package adapter

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	libsql "github.com/tursodatabase/libsql-client-go/libsql"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	m "gooze.dev/pkg/jgooze/internal/model"
	"gooze.dev/pkg/jgooze/internal/tree"
)

// LibsqlTokenEnv names the variable holding the auth token for remote
// databases.
const LibsqlTokenEnv = "JGOOZE_LIBSQL_AUTH_TOKEN"

const batchSize = 200

// FileRecord is one parsed source file of a run.
type FileRecord struct {
	Path      string `gorm:"primaryKey"`
	Package   string
	Hash      string
	Tree      datatypes.JSON
	CreatedAt time.Time
}

// OperatorRecord lists an operator that took part in a run.
type OperatorRecord struct {
	Name      string `gorm:"primaryKey"`
	MetaTypes string
	Color     string
}

// MutationRecord is one first order mutation.
type MutationRecord struct {
	RunID       string `gorm:"primaryKey"`
	ID          int    `gorm:"primaryKey;autoIncrement:false"`
	Path        string `gorm:"index"`
	Operator    string `gorm:"index"`
	NodeIndex   int
	Start       int
	End         int
	Line        int
	Replacement string
	Color       string
	Edit        datatypes.JSON
	CompileTime bool
}

// MutantRecord is one mutant; MutationIDs holds the encoded id list.
type MutantRecord struct {
	RunID       string `gorm:"primaryKey"`
	ID          int    `gorm:"primaryKey;autoIncrement:false"`
	Path        string `gorm:"index"`
	Order       int    `gorm:"column:mutant_order"`
	MutationIDs []byte
}

// ResultRecord is the outcome of testing one mutant.
type ResultRecord struct {
	ID          uint   `gorm:"primaryKey"`
	RunID       string `gorm:"index"`
	MutantID    int    `gorm:"index"`
	MutationIDs []byte
	Path        string `gorm:"index"`
	Operator    string
	Line        int
	Status      string `gorm:"index"`
	Output      string
	Diff        string
	Reason      string
	DurationMS  int64
	CreatedAt   time.Time
}

// CoverageRecord maps a source line to the tests executing it.
type CoverageRecord struct {
	Path  string `gorm:"primaryKey"`
	Line  int    `gorm:"primaryKey;autoIncrement:false"`
	Tests datatypes.JSONSlice[string]
}

// ReportStore persists everything a run produces so it can be viewed and
// merged later.
type ReportStore interface {
	// Reset drops every stored row.
	Reset(ctx context.Context) error
	SaveFile(ctx context.Context, source m.Source, t *tree.Tree) error
	SaveOperators(ctx context.Context, operators []OperatorRecord) error
	SaveMutations(ctx context.Context, runID string, mutations []m.Mutation) error
	SaveMutants(ctx context.Context, runID string, mutants []*m.Mutant) error
	SaveResults(ctx context.Context, results []m.Result) error
	SaveCoverage(ctx context.Context, coverage m.Coverage) error
	// LoadResults returns every stored result ordered by path and mutant.
	LoadResults(ctx context.Context) ([]m.Result, error)
	// Merge folds the rows of the database at dsn into this one. Rows
	// already present are kept.
	Merge(ctx context.Context, dsn string) error
	Close() error
}

// GormReportStore implements ReportStore on SQLite or libSQL.
type GormReportStore struct {
	db *gorm.DB
}

// OpenReportStore connects to dsn, a SQLite file path or a libsql://,
// http:// or https:// URL, and migrates the schema.
func OpenReportStore(dsn string, debug bool) (*GormReportStore, error) {
	db, err := connect(dsn, debug)
	if err != nil {
		return nil, err
	}

	return &GormReportStore{db: db}, nil
}

func connect(dsn string, debug bool) (*gorm.DB, error) {
	if !isURL(dsn) {
		if err := os.MkdirAll(filepath.Dir(dsn), 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	config := &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)}
	if debug {
		config.Logger = logger.Default.LogMode(logger.Info)
	}

	var (
		dialector gorm.Dialector
		conn      *sql.DB
	)

	if isURL(dsn) {
		var err error

		dialector, conn, err = libsqlDialector(dsn)
		if err != nil {
			return nil, err
		}
	} else {
		dialector = sqlite.Open(dsn)
	}

	db, err := gorm.Open(dialector, config)
	if err != nil {
		if conn != nil {
			_ = conn.Close()
		}

		return nil, fmt.Errorf("failed to connect to %s: %w", dsn, err)
	}

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if err := db.AutoMigrate(models()...); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	return db, nil
}

// libsqlDialector opens a remote libSQL database through the sqlite
// dialector. The connection is made lazily on first use.
func libsqlDialector(dsn string) (gorm.Dialector, *sql.DB, error) {
	var (
		connector driver.Connector
		err       error
	)

	if token := os.Getenv(LibsqlTokenEnv); token != "" {
		connector, err = libsql.NewConnector(dsn, libsql.WithAuthToken(token))
	} else {
		connector, err = libsql.NewConnector(dsn)
	}

	if err != nil {
		return nil, nil, fmt.Errorf("failed to create libsql connector: %w", err)
	}

	conn := sql.OpenDB(connector)

	return &sqlite.Dialector{DriverName: "libsql", DSN: dsn, Conn: conn}, conn, nil
}

func models() []any {
	return []any{&FileRecord{}, &OperatorRecord{}, &MutationRecord{}, &MutantRecord{}, &ResultRecord{}, &CoverageRecord{}}
}

func isURL(dsn string) bool {
	for _, scheme := range []string{"libsql://", "http://", "https://"} {
		if strings.HasPrefix(dsn, scheme) {
			return true
		}
	}

	return false
}

// Reset implements ReportStore.
func (s *GormReportStore) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, model := range models() {
			if err := tx.Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(model).Error; err != nil {
				return fmt.Errorf("failed to reset %T: %w", model, err)
			}
		}

		return nil
	})
}

// SaveFile implements ReportStore. The tree is stored as JSON.
func (s *GormReportStore) SaveFile(ctx context.Context, source m.Source, t *tree.Tree) error {
	if source.Origin == nil {
		return fmt.Errorf("source without origin file")
	}

	rec := FileRecord{Path: string(source.Origin.Path), Package: source.Package, Hash: source.Origin.Hash}

	if t != nil {
		data, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("failed to encode tree of %s: %w", source.Origin.Path, err)
		}

		rec.Tree = datatypes.JSON(data)
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(&rec).Error
}

// SaveOperators implements ReportStore.
func (s *GormReportStore) SaveOperators(ctx context.Context, operators []OperatorRecord) error {
	if len(operators) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&operators).Error
}

// SaveMutations implements ReportStore.
func (s *GormReportStore) SaveMutations(ctx context.Context, runID string, mutations []m.Mutation) error {
	if len(mutations) == 0 {
		return nil
	}

	recs := make([]MutationRecord, 0, len(mutations))

	for _, mu := range mutations {
		rec := MutationRecord{
			RunID:       runID,
			ID:          mu.ID,
			Path:        string(mu.Path),
			Operator:    mu.Operator,
			NodeIndex:   mu.NodeIndex,
			Start:       mu.Start,
			End:         mu.End,
			Line:        mu.Line,
			Replacement: mu.Replacement,
			Color:       mu.Color,
			CompileTime: mu.CompileTime,
		}

		if mu.Edit != nil {
			data, err := json.Marshal(mu.Edit)
			if err != nil {
				return fmt.Errorf("failed to encode edit of mutation %d: %w", mu.ID, err)
			}

			rec.Edit = datatypes.JSON(data)
		}

		recs = append(recs, rec)
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&recs, batchSize).Error
}

// SaveMutants implements ReportStore.
func (s *GormReportStore) SaveMutants(ctx context.Context, runID string, mutants []*m.Mutant) error {
	if len(mutants) == 0 {
		return nil
	}

	recs := make([]MutantRecord, 0, len(mutants))

	for _, mt := range mutants {
		rec := MutantRecord{RunID: runID, ID: mt.ID, Order: mt.Order(), MutationIDs: m.EncodeIDs(mt.MutationIDs())}
		if len(mt.Mutations) > 0 {
			rec.Path = string(mt.Mutations[0].Path)
		}

		recs = append(recs, rec)
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&recs, batchSize).Error
}

// SaveResults implements ReportStore.
func (s *GormReportStore) SaveResults(ctx context.Context, results []m.Result) error {
	if len(results) == 0 {
		return nil
	}

	recs := make([]ResultRecord, 0, len(results))
	for _, r := range results {
		recs = append(recs, toResultRecord(r))
	}

	return s.db.WithContext(ctx).CreateInBatches(&recs, batchSize).Error
}

func toResultRecord(r m.Result) ResultRecord {
	return ResultRecord{
		RunID:       r.RunID,
		MutantID:    r.MutantID,
		MutationIDs: m.EncodeIDs(r.MutationIDs),
		Path:        string(r.Path),
		Operator:    r.Operator,
		Line:        r.Line,
		Status:      r.Status.String(),
		Output:      r.Output,
		Diff:        r.Diff,
		Reason:      r.Reason,
		DurationMS:  r.Duration.Milliseconds(),
	}
}

func fromResultRecord(rec ResultRecord) (m.Result, error) {
	status, err := m.ParseTestStatus(rec.Status)
	if err != nil {
		return m.Result{}, err
	}

	ids, err := m.DecodeIDs(rec.MutationIDs)
	if err != nil {
		return m.Result{}, fmt.Errorf("result of mutant %d: %w", rec.MutantID, err)
	}

	return m.Result{
		RunID:       rec.RunID,
		MutantID:    rec.MutantID,
		MutationIDs: ids,
		Path:        m.Path(rec.Path),
		Operator:    rec.Operator,
		Line:        rec.Line,
		Status:      status,
		Output:      rec.Output,
		Diff:        rec.Diff,
		Reason:      rec.Reason,
		Duration:    time.Duration(rec.DurationMS) * time.Millisecond,
	}, nil
}

// SaveCoverage implements ReportStore.
func (s *GormReportStore) SaveCoverage(ctx context.Context, coverage m.Coverage) error {
	var recs []CoverageRecord

	for _, fc := range coverage {
		for _, lc := range fc.Lines {
			recs = append(recs, CoverageRecord{Path: string(fc.Path), Line: lc.Number, Tests: datatypes.NewJSONSlice(lc.Tests)})
		}
	}

	if len(recs) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).CreateInBatches(&recs, batchSize).Error
}

// LoadResults implements ReportStore.
func (s *GormReportStore) LoadResults(ctx context.Context) ([]m.Result, error) {
	var recs []ResultRecord
	if err := s.db.WithContext(ctx).Order("path, mutant_id, id").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to load results: %w", err)
	}

	results := make([]m.Result, 0, len(recs))

	for _, rec := range recs {
		r, err := fromResultRecord(rec)
		if err != nil {
			return nil, err
		}

		results = append(results, r)
	}

	return results, nil
}

// Merge implements ReportStore. Results carry no natural key, so a result
// is skipped when one with the same run and mutant already exists.
func (s *GormReportStore) Merge(ctx context.Context, dsn string) error {
	other, err := connect(dsn, false)
	if err != nil {
		return err
	}

	defer closeDB(other)

	src := other.WithContext(ctx)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := copyRows[FileRecord](src, tx); err != nil {
			return err
		}

		if err := copyRows[OperatorRecord](src, tx); err != nil {
			return err
		}

		if err := copyRows[MutationRecord](src, tx); err != nil {
			return err
		}

		if err := copyRows[MutantRecord](src, tx); err != nil {
			return err
		}

		if err := copyRows[CoverageRecord](src, tx); err != nil {
			return err
		}

		var results []ResultRecord
		if err := src.Order("id").Find(&results).Error; err != nil {
			return fmt.Errorf("failed to read results of %s: %w", dsn, err)
		}

		for _, rec := range results {
			var count int64
			if err := tx.Model(&ResultRecord{}).Where("run_id = ? AND mutant_id = ?", rec.RunID, rec.MutantID).Count(&count).Error; err != nil {
				return err
			}

			if count > 0 {
				continue
			}

			rec.ID = 0
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("failed to merge result of mutant %d: %w", rec.MutantID, err)
			}
		}

		return nil
	})
}

func copyRows[T any](src, dst *gorm.DB) error {
	var rows []T
	if err := src.Find(&rows).Error; err != nil {
		return fmt.Errorf("failed to read %T rows: %w", rows, err)
	}

	if len(rows) == 0 {
		return nil
	}

	if err := dst.Clauses(clause.OnConflict{DoNothing: true}).CreateInBatches(&rows, batchSize).Error; err != nil {
		return fmt.Errorf("failed to merge %T rows: %w", rows, err)
	}

	return nil
}

// Close implements ReportStore.
func (s *GormReportStore) Close() error {
	closeDB(s.db)
	return nil
}

func closeDB(db *gorm.DB) {
	if sqlDB, err := db.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
