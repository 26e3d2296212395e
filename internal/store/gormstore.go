package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// GormStore is a DocumentStore backed by a single Postgres JSONB table.
// Hierarchical paths are stored flat; the collection column carries the
// parent path so collection queries hit an index instead of a LIKE scan.
type GormStore struct {
	db *gorm.DB
}

type documentRow struct {
	Path       string         `gorm:"primaryKey"`
	Collection string         `gorm:"index"`
	Data       datatypes.JSON `gorm:"type:jsonb"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (documentRow) TableName() string {
	return "documents"
}

// NewGormStore opens the Postgres connection and returns the store.
func NewGormStore(connStr string) (*GormStore, error) {
	if connStr == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	gormDB, err := gorm.Open(postgres.Open(connStr), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}

	// Pool settings (tweak as needed)
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(60 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().Msg("✅ Document store connected")
	return &GormStore{db: gormDB}, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *GormStore) Get(ctx context.Context, docPath string) (map[string]interface{}, error) {
	var row documentRow
	err := s.db.WithContext(ctx).First(&row, "path = ?", docPath).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", docPath, err)
	}
	return decodeData(row.Data)
}

func (s *GormStore) Set(ctx context.Context, docPath string, data map[string]interface{}, merge bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return setInTx(tx, docPath, data, merge)
	})
}

// setInTx reads the current document under a row lock, applies merge and
// sentinel semantics in Go, and upserts the result. Increments are atomic
// because the read happens under FOR UPDATE.
func setInTx(tx *gorm.DB, docPath string, data map[string]interface{}, merge bool) error {
	existing := make(map[string]interface{})

	var row documentRow
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&row, "path = ?", docPath).Error
	found := err == nil
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("set %s: %w", docPath, err)
	}
	if found && merge {
		existing, err = decodeData(row.Data)
		if err != nil {
			return err
		}
	}

	now := time.Now().UTC()
	for k, v := range data {
		switch val := v.(type) {
		case serverTimestamp:
			existing[k] = now.Format(time.RFC3339)
		case IncrementValue:
			existing[k] = jsonNumeric(existing[k]) + val.Delta
		default:
			existing[k] = v
		}
	}

	raw, err := json.Marshal(existing)
	if err != nil {
		return fmt.Errorf("encode %s: %w", docPath, err)
	}

	newRow := documentRow{
		Path:       docPath,
		Collection: path.Dir(docPath),
		Data:       datatypes.JSON(raw),
	}
	return tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "path"}},
		DoUpdates: clause.AssignmentColumns([]string{"data", "updated_at"}),
	}).Create(&newRow).Error
}

func (s *GormStore) Delete(ctx context.Context, docPath string) error {
	return s.db.WithContext(ctx).Delete(&documentRow{}, "path = ?", docPath).Error
}

func (s *GormStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	db := s.db.WithContext(ctx).Model(&documentRow{}).Where("collection = ?", collection)

	for _, f := range q.Filters {
		switch {
		case f.Field == FieldCreatedAt && f.Op == "<":
			db = db.Where("created_at < ?", f.Value)
		case f.Op == "==":
			db = db.Where("data->>? = ?", f.Field, fmt.Sprintf("%v", f.Value))
		case f.Op == "in":
			db = db.Where("data->>? IN ?", f.Field, stringSlice(f.Value))
		case f.Op == "<":
			db = db.Where("data->>? < ?", f.Field, fmt.Sprintf("%v", f.Value))
		default:
			return nil, fmt.Errorf("unsupported filter op %q", f.Op)
		}
	}

	if q.OrderBy == FieldCreatedAt {
		db = db.Order(orderClause("created_at", q.Desc))
	} else if q.OrderBy != "" {
		db = db.Order(clause.OrderByColumn{
			Column: clause.Column{Name: fmt.Sprintf("data->>'%s'", q.OrderBy), Raw: true},
			Desc:   q.Desc,
		})
	}
	if q.Limit > 0 {
		db = db.Limit(q.Limit)
	}

	var rows []documentRow
	if err := db.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}

	docs := make([]Document, 0, len(rows))
	for _, row := range rows {
		data, err := decodeData(row.Data)
		if err != nil {
			return nil, err
		}
		docs = append(docs, Document{
			ID:        strings.TrimPrefix(row.Path, collection+"/"),
			Path:      row.Path,
			Data:      data,
			CreatedAt: row.CreatedAt,
		})
	}
	return docs, nil
}

func (s *GormStore) BatchWrite(ctx context.Context, ops []Op) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, op := range ops {
			switch op.Kind {
			case OpSet:
				if err := setInTx(tx, op.Path, op.Data, op.Merge); err != nil {
					return err
				}
			case OpDelete:
				if err := tx.Delete(&documentRow{}, "path = ?", op.Path).Error; err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown batch op kind %q", op.Kind)
			}
		}
		return nil
	})
}

func (s *GormStore) RunTransaction(ctx context.Context, fn func(tx DocumentStore) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormStore{db: tx})
	})
}

func orderClause(column string, desc bool) string {
	if desc {
		return column + " DESC"
	}
	return column + " ASC"
}

func decodeData(raw datatypes.JSON) (map[string]interface{}, error) {
	data := make(map[string]interface{})
	if len(raw) == 0 {
		return data, nil
	}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return data, nil
}

func jsonNumeric(v interface{}) int64 {
	switch n := v.(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case json.Number:
		i, _ := n.Int64()
		return i
	default:
		return 0
	}
}

func stringSlice(v interface{}) []string {
	switch vals := v.(type) {
	case []string:
		return vals
	case []interface{}:
		out := make([]string, len(vals))
		for i, item := range vals {
			out[i] = fmt.Sprintf("%v", item)
		}
		return out
	default:
		return []string{fmt.Sprintf("%v", v)}
	}
}
