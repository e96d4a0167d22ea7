package docstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"story-pipeline/core/database"

	"gorm.io/gorm"
)

// DocumentsTable is the table backing SQLStore.
const DocumentsTable = "documents"

// documentRow stores one document as a JSON body plus a version used for
// optimistic concurrency.
type documentRow struct {
	Collection string    `gorm:"column:collection;primaryKey;size:128"`
	ID         string    `gorm:"column:id;primaryKey;size:191"`
	Data       string    `gorm:"column:data;type:text"`
	Version    int64     `gorm:"column:version;not null"`
	CreateTime time.Time `gorm:"column:create_time"`
	UpdateTime time.Time `gorm:"column:update_time"`
}

func (documentRow) TableName() string { return DocumentsTable }

// requiredColumns are checked by Verify.
var requiredColumns = []string{"collection", "id", "data", "version", "create_time", "update_time"}

// SQLStore is a Store over a relational database (MySQL, Postgres, SQLite) via GORM.
// Change notifications are published in-process for writes made through this store.
type SQLStore struct {
	*engine
	db *gorm.DB
}

// NewSQL migrates the documents table and returns a store over db.
func NewSQL(db *gorm.DB, opts ...Option) (*SQLStore, error) {
	if err := db.AutoMigrate(&documentRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate documents table: %w", err)
	}
	return &SQLStore{engine: newEngine(&sqlBackend{db: db}, opts...), db: db}, nil
}

// Verify checks that the documents table carries every column the store needs.
func (s *SQLStore) Verify() error {
	return VerifySchema(s.db)
}

// VerifySchema reports missing columns of the documents table.
func VerifySchema(db *gorm.DB) error {
	columns, err := database.GetTableColumns(db, DocumentsTable)
	if err != nil {
		return err
	}
	have := make(map[string]struct{}, len(columns))
	for _, c := range columns {
		have[c.Field] = struct{}{}
	}
	var missing []string
	for _, col := range requiredColumns {
		if _, ok := have[col]; !ok {
			missing = append(missing, col)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("table %s is missing columns: %s", DocumentsTable, strings.Join(missing, ", "))
	}
	return nil
}

type sqlBackend struct {
	db *gorm.DB
}

func (b *sqlBackend) load(ctx context.Context, ref DocRef) (record, error) {
	return loadRow(b.db.WithContext(ctx), ref)
}

func loadRow(db *gorm.DB, ref DocRef) (record, error) {
	var rows []documentRow
	err := db.Where("collection = ? AND id = ?", ref.Collection, ref.ID).Limit(1).Find(&rows).Error
	if err != nil {
		return record{}, fmt.Errorf("failed to load %s: %w", ref.Path(), err)
	}
	if len(rows) == 0 {
		return record{}, nil
	}
	return rows[0].record()
}

func (b *sqlBackend) loadAll(ctx context.Context, collection string) ([]DocRef, []record, error) {
	var rows []documentRow
	err := b.db.WithContext(ctx).Where("collection = ?", collection).Order("id").Find(&rows).Error
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}
	refs := make([]DocRef, 0, len(rows))
	recs := make([]record, 0, len(rows))
	for _, row := range rows {
		rec, err := row.record()
		if err != nil {
			return nil, nil, err
		}
		refs = append(refs, Doc(row.Collection, row.ID))
		recs = append(recs, rec)
	}
	return refs, recs, nil
}

func (b *sqlBackend) commit(ctx context.Context, reads map[DocRef]int64, writes []write, now time.Time) ([]pending, error) {
	var results []pending
	err := b.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for ref, version := range reads {
			cur, err := loadRow(tx, ref)
			if err != nil {
				return err
			}
			if cur.version != version {
				return ConflictError(fmt.Errorf("document %s changed since read", ref.Path()))
			}
		}

		resolved, err := resolveWrites(writes, now, func(ref DocRef) (record, error) {
			return loadRow(tx, ref)
		})
		if err != nil {
			return err
		}

		for _, p := range resolved {
			body, err := json.Marshal(p.after.data)
			if err != nil {
				return fmt.Errorf("failed to encode %s: %w", p.ref.Path(), err)
			}
			if p.before.version == 0 {
				row := documentRow{
					Collection: p.ref.Collection,
					ID:         p.ref.ID,
					Data:       string(body),
					Version:    p.after.version,
					CreateTime: p.after.createTime,
					UpdateTime: p.after.updateTime,
				}
				if err := tx.Create(&row).Error; err != nil {
					if isDuplicateKey(err) {
						return ConflictError(err)
					}
					return fmt.Errorf("failed to insert %s: %w", p.ref.Path(), err)
				}
				continue
			}
			res := tx.Model(&documentRow{}).
				Where("collection = ? AND id = ? AND version = ?", p.ref.Collection, p.ref.ID, p.before.version).
				Updates(map[string]any{
					"data":        string(body),
					"version":     p.after.version,
					"update_time": p.after.updateTime,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to update %s: %w", p.ref.Path(), res.Error)
			}
			if res.RowsAffected == 0 {
				return ConflictError(fmt.Errorf("document %s changed during commit", p.ref.Path()))
			}
		}
		results = resolved
		return nil
	})
	if err != nil {
		return nil, err
	}
	return results, nil
}

func (b *sqlBackend) close(context.Context) error {
	sqlDB, err := b.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (r documentRow) record() (record, error) {
	data := map[string]any{}
	if r.Data != "" {
		if err := json.Unmarshal([]byte(r.Data), &data); err != nil {
			return record{}, fmt.Errorf("failed to decode %s/%s: %w", r.Collection, r.ID, err)
		}
	}
	return record{
		data:       data,
		version:    r.Version,
		createTime: r.CreateTime.UTC(),
		updateTime: r.UpdateTime.UTC(),
	}, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique constraint") || strings.Contains(msg, "duplicate")
}
