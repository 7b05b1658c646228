/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package repository

import (
	"errors"

	"github.com/InfamousVague/umbra/internal/entity"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Migration is one ordered step of the schema. Steps must be safe to run again after a partial failure
type Migration struct {
	Version int
	Name    string
	Apply   func(tx *gorm.DB) error
}

// This repository tracks which migrations were applied, inside a single row 'schema_version' table.
type SchemaRepository interface {
	Current() (int, error)                                         // Version of the last applied migration, 0 on a fresh database
	Migrate(steps []Migration, now int64) (applied int, err error) // Applies, in order, every step newer than the current version
}

// Implementation of the repository using a SQLite DB
type SQLiteSchemaRepository struct {
	db *gorm.DB
}

func NewSQLiteSchemaRepository(db *gorm.DB) SchemaRepository {
	return &SQLiteSchemaRepository{db}
}

func (repo *SQLiteSchemaRepository) Current() (int, error) {
	if err := repo.db.AutoMigrate(&entity.SchemaVersion{}); err != nil {
		return 0, err
	}
	var state entity.SchemaVersion
	err := repo.db.First(&state, 1).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	return state.Version, err
}

func (repo *SQLiteSchemaRepository) Migrate(steps []Migration, now int64) (int, error) {
	current, err := repo.Current()
	if err != nil {
		return 0, err
	}

	applied := 0
	for _, step := range steps {
		if step.Version <= current {
			continue
		}

		// Each step commits together with its version bump, so a crash leaves the previous version recorded
		err := repo.db.Transaction(func(tx *gorm.DB) error {
			var state entity.SchemaVersion
			if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&state, 1).Error; err != nil {
				if !errors.Is(err, gorm.ErrRecordNotFound) {
					return err
				}
				state = entity.SchemaVersion{ID: 1}
			}
			if state.Version >= step.Version {
				return nil
			}
			if err := step.Apply(tx); err != nil {
				return err
			}
			state.Version = step.Version
			state.AppliedAt = now
			return tx.Save(&state).Error
		})
		if err != nil {
			return applied, err
		}
		current = step.Version
		applied++
	}
	return applied, nil
}
