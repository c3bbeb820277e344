// Package datastore persists cascade predictions in a relational ledger.
package datastore

import (
	"log/slog"
	"strings"

	"gorm.io/gorm"

	"github.com/MadBale/Mewsage-project/internal/errors"
	"github.com/MadBale/Mewsage-project/internal/logging"
)

// Interface is the prediction ledger contract.
type Interface interface {
	Open() error
	Close() error
	Save(p *Prediction) error
	GetRecent(limit int) ([]Prediction, error)
	DeleteByIDs(ids []string) (int64, error)
}

// DataStore implements the ledger operations shared by all backends.
type DataStore struct {
	DB     *gorm.DB
	logger *slog.Logger
}

func newDataStore() DataStore {
	return DataStore{logger: logging.ForService("datastore")}
}

// Save inserts a prediction inside a transaction. Inserting an ID that
// already exists surfaces a conflict, so exactly one of any concurrent
// duplicate writes wins.
func (ds *DataStore) Save(p *Prediction) error {
	if ds.DB == nil {
		return errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		return tx.Create(p).Error
	})
	if err != nil {
		if isDuplicateKey(err) {
			return errors.Newf("prediction %s already recorded", p.ID).
				Component("datastore").
				Category(errors.CategoryConflict).
				Context("prediction_id", p.ID).
				Build()
		}
		return errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Context("prediction_id", p.ID).
			Build()
	}

	ds.logger.Debug("prediction saved", "id", p.ID, "label", p.Prediction)
	return nil
}

// GetRecent returns up to limit predictions, newest first.
func (ds *DataStore) GetRecent(limit int) ([]Prediction, error) {
	if ds.DB == nil {
		return nil, errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	var predictions []Prediction
	err := ds.DB.Order("timestamp desc").Limit(limit).Find(&predictions).Error
	if err != nil {
		return nil, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	return predictions, nil
}

// DeleteByIDs removes the given predictions in one transaction and
// returns how many rows went away. Matching nothing at all is reported
// as not found.
func (ds *DataStore) DeleteByIDs(ids []string) (int64, error) {
	if ds.DB == nil {
		return 0, errors.Newf("database connection is not initialized").
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}

	var deleted int64
	err := ds.DB.Transaction(func(tx *gorm.DB) error {
		result := tx.Where("id IN ?", ids).Delete(&Prediction{})
		if result.Error != nil {
			return result.Error
		}
		deleted = result.RowsAffected
		return nil
	})
	if err != nil {
		return 0, errors.New(err).
			Component("datastore").
			Category(errors.CategoryDatabase).
			Build()
	}
	if deleted == 0 {
		return 0, errors.Newf("no predictions matched the given ids").
			Component("datastore").
			Category(errors.CategoryNotFound).
			Context("requested", len(ids)).
			Build()
	}

	ds.logger.Debug("predictions deleted", "requested", len(ids), "deleted", deleted)
	return deleted, nil
}

func isDuplicateKey(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
