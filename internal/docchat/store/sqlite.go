package store

import (
	"fmt"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/kart-io/docchat/internal/docchat/model"
)

// datastore implements the Factory interface on a gorm connection.
type datastore struct {
	db *gorm.DB
}

// NewSQLiteFactory opens (or creates) the SQLite database at path and
// migrates the schema. Use ":memory:" for an ephemeral database.
func NewSQLiteFactory(path string) (Factory, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	ds := &datastore{db: db}
	if err := ds.autoMigrate(); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	return ds, nil
}

func (ds *datastore) autoMigrate() error {
	return ds.db.AutoMigrate(
		&model.Document{},
		&model.Chat{},
	)
}

// Documents returns the document store.
func (ds *datastore) Documents() DocumentStore {
	return newDocuments(ds.db)
}

// Chats returns the chat store.
func (ds *datastore) Chats() ChatStore {
	return newChats(ds.db)
}

// Close closes the factory and underlying connections.
func (ds *datastore) Close() error {
	sqlDB, err := ds.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
