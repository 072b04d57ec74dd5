// Package store opens the configured dao.Dao implementation.
package store

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/masmgr/harmony-go/config"
	"github.com/masmgr/harmony-go/internal/dao"
	"github.com/masmgr/harmony-go/internal/store/boltstore"
	"github.com/masmgr/harmony-go/internal/store/sqlstore"
)

// Open connects to the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, log logrus.FieldLogger) (dao.Dao, error) {
	log = log.WithFields(logrus.Fields{"driver": cfg.Driver, "path": cfg.Path})

	switch cfg.Driver {
	case config.DriverSQLite, "":
		s, err := sqlstore.New(ctx, cfg.Path, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	case config.DriverBolt:
		s, err := boltstore.New(cfg.Path, log)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
