package models

import (
	"bitbucket.org/mmdatafocus/ingest_backend/config"
	"github.com/sirupsen/logrus"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&PromotionJob{}, &LedgerRow{}, &IngestRun{},
	)
	if err != nil {
		config.GetLogger().WithFields(logrus.Fields{
			"field": "migration",
		}).Panic(err.Error())
	}
}
