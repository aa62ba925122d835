package main

import (
	"bitbucket.org/mmdatafocus/ingest_backend/config"
	"bitbucket.org/mmdatafocus/ingest_backend/ingest"
	"bitbucket.org/mmdatafocus/ingest_backend/utils"
	"github.com/bsm/redislock"
	"gorm.io/gorm"
)

// apiDeps carries the collaborators every handler needs. DB and the lock
// client are late-bound because they connect after the listener is up.
type apiDeps struct {
	db     func() *gorm.DB
	store  ingest.ObjectStore
	bucket func() string
	locker func() *redislock.Client
}

func defaultDeps() apiDeps {
	return apiDeps{
		db:     config.GetDB,
		store:  utils.NewGCSStore(),
		bucket: utils.GetBucket,
		locker: config.GetRedisLock,
	}
}
