package app

import (
	"gorm.io/gorm"

	evrepo "github.com/yungbote/evidence-backend/internal/data/repos/evidence"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type Repos struct {
	Records evrepo.RecordRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Records: evrepo.NewRecordRepo(db, log),
	}
}
