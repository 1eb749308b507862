package database

import (
	"errors"
	"time"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/users"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	migrationNormalizeAffiliateStatus = "2026-09-14_normalize_affiliate_status"
	migrationNormalizeEmails          = "2026-09-14_normalize_emails"
)

type migrationRecord struct {
	Name             string `gorm:"column:name;primaryKey;size:190;not null"`
	AppliedAtSeconds int64  `gorm:"column:applied_at_s;not null"`
}

func (migrationRecord) TableName() string {
	return "db_migrations"
}

type migrationDefinition struct {
	name  string
	apply func(*gorm.DB) error
}

func applyMigrations(db *gorm.DB, logger *zap.Logger) error {
	migrations := []migrationDefinition{
		{name: migrationNormalizeAffiliateStatus, apply: normalizeAffiliateStatus},
		{name: migrationNormalizeEmails, apply: normalizeEmails},
	}

	for _, migration := range migrations {
		var record migrationRecord
		err := db.Where("name = ?", migration.name).Take(&record).Error
		if err == nil {
			continue
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return err
		}
		if err := migration.apply(db); err != nil {
			return err
		}
		appliedAt := time.Now().UTC().Unix()
		if err := db.Create(&migrationRecord{Name: migration.name, AppliedAtSeconds: appliedAt}).Error; err != nil {
			return err
		}
		if logger != nil {
			logger.Info("database migration applied", zap.String("migration", migration.name))
		}
	}
	return nil
}

// normalizeAffiliateStatus rewrites title-case statuses from older imports to the canonical upper-case form.
func normalizeAffiliateStatus(db *gorm.DB) error {
	if err := db.Model(&affiliates.Record{}).
		Where("status <> UPPER(status)").
		Update("status", gorm.Expr("UPPER(status)")).Error; err != nil {
		return err
	}
	return db.Model(&affiliates.Record{}).
		Where("status = ''").
		Update("status", affiliates.StatusActive).Error
}

func normalizeEmails(db *gorm.DB) error {
	if err := db.Model(&affiliates.Record{}).
		Where("email <> LOWER(TRIM(email))").
		Update("email", gorm.Expr("LOWER(TRIM(email))")).Error; err != nil {
		return err
	}
	return db.Model(&users.Account{}).
		Where("email <> LOWER(TRIM(email))").
		Update("email", gorm.Expr("LOWER(TRIM(email))")).Error
}
