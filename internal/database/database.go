package database

import (
	"log"
	"os"

	"bazari/config"
	"bazari/internal/domain"
	"bazari/internal/models"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func NewDB(cfg *config.DatabaseConfig) (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Error),
	})
	if err != nil {
		return nil, err
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	return db, nil
}

// AutoMigrate runs Gorm auto-migration for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.Product{},
		&models.Order{},
		&models.OrderItem{},
		&models.Payment{},
		&models.PaymentRefund{},
		&models.AuditLog{},
	)
}

// SeedAdmin creates the initial ADMIN user when none exists. Credentials come
// from ADMIN_EMAIL / ADMIN_PASSWORD; skipped silently when unset.
func SeedAdmin(db *gorm.DB) {
	email := os.Getenv("ADMIN_EMAIL")
	password := os.Getenv("ADMIN_PASSWORD")
	if email == "" || password == "" {
		return
	}
	var count int64
	db.Model(&models.User{}).Where("role = ?", domain.RoleAdmin).Count(&count)
	if count > 0 {
		return
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		log.Printf("[seed] admin password hash: %v", err)
		return
	}
	admin := &models.User{
		Name:         "Admin",
		Email:        email,
		PasswordHash: string(hash),
		Role:         domain.RoleAdmin,
	}
	if err := db.Create(admin).Error; err != nil {
		log.Printf("[seed] admin create: %v", err)
		return
	}
	log.Printf("[seed] admin user created: %s", email)
}
