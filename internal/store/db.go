package store

import (
	"log"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/elara-health/chat-service/internal/chat"
	"github.com/elara-health/chat-service/internal/profile"
)

// Connect opens the MySQL-backed GORM handle and migrates the schema.
func Connect(dsn string) *gorm.DB {
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	if err := db.AutoMigrate(&chat.Session{}, &chat.Message{}, &profile.Profile{}); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	return db
}
