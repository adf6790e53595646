// Package setup initializes external infrastructure clients.
package setup

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	gormpersistence "github.com/mrelive/BOUT-COORDINATOR-SYSTEM/internal/infra/persistence/gorm"
)

// InitRedis connects to the remote data service endpoint and verifies
// it with a ping, so a bad endpoint or access key fails here instead
// of on the first operation.
func InitRedis(addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     10,
		MinIdleConns: 2,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := client.Ping(ctx).Result(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: failed to connect to %s: %w", addr, err)
	}
	return client, nil
}

// InitDB opens the archive database used by the archiver worker.
func InitDB(user, password, host, port, name string) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		user, password, host, port, name)
	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to connect to %s:%s/%s: %w", host, port, name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("mysql: failed to get underlying sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(20)
	sqlDB.SetMaxIdleConns(5)
	sqlDB.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

// MigrateDB creates or updates the archive schema.
func MigrateDB(db *gorm.DB) error {
	if err := db.AutoMigrate(&gormpersistence.ArchivedMessage{}); err != nil {
		return fmt.Errorf("mysql: failed to migrate archive schema: %w", err)
	}
	return nil
}
