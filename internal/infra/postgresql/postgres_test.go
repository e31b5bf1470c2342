package postgresql

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func TestPinger(t *testing.T) {
	t.Parallel()

	db, err := gorm.Open(sqlite.Open("file:pinger_test?mode=memory&cache=shared"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("gorm.Open() error = %v", err)
	}

	ping := Pinger(db)
	if err := ping(context.Background()); err != nil {
		t.Fatalf("Pinger() error = %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db.DB() error = %v", err)
	}
	_ = sqlDB.Close()

	if err := ping(context.Background()); err == nil {
		t.Fatal("Pinger() expected error after close")
	}
}

func TestPingerNilDB(t *testing.T) {
	t.Parallel()

	if err := Pinger(nil)(context.Background()); err == nil {
		t.Fatal("Pinger(nil) expected error")
	}
}
