package main

import (
	"context"
	"fmt"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/TabarBaptiste/masseuse/internal/audit"
	"github.com/TabarBaptiste/masseuse/internal/cache"
	"github.com/TabarBaptiste/masseuse/internal/config"
	"github.com/TabarBaptiste/masseuse/internal/db"
	"github.com/TabarBaptiste/masseuse/internal/infra/repository"
	"github.com/TabarBaptiste/masseuse/internal/logger"
	"github.com/TabarBaptiste/masseuse/internal/timezone"
)

// app holds the singletons every command needs.
type app struct {
	cfg   *config.Config
	log   *zap.Logger
	db    *gorm.DB
	rdb   *redis.Client
	repo  *repository.BookingGormRepository
	clock timezone.SalonClock
	audit *audit.Dispatcher
}

func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	gdb, err := db.NewDB(cfg, log)
	if err != nil {
		return nil, err
	}

	rdb, err := cache.NewRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, err
	}
	if rdb == nil {
		log.Warn("redis disabled: no slot holds and no webhook claim store")
	}

	return &app{
		cfg:   cfg,
		log:   log,
		db:    gdb,
		rdb:   rdb,
		repo:  repository.NewBookingGormRepository(gdb),
		clock: timezone.NewSalonClock(cfg.Timezone),
		audit: audit.NewDispatcher(audit.New(gdb), 256, log),
	}, nil
}

// close flushes pending audit events before releasing connections.
func (a *app) close() {
	a.audit.Close()
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	if sqlDB, err := a.db.DB(); err == nil {
		_ = sqlDB.Close()
	}
	_ = a.log.Sync()
}
