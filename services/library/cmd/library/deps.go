package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/urfave/cli/v3"

	"musiclib/internal/ratelimit"
	"musiclib/internal/util"
	"musiclib/pkg/auth"
	"musiclib/pkg/mailer"
	"musiclib/services/library/internal/app"
	"musiclib/services/library/internal/config"
)

const rateWindow = time.Minute

// deps holds the dependencies shared by every subcommand.
type deps struct {
	cfg    config.FileConfig
	logger *slog.Logger
	app    *app.App
	redis  *redis.Client
}

func setup(ctx context.Context, cmd *cli.Command) (*deps, error) {
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger := util.InitLogger(cfg.LogLevel, cfg.LogFormat)
	sessionTTL, err := config.ParseDuration("sessionTTL", cfg.SessionTTL)
	if err != nil {
		return nil, err
	}
	resetTTL, err := config.ParseDuration("resetTokenTTL", cfg.ResetTokenTTL)
	if err != nil {
		return nil, err
	}

	rt := &deps{cfg: cfg, logger: logger}
	var revoker auth.TokenRevoker = auth.NewMemoryTokenRevoker()
	if cfg.RedisAddr != "" {
		rt.redis = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		if err := rt.redis.Ping(ctx).Err(); err != nil {
			_ = rt.redis.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		revoker = auth.NewRedisTokenRevoker(rt.redis, 0)
	} else {
		logger.Warn("redis not configured, session revocations and rate limits are per-process")
	}

	var mail mailer.Mailer = mailer.NewLogMailer(logger)
	if cfg.SMTP.Host != "" {
		smtpMailer, err := mailer.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From)
		if err != nil {
			rt.Close()
			return nil, fmt.Errorf("init mailer: %w", err)
		}
		mail = smtpMailer
	}

	rt.app, err = app.New(app.Config{
		DatabaseURL:    cfg.DatabaseURL,
		UploadDir:      cfg.UploadDir,
		MaxUploadBytes: cfg.MaxUploadBytes,
		PageSize:       cfg.PageSize,
		SecretKey:      cfg.SecretKey,
		SessionTTL:     sessionTTL,
		ResetTokenTTL:  resetTTL,
		Revoker:        revoker,
		Mailer:         mail,
		PublicBaseURL:  cfg.PublicBaseURL,
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init app: %w", err)
	}
	return rt, nil
}

// newLimiter returns nil when perMinute is 0, which disables limiting.
func (rt *deps) newLimiter(name string, perMinute int) (ratelimit.Limiter, error) {
	if perMinute <= 0 {
		return nil, nil
	}
	if rt.redis != nil {
		limiter, err := ratelimit.NewRedisFixedWindowLimiter(rt.redis, "musiclib:ratelimit:"+name, perMinute, rateWindow)
		if err != nil {
			return nil, err
		}
		return limiter, nil
	}
	limiter, err := ratelimit.NewMemoryLimiter(perMinute, rateWindow)
	if err != nil {
		return nil, err
	}
	return limiter, nil
}

func (rt *deps) Close() {
	if rt.app != nil {
		if err := rt.app.Close(); err != nil {
			rt.logger.Error("close app", "err", err)
		}
	}
	if rt.redis != nil {
		_ = rt.redis.Close()
	}
}
