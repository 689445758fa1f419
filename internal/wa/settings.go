package wa

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/chikapos/settlement/internal/pkg/cache"
	"github.com/chikapos/settlement/internal/store"
)

const settingsCacheTTL = 5 * time.Minute

// Settings is the resolved WhatsApp configuration: which device sends and
// which group receives platform notifications.
type Settings struct {
	DeviceID   string `json:"device_id"`
	AdminGroup string `json:"admin_group"`
}

// Resolver merges the two settings tiers: environment overrides win over
// the stored configuration row. There is deliberately no hardcoded tier;
// empty values mean delivery fails with a configuration error.
type Resolver struct {
	db     *gorm.DB
	cache  cache.Cache
	logger *slog.Logger

	envDeviceID   string
	envAdminGroup string
}

func NewResolver(db *gorm.DB, c cache.Cache, envDeviceID, envAdminGroup string, logger *slog.Logger) *Resolver {
	if c == nil {
		c = cache.Noop()
	}
	return &Resolver{
		db:            db,
		cache:         c,
		logger:        logger,
		envDeviceID:   envDeviceID,
		envAdminGroup: envAdminGroup,
	}
}

// Resolve returns the effective settings. A missing configuration row is
// not an error: the environment tier may still cover everything.
func (r *Resolver) Resolve(ctx context.Context) (Settings, error) {
	stored, err := r.stored(ctx)
	if err != nil {
		return Settings{}, err
	}

	s := stored
	if r.envDeviceID != "" {
		s.DeviceID = r.envDeviceID
	}
	if r.envAdminGroup != "" {
		s.AdminGroup = r.envAdminGroup
	}
	return s, nil
}

func (r *Resolver) stored(ctx context.Context) (Settings, error) {
	key := r.cache.Key("config", "whatsapp")

	var s Settings
	if found, err := r.cache.GetJSON(ctx, key, &s); err != nil {
		r.logger.WarnContext(ctx, "whatsapp settings cache read failed", slog.Any("error", err))
	} else if found {
		return s, nil
	}

	var row store.WhatsappConfig
	err := r.db.WithContext(ctx).First(&row, "id = ?", 1).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		// No stored tier; fall through with zero values.
	case err != nil:
		return Settings{}, err
	default:
		s = Settings{DeviceID: row.DeviceID, AdminGroup: row.AdminGroup}
	}

	if err := r.cache.SetJSON(ctx, key, s, settingsCacheTTL); err != nil {
		r.logger.WarnContext(ctx, "whatsapp settings cache write failed", slog.Any("error", err))
	}
	return s, nil
}

// FormatNumber normalizes an Indonesian phone number for the provider:
// strip every non-digit, then rewrite the local prefix to the 62 country
// code. Already-international numbers pass through unchanged.
func FormatNumber(raw string) string {
	var b strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()

	switch {
	case digits == "":
		return ""
	case strings.HasPrefix(digits, "0"):
		return "62" + digits[1:]
	case strings.HasPrefix(digits, "8"):
		return "62" + digits
	default:
		return digits
	}
}
