package bootstrap

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/scidatahub/containerdb/internal/config"
	"github.com/scidatahub/containerdb/internal/modules/model"
	"github.com/scidatahub/containerdb/internal/pkg/apikey"
)

// EnsureAdminUser creates or realigns the bootstrap admin account when the
// service starts. It is a no-op unless both an admin API key and the HMAC
// pepper are configured.
func EnsureAdminUser(ctx context.Context, db *gorm.DB, cfg *config.Config, log *zap.Logger) error {
	secret := cfg.Auth.AdminAPIKey
	pepper := cfg.Auth.SecretPepper

	if secret == "" || pepper == "" {
		return nil
	}

	username := cfg.Auth.AdminUsername
	if username == "" {
		username = "admin"
	}
	lookup := apikey.HMAC256Hex(pepper, secret)

	var admin model.User
	err := db.WithContext(ctx).Where("username = ?", username).First(&admin).Error

	switch err {
	case nil:
		updates := map[string]interface{}{
			"api_key_hmac": lookup,
			"is_admin":     true,
		}
		if cfg.Auth.AdminEmail != "" {
			updates["email"] = cfg.Auth.AdminEmail
		}
		if uErr := db.WithContext(ctx).Model(&admin).Updates(updates).Error; uErr != nil {
			return uErr
		}
		log.Sugar().Infow("admin user exists", "user", admin.ID)
		return nil

	case gorm.ErrRecordNotFound:
		admin = model.User{
			ID:         uuid.New(),
			Username:   username,
			Email:      cfg.Auth.AdminEmail,
			IsAdmin:    true,
			APIKeyHMAC: lookup,
		}
		if cErr := db.WithContext(ctx).Create(&admin).Error; cErr != nil {
			return cErr
		}
		log.Sugar().Infow("admin user created", "user", admin.ID)
		return nil

	default:
		return err
	}
}
