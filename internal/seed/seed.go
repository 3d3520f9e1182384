package seed

import (
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	auditdomain "github.com/hormisur/backoffice/internal/audit/domain"
	budgetdomain "github.com/hormisur/backoffice/internal/budget/domain"
	notificationdomain "github.com/hormisur/backoffice/internal/notification/domain"
	paymentdomain "github.com/hormisur/backoffice/internal/payment/domain"
	userdomain "github.com/hormisur/backoffice/internal/user/domain"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// DefaultRoles are created on first boot. Role names are what the staff
// actually uses day to day.
var DefaultRoles = []string{"Administrador", "Contable", "Vendedor"}

// AutoMigrate creates the schema through gorm. Used for sqlite setups and
// tests, where the SQL migrations do not run.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&userdomain.User{},
		&userdomain.Role{},
		&userdomain.UserRole{},
		&budgetdomain.Budget{},
		&paymentdomain.Payment{},
		&notificationdomain.Notification{},
		&auditdomain.AuditLog{},
	)
}

// EnsureRoles inserts the default roles if they are missing.
func EnsureRoles(db *gorm.DB) error {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}

	for _, name := range DefaultRoles {
		var count int64
		if err := db.Model(&userdomain.Role{}).
			Where("lower(name) = lower(?)", name).
			Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		role := userdomain.Role{ID: node.Generate(), Name: name}
		if err := db.Create(&role).Error; err != nil {
			return err
		}
	}
	return nil
}

// EnsureAdmin creates the bootstrap administrator account if no user with
// the given email exists yet.
func EnsureAdmin(db *gorm.DB, adminEmail, adminPassword string) error {
	adminEmail = strings.TrimSpace(adminEmail)
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	var count int64
	if err := db.Model(&userdomain.User{}).
		Where("lower(email) = lower(?)", adminEmail).
		Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(adminPassword), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	admin := userdomain.User{
		ID:           node.Generate(),
		Name:         "Administrador",
		Email:        adminEmail,
		PasswordHash: string(hash),
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&admin).Error; err != nil {
			return err
		}
		var role userdomain.Role
		if err := tx.Where("lower(name) = lower(?)", "Administrador").First(&role).Error; err != nil {
			return err
		}
		return tx.Create(&userdomain.UserRole{UserID: admin.ID, RoleID: role.ID}).Error
	})
}
