package postgres

import (
	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/repository"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models lists every table in migration order.
var Models = []interface{}{
	&domain.User{},
	&domain.UserSession{},
	&domain.Profile{},
	&domain.UserRole{},
	&domain.Car{},
	&domain.Favorite{},
	&domain.Conversation{},
	&domain.Message{},
}

func NewConnection(databaseURL string, logLevel logger.LogLevel) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(databaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel),
		TranslateError: true,
	})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

// Migrate auto-migrates all tables and adds the constraints AutoMigrate
// cannot express. Safe to run on every start.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models...); err != nil {
		return err
	}
	return migrateConversations(db)
}

// conversationCarFK is the name GORM gives the conversations.car_id foreign key.
const conversationCarFK = "fk_conversations_car"

// migrateConversations keeps (buyer, seller, car) unique when car is NULL.
// The composite index treats NULLs as distinct, so car-less conversations
// get their own partial index, and deleting a car removes its
// conversations instead of nulling car_id into that slot.
func migrateConversations(db *gorm.DB) error {
	var deleteRule string
	err := db.Raw(
		"SELECT confdeltype::text FROM pg_constraint WHERE conname = ? AND conrelid = 'conversations'::regclass",
		conversationCarFK,
	).Scan(&deleteRule).Error
	if err != nil {
		return err
	}
	// 'c' is ON DELETE CASCADE. Older schemas were created with SET NULL.
	if deleteRule != "c" {
		m := db.Migrator()
		if m.HasConstraint(&domain.Conversation{}, conversationCarFK) {
			if err := m.DropConstraint(&domain.Conversation{}, conversationCarFK); err != nil {
				return err
			}
		}
		if err := m.CreateConstraint(&domain.Conversation{}, "Car"); err != nil {
			return err
		}
	}

	return db.Exec(`CREATE UNIQUE INDEX IF NOT EXISTS idx_conversations_participants_no_car
		ON conversations (buyer_id, seller_id) WHERE car_id IS NULL`).Error
}

func NewRepositories(db *gorm.DB) *repository.Repositories {
	return &repository.Repositories{
		User:         NewUserRepository(db),
		Session:      NewSessionRepository(db),
		Profile:      NewProfileRepository(db),
		UserRole:     NewUserRoleRepository(db),
		Car:          NewCarRepository(db),
		Favorite:     NewFavoriteRepository(db),
		Conversation: NewConversationRepository(db),
		Message:      NewMessageRepository(db),
	}
}
