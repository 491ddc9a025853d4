package testutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// UserBuilder creates test users with a builder pattern
type UserBuilder struct {
	email    string
	password string
	fullName string
	verified bool
	admin    bool
}

// NewUserBuilder creates a new UserBuilder with default values
func NewUserBuilder() *UserBuilder {
	suffix := uuid.New().String()[:8]
	return &UserBuilder{
		email:    fmt.Sprintf("user_%s@example.com", suffix),
		password: "testpassword123",
		fullName: "Test User " + suffix,
		verified: true,
	}
}

// WithEmail sets the email address
func (b *UserBuilder) WithEmail(email string) *UserBuilder {
	b.email = email
	return b
}

// WithPassword sets the password
func (b *UserBuilder) WithPassword(password string) *UserBuilder {
	b.password = password
	return b
}

// WithFullName sets the profile name
func (b *UserBuilder) WithFullName(name string) *UserBuilder {
	b.fullName = name
	return b
}

// Unverified leaves the email unconfirmed
func (b *UserBuilder) Unverified() *UserBuilder {
	b.verified = false
	return b
}

// AsAdmin grants the admin role
func (b *UserBuilder) AsAdmin() *UserBuilder {
	b.admin = true
	return b
}

// Build creates the user and its profile in the database and returns the
// user with the raw password
func (b *UserBuilder) Build(t *testing.T, db *gorm.DB) (*domain.User, string) {
	t.Helper()

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(b.password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("failed to hash password: %v", err)
	}

	now := time.Now()
	user := &domain.User{
		ID:           uuid.New(),
		Email:        b.email,
		PasswordHash: string(hashedPassword),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if b.verified {
		user.EmailVerifiedAt = &now
	} else {
		token := uuid.New().String()
		user.VerificationToken = &token
	}

	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}

	profile := &domain.Profile{
		ID:        uuid.New(),
		UserID:    user.ID,
		FullName:  b.fullName,
		Email:     b.email,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := db.Create(profile).Error; err != nil {
		t.Fatalf("failed to create profile: %v", err)
	}

	if b.admin {
		role := &domain.UserRole{ID: uuid.New(), UserID: user.ID, Role: domain.RoleAdmin, CreatedAt: now}
		if err := db.Create(role).Error; err != nil {
			t.Fatalf("failed to create role: %v", err)
		}
	}

	return user, b.password
}

// AuthResponse matches the API auth response
type AuthResponse struct {
	User struct {
		ID    string `json:"id"`
		Email string `json:"email"`
	} `json:"user"`
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// BuildAndAuthenticate creates the user in the database, signs in via the API
// and returns the user and access token
func (b *UserBuilder) BuildAndAuthenticate(t *testing.T, ts *TestServer) (*domain.User, string) {
	t.Helper()

	user, password := b.Build(t, ts.DB.DB)

	body, _ := json.Marshal(map[string]string{
		"email":    user.Email,
		"password": password,
	})

	resp, err := http.Post(ts.APIURL("/auth/signin"), "application/json", bytes.NewBuffer(body))
	if err != nil {
		t.Fatalf("failed to sign in: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("unexpected status code: %d", resp.StatusCode)
	}

	var authResp AuthResponse
	if err := json.NewDecoder(resp.Body).Decode(&authResp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	return user, authResp.AccessToken
}

// CarBuilder creates test listings with a builder pattern
type CarBuilder struct {
	owner    *domain.User
	name     string
	brand    string
	price    int64
	location string
	fuelType domain.FuelType
	status   domain.CarStatus
	images   []string
}

// NewCarBuilder creates a new CarBuilder with default values
func NewCarBuilder() *CarBuilder {
	return &CarBuilder{
		name:     "Corolla 1.8",
		brand:    "Toyota",
		price:    15000,
		location: "Lagos",
		fuelType: domain.FuelPetrol,
		status:   domain.CarStatusAvailable,
		images:   []string{"http://localhost/storage/car-images/seed/cover.jpg"},
	}
}

// WithOwner sets the listing owner
func (b *CarBuilder) WithOwner(user *domain.User) *CarBuilder {
	b.owner = user
	return b
}

// WithBrand sets the brand
func (b *CarBuilder) WithBrand(brand string) *CarBuilder {
	b.brand = brand
	return b
}

// WithPrice sets the price
func (b *CarBuilder) WithPrice(price int64) *CarBuilder {
	b.price = price
	return b
}

// WithLocation sets the location
func (b *CarBuilder) WithLocation(location string) *CarBuilder {
	b.location = location
	return b
}

// WithFuelType sets the fuel type
func (b *CarBuilder) WithFuelType(fuel domain.FuelType) *CarBuilder {
	b.fuelType = fuel
	return b
}

// WithStatus sets the listing status
func (b *CarBuilder) WithStatus(status domain.CarStatus) *CarBuilder {
	b.status = status
	return b
}

// WithImages sets the image URLs
func (b *CarBuilder) WithImages(images ...string) *CarBuilder {
	b.images = images
	return b
}

// Build creates the car in the database
func (b *CarBuilder) Build(t *testing.T, db *gorm.DB) *domain.Car {
	t.Helper()

	if b.owner == nil {
		user, _ := NewUserBuilder().Build(t, db)
		b.owner = user
	}

	now := time.Now()
	car := &domain.Car{
		ID:           uuid.New(),
		OwnerID:      b.owner.ID,
		Name:         b.name,
		Brand:        b.brand,
		Price:        b.price,
		Year:         2018,
		Mileage:      42000,
		FuelType:     b.fuelType,
		Transmission: domain.TransmissionAutomatic,
		Location:     b.location,
		Images:       b.images,
		Status:       b.status,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := db.Create(car).Error; err != nil {
		t.Fatalf("failed to create car: %v", err)
	}

	return car
}

// CreateConversation inserts a conversation between buyer and seller about car
func CreateConversation(t *testing.T, db *gorm.DB, buyer, seller *domain.User, car *domain.Car) *domain.Conversation {
	t.Helper()

	now := time.Now()
	conv := &domain.Conversation{
		ID:            uuid.New(),
		BuyerID:       buyer.ID,
		SellerID:      seller.ID,
		LastMessageAt: now,
		CreatedAt:     now,
	}
	if car != nil {
		conv.CarID = &car.ID
	}

	if err := db.Create(conv).Error; err != nil {
		t.Fatalf("failed to create conversation: %v", err)
	}

	return conv
}

// CreateMessage inserts a message from sender into conv
func CreateMessage(t *testing.T, db *gorm.DB, conv *domain.Conversation, sender *domain.User, content string) *domain.Message {
	t.Helper()

	msg := &domain.Message{
		ID:             uuid.New(),
		ConversationID: conv.ID,
		SenderID:       sender.ID,
		Content:        content,
		CreatedAt:      time.Now(),
	}

	if err := db.Create(msg).Error; err != nil {
		t.Fatalf("failed to create message: %v", err)
	}

	return msg
}

// CreateAuthenticatedRequest creates an HTTP request with auth token
func CreateAuthenticatedRequest(t *testing.T, method, url string, body interface{}, token string) *http.Request {
	t.Helper()

	var bodyReader *bytes.Buffer
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("failed to marshal body: %v", err)
		}
		bodyReader = bytes.NewBuffer(jsonBody)
	} else {
		bodyReader = bytes.NewBuffer(nil)
	}

	req, err := http.NewRequestWithContext(context.Background(), method, url, bodyReader)
	if err != nil {
		t.Fatalf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	return req
}
