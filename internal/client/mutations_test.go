package client

import (
	"bytes"
	"context"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFavorites_ToggleTwiceRestoresMembership(t *testing.T) {
	gw, store := newSignedInFixture(t)
	car := &domain.Car{ID: uuid.New(), Name: "Civic", Status: domain.CarStatusAvailable}
	gw.cars = []*domain.Car{car}
	notices := &recordingNotifier{}

	favorites := NewFavorites(gw, store, notices)
	favorites.Fetch(context.Background())
	require.False(t, favorites.IsFavorite(car.ID))

	on, err := favorites.Toggle(context.Background(), car.ID)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, favorites.IsFavorite(car.ID))
	require.Len(t, favorites.State().Data.Cars, 1, "the refetch brings the joined car")
	assert.Equal(t, "Civic", favorites.State().Data.Cars[0].Name)

	on, err = favorites.Toggle(context.Background(), car.ID)
	require.NoError(t, err)
	assert.False(t, on)
	assert.False(t, favorites.IsFavorite(car.ID))
	assert.Empty(t, favorites.State().Data.Cars)
	assert.Equal(t, []string{noticeFavoriteAdded, noticeFavoriteRemoved}, notices.success)
}

func TestFavorites_DuplicateInsertIsBenign(t *testing.T) {
	gw, store := newSignedInFixture(t)
	carID := uuid.New()
	gw.favorites[carID] = true // saved from another tab

	favorites := NewFavorites(gw, store, &recordingNotifier{})

	on, err := favorites.Toggle(context.Background(), carID)
	require.NoError(t, err)
	assert.True(t, on)
	assert.True(t, favorites.IsFavorite(carID))
}

func TestFavorites_ConcurrentTogglesStayConsistent(t *testing.T) {
	gw, store := newSignedInFixture(t)
	carID := uuid.New()
	favorites := NewFavorites(gw, store, &recordingNotifier{})
	favorites.Fetch(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := favorites.Toggle(context.Background(), carID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	favorites.Fetch(context.Background())
	gw.mu.Lock()
	remote := gw.favorites[carID]
	gw.mu.Unlock()
	assert.Equal(t, remote, favorites.IsFavorite(carID), "cache agrees with the backend")
}

func TestFavorites_AnonymousToggle(t *testing.T) {
	gw, store := newSignedOutFixture(t)
	store.Init(context.Background())
	notices := &recordingNotifier{}
	favorites := NewFavorites(gw, store, notices)
	before := gw.totalCalls()

	carID := uuid.New()
	for i := 0; i < 2; i++ {
		_, err := favorites.Toggle(context.Background(), carID)
		assert.ErrorIs(t, err, domain.ErrUnauthenticated)
	}

	assert.Equal(t, []string{noticeLoginToSave, noticeLoginToSave}, notices.Errors())
	assert.Equal(t, before, gw.totalCalls(), "no remote calls")
}

func TestConversations_StartIsFindOrCreate(t *testing.T) {
	gw, store := newSignedInFixture(t)
	convs := NewConversations(gw, gw, store)
	sellerID := uuid.New()
	carID := uuid.New()

	first, err := convs.Start(context.Background(), sellerID, &carID)
	require.NoError(t, err)
	second, err := convs.Start(context.Background(), sellerID, &carID)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, gw.count("CreateConversation"), "insert only on a lookup miss")
	assert.Equal(t, 2, gw.count("FindConversation"))

	other, err := convs.Start(context.Background(), sellerID, nil)
	require.NoError(t, err)
	assert.NotEqual(t, first, other, "a different car is a different conversation")
}

func TestConversations_StartLosesRace(t *testing.T) {
	gw, store := newSignedInFixture(t)
	userID, _ := store.UserID()
	winner := &domain.Conversation{ID: uuid.New(), BuyerID: userID, SellerID: uuid.New()}

	convs := NewConversations(&racingGateway{fakeGateway: gw, winner: winner}, gw, store)
	id, err := convs.Start(context.Background(), winner.SellerID, nil)

	require.NoError(t, err)
	assert.Equal(t, winner.ID, id, "the conflicting create re-reads the winner")
	assert.Equal(t, 2, gw.count("FindConversation"))
	assert.Equal(t, 1, gw.count("CreateConversation"))
}

// racingGateway inserts a competing conversation just before the create.
type racingGateway struct {
	*fakeGateway
	winner *domain.Conversation
}

func (r *racingGateway) CreateConversation(ctx context.Context, sellerID uuid.UUID, carID *uuid.UUID) (*domain.Conversation, error) {
	r.record("CreateConversation")
	r.mu.Lock()
	r.conversations = append(r.conversations, r.winner)
	r.mu.Unlock()
	return nil, domain.Conflict("conversation", "already exists")
}

func TestUploads_Validation(t *testing.T) {
	gw, store := newSignedInFixture(t)
	notices := &recordingNotifier{}
	uploads := NewUploads(gw, store, notices)
	images := NewImageSet("http://cdn.test/storage/car-images/a/1.jpg")
	before := gw.count("Upload")

	tests := []struct {
		name string
		file File
	}{
		{name: "six megabytes", file: File{Name: "big.jpg", ContentType: "image/jpeg", Size: 6 * 1024 * 1024}},
		{name: "not an image", file: File{Name: "doc.pdf", ContentType: "application/pdf", Size: 1024}},
		{name: "empty", file: File{Name: "x.png", ContentType: "image/png", Size: 0}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			url, err := uploads.Upload(context.Background(), tt.file)
			assert.ErrorIs(t, err, domain.ErrValidation)
			assert.Empty(t, url)
			images.Add(url)
		})
	}

	assert.Equal(t, before, gw.count("Upload"), "no remote call for invalid files")
	assert.Equal(t, 1, images.Len(), "image list unchanged")
	assert.Len(t, notices.Errors(), len(tests))
}

func TestUploads_PathAndProgress(t *testing.T) {
	gw, store := newSignedInFixture(t)
	userID, _ := store.UserID()
	uploads := NewUploads(gw, store, &recordingNotifier{})
	uploads.now = func() time.Time { return time.UnixMilli(1700000000000) }

	files := []File{
		{Name: "front.JPG", ContentType: "image/jpeg", Size: 3, Body: bytes.NewReader([]byte("abc"))},
		{Name: "huge.jpg", ContentType: "image/jpeg", Size: domain.MaxImageBytes + 1},
		{Name: "side", ContentType: "image/png", Size: 3, Body: bytes.NewReader([]byte("abc"))},
	}

	type step struct{ done, total int }
	var steps []step
	urls := uploads.UploadAll(context.Background(), files, func(done, total int) {
		steps = append(steps, step{done, total})
	})

	assert.Equal(t, []step{{0, 3}, {1, 3}, {2, 3}, {3, 3}}, steps)
	assert.Equal(t, 1.0, uploads.Progress())
	assert.False(t, uploads.IsUploading())
	require.Len(t, urls, 2, "the oversized file is skipped")

	pattern := regexp.MustCompile(`/car-images/` + userID.String() + `/1700000000000-[0-9a-v]{20}\.(jpg|png)$`)
	for _, url := range urls {
		assert.Regexp(t, pattern, url)
	}
	assert.Regexp(t, `\.jpg$`, urls[0])
	assert.Regexp(t, `\.png$`, urls[1])
}

func TestUploads_DeleteAndImageSet(t *testing.T) {
	gw, store := newSignedInFixture(t)
	uploads := NewUploads(gw, store, &recordingNotifier{})

	stored, err := uploads.Upload(context.Background(), File{Name: "a.png", ContentType: "image/png", Size: 1, Body: bytes.NewReader([]byte("a"))})
	require.NoError(t, err)
	foreign := "https://elsewhere.test/photo.png"

	images := NewImageSet(stored, foreign)
	assert.Equal(t, stored, images.Cover())

	images.Remove(context.Background(), uploads, foreign)
	assert.Equal(t, []string{stored}, images.URLs(), "an unmatched URL is still dropped")
	assert.Zero(t, gw.count("Delete"), "no remote delete without a storage path")

	images.Remove(context.Background(), uploads, stored)
	assert.Zero(t, images.Len())
	assert.Equal(t, 1, gw.count("Delete"))
	assert.Empty(t, gw.objects)

	many := make([]string, domain.MaxCarImages+2)
	for i := range many {
		many[i] = "u"
	}
	assert.Equal(t, domain.MaxCarImages, images.Add(many...))
}

func TestPathFromURL(t *testing.T) {
	tests := []struct {
		url  string
		path string
		ok   bool
	}{
		{url: "http://localhost:8080/storage/car-images/u1/1-a.jpg", path: "u1/1-a.jpg", ok: true},
		{url: "https://res.cloudinary.com/demo/image/upload/v1/car-images/u1/1-a.jpg?x=1", path: "u1/1-a.jpg", ok: true},
		{url: "https://example.com/u1/1-a.jpg"},
		{url: "https://example.com/car-images/"},
	}
	for _, tt := range tests {
		path, ok := PathFromURL(tt.url)
		assert.Equal(t, tt.ok, ok, tt.url)
		assert.Equal(t, tt.path, path, tt.url)
	}
}

func TestListings(t *testing.T) {
	gw, store := newSignedInFixture(t)
	mine := NewUserCars(gw, store)
	listings := NewListings(gw, gw, store, mine)
	mine.Fetch(context.Background())

	_, err := listings.Create(context.Background(), NewCar{Name: "Civic", Brand: "Honda"})
	assert.ErrorIs(t, err, domain.ErrValidation, "a listing needs an image")
	assert.Zero(t, gw.count("CreateCar"))

	car, err := listings.Create(context.Background(), NewCar{Name: "Civic", Brand: "Honda", Images: []string{"cover.jpg"}})
	require.NoError(t, err)
	assert.Equal(t, domain.CarStatusPending, car.Status)
	require.Len(t, mine.State().Data, 1)

	_, err = listings.MarkSold(context.Background(), car.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "pending cannot be sold")

	gw.cars[0].Status = domain.CarStatusAvailable
	sold, err := listings.MarkSold(context.Background(), car.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CarStatusSold, sold.Status)
	assert.Equal(t, domain.CarStatusSold, mine.State().Data[0].Status)

	_, err = gw.SetCarStatus(context.Background(), car.ID, domain.CarStatusAvailable)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition, "sold is terminal")

	require.NoError(t, listings.Delete(context.Background(), car.ID))
	assert.Empty(t, mine.State().Data)

	profile, err := listings.UpdateProfile(context.Background(), domain.ProfileFields{FullName: "Ada Eze"})
	require.NoError(t, err)
	assert.Equal(t, "Ada Eze", profile.FullName)
	assert.Equal(t, "Ada Eze", store.Snapshot().Profile.FullName, "session profile refreshed")
}

func TestAdminConsole(t *testing.T) {
	gw, store := newSignedOutFixture(t)
	store.Init(context.Background())
	admin := NewAdminConsole(gw, gw, store)

	state := admin.FetchStats(context.Background())
	assert.ErrorIs(t, state.Err, domain.ErrUnauthenticated)

	require.NoError(t, store.SignIn(context.Background(), "ada@example.com", "secret1"))
	state = admin.FetchStats(context.Background())
	assert.ErrorIs(t, state.Err, domain.ErrForbidden)
	assert.Zero(t, gw.count("Stats"))

	gw.profile.IsAdmin = true
	require.NoError(t, store.RefreshProfile(context.Background()))

	pending := &domain.Car{ID: uuid.New(), Status: domain.CarStatusPending}
	other := &domain.Car{ID: uuid.New(), Status: domain.CarStatusPending}
	gw.cars = []*domain.Car{pending, other}

	state = admin.FetchStats(context.Background())
	require.True(t, state.Ready())
	assert.Equal(t, int64(2), state.Data.PendingCars)

	filter, err := ParseStatusFilter("pending")
	require.NoError(t, err)
	admin.FetchListings(context.Background(), filter)
	require.Len(t, admin.Listings().Data, 2)

	approved, err := admin.Approve(context.Background(), pending.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.CarStatusAvailable, approved.Status)
	assert.Len(t, admin.Listings().Data, 1, "approved car leaves the pending list")
	assert.Equal(t, int64(1), admin.Stats().Data.PendingCars)

	_, err = admin.Approve(context.Background(), pending.ID)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	require.NoError(t, admin.DeleteListing(context.Background(), other.ID))
	assert.Empty(t, admin.Listings().Data)
	assert.Equal(t, 1, gw.count("DeleteCar"))

	all, err := ParseStatusFilter("all")
	require.NoError(t, err)
	assert.Nil(t, all)
	_, err = ParseStatusFilter("archived")
	assert.ErrorIs(t, err, domain.ErrValidation)

	require.NoError(t, admin.SetAdmin(context.Background(), uuid.New(), true))
	assert.Equal(t, 1, gw.count("GrantAdmin"))
	assert.Equal(t, 1, gw.count("ListUsers"))
}
