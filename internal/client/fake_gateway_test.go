package client

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/dom/car-marketplace/internal/websocket"
	"github.com/google/uuid"
)

// fakeGateway is an in-memory backend. Hooks override individual calls.
type fakeGateway struct {
	mu    sync.Mutex
	calls map[string]int

	identity *Identity
	restored *Identity
	profile  *domain.Profile
	changes  chan SessionEvent

	signInErr   error
	signOutGate chan struct{}

	cars      []*domain.Car
	listCars  func(ctx context.Context, q CarQuery) ([]*domain.Car, error)
	favorites map[uuid.UUID]bool
	addErr    error

	conversations []*domain.Conversation
	createErr     error
	messages      map[uuid.UUID][]*domain.Message
	unread        map[uuid.UUID]int64
	touchErr      error

	objects map[string]int64

	subs         []*fakeSubscription
	subscribeErr error
}

func newFakeGateway() *fakeGateway {
	return &fakeGateway{
		calls:     make(map[string]int),
		changes:   make(chan SessionEvent, 4),
		favorites: make(map[uuid.UUID]bool),
		messages:  make(map[uuid.UUID][]*domain.Message),
		unread:    make(map[uuid.UUID]int64),
		objects:   make(map[string]int64),
	}
}

func (f *fakeGateway) record(name string) {
	f.mu.Lock()
	f.calls[name]++
	f.mu.Unlock()
}

func (f *fakeGateway) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeGateway) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *fakeGateway) signedIn() (uuid.UUID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.identity == nil {
		return uuid.Nil, domain.ErrUnauthenticated
	}
	return f.identity.UserID, nil
}

// auth

func (f *fakeGateway) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	f.record("SignIn")
	if f.signInErr != nil {
		return nil, f.signInErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.identity = &Identity{UserID: f.profile.UserID, Email: email, AccessToken: "access", RefreshToken: "refresh", ExpiresAt: time.Now().Add(time.Hour)}
	return f.identity, nil
}

func (f *fakeGateway) SignUp(ctx context.Context, email, password string, fields domain.ProfileFields) (*SignUpOutcome, error) {
	f.record("SignUp")
	return &SignUpOutcome{UserID: uuid.New(), VerificationRequired: true}, nil
}

func (f *fakeGateway) VerifyEmail(ctx context.Context, token string) error {
	f.record("VerifyEmail")
	return nil
}

func (f *fakeGateway) SignOut(ctx context.Context) error {
	f.record("SignOut")
	if f.signOutGate != nil {
		select {
		case <-f.signOutGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	f.identity = nil
	f.mu.Unlock()
	return nil
}

func (f *fakeGateway) Restore(ctx context.Context) (*Identity, error) {
	f.record("Restore")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.restored != nil {
		f.identity = f.restored
	}
	return f.restored, nil
}

func (f *fakeGateway) SessionChanges() <-chan SessionEvent { return f.changes }

// profile

func (f *fakeGateway) GetProfile(ctx context.Context) (*domain.Profile, error) {
	f.record("GetProfile")
	if _, err := f.signedIn(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	p := *f.profile
	return &p, nil
}

func (f *fakeGateway) UpdateProfile(ctx context.Context, fields domain.ProfileFields) (*domain.Profile, error) {
	f.record("UpdateProfile")
	f.mu.Lock()
	defer f.mu.Unlock()
	fields.Apply(f.profile)
	p := *f.profile
	return &p, nil
}

// cars

func (f *fakeGateway) ListCars(ctx context.Context, q CarQuery) ([]*domain.Car, error) {
	f.record("ListCars")
	if f.listCars != nil {
		return f.listCars(ctx, q)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Car
	for _, c := range f.cars {
		if c.Status != domain.CarStatusAvailable {
			continue
		}
		if q.Brand != "" && c.Brand != q.Brand {
			continue
		}
		out = append(out, c)
	}
	return out, nil
}

func (f *fakeGateway) ListMyCars(ctx context.Context) ([]*domain.Car, error) {
	f.record("ListMyCars")
	userID, err := f.signedIn()
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Car
	for _, c := range f.cars {
		if c.OwnerID == userID {
			out = append(out, c)
		}
	}
	return out, nil
}

func (f *fakeGateway) findCar(id uuid.UUID) *domain.Car {
	for _, c := range f.cars {
		if c.ID == id {
			return c
		}
	}
	return nil
}

func (f *fakeGateway) GetCar(ctx context.Context, id uuid.UUID) (*domain.Car, error) {
	f.record("GetCar")
	f.mu.Lock()
	defer f.mu.Unlock()
	if c := f.findCar(id); c != nil {
		return c, nil
	}
	return nil, domain.NotFound("car", id.String())
}

func (f *fakeGateway) CreateCar(ctx context.Context, car NewCar) (*domain.Car, error) {
	f.record("CreateCar")
	userID, err := f.signedIn()
	if err != nil {
		return nil, err
	}
	created := &domain.Car{ID: uuid.New(), OwnerID: userID, Name: car.Name, Brand: car.Brand, Images: car.Images, Status: domain.CarStatusPending}
	f.mu.Lock()
	f.cars = append(f.cars, created)
	f.mu.Unlock()
	return created, nil
}

func (f *fakeGateway) SetCarStatus(ctx context.Context, id uuid.UUID, status domain.CarStatus) (*domain.Car, error) {
	f.record("SetCarStatus")
	f.mu.Lock()
	defer f.mu.Unlock()
	c := f.findCar(id)
	if c == nil {
		return nil, domain.NotFound("car", id.String())
	}
	next := *c
	if err := next.Transition(status); err != nil {
		return nil, err
	}
	*c = next
	return &next, nil
}

func (f *fakeGateway) DeleteCar(ctx context.Context, id uuid.UUID) error {
	f.record("DeleteCar")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cars = removeCar(f.cars, id)
	return nil
}

// favorites

func (f *fakeGateway) ListFavorites(ctx context.Context) ([]*domain.Favorite, error) {
	f.record("ListFavorites")
	userID, err := f.signedIn()
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Favorite
	for carID := range f.favorites {
		out = append(out, &domain.Favorite{ID: uuid.New(), UserID: userID, CarID: carID, Car: f.findCar(carID)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CarID.String() < out[j].CarID.String() })
	return out, nil
}

func (f *fakeGateway) AddFavorite(ctx context.Context, carID uuid.UUID) error {
	f.record("AddFavorite")
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	if f.favorites[carID] {
		return domain.Conflict("favorite", "already saved")
	}
	f.favorites[carID] = true
	return nil
}

func (f *fakeGateway) RemoveFavorite(ctx context.Context, carID uuid.UUID) error {
	f.record("RemoveFavorite")
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.favorites, carID)
	return nil
}

// conversations

func (f *fakeGateway) ListConversations(ctx context.Context) ([]*domain.Conversation, error) {
	f.record("ListConversations")
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*domain.Conversation, 0, len(f.conversations))
	for _, c := range f.conversations {
		cp := *c
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeGateway) FindConversation(ctx context.Context, sellerID uuid.UUID, carID *uuid.UUID) (*domain.Conversation, error) {
	f.record("FindConversation")
	buyerID, err := f.signedIn()
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conversations {
		if c.BuyerID == buyerID && c.SellerID == sellerID && c.SameCar(carID) {
			return c, nil
		}
	}
	return nil, domain.NotFound("conversation", "")
}

func (f *fakeGateway) CreateConversation(ctx context.Context, sellerID uuid.UUID, carID *uuid.UUID) (*domain.Conversation, error) {
	f.record("CreateConversation")
	buyerID, err := f.signedIn()
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	conv := &domain.Conversation{ID: uuid.New(), BuyerID: buyerID, SellerID: sellerID, CarID: carID, LastMessageAt: time.Now()}
	f.conversations = append(f.conversations, conv)
	return conv, nil
}

func (f *fakeGateway) CountUnread(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	f.record("CountUnread")
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.unread[conversationID], nil
}

func (f *fakeGateway) TouchConversation(ctx context.Context, conversationID uuid.UUID) error {
	f.record("TouchConversation")
	return f.touchErr
}

// messages

func (f *fakeGateway) ListMessages(ctx context.Context, conversationID uuid.UUID) ([]*domain.Message, error) {
	f.record("ListMessages")
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*domain.Message(nil), f.messages[conversationID]...), nil
}

func (f *fakeGateway) SendMessage(ctx context.Context, conversationID uuid.UUID, content string) (*domain.Message, error) {
	f.record("SendMessage")
	senderID, err := f.signedIn()
	if err != nil {
		return nil, err
	}
	msg := &domain.Message{ID: uuid.New(), ConversationID: conversationID, SenderID: senderID, Content: content, CreatedAt: time.Now()}
	f.mu.Lock()
	f.messages[conversationID] = append(f.messages[conversationID], msg)
	f.mu.Unlock()
	f.push(websocket.CollectionMessages, websocket.EventInserted, msg, map[string][]string{
		websocket.FieldConversationID: {conversationID.String()},
	})
	return msg, nil
}

func (f *fakeGateway) MarkRead(ctx context.Context, conversationID uuid.UUID) (int64, error) {
	f.record("MarkRead")
	f.mu.Lock()
	defer f.mu.Unlock()
	n := f.unread[conversationID]
	f.unread[conversationID] = 0
	return n, nil
}

// objects

func (f *fakeGateway) Upload(ctx context.Context, path, contentType string, size int64, body io.Reader) (string, error) {
	f.record("Upload")
	f.mu.Lock()
	defer f.mu.Unlock()
	f.objects[path] = size
	return "http://cdn.test/storage/" + ImageBucket + "/" + path, nil
}

func (f *fakeGateway) Delete(ctx context.Context, path string) error {
	f.record("Delete")
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.objects, path)
	return nil
}

// admin

func (f *fakeGateway) Stats(ctx context.Context) (*domain.DashboardStats, error) {
	f.record("Stats")
	f.mu.Lock()
	defer f.mu.Unlock()
	stats := &domain.DashboardStats{TotalCars: int64(len(f.cars))}
	for _, c := range f.cars {
		if c.Status == domain.CarStatusPending {
			stats.PendingCars++
			stats.RecentPending = append(stats.RecentPending, c)
		}
	}
	return stats, nil
}

func (f *fakeGateway) ListAllCars(ctx context.Context, status *domain.CarStatus) ([]*domain.Car, error) {
	f.record("ListAllCars")
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*domain.Car
	for _, c := range f.cars {
		if status == nil || c.Status == *status {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeGateway) ListUsers(ctx context.Context) ([]*domain.UserWithRole, error) {
	f.record("ListUsers")
	return nil, nil
}

func (f *fakeGateway) GrantAdmin(ctx context.Context, userID uuid.UUID) error {
	f.record("GrantAdmin")
	return nil
}

func (f *fakeGateway) RevokeAdmin(ctx context.Context, userID uuid.UUID) error {
	f.record("RevokeAdmin")
	return nil
}

// subscriptions

type fakeSubscription struct {
	topic  websocket.Topic
	events chan websocket.ChangeEvent
	done   chan struct{}
	once   sync.Once
	ended  atomic.Bool
}

// end closes the events channel the way a dropped connection does.
func (s *fakeSubscription) end() {
	if s.ended.CompareAndSwap(false, true) {
		close(s.events)
	}
}

func (s *fakeSubscription) Events() <-chan websocket.ChangeEvent { return s.events }

func (s *fakeSubscription) Close() error {
	s.once.Do(func() { close(s.done) })
	return nil
}

func (s *fakeSubscription) closed() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

func (f *fakeGateway) Subscribe(ctx context.Context, topic websocket.Topic) (Subscription, error) {
	f.record("Subscribe")
	f.mu.Lock()
	err := f.subscribeErr
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	sub := &fakeSubscription{topic: topic, events: make(chan websocket.ChangeEvent, 16), done: make(chan struct{})}
	f.mu.Lock()
	f.subs = append(f.subs, sub)
	f.mu.Unlock()
	return sub, nil
}

func (f *fakeGateway) openSubs() []*fakeSubscription {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSubscription
	for _, s := range f.subs {
		if !s.closed() && !s.ended.Load() {
			out = append(out, s)
		}
	}
	return out
}

// push delivers a change to every open subscription whose topic matches.
func (f *fakeGateway) push(collection string, eventType websocket.EventType, row interface{}, keys map[string][]string) {
	ev, err := websocket.NewChangeEvent(collection, eventType, row, keys)
	if err != nil {
		panic(err)
	}
	for _, s := range f.openSubs() {
		if !s.topic.Matches(ev) {
			continue
		}
		select {
		case s.events <- ev:
		case <-s.done:
		}
	}
}

// recordingNotifier keeps every notice.
type recordingNotifier struct {
	mu      sync.Mutex
	success []string
	errors  []string
}

func (n *recordingNotifier) Success(message string) {
	n.mu.Lock()
	n.success = append(n.success, message)
	n.mu.Unlock()
}

func (n *recordingNotifier) Error(message string) {
	n.mu.Lock()
	n.errors = append(n.errors, message)
	n.mu.Unlock()
}

func (n *recordingNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}
