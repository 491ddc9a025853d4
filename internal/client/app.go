package client

// App wires every component over one Gateway. Each page-level consumer
// should own its own read models; App carries one of each for simple
// callers such as the CLI.
type App struct {
	Session       *Store
	Guard         *Guard
	Cars          *Cars
	UserCars      *UserCars
	Car           *CarByID
	Favorites     *Favorites
	Conversations *Conversations
	Messages      *Messages
	Uploads       *Uploads
	Listings      *Listings
	Admin         *AdminConsole
}

func New(gw Gateway, notice Notifier) *App {
	session := NewStore(gw, gw)
	userCars := NewUserCars(gw, session)
	return &App{
		Session:       session,
		Guard:         NewGuard(session),
		Cars:          NewCars(gw),
		UserCars:      userCars,
		Car:           NewCarByID(gw),
		Favorites:     NewFavorites(gw, session, notice),
		Conversations: NewConversations(gw, gw, session),
		Messages:      NewMessages(gw, gw, gw, session),
		Uploads:       NewUploads(gw, session, notice),
		Listings:      NewListings(gw, gw, session, userCars),
		Admin:         NewAdminConsole(gw, gw, session),
	}
}

// Close tears down live subscriptions and the session follower.
func (a *App) Close() {
	a.Messages.Close()
	a.Conversations.Close()
	a.Session.Close()
}
