package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dom/car-marketplace/internal/client"
	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

func parseID(flagName, value string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(value))
	if err != nil {
		return uuid.Nil, domain.ValidationFailed(flagName, fmt.Sprintf("--%s must be an id", flagName))
	}
	return id, nil
}

func optional(v string) *string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	return &v
}

func stateErr[T any](s client.State[T]) error {
	if s.Status == client.StatusError {
		return s.Err
	}
	return nil
}

func printCar(c *domain.Car) {
	model := ""
	if c.Model != nil {
		model = " " + *c.Model
	}
	fmt.Printf("  %s  %-9s %s %s%s (%d)  %d  %s  %s/%s  %dkm\n",
		c.ID, c.Status, c.Brand, c.Name, model, c.Year, c.Price, c.Location, c.FuelType, c.Transmission, c.Mileage)
}

// account

func signUpCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("signup", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password (at least 6 characters)")
	name := fs.String("name", "", "Full name")
	phone := fs.String("phone", "", "Phone number")
	location := fs.String("location", "", "City")
	fs.Parse(args)

	outcome, err := e.app.Session.SignUp(ctx, *email, *password, domain.ProfileFields{
		FullName: *name,
		Phone:    optional(*phone),
		Location: optional(*location),
	})
	if err != nil {
		return err
	}
	if outcome.VerificationRequired {
		fmt.Printf("Account %s created. Check %s for the verification link, then run:\n  marketctl verify --token=<token>\n", outcome.UserID, *email)
		return nil
	}
	fmt.Printf("Account %s created and signed in.\n", outcome.UserID)
	return nil
}

func verifyCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	token := fs.String("token", "", "Verification token from the email")
	fs.Parse(args)

	if err := e.gw.VerifyEmail(ctx, *token); err != nil {
		return err
	}
	fmt.Println("Email verified. You can sign in now.")
	return nil
}

func signInCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("signin", flag.ExitOnError)
	email := fs.String("email", "", "Email address")
	password := fs.String("password", "", "Password")
	from := fs.String("from", "", "Path to continue to after signing in")
	fs.Parse(args)

	if err := e.app.Session.SignIn(ctx, *email, *password); err != nil {
		return err
	}
	snap := e.app.Session.Snapshot()
	name := *email
	if snap.Profile != nil {
		name = snap.Profile.FullName
	}
	fmt.Printf("Signed in as %s. Continue to %s\n", name, client.PostLoginTarget(*from))
	return nil
}

func signOutCmd(ctx context.Context, e *env, args []string) error {
	if err := <-e.app.Session.SignOut(); err != nil {
		fmt.Printf("Warning: server sign out failed: %s\n", client.ErrorMessage(err))
	}
	fmt.Println("Signed out.")
	return nil
}

func whoamiCmd(ctx context.Context, e *env, args []string) error {
	snap := e.app.Session.Snapshot()
	if snap.State != client.StateAuthenticated {
		fmt.Println("Not signed in.")
		return nil
	}
	fmt.Printf("User:  %s\nEmail: %s\n", snap.Identity.UserID, snap.Identity.Email)
	if p := snap.Profile; p != nil {
		fmt.Printf("Name:  %s\n", p.FullName)
		if p.Location != nil {
			fmt.Printf("City:  %s\n", *p.Location)
		}
	}
	fmt.Printf("Admin: %t\n", snap.IsAdmin)
	return nil
}

func profileCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	name := fs.String("name", "", "Full name")
	phone := fs.String("phone", "", "Phone number")
	location := fs.String("location", "", "City")
	avatar := fs.String("avatar", "", "Avatar image URL")
	fs.Parse(args)

	current := e.app.Session.Snapshot().Profile
	if current == nil {
		return domain.ErrUnauthenticated
	}
	fields := domain.ProfileFields{
		FullName:    current.FullName,
		Phone:       current.Phone,
		Location:    current.Location,
		AvatarURL:   current.AvatarURL,
		DateOfBirth: current.DateOfBirth,
	}
	if *name != "" {
		fields.FullName = *name
	}
	if *phone != "" {
		fields.Phone = phone
	}
	if *location != "" {
		fields.Location = location
	}
	if *avatar != "" {
		fields.AvatarURL = avatar
	}

	profile, err := e.app.Listings.UpdateProfile(ctx, fields)
	if err != nil {
		return err
	}
	fmt.Printf("Profile saved for %s.\n", profile.FullName)
	return nil
}

// catalogue

func carsCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("cars", flag.ExitOnError)
	brand := fs.String("brand", client.AllFilter, "Brand, or all")
	location := fs.String("location", client.AllFilter, "City, or all")
	fuel := fs.String("fuel", client.AllFilter, "Fuel type, or all")
	minPrice := fs.Int64("min", 0, "Minimum price")
	maxPrice := fs.Int64("max", 0, "Maximum price")
	fs.Parse(args)

	state := e.app.Cars.Fetch(ctx, client.CarFilter{
		Brand: *brand, Location: *location, FuelType: *fuel, MinPrice: *minPrice, MaxPrice: *maxPrice,
	})
	if err := stateErr(state); err != nil {
		return err
	}
	if len(state.Data) == 0 {
		fmt.Println("No cars match these filters.")
		return nil
	}
	fmt.Printf("%d cars:\n", len(state.Data))
	for _, c := range state.Data {
		printCar(c)
	}
	return nil
}

func carCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("car", flag.ExitOnError)
	idFlag := fs.String("id", "", "Listing id")
	fs.Parse(args)

	id, err := parseID("id", *idFlag)
	if err != nil {
		return err
	}
	state := e.app.Car.Fetch(ctx, id)
	if err := stateErr(state); err != nil {
		return err
	}
	car := state.Data
	if car == nil {
		fmt.Println("Car not found.")
		return nil
	}

	printCar(car)
	if car.Description != nil {
		fmt.Printf("\n  %s\n", *car.Description)
	}
	fmt.Println()
	for i, img := range car.Images {
		label := "image"
		if i == 0 {
			label = "cover"
		}
		fmt.Printf("  %-5s %s\n", label, img)
	}
	if car.Owner != nil {
		fmt.Printf("\n  Seller: %s (%s)\n", car.Owner.FullName, car.OwnerID)
	}
	if _, ok := e.app.Session.UserID(); ok {
		e.app.Favorites.Fetch(ctx)
		fmt.Printf("  Saved:  %t\n", e.app.Favorites.IsFavorite(car.ID))
	}
	return nil
}

func myCarsCmd(ctx context.Context, e *env, args []string) error {
	state := e.app.UserCars.Fetch(ctx)
	if err := stateErr(state); err != nil {
		return err
	}
	if _, ok := e.app.Session.UserID(); !ok {
		return domain.ErrUnauthenticated
	}
	if len(state.Data) == 0 {
		fmt.Println("You have no listings yet.")
		return nil
	}
	for _, c := range state.Data {
		printCar(c)
	}
	return nil
}

// listings

func openImage(path string) (client.File, func(), error) {
	f, err := os.Open(path)
	if err != nil {
		return client.File{}, nil, err
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return client.File{}, nil, err
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		head := make([]byte, 512)
		n, _ := f.Read(head)
		contentType = http.DetectContentType(head[:n])
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			f.Close()
			return client.File{}, nil, err
		}
	}
	return client.File{Name: filepath.Base(path), ContentType: contentType, Size: info.Size(), Body: f}, func() { f.Close() }, nil
}

func uploadFiles(ctx context.Context, e *env, paths []string) ([]string, error) {
	var files []client.File
	for _, p := range paths {
		file, closeFile, err := openImage(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		defer closeFile()
		files = append(files, file)
	}

	urls := e.app.Uploads.UploadAll(ctx, files, func(done, total int) {
		fmt.Printf("\rUploading images... %d/%d", done, total)
	})
	fmt.Println()
	return urls, nil
}

func uploadCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() == 0 {
		return domain.ValidationFailed("file", "pass one or more image files")
	}

	urls, err := uploadFiles(ctx, e, fs.Args())
	if err != nil {
		return err
	}
	for _, u := range urls {
		fmt.Println(u)
	}
	return nil
}

func sellCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("sell", flag.ExitOnError)
	name := fs.String("name", "", "Listing title")
	brand := fs.String("brand", "", "Brand")
	model := fs.String("model", "", "Model")
	price := fs.Int64("price", 0, "Price")
	year := fs.Int("year", time.Now().Year(), "Year")
	mileage := fs.Int("mileage", 0, "Mileage in km")
	fuel := fs.String("fuel", string(domain.FuelPetrol), "petrol, diesel, electric or hybrid")
	transmission := fs.String("transmission", string(domain.TransmissionAutomatic), "manual or automatic")
	location := fs.String("location", "", "City")
	description := fs.String("description", "", "Description")
	images := fs.String("images", "", "Comma-separated image files; the first is the cover")
	urls := fs.String("image-urls", "", "Comma-separated URLs of images already uploaded")
	fs.Parse(args)

	set := client.NewImageSet()
	if *urls != "" {
		set.Add(strings.Split(*urls, ",")...)
	}
	if *images != "" {
		uploaded, err := uploadFiles(ctx, e, strings.Split(*images, ","))
		if err != nil {
			return err
		}
		if taken := set.Add(uploaded...); taken < len(uploaded) {
			fmt.Printf("Warning: only %d images fit on a listing; %d dropped\n", domain.MaxCarImages, len(uploaded)-taken)
			for _, u := range uploaded[taken:] {
				e.app.Uploads.Delete(ctx, u)
			}
		}
	}

	car, err := e.app.Listings.Create(ctx, client.NewCar{
		Name:         *name,
		Brand:        *brand,
		Model:        optional(*model),
		Price:        *price,
		Year:         *year,
		Mileage:      *mileage,
		FuelType:     domain.FuelType(*fuel),
		Transmission: domain.Transmission(*transmission),
		Location:     *location,
		Description:  optional(*description),
		Images:       set.URLs(),
	})
	if err != nil {
		return err
	}
	fmt.Printf("Listing %s submitted. It will appear once an admin approves it.\n", car.ID)
	return nil
}

func soldCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("sold", flag.ExitOnError)
	carFlag := fs.String("car", "", "Listing id")
	fs.Parse(args)

	id, err := parseID("car", *carFlag)
	if err != nil {
		return err
	}
	car, err := e.app.Listings.MarkSold(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("%s %s marked sold.\n", car.Brand, car.Name)
	return nil
}

func deleteCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("delete", flag.ExitOnError)
	carFlag := fs.String("car", "", "Listing id")
	asAdmin := fs.Bool("admin", false, "Delete someone else's listing from the admin console")
	fs.Parse(args)

	id, err := parseID("car", *carFlag)
	if err != nil {
		return err
	}
	remove := e.app.Listings.Delete
	if *asAdmin {
		remove = e.app.Admin.DeleteListing
	}
	if err := remove(ctx, id); err != nil {
		return err
	}
	fmt.Println("Listing deleted.")
	return nil
}

// favorites

func favoriteCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("favorite", flag.ExitOnError)
	carFlag := fs.String("car", "", "Listing id")
	fs.Parse(args)

	id, err := parseID("car", *carFlag)
	if err != nil {
		return err
	}
	if _, ok := e.app.Session.UserID(); ok {
		e.app.Favorites.Fetch(ctx)
	}
	_, err = e.app.Favorites.Toggle(ctx, id)
	if errors.Is(err, domain.ErrUnauthenticated) {
		return nil // already reported by the notifier
	}
	return err
}

func favoritesCmd(ctx context.Context, e *env, args []string) error {
	state := e.app.Favorites.Fetch(ctx)
	if err := stateErr(state); err != nil {
		return err
	}
	if len(state.Data.Cars) == 0 {
		fmt.Println("No saved cars.")
		return nil
	}
	for _, c := range state.Data.Cars {
		printCar(c)
	}
	return nil
}

// messaging

func contactCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("contact", flag.ExitOnError)
	sellerFlag := fs.String("seller", "", "Seller user id")
	carFlag := fs.String("car", "", "Listing id (optional)")
	text := fs.String("text", "", "First message to send")
	fs.Parse(args)

	var carID *uuid.UUID
	var sellerID uuid.UUID
	var err error
	if *carFlag != "" {
		id, err := parseID("car", *carFlag)
		if err != nil {
			return err
		}
		carID = &id
		if *sellerFlag == "" {
			car, err := e.gw.GetCar(ctx, id)
			if err != nil {
				return err
			}
			sellerID = car.OwnerID
		}
	}
	if sellerID == uuid.Nil {
		if sellerID, err = parseID("seller", *sellerFlag); err != nil {
			return err
		}
	}

	convID, err := e.app.Conversations.Start(ctx, sellerID, carID)
	if err != nil {
		return err
	}
	fmt.Printf("Conversation %s\n", convID)

	if *text != "" {
		if err := e.app.Messages.Open(ctx, convID); err != nil {
			return err
		}
		if _, err := e.app.Messages.Send(ctx, *text); err != nil {
			return err
		}
		fmt.Println("Message sent.")
	}
	return nil
}

func conversationsCmd(ctx context.Context, e *env, args []string) error {
	userID, ok := e.app.Session.UserID()
	if !ok {
		return domain.ErrUnauthenticated
	}
	state := e.app.Conversations.Fetch(ctx)
	if err := stateErr(state); err != nil {
		return err
	}
	if len(state.Data) == 0 {
		fmt.Println("No conversations yet.")
		return nil
	}
	for _, c := range state.Data {
		with := "unknown"
		if p := c.Counterpart(userID); p != nil {
			with = p.FullName
		}
		about := ""
		if c.Car != nil {
			about = " about " + c.Car.Brand + " " + c.Car.Name
		}
		unread := ""
		if c.UnreadCount > 0 {
			unread = fmt.Sprintf("  [%d unread]", c.UnreadCount)
		}
		fmt.Printf("  %s  %s%s  %s%s\n", c.ID, with, about, c.LastMessageAt.Format(time.RFC822), unread)
	}
	return nil
}

func printMessage(self uuid.UUID, m *domain.Message) {
	who := "them"
	if m.SenderID == self {
		who = "you"
	}
	fmt.Printf("  [%s] %-4s %s\n", m.CreatedAt.Local().Format("Jan 2 15:04"), who, m.Content)
}

func conversationFlag(name string, args []string) (uuid.UUID, []string, error) {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	convFlag := fs.String("conversation", "", "Conversation id")
	fs.Parse(args)
	id, err := parseID("conversation", *convFlag)
	return id, fs.Args(), err
}

func messagesCmd(ctx context.Context, e *env, args []string) error {
	convID, _, err := conversationFlag("messages", args)
	if err != nil {
		return err
	}
	userID, ok := e.app.Session.UserID()
	if !ok {
		return domain.ErrUnauthenticated
	}
	if err := e.app.Messages.Open(ctx, convID); err != nil {
		return err
	}
	state := e.app.Messages.State()
	if err := stateErr(state); err != nil {
		return err
	}
	for _, m := range state.Data {
		printMessage(userID, m)
	}
	return nil
}

func sendCmd(ctx context.Context, e *env, args []string) error {
	convID, rest, err := conversationFlag("send", args)
	if err != nil {
		return err
	}
	if err := e.app.Messages.Open(ctx, convID); err != nil {
		return err
	}
	if _, err := e.app.Messages.Send(ctx, strings.Join(rest, " ")); err != nil {
		return err
	}
	fmt.Println("Message sent.")
	return nil
}

func watchCmd(ctx context.Context, e *env, args []string) error {
	convID, _, err := conversationFlag("watch", args)
	if err != nil {
		return err
	}
	userID, ok := e.app.Session.UserID()
	if !ok {
		return domain.ErrUnauthenticated
	}

	printed := make(map[uuid.UUID]bool)
	flush := func() {
		for _, m := range e.app.Messages.State().Data {
			if !printed[m.ID] {
				printed[m.ID] = true
				printMessage(userID, m)
			}
		}
	}

	updates := make(chan struct{}, 1)
	e.app.Messages.OnChange(func() {
		select {
		case updates <- struct{}{}:
		default:
		}
	})
	if err := e.app.Messages.Open(ctx, convID); err != nil {
		return err
	}
	fmt.Println("Watching for new messages. Press Ctrl-C to stop.")
	flush()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-updates:
			flush()
			if err := stateErr(e.app.Messages.State()); err != nil {
				return err
			}
		}
	}
}

// admin

func adminStatsCmd(ctx context.Context, e *env, args []string) error {
	state := e.app.Admin.FetchStats(ctx)
	if err := stateErr(state); err != nil {
		return err
	}
	s := state.Data
	fmt.Printf("Cars:     %d (%d pending)\nUsers:    %d\nMessages: %d\n", s.TotalCars, s.PendingCars, s.TotalUsers, s.TotalMessages)
	if len(s.RecentPending) > 0 {
		fmt.Println("\nAwaiting review:")
		for _, c := range s.RecentPending {
			printCar(c)
		}
	}
	return nil
}

func adminCarsCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("admin-cars", flag.ExitOnError)
	statusFlag := fs.String("status", string(domain.CarStatusPending), "pending, available, sold, rejected or all")
	fs.Parse(args)

	status, err := client.ParseStatusFilter(*statusFlag)
	if err != nil {
		return err
	}
	state := e.app.Admin.FetchListings(ctx, status)
	if err := stateErr(state); err != nil {
		return err
	}
	fmt.Printf("%d listings:\n", len(state.Data))
	for _, c := range state.Data {
		printCar(c)
	}
	return nil
}

func reviewCmd(name string, decide func(ctx context.Context, id uuid.UUID) (*domain.Car, error)) func(context.Context, *env, []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		carFlag := fs.String("car", "", "Listing id")
		fs.Parse(args)

		id, err := parseID("car", *carFlag)
		if err != nil {
			return err
		}
		car, err := decide(ctx, id)
		if err != nil {
			return err
		}
		fmt.Printf("%s %s is now %s.\n", car.Brand, car.Name, car.Status)
		return nil
	}
}

func approveCmd(ctx context.Context, e *env, args []string) error {
	return reviewCmd("approve", e.app.Admin.Approve)(ctx, e, args)
}

func rejectCmd(ctx context.Context, e *env, args []string) error {
	return reviewCmd("reject", e.app.Admin.Reject)(ctx, e, args)
}

func adminUsersCmd(ctx context.Context, e *env, args []string) error {
	state := e.app.Admin.FetchUsers(ctx)
	if err := stateErr(state); err != nil {
		return err
	}
	for _, u := range state.Data {
		fmt.Printf("  %s  %-6s %s <%s>\n", u.Profile.UserID, u.Role, u.Profile.FullName, u.Profile.Email)
	}
	return nil
}

func roleCmd(name string, admin bool) func(context.Context, *env, []string) error {
	return func(ctx context.Context, e *env, args []string) error {
		fs := flag.NewFlagSet(name, flag.ExitOnError)
		userFlag := fs.String("user", "", "User id")
		fs.Parse(args)

		id, err := parseID("user", *userFlag)
		if err != nil {
			return err
		}
		if err := e.app.Admin.SetAdmin(ctx, id, admin); err != nil {
			return err
		}
		fmt.Println("Role updated.")
		return nil
	}
}

func grantAdminCmd(ctx context.Context, e *env, args []string) error {
	return roleCmd("grant-admin", true)(ctx, e, args)
}

func revokeAdminCmd(ctx context.Context, e *env, args []string) error {
	return roleCmd("revoke-admin", false)(ctx, e, args)
}

func routeCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("route", flag.ExitOnError)
	path := fs.String("path", "/", "Path to navigate to")
	fs.Parse(args)

	d := e.app.Guard.Evaluate(*path)
	fmt.Printf("%s: %s access, %s", *path, e.app.Guard.AccessFor(*path), d.Verdict)
	if d.Verdict == client.Redirect {
		fmt.Printf(" to %s", d.Target)
	}
	fmt.Println()
	return nil
}
