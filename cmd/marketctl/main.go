package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/dom/car-marketplace/internal/client"
	"github.com/dom/car-marketplace/internal/client/httpgateway"
)

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, env *env, args []string) error
}

var commands = []command{
	{"signup", "Create an account", signUpCmd},
	{"verify", "Confirm an email address with its token", verifyCmd},
	{"signin", "Sign in and remember the session", signInCmd},
	{"signout", "Forget the session here and on the server", signOutCmd},
	{"whoami", "Show the signed-in profile", whoamiCmd},
	{"profile", "Update the signed-in profile", profileCmd},
	{"cars", "Browse available listings", carsCmd},
	{"car", "Show one listing", carCmd},
	{"my-cars", "List your own listings in every status", myCarsCmd},
	{"upload", "Upload images and print their URLs", uploadCmd},
	{"sell", "Submit a listing for review", sellCmd},
	{"sold", "Mark one of your listings sold", soldCmd},
	{"delete", "Delete one of your listings", deleteCmd},
	{"favorite", "Toggle a listing in your favorites", favoriteCmd},
	{"favorites", "List your favorites", favoritesCmd},
	{"contact", "Open a conversation with a seller", contactCmd},
	{"conversations", "List your conversations with unread counts", conversationsCmd},
	{"messages", "Show a conversation and mark it read", messagesCmd},
	{"send", "Send a message", sendCmd},
	{"watch", "Follow a conversation live", watchCmd},
	{"admin-stats", "Show the admin dashboard", adminStatsCmd},
	{"admin-cars", "List listings by status", adminCarsCmd},
	{"approve", "Approve a pending listing", approveCmd},
	{"reject", "Reject a pending listing", rejectCmd},
	{"admin-users", "List users and roles", adminUsersCmd},
	{"grant-admin", "Give a user the admin role", grantAdminCmd},
	{"revoke-admin", "Take the admin role from a user", revokeAdminCmd},
	{"route", "Show what the route guard decides for a path", routeCmd},
	{"seed", "Populate the marketplace with demo sellers and listings", seedCmd},
}

// env is what every command runs against.
type env struct {
	apiURL string
	gw     *httpgateway.Gateway
	app    *client.App
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	// Global settings
	apiURL := "http://localhost:8080"
	if envURL := os.Getenv("MARKET_API_URL"); envURL != "" {
		apiURL = envURL
	}
	tokenPath := os.Getenv("MARKET_SESSION_FILE")
	if tokenPath == "" {
		p, err := httpgateway.DefaultTokenPath()
		if err != nil {
			fmt.Printf("Error: cannot locate session file: %v\n", err)
			os.Exit(1)
		}
		tokenPath = p
	}

	name := os.Args[1]
	if name == "help" || name == "-h" || name == "--help" {
		printUsage()
		return
	}

	var cmd *command
	for i := range commands {
		if commands[i].name == name {
			cmd = &commands[i]
		}
	}
	if cmd == nil {
		fmt.Printf("Unknown command: %s\n\n", name)
		printUsage()
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	gw := httpgateway.New(apiURL, httpgateway.FileTokens{Path: tokenPath})
	app := client.New(gw, consoleNotifier{})
	app.Session.Init(ctx)

	err := cmd.run(ctx, &env{apiURL: apiURL, gw: gw, app: app}, os.Args[2:])
	app.Close()
	gw.Close()
	if err != nil {
		fmt.Printf("Error: %s\n", client.ErrorMessage(err))
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`marketctl - command line client for the car marketplace

USAGE:
  marketctl <command> [options]

COMMANDS:`)
	for _, c := range commands {
		fmt.Printf("  %-14s %s\n", c.name, c.summary)
	}
	fmt.Println(`
ENVIRONMENT:
  MARKET_API_URL       Backend URL (default: http://localhost:8080)
  MARKET_SESSION_FILE  Where the session is kept (default: user config dir)

EXAMPLES:
  # Sign in, then browse diesel cars in Lagos under 5,000,000
  marketctl signin --email=ada@example.com --password=secret123
  marketctl cars --fuel=diesel --location=Lagos --max=5000000

  # List a car with two photos
  marketctl sell --name="Corolla LE" --brand=Toyota --price=4500000 --year=2018 \
    --mileage=62000 --fuel=petrol --transmission=automatic --location=Lagos \
    --images=front.jpg,side.jpg

  # Ask the seller about it and follow the replies
  marketctl contact --seller=<seller id> --car=<car id>
  marketctl watch --conversation=<conversation id>`)
}

// consoleNotifier prints notices the way a toast would show them.
type consoleNotifier struct{}

func (consoleNotifier) Success(message string) { fmt.Printf("✓ %s\n", message) }
func (consoleNotifier) Error(message string)   { fmt.Printf("✗ %s\n", message) }
