package main

import (
	"bytes"
	"context"
	"flag"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math/rand"

	"github.com/dom/car-marketplace/internal/client"
	"github.com/dom/car-marketplace/internal/client/httpgateway"
	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

type seedCar struct {
	brand, name, model string
	fuel               domain.FuelType
	transmission       domain.Transmission
}

var seedCatalogue = []seedCar{
	{"Toyota", "Corolla", "LE", domain.FuelPetrol, domain.TransmissionAutomatic},
	{"Honda", "Civic", "EX", domain.FuelPetrol, domain.TransmissionManual},
	{"Tesla", "Model 3", "Long Range", domain.FuelElectric, domain.TransmissionAutomatic},
	{"Toyota", "Prius", "", domain.FuelHybrid, domain.TransmissionAutomatic},
	{"Volkswagen", "Golf", "TDI", domain.FuelDiesel, domain.TransmissionManual},
	{"Mercedes-Benz", "C300", "", domain.FuelPetrol, domain.TransmissionAutomatic},
	{"Ford", "Ranger", "XLT", domain.FuelDiesel, domain.TransmissionManual},
	{"Hyundai", "Ioniq", "", domain.FuelHybrid, domain.TransmissionAutomatic},
}

var seedCities = []string{"Lagos", "Abuja", "Ibadan", "Port Harcourt"}

// placeholderPNG draws a solid swatch so every seeded listing has a cover.
func placeholderPNG(c color.RGBA) ([]byte, error) {
	img := image.NewRGBA(image.Rect(0, 0, 320, 200))
	for y := 0; y < 200; y++ {
		for x := 0; x < 320; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// seedSeller signs one seller up on its own gateway and submits their listings.
func seedSeller(ctx context.Context, apiURL string, n, listings int, password string, rng *rand.Rand) ([]uuid.UUID, error) {
	gw := httpgateway.New(apiURL, &httpgateway.MemoryTokens{})
	defer gw.Close()
	app := client.New(gw, client.LogNotifier{})
	defer app.Close()
	app.Session.Init(ctx)

	email := fmt.Sprintf("seller%d-%s@example.com", n, uuid.NewString()[:8])
	city := seedCities[n%len(seedCities)]
	outcome, err := app.Session.SignUp(ctx, email, password, domain.ProfileFields{
		FullName: fmt.Sprintf("Demo Seller %d", n),
		Location: &city,
	})
	if err != nil {
		return nil, err
	}
	if outcome.VerificationRequired {
		return nil, fmt.Errorf("%s needs email verification; run the server with AUTO_VERIFY_EMAIL=true to seed", email)
	}

	var ids []uuid.UUID
	for i := 0; i < listings; i++ {
		model := seedCatalogue[rng.Intn(len(seedCatalogue))]
		body, err := placeholderPNG(color.RGBA{R: uint8(rng.Intn(256)), G: uint8(rng.Intn(256)), B: uint8(rng.Intn(256)), A: 255})
		if err != nil {
			return ids, err
		}
		urls := app.Uploads.UploadAll(ctx, []client.File{{
			Name: "cover.png", ContentType: "image/png", Size: int64(len(body)), Body: bytes.NewReader(body),
		}}, nil)

		car := client.NewCar{
			Name:         model.name,
			Brand:        model.brand,
			Price:        int64(1_500_000 + rng.Intn(40)*250_000),
			Year:         2010 + rng.Intn(15),
			Mileage:      rng.Intn(180_000),
			FuelType:     model.fuel,
			Transmission: model.transmission,
			Location:     city,
			Images:       urls,
		}
		if model.model != "" {
			car.Model = &model.model
		}
		created, err := app.Listings.Create(ctx, car)
		if err != nil {
			return ids, err
		}
		ids = append(ids, created.ID)
	}
	fmt.Printf("  %s: %d listings\n", email, len(ids))
	return ids, nil
}

func seedCmd(ctx context.Context, e *env, args []string) error {
	fs := flag.NewFlagSet("seed", flag.ExitOnError)
	sellers := fs.Int("sellers", 3, "Number of demo sellers to create")
	perSeller := fs.Int("listings", 2, "Listings per seller")
	password := fs.String("password", "password123", "Password for the demo sellers")
	adminEmail := fs.String("admin-email", "", "Admin account used to approve listings (default: the signed-in session)")
	adminPassword := fs.String("admin-password", "", "Password for --admin-email")
	approve := fs.Bool("approve", true, "Approve the seeded listings")
	seed := fs.Int64("seed", 1, "Random seed")
	fs.Parse(args)

	if *approve {
		if *adminEmail != "" {
			if err := e.app.Session.SignIn(ctx, *adminEmail, *adminPassword); err != nil {
				return err
			}
		}
		if !e.app.Session.IsAdmin() {
			return domain.Forbidden("approving listings requires an admin session; sign in as an admin or pass --approve=false")
		}
	}

	rng := rand.New(rand.NewSource(*seed))
	fmt.Printf("Seeding %d sellers against %s\n", *sellers, e.apiURL)

	var created []uuid.UUID
	for i := 1; i <= *sellers; i++ {
		ids, err := seedSeller(ctx, e.apiURL, i, *perSeller, *password, rng)
		created = append(created, ids...)
		if err != nil {
			return err
		}
	}

	if *approve {
		for _, id := range created {
			if _, err := e.app.Admin.Approve(ctx, id); err != nil {
				return err
			}
		}
		fmt.Printf("Approved %d listings.\n", len(created))
	}
	return nil
}
