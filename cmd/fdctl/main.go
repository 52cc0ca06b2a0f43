package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"text/tabwriter"
	"time"

	"github.com/example/food-donation/internal/client"
	"github.com/example/food-donation/internal/config"
	"github.com/example/food-donation/internal/logging"
	"github.com/example/food-donation/internal/models"
)

const usage = `usage: fdctl <command> [flags]

commands:
  register      create an account
  login         obtain and store a credential
  logout        drop the stored session
  whoami        show the stored profile
  set-location  record your coordinates
  nearby        browse claimable gatherings around you
  claim         claim a gathering by id
  post          publish a donation (donors only)
  my-claims     list your claims
`

type app struct {
	api    *client.APIClient
	store  client.SessionStore
	auth   *client.AuthManager
	loc    *client.LocationManager
	logger *slog.Logger
}

func main() {
	if len(os.Args) < 2 {
		os.Stderr.WriteString(usage)
		os.Exit(2)
	}

	cfg, err := config.LoadClientConfig()
	if err != nil {
		fatal(err)
	}
	if err := os.MkdirAll(cfg.StateDir, 0o700); err != nil {
		fatal(err)
	}
	store, err := client.NewFileStore(cfg.StateDir)
	if err != nil {
		fatal(err)
	}
	api := client.NewAPIClient(cfg.BaseURL, func() string {
		if s, ok := store.Load(); ok {
			return s.Credential
		}
		return ""
	})
	a := &app{
		api:    api,
		store:  store,
		auth:   client.NewAuthManager(api, store),
		loc:    client.NewLocationManager(api, store),
		logger: logging.NewLogger(os.Getenv("LOG_LEVEL")),
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "register":
		err = a.register(ctx, args)
	case "login":
		err = a.login(ctx, args)
	case "logout":
		a.auth.Logout()
		fmt.Println("logged out")
	case "whoami":
		err = a.whoami()
	case "set-location":
		err = a.setLocation(args)
	case "nearby":
		err = a.nearby(ctx)
	case "claim":
		err = a.claim(ctx, args)
	case "post":
		err = a.post(ctx, args)
	case "my-claims":
		err = a.myClaims(ctx)
	default:
		os.Stderr.WriteString(usage)
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "fdctl:", err)
	os.Exit(1)
}

func (a *app) register(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("register", flag.ExitOnError)
	name := fs.String("name", "", "display name")
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	role := fs.String("role", "recipient", "donor or recipient")
	fs.Parse(args)

	u, err := a.auth.Register(ctx, client.RegisterProfile{
		Name:     *name,
		Email:    *email,
		Password: *password,
		Role:     models.Role(*role),
	})
	if err != nil {
		return err
	}
	fmt.Printf("registered %s (%s)\n", u.Email, u.Role)
	return nil
}

func (a *app) login(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	email := fs.String("email", "", "email address")
	password := fs.String("password", "", "password")
	fs.Parse(args)

	sess, err := a.auth.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", sess.User.Email, sess.User.Role)
	return nil
}

func (a *app) whoami() error {
	sess, ok := a.store.Load()
	if !ok {
		return fmt.Errorf("not logged in")
	}
	fmt.Printf("%s <%s> role=%s", sess.User.Name, sess.User.Email, sess.User.Role)
	if sess.User.HasLocation() {
		fmt.Printf(" location=%.4f,%.4f", *sess.User.Latitude, *sess.User.Longitude)
	}
	fmt.Println()
	return nil
}

func (a *app) setLocation(args []string) error {
	fs := flag.NewFlagSet("set-location", flag.ExitOnError)
	lat := fs.Float64("lat", 0, "latitude")
	lon := fs.Float64("lon", 0, "longitude")
	fs.Parse(args)

	if err := a.loc.SetLocation(*lat, *lon); err != nil {
		return err
	}
	fmt.Printf("location set to %.4f,%.4f\n", *lat, *lon)
	return nil
}

func (a *app) nearby(ctx context.Context) error {
	sess, _ := a.store.Load()
	if d := client.CanEnter(sess, []models.Role{models.RoleRecipient}); !d.Allowed {
		return fmt.Errorf("not available for this account, see %s", d.RedirectTo)
	}
	coord, ok := a.loc.Location(ctx)
	if !ok {
		return fmt.Errorf("no location set, run set-location first")
	}
	ds := client.NewDiscoveryService(a.api, a.logger)
	found, err := ds.FindGatherings(ctx, coord.Lat, coord.Lon)
	if err != nil {
		return err
	}
	if len(found) == 0 {
		fmt.Println("no gatherings available")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tFOOD\tUNTIL\tDISTANCE")
	for _, g := range found {
		dist := "-"
		if g.DistanceKm != nil {
			dist = fmt.Sprintf("%.1f km", *g.DistanceKm)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", g.ID, g.FoodDetails, g.AvailableTo.Local().Format(time.Kitchen), dist)
	}
	return tw.Flush()
}

func (a *app) claim(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("claim", flag.ExitOnError)
	fs.Parse(args)
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: fdctl claim <gathering-id>")
	}
	id := fs.Arg(0)

	view := client.NewGatheringView(nil)
	cc := client.NewClaimCoordinator(a.api, view)
	outcome, err := cc.Claim(ctx, id)
	switch outcome {
	case client.ClaimSuccess:
		fmt.Printf("claimed %s\n", id)
		return nil
	case client.ClaimConflict:
		fmt.Printf("too late, %s was already claimed\n", id)
		return nil
	default:
		return err
	}
}

func (a *app) post(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("post", flag.ExitOnError)
	food := fs.String("food", "", "what is being donated")
	lat := fs.Float64("lat", 0, "pickup latitude")
	lon := fs.Float64("lon", 0, "pickup longitude")
	hours := fs.Int("hours", 4, "availability window from now")
	fs.Parse(args)

	now := time.Now().UTC()
	g, err := a.api.CreateGathering(ctx, client.GatheringDraft{
		FoodDetails:   *food,
		AvailableFrom: now,
		AvailableTo:   now.Add(time.Duration(*hours) * time.Hour),
		Latitude:      *lat,
		Longitude:     *lon,
	})
	if err != nil {
		return err
	}
	fmt.Printf("posted gathering %s\n", g.ID)
	return nil
}

func (a *app) myClaims(ctx context.Context) error {
	claims, err := a.api.MyClaims(ctx)
	if err != nil {
		return err
	}
	if len(claims) == 0 {
		fmt.Println("no claims yet")
		return nil
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tGATHERING\tSTATUS\tWHEN")
	for _, c := range claims {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.GatheringID, c.Status, c.ClaimTime.Local().Format(time.RFC822))
	}
	return tw.Flush()
}
