package main

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"storysync/internal/api"
	"storysync/internal/app"
	"storysync/internal/config"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var offline bool

func main() {
	if err := app.LoadDotEnv(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "sync", "add").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}
	app.ApplyEnv(cfg)

	a, err := app.New(cfg, operation, app.Options{Offline: offline, Out: os.Stdout})
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:   "storysync",
	Short: "Offline-friendly client for the story service",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		deviceID := uuid.New().String()
		cfg := config.NewConfig(deviceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		app.ApplyEnv(cfg)

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device ID:    %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:     %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:      %s\n", cfg.LogDir)
		fmt.Printf("API:          %s\n", cfg.API.BaseURL)
		fmt.Printf("Geocoder:     %s\n", cfg.Geocoder.Type)
		fmt.Printf("Database:     %s\n", cfg.Database.Type)
		fmt.Printf("Token:        %s\n", cfg.Token.Type)
		fmt.Printf("Connectivity: %s\n", cfg.Connectivity.Type)
		return nil
	},
}

// account commands
var registerCmd = &cobra.Command{
	Use:   "register",
	Short: "Create an account",
	RunE: func(cmd *cobra.Command, args []string) error {
		name, _ := cmd.Flags().GetString("name")
		email, _ := cmd.Flags().GetString("email")

		password, err := readPassword()
		if err != nil {
			return err
		}

		a, err := newApp("register")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Register(cmd.Context(), name, email, password); err != nil {
			return fmt.Errorf("registering: %w", err)
		}
		fmt.Println("Account created. Log in with: storysync login --email", email)
		return nil
	},
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log in and store the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")

		password, err := readPassword()
		if err != nil {
			return err
		}

		a, err := newApp("login")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Login(cmd.Context(), email, password); err != nil {
			return fmt.Errorf("logging in: %w", err)
		}
		fmt.Println("Logged in.")
		return nil
	},
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Forget the session token",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("logout")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Logout(cmd.Context()); err != nil {
			return err
		}
		fmt.Println("Logged out.")
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show session and local store state",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("status")
		if err != nil {
			return err
		}
		defer a.Close()

		st, err := a.Status(cmd.Context())
		if err != nil {
			return err
		}

		switch {
		case !st.LoggedIn:
			fmt.Println("Session:  not logged in")
		case st.ExpiresAt.IsZero():
			fmt.Println("Session:  logged in")
		case st.Expired(time.Now()):
			fmt.Printf("Session:  expired at %s\n", st.ExpiresAt.Local().Format("2006-01-02 15:04"))
		default:
			fmt.Printf("Session:  logged in until %s\n", st.ExpiresAt.Local().Format("2006-01-02 15:04"))
		}
		fmt.Printf("Network:  %s\n", onlineLabel(st.Online))
		fmt.Printf("Cached:   %d\n", st.Cached)
		fmt.Printf("Saved:    %d\n", st.Saved)
		fmt.Printf("Queued:   %d\n", st.Pending)
		return nil
	},
}

// story commands
var storiesCmd = &cobra.Command{
	Use:   "stories",
	Short: "List stories",
	RunE: func(cmd *cobra.Command, args []string) error {
		withLocation, _ := cmd.Flags().GetBool("location")

		a, err := newApp("stories")
		if err != nil {
			return err
		}
		defer a.Close()

		stories, err := a.Stories(cmd.Context(), withLocation)
		if err != nil {
			return err
		}
		printStories(stories)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show ID",
	Short: "Show one story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("show")
		if err != nil {
			return err
		}
		defer a.Close()

		s, err := a.Story(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		printStory(s)
		return nil
	},
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Post a story, queueing it while offline",
	RunE: func(cmd *cobra.Command, args []string) error {
		description, _ := cmd.Flags().GetString("description")
		photo, _ := cmd.Flags().GetString("photo")

		req := app.AddRequest{Description: description, PhotoPath: photo}
		if cmd.Flags().Changed("lat") || cmd.Flags().Changed("lon") {
			lat, _ := cmd.Flags().GetFloat64("lat")
			lon, _ := cmd.Flags().GetFloat64("lon")
			req.Lat, req.Lon = &lat, &lon
		}

		a, err := newApp("add")
		if err != nil {
			return err
		}
		defer a.Close()

		res, err := a.Add(cmd.Context(), req)
		if err != nil {
			return err
		}
		switch {
		case res.Queued != nil:
			fmt.Printf("Queued as %s\n", res.Queued.ID)
		case res.Story != nil:
			fmt.Printf("Posted %s\n", res.Story.ID)
		default:
			fmt.Println("Posted.")
		}
		return nil
	},
}

var saveCmd = &cobra.Command{
	Use:   "save ID",
	Short: "Bookmark a story",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("save")
		if err != nil {
			return err
		}
		defer a.Close()

		added, err := a.Save(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		if !added {
			fmt.Println("Already saved.")
			return nil
		}
		fmt.Println("Saved.")
		return nil
	},
}

var unsaveCmd = &cobra.Command{
	Use:   "unsave ID",
	Short: "Remove a bookmark",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("unsave")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Unsave(cmd.Context(), args[0])
	},
}

var savedCmd = &cobra.Command{
	Use:   "saved",
	Short: "List bookmarked stories",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("saved")
		if err != nil {
			return err
		}
		defer a.Close()

		stories, err := a.Saved(cmd.Context())
		if err != nil {
			return err
		}
		printStories(stories)
		return nil
	},
}

// queue commands
var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "List stories waiting to be sent",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("queue")
		if err != nil {
			return err
		}
		defer a.Close()

		pending, err := a.Queue(cmd.Context())
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			fmt.Println("Queue is empty.")
			return nil
		}
		for _, p := range pending {
			fmt.Printf("%s  %s  %s\n", p.ID, p.EnqueuedAt.Local().Format("2006-01-02 15:04"), truncate(p.Description, 60))
		}
		return nil
	},
}

var queueDiscardCmd = &cobra.Command{
	Use:   "discard ID",
	Short: "Drop a queued story without sending it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("discard")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.Discard(cmd.Context(), args[0])
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Send queued stories now",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("sync")
		if err != nil {
			return err
		}
		defer a.Close()

		report, err := a.Sync(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Sent %d, skipped %d, failed %d, %d still queued\n",
			report.Sent, report.Skipped, report.Failed, len(report.Pending))
		return nil
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Send queued stories whenever the network comes back",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := newApp("watch")
		if err != nil {
			return err
		}
		defer a.Close()

		fmt.Println("Watching for connectivity, Ctrl-C to stop.")
		return a.Watch(ctx)
	},
}

// push commands
var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Manage push notification subscriptions",
}

var pushSubscribeCmd = &cobra.Command{
	Use:   "subscribe",
	Short: "Register a push subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, _ := cmd.Flags().GetString("endpoint")
		p256dh, _ := cmd.Flags().GetString("p256dh")
		authKey, _ := cmd.Flags().GetString("auth")

		a, err := newApp("push-subscribe")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.PushSubscribe(cmd.Context(), api.PushSubscription{
			Endpoint: endpoint,
			Keys:     api.PushKeys{Auth: authKey, P256dh: p256dh},
		})
	},
}

var pushUnsubscribeCmd = &cobra.Command{
	Use:   "unsubscribe",
	Short: "Remove a push subscription",
	RunE: func(cmd *cobra.Command, args []string) error {
		endpoint, _ := cmd.Flags().GetString("endpoint")

		a, err := newApp("push-unsubscribe")
		if err != nil {
			return err
		}
		defer a.Close()

		return a.PushUnsubscribe(cmd.Context(), endpoint)
	},
}

// readPassword prompts on the terminal without echo. When stdin is not a
// terminal the first line is read instead.
func readPassword() (string, error) {
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("reading password: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	fmt.Fprint(os.Stderr, "Password: ")
	b, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading password: %w", err)
	}
	return string(b), nil
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&offline, "offline", false, "Act as if the network were unavailable")

	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	registerCmd.Flags().String("name", "", "Display name")
	registerCmd.Flags().String("email", "", "Account email")
	registerCmd.MarkFlagRequired("name")
	registerCmd.MarkFlagRequired("email")
	loginCmd.Flags().String("email", "", "Account email")
	loginCmd.MarkFlagRequired("email")

	storiesCmd.Flags().BoolP("location", "l", false, "Include coordinates and place names")

	addCmd.Flags().StringP("description", "d", "", "Story text")
	addCmd.Flags().StringP("photo", "p", "", "Path to the photo")
	addCmd.Flags().Float64("lat", 0, "Latitude")
	addCmd.Flags().Float64("lon", 0, "Longitude")
	addCmd.MarkFlagRequired("description")
	addCmd.MarkFlagRequired("photo")
	addCmd.MarkFlagsRequiredTogether("lat", "lon")

	queueCmd.AddCommand(queueDiscardCmd)

	pushSubscribeCmd.Flags().String("endpoint", "", "Push endpoint URL")
	pushSubscribeCmd.Flags().String("p256dh", "", "Subscription public key")
	pushSubscribeCmd.Flags().String("auth", "", "Subscription auth secret")
	pushSubscribeCmd.MarkFlagRequired("endpoint")
	pushSubscribeCmd.MarkFlagRequired("p256dh")
	pushSubscribeCmd.MarkFlagRequired("auth")
	pushUnsubscribeCmd.Flags().String("endpoint", "", "Push endpoint URL")
	pushUnsubscribeCmd.MarkFlagRequired("endpoint")
	pushCmd.AddCommand(pushSubscribeCmd)
	pushCmd.AddCommand(pushUnsubscribeCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(storiesCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(saveCmd)
	rootCmd.AddCommand(unsaveCmd)
	rootCmd.AddCommand(savedCmd)
	rootCmd.AddCommand(queueCmd)
	rootCmd.AddCommand(syncCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(pushCmd)
}
