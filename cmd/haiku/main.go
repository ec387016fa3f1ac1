package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"github.com/five82/haikuplus/internal/app"
	"github.com/five82/haikuplus/internal/config"
	"github.com/five82/haikuplus/internal/haiku"
	"github.com/five82/haikuplus/internal/identity"
	"github.com/five82/haikuplus/internal/queue"
	"github.com/five82/haikuplus/internal/ui"
)

const usage = `usage: haiku [flags] <command> [args]

commands:
  signin <account>     sign in with an account (e.g. you@gmail.com)
  whoami               show the signed-in user
  status               show local session state
  stream [-friends]    list haikus
  show <id|link>       show a haiku; links with action=vote also vote
  post                 write a haiku (-title, -1, -2, -3)
  vote <id>            vote for a haiku
  signout              end the session
  disconnect           revoke access and end the session
  browse               open the terminal browser

flags:
`

func main() {
	os.Exit(run())
}

func run() int {
	fs := flag.NewFlagSet("haiku", flag.ContinueOnError)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", "", "config file (default ~/.config/haikuplus/config.toml)")
	serverURL := fs.String("server", "", "override the Haiku+ server URL")
	verbose := fs.Bool("v", false, "debug logging")
	if err := fs.Parse(os.Args[1:]); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "haiku: %v\n", err)
		return 1
	}
	if *serverURL != "" {
		cfg.ServerURL = *serverURL
	}
	level := cfg.LogLevel
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cmd, args := fs.Arg(0), fs.Args()[1:]
	if err := dispatch(ctx, cmd, args, &cfg, logger); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		fmt.Fprintf(os.Stderr, "haiku %s: %v\n", cmd, err)
		if haiku.NeedsSignIn(err) {
			fmt.Fprintln(os.Stderr, "run `haiku signin <account>` first")
		}
		return 1
	}
	return 0
}

func dispatch(ctx context.Context, cmd string, args []string, cfg *config.Config, logger *slog.Logger) error {
	if cmd == "browse" {
		return browse(ctx, cfg, logger)
	}

	rt, err := app.Open(app.Options{Config: cfg, Dispatcher: queue.Inline, Logger: logger})
	if err != nil {
		return err
	}
	defer rt.Close()

	out := os.Stdout
	switch cmd {
	case "signin":
		return signIn(ctx, rt, args, out)
	case "whoami":
		user, err := rt.Resume(ctx)
		if err != nil {
			return err
		}
		if user == nil {
			fmt.Fprintln(out, "not signed in")
			return nil
		}
		fmt.Fprintf(out, "%s (%s)\n", user.GoogleDisplayName, user.ID)
		return nil
	case "status":
		creds := rt.Session.Credentials()
		fmt.Fprintf(out, "account:  %s\n", fallback(creds.Account, "-"))
		fmt.Fprintf(out, "status:   %s\n", rt.Session.Status(true))
		fmt.Fprintf(out, "sign-in:  %s\n", rt.Session.SignInState())
		fmt.Fprintf(out, "server:   %s\n", rt.Config.ServerURL)
		return nil
	case "stream":
		return stream(ctx, rt, args, out)
	case "show":
		return show(ctx, rt, args, out)
	case "post":
		return post(ctx, rt, args, out)
	case "vote":
		return vote(ctx, rt, args, out)
	case "signout":
		rt.SignOut(ctx)
		fmt.Fprintln(out, "signed out")
		return nil
	case "disconnect":
		rt.Disconnect(ctx)
		fmt.Fprintln(out, "disconnected")
		return nil
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func signIn(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	account := ""
	if len(args) > 0 {
		account = args[0]
	}
	user, err := rt.SignIn(ctx, account, consentPrompt)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "signed in as %s\n", fallback(user.GoogleDisplayName, user.ID))
	return nil
}

// consentPrompt tells the user a browser window is about to ask for consent.
func consentPrompt(_ context.Context, c *identity.ConsentRequiredError) error {
	fmt.Fprintf(os.Stderr, "%s needs to approve access; continue in your browser.\n", c.Account)
	return nil
}

func stream(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("stream", flag.ContinueOnError)
	friends := fs.Bool("friends", false, "only haikus from people in your circles")
	if err := fs.Parse(args); err != nil {
		return err
	}
	mode := haiku.StreamAll
	if *friends {
		mode = haiku.StreamFriends
	}
	items, err := rt.API.FetchStream(ctx, mode)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tAUTHOR\tVOTES")
	for _, h := range items {
		author := "-"
		if h.Author != nil {
			author = h.Author.GoogleDisplayName
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\n", h.ID, h.Title, author, h.Votes)
	}
	return tw.Flush()
}

func show(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("expected a haiku id or deep link")
	}
	link := args[0]
	if !strings.Contains(link, "/") {
		link = haiku.DeepLink{HaikuID: link}.String()
	}
	h, err := rt.OpenDeepLink(ctx, link, consentPrompt)
	if h != nil {
		fmt.Fprintln(out, ui.RenderHaiku(*h, ui.GetTheme(""), 0))
	}
	return err
}

func post(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("post", flag.ContinueOnError)
	var h haiku.Haiku
	fs.StringVar(&h.Title, "title", "", "title")
	fs.StringVar(&h.LineOne, "1", "", "first line")
	fs.StringVar(&h.LineTwo, "2", "", "second line")
	fs.StringVar(&h.LineThree, "3", "", "third line")
	if err := fs.Parse(args); err != nil {
		return err
	}
	written, err := rt.API.WriteHaiku(ctx, h)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "posted %s\n", written.ID)
	return nil
}

func vote(ctx context.Context, rt *app.Runtime, args []string, out io.Writer) error {
	if len(args) != 1 {
		return fmt.Errorf("expected a haiku id")
	}
	link := haiku.DeepLink{HaikuID: args[0], Action: haiku.ActionVote}.String()
	h, err := rt.OpenDeepLink(ctx, link, consentPrompt)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s now has %d votes\n", h.ID, h.Votes)
	return nil
}

func browse(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	// Log lines would corrupt the alternate screen.
	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	if logger.Enabled(ctx, slog.LevelDebug) {
		quiet = logger
	}

	d := &ui.ProgramDispatcher{}
	rt, err := app.Open(app.Options{Config: cfg, Dispatcher: d, Logger: quiet})
	if err != nil {
		return err
	}
	defer rt.Close()

	if _, err := rt.Resume(ctx); err != nil {
		quiet.Info("resume failed; browsing signed out", "error", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	app.StartPoller(ctx, rt.State, rt.API, cfg.PollEvery, quiet)

	return ui.Run(ui.Options{
		Context:    ctx,
		Facade:     rt.Facade,
		Store:      rt.State,
		Dispatcher: d,
	})
}

func fallback(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
