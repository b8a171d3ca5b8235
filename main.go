package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/lotas/tabfeeds/internal/config"
	"github.com/lotas/tabfeeds/internal/export"
	"github.com/lotas/tabfeeds/internal/feedparse"
	"github.com/lotas/tabfeeds/internal/firefox"
	"github.com/lotas/tabfeeds/internal/hub"
	"github.com/lotas/tabfeeds/internal/rules"
	"github.com/lotas/tabfeeds/internal/scan"
	"github.com/lotas/tabfeeds/internal/storage"
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve":
			runServe(os.Args[2:])
			return
		case "scan":
			runScan(os.Args[2:])
			return
		case "rules":
			runRules(os.Args[2:])
			return
		case "subs":
			runSubs(os.Args[2:])
			return
		case "profiles":
			runProfiles()
			return
		case "help", "--help", "-h":
			printHelp()
			return
		}
	}

	fs := flag.NewFlagSet("tabfeeds", flag.ExitOnError)
	configDir := fs.String("config", config.DefaultDir(), "Directory holding config.yaml")
	port := fs.Int("port", 0, "WebSocket port (overrides server.port)")
	fs.Parse(os.Args[1:])

	a := mustOpen(*configDir, *port)
	defer a.Close()

	if err := a.runDashboard(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printHelp() {
	fmt.Print(`tabfeeds — feed detection companion for the browser extension

Usage:
  tabfeeds                                   Start the server and the dashboard (default)
    --config <dir>         Config directory (default: ~/.config/tabfeeds)
    --port <n>             WebSocket port (default: server.port, 19191)

  tabfeeds serve                             Run the server without the dashboard
    --config <dir>
    --port <n>

  tabfeeds scan                              Find feeds for the tabs of a Firefox session
    --profile <name>       Firefox profile name (default profile if empty)
    --json                 Report as JSON instead of markdown
    --out <file>           Output file path (default: stdout)
    --concurrency <n>      Pages fetched at once (default: 10)

  tabfeeds rules refresh                     Download the RSSHub rules now
  tabfeeds rules show                        Show cached rules and when they were fetched

  tabfeeds subs list                         List subscriptions
  tabfeeds subs add <url> [--title T]        Subscribe to a feed URL
  tabfeeds subs remove <url>                 Unsubscribe from a feed URL

  tabfeeds profiles                          List Firefox profiles

Environment:
  TABFEEDS_PROFILE       Default Firefox profile (overridden by --profile flag)
  TABFEEDS_*             Overrides any config key, e.g. TABFEEDS_RSSHUB_BASE_URL
`)
}

func mustOpen(configDir string, port int) *app {
	a, err := openApp(configDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if port != 0 {
		if err := a.cfg.Set("server.port", port); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
	return a
}

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configDir := fs.String("config", config.DefaultDir(), "Directory holding config.yaml")
	port := fs.Int("port", 0, "WebSocket port (overrides server.port)")
	fs.Parse(args)

	a := mustOpen(*configDir, *port)
	defer a.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Fprintf(os.Stderr, "Listening for the extension on 127.0.0.1:%d\n", a.cfg.Get().Server.Port)
	if err := a.runLive(ctx); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runScan(args []string) {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	configDir := fs.String("config", config.DefaultDir(), "Directory holding config.yaml")
	profileName := fs.String("profile", "", "Firefox profile name")
	jsonFlag := fs.Bool("json", false, "Report as JSON instead of markdown")
	outFile := fs.String("out", "", "Output file path (default: stdout)")
	concurrency := fs.Int("concurrency", scan.DefaultConcurrency, "Pages fetched at once")
	fs.Parse(args)

	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error discovering Firefox profiles: %v\n", err)
		os.Exit(1)
	}
	profile, err := firefox.SelectProfile(profiles, resolveProfileName(*profileName))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	session, err := firefox.ReadSessionFile(profile.Path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: read session: %v\n", err)
		os.Exit(1)
	}

	a := mustOpen(*configDir, 0)
	defer a.Close()
	cfg := a.cfg.Get()

	parser, err := feedparse.New(cfg.Parser.Timeout, cfg.Parser.CacheSize)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	tabs := firefox.WebTabs(session.Tabs)
	fmt.Fprintf(os.Stderr, "Scanning %d tabs from %s...\n", len(tabs), profile.Name)

	sc := &scan.Scanner{
		Parser:      parser,
		Executor:    hub.NewExecutor(func() string { return a.cfg.Get().RSSHub.BaseURL }),
		Rules:       a.rules.Rules(),
		Subs:        a.subs,
		ShowText:    cfg.BadgeEnabled(),
		Concurrency: *concurrency,
	}
	report := sc.Scan(context.Background(), profile.Name, tabs)

	var output string
	if *jsonFlag {
		output, err = export.JSON(report)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error generating JSON: %v\n", err)
			os.Exit(1)
		}
	} else {
		output = export.Markdown(report)
	}

	if *outFile != "" {
		if err := os.WriteFile(*outFile, []byte(output), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Error writing file: %v\n", err)
			os.Exit(1)
		}
	} else {
		fmt.Print(output)
	}
}

func runRules(args []string) {
	fs := flag.NewFlagSet("rules", flag.ExitOnError)
	configDir := fs.String("config", config.DefaultDir(), "Directory holding config.yaml")
	fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: tabfeeds rules refresh|show")
		os.Exit(1)
	}

	a := mustOpen(*configDir, 0)
	defer a.Close()

	switch fs.Arg(0) {
	case "refresh":
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		n, err := a.refresher.Refresh(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Fetched %d rules from %s\n", n, a.cfg.Get().Rules.URL)
	case "show":
		printRules(a.rules)
	default:
		fmt.Fprintf(os.Stderr, "Unknown rules command %q\n", fs.Arg(0))
		os.Exit(1)
	}
}

func printRules(store *rules.Store) {
	r := store.Rules()
	date := store.Date()
	if date.IsZero() {
		fmt.Println("No rules cached yet. Run: tabfeeds rules refresh")
		return
	}
	fmt.Printf("%d rules for %d domains, fetched %s\n", r.Count(), len(r), date.Format("2006-01-02 15:04"))

	domains := make([]string, 0, len(r))
	for d := range r {
		domains = append(domains, d)
	}
	sort.Strings(domains)
	for _, d := range domains {
		site := r[d]
		n := 0
		for _, rs := range site.Subdomains {
			n += len(rs)
		}
		fmt.Printf("  %-30s %3d  %s\n", d, n, site.Name)
	}
}

func runSubs(args []string) {
	fs := flag.NewFlagSet("subs", flag.ExitOnError)
	configDir := fs.String("config", config.DefaultDir(), "Directory holding config.yaml")
	title := fs.String("title", "", "Feed title for subs add")
	fs.Parse(reorderArgs(args))

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: tabfeeds subs list|add <url>|remove <url>")
		os.Exit(1)
	}

	a := mustOpen(*configDir, 0)
	defer a.Close()

	switch fs.Arg(0) {
	case "list":
		subs, err := a.subs.Subscriptions(context.Background())
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if len(subs) == 0 {
			fmt.Println("No subscriptions yet.")
			return
		}
		fmt.Print(export.Subscriptions(subs))
	case "add", "remove":
		if fs.NArg() < 2 {
			fmt.Fprintf(os.Stderr, "Usage: tabfeeds subs %s <url>\n", fs.Arg(0))
			os.Exit(1)
		}
		url := fs.Arg(1)
		var err error
		done := "Subscribed to"
		if fs.Arg(0) == "add" {
			err = a.subs.Subscribe(url, *title)
		} else {
			err = a.subs.Unsubscribe(url)
			done = "Unsubscribed from"
		}
		if errors.Is(err, storage.ErrNotSubscribed) {
			fmt.Fprintf(os.Stderr, "Not subscribed to %s\n", url)
			os.Exit(1)
		}
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("%s %s\n", done, url)
	default:
		fmt.Fprintf(os.Stderr, "Unknown subs command %q\n", fs.Arg(0))
		os.Exit(1)
	}
}

func runProfiles() {
	profiles, err := firefox.DiscoverProfiles()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error discovering Firefox profiles: %v\n", err)
		os.Exit(1)
	}
	if len(profiles) == 0 {
		fmt.Fprintln(os.Stderr, "No Firefox profiles found.")
		os.Exit(1)
	}

	for _, p := range profiles {
		suffix := ""
		if p.IsDefault {
			suffix = " [default]"
		}
		fmt.Printf("%s (%s)%s\n", p.Name, p.Path, suffix)
	}
}

// reorderArgs moves flag arguments before positional arguments so that
// flag.Parse handles them correctly (it stops at the first non-flag arg).
func reorderArgs(args []string) []string {
	var flags, positional []string
	for i := 0; i < len(args); i++ {
		if strings.HasPrefix(args[i], "-") {
			flags = append(flags, args[i])
			if !strings.Contains(args[i], "=") && i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
				flags = append(flags, args[i+1])
				i++
			}
		} else {
			positional = append(positional, args[i])
		}
	}
	return append(flags, positional...)
}

// resolveProfileName returns the profile name from the flag if set,
// otherwise falls back to the TABFEEDS_PROFILE environment variable.
func resolveProfileName(flagValue string) string {
	if flagValue != "" {
		return flagValue
	}
	return os.Getenv("TABFEEDS_PROFILE")
}
