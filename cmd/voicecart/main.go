package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/foxxcyber/voicecart/internal/app"
	"github.com/foxxcyber/voicecart/internal/config"
	"github.com/foxxcyber/voicecart/internal/logger"
	"github.com/foxxcyber/voicecart/internal/models"
	"github.com/foxxcyber/voicecart/internal/session"
)

var version = "0.1.0-dev"

type cli struct {
	userID   string
	locale   string
	asJSON   bool
	withSync bool
	verbose  bool

	app     *app.App
	session *session.Session
	out     io.Writer
}

func main() {
	c := &cli{out: os.Stdout}

	rootCmd := &cobra.Command{
		Use:     "voicecart",
		Short:   "Keep a shopping list with plain-language commands",
		Version: version,
		Long: `voicecart turns commands like "add two milk" or "remove chips" into
list changes, learns what you buy, and suggests what you might need next.

The list lives in a local SQLite file and can be mirrored to a remote
store with --sync.`,
		SilenceUsage:       true,
		PersistentPreRunE:  c.open,
		PersistentPostRunE: c.close,
	}
	rootCmd.PersistentFlags().StringVarP(&c.userID, "user", "u", "local", "List owner id")
	rootCmd.PersistentFlags().StringVar(&c.locale, "locale", "", "Command language (default from DEFAULT_LOCALE)")
	rootCmd.PersistentFlags().BoolVar(&c.asJSON, "json", false, "Print machine-readable output")
	rootCmd.PersistentFlags().BoolVar(&c.withSync, "sync", false, "Mirror changes to the remote store")
	rootCmd.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "Log diagnostics to stderr")

	sayCmd := &cobra.Command{
		Use:   "say <utterance...>",
		Short: "Apply one spoken or typed command",
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.runSay,
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "Show the list",
		RunE:  c.runList,
	}
	listCmd.Flags().Bool("group", false, "Group items by category")

	suggestCmd := &cobra.Command{
		Use:   "suggest",
		Short: "Show ranked suggestions",
		RunE:  c.runSuggest,
	}

	acceptCmd := &cobra.Command{
		Use:   "accept <item...>",
		Short: "Accept a suggestion and add it to the list",
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.runAccept,
	}

	rejectCmd := &cobra.Command{
		Use:   "reject <item...>",
		Short: "Reject a suggestion",
		Args:  cobra.MinimumNArgs(1),
		RunE:  c.runReject,
	}

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show usage history",
		RunE:  c.runHistory,
	}
	historyCmd.Flags().Bool("reset", false, "Clear the history ledger")

	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive the current list, or list archives with --show",
		RunE:  c.runArchive,
	}
	archiveCmd.Flags().Bool("show", false, "List stored archives")
	archiveCmd.Flags().String("reason", "", "Reason stored with the archive")

	replCmd := &cobra.Command{
		Use:   "repl",
		Short: "Read commands from stdin, one per line",
		RunE:  c.runRepl,
	}

	rootCmd.AddCommand(sayCmd, listCmd, suggestCmd, acceptCmd, rejectCmd, historyCmd, archiveCmd, replCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func (c *cli) open(cmd *cobra.Command, _ []string) error {
	_ = godotenv.Load()
	cfg := config.Load()
	if c.locale == "" {
		c.locale = cfg.DefaultLocale
	}
	if !c.withSync {
		cfg.RemoteSyncEnabled = false
	}
	// The command holds its one session until exit
	cfg.SessionIdleTTL = 0

	log := logger.Nop()
	if c.verbose {
		l, err := logger.New("development")
		if err != nil {
			return err
		}
		log = l
	}

	a, err := app.Build(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	c.app = a

	s, err := a.Sessions.Get(c.userID)
	if err != nil {
		return err
	}
	c.session = s

	if c.withSync {
		if err := s.StartSync(cmd.Context()); err != nil {
			fmt.Fprintf(os.Stderr, "sync unavailable: %v\n", err)
		}
	}
	return nil
}

func (c *cli) close(*cobra.Command, []string) error {
	if c.session != nil && c.withSync {
		c.session.FlushSync()
	}
	if c.app != nil {
		c.app.Close()
	}
	return nil
}

func (c *cli) runSay(cmd *cobra.Command, args []string) error {
	return c.say(cmd.Context(), strings.Join(args, " "))
}

func (c *cli) say(ctx context.Context, text string) error {
	outcome, err := c.session.HandleUtterance(ctx, text, c.locale)
	if err != nil {
		return err
	}
	if c.asJSON {
		return c.printJSON(outcome)
	}

	switch outcome.Status {
	case models.StatusApplied:
		c.printChange(outcome.Change)
		for _, sub := range outcome.Substitutes {
			fmt.Fprintf(c.out, "  try instead: %s\n", sub.Item)
		}
	case models.StatusSearch:
		if len(outcome.Matches) == 0 {
			fmt.Fprintf(c.out, "Searching for %s: nothing on the list\n", outcome.Intent.DisplayItem)
		}
		for _, it := range outcome.Matches {
			fmt.Fprintf(c.out, "On the list: %d x %s\n", it.Quantity, it.Name)
		}
	case models.StatusNotUnderstood:
		fmt.Fprintf(c.out, "Heard: %q\n", outcome.Intent.Raw)
	default:
		fmt.Fprintf(c.out, "%s: %s\n", outcome.Status, outcome.Reason)
	}
	return nil
}

func (c *cli) runList(cmd *cobra.Command, _ []string) error {
	group, _ := cmd.Flags().GetBool("group")
	if group {
		groups := c.session.Groups()
		if c.asJSON {
			return c.printJSON(groups)
		}
		for _, g := range groups {
			fmt.Fprintf(c.out, "%s\n", strings.ToUpper(g.Category))
			for _, it := range g.Items {
				c.printItem(it)
			}
		}
		return nil
	}

	items := c.session.Items()
	if c.asJSON {
		return c.printJSON(items)
	}
	if len(items) == 0 {
		fmt.Fprintln(c.out, "The list is empty")
	}
	for _, it := range items {
		c.printItem(it)
	}
	return nil
}

func (c *cli) runSuggest(cmd *cobra.Command, _ []string) error {
	suggestions := c.session.Suggestions(cmd.Context())
	if c.asJSON {
		return c.printJSON(suggestions)
	}
	if len(suggestions) == 0 {
		fmt.Fprintln(c.out, "No suggestions yet")
	}
	for _, s := range suggestions {
		fmt.Fprintf(c.out, "%-20s %3d  %-10s %s\n", s.Item, s.Score, s.Source, s.Reason)
	}
	return nil
}

func (c *cli) runAccept(_ *cobra.Command, args []string) error {
	change, err := c.session.AcceptSuggestion(strings.Join(args, " "))
	if err != nil {
		return err
	}
	if c.asJSON {
		return c.printJSON(change)
	}
	c.printChange(change)
	return nil
}

func (c *cli) runReject(_ *cobra.Command, args []string) error {
	name := strings.Join(args, " ")
	if err := c.session.RejectSuggestion(name); err != nil {
		return err
	}
	fmt.Fprintf(c.out, "Won't suggest %s as often\n", name)
	return nil
}

func (c *cli) runHistory(cmd *cobra.Command, _ []string) error {
	reset, _ := cmd.Flags().GetBool("reset")
	if reset {
		c.session.ResetHistory()
		fmt.Fprintln(c.out, "History cleared")
		return nil
	}

	hist := c.session.History()
	if c.asJSON {
		return c.printJSON(hist)
	}
	keys := make([]string, 0, len(hist))
	for k := range hist {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		a := hist[k]
		fmt.Fprintf(c.out, "%-20s added %-3d bought %-3d accepted %-3d rejected %d\n",
			a.Name, a.CountAdds, a.CountBought, a.Accepts, a.Rejects)
	}
	return nil
}

func (c *cli) runArchive(cmd *cobra.Command, _ []string) error {
	show, _ := cmd.Flags().GetBool("show")
	if show {
		archives, err := c.session.Archives(cmd.Context(), 20)
		if err != nil {
			return err
		}
		if c.asJSON {
			return c.printJSON(archives)
		}
		for _, a := range archives {
			fmt.Fprintf(c.out, "%s  %s  %d items  %s\n", a.ArchivedAt.Format("2006-01-02 15:04"), a.ID, len(a.Items), a.Reason)
		}
		return nil
	}

	reason, _ := cmd.Flags().GetString("reason")
	a, err := c.session.Archive(cmd.Context(), reason)
	if err != nil {
		return err
	}
	if c.asJSON {
		return c.printJSON(a)
	}
	fmt.Fprintf(c.out, "Archived %d items as %s\n", len(a.Items), a.ID)
	return nil
}

func (c *cli) runRepl(cmd *cobra.Command, _ []string) error {
	scanner := bufio.NewScanner(os.Stdin)
	fmt.Fprint(c.out, "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		switch line {
		case "":
		case "quit", "exit":
			return nil
		case "list":
			if err := c.runList(cmd, nil); err != nil {
				return err
			}
		case "suggest":
			if err := c.runSuggest(cmd, nil); err != nil {
				return err
			}
		default:
			if err := c.say(cmd.Context(), line); err != nil {
				if errors.Is(err, session.ErrSessionClosed) {
					return err
				}
				fmt.Fprintf(os.Stderr, "error: %v\n", err)
			}
		}
		fmt.Fprint(c.out, "> ")
	}
	return scanner.Err()
}

func (c *cli) printChange(change models.ListChange) {
	if change.Item == nil {
		fmt.Fprintln(c.out, "No change")
		return
	}
	switch change.Kind {
	case models.ChangeCreated:
		fmt.Fprintf(c.out, "Added %d x %s\n", change.Item.Quantity, change.Item.Name)
	case models.ChangeDeleted:
		fmt.Fprintf(c.out, "Removed %s\n", change.Item.Name)
	case models.ChangeUpdated:
		fmt.Fprintf(c.out, "%s now %d\n", change.Item.Name, change.Item.Quantity)
	default:
		fmt.Fprintln(c.out, "No change")
	}
}

func (c *cli) printItem(it models.ListItem) {
	mark := " "
	if it.Bought {
		mark = "x"
	}
	fmt.Fprintf(c.out, "[%s] %3d  %s\n", mark, it.Quantity, it.Name)
}

func (c *cli) printJSON(v interface{}) error {
	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
