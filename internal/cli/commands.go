package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/memgarden/memgarden/internal/vector"
	"github.com/spf13/cobra"
)

// --- tend command ---

var (
	tendSession string
	tendLimit   int
)

var tendCmd = &cobra.Command{
	Use:   "tend",
	Short: "Consolidate unconsolidated sessions",
	Long:  "Run the consolidation pipeline. With --session, tends one session; otherwise tends a batch of the oldest unconsolidated sessions.",
	RunE:  runTend,
}

func runTend(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := openEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if tendSession != "" {
		report, err := eng.TendThread(ctx, tendSession)
		if err != nil {
			return fmt.Errorf("tend session: %w", err)
		}
		fmt.Printf("tended session %s: %d new entries\n", tendSession, report.NewConcepts)
		return nil
	}

	report, err := eng.TendGarden(ctx, tendLimit)
	if err != nil {
		return fmt.Errorf("tend: %w", err)
	}
	fmt.Printf("tended %d sessions, %d new entries\n", report.SessionsProcessed, report.NewConcepts)
	return nil
}

// --- gc command ---

var (
	gcCollection string
	gcDays       int
	gcDryRun     bool
)

var gcCmd = &cobra.Command{
	Use:   "gc",
	Short: "Archive inactive entries",
	Long:  "Move entries idle past the cutoff into the archive collection. Use --dry-run to see what would move without moving it.",
	RunE:  runGC,
}

func runGC(cmd *cobra.Command, args []string) error {
	eng, cleanup, err := openEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	report, err := eng.RunGC(ctx, gcCollection, gcDays, gcDryRun)
	if err != nil {
		return fmt.Errorf("gc: %w", err)
	}

	verb := "archived"
	if report.DryRun {
		verb = "would archive"
	}
	fmt.Printf("%s: scanned %d, %s %d, retained %d\n",
		report.Collection, report.Scanned, verb, report.Archived, report.Retained)
	if report.DryRun {
		for _, id := range report.ArchivedIDs {
			fmt.Printf("  %s\n", id)
		}
	}
	return nil
}

// --- search command ---

var (
	searchUser  string
	searchType  string
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search stored knowledge",
	Long:  "Rank knowledge entries for a query by weighted score: similarity decayed by age and reinforced by use.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runSearch,
}

func runSearch(cmd *cobra.Command, args []string) error {
	if err := requireFlags(cmd, "user"); err != nil {
		return err
	}
	query := strings.Join(args, " ")

	var types []vector.EntryType
	if searchType != "" {
		if !vector.ValidType(vector.EntryType(searchType)) {
			return fmt.Errorf("unknown entry type %q", searchType)
		}
		types = append(types, vector.EntryType(searchType))
	}

	eng, cleanup, err := openEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	results, err := eng.SearchKnowledge(ctx, searchUser, query, searchLimit, types...)
	if err != nil {
		return fmt.Errorf("search: %w", err)
	}

	if len(results) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.Score, r.Entry.Text)
		fmt.Printf("   %s, %d mentions, vitality %.2f\n", r.Entry.Type, r.Entry.MentionCount, r.Entry.Vitality)
	}
	return nil
}

// --- topics command ---

var (
	topicsUser  string
	topicsLimit int
)

var topicsCmd = &cobra.Command{
	Use:   "topics",
	Short: "List a user's topics by mention count",
	RunE:  runTopics,
}

func runTopics(cmd *cobra.Command, args []string) error {
	if err := requireFlags(cmd, "user"); err != nil {
		return err
	}

	eng, cleanup, err := openEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	topics, err := eng.ListTopics(ctx, topicsUser, topicsLimit)
	if err != nil {
		return fmt.Errorf("list topics: %w", err)
	}

	if len(topics) == 0 {
		fmt.Println("No topics yet. Tend some sessions first.")
		return nil
	}
	for _, t := range topics {
		fmt.Printf("%3dx %-12s %s\n", t.MentionCount, t.Type, t.Text)
	}
	return nil
}

// --- clear command ---

var (
	clearSession string
	clearUser    string
)

var clearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Erase a session's memory",
	Long:  "Delete a session's messages and every vector entry it produced. Requires both --session and --user; the pair scopes the delete.",
	RunE:  runClear,
}

func runClear(cmd *cobra.Command, args []string) error {
	if err := requireFlags(cmd, "session", "user"); err != nil {
		return err
	}

	eng, cleanup, err := openEngine()
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	report, err := eng.ClearMemory(ctx, clearSession, clearUser)
	if err != nil {
		return fmt.Errorf("clear: %w", err)
	}
	fmt.Printf("cleared session %s: %d messages, %d entries\n",
		clearSession, report.MessagesDeleted, report.EntriesDeleted)
	return nil
}

func init() {
	tendCmd.Flags().StringVar(&tendSession, "session", "", "tend a single session")
	tendCmd.Flags().IntVar(&tendLimit, "limit", 0, "max sessions per batch (0 = configured batch size)")

	gcCmd.Flags().StringVar(&gcCollection, "collection", "", "collection to sweep (default knowledge)")
	gcCmd.Flags().IntVar(&gcDays, "days", 0, "inactivity cutoff in days (0 = configured default)")
	gcCmd.Flags().BoolVar(&gcDryRun, "dry-run", false, "report candidates without archiving")

	searchCmd.Flags().StringVar(&searchUser, "user", "", "owner of the entries to search")
	searchCmd.Flags().StringVar(&searchType, "type", "", "restrict to one entry type")
	searchCmd.Flags().IntVar(&searchLimit, "limit", 10, "max results")

	topicsCmd.Flags().StringVar(&topicsUser, "user", "", "owner of the topics to list")
	topicsCmd.Flags().IntVar(&topicsLimit, "limit", 0, "max topics (0 = default)")

	clearCmd.Flags().StringVar(&clearSession, "session", "", "session to clear")
	clearCmd.Flags().StringVar(&clearUser, "user", "", "owner of the session")
}
