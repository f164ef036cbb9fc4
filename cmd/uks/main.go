// Package main provides the UKS CLI entry point.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/orneryd/uks/pkg/archive"
	"github.com/orneryd/uks/pkg/logger"
	"github.com/orneryd/uks/pkg/maintenance"
	"github.com/orneryd/uks/pkg/snapshot"
	"github.com/orneryd/uks/pkg/uks"
	"github.com/orneryd/uks/pkg/watch"
)

var (
	version = "0.1.0"
	commit  = "dev"
)

func main() {
	// Try to load .env, but don't fail if it doesn't exist.
	_ = godotenv.Load()

	rootCmd := &cobra.Command{
		Use:   "uks",
		Short: "UKS - Universal Knowledge Store",
		Long: `UKS is an in-memory knowledge graph for cognitive agents.

Features:
  • Labeled things with case-insensitive unique labels
  • Weighted relationships whose confidence tracks usage
  • Sliding-TTL transient facts with background eviction
  • Inheritance-aware queries and conflict detection
  • JSON/XML snapshots plus a versioned revision archive
  • Grooming passes: tree balancing, redundancy pruning,
    class induction, attribute bubbling`,
	}
	rootCmd.PersistentFlags().String("config", "", "Config file (YAML)")

	// Version command
	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("UKS v%s (%s)\n", version, commit)
		},
	})

	// Stats command
	statsCmd := &cobra.Command{
		Use:   "stats [file]",
		Short: "Print statistics for a snapshot file",
		Long:  "Load a snapshot (JSON or XML) and print store statistics. Without a file, reports the bootstrapped store.",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runStats,
	}
	rootCmd.AddCommand(statsCmd)

	// Convert command
	convertCmd := &cobra.Command{
		Use:   "convert <input> <output>",
		Short: "Convert a snapshot between JSON and XML",
		Long:  "Re-encode a snapshot file. The formats are picked from the file extensions.",
		Args:  cobra.ExactArgs(2),
		RunE:  runConvert,
	}
	rootCmd.AddCommand(convertCmd)

	// Seed command
	seedCmd := &cobra.Command{
		Use:   "seed",
		Short: "Populate a store with a test hierarchy",
		RunE:  runSeed,
	}
	seedCmd.Flags().Int("count", 1000, "Number of things to create")
	seedCmd.Flags().Int("workers", 0, "Concurrent seeding goroutines (0 = serial)")
	seedCmd.Flags().String("out", "seed.json", "Snapshot file to write")
	rootCmd.AddCommand(seedCmd)

	// Maintain command
	maintainCmd := &cobra.Command{
		Use:   "maintain <file>",
		Short: "Run grooming passes over a snapshot",
		Args:  cobra.ExactArgs(1),
		RunE:  runMaintain,
	}
	maintainCmd.Flags().String("passes", "balance,prune,classes,bubble", "Comma-separated passes to run")
	maintainCmd.Flags().Int("rounds", 1, "Grooming rounds")
	maintainCmd.Flags().String("out", "", "Snapshot file to write (default: overwrite input)")
	rootCmd.AddCommand(maintainCmd)

	// Watch command
	watchCmd := &cobra.Command{
		Use:   "watch <file>",
		Short: "Reload a snapshot whenever it changes on disk",
		Args:  cobra.ExactArgs(1),
		RunE:  runWatch,
	}
	rootCmd.AddCommand(watchCmd)

	// Archive command group
	archiveCmd := &cobra.Command{
		Use:   "archive",
		Short: "Versioned snapshot archive operations",
	}
	archiveCmd.PersistentFlags().String("dir", "", "Archive directory (default from config)")
	saveCmd := &cobra.Command{
		Use:   "save <file>",
		Short: "Store a snapshot file as a new revision",
		Args:  cobra.ExactArgs(1),
		RunE:  runArchiveSave,
	}
	saveCmd.Flags().String("name", "", "Revision name (default: snapshot filename)")
	archiveCmd.AddCommand(saveCmd)
	archiveCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored revisions, newest first",
		RunE:  runArchiveList,
	})
	restoreCmd := &cobra.Command{
		Use:   "restore <revision-id>",
		Short: "Write a stored revision back to a snapshot file",
		Args:  cobra.ExactArgs(1),
		RunE:  runArchiveRestore,
	}
	restoreCmd.Flags().String("out", "restored.json", "Snapshot file to write")
	archiveCmd.AddCommand(restoreCmd)
	archiveCmd.AddCommand(&cobra.Command{
		Use:   "delete <revision-id>",
		Short: "Delete a stored revision",
		Args:  cobra.ExactArgs(1),
		RunE:  runArchiveDelete,
	})
	rootCmd.AddCommand(archiveCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig resolves the effective configuration and initializes logging.
func loadConfig(cmd *cobra.Command) (uks.Config, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := uks.LoadConfig(configPath)
	if err != nil {
		return cfg, err
	}
	if err := logger.Init(cfg.LogLevel, false); err != nil {
		return cfg, fmt.Errorf("initializing logger: %w", err)
	}
	cfg.Logger = logger.Get()
	return cfg, nil
}

func openStore(cmd *cobra.Command) (*uks.Store, uks.Config, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, cfg, err
	}
	store, err := uks.New(cfg)
	if err != nil {
		return nil, cfg, fmt.Errorf("opening store: %w", err)
	}
	return store, cfg, nil
}

func runStats(cmd *cobra.Command, args []string) error {
	store, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(args) == 1 {
		if err := store.Load(args[0], false); err != nil {
			return fmt.Errorf("loading %s: %w", args[0], err)
		}
		fmt.Printf("📂 Loaded %s\n", args[0])
	}

	fmt.Println("📊 Store statistics:")
	fmt.Printf("   Things:        %d\n", store.ThingCount())
	fmt.Printf("   Relationships: %d\n", store.RelationshipCount())
	fmt.Printf("   Transient:     %d\n", store.TransientCount())
	if root := store.Labeled("Object"); root != nil {
		fmt.Printf("   Under Object:  %d direct, %d total\n",
			len(root.Children()), len(root.Descendants()))
	}
	return nil
}

func runConvert(cmd *cobra.Command, args []string) error {
	in, out := args[0], args[1]

	raw, err := os.ReadFile(in)
	if err != nil {
		return fmt.Errorf("reading %s: %w", in, err)
	}
	p, err := decodeSnapshot(in, raw)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", in, err)
	}
	data, err := encodeSnapshot(out, p)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", out, err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}

	fmt.Printf("✅ Converted %s to %s (%d things, %d statements)\n",
		in, out, len(p.Things), len(p.Statements))
	return nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	count, _ := cmd.Flags().GetInt("count")
	workers, _ := cmd.Flags().GetInt("workers")
	out, _ := cmd.Flags().GetString("out")

	store, _, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	seeder := maintenance.NewSeeder(count)
	start := time.Now()
	var created int
	if workers > 0 {
		created, err = seeder.SeedConcurrent(context.Background(), store, workers)
	} else {
		created, err = seeder.Seed(store)
	}
	if err != nil {
		return fmt.Errorf("seeding: %w", err)
	}
	fmt.Printf("🌱 Created %d things in %v\n", created, time.Since(start).Round(time.Millisecond))

	if err := store.Save(out); err != nil {
		return fmt.Errorf("saving %s: %w", out, err)
	}
	fmt.Printf("✅ Snapshot written to %s\n", out)
	return nil
}

func runMaintain(cmd *cobra.Command, args []string) error {
	passNames, _ := cmd.Flags().GetString("passes")
	rounds, _ := cmd.Flags().GetInt("rounds")
	out, _ := cmd.Flags().GetString("out")
	path := args[0]
	if out == "" {
		out = path
	}

	store, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Load(path, false); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	passes, err := passesFor(passNames)
	if err != nil {
		return err
	}

	sched := maintenance.NewScheduler(store, time.Minute, cfg.Logger, passes...)
	total := 0
	for i := 0; i < rounds; i++ {
		total += sched.RunOnce()
	}
	fmt.Printf("🔄 %d change(s) across %d round(s)\n", total, rounds)

	if err := store.Save(out); err != nil {
		return fmt.Errorf("saving %s: %w", out, err)
	}
	fmt.Printf("✅ Snapshot written to %s\n", out)
	return nil
}

func passesFor(names string) ([]maintenance.Pass, error) {
	var passes []maintenance.Pass
	for _, name := range strings.Split(names, ",") {
		switch strings.TrimSpace(name) {
		case "":
		case "balance":
			passes = append(passes, maintenance.NewTreeBalancer(0))
		case "prune":
			passes = append(passes, maintenance.NewRedundancyPruner())
		case "classes":
			passes = append(passes, maintenance.NewClassBuilder(0))
		case "bubble":
			passes = append(passes, maintenance.NewAttributeBubble())
		default:
			return nil, fmt.Errorf("unknown pass: %s", name)
		}
	}
	return passes, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	path := args[0]

	store, cfg, err := openStore(cmd)
	if err != nil {
		return err
	}
	defer store.Close()
	log := cfg.Logger

	if err := store.Load(path, false); err != nil {
		return fmt.Errorf("loading %s: %w", path, err)
	}
	fmt.Printf("📂 Loaded %s: %d things, %d relationships\n",
		path, store.ThingCount(), store.RelationshipCount())

	reload := func() {
		if err := store.Load(path, false); err != nil {
			log.Warn("reload failed", zap.String("path", path), zap.Error(err))
			return
		}
		fmt.Printf("🔄 Reloaded %s: %d things, %d relationships\n",
			path, store.ThingCount(), store.RelationshipCount())
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	watchErr := make(chan error, 1)
	go func() {
		watchErr <- watch.New(path, reload, log).Watch(ctx)
	}()

	fmt.Println("Press Ctrl+C to stop")
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigChan:
		cancel()
		<-watchErr
	case err := <-watchErr:
		if err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("watching %s: %w", path, err)
		}
	}

	fmt.Println("\n🛑 Watch stopped")
	return nil
}

// archiveDir resolves the archive directory: the --dir flag when given,
// otherwise the configured default.
func archiveDir(cmd *cobra.Command) (string, error) {
	if cmd.Flags().Changed("dir") {
		dir, _ := cmd.Flags().GetString("dir")
		return dir, nil
	}
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return cfg.ArchiveDir, nil
}

func runArchiveSave(cmd *cobra.Command, args []string) error {
	path := args[0]
	name, _ := cmd.Flags().GetString("name")
	if name == "" {
		name = filepath.Base(path)
	}
	dir, err := archiveDir(cmd)
	if err != nil {
		return err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}
	p, err := decodeSnapshot(path, raw)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	a, err := archive.Open(dir)
	if err != nil {
		return err
	}
	defer a.Close()

	rev, err := a.Save(name, p)
	if err != nil {
		return fmt.Errorf("saving revision: %w", err)
	}
	fmt.Printf("📦 Saved revision %s\n", rev.ID)
	fmt.Printf("   Name:       %s\n", rev.Name)
	fmt.Printf("   Things:     %d\n", rev.Things)
	fmt.Printf("   Statements: %d\n", rev.Statements)
	fmt.Printf("   Checksum:   %s\n", rev.Checksum)
	return nil
}

func runArchiveList(cmd *cobra.Command, args []string) error {
	dir, err := archiveDir(cmd)
	if err != nil {
		return err
	}
	a, err := archive.Open(dir)
	if err != nil {
		return err
	}
	defer a.Close()

	revs, err := a.List()
	if err != nil {
		return fmt.Errorf("listing revisions: %w", err)
	}
	if len(revs) == 0 {
		fmt.Println("No revisions stored.")
		return nil
	}
	for _, rev := range revs {
		fmt.Printf("%s  %s  %d things, %d statements  %s\n",
			rev.ID, rev.CreatedAt.Format(time.RFC3339), rev.Things, rev.Statements, rev.Name)
	}
	return nil
}

func runArchiveRestore(cmd *cobra.Command, args []string) error {
	id := args[0]
	out, _ := cmd.Flags().GetString("out")
	dir, err := archiveDir(cmd)
	if err != nil {
		return err
	}

	a, err := archive.Open(dir)
	if err != nil {
		return err
	}
	defer a.Close()

	p, err := a.Load(id)
	if err != nil {
		return fmt.Errorf("loading revision %s: %w", id, err)
	}
	data, err := encodeSnapshot(out, p)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", out, err)
	}
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", out, err)
	}
	fmt.Printf("✅ Restored revision %s to %s (%d things, %d statements)\n",
		id, out, len(p.Things), len(p.Statements))
	return nil
}

func runArchiveDelete(cmd *cobra.Command, args []string) error {
	id := args[0]
	dir, err := archiveDir(cmd)
	if err != nil {
		return err
	}
	a, err := archive.Open(dir)
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Delete(id); err != nil {
		return fmt.Errorf("deleting revision %s: %w", id, err)
	}
	fmt.Printf("🗑️  Deleted revision %s\n", id)
	return nil
}

func decodeSnapshot(path string, raw []byte) (*snapshot.Project, error) {
	if isXMLPath(path) {
		return snapshot.FromXML(raw)
	}
	return snapshot.FromJSON(raw)
}

func encodeSnapshot(path string, p *snapshot.Project) ([]byte, error) {
	if isXMLPath(path) {
		return p.XML()
	}
	return p.JSON()
}

func isXMLPath(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".xml")
}
