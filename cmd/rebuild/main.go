package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/pedronipalhares/imea/internal/aggregate"
	"github.com/pedronipalhares/imea/internal/dataset"
	"github.com/pedronipalhares/imea/internal/store/sqlite"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	switch os.Args[1] {
	case "build":
		build(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
}

// build rewrites the CSV datasets from previously persisted observations.
// No network access.
func build(args []string) {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	dbPath := fs.String("db", "imea.db", "sqlite database path")
	outDir := fs.String("out", "datasets", "output directory")
	fs.Parse(args)

	if err := rebuild(*dbPath, *outDir); err != nil {
		fmt.Fprintln(os.Stderr, "rebuild failed:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: rebuild build [options]")
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "options:")
	fmt.Fprintln(os.Stderr, "  -db   sqlite database path (default: imea.db)")
	fmt.Fprintln(os.Stderr, "  -out  output directory (default: datasets)")
}

func rebuild(dbPath, outDir string) error {
	st, err := sqlite.New(dbPath)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	rows, err := st.ListRows(ctx)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no stored observations in %s", dbPath)
	}

	deduped := aggregate.Dedup(rows)
	partitions := aggregate.Partitions(deduped)
	summary := aggregate.Summary(deduped)

	counts, err := dataset.WriteDatasets(outDir, partitions, summary)
	if err != nil {
		return err
	}

	total := 0
	for _, count := range counts {
		total += count
	}
	fmt.Printf("rebuild complete (out=%s files=%d rows=%d)\n", outDir, len(counts), total)
	return nil
}
