// Command wallruns inspects recorded tracking runs. Without -run it lists the
// runs in the database; with -run it dumps that run's event stream.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"text/tabwriter"
	"time"

	"github.com/hueview/wallpaint/internal/walldb"
)

var (
	dbFile = flag.String("db", "walls.db", "SQLite file to inspect")
	runID  = flag.String("run", "", "Run ID to dump events for")
	limit  = flag.Int("limit", 0, "Max events to dump (0 = all)")
	counts = flag.Bool("counts", false, "Print per-kind event counts instead of the event stream")
)

func main() {
	flag.Parse()

	db, err := walldb.Open(*dbFile)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer db.Close()

	if *runID == "" {
		listRuns(db)
		return
	}
	if *counts {
		printCounts(db, *runID)
		return
	}
	dumpEvents(db, *runID, *limit)
}

func listRuns(db *walldb.DB) {
	runs, err := db.ListRuns()
	if err != nil {
		log.Fatalf("failed to list runs: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tENDED\tNOTE")
	for _, run := range runs {
		ended := "-"
		if run.EndedAtNs != nil {
			ended = fmtNs(*run.EndedAtNs)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", run.RunID, fmtNs(run.StartedAtNs), ended, run.Note)
	}
	w.Flush()
}

func dumpEvents(db *walldb.DB, runID string, limit int) {
	events, err := db.ListEvents(runID, limit)
	if err != nil {
		log.Fatalf("failed to list events: %v", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "AT\tKIND\tENTITY\tDETAIL")
	for _, ev := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", fmtNs(ev.AtNs), ev.Kind, ev.EntityID, ev.Detail)
	}
	w.Flush()
}

func printCounts(db *walldb.DB, runID string) {
	byKind, err := db.CountEventsByKind(runID)
	if err != nil {
		log.Fatalf("failed to count events: %v", err)
	}
	for kind, n := range byKind {
		fmt.Printf("%s\t%d\n", kind, n)
	}
}

func fmtNs(ns int64) string {
	return time.Unix(0, ns).Format(time.RFC3339)
}
