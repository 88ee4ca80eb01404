package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"musiclib/services/library/internal/app"
)

func fsckCommand() *cli.Command {
	return &cli.Command{
		Name:  "fsck",
		Usage: "Compare song rows with stored audio files",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "repair",
				Usage: "Delete rows whose file is missing and remove files no row refers to",
			},
		},
		Action: fsck,
	}
}

func fsck(ctx context.Context, cmd *cli.Command) error {
	rt, err := setup(ctx, cmd)
	if err != nil {
		return err
	}
	defer rt.Close()

	report, err := rt.app.CheckConsistency(ctx, cmd.Bool("repair"))
	if err != nil {
		return err
	}
	printReport(os.Stdout, report)
	if !report.Clean() && !report.Repaired {
		return cli.Exit("inconsistencies found; rerun with --repair to fix", 1)
	}
	return nil
}

func printReport(w io.Writer, report app.ConsistencyReport) {
	for _, name := range report.PendingFiles {
		fmt.Fprintf(w, "skipped recent file: %s\n", name)
	}
	if report.Clean() {
		fmt.Fprintln(w, "ok: every song row has its file")
		return
	}
	for _, song := range report.DanglingRows {
		fmt.Fprintf(w, "missing file: song %d (%s) -> %s\n", song.ID, song.Title, song.Filename)
	}
	for _, name := range report.OrphanedFiles {
		fmt.Fprintf(w, "orphaned file: %s\n", name)
	}
	if report.Repaired {
		fmt.Fprintf(w, "repaired: %d rows deleted, %d files removed\n", len(report.DanglingRows), len(report.OrphanedFiles))
	}
}
