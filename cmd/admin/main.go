package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"matchchat/backend/internal/config"
	"matchchat/backend/internal/storage"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const usage = `Usage: admin <command> [args]

Commands:
  rooms [--active] [--limit N]   list archived rooms, newest first
  room <room_id>                 show one archived room
  close-stale                    close rooms left active by a previous run
  stats                          show the last published live stats`

var errUsage = errors.New("invalid usage")

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	if len(os.Args) < 2 {
		fmt.Println(usage)
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	storageSvc, err := openStorage(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open storage")
	}
	defer storageSvc.Close()

	if err := run(context.Background(), os.Args[1:], storageSvc, os.Stdout); err != nil {
		if errors.Is(err, errUsage) {
			fmt.Println(usage)
			os.Exit(1)
		}
		log.Fatal().Err(err).Msg("command failed")
	}
}

func openStorage(cfg *config.Config) (*storage.Service, error) {
	svc := storage.NewStorageService(nil, nil)
	if cfg.ArchiveEnabled() {
		db, err := storage.OpenDatabase(cfg.DatabaseDSN)
		if err != nil {
			return nil, err
		}
		svc.DB = db
	}
	if cfg.StatsEnabled() {
		rdb, err := storage.OpenRedis(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		svc.Redis = rdb
	}
	return svc, nil
}

func run(ctx context.Context, args []string, st storage.Storage, out io.Writer) error {
	if len(args) == 0 {
		return errUsage
	}

	switch args[0] {
	case "rooms":
		fs := flag.NewFlagSet("rooms", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		active := fs.Bool("active", false, "only rooms that are still open")
		limit := fs.Int("limit", 50, "maximum number of rooms")
		if err := fs.Parse(args[1:]); err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		rooms, err := st.ListRooms(ctx, *active, *limit)
		if err != nil {
			return err
		}
		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "ROOM\tUSER 1\tUSER 2\tSTARTED\tENDED\tREASON\tMESSAGES")
		for _, r := range rooms {
			ended := "-"
			if r.EndedAt != nil {
				ended = r.EndedAt.Format(time.RFC3339)
			}
			reason := r.CloseReason
			if r.IsActive {
				reason = "active"
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%d\n",
				r.RoomID, r.User1Name, r.User2Name, r.StartedAt.Format(time.RFC3339), ended, reason, r.MessageCount)
		}
		return w.Flush()

	case "room":
		if len(args) != 2 {
			return errUsage
		}
		r, err := st.GetRoomByID(ctx, args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Room:      %s\n", r.RoomID)
		fmt.Fprintf(out, "User 1:    %s (%s, %s)\n", r.User1Name, r.User1Gender, r.User1ID)
		fmt.Fprintf(out, "User 2:    %s (%s, %s)\n", r.User2Name, r.User2Gender, r.User2ID)
		fmt.Fprintf(out, "Started:   %s\n", r.StartedAt.Format(time.RFC3339))
		if r.EndedAt != nil {
			fmt.Fprintf(out, "Ended:     %s (%s)\n", r.EndedAt.Format(time.RFC3339), r.CloseReason)
		} else {
			fmt.Fprintln(out, "Ended:     still active")
		}
		fmt.Fprintf(out, "Messages:  %d\n", r.MessageCount)
		return nil

	case "close-stale":
		n, err := st.CloseStaleRooms(ctx, time.Now())
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Closed %d stale rooms.\n", n)
		return nil

	case "stats":
		s, err := st.LoadStats(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Waiting:       %d\nActive rooms:  %d\nOnline:        %d\nUpdated:       %s\n",
			s.Waiting, s.ActiveRooms, s.Online, s.UpdatedAt.Format(time.RFC3339))
		return nil
	}
	return errUsage
}
