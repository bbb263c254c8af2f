package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/noah-isme/slotbook-api/internal/availability"
	"github.com/noah-isme/slotbook-api/internal/dto"
	"github.com/noah-isme/slotbook-api/internal/models"
	"github.com/noah-isme/slotbook-api/internal/repository"
	"github.com/noah-isme/slotbook-api/internal/service"
	"github.com/noah-isme/slotbook-api/pkg/config"
)

func main() {
	_ = godotenv.Load()

	app := &cli.App{
		Name:  "bookingctl",
		Usage: "Inspect slot generation and time zone projection offline.",
		Commands: []*cli.Command{
			slotsCommand(),
			projectCommand(),
			tokenCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func slotsCommand() *cli.Command {
	return &cli.Command{
		Name:  "slots",
		Usage: "Print the candidate slots of one host-local date.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Required: true, Usage: "host-local date, YYYY-MM-DD"},
			&cli.StringFlag{Name: "timezone", Value: "UTC", Usage: "host IANA time zone"},
			&cli.StringSliceFlag{Name: "window", Required: true, Usage: "weekly range like mon=09:00-17:00 (repeatable)"},
			&cli.IntFlag{Name: "duration", Value: 30, Usage: "slot length in minutes"},
			&cli.IntFlag{Name: "interval", Usage: "slot step in minutes, defaults to duration"},
			&cli.IntFlag{Name: "min-notice", Usage: "minimum notice in minutes"},
			&cli.IntFlag{Name: "rolling-days", Usage: "rolling range in days, 0 for indefinite"},
			&cli.StringFlag{Name: "invitee-timezone", Usage: "render local times in this zone"},
			&cli.TimestampFlag{Name: "now", Layout: time.RFC3339, Usage: "evaluate as of this instant"},
		},
		Action: func(c *cli.Context) error {
			windows, err := parseWindows(c.StringSlice("window"))
			if err != nil {
				return err
			}
			et := &models.EventType{
				ID:               "cli",
				Title:            "cli",
				DurationMinutes:  c.Int("duration"),
				MinNoticeMinutes: c.Int("min-notice"),
				Timezone:         c.String("timezone"),
				RangeType:        string(models.RangeIndefinite),
			}
			if interval := c.Int("interval"); interval > 0 {
				et.IntervalMinutes = &interval
			}
			if days := c.Int("rolling-days"); days > 0 {
				et.RangeType = string(models.RangeRolling)
				et.RollingDays = &days
			}
			policy, err := repository.NormalizePolicy(et, windows)
			if err != nil {
				return err
			}

			date, err := models.ParseLocalDate(c.String("date"))
			if err != nil {
				return err
			}
			now := time.Now()
			if ts := c.Timestamp("now"); ts != nil {
				now = *ts
			}
			loc, err := policy.Loc()
			if err != nil {
				return err
			}
			display, err := availability.LoadLocation(c.String("invitee-timezone"), loc)
			if err != nil {
				return err
			}

			day := dto.AvailabilityDay{Date: date.String(), Slots: []dto.AvailableSlot{}}
			for _, slot := range availability.DayCandidates(policy, date, now, loc) {
				day.Slots = append(day.Slots, dto.AvailableSlot{
					Start:      slot.Start.UTC(),
					End:        slot.End.UTC(),
					LocalStart: availability.Present(slot.Start, display),
					LocalEnd:   availability.Present(slot.End, display),
				})
			}
			return printJSON(c, day)
		},
	}
}

func projectCommand() *cli.Command {
	return &cli.Command{
		Name:  "project",
		Usage: "Resolve a wall-clock time in a zone to an absolute instant.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Required: true, Usage: "YYYY-MM-DD"},
			&cli.StringFlag{Name: "time", Required: true, Usage: "HH:MM"},
			&cli.StringFlag{Name: "timezone", Required: true, Usage: "IANA time zone"},
			&cli.StringFlag{Name: "to", Usage: "also render the instant in this zone"},
		},
		Action: func(c *cli.Context) error {
			date, err := models.ParseLocalDate(c.String("date"))
			if err != nil {
				return err
			}
			minute, err := parseClock(c.String("time"))
			if err != nil {
				return err
			}
			loc, err := availability.LoadLocation(c.String("timezone"), nil)
			if err != nil {
				return err
			}
			instant := availability.ToInstant(date, minute, loc)
			out := map[string]time.Time{
				"utc":   instant.UTC(),
				"local": availability.Present(instant, loc),
			}
			if to := c.String("to"); to != "" {
				target, err := availability.LoadLocation(to, nil)
				if err != nil {
					return err
				}
				out["target"] = availability.Present(instant, target)
			}
			return printJSON(c, out)
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "Issue a host access token signed with JWT_SECRET.",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "host", Required: true, Usage: "host id"},
			&cli.StringFlag{Name: "email", Usage: "host email"},
			&cli.DurationFlag{Name: "ttl", Value: time.Hour},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			auth := service.NewAuthService(zap.NewNop(), service.AuthConfig{AccessTokenSecret: cfg.JWT.Secret, Issuer: cfg.JWT.Issuer})
			token, err := auth.IssueToken(c.String("host"), c.String("email"), c.Duration("ttl"))
			if err != nil {
				return err
			}
			fmt.Fprintln(c.App.Writer, token)
			return nil
		},
	}
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
