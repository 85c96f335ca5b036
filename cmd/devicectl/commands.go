package main

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/xelth-com/eckclockgo/internal/config"
	"github.com/xelth-com/eckclockgo/internal/models"
	"github.com/xelth-com/eckclockgo/internal/punch"
	"github.com/xelth-com/eckclockgo/internal/repository"
	"github.com/xelth-com/eckclockgo/internal/terminal"
	"github.com/xelth-com/eckclockgo/internal/timeclock"
)

func withDefaultPort(addr string, port int) (string, error) {
	if _, _, err := net.SplitHostPort(addr); err == nil {
		return addr, nil
	}
	if addr == "" {
		return "", fmt.Errorf("--addr is required")
	}
	return net.JoinHostPort(addr, strconv.Itoa(port)), nil
}

func probeCmd(g *globalFlags, cfg *config.SyncConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Connect and print device information",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()

			start := time.Now()
			sess, err := openSession(ctx, g, cfg)
			if err != nil {
				return err
			}
			defer sess.Disconnect(ctx)

			info, err := sess.GetDeviceInfo(ctx)
			if err != nil {
				return err
			}
			if g.outputJSON {
				return printJSON(info)
			}

			sessionID, _ := sess.Counters()
			fmt.Printf("✅ %s reachable in %s (session %#04x)\n", sess.Addr(), time.Since(start).Round(time.Millisecond), sessionID)
			fmt.Printf("  Serial:       %s\n", info.SerialNumber)
			fmt.Printf("  Name:         %s\n", info.DeviceName)
			fmt.Printf("  Firmware:     %s\n", info.Firmware)
			fmt.Printf("  Platform:     %s\n", info.Platform)
			fmt.Printf("  Users:        %d (%d fingerprints)\n", info.UserCount, info.FingerprintCount)
			fmt.Printf("  Punches:      %d\n", info.LogCount)
			fmt.Printf("  Device time:  %s\n", info.DeviceTime)
			return nil
		},
	}
}

func logsCmd(g *globalFlags, cfg *config.SyncConfig) *cobra.Command {
	var tz, from, to string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Download and decode the attendance log",
		RunE: func(cmd *cobra.Command, args []string) error {
			loc := cfg.Location()
			if tz != "" {
				var err error
				if loc, err = time.LoadLocation(tz); err != nil {
					return fmt.Errorf("--tz: %w", err)
				}
			}
			start, end, err := (&timeclock.Options{StartDate: from, EndDate: to}).Range(loc)
			if err != nil {
				return err
			}

			ctx, cancel := signalContext()
			defer cancel()
			sess, err := openSession(ctx, g, cfg)
			if err != nil {
				return err
			}
			raw, err := sess.GetAttendanceLogs(ctx)
			sess.Disconnect(ctx)
			if err != nil {
				return err
			}

			punches, decodeErrs := punch.NewDecoder(loc).Decode(raw)
			punches = punch.FilterRange(punches, start, end)
			if g.outputJSON {
				return printJSON(punches)
			}
			for _, p := range punches {
				fmt.Printf("%-8s %s  %-9s %-11s work=%s\n", p.DeviceUserID, p.Timestamp.In(loc).Format(punch.TimestampLayout), p.Direction, p.VerifyMethod, p.WorkCode)
			}
			for _, de := range decodeErrs {
				fmt.Printf("⚠️ %v\n", de)
			}
			fmt.Printf("%d punches, %d undecodable lines\n", len(punches), len(decodeErrs))
			return nil
		},
	}
	cmd.Flags().StringVar(&tz, "tz", "", "device timezone (default SYNC_DEFAULT_TIMEZONE)")
	cmd.Flags().StringVar(&from, "from", "", "first day or RFC 3339 instant to include")
	cmd.Flags().StringVar(&to, "to", "", "last day or RFC 3339 instant to include")
	return cmd
}

func usersCmd(g *globalFlags, cfg *config.SyncConfig) *cobra.Command {
	return &cobra.Command{
		Use:   "users",
		Short: "List enrolled users",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signalContext()
			defer cancel()
			sess, err := openSession(ctx, g, cfg)
			if err != nil {
				return err
			}
			users, err := sess.GetUsers(ctx)
			sess.Disconnect(ctx)
			if err != nil {
				return err
			}

			if g.outputJSON {
				return printJSON(users)
			}
			for _, u := range users {
				fmt.Printf("%-8s %-24s card=%-10s fp=%d priv=%d\n", u.DeviceUserID, u.Name, u.CardNumber, u.FingerprintCount, u.Privilege)
			}
			fmt.Printf("%d users\n", len(users))
			return nil
		},
	}
}

func enrollCmd(g *globalFlags, cfg *config.SyncConfig) *cobra.Command {
	var u terminal.User

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Create or update a user on the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			if u.DeviceUserID == "" {
				return fmt.Errorf("--id is required")
			}
			ctx, cancel := signalContext()
			defer cancel()
			sess, err := openSession(ctx, g, cfg)
			if err != nil {
				return err
			}
			defer sess.Disconnect(ctx)

			if err := sess.PutUser(ctx, u); err != nil {
				return err
			}
			fmt.Printf("✅ Enrolled %s (%s)\n", u.DeviceUserID, u.Name)
			return nil
		},
	}
	cmd.Flags().StringVar(&u.DeviceUserID, "id", "", "device user id")
	cmd.Flags().StringVar(&u.Name, "name", "", "display name")
	cmd.Flags().StringVar(&u.CardNumber, "card", "", "card number")
	cmd.Flags().IntVar(&u.Privilege, "privilege", 0, "privilege level (0 user, 14 admin)")
	return cmd
}

// syncCmd reconciles the terminal into an in-memory ledger and reports what
// a real run would write
func syncCmd(g *globalFlags, cfg *config.SyncConfig) *cobra.Command {
	var (
		mappings []string
		from, to string
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Dry-run sync_attendance against an in-memory ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := withDefaultPort(g.addr, cfg.DefaultPort)
			if err != nil {
				return err
			}
			host, portStr, _ := net.SplitHostPort(addr)
			port, _ := strconv.Atoi(portStr)

			ctx, cancel := signalContext()
			defer cancel()

			store := repository.NewMemoryStore()
			device := &models.TimeClockDevice{CompanyID: uuid.New(), Name: "devicectl", IPAddress: host, Port: port}
			if err := store.CreateDevice(ctx, device); err != nil {
				return err
			}
			employees, err := applyMappings(store, device.ID, mappings)
			if err != nil {
				return err
			}

			runCfg := *cfg
			runCfg.CommandTimeout = g.timeout
			orch := timeclock.New(timeclock.Deps{Store: store, Config: &runCfg})
			resp, err := orch.Run(ctx, timeclock.Request{
				Action:    timeclock.ActionSyncAttendance,
				DeviceID:  device.ID,
				CompanyID: device.CompanyID,
				Options:   &timeclock.Options{StartDate: from, EndDate: to},
			})
			if err != nil {
				return err
			}
			if g.outputJSON {
				return printJSON(resp)
			}
			return printLedger(ctx, store, employees, resp)
		},
	}
	cmd.Flags().StringArrayVar(&mappings, "map", nil, "device user to employee link, deviceUserId=employeeUUID (repeatable)")
	cmd.Flags().StringVar(&from, "from", "", "first day to include")
	cmd.Flags().StringVar(&to, "to", "", "last day to include")
	return cmd
}

func applyMappings(store *repository.MemoryStore, deviceID uuid.UUID, pairs []string) ([]uuid.UUID, error) {
	var employees []uuid.UUID
	for _, pair := range pairs {
		user, emp, ok := strings.Cut(pair, "=")
		if !ok || user == "" {
			return nil, fmt.Errorf("--map %q: expected deviceUserId=employeeUUID", pair)
		}
		id, err := uuid.Parse(emp)
		if err != nil {
			return nil, fmt.Errorf("--map %q: %w", pair, err)
		}
		store.MapEmployee(deviceID, user, id)
		employees = append(employees, id)
	}
	return employees, nil
}

func printLedger(ctx context.Context, store *repository.MemoryStore, employees []uuid.UUID, resp *timeclock.Response) error {
	fmt.Printf("%s (synced=%d failed=%d total=%d)\n", resp.Message, *resp.Synced, *resp.Failed, *resp.Total)
	if resp.Error != "" {
		fmt.Printf("⚠️ %s\n", resp.Error)
	}
	for _, emp := range employees {
		entries, err := store.ListEntries(ctx, emp)
		if err != nil {
			return err
		}
		for _, e := range entries {
			out := "open"
			if e.ClockOut != nil {
				out = e.ClockOut.Format(time.RFC3339)
			}
			fmt.Printf("  %s  in=%s out=%s (%s)\n", emp, e.ClockIn.Format(time.RFC3339), out, e.Status)
		}
	}
	return nil
}
