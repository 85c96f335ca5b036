// Command terminal-sim runs an in-process time-clock terminal on TCP so the
// API and devicectl can be exercised without hardware.
package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/xelth-com/eckclockgo/internal/punch"
	"github.com/xelth-com/eckclockgo/internal/terminal"
	"github.com/xelth-com/eckclockgo/internal/terminal/terminaltest"
)

// seed is the YAML layout of --seed files
type seed struct {
	SerialNumber string          `yaml:"serial_number"`
	DeviceName   string          `yaml:"device_name"`
	Users        []seedUser  `yaml:"users"`
	Punches      []seedPunch `yaml:"punches"`
}

type seedUser struct {
	ID           string `yaml:"id"`
	Name         string `yaml:"name"`
	Card         string `yaml:"card"`
	Fingerprints int    `yaml:"fingerprints"`
	Privilege    int    `yaml:"privilege"`
}

func (u seedUser) user() terminal.User {
	return terminal.User{DeviceUserID: u.ID, Name: u.Name, CardNumber: u.Card, FingerprintCount: u.Fingerprints, Privilege: u.Privilege}
}

type seedPunch struct {
	User   string `yaml:"user"`
	At     string `yaml:"at"` // terminal local time, 2006-01-02 15:04:05
	Out    bool   `yaml:"out"`
	Verify int    `yaml:"verify"`
}

func (p seedPunch) line() string {
	status := 0
	if p.Out {
		status = 1
	}
	return fmt.Sprintf("%s\t%s\t%d\t%d\t0\t0", p.User, p.At, status, p.Verify)
}

func defaultSeed() *seed {
	day := time.Now().Format("2006-01-02")
	return &seed{
		Users: []seedUser{
			{ID: "1", Name: "Ada Lovelace", Card: "0001", Fingerprints: 2},
			{ID: "2", Name: "Grace Hopper", Card: "0002", Fingerprints: 1},
			{ID: "3", Name: "Unmapped Visitor"},
		},
		Punches: []seedPunch{
			{User: "1", At: day + " 08:00:00", Verify: 1},
			{User: "2", At: day + " 08:12:30", Verify: 2},
			{User: "1", At: day + " 08:00:40", Verify: 1},
			{User: "3", At: day + " 09:30:00", Verify: 0},
			{User: "2", At: day + " 16:45:10", Out: true, Verify: 2},
			{User: "1", At: day + " 17:00:00", Out: true, Verify: 1},
		},
	}
}

func loadSeed(path string) (*seed, error) {
	if path == "" {
		return defaultSeed(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var s seed
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	for i, p := range s.Punches {
		if _, err := time.Parse(punch.TimestampLayout, p.At); err != nil {
			return nil, fmt.Errorf("punch %d: %w", i, err)
		}
	}
	return &s, nil
}

func main() {
	var (
		listen    string
		seedPath  string
		chunkSize int
		sessionID uint16
	)

	cmd := &cobra.Command{
		Use:          "terminal-sim",
		Short:        "Serve a simulated time-clock terminal",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSeed(seedPath)
			if err != nil {
				return err
			}

			srv, err := terminaltest.NewServer(listen)
			if err != nil {
				return err
			}
			defer srv.Close()

			if s.SerialNumber != "" || s.DeviceName != "" {
				srv.SetInfo(terminal.DeviceInfo{
					SerialNumber: s.SerialNumber,
					DeviceName:   s.DeviceName,
					Firmware:     "Ver 6.60 Sim",
					Platform:     "ZMM220_TFT",
				})
			}
			users := make([]terminal.User, 0, len(s.Users))
			for _, u := range s.Users {
				users = append(users, u.user())
			}
			srv.SetUsers(users...)
			for _, p := range s.Punches {
				srv.AddPunchLines(p.line())
			}
			srv.SetChunkSize(chunkSize)
			srv.SetSessionID(sessionID)

			log.Printf("⏱️ Terminal simulator on %s (%d users, %d punches)", srv.Addr(), len(s.Users), len(s.Punches))

			stop := make(chan os.Signal, 1)
			signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
			<-stop
			log.Printf("🛑 Simulator stopping (%d connects, %d exits)", srv.Connects(), srv.Exits())
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "127.0.0.1:4370", "address to listen on")
	cmd.Flags().StringVar(&seedPath, "seed", "", "YAML file with users and punches (default: built-in demo day)")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 1024, "payload bytes per DATA frame")
	cmd.Flags().Uint16Var(&sessionID, "session-id", 0x5A17, "session id to assign (0 keeps the client's)")

	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
