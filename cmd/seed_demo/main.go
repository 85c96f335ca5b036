package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/xelth-com/eckclockgo/internal/config"
	"github.com/xelth-com/eckclockgo/internal/database"
	"github.com/xelth-com/eckclockgo/internal/models"
	"github.com/xelth-com/eckclockgo/internal/repository"
)

// Fixed ids so repeated seeding and curl examples line up
var (
	demoCompany = uuid.MustParse("0b5e7c1d-0000-4000-8000-00000000c0de")
	demoDevice  = uuid.MustParse("6f1c2a8e-0000-4000-8000-000000000001")
	demoStaff   = map[string]uuid.UUID{
		"1": uuid.MustParse("e1000000-0000-4000-8000-000000000001"), // Ada Lovelace
		"2": uuid.MustParse("e1000000-0000-4000-8000-000000000002"), // Grace Hopper
	}
)

func main() {
	fmt.Println("🌱 eckclock Demo Data Seeder")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("❌ Failed to load config: %v", err)
	}

	db, err := database.Connect(cfg.Database)
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	defer db.Close()

	fmt.Println("🔨 Running database migrations...")
	if err := db.Migrate(); err != nil {
		log.Fatalf("❌ Migration failed: %v", err)
	}

	ctx := context.Background()
	store := repository.NewGormStore(db.DB)

	simHost := envOr("SIM_HOST", "127.0.0.1")
	simPort, err := strconv.Atoi(envOr("SIM_PORT", "4370"))
	if err != nil {
		log.Fatalf("❌ SIM_PORT: %v", err)
	}

	if _, err := store.GetDevice(ctx, demoDevice, demoCompany); err == nil {
		fmt.Printf("⚠️  Demo device %s already exists, refreshing mappings only\n", demoDevice)
	} else {
		device := &models.TimeClockDevice{
			ID:           demoDevice,
			CompanyID:    demoCompany,
			Name:         "Demo lobby terminal",
			SerialNumber: "SIM0000001",
			IPAddress:    simHost,
			Port:         simPort,
			SyncStatus:   models.DeviceStatusUnknown,
			Settings:     datatypes.JSONMap{models.SettingTimezone: envOr("SIM_TIMEZONE", "UTC")},
		}
		if err := store.CreateDevice(ctx, device); err != nil {
			log.Fatalf("❌ Failed to create device: %v", err)
		}
		fmt.Printf("   ✓ Device %s -> %s\n", device.ID, device.Address(simPort))
	}

	// Links normally come from the enrollment workflow; seed them directly
	for deviceUserID, employeeID := range demoStaff {
		emp := employeeID
		row := models.DeviceUserMapping{DeviceID: demoDevice, DeviceUserID: deviceUserID, EmployeeID: &emp}
		err := db.Where(models.DeviceUserMapping{DeviceID: demoDevice, DeviceUserID: deviceUserID}).
			Assign(models.DeviceUserMapping{EmployeeID: &emp}).
			FirstOrCreate(&row).Error
		if err != nil {
			log.Printf("⚠️  Failed to map device user %s: %v", deviceUserID, err)
			continue
		}
		fmt.Printf("   ✓ Device user %s -> employee %s\n", deviceUserID, employeeID)
	}

	fmt.Println()
	fmt.Println("✅ Demo data ready. Start terminal-sim, then:")
	fmt.Printf(`   curl -X POST localhost:%s/api/timeclock/sync -d '{"action":"sync_attendance","device_id":"%s","company_id":"%s"}'`+"\n",
		cfg.Port, demoDevice, demoCompany)
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
