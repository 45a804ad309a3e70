package main

import (
	"context"
	"fmt"
	"time"

	"github.com/user/paybeacon/beacon"
	"github.com/user/paybeacon/discovery"
	"github.com/user/paybeacon/discoveryd"
	"github.com/user/paybeacon/kotlin"
	"github.com/user/paybeacon/radio"
	"github.com/user/paybeacon/swift"
)

const listenAddr = "127.0.0.1:8099"

func main() {
	fmt.Println("=== Proximity Payment Discovery Demo ===")
	fmt.Println()

	// In-process backend with two registered payees.
	cfg := &discoveryd.Config{
		App:    discoveryd.AppConfig{Name: "demo-discoveryd", Env: "production"},
		Auth:   discoveryd.AuthConfig{JWTSecret: "demo-secret", TokenTTLMinutes: 10},
		Logger: discoveryd.LoggerConfig{Level: "error"},
		Beacon: discoveryd.BeaconConfig{
			MaxTTLSeconds:     600,
			DefaultTTLSeconds: 300,
			LookupBatchLimit:  20,
			LookupRateLimit:   60,
			RateWindowSeconds: 60,
		},
	}

	logger, err := discoveryd.NewLogger(cfg.Logger)
	if err != nil {
		fmt.Printf("❌ logger init failed: %v\n", err)
		return
	}

	profiles := discoveryd.NewMemoryProfiles()
	profiles.Put(discoveryd.Profile{UserID: "user-alice", DisplayName: "Alice Chen", Handle: "@alice"})
	profiles.Put(discoveryd.Profile{UserID: "user-bob", DisplayName: "Bob's Coffee", Handle: "@bobscoffee"})

	registry := discoveryd.NewMemoryRegistry()
	tm := discoveryd.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTLMinutes)
	app := discoveryd.NewApp(cfg, discoveryd.NewHandlers(cfg, logger, registry, profiles), tm)

	go func() {
		if err := app.Listen(listenAddr); err != nil {
			fmt.Printf("❌ backend listen failed: %v\n", err)
		}
	}()
	defer app.Shutdown() //nolint:errcheck
	time.Sleep(200 * time.Millisecond)

	aliceJWT, _, _ := tm.GenerateToken("user-alice", "Alice Chen")
	bobJWT, _, _ := tm.GenerateToken("user-bob", "Bob's Coffee")
	carolJWT, _, _ := tm.GenerateToken("user-carol", "Carol Diaz")

	baseURL := "http://" + listenAddr
	aliceClient := discovery.NewClient(baseURL, discovery.StaticTokenSource(aliceJWT))
	bobClient := discovery.NewClient(baseURL, discovery.StaticTokenSource(bobJWT))
	carolClient := discovery.NewClient(baseURL, discovery.StaticTokenSource(carolJWT))

	// Shared radio with deterministic signal strength.
	medium := radio.NewMedium(radio.PerfectSimulationConfig())
	medium.Start()
	defer medium.Stop()

	alicePhone := swift.NewAdapter("ios-alice", medium)
	bobPhone := kotlin.NewAdapter("android-bob", "Pixel 8 Pro", 33, medium)
	carolPhone := kotlin.NewAdapter("android-carol", "Galaxy S23", 33, medium)

	// Carol stands 0.8m from Alice and 3.2m from Bob's register.
	medium.SetDistance("android-carol", "ios-alice", 0.8)
	medium.SetDistance("android-carol", "android-bob", 3.2)

	fmt.Println("Devices:")
	fmt.Println("  - Alice (iPhone, P2P payee, 0.8m away)")
	fmt.Println("  - Bob's Coffee (Pixel, merchant payee, 3.2m away)")
	fmt.Println("  - Carol (Galaxy, payer, scanning)")
	fmt.Println()

	ctx := context.Background()

	aliceAdv := discovery.NewAdvertisingController(alicePhone, aliceClient)
	if !aliceAdv.Start(ctx, beacon.ContextP2PReceive, discovery.AdvertiseOptions{}) {
		fmt.Println("❌ Alice failed to start broadcasting")
		return
	}
	fmt.Printf("📡 Alice broadcasting token %s (service identifier)\n", beacon.TokenHex(aliceAdv.Active().Token))

	bobAdv := discovery.NewAdvertisingController(bobPhone, bobClient)
	if !bobAdv.Start(ctx, beacon.ContextMerchantReceive, discovery.AdvertiseOptions{}) {
		fmt.Println("❌ Bob failed to start broadcasting")
		return
	}
	fmt.Printf("📡 Bob broadcasting token %s (manufacturer beacon)\n", beacon.TokenHex(bobAdv.Active().Token))
	fmt.Println()

	results := make(chan []beacon.NearbyUser, 4)
	scanner := discovery.NewScanningController(carolPhone, carolClient)
	ok := scanner.Start(func(users []beacon.NearbyUser) {
		select {
		case results <- users:
		default:
		}
	}, discovery.ScanOptions{DebounceInterval: 300 * time.Millisecond})
	if !ok {
		fmt.Println("❌ Carol failed to start scanning")
		return
	}
	fmt.Println("🔍 Carol scanning...")
	fmt.Println()

	deadline := time.After(5 * time.Second)
	for {
		select {
		case users := <-results:
			if len(users) < 2 {
				continue
			}
			fmt.Printf("Carol sees %d nearby recipients:\n", len(users))
			for _, u := range users {
				fmt.Printf("  💸 %s (%s) at %.1fm, %s, rssi %d [%s]\n",
					u.DisplayName, u.Handle, u.DistanceMeters, u.Proximity, u.RSSI, u.Context)
			}
			fmt.Println()
			shutdown(ctx, scanner, aliceAdv, bobAdv)
			fmt.Println("✅ Discovery round-trip complete!")
			return
		case <-deadline:
			fmt.Println("❌ Timed out waiting for discovery results")
			shutdown(ctx, scanner, aliceAdv, bobAdv)
			return
		}
	}
}

func shutdown(ctx context.Context, scanner *discovery.ScanningController, advs ...*discovery.AdvertisingController) {
	scanner.Stop()
	for _, adv := range advs {
		adv.Stop(ctx)
	}
}
