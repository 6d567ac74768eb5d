package main

import (
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill-redisstream/pkg/redisstream"
	"github.com/quillwire/devlink/adapters/accounts"
	"github.com/quillwire/devlink/adapters/events"
	"github.com/quillwire/devlink/adapters/prekeys"
	"github.com/quillwire/devlink/adapters/publickeys"
	"github.com/quillwire/devlink/adapters/ratelimit"
	"github.com/quillwire/devlink/adapters/store"
	"github.com/quillwire/devlink/service"
	"github.com/quillwire/devlink/transport/http"
	"github.com/redis/go-redis/v9"
)

func main() {
	linkDeviceSecret := os.Getenv("LINK_DEVICE_SECRET")
	if linkDeviceSecret == "" {
		log.Fatal("LINK_DEVICE_SECRET must be set")
	}

	redisURL := os.Getenv("REDIS_URL")
	if redisURL == "" {
		redisURL = "redis://localhost:6379/0"
	}

	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		log.Fatalf("Failed to parse Redis URL: %v", err)
	}

	redisClient := redis.NewClient(opts)

	logger := watermill.NewStdLogger(false, false)
	publisher, err := redisstream.NewPublisher(
		redisstream.PublisherConfig{
			Client: redisClient,
		},
		logger,
	)
	if err != nil {
		log.Fatalf("Failed to create Redis publisher: %v", err)
	}

	accountStore := accounts.NewMemoryAccountStore()
	replayStore := store.NewRedisReplayStore(redisClient)
	limiters := service.RateLimiters{
		AllocateDevice: ratelimit.NewRedisRateLimiter(redisClient, ratelimit.BucketAllocateDevice, 2, 24*time.Hour),
		VerifyDevice:   ratelimit.NewRedisRateLimiter(redisClient, ratelimit.BucketVerifyDevice, 6, time.Minute),
	}

	deviceService, err := service.NewDeviceService(
		service.Config{
			LinkDeviceSecret:   []byte(linkDeviceSecret),
			MaxDeviceOverrides: parseMaxDeviceOverrides(os.Getenv("MAX_DEVICE_OVERRIDES")),
		},
		accountStore,
		replayStore,
		limiters,
		prekeys.NewECDSAValidator(),
		publickeys.NewMemoryPublicKeyStore(),
		events.NewWatermillPublisher(publisher),
	)
	if err != nil {
		log.Fatalf("Failed to create device service: %v", err)
	}

	router := http.SetupRouter(deviceService, accountStore)

	port := os.Getenv("PORT")
	if port == "" {
		port = "9000"
	}

	if err := router.Run(":" + port); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// parseMaxDeviceOverrides parses "number=count,number=count" into a per-account
// device-ceiling map. Malformed entries are skipped with a warning.
func parseMaxDeviceOverrides(raw string) map[string]int {
	overrides := make(map[string]int)

	for _, entry := range strings.Split(raw, ",") {
		if entry == "" {
			continue
		}

		number, count, found := strings.Cut(entry, "=")
		if !found {
			log.Printf("skipping malformed max-device override %q", entry)
			continue
		}

		parsed, err := strconv.Atoi(count)
		if err != nil || parsed <= 0 {
			log.Printf("skipping malformed max-device override %q", entry)
			continue
		}

		overrides[number] = parsed
	}

	return overrides
}
