package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"

	beacon "github.com/Tap30/beacon-go"
)

var client *beacon.Client
var scanner *bufio.Scanner
var screenCounter int
var eventCounter int
var gateOpen = true

func main() {
	scanner = bufio.NewScanner(os.Stdin)

	// .env is optional
	_ = godotenv.Load()

	config, err := loadConfig()
	if err != nil {
		fmt.Printf("❌ Failed to load configuration: %v\n", err)
		return
	}

	client, err = beacon.NewClient(config)
	if err != nil {
		fmt.Printf("❌ Failed to create client: %v\n", err)
		return
	}

	if err := client.Init(context.Background()); err != nil {
		fmt.Printf("❌ Failed to initialize client: %v\n", err)
		return
	}

	fmt.Println("🎯 Beacon Interactive Client")
	fmt.Printf("Collector: %s\n", config.ServerURL)
	fmt.Printf("Periodic dispatch: %v\n\n", config.PeriodicDispatch)

	for {
		showMenu()
		choice := readInput("Choose an option: ")

		switch choice {
		case "1":
			startSession()
		case "2":
			startScreen()
		case "3":
			endScreen()
		case "4":
			sendEvent()
		case "5":
			endSession()
		case "6":
			setConnectivity(false)
		case "7":
			setConnectivity(true)
		case "8":
			toggleGate()
		case "9":
			client.ReleaseStoredRequests()
			fmt.Print("✅ Stored requests will be released on the next tick\n\n")
		case "10":
			client.CancelRelease()
			fmt.Print("✅ Release cancelled\n\n")
		case "11":
			registerPushToken()
		case "12":
			unregisterPush()
		case "13":
			setCustomID()
		case "14":
			flush()
		case "15":
			showStats()
		case "16":
			fmt.Println("👋 Goodbye!")
			if err := client.Dispose(context.Background()); err != nil {
				fmt.Printf("❌ Error disposing client: %v\n", err)
			}
			return
		default:
			fmt.Print("❌ Invalid option. Please try again.\n\n")
		}
	}
}

// loadConfig reads BEACON_SETTINGS when set and falls back to the environment.
func loadConfig() (beacon.ClientConfig, error) {
	if path := os.Getenv("BEACON_SETTINGS"); path != "" {
		settings, err := beacon.LoadSettings(path)
		if err != nil {
			return beacon.ClientConfig{}, err
		}
		return settings.ClientConfig(), nil
	}

	settings := beacon.Settings{
		ServerURL:               envOr("BEACON_SERVER_URL", "http://localhost:3000/api"),
		APIKey:                  envOr("BEACON_API_KEY", "test-api-key"),
		TrackingCode:            envOr("BEACON_TRACKING_CODE", "PLAYGROUND"),
		PeriodicDispatchEnabled: os.Getenv("BEACON_PERIODIC") == "true",
		LoggingEnabled:          true,
		LogLevel:                envOr("BEACON_LOG_LEVEL", "debug"),
		DataDir:                 envOr("BEACON_DATA_DIR", "."),
	}
	config := settings.ClientConfig()
	config.DispatchTick = time.Second
	return config, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func showMenu() {
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	fmt.Println("📊 Session and Activity")
	fmt.Println("1. Start Session")
	fmt.Println("2. Start Screen")
	fmt.Println("3. End Screen")
	fmt.Println("4. Send Event")
	fmt.Println("5. End Session")
	fmt.Println()
	fmt.Println("📶 Connectivity")
	fmt.Println("6. Go Offline")
	fmt.Println("7. Go Online")
	fmt.Println("8. Toggle Lower Priority Gate")
	fmt.Println()
	fmt.Println("📦 Stored Requests")
	fmt.Println("9. Release Stored Requests")
	fmt.Println("10. Cancel Release")
	fmt.Println()
	fmt.Println("🔔 Push")
	fmt.Println("11. Register Push Token")
	fmt.Println("12. Unregister")
	fmt.Println("13. Set Custom ID")
	fmt.Println()
	fmt.Println("🔄 Lifecycle")
	fmt.Println("14. Flush")
	fmt.Println("15. Stats")
	fmt.Println("16. Exit")
	fmt.Println("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
}

func readInput(prompt string) string {
	fmt.Print(prompt)
	scanner.Scan()
	return strings.TrimSpace(scanner.Text())
}

func report(action string, err error) {
	if err != nil {
		fmt.Printf("❌ %s failed: %v\n\n", action, err)
		return
	}
	fmt.Printf("✅ %s\n\n", action)
}

func startSession() {
	fmt.Println("\n📊 Start Session")
	report("Session start queued", client.StartSession(true))
}

func startScreen() {
	fmt.Println("\n📊 Start Screen")
	screenCounter++
	id := fmt.Sprintf("screen_%d", screenCounter)
	title := readInput("Title: ")
	if title == "" {
		title = fmt.Sprintf("Screen %d", screenCounter)
	}
	err := client.StartScreen(id, title, "/"+id)
	report(fmt.Sprintf("Screen %s started", id), err)
}

func endScreen() {
	fmt.Println("\n📊 End Screen")
	id := readInput(fmt.Sprintf("Screen id (default screen_%d): ", screenCounter))
	if id == "" {
		id = fmt.Sprintf("screen_%d", screenCounter)
	}
	report(fmt.Sprintf("Screen %s ended", id), client.EndScreen(id))
}

func sendEvent() {
	fmt.Println("\n📊 Send Event")
	eventCounter++
	key := readInput("Event key: ")
	if key == "" {
		key = fmt.Sprintf("event_%d", eventCounter)
	}
	value := readInput("Event value: ")
	report(fmt.Sprintf("Event %s sent", key), client.SendEvent(key, value))
}

func endSession() {
	fmt.Println("\n📊 End Session")
	report("Session end requested", client.EndSession())
}

func setConnectivity(connected bool) {
	client.OnConnectivityChanged(connected)
	if connected {
		fmt.Print("📶 Online\n\n")
	} else {
		fmt.Print("📴 Offline, captures go to the offline cache\n\n")
	}
}

func toggleGate() {
	gateOpen = !gateOpen
	client.SetLowerPriorityGate(gateOpen)
	fmt.Printf("✅ Lower priority gate open: %v\n\n", gateOpen)
}

func registerPushToken() {
	fmt.Println("\n🔔 Register Push Token")
	token := readInput("Token: ")
	if token == "" {
		token = fmt.Sprintf("token-%d", time.Now().Unix())
	}
	report("Push token queued", client.SendRegistrationID(token))
}

func unregisterPush() {
	fmt.Println("\n🔔 Unregister")
	report("Unregister queued", client.UnregisterFromNotificationServer())
}

func setCustomID() {
	fmt.Println("\n🔔 Set Custom ID")
	client.SetCustomID(readInput("Custom id: "))
	fmt.Print("✅ Custom id set\n\n")
}

func flush() {
	fmt.Println("\n🔄 Flushing...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	client.Flush(ctx)
	fmt.Print("✅ Flushed\n\n")
}

func showStats() {
	stats := client.Stats()
	fmt.Println("\n👀 Pipeline")
	fmt.Printf("  connected:        %v\n", stats.Connected)
	fmt.Printf("  session:          %q (state %v, gate open %v)\n", stats.Session.Code, stats.Session.State, stats.Session.GateOpen)
	fmt.Printf("  queued online:    %d\n", stats.Queued)
	fmt.Printf("  pending captures: %d\n", stats.PendingCaptures)
	fmt.Printf("  offline pending:  %v (%d tries)\n", stats.OfflinePending, stats.OfflineTries)
	fmt.Printf("  releasing:        %v\n", stats.Releasing)
	fmt.Printf("  open screens:     %d\n", stats.Screens)
	fmt.Println()
}
