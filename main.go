// File: bookingflow/main.go
package main

import (
	"bufio"
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/drshumard/bookingflow/config"
	"github.com/drshumard/bookingflow/journey"
	"github.com/drshumard/bookingflow/models"
	"github.com/drshumard/bookingflow/portal"
	"github.com/drshumard/bookingflow/sandbox"
	"github.com/drshumard/bookingflow/services/availability"
	"github.com/drshumard/bookingflow/services/booking"
	"github.com/drshumard/bookingflow/utils"
)

func main() {
	if err := godotenv.Load(); err != nil {
		fmt.Println("No .env file found, reading environment directly")
	}
	config.LoadConfig()
	logger := utils.GetLogger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Without a live portal the demo hosts its own: the embedded sandbox
	// serves the same booking and journey API on the configured port.
	baseURL := config.AppConfig.PortalBaseURL
	var srv *http.Server
	if baseURL == "" {
		sb := sandbox.New(config.AppConfig.AvailabilityDays, config.AppConfig.JourneyBearerToken, sandbox.RouterConfig{
			MaxRequestsPerMin: config.AppConfig.MaxRequestsPerMin,
		})
		srv = &http.Server{
			Addr:    "127.0.0.1:" + config.AppConfig.AppPort,
			Handler: sb.Handler(),
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Sugar().Fatalf("main: sandbox failed to start: %v", err)
			}
		}()
		baseURL = "http://" + srv.Addr
		logger.Sugar().Infof("Embedded sandbox portal on %s", baseURL)
	}

	portalClient := portal.NewClient(portal.ClientConfig{
		BaseURL:     baseURL,
		BearerToken: config.AppConfig.PortalBearerToken,
		Timeout:     config.RequestTimeout(),
		Retries:     config.AppConfig.FetchRetries,
		// Vendor timestamps without an offset are clinic-local.
		Timezone: config.AppConfig.DefaultTimezone,
	}, logger.Named("portal"))

	store := availability.NewStore(portalClient, availability.StoreConfig{
		Days:       config.AppConfig.AvailabilityDays,
		Interval:   config.RefreshInterval(),
		StaleAfter: config.StaleAfter(),
	}, logger.Named("availability"))
	store.Start(ctx)
	defer store.Stop()

	journeyBase := config.AppConfig.JourneyBaseURL
	if journeyBase == "" {
		journeyBase = baseURL
	}
	tracker := journey.NewTracker(journey.TrackerConfig{
		BaseURL: journeyBase,
		Token:   config.AppConfig.JourneyBearerToken,
		Steps: map[string]int{
			config.AppConfig.JourneyTaskID: config.AppConfig.JourneyTaskStep,
		},
	}, logger.Named("journey"))

	timezone := utils.DetectTimezone(config.AppConfig.DefaultTimezone)
	flow := booking.NewFlow(portalClient, store, booking.FlowConfig{
		Timezone:  timezone,
		Countdown: config.SuccessCountdown(),
	}, logger.Named("flow"))
	defer flow.Close()

	taskID := config.AppConfig.JourneyTaskID
	flow.OnBooked(func(result models.BookingResult) {
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			if err := tracker.TaskCompleted(ctx, taskID, result); err != nil {
				logger.Warn("journey step not advanced", zap.Error(err))
			}
		}()
	})
	flow.OnDone(func() {
		fmt.Println("\nReturning you to your wellness journey. See you at your visit!")
	})

	// Shut down cleanly on Ctrl-C even while blocked on terminal input.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Sugar().Info("main: shutting down...")
		flow.Close()
		store.Stop()
		cancel()
		if srv != nil {
			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			_ = srv.Shutdown(shutdownCtx)
		}
		os.Exit(0)
	}()

	runWizard(ctx, flow, store, utils.LocationOrUTC(timezone))

	if srv != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	logger.Sugar().Info("main: wizard finished")
}

// runWizard drives the flow from the terminal. The wizard is one possible
// shell; it only renders views and translates keys into flow events.
func runWizard(ctx context.Context, flow *booking.Flow, store *availability.Store, loc *time.Location) {
	in := bufio.NewScanner(os.Stdin)
	updates := make(chan booking.View, 16)
	flow.Subscribe(func(v booking.View) {
		select {
		case updates <- v:
		default:
		}
	})

	fmt.Println("Book your first consultation")

	for {
		view := flow.View()
		switch view.Step {
		case booking.StepSelectDate:
			if !promptDate(flow, store, in) {
				return
			}
		case booking.StepSelectTime:
			if !promptSlot(ctx, flow, store, in, loc) {
				return
			}
		case booking.StepFillForm:
			if !promptForm(ctx, flow, in, view) {
				return
			}
		case booking.StepConfirming:
			fmt.Println("Reserving your time...")
			waitLeaving(flow, updates, booking.StepConfirming)
		case booking.StepSuccess:
			showSuccess(view, loc)
			fmt.Print("Press Enter to finish. ")
			in.Scan()
			flow.Done()
			return
		}
	}
}

func promptDate(flow *booking.Flow, store *availability.Store, in *bufio.Scanner) bool {
	snap := store.Snapshot()
	if snap.Err != nil {
		fmt.Println("! Problem loading times:", snap.Err)
	}
	if snap.Window.IsEmpty() {
		fmt.Print("No times loaded yet. Enter r to retry or q to quit: ")
		if !in.Scan() {
			return false
		}
		if strings.TrimSpace(in.Text()) == "q" {
			return false
		}
		store.Refresh()
		time.Sleep(time.Second)
		return true
	}

	fmt.Println("\nChoose a day:")
	for i, date := range snap.Window.Dates {
		fmt.Printf("  %2d) %s (%d openings)\n", i+1, utils.FormatDayHeading(date), len(snap.Window.SlotsOn(date)))
	}
	fmt.Print("Day number (q to quit): ")
	if !in.Scan() {
		return false
	}
	text := strings.TrimSpace(in.Text())
	if text == "q" {
		return false
	}
	i, err := strconv.Atoi(text)
	if err != nil || i < 1 || i > len(snap.Window.Dates) {
		fmt.Println("Pick one of the listed numbers.")
		return true
	}
	flow.SelectDate(snap.Window.Dates[i-1])
	return true
}

func promptSlot(ctx context.Context, flow *booking.Flow, store *availability.Store, in *bufio.Scanner, loc *time.Location) bool {
	view := flow.View()
	if view.SlotExpired {
		fmt.Println("! That time was taken. These are still open:")
	}
	if view.ErrorMessage != "" {
		fmt.Println("!", view.ErrorMessage)
	}

	snap := store.Snapshot()
	now := time.Now()
	var open []models.Slot
	for _, slot := range snap.Window.SlotsOn(view.SelectedDate) {
		if utils.SlotBookable(slot.StartTime, now) {
			open = append(open, slot)
		}
	}
	if len(open) == 0 {
		fmt.Println("No remaining times on", utils.FormatDayHeading(view.SelectedDate))
		flow.Back()
		return true
	}

	fmt.Printf("\nTimes on %s:\n", utils.FormatDayHeading(view.SelectedDate))
	for i, slot := range open {
		fmt.Printf("  %2d) %s\n", i+1, utils.FormatSlotClock(slot.StartTime, loc))
	}
	fmt.Print("Time number (b back, d refresh day, q quit): ")
	if !in.Scan() {
		return false
	}
	text := strings.TrimSpace(in.Text())
	switch text {
	case "q":
		return false
	case "b":
		flow.Back()
		return true
	case "d":
		if err := store.RefreshDay(ctx, view.SelectedDate); err != nil {
			fmt.Println("Could not refresh this day:", err)
		}
		return true
	}
	i, err := strconv.Atoi(text)
	if err != nil || i < 1 || i > len(open) {
		fmt.Println("Pick one of the listed numbers.")
		return true
	}
	flow.SelectSlot(open[i-1])
	return true
}

func promptForm(ctx context.Context, flow *booking.Flow, in *bufio.Scanner, view booking.View) bool {
	if view.SlotExpired {
		fmt.Println("! This time slot is no longer available. Please select another time.")
		fmt.Print("Press Enter to pick another time. ")
		in.Scan()
		flow.PickAnotherTime()
		return true
	}
	if view.ErrorMessage != "" {
		fmt.Println("!", view.ErrorMessage)
	}
	for field, msg := range view.FieldErrors {
		fmt.Printf("! %s: %s\n", field, msg)
	}

	fmt.Println("\nYour details (Enter keeps the shown value):")
	details := view.Details
	var ok bool
	if details.FirstName, ok = promptField(in, "First name", details.FirstName); !ok {
		return false
	}
	if details.LastName, ok = promptField(in, "Last name", details.LastName); !ok {
		return false
	}
	if details.Email, ok = promptField(in, "Email", details.Email); !ok {
		return false
	}
	if details.Phone, ok = promptField(in, "Phone (optional)", details.Phone); !ok {
		return false
	}
	if details.Notes, ok = promptField(in, "Notes (optional)", details.Notes); !ok {
		return false
	}

	flow.Submit(ctx, details)
	return true
}

func promptField(in *bufio.Scanner, label, current string) (string, bool) {
	if current != "" {
		fmt.Printf("%s [%s]: ", label, current)
	} else {
		fmt.Printf("%s: ", label)
	}
	if !in.Scan() {
		return "", false
	}
	text := strings.TrimSpace(in.Text())
	if text == "" {
		return current, true
	}
	return text, true
}

// waitLeaving blocks until the flow has moved off the given step. The
// subscription channel is only a wakeup; the flow's own view is the truth,
// so stale queued updates cannot end the wait early.
func waitLeaving(flow *booking.Flow, updates <-chan booking.View, step booking.Step) {
	for flow.View().Step == step {
		select {
		case <-updates:
		case <-time.After(200 * time.Millisecond):
		}
	}
}

func showSuccess(view booking.View, loc *time.Location) {
	fmt.Println("\nYou're booked!")
	if view.Result != nil {
		fmt.Println("  Confirmation:", view.Result.SessionID)
		if view.Result.IsNewClient {
			fmt.Println("  We've created your patient record; check your email before your visit.")
		}
	}
	if view.SelectedSlot != nil {
		fmt.Printf("  %s at %s\n",
			utils.FormatDayHeading(utils.DateKeyUTC(view.SelectedSlot.StartTime)),
			utils.FormatSlotClock(view.SelectedSlot.StartTime, loc))
	}
}
