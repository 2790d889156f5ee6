package bootstrap

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	httpSwagger "github.com/swaggo/http-swagger"
	"github.com/tom474/fleetbooking/api"
	"github.com/tom474/fleetbooking/config"
	"github.com/tom474/fleetbooking/internal/service/booking"
	"github.com/tom474/fleetbooking/internal/service/schedules"
	"github.com/tom474/fleetbooking/internal/service/trips"
)

// Run starts the HTTP server and blocks until the context is canceled or
// the server fails.
func Run(
	ctx context.Context,
	cfg *config.Config,
	bookingSvc booking.BookingUseCase,
	tripSvc trips.TripUseCase,
	scheduleSvc schedules.ScheduleUseCase,
) error {
	router := gin.Default()

	v1 := router.Group("/api/v1")
	api.NewBookingHandler(bookingSvc).Register(v1.Group("/bookings"))
	api.NewTripHandler(tripSvc, bookingSvc).Register(v1.Group("/trips"))
	api.NewScheduleHandler(scheduleSvc).Register(v1.Group("/schedules"))

	if cfg.HTTP.SwaggerDir != "" {
		router.StaticFile("/docs/swagger.json", cfg.HTTP.SwaggerDir+"/swagger.json")
		router.GET("/swagger/*any", gin.WrapH(httpSwagger.Handler(
			httpSwagger.URL("/docs/swagger.json"),
		)))
	}

	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown http server: %w", err)
		}
		return nil
	}
}
