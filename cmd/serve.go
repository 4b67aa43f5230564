package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dealwatch/dealwatch/internal/model"
	"github.com/dealwatch/dealwatch/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start webhook server for tracking requests",
	Long:  "Runs the check loop and a small HTTP endpoint that accepts new product/alert registrations from the surrounding application.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initCore(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if !cmd.Flags().Changed("port") && cfg.Server.Port > 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           newServeMux(env),
			ReadHeaderTimeout: 5 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("webhook server listening", zap.Int("port", port))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
		}()

		go func() {
			if err := env.Scheduler.Run(ctx); err != nil {
				zap.L().Error("scheduler exited", zap.Error(err))
			}
		}()

		select {
		case <-ctx.Done():
		case err := <-errCh:
			return eris.Wrap(err, "webhook server")
		}

		shutdownCtx, cancel := signalFreeContext(5 * time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return eris.Wrap(err, "server shutdown")
		}
		return nil
	},
}

// newServeMux builds the webhook endpoint routes.
func newServeMux(env *coreEnv) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"}) //nolint:errcheck
	})

	mux.HandleFunc("POST /webhook/track", func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			URL         string `json:"url"`
			TargetPrice string `json:"target_price"`
			UserID      string `json:"user_id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, `{"error":"invalid request body"}`, http.StatusBadRequest)
			return
		}
		if req.URL == "" || req.TargetPrice == "" {
			http.Error(w, `{"error":"url and target_price are required"}`, http.StatusBadRequest)
			return
		}

		profile, err := env.Registry.Match(req.URL)
		if err != nil {
			http.Error(w, `{"error":"unsupported site"}`, http.StatusUnprocessableEntity)
			return
		}

		target, err := model.ParsePrice(req.TargetPrice, profile.Currency, false)
		if err != nil {
			http.Error(w, `{"error":"invalid target_price"}`, http.StatusBadRequest)
			return
		}

		product, err := env.Store.GetProductByURL(r.Context(), req.URL)
		if errors.Is(err, store.ErrNotFound) {
			product, err = env.Store.CreateProduct(r.Context(), req.URL)
		}
		if err != nil {
			zap.L().Error("webhook track failed", zap.Error(err))
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}

		alert, err := env.Store.CreateAlert(r.Context(), product.ID, req.UserID, target)
		if err != nil {
			zap.L().Error("webhook alert create failed", zap.Error(err))
			http.Error(w, `{"error":"internal"}`, http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(map[string]string{ //nolint:errcheck
			"product_id": product.ID,
			"alert_id":   alert.ID,
		})
	})

	return mux
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8080, "listen port")
	rootCmd.AddCommand(serveCmd)
}
