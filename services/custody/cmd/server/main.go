package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Anvesh1211/indic-justice-league/pkg/anchor"
	"github.com/Anvesh1211/indic-justice-league/pkg/anchor/rfc3161"
	"github.com/Anvesh1211/indic-justice-league/pkg/db"
	"github.com/Anvesh1211/indic-justice-league/pkg/detect"
	"github.com/Anvesh1211/indic-justice-league/pkg/facts"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/anchors"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/api"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/ledger"
	"github.com/Anvesh1211/indic-justice-league/services/custody/internal/store"
)

// unavailableGateway stands in when no TSA is configured. Every submission
// fails, so receipts land in ANCHOR_PENDING and the chain stays local.
type unavailableGateway struct{}

func (unavailableGateway) Anchor(ctx context.Context, evidenceID, ledgerDigest string) (anchor.Result, error) {
	return anchor.Result{}, errors.New("no anchor gateway configured")
}

func main() {
	port := os.Getenv("SERVICE_PORT")
	if port == "" {
		port = "8086"
	}

	pool := db.MustConnect()
	defer pool.Close()
	st := store.NewPostgres(pool)
	led := ledger.New(st)

	table, err := facts.OffenceTableFromEnv()
	if err != nil {
		log.Fatalf("offence table: %v", err)
	}
	det := detect.New([]facts.Extractor{
		facts.TemporalExtractor{},
		facts.SpatialExtractor{},
		facts.NumericExtractor{},
		facts.NewEntityExtractor(table),
	})

	var gateway anchor.Gateway
	if tsaURL := os.Getenv("ANCHOR_TSA_URL"); tsaURL != "" {
		gateway = rfc3161.NewGateway(tsaURL, os.Getenv("ANCHOR_TSA_POLICY_OID"), nil)
	} else {
		log.Printf("ANCHOR_TSA_URL not set, anchoring disabled")
		gateway = unavailableGateway{}
	}
	anc := anchors.New(st, led, anchor.NewSubmitter(gateway), log.Default())

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           api.NewHandler(st, led, det, anc).Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Printf("custody service listening on :%s", port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("serve: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("shutdown: %v", err)
	}
	anc.Wait()
}
