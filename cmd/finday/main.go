package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/SrirammananS/finday/internal/cache"
	"github.com/SrirammananS/finday/internal/domain"
	"github.com/SrirammananS/finday/internal/ledger"
	"github.com/SrirammananS/finday/internal/logger"
	"github.com/SrirammananS/finday/internal/remote"
)

func main() {
	// Load .env if present; real env vars win.
	_ = godotenv.Load()

	log := logger.New()

	action := flag.String("action", "refresh", "One of: refresh, force-refresh, export, import, bills, summary")
	cachePath := flag.String("cache", "finday.db", "Path to the local cache database")
	spreadsheetID := flag.String("spreadsheet-id", os.Getenv("FINDAY_SPREADSHEET_ID"), "Remote spreadsheet ID (or FINDAY_SPREADSHEET_ID)")
	accessToken := flag.String("access-token", os.Getenv("FINDAY_ACCESS_TOKEN"), "OAuth access token (or FINDAY_ACCESS_TOKEN)")
	file := flag.String("file", "", "Snapshot file for export/import")
	year := flag.Int("year", time.Now().Year(), "Year for -action summary")
	month := flag.Int("month", int(time.Now().Month()), "Month for -action summary")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()
	ctx = logger.WithContext(ctx, log)

	store, err := cache.Open(*cachePath, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open local cache")
	}
	defer store.Close()

	var remoteStore ledger.RemoteStore
	if *spreadsheetID != "" {
		if *accessToken == "" {
			log.Fatal().Msg("Error: --access-token is required when a spreadsheet is configured")
		}
		creds := remote.NewStaticCredentials(*accessToken)
		client, err := remote.NewSheetsClient(ctx, creds, *spreadsheetID)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to build sheets client")
		}
		remoteStore = remote.NewAdapter(client, creds, log)
	}

	opts := ledger.Options{
		BackupPath: os.Getenv("FINDAY_BACKUP_PATH"),
		BackupKey:  []byte(os.Getenv("FINDAY_BACKUP_KEY")),
	}
	orch := ledger.New(store, remoteStore, log, opts)
	defer orch.Close()

	if err := orch.Init(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize ledger")
	}

	switch *action {
	case "refresh":
		if remoteStore == nil {
			log.Fatal().Msg("Error: refresh needs a configured spreadsheet")
		}
		if err := orch.Refresh(ctx); err != nil {
			log.Fatal().Err(err).Str("kind", string(domain.Classify(err))).Msg("Refresh failed")
		}
		fmt.Println("Refresh completed successfully.")

	case "force-refresh":
		if err := orch.ForceRefresh(ctx); err != nil {
			log.Fatal().Err(err).Str("kind", string(domain.Classify(err))).Msg("Forced refresh failed")
		}
		fmt.Println("Forced refresh completed successfully.")

	case "export":
		out := os.Stdout
		if *file != "" {
			f, err := os.Create(*file)
			if err != nil {
				log.Fatal().Err(err).Msg("Failed to create export file")
			}
			defer f.Close()
			out = f
		}
		if err := orch.Export(out); err != nil {
			log.Fatal().Err(err).Msg("Export failed")
		}

	case "import":
		if *file == "" {
			log.Fatal().Msg("Error: --file is required for import")
		}
		f, err := os.Open(*file)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to open snapshot file")
		}
		defer f.Close()
		if err := orch.Import(ctx, f); err != nil {
			log.Fatal().Err(err).Msg("Import failed")
		}
		fmt.Println("Import completed successfully.")

	case "bills":
		if err := orch.RunBillPass(ctx); err != nil {
			log.Fatal().Err(err).Msg("Bill pass failed")
		}
		for _, p := range orch.BillPayments() {
			fmt.Printf("%-20s %s  %10s  due %s  [%s]\n",
				p.Name, p.Cycle, p.Amount.StringFixed(2), p.DueDate.Format("2006-01-02"), p.Status)
		}

	case "summary":
		s := orch.Summary(*year, *month)
		fmt.Printf("%04d-%02d  income %s  expense %s  net %s  (%d transactions)\n",
			s.Year, s.Month, s.TotalIncome.StringFixed(2), s.TotalExpense.StringFixed(2),
			s.Net.StringFixed(2), s.Count)

	default:
		log.Fatal().Str("action", *action).Msg("Unknown action")
	}
}
