package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/gyeh/npi-match/internal/candidates"
	"github.com/gyeh/npi-match/internal/mrf"
	"github.com/gyeh/npi-match/internal/output"
	"github.com/gyeh/npi-match/internal/progress"
	"github.com/gyeh/npi-match/internal/rank"
	"github.com/gyeh/npi-match/internal/worker"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "npi-match",
		Short: "Match candidate providers against insurance MRF files and rank by patient affinity",
	}

	rootCmd.AddCommand(newRankCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRankCmd() *cobra.Command {
	var (
		candidatesFile string
		mrfSources     []string
		patientGender  string
		patientZip     string
		taxonomyCode   string
		outputFile     string
		workers        int
		noProgress     bool
		maxDepth       int
		maxGroups      int
		maxCitations   int
		absentOutOfNet bool
	)

	cmd := &cobra.Command{
		Use:   "rank",
		Short: "Determine in-network status for candidate providers and rank them",
		RunE: func(cmd *cobra.Command, args []string) error {
			patientGender = strings.ToUpper(strings.TrimSpace(patientGender))
			if patientGender != "" && patientGender != "M" && patientGender != "F" {
				return fmt.Errorf("invalid patient gender %q (expected M or F)", patientGender)
			}

			// Load and validate the candidate set.
			records, err := candidates.LoadFile(candidatesFile)
			if err != nil {
				return fmt.Errorf("loading candidates: %w", err)
			}
			cands, err := candidates.NewSet(records)
			if err != nil {
				return fmt.Errorf("building candidate set: %w", err)
			}
			if taxonomyCode != "" {
				cands = cands.FilterByTaxonomy(taxonomyCode)
			}
			if cands.Len() == 0 {
				return fmt.Errorf("no candidates in %s", candidatesFile)
			}

			cfg := mrf.DefaultConfig()
			if maxDepth > 0 {
				cfg.MaxDepth = maxDepth
			}
			if maxGroups > 0 {
				cfg.MaxGroupEntries = maxGroups
			}
			if maxCitations > 0 {
				cfg.MaxPendingCitations = maxCitations
			}
			if absentOutOfNet {
				cfg.AbsentStatus = mrf.StatusOutOfNetwork
			}

			var mgr progress.Manager
			switch {
			case noProgress:
				mgr = &progress.NoopManager{}
			case stderrIsTerminal():
				mgr = progress.NewMPBManager()
			default:
				// Piped or CI output: throttled log lines instead of bars.
				mgr = progress.NewLogManager()
			}

			// Handle signals
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				<-sigCh
				fmt.Fprintln(os.Stderr, "\nInterrupted, cleaning up...")
				cancel()
			}()

			startTime := time.Now()

			pool := &worker.Pool{
				Workers:    workers,
				Candidates: cands,
				Config:     cfg,
				Progress:   mgr,
			}
			results := pool.Run(ctx, mrfSources)
			mgr.Wait()

			// Fail-closed: any scan error means no ranking is produced.
			table, err := worker.Merge(results, cfg)
			if err != nil {
				for _, r := range results {
					if r.Err != nil {
						fmt.Fprintf(os.Stderr, "Error scanning %s: %v\n", r.Source, r.Err)
					}
				}
				return fmt.Errorf("network determination failed")
			}

			engine := &rank.Engine{}
			ranked := engine.Rank(table, cands, rank.Patient{
				Gender: patientGender,
				Zip:    patientZip,
			})

			duration := time.Since(startTime)
			params := output.MatchParams{
				PatientGender:   patientGender,
				PatientZip:      patientZip,
				TaxonomyCode:    taxonomyCode,
				Candidates:      cands.Len(),
				ScannedSources:  mrfSources,
				InNetwork:       len(ranked),
				DurationSeconds: duration.Seconds(),
			}
			if err := output.WriteResults(outputFile, params, ranked); err != nil {
				return fmt.Errorf("writing output: %w", err)
			}

			fmt.Fprintf(os.Stderr, "\nMatch complete: %d sources scanned, %d of %d candidates in-network in %.1fs\n",
				len(mrfSources), len(ranked), cands.Len(), duration.Seconds())
			return nil
		},
	}

	cmd.Flags().StringVar(&candidatesFile, "candidates", "", "NDJSON file of candidate providers")
	cmd.Flags().StringArrayVar(&mrfSources, "mrf", nil, "MRF source: file path, http(s) URL, or s3:// URI (repeatable)")
	cmd.Flags().StringVar(&patientGender, "patient-gender", "", "Patient gender (M or F) for affinity scoring")
	cmd.Flags().StringVar(&patientZip, "patient-zip", "", "Patient 5-digit zip code")
	cmd.Flags().StringVar(&taxonomyCode, "taxonomy", "", "Narrow candidates to this NUCC taxonomy code")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "results.json", "Output file path (use '-' for stdout)")
	cmd.Flags().IntVar(&workers, "workers", 3, "Number of concurrent source scanners")
	cmd.Flags().BoolVar(&noProgress, "no-progress", false, "Disable progress bars")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "Maximum document nesting depth (default 32)")
	cmd.Flags().IntVar(&maxGroups, "max-group-entries", 0, "Reference-buffer cap for provider groups (default 100000)")
	cmd.Flags().IntVar(&maxCitations, "max-pending-citations", 0, "Reference-buffer cap for unresolved citations (default 100000)")
	cmd.Flags().BoolVar(&absentOutOfNet, "absent-out-of-network", false, "Report never-observed candidates as out_of_network instead of unknown")

	cmd.MarkFlagRequired("candidates")
	cmd.MarkFlagRequired("mrf")
	cmd.MarkFlagRequired("patient-zip")

	return cmd
}

func stderrIsTerminal() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return fi.Mode()&os.ModeCharDevice != 0
}
