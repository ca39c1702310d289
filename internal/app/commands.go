package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"ipwarden/internal/criteria"
	"ipwarden/internal/domain"
	"ipwarden/internal/geolite"
	"ipwarden/internal/logsource"
	"ipwarden/internal/report"
	"ipwarden/internal/store"
	"ipwarden/internal/whitelist"
)

func (s *session) ingestCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest",
		Short: "Fetch new events from the log API and append them to both files",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			secret, err := s.cfg.APISecret()
			if err != nil {
				return err
			}
			client, err := s.httpClient()
			if err != nil {
				return err
			}

			source := &logsource.Client{
				HTTP:    client,
				URL:     s.cfg.LogAPI.URL,
				APIKey:  secret,
				Limiter: limiter(s.cfg.LogAPI.RequestsPerSecond),
			}
			candidates, err := source.Fetch(cmd.Context())
			if err != nil {
				return err
			}

			return s.ingest(cmd.Context(), candidates)
		},
	}
}

func (s *session) ingest(ctx context.Context, candidates []domain.AddressRecord) error {
	countries := s.openCountries()
	defer countries.Close()

	return s.withStoreLock(ctx, func(ctx context.Context) error {
		stats, err := s.manager(countries).Ingest(ctx, candidates)
		if err != nil {
			return err
		}
		printIngest(s.out, stats)
		return nil
	})
}

func (s *session) cleanupCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Drop non-public and invalid addresses, dedupe and sort the list",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return s.withStoreLock(cmd.Context(), func(ctx context.Context) error {
				stats, err := s.manager(nil).Cleanup(ctx)
				if err != nil {
					return err
				}
				printCleanup(s.out, s.cfg.Lists.ListFile, s.cfg.Lists.TableFile, stats)
				return nil
			})
		},
	}
}

func (s *session) removeCriteriaCommand() *cobra.Command {
	var field, needle string

	cmd := &cobra.Command{
		Use:   "remove-criteria",
		Short: "Remove every address that has a record whose field contains the needle",
		Example: `  ipwarden remove-criteria --field userAgent --needle Googlebot
  ipwarden remove-criteria --field ip --needle 203.0.113.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if _, err := criteria.ParseField(field); err != nil {
				return err
			}
			if needle == "" {
				return criteria.ErrEmptyNeedle
			}

			return s.withStoreLock(cmd.Context(), func(ctx context.Context) error {
				stats, err := s.manager(nil).RemoveByCriteria(ctx, field, needle)
				if err != nil {
					return err
				}
				printRemoval(s.out, s.cfg.Lists.ListFile, s.cfg.Lists.TableFile, stats)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&field, "field", "", "Record field: ip, endpoint, userAgent, action, country, eventId")
	cmd.Flags().StringVar(&needle, "needle", "", "Case-sensitive substring to look for")
	_ = cmd.MarkFlagRequired("field")
	_ = cmd.MarkFlagRequired("needle")
	return cmd
}

func (s *session) removeWhitelistedCommand() *cobra.Command {
	var sources, files []string

	cmd := &cobra.Command{
		Use:   "remove-whitelisted",
		Short: "Remove addresses covered by the whitelist sources",
		Long: `Fetches every whitelist source (plain lists or JSON range documents),
merges them with any local files and removes each covered address from both
files. A source that fails to load aborts the run before either file is read.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("source") {
				sources = s.cfg.Whitelist.Sources
			}
			files = append(append([]string(nil), s.cfg.Whitelist.Files...), files...)

			entries, err := s.loadWhitelist(cmd.Context(), sources, files)
			if err != nil {
				return err
			}

			return s.withStoreLock(cmd.Context(), func(ctx context.Context) error {
				stats, err := s.manager(nil).RemoveWhitelisted(ctx, entries)
				if err != nil {
					return err
				}
				printRemoval(s.out, s.cfg.Lists.ListFile, s.cfg.Lists.TableFile, stats)
				return nil
			})
		},
	}

	cmd.Flags().StringArrayVar(&sources, "source", nil, "Whitelist URL; replaces the configured sources, repeatable")
	cmd.Flags().StringArrayVar(&files, "file", nil, "Local whitelist file, repeatable")
	return cmd
}

func (s *session) loadWhitelist(ctx context.Context, sources, files []string) ([]string, error) {
	var remote []string
	if len(sources) > 0 {
		client, err := s.httpClient()
		if err != nil {
			return nil, err
		}
		remote, err = whitelist.NewFetcher(client, s.cfg.Fetch.RequestsPerSecond).FetchAll(ctx, sources)
		if err != nil {
			return nil, err
		}
	}

	local, err := whitelist.ReadFiles(files)
	if err != nil {
		return nil, err
	}
	return whitelist.Merge(remote, local), nil
}

func (s *session) reportCommand() *cobra.Command {
	var (
		input     string
		outputDir string
		category  string
		ingest    bool
	)

	cmd := &cobra.Command{
		Use:   "report",
		Short: "Build an abuse report and address list from a DDoS request log",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !cmd.Flags().Changed("output-dir") {
				outputDir = s.cfg.Report.OutputDir
			}
			if !cmd.Flags().Changed("category") {
				category = s.cfg.Report.Category
			}

			f, err := os.Open(input)
			if err != nil {
				return fmt.Errorf("open log: %w", err)
			}
			defer f.Close()

			res, err := report.Parse(f)
			if err != nil {
				return err
			}

			files, err := report.Write(store.OSFileSystem{}, outputDir, res, report.Category(category), time.Now())
			if err != nil {
				return err
			}
			printReport(s.out, res, files)

			if !ingest {
				return nil
			}
			return s.ingest(cmd.Context(), report.Candidates(res.Entries()))
		},
	}

	cmd.Flags().StringVar(&input, "input", "ddos.txt", "DDoS request log to parse")
	cmd.Flags().StringVar(&outputDir, "output-dir", "", "Directory for the dated report files")
	cmd.Flags().StringVar(&category, "category", "", "Report flavour: abuseipdb (category 18) or anything else (category 3)")
	cmd.Flags().BoolVar(&ingest, "ingest", false, "Also append the reported addresses to the list and table")
	return cmd
}

func (s *session) geoliteUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "geolite-update",
		Short: "Download the GeoLite2 country database used to fill missing countries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dest := s.cfg.GeoLite.CountryDB
			if dest == "" {
				return errors.New("geolite.country_db is not configured")
			}
			client, err := s.httpClient()
			if err != nil {
				return err
			}

			updater := &geolite.Updater{Client: client, LicenseKey: s.cfg.GeoLiteLicenseKey()}
			if err := updater.Update(cmd.Context(), dest); err != nil {
				return err
			}

			resolver, err := geolite.Open(dest)
			if err != nil {
				log.Warn("Downloaded database does not open", "path", dest, "error", err)
				return err
			}
			_ = resolver.Close()
			fmt.Fprintf(s.out, "GeoLite country database written to %s\n", dest)
			return nil
		},
	}
}
