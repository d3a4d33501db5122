package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Napageneral/chronicle-imessage/internal/config"
	"github.com/Napageneral/chronicle-imessage/internal/pipeline"
	"github.com/Napageneral/chronicle-imessage/internal/transform"
)

type extractFlags struct {
	configPath      string
	dbPath          string
	addressBookDir  string
	since           string
	until           string
	limit           int
	attachments     bool
	onlyAttachments bool
	lenient         bool
	workers         int
	output          string
	verbose         bool

	myPhone    string
	myName     string
	icloudID   string
	icloudDSID string
	icloudName string
}

func newExtractCmd() *cobra.Command {
	var flags extractFlags

	cmd := &cobra.Command{
		Use:   "extract",
		Short: "Extract messages and emit normalized events as NDJSON",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtract(cmd, &flags)
		},
	}

	cmd.Flags().StringVar(&flags.configPath, "config", config.DefaultPath(), "config file path")
	cmd.Flags().StringVar(&flags.dbPath, "db", "", "chat.db path (default: the per-user Messages database)")
	cmd.Flags().StringVar(&flags.addressBookDir, "address-book-dir", "", "address book search directory")
	cmd.Flags().StringVar(&flags.since, "since", "", "only messages after this time (RFC3339 or Unix seconds)")
	cmd.Flags().StringVar(&flags.until, "until", "", "only messages before this time (RFC3339 or Unix seconds)")
	cmd.Flags().IntVar(&flags.limit, "limit", 0, "max messages, applied after newest-first ordering")
	cmd.Flags().BoolVar(&flags.attachments, "attachments", false, "load and encode attachments")
	cmd.Flags().BoolVar(&flags.onlyAttachments, "only-attachments", false, "restrict to messages flagged as having attachments")
	cmd.Flags().BoolVar(&flags.lenient, "lenient", false, "skip messages with unresolvable senders instead of failing")
	cmd.Flags().IntVar(&flags.workers, "workers", 1, "transform workers (output order unspecified when >1)")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "write NDJSON to this file instead of stdout")
	cmd.Flags().BoolVarP(&flags.verbose, "verbose", "v", false, "debug logging")

	cmd.Flags().StringVar(&flags.myPhone, "my-phone", "", "override: operator phone number")
	cmd.Flags().StringVar(&flags.myName, "my-name", "", "override: operator display name")
	cmd.Flags().StringVar(&flags.icloudID, "icloud-id", "", "override: operator iCloud account id")
	cmd.Flags().StringVar(&flags.icloudDSID, "icloud-dsid", "", "override: operator iCloud account DSID")
	cmd.Flags().StringVar(&flags.icloudName, "icloud-name", "", "override: operator iCloud display name")

	return cmd
}

func runExtract(cmd *cobra.Command, flags *extractFlags) error {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	if flags.verbose {
		log.SetLevel(logrus.DebugLevel)
	}

	cfg, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}

	opts, err := buildOptions(flags, cfg)
	if err != nil {
		return err
	}

	out := io.Writer(os.Stdout)
	if flags.output != "" {
		f, err := os.Create(flags.output)
		if err != nil {
			return fmt.Errorf("failed to create output file: %w", err)
		}
		defer f.Close()
		out = f
	}
	encoder := json.NewEncoder(out)

	p := pipeline.New(opts, log)
	return p.Run(cmd.Context(), func(event *transform.Event) error {
		return encoder.Encode(event)
	})
}

// buildOptions merges flag values over config-file defaults.
func buildOptions(flags *extractFlags, cfg *config.File) (pipeline.Options, error) {
	opts := pipeline.Options{
		DBPath:            firstNonEmpty(flags.dbPath, cfg.Extract.DBPath),
		AddressBookDir:    firstNonEmpty(flags.addressBookDir, cfg.Extract.AddressBookDir),
		Limit:             flags.limit,
		LoadAttachments:   flags.attachments || cfg.Extract.LoadAttachments,
		OnlyAttachments:   flags.onlyAttachments,
		Lenient:           flags.lenient || cfg.Extract.Lenient,
		Workers:           flags.workers,
		MyPhoneNumber:     firstNonEmpty(flags.myPhone, cfg.Me.PhoneNumber),
		MyName:            firstNonEmpty(flags.myName, cfg.Me.Name),
		ICloudAccountID:   firstNonEmpty(flags.icloudID, cfg.Me.ICloudAccountID),
		ICloudAccountDSID: firstNonEmpty(flags.icloudDSID, cfg.Me.ICloudAccountDSID),
		ICloudDisplayName: firstNonEmpty(flags.icloudName, cfg.Me.ICloudDisplayName),
	}
	if opts.Workers == 1 && cfg.Extract.Workers > 1 {
		opts.Workers = cfg.Extract.Workers
	}

	var err error
	if opts.SinceUnix, err = parseTimeFlag(flags.since); err != nil {
		return pipeline.Options{}, err
	}
	if opts.UntilUnix, err = parseTimeFlag(flags.until); err != nil {
		return pipeline.Options{}, err
	}
	return opts, nil
}

// parseTimeFlag accepts either Unix seconds or an RFC3339 timestamp.
func parseTimeFlag(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return 0, fmt.Errorf("invalid time %q (want RFC3339 or Unix seconds)", s)
	}
	return t.Unix(), nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
