package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/TabarBaptiste/masseuse/internal/report"
	"github.com/TabarBaptiste/masseuse/internal/usecase/conflict"
)

func auditConflictsCmd() *cobra.Command {
	var from, to, out string
	var upload bool

	cmd := &cobra.Command{
		Use:   "audit-conflicts",
		Short: "Scan bookings and blocked periods for scheduling conflicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			r, err := conflict.NewAuditConflicts(a.repo, nil, a.log).Execute(ctx, conflict.Range{From: from, To: to})
			if err != nil {
				return err
			}

			s := conflict.Summarize(r)
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%d conflict(s)\n", s.Total)
			for _, sev := range conflict.Severities {
				fmt.Fprintf(w, "  %-7s %d\n", sev, s.BySeverity[sev])
			}

			if out == "" && !upload {
				return nil
			}

			var buf bytes.Buffer
			if err := report.WriteConflicts(&buf, r); err != nil {
				return err
			}
			name := report.FileName(r)

			if out != "" {
				path := out
				if info, err := os.Stat(out); err == nil && info.IsDir() {
					path = filepath.Join(out, name)
				}
				if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
					return fmt.Errorf("write report: %w", err)
				}
				fmt.Fprintf(w, "written to %s\n", path)
			}

			if upload {
				store, err := report.NewS3Store(a.cfg.S3)
				if err != nil {
					return err
				}
				key, err := store.Upload(ctx, name, report.ContentTypeXLSX, buf.Bytes())
				if err != nil {
					return err
				}
				a.log.Info("conflict report uploaded", zap.String("key", key))
				fmt.Fprintf(w, "uploaded to s3://%s/%s\n", a.cfg.S3.Bucket, key)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "First date to scan (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Last date to scan (YYYY-MM-DD)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "Write the XLSX report to this file or directory")
	cmd.Flags().BoolVar(&upload, "upload", false, "Upload the XLSX report to the configured S3 bucket")

	return cmd
}
