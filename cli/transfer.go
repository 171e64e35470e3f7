package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/upb/tenant-rules-admin/models"
)

func newImportCmd(o *options) *cobra.Command {
	var (
		file string
		req  models.ImportRequest
	)

	cmd := &cobra.Command{
		Use:   "import -f rules.yaml",
		Short: "Import a batch of rules",
		Long: `Import sends every rule in the file as one batch. Rules that fail locally
or on the server are reported per item; the command succeeds as long as the
batch was accepted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, local, err := loadBatch(file, cmd.InOrStdin(), req.SkipValidation)
			if err != nil {
				return err
			}

			res := &models.ImportResult{}
			if len(rules) > 0 {
				req.Rules = rules
				res, err = o.client.ImportRules(cmd.Context(), o.tenant, req)
				if err != nil {
					return err
				}
			}
			res.Failed += len(local)
			res.Errors = append(local, res.Errors...)
			return o.printer(cmd.OutOrStdout()).print(res)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Rules file (JSON or YAML, - for stdin)")
	cmd.Flags().BoolVar(&req.OverwriteExisting, "overwrite", false, "Replace rules that already exist by name")
	cmd.Flags().BoolVar(&req.SkipValidation, "skip-validation", false, "Skip schema and server-side validation")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newExportCmd(o *options) *cobra.Command {
	var (
		format  string
		outFile string
		opts    models.ExportOptions
	)

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export rules as JSON or CSV",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.Format = models.ExportFormat(format)
			res, err := o.client.ExportRules(cmd.Context(), o.tenant, opts)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if outFile != "" {
				f, err := os.Create(outFile)
				if err != nil {
					return fmt.Errorf("failed to create %s: %w", outFile, err)
				}
				defer f.Close()
				w = f
			}

			if res.Format == models.ExportFormatCSV {
				_, err = w.Write(res.Raw)
				return err
			}
			return o.printer(w).print(res.Rules)
		},
	}

	cmd.Flags().StringVar(&format, "format", "json", "Export format (json, csv)")
	cmd.Flags().StringVarP(&outFile, "out", "O", "", "Write to this file instead of stdout")
	cmd.Flags().StringSliceVar(&opts.RuleIDs, "rule", nil, "Only export these rule IDs")
	cmd.Flags().BoolVar(&opts.IncludeDisabled, "include-disabled", false, "Include disabled rules")
	return cmd
}
