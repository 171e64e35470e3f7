package cli

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"
	"github.com/upb/tenant-rules-admin/client"
	"github.com/upb/tenant-rules-admin/models"
	"github.com/upb/tenant-rules-admin/services"
)

func newListCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the tenant's rules",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := o.client.ListRules(cmd.Context(), o.tenant)
			if err != nil {
				return err
			}
			return o.printer(cmd.OutOrStdout()).print(rules)
		},
	}
}

func newGetCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "get [rule-id]",
		Short: "Show one rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := o.client.GetRule(cmd.Context(), o.tenant, args[0])
			if err != nil {
				return err
			}
			return o.printer(cmd.OutOrStdout()).print(rule)
		},
	}
}

func newCreateCmd(o *options) *cobra.Command {
	var (
		file       string
		skipSchema bool
	)

	cmd := &cobra.Command{
		Use:   "create -f rule.yaml",
		Short: "Create a rule from a JSON or YAML file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loadRules(file, cmd.InOrStdin(), skipSchema)
			if err != nil {
				return err
			}
			if len(rules) != 1 {
				return fmt.Errorf("%s holds %d rules; use import for batches", file, len(rules))
			}

			created, err := o.client.CreateRule(cmd.Context(), o.tenant, rules[0])
			if err != nil {
				return err
			}
			return o.printer(cmd.OutOrStdout()).print(created)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Rule file (JSON or YAML, - for stdin)")
	cmd.Flags().BoolVar(&skipSchema, "skip-schema", false, "Do not check the file against the rule schema")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newUpdateCmd(o *options) *cobra.Command {
	var (
		file        string
		name        string
		priority    int
		description string
		ifMatch     int
		clear       []string
	)

	cmd := &cobra.Command{
		Use:   "update [rule-id]",
		Short: "Update a rule from a patch file or flags",
		Long: `Update applies a partial change. Fields come from a patch file and
are overridden by --name, --priority and --description when given.
--clear removes optional fields (parameters, description, tags,
effective_start, effective_end). With --if-match the update only succeeds if the stored version matches.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var patch models.RulePatch
			if file != "" {
				p, err := loadPatch(file, cmd.InOrStdin())
				if err != nil {
					return err
				}
				patch = p
			}

			flags := cmd.Flags()
			if flags.Changed("name") {
				patch.Name = &name
			}
			if flags.Changed("priority") {
				patch.Priority = &priority
			}
			if flags.Changed("description") {
				patch.Description = &description
			}
			for _, f := range clear {
				if !slices.Contains(models.ClearableFields, f) {
					return services.NewValidationError(fmt.Sprintf("%s cannot be cleared", f), nil)
				}
				if !patch.Clears(f) {
					patch.Clear = append(patch.Clear, f)
				}
			}
			if patch.IsEmpty() {
				return services.NewValidationError("nothing to update", nil)
			}

			var opts []client.UpdateOption
			if ifMatch > 0 {
				opts = append(opts, client.WithExpectedVersion(ifMatch))
			}

			updated, err := o.client.UpdateRule(cmd.Context(), o.tenant, args[0], patch, opts...)
			if err != nil {
				return err
			}
			return o.printer(cmd.OutOrStdout()).print(updated)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Patch file (JSON or YAML, - for stdin)")
	cmd.Flags().StringVar(&name, "name", "", "New rule name")
	cmd.Flags().IntVar(&priority, "priority", 0, "New priority (lower runs first)")
	cmd.Flags().StringVar(&description, "description", "", "New description")
	cmd.Flags().IntVar(&ifMatch, "if-match", 0, "Only update when the stored version equals this")
	cmd.Flags().StringSliceVar(&clear, "clear", nil, "Optional fields to clear")
	return cmd
}

func newDeleteCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [rule-id]",
		Short: "Delete a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := o.client.DeleteRule(cmd.Context(), o.tenant, args[0]); err != nil {
				return err
			}
			o.printer(cmd.OutOrStdout()).message("Rule %s deleted", args[0])
			return nil
		},
	}
}

func newStatusCmd(o *options, use string, enabled bool) *cobra.Command {
	short := "Disable a rule"
	if enabled {
		short = "Enable a rule"
	}
	return &cobra.Command{
		Use:   use + " [rule-id]",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rule, err := o.client.SetRuleEnabled(cmd.Context(), o.tenant, args[0], enabled)
			if err != nil {
				return err
			}
			return o.printer(cmd.OutOrStdout()).print(rule)
		},
	}
}

func newValidateCmd(o *options) *cobra.Command {
	var file string

	cmd := &cobra.Command{
		Use:   "validate -f rule.yaml",
		Short: "Validate a rule on the server without saving it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			rules, err := loadRules(file, cmd.InOrStdin(), true)
			if err != nil {
				return err
			}
			if len(rules) != 1 {
				return fmt.Errorf("%s holds %d rules; validate one at a time", file, len(rules))
			}

			res, err := o.client.ValidateRule(cmd.Context(), o.tenant, rules[0])
			if err != nil {
				return err
			}
			if err := o.printer(cmd.OutOrStdout()).print(res); err != nil {
				return err
			}
			if !res.IsValid {
				return services.NewValidationError("rule is invalid", nil)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "Rule file (JSON or YAML, - for stdin)")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func newTestCmd(o *options) *cobra.Command {
	var req models.RuleTestRequest

	cmd := &cobra.Command{
		Use:   "test --prompt TEXT",
		Short: "Dry-run rules against a sample prompt and response",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := o.client.TestRules(cmd.Context(), o.tenant, req)
			if err != nil {
				return err
			}
			return o.printer(cmd.OutOrStdout()).print(res)
		},
	}

	cmd.Flags().StringVar(&req.SamplePrompt, "prompt", "", "Sample prompt")
	cmd.Flags().StringVar(&req.SampleResponse, "response", "", "Sample model response")
	cmd.Flags().StringSliceVar(&req.RuleIDs, "rule", nil, "Rule IDs to evaluate (default: every enabled rule)")
	_ = cmd.MarkFlagRequired("prompt")
	return cmd
}
