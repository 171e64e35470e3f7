package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newHistoryCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "history [rule-id]",
		Short: "List the recorded versions of a rule",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			versions, err := o.client.RuleHistory(cmd.Context(), o.tenant, args[0])
			if err != nil {
				return err
			}
			return o.printer(cmd.OutOrStdout()).print(versions)
		},
	}
}

func newVersionCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "version [rule-id] [version]",
		Short: "Show one version of a rule",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			rule, err := o.client.GetRuleVersion(cmd.Context(), o.tenant, args[0], version)
			if err != nil {
				return err
			}
			return o.printer(cmd.OutOrStdout()).print(rule)
		},
	}
}

func newRollbackCmd(o *options) *cobra.Command {
	var reason string

	cmd := &cobra.Command{
		Use:   "rollback [rule-id] [version]",
		Short: "Restore the content of an earlier version as a new version",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			version, err := parseVersion(args[1])
			if err != nil {
				return err
			}
			rule, err := o.client.RollbackRule(cmd.Context(), o.tenant, args[0], version, reason)
			if err != nil {
				return err
			}
			return o.printer(cmd.OutOrStdout()).print(rule)
		},
	}

	cmd.Flags().StringVar(&reason, "reason", "", "Why the rule is rolled back")
	return cmd
}

func parseVersion(s string) (int, error) {
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid version %q", s)
	}
	return v, nil
}
