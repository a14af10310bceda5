package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/tally/internal/aggregate"
	"github.com/roach88/tally/internal/ir"
)

// ProjectView is the output of the project command.
type ProjectView struct {
	ir.Project
	Milestones    []ir.Milestone    `json:"milestones"`
	Donors        []ir.Donor        `json:"donors,omitempty"`
	Contributions []ir.Contribution `json:"contributions,omitempty"`
}

// DonorView is the output of the donor command.
type DonorView struct {
	ir.Donor
	Contributions []ir.Contribution `json:"contributions"`
}

// NewProjectCommand creates the project command.
func NewProjectCommand(rootOpts *RootOptions) *cobra.Command {
	var withDonors, withContributions bool

	cmd := &cobra.Command{
		Use:   "project <address>",
		Short: "Show a project's derived state",
		Long: `Show the derived state of a project contract: terms, raised amount,
lifecycle state and milestones.

Exit codes:
  0 - Project found
  1 - Project has received no donation yet
  2 - Command error (invalid address, database error)

Examples:
  tally project 0x1111111111111111111111111111111111111111 --donors
  tally project 0x1111111111111111111111111111111111111111 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			p, err := st.Project(ctx, addr)
			if aggregate.IsNotFound(err) {
				return notFound(rootOpts, cmd, "project", addr)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load project", err)
			}

			view := ProjectView{Project: p}
			if view.Milestones, err = st.Milestones(ctx, addr); err != nil {
				return WrapExitError(ExitCommandError, "failed to list milestones", err)
			}
			if withDonors {
				if view.Donors, err = st.ProjectDonors(ctx, addr); err != nil {
					return WrapExitError(ExitCommandError, "failed to list donors", err)
				}
			}
			if withContributions {
				if view.Contributions, err = st.ProjectContributions(ctx, addr); err != nil {
					return WrapExitError(ExitCommandError, "failed to list contributions", err)
				}
			}

			return newFormatter(rootOpts, cmd).Render(view, func(w io.Writer) {
				outputProjectText(w, view)
			})
		},
	}

	cmd.Flags().BoolVar(&withDonors, "donors", false, "include the project's donors")
	cmd.Flags().BoolVar(&withContributions, "contributions", false, "include the project's contributions")

	return cmd
}

// NewDonorCommand creates the donor command.
func NewDonorCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "donor <address>",
		Short:         "Show a donor's totals and contributions",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			ctx := cmd.Context()
			d, err := st.Donor(ctx, addr)
			if aggregate.IsNotFound(err) {
				return notFound(rootOpts, cmd, "donor", addr)
			}
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to load donor", err)
			}
			view := DonorView{Donor: d}
			if view.Contributions, err = st.DonorContributions(ctx, addr); err != nil {
				return WrapExitError(ExitCommandError, "failed to list contributions", err)
			}

			return newFormatter(rootOpts, cmd).Render(view, func(w io.Writer) {
				fmt.Fprintf(w, "Donor %s\n", view.Address)
				fmt.Fprintf(w, "  total donated: %s\n", view.TotalDonated)
				fmt.Fprintf(w, "  contributions: %d\n", view.ContributionsCount)
				for _, p := range view.Projects {
					fmt.Fprintf(w, "  project: %s\n", p)
				}
				outputContributions(w, view.Contributions)
			})
		},
	}

	return cmd
}

// NewMilestonesCommand creates the milestones command.
func NewMilestonesCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "milestones <project-address>",
		Short: "List a project's milestones",
		Long: `List a project's provisioned milestones and their payout status.

A project with no provisioned milestones yields an empty list, not an error.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := parseAddressArg(args[0])
			if err != nil {
				return err
			}
			st, err := openStore(rootOpts)
			if err != nil {
				return err
			}
			defer st.Close()

			milestones, err := st.Milestones(cmd.Context(), addr)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list milestones", err)
			}
			return newFormatter(rootOpts, cmd).Render(milestones, func(w io.Writer) {
				if len(milestones) == 0 {
					fmt.Fprintf(w, "No milestones for %s.\n", addr)
					return
				}
				outputMilestones(w, milestones)
			})
		},
	}

	return cmd
}

func parseAddressArg(s string) (ir.Address, error) {
	addr, err := ir.ParseAddress(s)
	if err != nil {
		return "", WrapExitError(ExitCommandError, "invalid address", err)
	}
	return addr, nil
}

func notFound(opts *RootOptions, cmd *cobra.Command, what string, addr ir.Address) error {
	msg := fmt.Sprintf("%s %s not found", what, addr)
	f := newFormatter(opts, cmd)
	if err := f.Error(ErrCodeNotFound, msg, nil); err != nil {
		return err
	}
	return NewExitError(ExitFailure, msg)
}

func outputProjectText(w io.Writer, v ProjectView) {
	fmt.Fprintf(w, "Project %s (%s)\n", v.Address, v.State)
	fmt.Fprintf(w, "  beneficiary: %s\n", v.Beneficiary)
	fmt.Fprintf(w, "  raised:      %s / %s\n", v.RaisedAmount, v.GoalAmount)
	fmt.Fprintf(w, "  deadline:    %s\n", v.Deadline.UTC().Format(time.RFC3339))
	outputMilestones(w, v.Milestones)
	for _, d := range v.Donors {
		fmt.Fprintf(w, "  donor %s: %s in %d contribution(s)\n", d.Address, d.TotalDonated, d.ContributionsCount)
	}
	outputContributions(w, v.Contributions)
}

func outputMilestones(w io.Writer, milestones []ir.Milestone) {
	for _, m := range milestones {
		status := "pending"
		if m.IsPaid {
			status = "paid"
		}
		fmt.Fprintf(w, "  milestone %d: %s %s (%s)\n", m.Index, m.Amount, status, m.Description)
	}
}

func outputContributions(w io.Writer, contributions []ir.Contribution) {
	for _, c := range contributions {
		fmt.Fprintf(w, "  %s %s -> %s: %s (%s)\n",
			c.Timestamp.UTC().Format(time.RFC3339), c.Donor, c.Project, c.Amount, c.EventKey)
	}
}
