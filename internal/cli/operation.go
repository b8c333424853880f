package cli

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fieldops/internal/integrations"
	"fieldops/internal/integrations/csvplan"
	"fieldops/internal/lifecycle"
	"fieldops/internal/model"
	"fieldops/internal/webhooks"
)

func operationCmd(d *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "op",
		Aliases: []string{"operation"},
		Short:   "Manage operations",
	}
	cmd.AddCommand(opCreateCmd(d), opStartCmd(d), opCompleteCmd(d), opCancelCmd(d), opDeleteCmd(d), opShowCmd(d), opListCmd(d), opImportCmd(d))
	return cmd
}

func opCreateCmd(d *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Plan a new operation",
		RunE: func(cmd *cobra.Command, args []string) error {
			f := cmd.Flags()
			draft := lifecycle.OperationDraft{
				StartHours:   floatFlag(cmd, "start-hours"),
				StartMileage: floatFlag(cmd, "start-mileage"),
			}
			draft.ID, _ = f.GetString("id")
			draft.VehicleID, _ = f.GetString("vehicle")
			draft.OperatorID, _ = f.GetString("operator")
			draft.FieldID, _ = f.GetString("field")
			draft.OperationType, _ = f.GetString("type")
			draft.Date, _ = f.GetString("date")
			draft.StartTime, _ = f.GetString("start")
			draft.EndTime, _ = f.GetString("end")
			draft.Notes, _ = f.GetString("notes")
			return d.run(func(ctx context.Context, s *session) error {
				op, err := s.engine.Create(ctx, draft)
				if err != nil {
					return err
				}
				s.pub.Emit(ctx, webhooks.EventOperationCreated, webhooks.OperationPayload(op))
				fmt.Fprintf(cmd.OutOrStdout(), "%s Planned %s: %s with %s on %s\n", okMark, op.ID, op.OperationType, op.VehicleID, op.Date)
				report, err := s.engine.Availability().CheckOperation(ctx, op)
				if err != nil {
					return err
				}
				if !report.Empty() {
					printWarnings(cmd.OutOrStdout(), []lifecycle.Warning{{Code: "double_booked", Message: (&lifecycle.ConflictError{Conflicts: report}).Error()}})
				}
				return nil
			})
		},
	}
	f := cmd.Flags()
	f.String("id", "", "operation ID (generated when empty)")
	f.String("vehicle", "", "vehicle ID")
	f.String("operator", "", "operator ID")
	f.String("field", "", "field ID")
	f.String("type", "", "operation type, e.g. plowing")
	f.String("date", "", "calendar date YYYY-MM-DD")
	f.String("start", "", "planned start HH:MM")
	f.String("end", "", "planned end HH:MM")
	f.String("notes", "", "free-form notes")
	f.Float64("start-hours", 0, "engine hours at start")
	f.Float64("start-mileage", 0, "odometer at start")
	_ = cmd.MarkFlagRequired("vehicle")
	_ = cmd.MarkFlagRequired("operator")
	_ = cmd.MarkFlagRequired("type")
	_ = cmd.MarkFlagRequired("date")
	return cmd
}

func opStartCmd(d *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start [id]",
		Short: "Start a planned operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := lifecycle.StartInput{StartHours: floatFlag(cmd, "hours"), StartMileage: floatFlag(cmd, "mileage")}
			in.StartTime, _ = cmd.Flags().GetString("time")
			return d.run(func(ctx context.Context, s *session) error {
				op, err := s.engine.Start(ctx, args[0], in, s.now)
				if err != nil {
					return err
				}
				s.pub.Emit(ctx, webhooks.EventOperationStarted, webhooks.OperationPayload(op))
				fmt.Fprintf(cmd.OutOrStdout(), "%s Started %s\n", okMark, op.ID)
				return nil
			})
		},
	}
	cmd.Flags().String("time", "", "actual start HH:MM")
	cmd.Flags().Float64("hours", 0, "engine hours at start")
	cmd.Flags().Float64("mileage", 0, "odometer at start")
	return cmd
}

func opCompleteCmd(d *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "complete [id]",
		Short: "Complete an active operation and record its readings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := lifecycle.CompletionInput{
				EndHours:    floatFlag(cmd, "hours"),
				EndMileage:  floatFlag(cmd, "mileage"),
				AreaCovered: floatFlag(cmd, "area"),
			}
			in.EndTime, _ = cmd.Flags().GetString("time")
			in.Notes, _ = cmd.Flags().GetString("notes")
			return d.run(func(ctx context.Context, s *session) error {
				res, err := s.engine.Complete(ctx, args[0], in, s.now)
				if err != nil {
					return err
				}
				s.pub.Emit(ctx, webhooks.EventOperationCompleted, webhooks.OperationPayload(res.Operation))
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s Completed %s\n", okMark, res.Operation.ID)
				printWarnings(out, res.Warnings)
				if res.Alert != nil {
					fmt.Fprintf(out, "%s %s for %s: %s\n", warnMark, res.Alert.Type, res.Alert.VehicleID, res.Alert.Message)
				}
				return nil
			})
		},
	}
	cmd.Flags().String("time", "", "actual end HH:MM")
	cmd.Flags().Float64("hours", 0, "engine hours at end")
	cmd.Flags().Float64("mileage", 0, "odometer at end")
	cmd.Flags().Float64("area", 0, "area covered in hectares")
	cmd.Flags().String("notes", "", "completion notes")
	return cmd
}

func opCancelCmd(d *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel [id]",
		Short: "Cancel a planned or active operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.run(func(ctx context.Context, s *session) error {
				op, err := s.engine.Cancel(ctx, args[0], s.now)
				if err != nil {
					return err
				}
				s.pub.Emit(ctx, webhooks.EventOperationCancelled, webhooks.OperationPayload(op))
				fmt.Fprintf(cmd.OutOrStdout(), "%s Cancelled %s\n", okMark, op.ID)
				return nil
			})
		},
	}
}

func opDeleteCmd(d *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "delete [id]",
		Short: "Delete an operation that is not active",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.run(func(ctx context.Context, s *session) error {
				op, err := s.engine.Delete(ctx, args[0], s.now)
				if err != nil {
					return err
				}
				s.pub.Emit(ctx, webhooks.EventOperationDeleted, webhooks.OperationPayload(op))
				fmt.Fprintf(cmd.OutOrStdout(), "%s Deleted %s\n", okMark, op.ID)
				return nil
			})
		},
	}
}

func opShowCmd(d *Deps) *cobra.Command {
	return &cobra.Command{
		Use:   "show [id]",
		Short: "Show one operation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.run(func(ctx context.Context, s *session) error {
				op, err := s.engine.Get(ctx, args[0])
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Operation: %s [%s]\n", op.ID, statusText(string(op.Status)))
				fmt.Fprintf(out, "Type: %s\n", op.OperationType)
				fmt.Fprintf(out, "Vehicle: %s  Operator: %s\n", op.VehicleID, op.OperatorID)
				if op.FieldID != "" {
					fmt.Fprintf(out, "Field: %s\n", op.FieldID)
				}
				fmt.Fprintf(out, "Date: %s %s-%s\n", op.Date, op.StartTime, op.EndTime)
				if op.StartHours != nil {
					fmt.Fprintf(out, "Start hours: %g\n", *op.StartHours)
				}
				if op.EndHours != nil {
					fmt.Fprintf(out, "End hours: %g\n", *op.EndHours)
				}
				if op.AreaCovered != nil {
					fmt.Fprintf(out, "Area: %g ha\n", *op.AreaCovered)
				}
				if op.Notes != "" {
					fmt.Fprintf(out, "Notes: %s\n", op.Notes)
				}
				return nil
			})
		},
	}
}

func opListCmd(d *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List operations",
		RunE: func(cmd *cobra.Command, args []string) error {
			var f model.OperationFilter
			f.VehicleID, _ = cmd.Flags().GetString("vehicle")
			f.OperatorID, _ = cmd.Flags().GetString("operator")
			f.Date, _ = cmd.Flags().GetString("date")
			f.Limit, _ = cmd.Flags().GetInt("limit")
			status, _ := cmd.Flags().GetString("status")
			if status != "" {
				f.Status = model.OperationStatus(status)
				if !f.Status.Valid() {
					return fmt.Errorf("unknown status %q", status)
				}
			}
			return d.run(func(ctx context.Context, s *session) error {
				ops, err := s.engine.List(ctx, f)
				if err != nil {
					return err
				}
				if len(ops) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No operations found")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tDATE\tTYPE\tVEHICLE\tOPERATOR\tSTATUS")
				for _, op := range ops {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", op.ID, op.Date, op.OperationType, op.VehicleID, op.OperatorID, op.Status)
				}
				return tw.Flush()
			})
		},
	}
	cmd.Flags().String("vehicle", "", "filter by vehicle")
	cmd.Flags().String("operator", "", "filter by operator")
	cmd.Flags().String("date", "", "filter by date")
	cmd.Flags().String("status", "", "filter by status")
	cmd.Flags().Int("limit", 0, "maximum rows")
	return cmd
}

func opImportCmd(d *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import [file.csv]",
		Short: "Plan operations from a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			since, _ := cmd.Flags().GetString("since")
			return d.run(func(ctx context.Context, s *session) error {
				return importPlans(ctx, cmd, s, csvplan.Source{Path: args[0]}, since)
			})
		},
	}
	cmd.Flags().String("since", "", "skip rows dated before YYYY-MM-DD")
	return cmd
}

func importPlans(ctx context.Context, cmd *cobra.Command, s *session, src integrations.PlanSource, since string) error {
	batch, err := src.FetchPlans(ctx, since)
	if err != nil {
		return fmt.Errorf("%s: %w", src.Name(), err)
	}
	out := cmd.OutOrStdout()
	failed := len(batch.Rejected)
	for _, re := range batch.Rejected {
		fmt.Fprintf(out, "%s %v\n", warnMark, re)
	}
	created := 0
	for _, draft := range batch.Drafts {
		op, err := s.engine.Create(ctx, draft)
		if err != nil {
			failed++
			fmt.Fprintf(out, "%s %s %s on %s: %v\n", warnMark, draft.OperationType, draft.VehicleID, draft.Date, err)
			continue
		}
		s.pub.Emit(ctx, webhooks.EventOperationCreated, webhooks.OperationPayload(op))
		created++
	}
	fmt.Fprintf(out, "%s Imported %d operation(s) from %s\n", okMark, created, src.Name())
	if failed > 0 {
		return fmt.Errorf("%d row(s) not imported", failed)
	}
	return nil
}
