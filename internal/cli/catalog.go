package cli

import (
	"context"
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"fieldops/internal/lifecycle"
	"fieldops/internal/model"
)

func availabilityCmd(d *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "availability [vehicle|operator] [id] [date]",
		Short: "Check whether a vehicle or operator is free on a date",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind := model.ResourceKind(args[0])
			if kind != model.ResourceVehicle && kind != model.ResourceOperator {
				return fmt.Errorf("kind must be vehicle or operator, got %q", args[0])
			}
			var window *lifecycle.Window
			start, _ := cmd.Flags().GetString("start")
			end, _ := cmd.Flags().GetString("end")
			if start != "" && end != "" {
				window = &lifecycle.Window{Start: start, End: end}
			}
			return d.run(func(ctx context.Context, s *session) error {
				ids, err := s.engine.Availability().FindConflicts(ctx, kind, args[1], args[2], window, "")
				if err != nil {
					return err
				}
				if len(ids) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s is available on %s\n", okMark, kind, args[1], args[2])
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s is booked on %s by %s\n", warnMark, kind, args[1], args[2], strings.Join(ids, ", "))
				return nil
			})
		},
	}
	cmd.Flags().String("start", "", "window start HH:MM")
	cmd.Flags().String("end", "", "window end HH:MM")
	return cmd
}

func vehicleCmd(d *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vehicle",
		Short: "Manage the vehicle catalog",
	}
	set := &cobra.Command{
		Use:   "set [id]",
		Short: "Create or update a vehicle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.run(func(ctx context.Context, s *session) error {
				v, err := s.store.GetVehicle(ctx, args[0])
				if err != nil {
					v = model.Vehicle{ID: args[0], Status: model.VehicleAvailable}
				}
				f := cmd.Flags()
				if f.Changed("name") {
					v.Name, _ = f.GetString("name")
				}
				if f.Changed("type") {
					v.Type, _ = f.GetString("type")
				}
				if f.Changed("status") {
					st, _ := f.GetString("status")
					v.Status = model.VehicleStatus(st)
				}
				if h := floatFlag(cmd, "hours"); h != nil {
					if err := lifecycle.ValidateEngineHours(*h); err != nil {
						return err
					}
					v.CurrentHours = *h
				}
				if m := floatFlag(cmd, "mileage"); m != nil {
					if err := lifecycle.ValidateMileage(*m); err != nil {
						return err
					}
					v.CurrentMileage = *m
				}
				if h := floatFlag(cmd, "last-service"); h != nil {
					v.LastServiceHours = *h
				}
				if h := floatFlag(cmd, "interval"); h != nil {
					v.ServiceIntervalHours = *h
				}
				saved, err := s.store.UpsertVehicle(ctx, v)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Vehicle %s: %g h, %g km\n", okMark, saved.ID, saved.CurrentHours, saved.CurrentMileage)
				return nil
			})
		},
	}
	f := set.Flags()
	f.String("name", "", "display name")
	f.String("type", "", "vehicle type, e.g. tractor")
	f.String("status", "", "available, in_use, maintenance or retired")
	f.Float64("hours", 0, "current engine hours")
	f.Float64("mileage", 0, "current odometer")
	f.Float64("last-service", 0, "engine hours at last service")
	f.Float64("interval", 0, "service interval override in hours")

	operator := &cobra.Command{
		Use:   "operator [id] [name]",
		Short: "Create or update an operator",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			o := model.Operator{ID: args[0], Status: "active"}
			if len(args) == 2 {
				o.Name = args[1]
			}
			return d.run(func(ctx context.Context, s *session) error {
				if _, err := s.store.UpsertOperator(ctx, o); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Operator %s\n", okMark, o.ID)
				return nil
			})
		},
	}
	cmd.AddCommand(set, operator)
	return cmd
}

func alertCmd(d *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "alert",
		Short: "Inspect and resolve maintenance alerts",
	}
	list := &cobra.Command{
		Use:   "list",
		Short: "List maintenance alerts",
		RunE: func(cmd *cobra.Command, args []string) error {
			vehicle, _ := cmd.Flags().GetString("vehicle")
			status, _ := cmd.Flags().GetString("status")
			return d.run(func(ctx context.Context, s *session) error {
				alerts, err := s.store.ListAlerts(ctx, vehicle, status)
				if err != nil {
					return err
				}
				if len(alerts) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No alerts")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tVEHICLE\tTYPE\tSEVERITY\tHOURS\tDUE\tSTATUS")
				for _, a := range alerts {
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%g\t%g\t%s\n", a.ID, a.VehicleID, a.Type, a.Severity, a.Hours, a.DueAtHours, a.Status)
				}
				return tw.Flush()
			})
		},
	}
	list.Flags().String("vehicle", "", "filter by vehicle")
	list.Flags().String("status", model.AlertActive, "active or resolved")

	resolve := &cobra.Command{
		Use:   "resolve [id]",
		Short: "Mark an alert resolved after service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.run(func(ctx context.Context, s *session) error {
				a, err := s.store.ResolveAlert(ctx, args[0])
				if err != nil {
					return fmt.Errorf("resolve %s: %w", args[0], err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s Resolved %s for %s\n", okMark, a.ID, a.VehicleID)
				return nil
			})
		},
	}
	cmd.AddCommand(list, resolve)
	return cmd
}
