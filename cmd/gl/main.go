package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"gigline/internal/cache"
	"gigline/internal/config"
	"gigline/internal/db"
	"gigline/internal/domain"
	"gigline/internal/engine"
	"gigline/internal/migrate"
	"gigline/internal/repo"
	"gigline/internal/server"
)

var rootCmd = &cobra.Command{
	Use:   "gl",
	Short: "Gigline CLI",
	Long: `Gigline manages gig orders, SLA escalations, and project workspaces.
- Orders: purchased service engagements with escrow checkpoints, messages, and a timeline.
- Dashboard: the company-wide order overview with metrics, cached briefly per owner and status.
- Escalations: overdue orders raise at most one open escalation each; closing or deleting the order resolves it.
- Workspaces: every project lazily gets one, seeded with default integrations, holding tasks, budgets, meetings, and the rest of the collaboration records.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		workspace := viper.GetString("workspace")
		if _, err := db.EnsureWorkspace(workspace); err != nil {
			return err
		}
		return nil
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Println("error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("GIGLINE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	rootCmd.PersistentFlags().StringP("workspace", "w", ".", "workspace directory")
	rootCmd.PersistentFlags().Bool("json", false, "output JSON")
	rootCmd.PersistentFlags().String("actor-id", "local-user", "actor identifier")
	rootCmd.PersistentFlags().String("owner-id", "local-owner", "owner/company identifier")
	_ = viper.BindPFlag("workspace", rootCmd.PersistentFlags().Lookup("workspace"))
	_ = viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
	_ = viper.BindPFlag("actor-id", rootCmd.PersistentFlags().Lookup("actor-id"))
	_ = viper.BindPFlag("owner-id", rootCmd.PersistentFlags().Lookup("owner-id"))
}

func registerCommands() {
	rootCmd.AddCommand(orderCmd())
	rootCmd.AddCommand(escalationCmd())
	rootCmd.AddCommand(projectCmd())
	rootCmd.AddCommand(applicationCmd())
	rootCmd.AddCommand(apikeyCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(serveCmd())
}

func ownerID() string { return viper.GetString("owner-id") }
func actorID() string { return viper.GetString("actor-id") }

func orderCmd() *cobra.Command {
	order := &cobra.Command{
		Use:   "order",
		Short: "Manage gig orders",
	}
	order.AddCommand(orderCreateCmd())
	order.AddCommand(orderListCmd())
	order.AddCommand(orderShowCmd())
	order.AddCommand(orderUpdateCmd())
	order.AddCommand(orderDeleteCmd())
	order.AddCommand(orderDashboardCmd())
	order.AddCommand(orderEscrowCmd())
	return order
}

func orderCreateCmd() *cobra.Command {
	var vendor, service, status, currency, kickoffAt, dueAt string
	var amount float64
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a gig order",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOrder(ctx, engine.OrderCreateOptions{
					OwnerID:     ownerID(),
					VendorName:  vendor,
					ServiceName: service,
					Status:      status,
					Amount:      amount,
					Currency:    currency,
					KickoffAt:   kickoffAt,
					DueAt:       dueAt,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&vendor, "vendor", "", "vendor name")
	cmd.Flags().StringVar(&service, "service", "", "service name")
	cmd.Flags().StringVar(&status, "status", "", "initial status")
	cmd.Flags().Float64Var(&amount, "amount", 0, "order amount")
	cmd.Flags().StringVar(&currency, "currency", "USD", "currency")
	cmd.Flags().StringVar(&kickoffAt, "kickoff-at", "", "kickoff timestamp")
	cmd.Flags().StringVar(&dueAt, "due-at", "", "due timestamp")
	_ = cmd.MarkFlagRequired("vendor")
	_ = cmd.MarkFlagRequired("service")
	return cmd
}

func orderListCmd() *cobra.Command {
	var status string
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List gig orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListGigOrders(ctx, repo.OrderFilters{
					OwnerID: ownerID(),
					Status:  status,
					Limit:   limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Vendor", "Service", "Status", "Amount", "Due"})
				for _, o := range items {
					due := ""
					if o.DueAt != nil {
						due = *o.DueAt
					}
					tw.AppendRow(table.Row{o.ID, o.VendorName, o.ServiceName, o.Status, fmt.Sprintf("%.2f %s", o.Amount, o.Currency), due})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func orderShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <id>",
		Short: "Show order detail",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				detail, err := e.GetOrderDetail(ctx, ownerID(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(detail)
			})
		},
	}
	return cmd
}

func orderUpdateCmd() *cobra.Command {
	var status, dueAt string
	var progress int
	var amount float64
	cmd := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a gig order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.OrderUpdateOptions{
				OwnerID: ownerID(),
				OrderID: args[0],
				ActorID: actorID(),
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("progress") {
				opts.ProgressPercent = &progress
			}
			if cmd.Flags().Changed("amount") {
				opts.Amount = &amount
			}
			if cmd.Flags().Changed("due-at") {
				opts.DueAt = &dueAt
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.UpdateGigOrder(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(o)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percent")
	cmd.Flags().Float64Var(&amount, "amount", 0, "order amount")
	cmd.Flags().StringVar(&dueAt, "due-at", "", "due timestamp")
	return cmd
}

func orderDeleteCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a gig order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteOrder(ctx, ownerID(), args[0], actorID())
			})
		},
	}
	return cmd
}

func orderDashboardCmd() *cobra.Command {
	var status string
	var escalate bool
	cmd := &cobra.Command{
		Use:   "dashboard",
		Short: "Company orders dashboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				snap, err := e.Dashboard(ctx, engine.DashboardOptions{
					OwnerID:  ownerID(),
					Status:   status,
					Escalate: escalate,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(snap)
				}
				fmt.Printf("Owner: %s (generated %s)\n", snap.OwnerID, snap.GeneratedAt)
				fmt.Printf("Orders: %d total, %d open, %d closed\n", snap.Metrics.TotalOrders, snap.Metrics.OpenOrders, snap.Metrics.ClosedOrders)
				fmt.Printf("Value in flight: %.2f, escrow held: %.2f\n", snap.Metrics.ValueInFlight, snap.Metrics.EscrowHeld)
				fmt.Printf("SLA breaches: %d\n", snap.SLABreaches)
				if len(snap.Alerts) > 0 {
					tw := table.NewWriter()
					tw.SetOutputMirror(os.Stdout)
					tw.AppendHeader(table.Row{"Order", "Severity", "Hours overdue", "Message"})
					for _, a := range snap.Alerts {
						tw.AppendRow(table.Row{a.OrderID, a.Severity, a.HoursOverdue, a.Message})
					}
					tw.Render()
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "status bucket (open, closed, or exact status)")
	cmd.Flags().BoolVar(&escalate, "escalate", false, "persist escalations for detected breaches")
	return cmd
}

func orderEscrowCmd() *cobra.Command {
	escrow := &cobra.Command{Use: "escrow", Short: "Manage escrow checkpoints"}

	var label string
	var amount float64
	post := &cobra.Command{
		Use:   "post <order-id>",
		Short: "Post an escrow checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.PostEscrowCheckpoint(ctx, engine.EscrowCreateOptions{
					OwnerID: ownerID(),
					OrderID: args[0],
					Label:   label,
					Amount:  amount,
					ActorID: actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}
	post.Flags().StringVar(&label, "label", "", "checkpoint label")
	post.Flags().Float64Var(&amount, "amount", 0, "held amount")
	_ = post.MarkFlagRequired("label")
	_ = post.MarkFlagRequired("amount")

	release := &cobra.Command{
		Use:   "release <order-id> <checkpoint-id>",
		Short: "Release an escrow checkpoint",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				c, err := e.ReleaseEscrowCheckpoint(ctx, ownerID(), args[0], args[1], actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(c)
			})
		},
	}

	escrow.AddCommand(post)
	escrow.AddCommand(release)
	return escrow
}

func escalationCmd() *cobra.Command {
	esc := &cobra.Command{
		Use:   "escalation",
		Short: "Manage SLA escalations",
	}
	esc.AddCommand(escalationListCmd())
	esc.AddCommand(escalationResolveCmd())
	return esc
}

func escalationListCmd() *cobra.Command {
	var orderIDFlag, status string
	var open bool
	var limit int
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List escalations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListEscalations(ctx, repo.EscalationFilters{
					OwnerID:  ownerID(),
					OrderID:  orderIDFlag,
					Status:   status,
					OpenOnly: open,
					Limit:    limit,
				})
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Order", "Status", "Severity", "Hours", "Detected", "Resolved"})
				for _, it := range items {
					resolved := ""
					if it.ResolvedAt != nil {
						resolved = *it.ResolvedAt
					}
					tw.AppendRow(table.Row{it.ID, it.OrderID, it.Status, it.Severity, it.HoursOverdue, it.DetectedAt, resolved})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&orderIDFlag, "order", "", "order id filter")
	cmd.Flags().StringVar(&status, "status", "", "status filter")
	cmd.Flags().BoolVar(&open, "open", false, "open escalations only")
	cmd.Flags().IntVar(&limit, "limit", 50, "max rows")
	return cmd
}

func escalationResolveCmd() *cobra.Command {
	var resolution string
	cmd := &cobra.Command{
		Use:   "resolve <order-id>",
		Short: "Resolve open escalations for an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.ResolveOrderEscalations(ctx, engine.ResolveEscalationOptions{
					OwnerID:      ownerID(),
					OrderID:      args[0],
					ResolvedByID: actorID(),
					Resolution:   resolution,
				})
				if err != nil {
					return err
				}
				fmt.Printf("resolved %d escalation(s)\n", n)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&resolution, "resolution", "", "resolution note")
	return cmd
}

func projectCmd() *cobra.Command {
	prj := &cobra.Command{Use: "project", Short: "Manage projects and workspaces"}
	prj.AddCommand(projectCreateCmd())
	prj.AddCommand(projectListCmd())
	prj.AddCommand(projectUpdateCmd())
	prj.AddCommand(workspaceCmd())
	return prj
}

func projectUpdateCmd() *cobra.Command {
	var status, desc string
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update a project",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ProjectUpdateOptions{
				OwnerID:   ownerID(),
				ProjectID: args[0],
				ActorID:   actorID(),
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("description") {
				opts.Description = &desc
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.UpdateProject(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "new status")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	return cmd
}

func projectCreateCmd() *cobra.Command {
	var name, desc string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a project",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				p, err := e.CreateProject(ctx, engine.ProjectCreateOptions{
					OwnerID:     ownerID(),
					Name:        name,
					Description: desc,
					ActorID:     actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(p)
			})
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "project name")
	cmd.Flags().StringVar(&desc, "description", "", "description")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func projectListCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List projects",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjects(ctx, ownerID())
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	return cmd
}

func workspaceCmd() *cobra.Command {
	ws := &cobra.Command{Use: "workspace", Short: "Manage project workspaces"}
	ws.AddCommand(workspaceShowCmd())
	ws.AddCommand(workspaceUpdateCmd())
	ws.AddCommand(workspaceEntityCmd())
	ws.AddCommand(workspaceIntegrationsCmd())
	return ws
}

func workspaceUpdateCmd() *cobra.Command {
	var status, riskLevel, notes string
	var progress int
	cmd := &cobra.Command{
		Use:   "update <project-id>",
		Short: "Update workspace status, progress, risk, or notes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.WorkspaceSummaryUpdateOptions{
				OwnerID:   ownerID(),
				ProjectID: args[0],
				ActorID:   actorID(),
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &status
			}
			if cmd.Flags().Changed("progress") {
				opts.ProgressPercent = &progress
			}
			if cmd.Flags().Changed("risk-level") {
				opts.RiskLevel = &riskLevel
			}
			if cmd.Flags().Changed("notes") {
				opts.Notes = &notes
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ws, err := e.UpdateWorkspaceSummary(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(ws)
			})
		},
	}
	cmd.Flags().StringVar(&status, "status", "", "workspace status (forming, active, at_risk, closing, closed)")
	cmd.Flags().IntVar(&progress, "progress", 0, "progress percent")
	cmd.Flags().StringVar(&riskLevel, "risk-level", "", "risk level (low, medium, high)")
	cmd.Flags().StringVar(&notes, "notes", "", "workspace notes")
	return cmd
}

func workspaceShowCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <project-id>",
		Short: "Workspace management snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				view, err := e.GetWorkspaceSnapshot(ctx, ownerID(), args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(view)
			})
		},
	}
	return cmd
}

func workspaceEntityCmd() *cobra.Command {
	entity := &cobra.Command{
		Use:   "entity",
		Short: "Workspace entity CRUD",
		Long:  "Entity kinds: " + strings.Join(engine.EntityKinds(), ", ") + ". Field values are passed as --field key=value pairs; numbers, dates, and booleans are coerced.",
	}

	var fields []string
	create := &cobra.Command{
		Use:   "create <project-id> <entity>",
		Short: "Create a workspace entity record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseFields(fields)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.MutateWorkspaceEntity(ctx, engine.WorkspaceMutateOptions{
					OwnerID:   ownerID(),
					ProjectID: args[0],
					Entity:    args[1],
					Payload:   payload,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	create.Flags().StringArrayVar(&fields, "field", []string{}, "field as key=value (repeatable)")

	var updateFields []string
	update := &cobra.Command{
		Use:   "update <project-id> <entity> <record-id>",
		Short: "Update a workspace entity record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			payload, err := parseFields(updateFields)
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rec, err := e.MutateWorkspaceEntity(ctx, engine.WorkspaceMutateOptions{
					OwnerID:   ownerID(),
					ProjectID: args[0],
					Entity:    args[1],
					Payload:   payload,
					RecordID:  args[2],
					IsUpdate:  true,
					ActorID:   actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(rec)
			})
		},
	}
	update.Flags().StringArrayVar(&updateFields, "field", []string{}, "field as key=value (repeatable)")

	del := &cobra.Command{
		Use:   "delete <project-id> <entity> <record-id>",
		Short: "Delete a workspace entity record",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				_, err := e.MutateWorkspaceEntity(ctx, engine.WorkspaceMutateOptions{
					OwnerID:   ownerID(),
					ProjectID: args[0],
					Entity:    args[1],
					RecordID:  args[2],
					IsDelete:  true,
					ActorID:   actorID(),
				})
				return err
			})
		},
	}

	list := &cobra.Command{
		Use:   "list <project-id> <entity>",
		Short: "List workspace entity records",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListWorkspaceEntities(ctx, ownerID(), args[0], args[1])
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}

	entity.AddCommand(create)
	entity.AddCommand(update)
	entity.AddCommand(del)
	entity.AddCommand(list)
	return entity
}

func workspaceIntegrationsCmd() *cobra.Command {
	integrations := &cobra.Command{Use: "integrations", Short: "Project integrations"}

	list := &cobra.Command{
		Use:   "list <project-id>",
		Short: "List project integrations",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListProjectIntegrations(ctx, ownerID(), args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Provider", "Status", "Updated"})
				for _, in := range items {
					tw.AppendRow(table.Row{in.Provider, in.Status, in.UpdatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}

	var status, configJSON string
	set := &cobra.Command{
		Use:   "set <project-id> <provider>",
		Short: "Update a project integration",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				in, err := e.UpdateProjectIntegration(ctx, ownerID(), args[0], args[1], status, configJSON, actorID())
				if err != nil {
					return err
				}
				return printJSONOrTable(in)
			})
		},
	}
	set.Flags().StringVar(&status, "status", "", "integration status (connected, disconnected, error)")
	set.Flags().StringVar(&configJSON, "config", "", "provider config JSON")

	integrations.AddCommand(list)
	integrations.AddCommand(set)
	return integrations
}

func applicationCmd() *cobra.Command {
	app := &cobra.Command{Use: "application", Short: "Manage job applications"}

	var candidate, role, status, notes string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a job application",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.CreateApplication(ctx, engine.ApplicationCreateOptions{
					OwnerID:       ownerID(),
					CandidateName: candidate,
					RoleTitle:     role,
					Status:        status,
					Notes:         notes,
					ActorID:       actorID(),
				})
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	create.Flags().StringVar(&candidate, "candidate", "", "candidate name")
	create.Flags().StringVar(&role, "role", "", "role title")
	create.Flags().StringVar(&status, "status", "", "initial status")
	create.Flags().StringVar(&notes, "notes", "", "notes")
	_ = create.MarkFlagRequired("candidate")
	_ = create.MarkFlagRequired("role")

	var listStatus string
	list := &cobra.Command{
		Use:   "list",
		Short: "List job applications",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListApplications(ctx, ownerID(), listStatus)
				if err != nil {
					return err
				}
				return printJSONOrTable(items)
			})
		},
	}
	list.Flags().StringVar(&listStatus, "status", "", "status filter")

	var newStatus, newNotes string
	update := &cobra.Command{
		Use:   "update <id>",
		Short: "Update a job application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := engine.ApplicationUpdateOptions{
				OwnerID: ownerID(),
				ID:      args[0],
				ActorID: actorID(),
			}
			if cmd.Flags().Changed("status") {
				opts.Status = &newStatus
			}
			if cmd.Flags().Changed("notes") {
				opts.Notes = &newNotes
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				a, err := e.UpdateApplication(ctx, opts)
				if err != nil {
					return err
				}
				return printJSONOrTable(a)
			})
		},
	}
	update.Flags().StringVar(&newStatus, "status", "", "new status")
	update.Flags().StringVar(&newNotes, "notes", "", "notes")

	del := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a job application",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.DeleteApplication(ctx, ownerID(), args[0], actorID())
			})
		},
	}

	app.AddCommand(create)
	app.AddCommand(list)
	app.AddCommand(update)
	app.AddCommand(del)
	return app
}

func apikeyCmd() *cobra.Command {
	apikey := &cobra.Command{Use: "apikey", Short: "Manage API keys"}

	var name string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an API key for the current owner",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				rawKey := "gl_" + uuid.New().String()
				key := domain.APIKey{
					ID:      uuid.New().String(),
					ActorID: ownerID(),
					Name:    name,
					KeyHash: repo.HashAPIKey(rawKey),
				}
				if err := e.Repo.InsertAPIKey(ctx, nil, key); err != nil {
					return err
				}
				fmt.Printf("id: %s\nkey: %s\n", key.ID, rawKey)
				fmt.Println("store the key now; only its hash is kept")
				return nil
			})
		},
	}
	create.Flags().StringVar(&name, "name", "", "key label")

	revoke := &cobra.Command{
		Use:   "revoke <id>",
		Short: "Revoke an API key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return e.Repo.DeleteAPIKey(ctx, args[0])
			})
		},
	}

	apikey.AddCommand(create)
	apikey.AddCommand(revoke)
	return apikey
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			fmt.Printf("migrated %s\n", db.Path(workspace))
			return nil
		},
	}
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			conn, err := db.Open(db.Config{Workspace: workspace})
			if err != nil {
				return err
			}
			defer conn.Close()
			if err := migrate.Migrate(conn); err != nil {
				return err
			}
			cfg, err := config.Load(workspace)
			if err != nil {
				return err
			}
			c := cache.New()
			defer c.Stop()
			e := engine.New(conn, cfg, c)
			authCfg := server.AuthConfig{JWTSecret: os.Getenv("GIGLINE_JWT_SECRET")}
			if authCfg.JWTSecret == "" {
				return fmt.Errorf("GIGLINE_JWT_SECRET is required for bearer auth")
			}
			handler, err := server.New(server.Config{Engine: e, BasePath: basePath, Auth: authCfg})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: addr, Handler: handler}
			go func() {
				<-cmd.Context().Done()
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(ctx)
			}()
			fmt.Printf("Serving Gigline API on http://%s%s (OpenAPI at /openapi.json, Swagger UI at /docs)\n", addr, basePath)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/v0", "API base path")
	return cmd
}

// --- helpers ---

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	workspace := viper.GetString("workspace")
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return err
	}
	defer conn.Close()
	if err := migrate.Migrate(conn); err != nil {
		return err
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return err
	}
	c := cache.New()
	defer c.Stop()
	e := engine.New(conn, cfg, c)
	return fn(ctx, e)
}

func parseFields(pairs []string) (map[string]any, error) {
	payload := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid --field %q, expected key=value", pair)
		}
		payload[key] = value
	}
	return payload, nil
}

func printJSONOrTable(v any) error {
	if viper.GetBool("json") {
		return printJSON(v)
	}
	b, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(b))
	return nil
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
