package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"chronos/internal/app"
	"chronos/internal/config"
	"chronos/internal/db"
	"chronos/internal/domain"
	"chronos/internal/editor"
	"chronos/internal/engine"
	"chronos/internal/logger"
	"chronos/internal/migrate"
	"chronos/internal/repo"
	"chronos/internal/server"
	"chronos/internal/timeline"
)

var rootCmd = &cobra.Command{
	Use:   "chronos",
	Short: "Chronos timeline CLI",
	Long: `Chronos keeps a Gantt-style timeline of events grouped in layers.
- Workspace: a directory holding chronos.yml and the .chronos database.
- Layers: the rows of the timeline, in display order.
- Events: a title with a start date and an optional end date; a missing end date makes a point event.
- Zoom: 1 (quarters) to 5 (days); higher levels widen the canvas.
- Viewport: the date range mapped onto the canvas.
- Activity: every saved change, view with 'chronos activity tail'.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_, err := db.EnsureWorkspace(viper.GetString("workspace"))
		return err
	},
}

func main() {
	cobra.OnInitialize(initConfig)
	addPersistentFlags()
	registerCommands()
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func initConfig() {
	viper.SetEnvPrefix("CHRONOS")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func addPersistentFlags() {
	flags := rootCmd.PersistentFlags()
	flags.StringP("workspace", "w", ".", "workspace directory")
	flags.Bool("json", false, "output JSON")
	flags.String("actor-id", engine.DefaultActor, "actor recorded on activity")
	flags.String("log-level", "", "log level (debug, info, warn, error); defaults to config")
	flags.String("jwt-secret", "", "HS256 secret for API bearer auth; defaults to config")
	for _, name := range []string{"workspace", "json", "actor-id", "log-level", "jwt-secret"} {
		_ = viper.BindPFlag(name, flags.Lookup(name))
	}
}

func registerCommands() {
	rootCmd.AddCommand(initCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(layerCmd())
	rootCmd.AddCommand(eventCmd())
	rootCmd.AddCommand(zoomCmd())
	rootCmd.AddCommand(viewportCmd())
	rootCmd.AddCommand(ticksCmd())
	rootCmd.AddCommand(timelineCmd())
	rootCmd.AddCommand(exportCmd())
	rootCmd.AddCommand(importCmd())
	rootCmd.AddCommand(renderCmd())
	rootCmd.AddCommand(activityCmd())
	rootCmd.AddCommand(draftCmd())
	rootCmd.AddCommand(configCmd())
	rootCmd.AddCommand(tokenCmd())
}

func actor() string { return viper.GetString("actor-id") }

func initCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create chronos.yml and the workspace database",
		RunE: func(cmd *cobra.Command, args []string) error {
			workspace := viper.GetString("workspace")
			path := config.Path(workspace)
			if _, err := os.Stat(path); err == nil && !force {
				return fmt.Errorf("%s already exists (use --force to overwrite)", path)
			}
			if err := os.WriteFile(path, []byte(config.GenerateDefault()), 0o644); err != nil {
				return err
			}
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				version, err := migrate.Version(ctx, a.DB)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"config": path, "db": db.Path(workspace), "schema_version": version, "layers": len(a.Engine.Layers())})
				}
				fmt.Printf("Wrote %s\nDatabase at %s (schema %d)\n", path, db.Path(workspace), version)
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "overwrite an existing chronos.yml")
	return cmd
}

func serveCmd() *cobra.Command {
	var addr, basePath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return withApp(ctx, func(ctx context.Context, a *app.App) error {
				if addr == "" {
					addr = a.Config.Server.Addr
				}
				if basePath == "" {
					basePath = a.Config.Server.BasePath
				}
				secret := viper.GetString("jwt-secret")
				if secret == "" {
					secret = a.Config.Server.JWTSecret
				}
				log := a.Log
				if secret == "" {
					log.Warn("no jwt secret configured; API accepts unauthenticated requests")
				}
				handler, err := server.New(server.Config{
					Engine:   a.Engine,
					BasePath: basePath,
					Auth:     server.AuthConfig{JWTSecret: secret},
					Logger:   log.Named("http"),
				})
				if err != nil {
					return err
				}

				janitor := a.Janitor()
				if err := janitor.Start(); err != nil {
					return err
				}
				defer janitor.Stop()
				server.StartWebhooks(ctx, a.Engine.Repo, a.Config.Webhooks, log)

				srv := &http.Server{Addr: addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
				go func() {
					<-ctx.Done()
					shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
					defer cancel()
					srv.Shutdown(shutdownCtx)
				}()
				log.Info("serving chronos api",
					zap.String("addr", addr),
					zap.String("base_path", basePath),
					zap.String("drafts", a.Config.Drafts.Backend),
					zap.Int("webhooks", len(a.Config.Webhooks)))
				fmt.Printf("Serving Chronos API on http://%s%s (OpenAPI at %s/openapi.json, Swagger UI at /docs)\n", addr, basePath, basePath)
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	cmd.Flags().StringVar(&basePath, "base-path", "", "API base path (default from config)")
	return cmd
}

// --- layers ---

func layerCmd() *cobra.Command {
	c := &cobra.Command{Use: "layer", Short: "Manage layers"}
	c.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List layers",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				layers := e.Layers()
				if viper.GetBool("json") {
					return printJSON(layers)
				}
				tw := newTable("ID", "Name", "Events")
				for _, l := range layers {
					tw.AppendRow(table.Row{l.ID, l.Name, len(e.Events(l.ID))})
				}
				tw.Render()
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "add NAME",
		Short: "Create a layer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.CreateLayer(ctx, args[0], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "rename ID NAME",
		Short: "Rename a layer",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.RenameLayer(ctx, args[0], args[1], actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a layer and all of its events",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				n, err := e.DeleteLayer(ctx, args[0], actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(map[string]any{"id": args[0], "events_removed": n})
				}
				fmt.Printf("Deleted layer %s (%d events removed)\n", args[0], n)
				return nil
			})
		},
	})
	return c
}

// --- events ---

func eventCmd() *cobra.Command {
	c := &cobra.Command{Use: "event", Short: "Manage events"}
	c.AddCommand(eventListCmd())
	c.AddCommand(eventShowCmd())
	c.AddCommand(eventAddCmd())
	c.AddCommand(eventUpdateCmd())
	c.AddCommand(eventDeleteCmd())
	c.AddCommand(eventMoveCmd())
	return c
}

func eventListCmd() *cobra.Command {
	var layerID, query string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var items []domain.Event
				if query != "" {
					for _, ev := range e.Search(query) {
						if layerID == "" || ev.LayerID == layerID {
							items = append(items, ev)
						}
					}
				} else {
					items = e.Events(layerID)
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				printEvents(items)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&layerID, "layer", "", "layer filter")
	cmd.Flags().StringVarP(&query, "query", "q", "", "search title and description")
	return cmd
}

func eventShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.Event(args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
}

func eventAddCmd() *cobra.Command {
	var d editor.Draft
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create an event",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.CreateEvent(ctx, d, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	cmd.Flags().StringVar(&d.Title, "title", "", "title")
	cmd.Flags().StringVar(&d.StartDate, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&d.EndDate, "end", "", "end date (YYYY-MM-DD); omit for a point event")
	cmd.Flags().StringVar(&d.LayerID, "layer", "", "layer id")
	cmd.Flags().StringVar(&d.Color, "color", "", "color (#rrggbb)")
	cmd.Flags().StringVar(&d.Description, "description", "", "description")
	_ = cmd.MarkFlagRequired("title")
	_ = cmd.MarkFlagRequired("start")
	_ = cmd.MarkFlagRequired("layer")
	return cmd
}

func eventUpdateCmd() *cobra.Command {
	var title, start, end, layerID, color, description string
	cmd := &cobra.Command{
		Use:   "update ID",
		Short: "Update event fields",
		Long:  "Only the flags given are changed. --end \"\" turns the event into a point event.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			changed := func(name, v string) *string {
				if flags.Changed(name) {
					return &v
				}
				return nil
			}
			u := engine.EventUpdate{
				Title:       changed("title", title),
				StartDate:   changed("start", start),
				EndDate:     changed("end", end),
				LayerID:     changed("layer", layerID),
				Color:       changed("color", color),
				Description: changed("description", description),
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.UpdateEvent(ctx, args[0], u, actor())
				if err != nil {
					return err
				}
				return printJSONOrTable(ev)
			})
		},
	}
	cmd.Flags().StringVar(&title, "title", "", "title")
	cmd.Flags().StringVar(&start, "start", "", "start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&end, "end", "", "end date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&layerID, "layer", "", "layer id")
	cmd.Flags().StringVar(&color, "color", "", "color (#rrggbb)")
	cmd.Flags().StringVar(&description, "description", "", "description")
	return cmd
}

func eventDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete ID",
		Short: "Delete an event",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DeleteEvent(ctx, args[0], actor()); err != nil {
					return err
				}
				fmt.Printf("Deleted event %s\n", args[0])
				return nil
			})
		},
	}
}

func eventMoveCmd() *cobra.Command {
	var opts engine.MoveOptions
	var to string
	cmd := &cobra.Command{
		Use:   "move ID",
		Short: "Move an event, keeping its duration",
		Long: `Move an event to a new start date, or drop it at a canvas position like the UI does.
With --to the start date is set directly. Otherwise --drop-x (minus --offset) is
read as a position on a canvas --canvas-width pixels wide.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.EventID = args[0]
			opts.ActorID = actor()
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ev, err := e.Event(opts.EventID)
				if err != nil {
					return err
				}
				if opts.LayerID == "" {
					opts.LayerID = ev.LayerID
				}
				if to != "" {
					start, err := timeline.ParseDate(to)
					if err != nil {
						return err
					}
					vp := e.Viewport()
					width := opts.CanvasWidth
					if width <= 0 {
						width = 10000
					}
					opts.CanvasWidth = width
					opts.ClickOffsetX = 0
					opts.DropX = timeline.DateToPosition(start, vp.Start, vp.End) / 100 * width
				}
				moved, ok, err := e.MoveEvent(ctx, opts)
				if err != nil {
					return err
				}
				if !ok {
					return fmt.Errorf("event %s was not moved", opts.EventID)
				}
				return printJSONOrTable(moved)
			})
		},
	}
	cmd.Flags().StringVar(&opts.LayerID, "layer", "", "target layer (default: current layer)")
	cmd.Flags().StringVar(&to, "to", "", "new start date (YYYY-MM-DD)")
	cmd.Flags().Float64Var(&opts.DropX, "drop-x", 0, "drop position in canvas pixels")
	cmd.Flags().Float64Var(&opts.ClickOffsetX, "offset", 0, "where the event was grabbed, in pixels from its left edge")
	cmd.Flags().Float64Var(&opts.CanvasWidth, "canvas-width", 0, "canvas width in pixels (default: render width x zoom)")
	return cmd
}

func printEvents(items []domain.Event) {
	tw := newTable("ID", "Title", "Start", "End", "Days", "Layer", "Color")
	for _, ev := range items {
		end := ""
		if ev.EndDate != nil {
			end = timeline.FormatDate(*ev.EndDate)
		}
		tw.AppendRow(table.Row{ev.ID, ev.Title, timeline.FormatDate(ev.StartDate), end, timeline.Duration(ev), ev.LayerID, ev.Color})
	}
	tw.Render()
}

// --- view ---

func zoomCmd() *cobra.Command {
	c := &cobra.Command{Use: "zoom", Short: "Show or change the zoom level"}
	report := func(level int) error {
		if viper.GetBool("json") {
			return printJSON(map[string]any{
				"level":                level,
				"canvas_width_percent": timeline.CanvasWidthPercent(level),
				"tick_interval_days":   timeline.Interval(level),
			})
		}
		fmt.Printf("Zoom %d (canvas %.0f%%, ticks every %d days)\n", level, timeline.CanvasWidthPercent(level), timeline.Interval(level))
		return nil
	}
	c.RunE = func(cmd *cobra.Command, args []string) error {
		return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
			return report(e.Zoom())
		})
	}
	c.AddCommand(&cobra.Command{
		Use:   "set LEVEL",
		Short: "Set zoom level (clamped to 1..5)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid zoom level %q", args[0])
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				got, err := e.SetZoom(ctx, level, actor())
				if err != nil {
					return err
				}
				return report(got)
			})
		},
	})
	for _, step := range []struct {
		use string
		fn  func(engine.Engine) func(context.Context, string) (int, error)
	}{
		{"in", func(e engine.Engine) func(context.Context, string) (int, error) { return e.ZoomIn }},
		{"out", func(e engine.Engine) func(context.Context, string) (int, error) { return e.ZoomOut }},
	} {
		fn := step.fn
		c.AddCommand(&cobra.Command{
			Use:   step.use,
			Short: "Zoom " + step.use + " one level",
			RunE: func(cmd *cobra.Command, args []string) error {
				return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
					got, err := fn(e)(ctx, actor())
					if err != nil {
						return err
					}
					return report(got)
				})
			},
		})
	}
	return c
}

func viewportCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "viewport",
		Short: "Show or change the visible date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return printViewport(e.Viewport())
			})
		},
	}
	c.AddCommand(&cobra.Command{
		Use:   "set START END",
		Short: "Set the viewport (YYYY-MM-DD YYYY-MM-DD)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := timeline.ParseDate(args[0])
			if err != nil {
				return err
			}
			end, err := timeline.ParseDate(args[1])
			if err != nil {
				return err
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				vp, err := e.SetViewport(ctx, domain.Viewport{Start: start, End: end}, actor())
				if err != nil {
					return err
				}
				return printViewport(vp)
			})
		},
	})
	return c
}

func printViewport(vp domain.Viewport) error {
	start, end := timeline.FormatDate(vp.Start), timeline.FormatDate(vp.End)
	if viper.GetBool("json") {
		return printJSON(map[string]string{"start": start, "end": end})
	}
	fmt.Printf("%s .. %s (%d days)\n", start, end, timeline.DaysBetween(vp.Start, vp.End))
	return nil
}

func ticksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ticks",
		Short: "List axis ticks for the viewport at the current zoom",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				ticks := e.Ticks()
				if viper.GetBool("json") {
					return printJSON(ticks)
				}
				tw := newTable("Date", "Label", "Position %")
				for _, t := range ticks {
					tw.AppendRow(table.Row{timeline.FormatDate(t.Date), t.Label, fmt.Sprintf("%.2f", t.Position)})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func timelineCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "timeline",
		Short: "Show layers with positioned events",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				v := e.View()
				if viper.GetBool("json") {
					return printJSON(v)
				}
				fmt.Printf("Viewport %s .. %s, zoom %d (canvas %.0f%%)\n",
					timeline.FormatDate(v.Viewport.Start), timeline.FormatDate(v.Viewport.End), v.Zoom, v.CanvasWidthPercent)
				tw := newTable("Layer", "Event", "Start", "End", "Left %", "Width %")
				for _, row := range v.Rows {
					if len(row.Events) == 0 {
						tw.AppendRow(table.Row{row.Layer.Name, "", "", "", "", ""})
						continue
					}
					for _, p := range row.Events {
						end := ""
						if p.Event.EndDate != nil {
							end = timeline.FormatDate(*p.Event.EndDate)
						}
						tw.AppendRow(table.Row{row.Layer.Name, p.Event.Title, timeline.FormatDate(p.Event.StartDate), end,
							fmt.Sprintf("%.2f", p.LeftPercent), fmt.Sprintf("%.2f", p.WidthPercent)})
					}
				}
				tw.Render()
				return nil
			})
		},
	}
}

// --- exchange ---

func exportCmd() *cobra.Command {
	c := &cobra.Command{Use: "export", Short: "Export the timeline"}
	var out string
	ics := &cobra.Command{
		Use:   "ics",
		Short: "Export events as iCalendar",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return writeOutput(out, e.ExportICS())
			})
		},
	}
	ics.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	c.AddCommand(ics)
	return c
}

func importCmd() *cobra.Command {
	c := &cobra.Command{Use: "import", Short: "Import into the timeline"}
	c.AddCommand(&cobra.Command{
		Use:   "ics FILE",
		Short: "Import events from an iCalendar file (- for stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = os.Stdin
			if args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.ImportICS(ctx, r, actor())
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(res)
				}
				fmt.Printf("Imported %d events (%d skipped), created %d layers\n", res.Events, res.Skipped, res.Layers)
				return nil
			})
		},
	})
	return c
}

func renderCmd() *cobra.Command {
	c := &cobra.Command{Use: "render", Short: "Render the timeline"}
	var out string
	svg := &cobra.Command{
		Use:   "svg",
		Short: "Render the timeline as SVG",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				return writeOutput(out, e.RenderSVG())
			})
		},
	}
	svg.Flags().StringVarP(&out, "out", "o", "", "output file (default stdout)")
	c.AddCommand(svg)
	return c
}

func writeOutput(path, content string) error {
	if path == "" || path == "-" {
		_, err := io.WriteString(os.Stdout, content)
		return err
	}
	return os.WriteFile(path, []byte(content), 0o644)
}

// --- activity, drafts ---

func activityCmd() *cobra.Command {
	c := &cobra.Command{Use: "activity", Short: "Inspect saved changes"}
	var f repo.ActivityFilters
	tail := &cobra.Command{
		Use:   "tail",
		Short: "Show the latest activity",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Activity(ctx, f)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := newTable("ID", "Time", "Type", "Entity", "Actor", "Payload")
				for _, a := range items {
					entity := a.EntityKind
					if a.EntityID != "" {
						entity += ":" + a.EntityID
					}
					tw.AppendRow(table.Row{a.ID, a.TS, a.Type, entity, a.ActorID, a.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	tail.Flags().IntVar(&f.Limit, "n", 20, "number of rows")
	tail.Flags().StringVar(&f.Type, "type", "", "activity type filter")
	tail.Flags().StringVar(&f.EntityKind, "entity-kind", "", "entity kind filter (event, layer, timeline)")
	tail.Flags().StringVar(&f.EntityID, "entity-id", "", "entity id filter")
	c.AddCommand(tail)
	return c
}

func draftCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "draft",
		Short: "Inspect autosaved form drafts",
		Long:  "Drafts are keyed by event id; omit the id for the new-event form.",
	}
	c.AddCommand(&cobra.Command{
		Use:   "show [EVENT_ID]",
		Short: "Show a draft merged over the current values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := optionalArg(args)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				d, found, err := e.GetDraft(ctx, id)
				if err != nil {
					return err
				}
				return printJSON(map[string]any{"key": editor.DraftKey(id), "found": found, "draft": d})
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "discard [EVENT_ID]",
		Short: "Discard a draft",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := optionalArg(args)
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if err := e.DiscardDraft(ctx, id); err != nil {
					return err
				}
				fmt.Printf("Discarded %s\n", editor.DraftKey(id))
				return nil
			})
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "purge",
		Short: "Remove drafts older than drafts.max_age now",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd.Context(), func(ctx context.Context, a *app.App) error {
				n, err := a.Janitor().RunOnce(ctx)
				if err != nil {
					return err
				}
				fmt.Printf("Purged %d drafts\n", n)
				return nil
			})
		},
	})
	return c
}

func optionalArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// --- config, auth ---

func configCmd() *cobra.Command {
	c := &cobra.Command{
		Use:   "config",
		Short: "Inspect workspace config",
		Long:  "Config lives in chronos.yml at the workspace root; missing keys take their defaults.",
	}
	c.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show effective config",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			return printJSON(cfg)
		},
	})
	c.AddCommand(&cobra.Command{
		Use:   "validate",
		Short: "Validate chronos.yml",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := config.Load(viper.GetString("workspace"))
			if viper.GetBool("json") {
				return printJSON(map[string]any{"ok": err == nil, "error": fmt.Sprint(err)})
			}
			if err != nil {
				return err
			}
			fmt.Println("config OK")
			return nil
		},
	})
	return c
}

func tokenCmd() *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Issue a bearer token for --actor-id",
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := viper.GetString("jwt-secret")
			if secret == "" {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				secret = cfg.Server.JWTSecret
			}
			token, err := server.IssueToken(secret, actor(), ttl, time.Now())
			if err != nil {
				return err
			}
			if viper.GetBool("json") {
				return printJSON(map[string]string{"actor_id": actor(), "token": token})
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 never expires")
	return cmd
}

// --- helpers ---

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadOptional(viper.GetString("workspace"))
	if err != nil {
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, nil
}

func withApp(ctx context.Context, fn func(context.Context, *app.App) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	level := viper.GetString("log-level")
	if level == "" {
		level = cfg.Log.Level
	}
	log, err := logger.New(level)
	if err != nil {
		return err
	}
	defer log.Sync()
	a, err := app.OpenWithConfig(ctx, viper.GetString("workspace"), cfg, log)
	if err != nil {
		return err
	}
	runErr := fn(ctx, a)
	if err := a.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func withEngine(ctx context.Context, fn func(context.Context, engine.Engine) error) error {
	return withApp(ctx, func(ctx context.Context, a *app.App) error {
		return fn(ctx, a.Engine)
	})
}

func newTable(header ...any) table.Writer {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row(header))
	return tw
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
