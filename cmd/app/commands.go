package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/tasklet/internal"
	"github.com/starford/tasklet/internal/capability"
	"github.com/starford/tasklet/internal/document"
	"github.com/starford/tasklet/internal/prompt"
	"github.com/starford/tasklet/internal/syncengine"
)

// withApp opens the application for a one-shot command. Logs go to stderr
// so stdout stays clean for command output.
func withApp(fn func(ctx context.Context, cmd *cli.Command, app *internal.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		app, err := internal.Open(ctx,
			internal.WithConfig(cfg),
			internal.WithLogOutput(os.Stderr),
			internal.WithVersion(version))
		if err != nil {
			return err
		}
		defer app.Close()
		return fn(ctx, cmd, app)
	}
}

// mutation wraps a command that changes the document: it waits for the
// write and warns when the change only lives in memory.
func mutation(fn func(ctx context.Context, cmd *cli.Command, app *internal.App) error) cli.ActionFunc {
	return withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
		if err := fn(ctx, cmd, app); err != nil {
			return err
		}
		if err := app.Store.Flush(ctx); err != nil {
			return err
		}
		if !app.Store.Durable() {
			fmt.Fprintf(os.Stderr, "warning: change not saved, sync is %s (run `tasklet bind`)\n", app.Engine.Status())
		}
		return nil
	})
}

func requireArg(cmd *cli.Command, name string) (string, error) {
	v := strings.TrimSpace(cmd.Args().First())
	if v == "" {
		return "", fmt.Errorf("missing %s argument", name)
	}
	return v, nil
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show the sync status and bound data file",
		Action: withApp(func(_ context.Context, _ *cli.Command, app *internal.App) error {
			fmt.Printf("status:  %s\n", app.Engine.Status())
			if h, ok := app.Engine.Handle(); ok {
				fmt.Printf("kind:    %s\n", h.Kind)
				fmt.Printf("path:    %s\n", h.Path)
				if h.Kind == capability.KindDirectory {
					fmt.Printf("target:  %s\n", h.TargetPath())
				}
			}
			fmt.Printf("items:   %d\n", len(app.Store.Snapshot().Items))
			if err := app.Engine.LastError(); err != nil {
				fmt.Printf("error:   %v\n", err)
			}
			return nil
		}),
	}
}

func bindCommand() *cli.Command {
	return &cli.Command{
		Name:      "bind",
		Usage:     "Choose the data file (interactive when no path is given)",
		ArgsUsage: "[path]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "kind", Value: string(capability.KindFile), Usage: "file or directory"},
			&cli.StringFlag{Name: "target", Usage: "data file name inside a directory binding"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			var picker syncengine.Picker
			if path := cmd.Args().First(); path != "" {
				h, err := prompt.HandleFrom(capability.Kind(cmd.String("kind")), path, cmd.String("target"))
				if err != nil {
					return err
				}
				picker = syncengine.StaticPicker(h)
			}
			doc, err := app.Store.RequestAccess(ctx, picker)
			if err != nil {
				return err
			}
			if app.Engine.Status() != syncengine.Ready {
				fmt.Println("canceled")
				return nil
			}
			h, _ := app.Engine.Handle()
			fmt.Printf("bound %s (%d items)\n", h.Name(), len(doc.Items))
			return nil
		}),
	}
}

func unbindCommand() *cli.Command {
	return &cli.Command{
		Name:  "unbind",
		Usage: "Forget the bound data file",
		Action: withApp(func(ctx context.Context, _ *cli.Command, app *internal.App) error {
			app.Engine.Forget(ctx)
			fmt.Println("unbound")
			return nil
		}),
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:    "ls",
		Aliases: []string{"list"},
		Usage:   "List items",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "section", Aliases: []string{"s"}, Usage: "inProgress, done, longterm or trash"},
			&cli.StringFlag{Name: "query", Aliases: []string{"q"}, Usage: "filter by text"},
		},
		Action: withApp(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			doc := app.Store.Snapshot()
			sections := document.MainSections
			if s := cmd.String("section"); s != "" {
				if !document.Section(s).Valid() {
					return fmt.Errorf("unknown section %q", s)
				}
				sections = []document.Section{document.Section(s)}
			}
			for _, section := range sections {
				items := document.Search(doc.BySection(section), cmd.String("query"))
				if len(items) == 0 {
					continue
				}
				fmt.Printf("%s:\n", section)
				printItems(os.Stdout, items)
			}
			return nil
		}),
	}
}

func printItems(w io.Writer, items []document.Item) {
	for _, it := range items {
		mark := " "
		if it.Section == document.Done || it.DoneToday {
			mark = "x"
		}
		fmt.Fprintf(w, "  [%s] %s  %s\n", mark, it.ID, it.Text)
	}
}

func addCommand() *cli.Command {
	return &cli.Command{
		Name:      "add",
		Usage:     "Add an item",
		ArgsUsage: "<text>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "longterm", Aliases: []string{"l"}, Usage: "add as a recurring longterm item"},
		},
		Action: mutation(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			text := strings.Join(cmd.Args().Slice(), " ")
			item, err := app.Store.AddItem(text, cmd.Bool("longterm"))
			if err != nil {
				return err
			}
			fmt.Println(item.ID)
			return nil
		}),
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Replace the text of an item",
		ArgsUsage: "<id> <text>",
		Action: mutation(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			id, err := requireArg(cmd, "id")
			if err != nil {
				return err
			}
			text := strings.Join(cmd.Args().Tail(), " ")
			_, err = app.Store.EditItem(id, text)
			return err
		}),
	}
}

func itemCommand(name, usage string) *cli.Command {
	return &cli.Command{
		Name:      name,
		Usage:     usage,
		ArgsUsage: "<id>",
		Action: mutation(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			id, err := requireArg(cmd, "id")
			if err != nil {
				return err
			}
			var item document.Item
			switch name {
			case "toggle":
				item, err = app.Store.ToggleItem(id)
			case "trash":
				item, err = app.Store.TrashItem(id)
			case "restore":
				item, err = app.Store.RestoreItem(id)
			case "purge":
				if err := app.Store.PurgeItem(id); err != nil {
					return err
				}
				fmt.Printf("purged %s\n", id)
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Printf("%s -> %s\n", item.ID, item.Section)
			return nil
		}),
	}
}

func undoCommand() *cli.Command {
	return &cli.Command{
		Name:  "undo",
		Usage: "Undo the last move to trash",
		Action: mutation(func(_ context.Context, _ *cli.Command, app *internal.App) error {
			if !app.Store.UndoTrash() {
				fmt.Println("nothing to undo")
				return nil
			}
			fmt.Println("restored")
			return nil
		}),
	}
}

func emptyTrashCommand() *cli.Command {
	return &cli.Command{
		Name:  "empty-trash",
		Usage: "Delete every trashed item",
		Action: mutation(func(_ context.Context, _ *cli.Command, app *internal.App) error {
			fmt.Printf("removed %d\n", app.Store.EmptyTrash())
			return nil
		}),
	}
}

func exportCommand() *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Write the document as JSON",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "output file (default stdout)"},
		},
		Action: withApp(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			text, err := app.Store.ExportSnapshot()
			if err != nil {
				return err
			}
			out := cmd.String("out")
			if out == "" {
				_, err = fmt.Fprintln(os.Stdout, text)
				return err
			}
			return os.WriteFile(out, []byte(text+"\n"), 0o644)
		}),
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Replace the document with an exported JSON file",
		ArgsUsage: "<file|->",
		Action: mutation(func(_ context.Context, cmd *cli.Command, app *internal.App) error {
			src, err := requireArg(cmd, "file")
			if err != nil {
				return err
			}
			var data []byte
			if src == "-" {
				data, err = io.ReadAll(os.Stdin)
			} else {
				data, err = os.ReadFile(src)
			}
			if err != nil {
				return fmt.Errorf("read %s: %w", src, err)
			}
			doc, err := app.Store.ImportSnapshot(string(data))
			if err != nil {
				return err
			}
			fmt.Printf("imported %d items\n", len(doc.Items))
			return nil
		}),
	}
}
