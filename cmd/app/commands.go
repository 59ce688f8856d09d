package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/urfave/cli/v3"

	"github.com/starford/flashfs/internal"
	"github.com/starford/flashfs/internal/fileops"
	"github.com/starford/flashfs/internal/fileservice"
)

// withStack wraps a one-shot command: it loads the config, mounts the
// volume, runs fn, and unmounts. Logs go to stderr so stdout carries only
// command output.
func withStack(fn func(ctx context.Context, cmd *cli.Command, st *internal.Stack) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		st, err := internal.OpenStack(cfg, internal.NewLogger(cfg, os.Stderr))
		if err != nil {
			return err
		}
		defer st.Close()
		return fn(ctx, cmd, st)
	}
}

// args returns exactly n positional arguments.
func args(cmd *cli.Command, n int) ([]string, error) {
	a := cmd.Args().Slice()
	if len(a) != n {
		return nil, fmt.Errorf("%s: expected %d argument(s), got %d", cmd.Name, n, len(a))
	}
	return a, nil
}

func pathOrRoot(cmd *cli.Command) string {
	if p := cmd.Args().First(); p != "" {
		return p
	}
	return "/"
}

func fileCommands() []*cli.Command {
	return []*cli.Command{
		{
			Name:      "ls",
			Usage:     "List a directory",
			ArgsUsage: "[path]",
			Action: withStack(func(_ context.Context, cmd *cli.Command, st *internal.Stack) error {
				st.Engine.ListDir(pathOrRoot(cmd), os.Stdout)
				return nil
			}),
		},
		{
			Name:      "tree",
			Usage:     "List a directory recursively",
			ArgsUsage: "[path]",
			Flags: []cli.Flag{
				&cli.IntFlag{Name: "depth", Aliases: []string{"d"}, Value: fileops.DefaultDepth, Usage: "Maximum depth"},
			},
			Action: withStack(func(_ context.Context, cmd *cli.Command, st *internal.Stack) error {
				st.Engine.ListRecursive(pathOrRoot(cmd), os.Stdout, int(cmd.Int("depth")))
				return nil
			}),
		},
		{
			Name:      "cat",
			Usage:     "Print a file",
			ArgsUsage: "<path>",
			Action: withStack(func(ctx context.Context, cmd *cli.Command, st *internal.Stack) error {
				a, err := args(cmd, 1)
				if err != nil {
					return err
				}
				f, err := st.Service.Read(ctx, a[0])
				if err != nil {
					return err
				}
				_, err = os.Stdout.Write(f.Content)
				return err
			}),
		},
		{
			Name:      "put",
			Usage:     "Save stdin (or --from) to a file atomically",
			ArgsUsage: "<path>",
			Flags: []cli.Flag{
				&cli.StringFlag{Name: "from", Aliases: []string{"f"}, Usage: "Read content from this host file instead of stdin"},
				&cli.StringFlag{Name: "if-match", Usage: "Refuse unless the current content has this SHA-256"},
				&cli.BoolFlag{Name: "append", Aliases: []string{"a"}, Usage: "Append instead of replacing"},
			},
			Action: withStack(func(ctx context.Context, cmd *cli.Command, st *internal.Stack) error {
				a, err := args(cmd, 1)
				if err != nil {
					return err
				}
				data, err := readInput(cmd.String("from"))
				if err != nil {
					return err
				}
				var info *fileservice.FileInfo
				if cmd.Bool("append") {
					info, err = st.Service.Append(ctx, a[0], data)
				} else {
					info, err = st.Service.Save(ctx, a[0], data, cmd.String("if-match"))
				}
				if err != nil {
					return err
				}
				fmt.Printf("%s %d %s\n", info.Path, info.Size, info.Checksum)
				return nil
			}),
		},
		{
			Name:      "cp",
			Usage:     "Copy a file",
			ArgsUsage: "<from> <to>",
			Action: withStack(func(ctx context.Context, cmd *cli.Command, st *internal.Stack) error {
				a, err := args(cmd, 2)
				if err != nil {
					return err
				}
				_, err = st.Service.Copy(ctx, a[0], a[1])
				return err
			}),
		},
		{
			Name:      "mv",
			Usage:     "Move a file, replacing the destination",
			ArgsUsage: "<from> <to>",
			Action: withStack(func(ctx context.Context, cmd *cli.Command, st *internal.Stack) error {
				a, err := args(cmd, 2)
				if err != nil {
					return err
				}
				_, err = st.Service.Move(ctx, a[0], a[1])
				return err
			}),
		},
		{
			Name:      "rm",
			Usage:     "Remove a file",
			ArgsUsage: "<path>",
			Action: withStack(func(ctx context.Context, cmd *cli.Command, st *internal.Stack) error {
				a, err := args(cmd, 1)
				if err != nil {
					return err
				}
				return st.Service.Remove(ctx, a[0])
			}),
		},
		{
			Name:      "mkdir",
			Usage:     "Create a directory",
			ArgsUsage: "<path>",
			Action: withStack(func(ctx context.Context, cmd *cli.Command, st *internal.Stack) error {
				a, err := args(cmd, 1)
				if err != nil {
					return err
				}
				return st.Service.Mkdir(ctx, a[0])
			}),
		},
		{
			Name:      "touch",
			Usage:     "Create a file if missing",
			ArgsUsage: "<path>",
			Action: withStack(func(ctx context.Context, cmd *cli.Command, st *internal.Stack) error {
				a, err := args(cmd, 1)
				if err != nil {
					return err
				}
				_, err = st.Service.Touch(ctx, a[0])
				return err
			}),
		},
		{
			Name:      "truncate",
			Usage:     "Shorten a file to at most size bytes",
			ArgsUsage: "<path> <size>",
			Action: withStack(func(ctx context.Context, cmd *cli.Command, st *internal.Stack) error {
				a, err := args(cmd, 2)
				if err != nil {
					return err
				}
				size, err := strconv.ParseInt(a[1], 10, 64)
				if err != nil {
					return fmt.Errorf("truncate: size: %w", err)
				}
				_, err = st.Service.Truncate(ctx, a[0], size)
				return err
			}),
		},
		{
			Name:  "df",
			Usage: "Show volume usage",
			Action: withStack(func(ctx context.Context, _ *cli.Command, st *internal.Stack) error {
				sp := st.Service.Space(ctx)
				fmt.Printf("total %s\nused  %s (%.1f%%)\nfree  %s (%.1f%%)\n",
					humanize.IBytes(uint64(sp.TotalBytes)),
					humanize.IBytes(uint64(sp.UsedBytes)), sp.PercentUsed,
					humanize.IBytes(uint64(sp.FreeBytes)), sp.PercentFree)
				return nil
			}),
		},
		{
			Name:  "format",
			Usage: "Erase the volume",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "yes", Usage: "Confirm erasing every file"},
			},
			Action: withStack(func(ctx context.Context, cmd *cli.Command, st *internal.Stack) error {
				if !cmd.Bool("yes") {
					return fmt.Errorf("format: refusing without --yes")
				}
				return st.Service.Format(ctx)
			}),
		},
		{
			Name:  "verify",
			Usage: "Compare the volume with the integrity catalog",
			Flags: []cli.Flag{
				&cli.BoolFlag{Name: "sync", Usage: "Update the catalog to match the volume afterwards"},
			},
			Action: withStack(func(ctx context.Context, cmd *cli.Command, st *internal.Stack) error {
				rep, err := st.Service.Verify(ctx)
				if err != nil {
					return err
				}
				for _, p := range rep.Added {
					fmt.Println("added  ", p)
				}
				for _, p := range rep.Changed {
					fmt.Println("changed", p)
				}
				for _, p := range rep.Missing {
					fmt.Println("missing", p)
				}
				if cmd.Bool("sync") {
					if err := st.Service.Sync(ctx); err != nil {
						return err
					}
					st.Logger.Info("catalog synced")
					return nil
				}
				if !rep.Clean() {
					return fmt.Errorf("verify: volume differs from catalog")
				}
				return nil
			}),
		},
	}
}

func readInput(from string) ([]byte, error) {
	if from == "" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(from)
}
