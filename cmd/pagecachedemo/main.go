// Command pagecachedemo exercises pagecache.Engine end to end against a
// real file on disk. It is wiring only: every subcommand opens a
// fresh engine, performs one operation through the public CacheEngine
// surface, flushes, and exits -- there is no daemon and no cache state
// that survives a process.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	"github.com/coldstore/pagecache"
	"github.com/coldstore/pagecache/pclog"
	"github.com/coldstore/pagecache/policy"
)

var (
	useColor = isatty.IsTerminal(os.Stdout.Fd())
	ok       = maybeColor(color.New(color.FgGreen, color.Bold).SprintFunc())
	bad      = maybeColor(color.New(color.FgRed, color.Bold).SprintFunc())
	info     = maybeColor(color.New(color.FgCyan).SprintFunc())
)

func maybeColor(f func(a ...interface{}) string) func(a ...interface{}) string {
	if useColor {
		return f
	}
	return fmt.Sprint
}

func parsePolicy(name string) (policy.Kind, error) {
	switch name {
	case "", "lru":
		return policy.LRU, nil
	case "fifo":
		return policy.FIFO, nil
	case "permanent":
		return policy.Permanent, nil
	default:
		return 0, fmt.Errorf("unknown policy %q (want lru, fifo or permanent)", name)
	}
}

func newEngine(ctx *cli.Context) *pagecache.Engine {
	log := logrus.New()
	log.SetFormatter(pclog.New())
	if ctx.GlobalBool("debug") {
		log.SetLevel(logrus.DebugLevel)
	}

	return pagecache.New(pagecache.Options{
		CacheSize: ctx.GlobalInt("cache-size"),
		Logger:    log,
	})
}

func withSource(ctx *cli.Context, path string, mode int, pol policy.Kind, fn func(e *pagecache.Engine, h pagecache.Handle) error) error {
	e := newEngine(ctx)
	defer e.Shutdown()

	src, err := openFileSource(path, mode)
	if err != nil {
		return err
	}

	h, err := e.Open(path, src, mode, pol)
	if err != nil {
		return err
	}

	if runErr := fn(e, h); runErr != nil {
		e.Close(h)
		return runErr
	}

	if err := e.Flush(h); err != nil {
		return err
	}
	return e.Close(h)
}

func statLine(e *pagecache.Engine, h pagecache.Handle, path string) string {
	length, _ := e.GetLen(h)
	cached, _ := e.CachedPageCount(h)
	eof, _ := e.EofReached(h)
	pages, step := e.Stats()

	return fmt.Sprintf(
		"%s  size=%s  cached_pages=%d  eof=%v  pool_occupancy=%d  step=%d",
		info(path), humanize.Bytes(uint64(length)), cached, eof, pages, step,
	)
}

func main() {
	app := cli.NewApp()
	app.Name = "pagecachedemo"
	app.Usage = "drive a pagecache.Engine against a real file"
	app.Flags = []cli.Flag{
		cli.IntFlag{
			Name:  "cache-size",
			Usage: "number of frames in the pool (0 = engine default)",
		},
		cli.BoolFlag{
			Name:  "debug",
			Usage: "enable debug-level logging",
		},
		cli.StringFlag{
			Name:  "policy",
			Usage: "replacement policy: lru, fifo or permanent",
			Value: "lru",
		},
	}

	app.Commands = []cli.Command{
		{
			Name:      "stat",
			Usage:     "open a file and print its cache status",
			ArgsUsage: "<path>",
			Action: func(ctx *cli.Context) error {
				if ctx.NArg() < 1 {
					return cli.NewExitError("stat needs a path", 1)
				}
				pol, err := parsePolicy(ctx.GlobalString("policy"))
				if err != nil {
					return err
				}
				return withSource(ctx, ctx.Args().Get(0), pagecache.ModeRead, pol, func(e *pagecache.Engine, h pagecache.Handle) error {
					fmt.Println(ok("ok"), statLine(e, h, ctx.Args().Get(0)))
					return nil
				})
			},
		},
		{
			Name:      "read",
			Usage:     "read length bytes at offset and print them",
			ArgsUsage: "<path> <offset> <length>",
			Action: func(ctx *cli.Context) error {
				if ctx.NArg() < 3 {
					return cli.NewExitError("read needs <path> <offset> <length>", 1)
				}
				path := ctx.Args().Get(0)
				offset, err := strconv.ParseInt(ctx.Args().Get(1), 10, 64)
				if err != nil {
					return err
				}
				length, err := strconv.Atoi(ctx.Args().Get(2))
				if err != nil {
					return err
				}

				pol, err := parsePolicy(ctx.GlobalString("policy"))
				if err != nil {
					return err
				}

				return withSource(ctx, path, pagecache.ModeRead, pol, func(e *pagecache.Engine, h pagecache.Handle) error {
					if _, err := e.Seek(h, offset, io.SeekStart); err != nil {
						return err
					}
					buf := make([]byte, length)
					n, err := e.Read(h, buf)
					if err != nil && err != io.EOF {
						return err
					}
					fmt.Println(ok("ok"), fmt.Sprintf("read %d bytes:", n))
					os.Stdout.Write(buf[:n])
					fmt.Println()
					return nil
				})
			},
		},
		{
			Name:      "write",
			Usage:     "write data at offset",
			ArgsUsage: "<path> <offset> <data>",
			Action: func(ctx *cli.Context) error {
				if ctx.NArg() < 3 {
					return cli.NewExitError("write needs <path> <offset> <data>", 1)
				}
				path := ctx.Args().Get(0)
				offset, err := strconv.ParseInt(ctx.Args().Get(1), 10, 64)
				if err != nil {
					return err
				}
				data := []byte(ctx.Args().Get(2))

				pol, err := parsePolicy(ctx.GlobalString("policy"))
				if err != nil {
					return err
				}

				return withSource(ctx, path, pagecache.ModeReadWrite, pol, func(e *pagecache.Engine, h pagecache.Handle) error {
					if _, err := e.Seek(h, offset, io.SeekStart); err != nil {
						return err
					}
					n, err := e.Write(h, data)
					if err != nil {
						return err
					}
					fmt.Println(ok("ok"), fmt.Sprintf("wrote %s", humanize.Bytes(uint64(n))))
					return nil
				})
			},
		},
		{
			Name:      "seek",
			Usage:     "seek to offset and print the resulting position",
			ArgsUsage: "<path> <offset> [whence]",
			Action: func(ctx *cli.Context) error {
				if ctx.NArg() < 2 {
					return cli.NewExitError("seek needs <path> <offset> [start|current|end]", 1)
				}
				path := ctx.Args().Get(0)
				offset, err := strconv.ParseInt(ctx.Args().Get(1), 10, 64)
				if err != nil {
					return err
				}
				whence := io.SeekStart
				switch ctx.Args().Get(2) {
				case "", "start":
					whence = io.SeekStart
				case "current":
					whence = io.SeekCurrent
				case "end":
					whence = io.SeekEnd
				default:
					return fmt.Errorf("unknown whence %q", ctx.Args().Get(2))
				}

				pol, err := parsePolicy(ctx.GlobalString("policy"))
				if err != nil {
					return err
				}

				return withSource(ctx, path, pagecache.ModeRead, pol, func(e *pagecache.Engine, h pagecache.Handle) error {
					pos, err := e.Seek(h, offset, whence)
					if err != nil {
						return err
					}
					fmt.Println(ok("ok"), fmt.Sprintf("position is now %d", pos))
					return nil
				})
			},
		},
		{
			Name:      "flush",
			Usage:     "open, flush any dirty pages and report status",
			ArgsUsage: "<path>",
			Action: func(ctx *cli.Context) error {
				if ctx.NArg() < 1 {
					return cli.NewExitError("flush needs a path", 1)
				}
				pol, err := parsePolicy(ctx.GlobalString("policy"))
				if err != nil {
					return err
				}
				return withSource(ctx, ctx.Args().Get(0), pagecache.ModeReadWrite, pol, func(e *pagecache.Engine, h pagecache.Handle) error {
					fmt.Println(ok("ok"), statLine(e, h, ctx.Args().Get(0)))
					return nil
				})
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, bad("error:"), err)
		os.Exit(1)
	}
}
