package main

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/danmuck/vimctl/internal/editor"
	"github.com/spf13/cobra"
)

// oneShot connects, runs fn on the event loop and disconnects.
func oneShot(cmd *cobra.Command, opts *rootOptions, fn func(c *editor.Client) error) error {
	cfg, err := opts.loadConfig()
	if err != nil {
		return err
	}
	a, err := connect(cfg, editor.Options{}, nil)
	if err != nil {
		return err
	}
	defer a.close()

	var runErr error
	if err := a.do(cmd.Context(), func(c *editor.Client) { runErr = fn(c) }); err != nil {
		return err
	}
	return runErr
}

func newKeysCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "keys <server> <keys>",
		Short: "Send raw keys to a server",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			keys := strings.Join(args[1:], " ")
			return oneShot(cmd, opts, func(c *editor.Client) error {
				return requireSent(c.SendKeys(args[0], keys), args[0])
			})
		},
	}
}

func newExCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "ex <server> <command>",
		Short: "Run an ex command on a server",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			command := strings.Join(args[1:], " ")
			return oneShot(cmd, opts, func(c *editor.Client) error {
				return requireSent(c.SendEx(args[0], command), args[0])
			})
		},
	}
}

func newOpenCmd(opts *rootOptions) *cobra.Command {
	var preview bool
	cmd := &cobra.Command{
		Use:   "open <server> <path>",
		Short: "Open a file on a server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := filepath.Abs(args[1])
			if err != nil {
				return fmt.Errorf("resolve %s: %w", args[1], err)
			}
			return oneShot(cmd, opts, func(c *editor.Client) error {
				if preview {
					return requireSent(c.PreviewFile(args[0], path), args[0])
				}
				return requireSent(c.OpenFile(args[0], path), args[0])
			})
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "open in the preview window")
	return cmd
}

func newExprCmd(opts *rootOptions) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "expr <server> <expression>",
		Short: "Evaluate an expression on a server and print the result",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			expr := strings.Join(args[1:], " ")
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			if timeout <= 0 {
				timeout = cfg.AdminExprTimeout
			}
			a, err := connect(cfg, editor.Options{}, nil)
			if err != nil {
				return err
			}
			defer a.close()

			result := make(chan string, 1)
			var (
				serial int
				sent   bool
			)
			if err := a.do(cmd.Context(), func(c *editor.Client) {
				serial, sent = c.SendExpr(args[0], expr, func(r string) { result <- r })
			}); err != nil {
				return err
			}
			if err := requireSent(sent, args[0]); err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			select {
			case r := <-result:
				_, err := fmt.Fprintln(cmd.OutOrStdout(), r)
				return err
			case <-ctx.Done():
				_ = a.do(context.Background(), func(c *editor.Client) { c.Drop(serial) })
				return fmt.Errorf("no reply from %q within %s", args[0], timeout)
			}
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "reply deadline (defaults to admin_expr_timeout)")
	return cmd
}
