/*
Copyright © 2025 blacktop

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"github.com/blacktop/xshare/internal/config"
	"github.com/blacktop/xshare/internal/logutil"
	"github.com/blacktop/xshare/internal/telemetry"
	"github.com/blacktop/xshare/internal/xpost"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/term"
)

type options struct {
	message    string
	user       string
	imagePath  string
	imageAlt   string
	link       string
	networks   []string
	configPath string
	dryRun     bool
	verbose    bool
}

const defaultAltText = "Image attached via xshare"

// Execute runs the root command.
func Execute() error {
	return newRootCommand().Execute()
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:   "xshare [message]",
		Short: "Share a post to social networks",
		Long: "xshare publishes a single post (text, image, link) as a user or page to Facebook, " +
			"Twitter/X, Mastodon, and Bluesky. Accounts and application keys are read from the " +
			"config file and XSHARE_* environment variables.",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, opts)
		},
		Example: `  xshare --network facebook --user 123 --message "hello world" --image ./shot.png
  xshare "Ship it!" --user alice --network twitter --link https://example.com
  echo "Release shipped" | xshare --user 456 --network facebook`,
	}

	cmd.Flags().StringVarP(&opts.message, "message", "m", "", "Message text to post")
	cmd.Flags().StringVarP(&opts.user, "user", "u", "", "User or page identity to post as")
	cmd.Flags().StringVar(&opts.imagePath, "image", "", "Path or file:// URI of an image to attach")
	cmd.Flags().StringVar(&opts.imageAlt, "alt-text", "", "Alternative text to describe the image")
	cmd.Flags().StringVar(&opts.link, "link", "", "Link to attach")
	cmd.Flags().StringSliceVarP(&opts.networks, "network", "n", []string{"facebook"}, "Networks to post to (facebook, twitter, mastodon, bluesky, or all)")
	cmd.Flags().StringVarP(&opts.configPath, "config", "c", "", "Config file (default "+config.DefaultPath()+")")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "Print actions without posting")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "V", false, "Enable debug logging")
	cmd.Flags().SortFlags = false

	cmd.AddCommand(newCompletionCommand())

	return cmd
}

func run(cmd *cobra.Command, args []string, opts *options) error {
	logutil.SetVerbose(opts.verbose)

	message, err := resolveMessage(cmd, args, opts)
	if err != nil {
		return err
	}

	networks, err := normalizeNetworks(opts.networks)
	if err != nil {
		return err
	}

	params := map[string]string{
		xpost.KeyUser:    strings.TrimSpace(opts.user),
		xpost.KeyMessage: message,
		xpost.KeyImage:   strings.TrimSpace(opts.imagePath),
		xpost.KeyAlt:     strings.TrimSpace(opts.imageAlt),
		xpost.KeyLink:    strings.TrimSpace(opts.link),
	}
	if params[xpost.KeyAlt] == "" && params[xpost.KeyImage] != "" {
		params[xpost.KeyAlt] = defaultAltText
	}
	req, err := xpost.RequestFromParams(params)
	if err != nil {
		return err
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}

	if opts.dryRun {
		printDryRun(cmd.OutOrStdout(), networks, req)
		return nil
	}

	adapters, err := buildAdapters(req, networks, cfg)
	if err != nil {
		return err
	}

	provider, err := telemetry.NewProvider(cmd.Context(), telemetry.TracingConfig{
		Enabled:    cfg.Tracing.Enabled,
		Exporter:   cfg.Tracing.Exporter,
		Endpoint:   cfg.Tracing.Endpoint,
		Insecure:   cfg.Tracing.Insecure,
		SampleRate: cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := provider.Shutdown(context.WithoutCancel(cmd.Context())); err != nil {
			logutil.Warnf("flush traces: %v", err)
		}
	}()

	ctx, cancel := context.WithTimeout(cmd.Context(), cfg.Timeout)
	defer cancel()
	return dispatch(ctx, adapters, cmd.OutOrStdout(), provider.Tracer())
}

func resolveMessage(cmd *cobra.Command, args []string, opts *options) (string, error) {
	message := opts.message

	if len(args) > 0 {
		if message != "" {
			return "", errors.New("provide the message either as an argument or with --message, not both")
		}
		message = strings.Join(args, " ")
	}

	if message != "" {
		return strings.TrimSpace(message), nil
	}

	if file, ok := cmd.InOrStdin().(*os.File); ok && !term.IsTerminal(int(file.Fd())) {
		data, err := io.ReadAll(file)
		if err != nil {
			return "", fmt.Errorf("read stdin: %w", err)
		}
		message = strings.TrimSpace(string(data))
	}

	return message, nil
}

func normalizeNetworks(values []string) ([]string, error) {
	result := make([]string, 0, len(values))
	seen := map[string]struct{}{}
	for _, raw := range values {
		raw = strings.TrimSpace(strings.ToLower(raw))
		if raw == "" {
			continue
		}
		if raw == "all" {
			return sortedNetworks(supportedNetworks()), nil
		}
		if _, ok := constructors[raw]; !ok {
			return nil, fmt.Errorf("unsupported network %q", raw)
		}
		if _, ok := seen[raw]; ok {
			continue
		}
		seen[raw] = struct{}{}
		result = append(result, raw)
	}

	if len(result) == 0 {
		return nil, errors.New("no networks selected")
	}

	return sortedNetworks(result), nil
}

func sortedNetworks(networks []string) []string {
	out := append([]string(nil), networks...)
	sort.Strings(out)
	return out
}

func printDryRun(out io.Writer, networks []string, req *xpost.Request) {
	for _, network := range networks {
		fmt.Fprintf(out, "[dry-run] would post to %s as %s: %q\n", network, req.User, req.Message)
	}
	if req.HasImage() {
		fmt.Fprintf(out, "[dry-run] image: %s (alt: %q)\n", req.Image, req.ImageAlt)
	}
	if req.HasLink() {
		fmt.Fprintf(out, "[dry-run] link: %s\n", req.Link)
	}
}

// dispatch starts every adapter and waits for their outcomes. Listener
// callbacks run on the calling goroutine through a Loop. Each share runs
// inside its own span, so reports of unexpected failures land on it.
func dispatch(ctx context.Context, adapters []xpost.Adapter, out io.Writer, tracer trace.Tracer) error {
	loop := xpost.NewLoop(len(adapters))
	defer loop.Close()
	pending := len(adapters)
	open := make(map[string]trace.Span, len(adapters))
	var errs []error

	done := func(name string) {
		if span, ok := open[name]; ok {
			span.End()
			delete(open, name)
		}
		pending--
		if pending == 0 {
			loop.Close()
		}
	}

	for _, adapter := range adapters {
		name := adapter.Name()
		shareCtx, span := tracer.Start(ctx, "share "+name, trace.WithAttributes(attribute.String("xshare.network", name)))
		open[name] = span
		adapter.SetListener(xpost.ListenerFuncs{
			Started: func() {
				fmt.Fprintf(out, "posting to %s...\n", name)
			},
			Shared: func(postID string) {
				fmt.Fprintf(out, "posted to %s (id %s)\n", name, postID)
				span.SetAttributes(attribute.String("xshare.post_id", postID))
				span.SetStatus(codes.Ok, "")
				done(name)
			},
			Error: func(message string) {
				errs = append(errs, fmt.Errorf("%s: %s", name, message))
				span.SetStatus(codes.Error, message)
				done(name)
			},
		}, loop)
		adapter.ShareAsync(shareCtx)
	}

	if err := loop.Run(ctx); err != nil {
		errs = append(errs, fmt.Errorf("waiting for %d share(s): %w", pending, err))
		for _, span := range open {
			span.SetStatus(codes.Error, err.Error())
			span.End()
		}
	}
	return errors.Join(errs...)
}
