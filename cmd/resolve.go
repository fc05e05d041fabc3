package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"hostbridge/pkg/config"
	"hostbridge/pkg/content"
	"hostbridge/pkg/logger"
	"hostbridge/pkg/resource"
)

var resolveContentRoot string

var resolveCmd = &cobra.Command{
	Use:   "resolve <path>",
	Short: "Show how the app scheme resolves a path",
	Long:  "Resolves a path the way the app scheme handler would and prints the status, content type and length, or the failure.",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		cfg, err := config.LoadConfig()
		if err != nil {
			fmt.Printf("failed to load config: %v\n", err)
			return
		}
		if value := strings.TrimSpace(resolveContentRoot); value != "" {
			cfg.App.ContentRoot = value
		}

		if err := resolveResource(cmd.Context(), cfg.App, args[0], cmd.OutOrStdout()); err != nil {
			fmt.Fprintf(cmd.ErrOrStderr(), "%v\n", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
	resolveCmd.Flags().StringVar(&resolveContentRoot, "content-root", "", "directory the app scheme serves (default from config)")
}

// resolveResource serves target through a resource server and writes a
// summary to w. Paths may be given bare ("css/site.css", "/") or as full
// app URIs.
func resolveResource(ctx context.Context, app config.AppConfig, target string, w io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}

	provider, err := content.NewDirProvider(app.ContentRoot)
	if err != nil {
		return fmt.Errorf("open content root: %w", err)
	}

	req, err := virtualRequest(app, target)
	if err != nil {
		return err
	}

	server := resource.NewServer(app, provider, logger.Discard())
	resp, serveErr := server.Serve(ctx, req)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "uri:\t%s\n", req.URI)

	var resourceErr *resource.ResourceError
	var mismatch *resource.SchemeMismatchError
	switch {
	case serveErr == nil:
		fmt.Fprintf(tw, "status:\t%d\n", resp.StatusCode)
		fmt.Fprintf(tw, "content-type:\t%s\n", resp.Headers["Content-Type"])
		fmt.Fprintf(tw, "length:\t%d\n", resp.Length)
		fmt.Fprintf(tw, "cache-control:\t%s\n", resp.Headers["Cache-Control"])
	case errors.As(serveErr, &resourceErr):
		fmt.Fprintf(tw, "status:\t%d\n", resourceErr.StatusCode)
		fmt.Fprintf(tw, "error:\t%s\n", resourceErr.Message)
	case errors.As(serveErr, &mismatch):
		fmt.Fprintf(tw, "error:\t%s\n", mismatch.Error())
	default:
		fmt.Fprintf(tw, "error:\t%s\n", serveErr.Error())
	}

	return tw.Flush()
}

func virtualRequest(app config.AppConfig, target string) (resource.VirtualRequest, error) {
	base, err := url.Parse(app.BaseURI())
	if err != nil {
		return resource.VirtualRequest{}, fmt.Errorf("parse base uri: %w", err)
	}

	ref, err := url.Parse(strings.TrimSpace(target))
	if err != nil {
		return resource.VirtualRequest{}, fmt.Errorf("parse path %q: %w", target, err)
	}
	if !ref.IsAbs() && !strings.HasPrefix(ref.Path, "/") {
		ref.Path = "/" + ref.Path
	}

	resolved := base.ResolveReference(ref)
	path := resolved.EscapedPath()
	if path == "" {
		path = "/"
	}

	return resource.VirtualRequest{Scheme: resolved.Scheme, Path: path, URI: resolved.String()}, nil
}
