package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"pkt.systems/browserx/internal/version"
)

func newVersionCmd() *cobra.Command {
	var verbose bool
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		RunE: func(cmd *cobra.Command, args []string) error {
			info := version.Read()
			out := cmd.OutOrStdout()
			if _, err := fmt.Fprintf(out, "%s %s\n", info.Module, info.Version); err != nil {
				return err
			}
			if !verbose {
				return nil
			}
			if info.Revision != "" {
				_, _ = fmt.Fprintf(out, "revision %s dirty=%t\n", info.Revision, info.Dirty)
			}
			if info.GoVersion != "" {
				_, _ = fmt.Fprintf(out, "go %s\n", info.GoVersion)
			}
			for _, path := range []string{"github.com/chromedp/chromedp", "github.com/chromedp/cdproto"} {
				if v, ok := info.Deps[path]; ok {
					_, _ = fmt.Fprintf(out, "%s %s\n", path, v)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "include vcs, go, and chrome driver versions")
	return cmd
}
