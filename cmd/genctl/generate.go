package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"genjobs/internal/bootstrap"
	"genjobs/internal/domain"
	"genjobs/internal/infra"
)

func loadServices(ctx context.Context, cmdName string) (*bootstrap.Services, error) {
	cfg, err := infra.LoadConfig()
	if err != nil {
		return nil, err
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("cmd", cmdName).Logger()
	return bootstrap.Build(ctx, cfg, logger)
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "Show the provider catalogue and which entries are configured",
		RunE: func(cmd *cobra.Command, args []string) error {
			services, err := loadServices(cmd.Context(), "providers")
			if err != nil {
				return err
			}
			defer services.Close()

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tKINDS\tTRANSPORT\tCONFIGURED")
			for _, d := range services.Registry.All() {
				kinds := make([]string, 0, len(d.MediaKinds))
				for _, k := range d.MediaKinds {
					kinds = append(kinds, string(k))
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%t\n", d.ID, strings.Join(kinds, ","), d.Transport, d.Configured)
			}
			return w.Flush()
		},
	}
}

func generateCmd() *cobra.Command {
	var (
		kind, prompt, sourceImage, style, caller string
		width, height, steps                     int
		preferred                                []string
	)

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run one generation through the orchestrator",
		Long: `Run one generation through the orchestrator with the same admission,
fallback and timeout rules as the API.

Examples:
  genctl generate --kind image --prompt "a lighthouse at dusk" --width 1024 --height 768
  genctl generate --kind llm-text --prompt "summarise GPU pricing" --provider replicate-llama`,
		RunE: func(cmd *cobra.Command, args []string) error {
			mediaKind, err := domain.ParseMediaKind(kind)
			if err != nil {
				return err
			}
			req := domain.GenerationRequest{
				Kind:                   mediaKind,
				Prompt:                 prompt,
				SourceImageReference:   sourceImage,
				Dimensions:             domain.Dimensions{Width: width, Height: height},
				StyleHint:              style,
				PreferredProviderOrder: preferred,
			}
			if steps > 0 {
				req.Quality.Steps = &steps
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			services, err := loadServices(ctx, "generate")
			if err != nil {
				return err
			}
			defer services.Close()

			result, err := services.Orchestrator.Generate(ctx, req, caller)
			if err != nil {
				var oe *domain.OrchestrationError
				if errors.As(err, &oe) {
					enc := json.NewEncoder(cmd.ErrOrStderr())
					enc.SetIndent("", "  ")
					_ = enc.Encode(oe)
				}
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(result)
		},
	}
	cmd.Flags().StringVar(&kind, "kind", "image", "media kind (image, video, audio, llm-text, embedding)")
	cmd.Flags().StringVar(&prompt, "prompt", "", "prompt text")
	cmd.Flags().StringVar(&sourceImage, "source-image", "", "source image URL or data URI")
	cmd.Flags().StringVar(&style, "style", "", "style hint")
	cmd.Flags().StringVar(&caller, "caller", "genctl", "caller id charged for admission")
	cmd.Flags().IntVar(&width, "width", 0, "output width")
	cmd.Flags().IntVar(&height, "height", 0, "output height")
	cmd.Flags().IntVar(&steps, "steps", 0, "inference steps")
	cmd.Flags().StringSliceVar(&preferred, "provider", nil, "preferred provider ids in order")
	return cmd
}
