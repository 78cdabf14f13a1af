package main

import (
	"fmt"
	"mime"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/verseforge/songdub/gateway"
	"github.com/verseforge/songdub/logger"
	"github.com/verseforge/songdub/media"
	"github.com/verseforge/songdub/session"
)

var dubCmd = &cobra.Command{
	Use:   "dub <file>",
	Short: "Dub one song from the command line",
	Long: `Run the full dubbing workflow on a local audio file without starting the
HTTP service: analyze, translate, synthesize, and write the dubbed WAV next
to the input file.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDub(cmd, args[0])
	},
}

func init() {
	rootCmd.AddCommand(dubCmd)

	dubCmd.Flags().StringP("target", "t", "", "Target language (default from config)")
	dubCmd.Flags().StringP("out", "o", "", "Output file path (default <input>.dubbed.wav)")
}

func runDub(cmd *cobra.Command, path string) error {
	cfg, err := loadServiceConfig(cmd)
	if err != nil {
		return err
	}
	logger.SetLevel(logger.ParseLevel(cfg.LogLevel))

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read input file: %w", err)
	}
	mimeType := mime.TypeByExtension(filepath.Ext(path))
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	gw, err := gateway.New(cfg.GatewayClientConfig())
	if err != nil {
		return err
	}
	defer gw.Close()

	store := media.NewStore()
	orc := session.NewOrchestrator(gw, store, cfg.SessionClientConfig())

	ctx := cmd.Context()
	if err := orc.SelectFile(filepath.Base(path), mimeType, data); err != nil {
		return err
	}
	if err := orc.StartAnalysis(ctx); err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	snap := orc.Snapshot()
	fmt.Printf("Detected: %s, %s, %.0f BPM, %d lyric lines\n",
		snap.Analysis.Language, snap.Analysis.Genre, snap.Analysis.BPM, len(snap.Analysis.Lyrics))

	if target, _ := cmd.Flags().GetString("target"); target != "" {
		if err := orc.SelectTargetLanguage(target); err != nil {
			return err
		}
	}
	if err := orc.StartTranslation(ctx); err != nil {
		return fmt.Errorf("translation failed: %w", err)
	}
	if err := orc.StartSynthesis(ctx); err != nil {
		return fmt.Errorf("synthesis failed: %w", err)
	}

	handle, _, ok := orc.Dubbed()
	if !ok {
		return fmt.Errorf("no dubbed track produced")
	}
	audio, _, err := store.Get(handle.ID)
	if err != nil {
		return err
	}

	out, _ := cmd.Flags().GetString("out")
	if out == "" {
		out = strings.TrimSuffix(path, filepath.Ext(path)) + ".dubbed.wav"
	}
	if err := os.WriteFile(out, audio, 0o644); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	fmt.Printf("Wrote %s (%d bytes)\n", out, len(audio))
	return nil
}
