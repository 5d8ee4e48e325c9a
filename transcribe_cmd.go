package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrator/internal/observe"
	"github.com/dgnsrekt/narrator/tts"
	"github.com/dgnsrekt/narrator/tts/asr"
)

var (
	transcribeCopy bool

	transcribeCmd = &cobra.Command{
		Use:   "transcribe [FILE]",
		Short: "Turn speech into text",
		Long: paragraph(fmt.Sprintf("\n%s an audio file, or record from the microphone until Enter is pressed, "+
			"and print the text.", keyword("Transcribe"))),
		Example: paragraph("narrator transcribe\nnarrator transcribe memo.m4a\nnarrator transcribe --copy"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runTranscribe,
	}
)

func init() {
	transcribeCmd.Flags().BoolVarP(&transcribeCopy, "copy", "c", false, "copy the text to the clipboard")
}

func runTranscribe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	t, err := asr.NewFromConfig(cfg.OpenAI, cfg.ASR, observe.DefaultMetrics())
	if err != nil {
		return err
	}

	var (
		audio []byte
		name  = asr.RecordingName
	)
	if len(args) == 1 {
		p, err := homedir.Expand(args[0])
		if err != nil {
			return fmt.Errorf("unable to expand path: %w", err)
		}
		audio, err = os.ReadFile(p)
		if err != nil {
			return fmt.Errorf("unable to read file: %w", err)
		}
		name = filepath.Base(p)
	} else {
		audio, err = record(cmd.Context(), cfg.ASR)
		if err != nil {
			return err
		}
	}

	text, err := t.Transcribe(cmd.Context(), audio, name)
	if err != nil {
		return err
	}
	fmt.Println(text)

	if transcribeCopy {
		if err := clipboard.WriteAll(text); err != nil {
			log.Warn("Could not copy to clipboard", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, faint("Copied to clipboard."))
		}
	}
	return nil
}

// record captures microphone audio until Enter, an interrupt, or the
// maximum duration.
func record(ctx context.Context, cfg tts.ASRConfig) ([]byte, error) {
	rec, err := asr.NewRecorder(cfg)
	if err != nil {
		return nil, err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		_, _ = bufio.NewReader(os.Stdin).ReadString('\n')
		cancel()
	}()

	fmt.Fprintln(os.Stderr, keyword("Recording.")+" "+faint("Press Enter to finish (limit "+cfg.MaxDuration.String()+")."))
	return rec.Record(ctx)
}
