package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-runewidth"
	"github.com/spf13/cobra"

	"github.com/dgnsrekt/narrator/tts"
	"github.com/dgnsrekt/narrator/tts/engines/local"
	"github.com/dgnsrekt/narrator/tts/engines/mock"
	"github.com/dgnsrekt/narrator/tts/engines/openai"
)

var voicesCmd = &cobra.Command{
	Use:   "voices [QUERY]",
	Short: "List the voices of the configured backends",
	Long: paragraph(fmt.Sprintf("\n%s the voices offered by the primary and fallback backends. "+
		"The voice picked automatically for local speech is marked with *. "+
		"With a query, show the voice a --voice flag would resolve to.", keyword("List"))),
	Example: paragraph("narrator voices\nnarrator voices --backend local\nnarrator voices saman"),
	Args:    cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		names := []string{cfg.Backend}
		if cfg.Fallback != tts.BackendNone {
			names = append(names, cfg.Fallback)
		}

		for _, name := range names {
			voices, err := backendVoices(cmd.Context(), name, cfg)
			if err != nil {
				fmt.Fprintln(os.Stderr, errorStyle(fmt.Sprintf("%s: %v", name, err)))
				continue
			}
			if len(args) == 1 {
				v, err := tts.MatchVoice(voices, args[0])
				if err != nil {
					fmt.Printf("%s %s\n", keyword(name), faint("no match"))
					continue
				}
				fmt.Printf("%s %s\n", keyword(name), formatVoice(v))
				continue
			}

			var picked string
			if name == tts.BackendLocal {
				if v, ok := tts.SelectVoice(voices, tts.DefaultVoicePreferences); ok {
					picked = v.ID
				}
			}
			writeVoices(os.Stdout, name, voices, picked)
		}
		return nil
	},
}

// backendVoices lists the voices of the named backend.
func backendVoices(ctx context.Context, name string, cfg tts.Config) ([]tts.Voice, error) {
	switch name {
	case tts.BackendOpenAI:
		return openai.Voices(), nil
	case tts.BackendLocal:
		lb, err := local.New(cfg.Local)
		if err != nil {
			return nil, err
		}
		return lb.Voices(ctx)
	case tts.BackendMock:
		return mock.New(tts.BackendMock).Voices(), nil
	default:
		return nil, fmt.Errorf("unknown backend %q", name)
	}
}

func writeVoices(w io.Writer, backend string, voices []tts.Voice, picked string) {
	fmt.Fprintf(w, "%s %s\n", keyword(backend), faint(fmt.Sprintf("%d voices", len(voices))))
	if len(voices) == 0 {
		fmt.Fprintln(w, faint("  the platform default voice is used"))
	}
	for _, v := range voices {
		mark := " "
		if v.ID == picked {
			mark = "*"
		}
		fmt.Fprintf(w, " %s %s\n", mark, formatVoice(v))
	}
	fmt.Fprintln(w)
}

func formatVoice(v tts.Voice) string {
	s := runewidth.FillRight(runewidth.Truncate(v.Name, 24, "…"), 24)
	s += " " + runewidth.FillRight(v.Language, 8)
	if v.Gender != "" {
		s += " " + faint(v.Gender)
	}
	if v.ID != v.Name {
		s += " " + faint(v.ID)
	}
	return s
}
