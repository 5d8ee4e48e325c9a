package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/glamour/styles"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/dgnsrekt/narrator/tts/segment"
)

var (
	segmentsChunks bool
	segmentsTitle  string
	segmentsTarget time.Duration
	segmentsWidth  uint

	segmentsCmd = &cobra.Command{
		Use:   "segments [FILE|-]",
		Short: "Show how a script will be narrated",
		Long: paragraph(fmt.Sprintf("\n%s the titled segments of a script with their timing. "+
			"With --chunks, print the requests sent to the speech backend instead.", keyword("List"))),
		Example: paragraph("narrator segments script.md\nnarrator segments --chunks script.md"),
		Args:    cobra.MaximumNArgs(1),
		RunE:    runSegments,
	}
)

func init() {
	segmentsCmd.Flags().BoolVar(&segmentsChunks, "chunks", false, "print speech chunks instead of segments")
	segmentsCmd.Flags().StringVar(&segmentsTitle, "title", "", "narration title")
	segmentsCmd.Flags().DurationVar(&segmentsTarget, "duration", 0, "intended length of the narration")
	segmentsCmd.Flags().UintVarP(&segmentsWidth, "width", "w", 0, "word-wrap at width (0 uses the terminal width)")
}

func runSegments(_ *cobra.Command, args []string) error {
	src, err := sourceFromArgs(args)
	if err != nil {
		return err
	}
	script, err := src.script(segmentsTitle, segmentsTarget)
	if err != nil {
		return err
	}

	isTerminal := term.IsTerminal(int(os.Stdout.Fd())) //nolint:gosec
	width := int(segmentsWidth)                         //nolint:gosec
	if width == 0 {
		width = 80
		if isTerminal {
			if w, _, err := term.GetSize(int(os.Stdout.Fd())); err == nil { //nolint:gosec
				width = w
			}
		}
	}

	if segmentsChunks {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		chunks, err := segment.ForSpeech(script.Text, cfg.MaxChunkLength)
		if err != nil {
			return err
		}
		return writeChunks(os.Stdout, chunks, width)
	}

	segments, err := segment.ForDisplay(script)
	if err != nil {
		return err
	}

	style := glamour.WithAutoStyle()
	if !isTerminal {
		style = glamour.WithStandardStyle(styles.NoTTYStyle)
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithColorProfile(lipgloss.ColorProfile()),
		style,
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return fmt.Errorf("unable to create renderer: %w", err)
	}
	out, err := r.Render(segmentsMarkdown(script.Title, segments))
	if err != nil {
		return fmt.Errorf("unable to render markdown: %w", err)
	}
	_, err = fmt.Fprint(os.Stdout, out)
	return err
}

// segmentsMarkdown lists segments as a markdown document.
func segmentsMarkdown(title string, segments []segment.Segment) string {
	var b strings.Builder
	if title != "" {
		fmt.Fprintf(&b, "# %s\n\n", title)
	}
	total := segment.TotalEstimate(segments)
	fmt.Fprintf(&b, "%d segments, about %s\n\n", len(segments), clock(total))
	for _, s := range segments {
		label := s.Label
		if s.Annotated {
			label += ", annotated"
		}
		fmt.Fprintf(&b, "## %d. %s\n\n*%s at %s*\n\n", s.Index+1, s.Title, label, clock(s.Start))
		if preview := firstLine(s.Content); preview != "" {
			fmt.Fprintf(&b, "%s\n\n", preview)
		}
	}
	return b.String()
}

// writeChunks prints each speech chunk wrapped and indented under its
// header.
func writeChunks(w io.Writer, chunks []segment.Chunk, width int) error {
	for _, c := range chunks {
		header := fmt.Sprintf("%s %s", keyword(fmt.Sprintf("chunk %d/%d", c.Index+1, len(chunks))),
			faint(fmt.Sprintf("%d chars", len(c.Text))))
		body := indent.String(wordwrap.String(c.Text, max(width-4, 20)), 2)
		if _, err := fmt.Fprintf(w, "%s\n%s\n\n", header, body); err != nil {
			return err
		}
	}
	return nil
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	return s
}

// clock formats d as m:ss.
func clock(d time.Duration) string {
	d = d.Round(time.Second)
	return fmt.Sprintf("%d:%02d", int(d.Minutes()), int(d.Seconds())%60)
}
