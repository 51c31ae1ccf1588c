package main

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dgallion1/mindmapd/internal/events"
	"github.com/dgallion1/mindmapd/internal/llm"
	"github.com/dgallion1/mindmapd/internal/mindmap"
	"github.com/dgallion1/mindmapd/internal/parser"
	"github.com/dgallion1/mindmapd/internal/pipeline"
)

var (
	genFile     string
	genMarkdown bool
	genStream   bool
	genDepth    int
	genTitle    string
)

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate a mind map from a file or stdin",
	Long: `Generate reads text from --file or stdin. By default it builds a structured
document tree and prints it; --markdown prints a Markdown mind map instead.
Markdown, HTML, DOCX and PDF files are parsed before generation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return generate(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	f := generateCmd.Flags()
	f.StringVarP(&genFile, "file", "f", "", "Input file (default stdin)")
	f.BoolVar(&genMarkdown, "markdown", false, "Print a Markdown mind map instead of a document tree")
	f.BoolVar(&genStream, "stream", false, "Print progress and tokens as they arrive")
	f.IntVar(&genDepth, "depth", 0, "Maximum tree depth, 1-5 (default 3)")
	f.StringVar(&genTitle, "title", "", "Root label for the document tree")
}

func generate(ctx context.Context, stdin io.Reader, stdout, stderr io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))

	backend, err := llm.NewBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()
	p := pipeline.New(cfg, backend, log)

	req, err := readInput(stdin)
	if err != nil {
		return err
	}
	req.MaxDepth = genDepth
	req.Title = genTitle

	if genMarkdown {
		text := req.Content
		if req.DocType == pipeline.DocPDF {
			return fmt.Errorf("--markdown does not accept PDF input")
		}
		if genStream {
			return streamEvents(stdout, stderr, func(sink events.Sink) {
				p.GenerateMarkdownStream(ctx, text, sink)
			})
		}
		md, err := p.GenerateMarkdown(ctx, text)
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, md)
		return nil
	}

	if err := req.Validate(); err != nil {
		return err
	}
	if genStream {
		return streamEvents(stdout, stderr, func(sink events.Sink) {
			p.ProcessDocumentStream(ctx, req, sink)
		})
	}
	tree, err := p.ProcessDocument(ctx, req, func(msg string) {
		fmt.Fprintln(stderr, dimStyle.Render(msg))
	})
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, renderTree(tree))
	return nil
}

// readInput loads the input as a document request. Files with a parser
// are flattened to headed text; PDFs are passed through as base64.
func readInput(stdin io.Reader) (pipeline.DocumentRequest, error) {
	var req pipeline.DocumentRequest
	if genFile == "" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return req, fmt.Errorf("read stdin: %w", err)
		}
		req.Content = string(data)
		return req, nil
	}

	data, err := os.ReadFile(genFile)
	if err != nil {
		return req, fmt.Errorf("read input: %w", err)
	}
	switch {
	case strings.EqualFold(filepath.Ext(genFile), ".pdf"):
		req.DocType = pipeline.DocPDF
		req.Content = base64.StdEncoding.EncodeToString(data)
	case parser.IsSupportedExtension(genFile):
		text, err := parser.ExtractText(data, genFile)
		if err != nil {
			return req, err
		}
		req.Content = text
	default:
		req.Content = string(data)
	}
	return req, nil
}

// streamEvents prints events as they arrive and reports a terminal error
// event as the command's error.
func streamEvents(stdout, stderr io.Writer, produce func(events.Sink)) error {
	var failure error
	produce(func(ev events.Event) error {
		switch ev.Type {
		case events.TypeStart, events.TypeProgress:
			fmt.Fprintln(stderr, dimStyle.Render(fmt.Sprint(ev.Payload["message"])))
		case events.TypeReasoning:
			fmt.Fprint(stderr, reasoningStyle.Render(fmt.Sprint(ev.Payload["content"])))
		case events.TypeGenerating:
			fmt.Fprint(stdout, ev.Payload["content"])
		case events.TypeUpdate:
			fmt.Fprintln(stderr, dimStyle.Render("tree updated"))
		case events.TypeComplete:
			if tree, ok := ev.Payload["data"].(*mindmap.Node); ok {
				fmt.Fprintln(stdout, renderTree(tree))
			} else {
				fmt.Fprintln(stdout)
			}
			fmt.Fprintln(stderr, successStyle.Render("done"))
		case events.TypeError:
			failure = fmt.Errorf("%v", ev.Payload["message"])
			fmt.Fprintln(stderr, errorStyle.Render(failure.Error()))
		}
		return nil
	})
	return failure
}
