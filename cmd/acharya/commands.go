package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/acharya-agent/backend/internal/evaluation"
	"github.com/acharya-agent/backend/internal/knowledge"
	"github.com/acharya-agent/backend/internal/language"
	"github.com/acharya-agent/backend/internal/learning"
	"github.com/acharya-agent/backend/internal/query"
)

func runChat(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return chat(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
}

// chat runs one utterance per input line until EOF, "exit" or "quit".
func chat(ctx context.Context, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, strings.Repeat("─", 60))
	fmt.Fprintln(out, "Ask a question in any language. Type exit to leave.")
	fmt.Fprintln(out, strings.Repeat("─", 60))

	var session language.Session
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, "> ")
		if !sc.Scan() {
			break
		}
		line := strings.TrimSpace(sc.Text())
		switch strings.ToLower(line) {
		case "":
			continue
		case "exit", "quit":
			return nil
		}

		resp, err := ask(ctx, line, session)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		session = resp.Session
		printResponse(out, resp)
	}
	fmt.Fprintln(out)
	return sc.Err()
}

func runAsk(cmd *cobra.Command, args []string) error {
	resp, err := ask(cmd.Context(), strings.Join(args, " "), language.Session{})
	if err != nil {
		return err
	}
	printResponse(cmd.OutOrStdout(), resp)
	return nil
}

func ask(ctx context.Context, utterance string, session language.Session) (*query.QueryResponse, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	return application.Engine.ProcessQuery(ctx, query.QueryRequest{
		Utterance: utterance,
		Session:   session,
	})
}

func printResponse(out io.Writer, resp *query.QueryResponse) {
	fmt.Fprintf(out, "[%s] %s\n", resp.Language, resp.Answer)
	meta := fmt.Sprintf("  origin=%s style=%s confidence=%.2f", resp.Origin, resp.Style, resp.Confidence)
	if resp.Decision != "" {
		meta += " decision=" + string(resp.Decision)
	}
	if len(resp.Degraded) > 0 {
		meta += " degraded=" + strings.Join(resp.Degraded, ",")
	}
	fmt.Fprintln(out, meta)
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	rep, err := application.Importer.ImportFile(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "imported %d, merged %d, skipped %d\n", rep.Imported, rep.Merged, rep.Skipped)
	for _, e := range rep.Errors {
		fmt.Fprintf(out, "  %s\n", e)
	}
	return nil
}

func runReviewList(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	queue := application.Learning.Queue()
	if len(queue) == 0 {
		fmt.Fprintln(out, "review queue is empty")
		return nil
	}

	for _, c := range queue {
		fmt.Fprintf(out, "%s  %.2f  %-10s %s\n", c.ID, c.Confidence, c.Source, c.Question)
		fmt.Fprintf(out, "    %s\n", truncate(c.Answer, 120))
	}
	return nil
}

func runReviewApprove(cmd *cobra.Command, args []string) error {
	res, err := application.Learning.Approve(args[0])
	if errors.Is(err, learning.ErrNotQueued) {
		return fmt.Errorf("no queued candidate %s", args[0])
	}
	if err != nil {
		return err
	}

	action := "merged into"
	if res.Inserted {
		action = "added as"
	}
	fmt.Fprintf(cmd.OutOrStdout(), "approved: %s entry %q\n", action, res.Entry.Question)
	return nil
}

func runReviewReject(cmd *cobra.Command, args []string) error {
	if err := application.Learning.Reject(args[0]); err != nil {
		if errors.Is(err, learning.ErrNotQueued) {
			return fmt.Errorf("no queued candidate %s", args[0])
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "rejected %s\n", args[0])
	return nil
}

func runReviewAuto(cmd *cobra.Command, args []string) error {
	threshold := application.Config.Learning.AutoApproveThreshold
	if autoThreshold > 0 {
		threshold = autoThreshold
	}

	approved, err := application.Learning.AutoApprove(threshold)
	fmt.Fprintf(cmd.OutOrStdout(), "auto-approved %d at threshold %.2f, %d remaining\n",
		approved, threshold, len(application.Learning.Queue()))
	return err
}

func runStats(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()

	ks := application.Knowledge.Stats()
	fmt.Fprintf(out, "knowledge entries: %d (uses %d)\n", ks.Total, ks.TotalUsage)
	categories := make([]string, 0, len(ks.ByCategory))
	for c := range ks.ByCategory {
		categories = append(categories, string(c))
	}
	sort.Strings(categories)
	for _, c := range categories {
		fmt.Fprintf(out, "  %-12s %d\n", c, ks.ByCategory[knowledge.Category(c)])
	}

	ls := application.Learning.Stats()
	fmt.Fprintf(out, "learning: considered %d, learned %d, queued %d, rejected %d, approved %d, discarded %d, pending %d\n",
		ls.Considered, ls.Learned, ls.Queued, ls.Rejected, ls.Approved, ls.Discarded, ls.QueueSize)

	if application.Store != nil {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		fs, err := application.Store.FeedbackSummary(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "feedback: %d of %d helpful\n", fs.Helpful, fs.Total)

		perf, err := application.Store.LanguagePerformance(ctx)
		if err != nil {
			return err
		}
		for _, p := range perf {
			fmt.Fprintf(out, "  %-4s %d interactions, confidence %.2f, %.0f ms, %d cache hits, %d degraded, %d of %d helpful\n",
				p.Language, p.Interactions, p.AvgConfidence, p.AvgLatencyMS, p.CacheHits, p.Degraded, p.Helpful, p.Feedback)
		}
	}
	return nil
}

func runEval(cmd *cobra.Command, args []string) error {
	dataset, err := evaluation.LoadDataset(args[0])
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	report, err := evaluation.NewEvaluator(application.Engine).Run(ctx, dataset)
	if err != nil {
		return err
	}
	fmt.Fprint(cmd.OutOrStdout(), evaluation.GenerateReport(report))
	return nil
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
