package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sumit-dhanorkar/sitewizard/internal/conversation"
	"github.com/sumit-dhanorkar/sitewizard/internal/jobs"
	"github.com/sumit-dhanorkar/sitewizard/internal/widget"
)

// WizardSession drives one interactive run of the guided conversation.
type WizardSession struct {
	app        *app
	controller *conversation.Controller
	guard      *jobs.Guard
	widgets    *widget.Registry
	reader     *bufio.Reader

	// lastWidgetMsgID prevents re-prompting the same widget after
	// commands that do not advance the conversation.
	lastWidgetMsgID string
}

func newWizardSession(a *app) *WizardSession {
	return &WizardSession{
		app:        a,
		controller: conversation.NewController(a.client, a.store, a.cfg, a.log),
		guard:      jobs.NewGuard(a.client, a.store, a.cfg.UserID, a.log),
		widgets:    widget.NewRegistry(),
		reader:     bufio.NewReader(os.Stdin),
	}
}

// Start runs the wizard until the user exits or the conversation
// completes. A generation job already running for this user short
// circuits into a status notice instead of a new conversation.
func (w *WizardSession) Start(ctx context.Context) error {
	if d := w.guard.Check(ctx); d.Redirect {
		printJobNotice(d.JobID)
		awaitVerification(d.Verified)
		return nil
	}

	if err := w.controller.Initialize(ctx, w.app.cfg.UserID); err != nil {
		return fmt.Errorf("start conversation: %w", err)
	}

	showWelcomeBanner()
	for _, m := range w.controller.Snapshot().Messages {
		fmt.Println(renderMessage(m))
	}

	for {
		done, err := w.step(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
	}
}

// step handles one round of input: either a pending widget prompt or a
// free-form line, then any resulting turn.
func (w *WizardSession) step(ctx context.Context) (bool, error) {
	if input, handled, err := w.promptPendingWidget(); err != nil {
		return false, err
	} else if handled {
		return false, w.sendTurn(ctx, input)
	}

	fmt.Print("> ")
	line, err := w.reader.ReadString('\n')
	if err != nil {
		fmt.Println()
		return true, nil
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return false, nil
	}

	if strings.HasPrefix(line, "/") {
		return w.runCommand(ctx, line)
	}
	return false, w.sendTurn(ctx, line)
}

// promptPendingWidget renders the widget attached to the newest
// assistant message, at most once per message.
func (w *WizardSession) promptPendingWidget() (string, bool, error) {
	snap := w.controller.Snapshot()
	if len(snap.Messages) == 0 {
		return "", false, nil
	}
	last := snap.Messages[len(snap.Messages)-1]
	if last.Role != conversation.RoleAssistant || last.Widget == nil || last.ID == w.lastWidgetMsgID {
		return "", false, nil
	}
	w.lastWidgetMsgID = last.ID

	answer, err := w.widgets.Resolve(last.Widget.Type).Render(*last.Widget, snap.Profile)
	if err != nil {
		return "", false, fmt.Errorf("render input for %s: %w", last.Widget.Field, err)
	}
	if answer == "" && last.Skippable {
		answer = "skip"
	}
	if answer == "" {
		return "", false, nil
	}
	return answer, true, nil
}

func (w *WizardSession) runCommand(ctx context.Context, line string) (bool, error) {
	cmd, arg, _ := strings.Cut(line, " ")
	switch cmd {
	case "/exit", "/quit":
		fmt.Println(hintStyle.Render("Progress saved. See you next time."))
		return true, nil
	case "/help":
		showHelp()
	case "/summary":
		fmt.Println(renderProfileSummary(w.controller.Profile()))
	case "/skip":
		return false, w.sendTurn(ctx, "skip")
	case "/edit":
		field := strings.TrimSpace(arg)
		if field == "" {
			fmt.Println(errorStyle.Render("Usage: /edit <field>"))
			fmt.Println(hintStyle.Render("Fields: " + strings.Join(conversation.EditableFields(), ", ")))
			return false, nil
		}
		if err := w.controller.JumpToField(field); err != nil {
			if errors.Is(err, conversation.ErrFieldNotEditable) {
				fmt.Println(errorStyle.Render(fmt.Sprintf("Unknown field %q.", field)))
				fmt.Println(hintStyle.Render("Fields: " + strings.Join(conversation.EditableFields(), ", ")))
				return false, nil
			}
			return false, err
		}
		snap := w.controller.Snapshot()
		fmt.Println(renderMessage(snap.Messages[len(snap.Messages)-1]))
	case "/reset":
		if !w.confirm("Discard everything collected so far?") {
			return false, nil
		}
		if err := w.controller.Reset(); err != nil {
			return false, err
		}
		if err := w.controller.Initialize(ctx, w.app.cfg.UserID); err != nil {
			return false, fmt.Errorf("restart conversation: %w", err)
		}
		w.lastWidgetMsgID = ""
		for _, m := range w.controller.Snapshot().Messages {
			fmt.Println(renderMessage(m))
		}
	case "/generate":
		return w.startGeneration(ctx)
	default:
		fmt.Println(errorStyle.Render("Unknown command " + cmd + ". Try /help."))
	}
	return false, nil
}

// sendTurn streams one exchange, echoing text fragments as they arrive.
func (w *WizardSession) sendTurn(ctx context.Context, text string) error {
	fmt.Print(assistantLabel.Render("wizard") + "> ")

	var printed int
	w.controller.SetOnChange(func(snap conversation.Snapshot) {
		if len(snap.Messages) == 0 {
			return
		}
		last := snap.Messages[len(snap.Messages)-1]
		if last.Role != conversation.RoleAssistant || last.Status != conversation.StatusSending {
			return
		}
		if len(last.Content) < printed {
			printed = len(last.Content)
		}
		if len(last.Content) > printed {
			fmt.Print(last.Content[printed:])
			printed = len(last.Content)
		}
	})
	err := w.controller.SendTurn(ctx, text)
	w.controller.SetOnChange(nil)

	snap := w.controller.Snapshot()
	var last conversation.Message
	if len(snap.Messages) > 0 {
		last = snap.Messages[len(snap.Messages)-1]
	}
	// The terminal frame may replace the streamed fragments with a
	// canonical full text.
	if last.Role == conversation.RoleAssistant && last.Status == conversation.StatusSent && len(last.Content) > printed {
		fmt.Print(last.Content[printed:])
	}
	fmt.Println()

	if errors.Is(err, conversation.ErrTurnInFlight) {
		fmt.Println(errorStyle.Render("Still waiting on the previous answer."))
		return nil
	}
	if err != nil {
		w.app.log.Warn("turn failed", zap.Error(err))
	}
	if last.Role == conversation.RoleAssistant && last.Status == conversation.StatusError {
		fmt.Println(errorStyle.Render(last.Content))
	}

	if w.controller.CurrentState() == conversation.StateComplete {
		fmt.Println()
		fmt.Println(renderProfileSummary(w.controller.Profile()))
		if w.confirm("All set. Generate your website now?") {
			return w.finishGeneration(ctx)
		}
		fmt.Println(hintStyle.Render("Run /generate whenever you are ready."))
	}
	return nil
}

func (w *WizardSession) startGeneration(ctx context.Context) (bool, error) {
	if !w.controller.Profile().HasMeaningfulData() {
		fmt.Println(errorStyle.Render("Tell me about your company first, then generate."))
		return false, nil
	}
	return true, w.finishGeneration(ctx)
}

func (w *WizardSession) finishGeneration(ctx context.Context) error {
	res, err := w.guard.StartGeneration(ctx, w.controller.Profile(), nil)
	if err != nil {
		fmt.Println(errorStyle.Render("Could not start generation: " + err.Error()))
		return nil
	}
	if res.AlreadyActive {
		printJobNotice(res.JobID)
		awaitVerification(res.Verified)
		return nil
	}
	fmt.Println(titleStyle.Render("🚀 Generation started!") + " Job " + res.JobID)
	fmt.Println(hintStyle.Render("Check progress with: sitewizard status"))
	return nil
}

// awaitVerification lets the guard's background record check land
// before the process exits; without it a finished job's record is never
// purged and the redirect repeats on every run.
func awaitVerification(done <-chan struct{}) {
	if done == nil {
		return
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
	}
}

func printJobNotice(jobID string) {
	fmt.Println(titleStyle.Render("⏳ A website generation job is already running."))
	if jobID != "" {
		fmt.Println("   Job: " + jobID)
	}
	fmt.Println(hintStyle.Render("Check progress with: sitewizard status"))
}

func (w *WizardSession) confirm(question string) bool {
	fmt.Print(question + " [y/N] ")
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
