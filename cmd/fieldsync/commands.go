package main

import (
	"encoding/json"
	"fmt"
	"os"
	"unicode"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/fieldops/fieldsync/internal/syncer"
)

// --- login ---

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Sign in to the remote survey service",
	Long: `Sign in to the remote survey service.

The returned session is cached on disk so later commands (and the
agent) can sync without re-entering credentials. The assigned survey
set from the login response replaces the local cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		email, _ := cmd.Flags().GetString("email")
		password, _ := cmd.Flags().GetString("password")
		if email == "" || password == "" {
			return fmt.Errorf("--email and --password are required")
		}

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		sess, err := app.client.Login(cmd.Context(), email, password)
		if err != nil {
			return fmt.Errorf("login failed: %w", err)
		}

		if err := saveSession(app.cfg.Storage.DataDir, session{Token: sess.Token, Enumerator: sess.Enumerator}); err != nil {
			return fmt.Errorf("caching session: %w", err)
		}
		if err := app.store.ReplaceSurveys(sess.Surveys); err != nil {
			return fmt.Errorf("caching surveys: %w", err)
		}

		printSuccess("Signed in as %s", sess.Enumerator.Email)
		printStatus("Surveys", "%d assigned", len(sess.Surveys))
		return nil
	},
}

// --- logout ---

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Sign out and wipe all local data",
	RunE: func(cmd *cobra.Command, args []string) error {
		confirm, _ := cmd.Flags().GetBool("confirm")

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		if pending, err := app.store.PendingCount(); err == nil && pending > 0 && !confirm {
			printWarning("%d unsynced response(s) will be LOST. Run `fieldsync sync` first, or pass --confirm to discard them.", pending)
			return nil
		}

		if err := app.collectService().Logout(); err != nil {
			return fmt.Errorf("wiping local data: %w", err)
		}
		if err := clearSession(app.cfg.Storage.DataDir); err != nil {
			return fmt.Errorf("removing session: %w", err)
		}

		printSuccess("Signed out, local data wiped")
		return nil
	},
}

// --- surveys ---

var surveysCmd = &cobra.Command{
	Use:   "surveys",
	Short: "List locally cached surveys",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		surveys := app.collectService().Surveys()
		if len(surveys) == 0 {
			printWarning("No surveys cached. Run `fieldsync login` or `fieldsync sync`.")
			return nil
		}

		for _, sv := range surveys {
			marker := colorize(colorGreen, "●")
			if sv.Status != "active" {
				marker = colorize(colorYellow, "○")
			}
			fmt.Fprintf(os.Stdout, "%s %s  %s (%d questions, %s)\n",
				marker, sv.ID, colorize(colorBold, sv.Title), len(sv.Questions), sv.Status)
		}
		return nil
	},
}

// --- submit ---

var submitCmd = &cobra.Command{
	Use:   "submit",
	Short: "Record a completed survey response locally",
	Long: `Record a completed survey response locally.

The response is stored pending and never touches the network; it is
uploaded by the next sync. Answers are a JSON object keyed by question
id.

Examples:
  fieldsync submit --survey sv-household --answers '{"q1":"4","q2":"well"}' --minutes 12
  fieldsync submit --survey sv-training --answers-file ./response.json`,
	RunE: func(cmd *cobra.Command, args []string) error {
		surveyID, _ := cmd.Flags().GetString("survey")
		answersJSON, _ := cmd.Flags().GetString("answers")
		answersFile, _ := cmd.Flags().GetString("answers-file")
		minutes, _ := cmd.Flags().GetInt("minutes")

		if surveyID == "" {
			return fmt.Errorf("--survey is required")
		}
		answers, err := parseAnswers(answersJSON, answersFile)
		if err != nil {
			return err
		}

		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		svc := app.collectService()
		if _, ok := svc.Survey(surveyID); !ok {
			printWarning("Survey %s is not in the local cache; recording anyway.", surveyID)
		}

		resp, err := svc.SubmitResponse(surveyID, answers, minutes)
		if err != nil {
			return fmt.Errorf("saving response: %w", err)
		}

		printSuccess("Response %s saved", resp.ID)
		printStatus("Pending", "%d response(s) awaiting sync", svc.PendingCount())
		return nil
	},
}

func parseAnswers(answersJSON, answersFile string) (map[string]any, error) {
	switch {
	case answersJSON != "" && answersFile != "":
		return nil, fmt.Errorf("--answers and --answers-file are mutually exclusive")
	case answersFile != "":
		data, err := os.ReadFile(answersFile)
		if err != nil {
			return nil, fmt.Errorf("reading answers file: %w", err)
		}
		answersJSON = string(data)
	case answersJSON == "":
		return nil, fmt.Errorf("one of --answers or --answers-file is required")
	}

	answers := make(map[string]any)
	if err := json.Unmarshal([]byte(answersJSON), &answers); err != nil {
		return nil, fmt.Errorf("parsing answers: %w", err)
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("answers are empty")
	}
	return answers, nil
}

// --- sync ---

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Upload pending responses and refresh the survey cache",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		monitor, orch := app.buildSync()

		printStep("Checking connectivity...")
		if !monitor.CheckNow(cmd.Context()) {
			printError("Remote service unreachable at %s", app.cfg.Remote.BaseURL)
			return nil
		}

		res := orch.Sync(cmd.Context())
		switch res.Outcome {
		case syncer.OutcomeSuccess:
			printSuccess("%s", capitalize(res.Message))
		case syncer.OutcomePartial:
			printSuccess("Uploaded %d response(s)", res.Uploaded)
			printWarning("Survey refresh failed; cached list may be stale.")
		case syncer.OutcomeRejected:
			printWarning("Sync skipped: %s", res.Message)
		default:
			printError("Sync failed: %s", res.Message)
		}
		return nil
	},
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || r == utf8.RuneError {
		return s
	}
	return string(unicode.ToUpper(r)) + s[size:]
}

// --- status ---

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show local store and sync status",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp()
		if err != nil {
			return err
		}
		defer app.Close()

		monitor, _ := app.buildSync()
		svc := app.collectService()

		if app.client.Authenticated() {
			printStatus("Signed in", "%s", app.client.Enumerator().Email)
		} else {
			printStatus("Signed in", "no")
		}
		printStatus("Remote", "%s", app.cfg.Remote.BaseURL)
		if monitor.CheckNow(cmd.Context()) {
			printStatus("Connectivity", "%s", colorize(colorGreen, "online"))
		} else {
			printStatus("Connectivity", "%s", colorize(colorRed, "offline"))
		}
		printStatus("Surveys", "%d cached", len(svc.Surveys()))
		printStatus("Pending", "%d response(s)", svc.PendingCount())
		if rec, ok := svc.LastSync(); ok {
			printStatus("Last sync", "%s (%s)", rec.At.Local().Format("2006-01-02 15:04:05"), rec.Status)
		} else {
			printStatus("Last sync", "never")
		}
		return nil
	},
}

func init() {
	loginCmd.Flags().String("email", "", "account email")
	loginCmd.Flags().String("password", "", "account password")

	logoutCmd.Flags().Bool("confirm", false, "discard unsynced responses without prompting")

	submitCmd.Flags().String("survey", "", "survey id the response belongs to")
	submitCmd.Flags().String("answers", "", "answers as a JSON object keyed by question id")
	submitCmd.Flags().String("answers-file", "", "file containing the answers JSON object")
	submitCmd.Flags().Int("minutes", 0, "completion time in minutes")
}
