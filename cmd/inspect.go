package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"gavault/internal/app"
)

// Output formats of the inspect command.
const (
	outputTable = "table"
	outputJSON  = "json"
)

func newInspectCmd() *cobra.Command {
	var (
		flags  operatorFlags
		output string
	)

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Show the stored credential, plan tier and usage of an identity",
		Long: `Reads the credential record, plan tier and current usage counters of one
identity straight from the key-value store. Token values are never printed;
only their presence, lengths and expiry are shown.

Only the encryption key and the storage settings need to be configured.`,
		Example: `  gavault inspect --kind plugin --id user-42
  gavault inspect --kind web --id 3f0c... --output json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if output != outputTable && output != outputJSON {
				return fmt.Errorf("unsupported output format %q", output)
			}
			in, id, err := flags.open()
			if err != nil {
				return err
			}
			defer in.Close()

			report, err := in.Inspect(cmd.Context(), id)
			if err != nil {
				return err
			}
			return renderReport(cmd.OutOrStdout(), report, in.Now(), output)
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", outputTable, "Output format: table or json")
	return cmd
}

func renderReport(w io.Writer, r *app.Report, now time.Time, output string) error {
	if output == outputJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(r)
	}

	fmt.Fprintf(w, "%s %s\n\n", text.FgHiBlue.Sprint("Identity:"), r.Identity)

	cred := newTable(w)
	cred.AppendHeader(table.Row{text.FgHiCyan.Sprint("CREDENTIAL"), ""})
	cred.AppendRow(table.Row{"Status", credentialState(r)})
	if r.Credential.Present && !r.Credential.Corrupt {
		cred.AppendRow(table.Row{"Scope", r.Credential.Scope})
		cred.AppendRow(table.Row{"Access token", fmt.Sprintf("%d bytes", r.Credential.AccessTokenLength)})
		cred.AppendRow(table.Row{"Refresh token", yesNo(r.Credential.HasRefreshToken)})
		cred.AppendRow(table.Row{"Expires", relative(r.Credential.ExpiresAt, now)})
		cred.AppendRow(table.Row{"Saved", r.Credential.SavedAt.Format(time.RFC3339)})
	}
	if r.Credential.Present {
		cred.AppendRow(table.Row{"Ciphertext", fmt.Sprintf("%d bytes", r.Credential.CiphertextLength)})
	}
	cred.Render()
	fmt.Fprintln(w)

	use := newTable(w)
	use.SetTitle("Tier %s (%s)", r.Tier, r.Consistency)
	use.AppendHeader(table.Row{"FEATURE", "PERIOD", "CURRENT", "LIMIT", "RESETS"})
	for _, u := range r.Usage {
		use.AppendRow(table.Row{u.Feature, u.Period, u.Current, limitText(u.Limit), u.ResetAt.Format(time.RFC3339)})
	}
	use.Render()
	fmt.Fprintln(w)

	keys := newTable(w)
	keys.AppendHeader(table.Row{"NAMESPACE", "STORAGE KEY", "PRESENT"})
	for _, k := range r.Keys {
		keys.AppendRow(table.Row{k.Namespace, k.Key, yesNo(k.Present)})
	}
	keys.Render()
	return nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	return t
}

func credentialState(r *app.Report) string {
	switch {
	case !r.Credential.Present:
		return text.FgYellow.Sprint("Not connected")
	case r.Credential.Corrupt:
		return text.FgRed.Sprint("Corrupt (cannot be decrypted)")
	default:
		return text.FgGreen.Sprint("Connected")
	}
}

func relative(t, now time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	d := t.Sub(now).Round(time.Second)
	if d <= 0 {
		return fmt.Sprintf("%s (%s ago)", t.Format(time.RFC3339), text.FgYellow.Sprint(-d))
	}
	return fmt.Sprintf("%s (in %s)", t.Format(time.RFC3339), d)
}

func limitText(limit int64) string {
	if limit < 0 {
		return "unlimited"
	}
	return strconv.FormatInt(limit, 10)
}

func yesNo(b bool) string {
	if b {
		return text.FgGreen.Sprint("yes")
	}
	return text.FgYellow.Sprint("no")
}
