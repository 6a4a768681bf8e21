package main

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/lead-intake/pkg/amocrm"
)

var crmCmd = &cobra.Command{
	Use:   "crm",
	Short: "Inspect the amoCRM account the service writes to",
}

var crmTaxonomyCmd = &cobra.Command{
	Use:   "taxonomy",
	Short: "Resolve the pipeline and status new leads are created in",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("crm"); err != nil {
			return err
		}

		tax, err := newCRMClient(cfg.AmoCRM).ResolveTaxonomy(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "crm taxonomy")
		}

		formatTaxonomy(os.Stdout, tax)
		return nil
	},
}

var crmFieldsCmd = &cobra.Command{
	Use:   "fields",
	Short: "List lead custom fields and the tracking keys mapped to them",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := cfg.Validate("crm"); err != nil {
			return err
		}

		fields, err := newCRMClient(cfg.AmoCRM).LeadCustomFields(cmd.Context())
		if err != nil {
			return eris.Wrap(err, "crm fields")
		}

		formatFieldMatches(os.Stdout, fields)
		return nil
	},
}

func init() {
	crmCmd.AddCommand(crmTaxonomyCmd, crmFieldsCmd)
	rootCmd.AddCommand(crmCmd)
}

// formatTaxonomy writes the resolved pipeline and status to out.
func formatTaxonomy(out io.Writer, tax amocrm.Taxonomy) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ENTITY\tID\tNAME")
	_, _ = fmt.Fprintln(w, "------\t--\t----")
	_, _ = fmt.Fprintf(w, "pipeline\t%d\t%s\n", tax.PipelineID, orDash(tax.PipelineName))
	_, _ = fmt.Fprintf(w, "status\t%d\t%s\n", tax.StatusID, orDash(tax.StatusName))
	_ = w.Flush()
}

// formatFieldMatches writes one row per tracking key: the field it maps to,
// or dashes when the account has no matching field.
func formatFieldMatches(out io.Writer, fields []amocrm.CustomField) {
	matched := make(map[string]amocrm.CustomField)
	for _, m := range amocrm.MatchTrackingFields(fields) {
		matched[m.Key] = m.Field
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "KEY\tFIELD_ID\tFIELD_NAME\tCODE")
	_, _ = fmt.Fprintln(w, "---\t--------\t----------\t----")
	for _, key := range amocrm.TrackingKeys() {
		f, ok := matched[key]
		if !ok {
			_, _ = fmt.Fprintf(w, "%s\t-\t-\t-\n", key)
			continue
		}
		_, _ = fmt.Fprintf(w, "%s\t%d\t%s\t%s\n", key, f.ID, f.Name, orDash(f.Code))
	}
	_ = w.Flush()

	_, _ = fmt.Fprintf(out, "\n%d of %d tracking keys mapped, %d lead fields in account\n",
		len(matched), len(amocrm.TrackingKeys()), len(fields))
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
