package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/voicedesk-ai/voicedesk/internal/tenant"
)

var tenantsCmd = &cobra.Command{
	Use:   "tenants",
	Short: "Validate and list the tenant configuration",
	Long: `Load the tenants file, validate it (unique company ids, required
fields), and print the configured tenants.`,
	RunE: runTenants,
}

func runTenants(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tenants, err := tenant.Load(cfg.TenantsFile)
	if err != nil {
		return err
	}

	fmt.Printf("%s: %d tenant(s)\n\n", cfg.TenantsFile, tenants.Count())

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPANY ID\tQUEUE ID\tNAME\tTRANSFER EXT")
	for _, t := range tenants.All() {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", t.CompanyID, t.RoutingQueueID, t.DisplayName, t.TransferExtension)
	}
	return w.Flush()
}
