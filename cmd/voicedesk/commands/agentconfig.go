package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/voicedesk-ai/voicedesk/internal/tenant"
)

var (
	agentConfigCompany int64
	agentConfigOut     string
	agentConfigURL     string
)

var agentConfigCmd = &cobra.Command{
	Use:   "agent-config",
	Short: "Generate an agent platform configuration for a tenant",
	Long: `Generate the JSON configuration the voice agent platform needs to
talk to this gateway on behalf of one tenant: greeting, transfer
extension, gateway URL and headers.`,
	RunE: runAgentConfig,
}

func init() {
	agentConfigCmd.Flags().Int64Var(&agentConfigCompany, "company", 0, "Tenant company id (required)")
	agentConfigCmd.Flags().StringVarP(&agentConfigOut, "out", "o", "", "Output file (default stdout)")
	agentConfigCmd.Flags().StringVar(&agentConfigURL, "gateway-url", "", "Public gateway URL (default derived from the configured port)")
	agentConfigCmd.MarkFlagRequired("company")
}

// agentConfig is the file consumed by the agent platform.
type agentConfig struct {
	CompanyID         int64             `json:"companyId"`
	DisplayName       string            `json:"displayName"`
	Greeting          string            `json:"greeting,omitempty"`
	TransferExtension string            `json:"transferExtension,omitempty"`
	Gateway           agentGatewayBlock `json:"gateway"`
}

type agentGatewayBlock struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

func runAgentConfig(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	tenants, err := tenant.Load(cfg.TenantsFile)
	if err != nil {
		return err
	}

	t, ok := tenants.Get(agentConfigCompany)
	if !ok {
		return fmt.Errorf("company %d is not a configured tenant", agentConfigCompany)
	}

	url := agentConfigURL
	if url == "" {
		url = fmt.Sprintf("http://localhost:%d/rpc", cfg.Port)
	}

	out := agentConfig{
		CompanyID:         t.CompanyID,
		DisplayName:       t.DisplayName,
		Greeting:          t.Greeting,
		TransferExtension: t.TransferExtension,
		Gateway:           agentGatewayBlock{URL: url},
	}
	if cfg.SharedSecret != "" {
		out.Gateway.Headers = map[string]string{
			"Authorization": "Bearer " + cfg.SharedSecret,
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if agentConfigOut == "" {
		_, err = os.Stdout.Write(data)
		return err
	}
	if err := os.WriteFile(agentConfigOut, data, 0o600); err != nil {
		return err
	}
	fmt.Printf("wrote %s\n", agentConfigOut)
	return nil
}
