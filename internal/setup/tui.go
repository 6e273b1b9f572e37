package setup

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/quantport/brokerlink/config"
	"github.com/quantport/brokerlink/internal/connectors"
)

var (
	subtle    = lipgloss.AdaptiveColor{Light: "#D9DCCF", Dark: "#383838"}
	highlight = lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	special   = lipgloss.AdaptiveColor{Light: "#43BF6D", Dark: "#73F59F"}

	headerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Background(highlight).
			Padding(1, 2).
			Bold(true).
			MarginBottom(1)

	stepStyle = lipgloss.NewStyle().
			Foreground(special).
			Bold(true).
			MarginTop(1).
			MarginBottom(0)
)

const (
	configFile = "config.gen.yaml"
	envFile    = ".env"
)

// RunTUI launches the terminal wizard that collects a venue, its credentials
// and transport settings. Venue settings land in config.gen.yaml; credentials
// never touch the yaml and are written to .env instead.
func RunTUI() error {
	var (
		venue        string
		apiKey       string
		apiSecret    string
		sessionToken string
		accountID    string
		apiURL       string
		timeoutStr   string
		currency     string
		nonceDir     string
		confirm      bool
	)

	timeoutStr = "10s"
	currency = "USD"

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("BROKERLINK SETUP"))
	fmt.Println(lipgloss.NewStyle().Foreground(subtle).Render("Connect a brokerage in a few steps.\n"))

	fmt.Println(stepStyle.Render("STEP 1: VENUE"))
	venueOpts := make([]huh.Option[string], 0, len(connectors.Venues()))
	for _, name := range connectors.Venues() {
		venueOpts = append(venueOpts, huh.NewOption(strings.ToUpper(name), name))
	}
	err := huh.NewForm(
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Select brokerage venue").
				Options(venueOpts...).
				Value(&venue),
		),
	).Run()
	if err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("BROKERLINK SETUP"))
	fmt.Println(stepStyle.Render("STEP 2: CREDENTIALS"))
	var credFields []huh.Field
	if venue == "ibkr" {
		credFields = []huh.Field{
			huh.NewInput().
				Title("Session Token").
				Value(&sessionToken).
				EchoMode(huh.EchoModePassword).
				Validate(notEmpty("session token")),
			huh.NewInput().
				Title("Account ID").
				Description("Leave empty to use the first account on the gateway").
				Value(&accountID),
		}
	} else {
		credFields = []huh.Field{
			huh.NewInput().
				Title("API Key").
				Value(&apiKey).
				Validate(notEmpty("api key")),
			huh.NewInput().
				Title("API Secret").
				Value(&apiSecret).
				EchoMode(huh.EchoModePassword).
				Validate(notEmpty("api secret")),
		}
	}
	if err := huh.NewForm(huh.NewGroup(credFields...)).Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("BROKERLINK SETUP"))
	fmt.Println(stepStyle.Render("STEP 3: TRANSPORT"))
	transportFields := []huh.Field{
		huh.NewInput().
			Title("API URL").
			Description("Leave empty for the venue default").
			Value(&apiURL).
			Validate(func(s string) error {
				if s == "" {
					return nil
				}
				_, err := url.ParseRequestURI(s)
				return err
			}),
		huh.NewInput().
			Title("Request Timeout").
			Description("Duration string (e.g. 5s, 10s, 1m)").
			Value(&timeoutStr).
			Validate(func(s string) error {
				_, err := time.ParseDuration(s)
				return err
			}),
		huh.NewInput().
			Title("Report Currency").
			Value(&currency).
			Validate(notEmpty("report currency")),
	}
	if venue == "kraken" {
		transportFields = append(transportFields, huh.NewInput().
			Title("Nonce Directory").
			Description("Directory for the persistent nonce log; empty uses an in-memory source").
			Value(&nonceDir),
		)
	}
	if err := huh.NewForm(huh.NewGroup(transportFields...)).Run(); err != nil {
		return err
	}

	fmt.Print("\033[H\033[2J")
	fmt.Println(headerStyle.Render("BROKERLINK SETUP"))
	fmt.Println(stepStyle.Render("FINAL CONFIRMATION"))

	summary := fmt.Sprintf(
		"Venue: %s\nAPI URL: %s\nTimeout: %s\nCurrency: %s\n",
		venue, orDefault(apiURL, "(venue default)"), timeoutStr, currency,
	)
	fmt.Println(lipgloss.NewStyle().Border(lipgloss.NormalBorder()).Padding(1).Render(summary))

	err = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Save configuration?").
				Affirmative("Yes, save").
				Negative("No, exit").
				Value(&confirm),
		),
	).Run()
	if err != nil {
		return err
	}
	if !confirm {
		return fmt.Errorf("setup cancelled by user")
	}

	timeout, _ := time.ParseDuration(timeoutStr)
	cfg := config.Config{
		Venues: map[string]config.Venue{
			venue: {
				Name:           venue,
				APIURL:         apiURL,
				Timeout:        timeout,
				ReportCurrency: currency,
				NonceDir:       nonceDir,
			},
		},
	}

	data, err := yaml.Marshal(&cfg)
	if err != nil {
		return fmt.Errorf("failed to generate yaml: %w", err)
	}
	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return fmt.Errorf("failed to save config file: %w", err)
	}

	prefix := strings.ToUpper(venue)
	env := map[string]string{}
	if apiKey != "" {
		env[prefix+"_API_KEY"] = apiKey
		env[prefix+"_API_SECRET"] = apiSecret
	}
	if sessionToken != "" {
		env[prefix+"_SESSION_TOKEN"] = sessionToken
	}
	if accountID != "" {
		env[prefix+"_ACCOUNT_ID"] = accountID
	}
	if existing, err := godotenv.Read(envFile); err == nil {
		for k, v := range existing {
			if _, ok := env[k]; !ok {
				env[k] = v
			}
		}
	}
	if err := godotenv.Write(env, envFile); err != nil {
		return fmt.Errorf("failed to save credentials file: %w", err)
	}

	fmt.Println(lipgloss.NewStyle().Foreground(special).Render(
		fmt.Sprintf("\n✓ Configuration saved to %s, credentials to %s", configFile, envFile)))
	return nil
}

func notEmpty(field string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s cannot be empty", field)
		}
		return nil
	}
}

func orDefault(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}
