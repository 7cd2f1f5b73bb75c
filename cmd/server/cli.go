package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/pflag"

	"github.com/bookline/whatsgate/internal/credential"
	"github.com/bookline/whatsgate/internal/tenant"
)

// runTenant handles "whatsgate tenant put"
func runTenant(flagSet *pflag.FlagSet, envFile *string, args []string) error {
	if len(args) == 0 || args[0] != "put" {
		return fmt.Errorf("usage: whatsgate tenant put --id ID --name NAME [--domain D] [--status S]")
	}

	var t tenant.Tenant
	flagSet.StringVar(&t.ID, "id", "", "tenant ID")
	flagSet.StringVar(&t.Name, "name", "", "display name")
	flagSet.StringVar(&t.Domain, "domain", "", "tenant domain")
	flagSet.StringVar(&t.Status, "status", tenant.StatusActive, "active, suspended or cancelled")
	if err := flagSet.Parse(args[1:]); err != nil {
		return err
	}
	if t.ID == "" || t.Name == "" {
		return fmt.Errorf("--id and --name are required")
	}
	if !tenant.ValidStatus(t.Status) {
		return fmt.Errorf("unknown tenant status %q", t.Status)
	}

	cfg, err := loadConfig(*envFile)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	if a.tenants == nil {
		return fmt.Errorf("tenant put requires a persistent database driver")
	}
	if err := a.tenants.UpsertTenant(ctx, &t); err != nil {
		return err
	}
	return printJSON(t)
}

// runCredentials handles "whatsgate credentials <set|show|check|health|history|delete>"
func runCredentials(flagSet *pflag.FlagSet, envFile *string, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: whatsgate credentials <set|show|check|health|history|delete> --tenant ID")
	}
	action, args := args[0], args[1:]

	tenantID := flagSet.String("tenant", "", "tenant ID")
	fields := map[string]*string{
		"phone-number-id":     flagSet.String("phone-number-id", "", "WhatsApp phone-number-id"),
		"access-token":        flagSet.String("access-token", "", "Graph API access token"),
		"business-account-id": flagSet.String("business-account-id", "", "WhatsApp Business Account ID"),
		"verify-token":        flagSet.String("verify-token", "", "webhook verify token"),
		"app-id":              flagSet.String("app-id", "", "Meta app ID"),
		"app-secret":          flagSet.String("app-secret", "", "Meta app secret"),
		"system-user-token":   flagSet.String("system-user-token", "", "system user token"),
	}
	if err := flagSet.Parse(args); err != nil {
		return err
	}
	if *tenantID == "" {
		return fmt.Errorf("--tenant is required")
	}

	cfg, err := loadConfig(*envFile)
	if err != nil {
		return err
	}
	ctx := context.Background()
	a, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	switch action {
	case "set":
		changed := func(name string) *string {
			if flagSet.Changed(name) {
				return fields[name]
			}
			return nil
		}
		res, err := a.service.Update(ctx, *tenantID, credential.Patch{
			PhoneNumberID:      changed("phone-number-id"),
			AccessToken:        changed("access-token"),
			BusinessAccountID:  changed("business-account-id"),
			WebhookVerifyToken: changed("verify-token"),
			AppID:              changed("app-id"),
			AppSecret:          changed("app-secret"),
			SystemUserToken:    changed("system-user-token"),
		})
		if res != nil {
			_ = printJSON(res)
		}
		return err
	case "show":
		creds, err := a.service.GetMasked(ctx, *tenantID)
		if err != nil {
			return err
		}
		return printJSON(creds)
	case "check":
		return printJSON(a.service.Validate(ctx, *tenantID))
	case "health":
		h, err := a.monitor.CheckNow(ctx, *tenantID)
		if err != nil {
			return err
		}
		return printJSON(h)
	case "history":
		entries, err := a.service.History(ctx, *tenantID)
		if err != nil {
			return err
		}
		return printJSON(entries)
	case "delete":
		return a.service.Delete(ctx, *tenantID)
	default:
		return fmt.Errorf("unknown credentials action %q", action)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
