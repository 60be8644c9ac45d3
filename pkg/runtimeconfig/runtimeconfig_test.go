package runtimeconfig

import (
	"os"
	"testing"

	"txruntime/internal/testutil"
)

func TestDefaultMatchesDocumentedConstants(t *testing.T) {
	cfg := Default()
	if cfg.CostUnitPrice != "1" || cfg.TipPercentage != 2 || cfg.CostUnitLimit != 100 || cfg.SystemLoan != 5 {
		t.Fatalf("unexpected default config: %+v", cfg)
	}
}

func TestCostUnitPriceDecimalParsesTheConfiguredString(t *testing.T) {
	cfg := Default()
	d, err := cfg.CostUnitPriceDecimal()
	if err != nil {
		t.Fatalf("CostUnitPriceDecimal: %v", err)
	}
	if d.String() != "1" {
		t.Fatalf("expected \"1\", got %s", d.String())
	}
}

func TestLoadOverridesDefaultsFromYaml(t *testing.T) {
	sb, err := testutil.NewSandbox()
	if err != nil {
		t.Fatalf("NewSandbox: %v", err)
	}
	defer sb.Cleanup()

	yaml := "cost_unit_price: \"2\"\nmax_call_depth: 10\n"
	if err := sb.WriteFile("runtime.yaml", []byte(yaml), 0600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(sb.Path("runtime.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.CostUnitPrice != "2" {
		t.Fatalf("expected the overridden cost_unit_price, got %q", cfg.CostUnitPrice)
	}
	if cfg.MaxCallDepth != 10 {
		t.Fatalf("expected the overridden max_call_depth, got %d", cfg.MaxCallDepth)
	}
	if cfg.SystemLoan != Default().SystemLoan {
		t.Fatalf("expected fields absent from the file to keep their default, got system_loan=%d", cfg.SystemLoan)
	}
}

func TestLoadRejectsMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/runtime.yaml"); err == nil {
		t.Fatalf("expected an error loading a nonexistent config file")
	}
}

func TestLoadFromEnvFallsBackToDefault(t *testing.T) {
	os.Unsetenv("TXRUNTIME_CONFIG")
	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg != Default() {
		t.Fatalf("expected LoadFromEnv with no env var set to return Default()")
	}
}
