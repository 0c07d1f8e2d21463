package wallet

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/nutvault/walletcore/cashu"
)

// Config bootstraps a Wallet: where it persists state, which mint it
// talks to by default, and which unit it operates in.
type Config struct {
	WalletPath      string
	CurrentMintURL  string
	Unit            cashu.Unit
	DomainSeparation bool
}

// LoadConfigFromEnv builds a Config from environment variables, loading a
// ".env" file at envPath first if present (missing file is not an error).
func LoadConfigFromEnv(envPath string) Config {
	if envPath != "" {
		_ = godotenv.Load(envPath)
	}

	cfg := Config{
		WalletPath:       os.Getenv("WALLET_PATH"),
		CurrentMintURL:   os.Getenv("MINT_URL"),
		Unit:             cashu.Sat,
		DomainSeparation: true,
	}

	if unit := os.Getenv("UNIT"); unit != "" {
		cfg.Unit = cashu.UnitFromString(unit)
	}
	if os.Getenv("DOMAIN_SEPARATION") == "false" {
		cfg.DomainSeparation = false
	}

	return cfg
}
