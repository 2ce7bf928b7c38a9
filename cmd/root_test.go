package main

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}

	expected := []string{"serve", "daily", "scrape", "migrate", "seed", "subscription"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "rabatt-cli", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag, "serve command should have --port flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestStoreFilterFlags(t *testing.T) {
	for name, flag := range map[string]*pflag.Flag{
		"daily":  dailyCmd.Flags().Lookup("stores"),
		"scrape": scrapeCmd.Flags().Lookup("stores"),
	} {
		assert.NotNil(t, flag, "%s should have --stores flag", name)
	}
}

func TestSeedCommand_Flags(t *testing.T) {
	flag := seedCmd.Flags().Lookup("catalog")
	require.NotNil(t, flag)
	assert.Equal(t, "catalog.yaml", flag.DefValue)
}

func TestSubscriptionCommand_Flags(t *testing.T) {
	require.NotNil(t, subscriptionCmd.Flags().Lookup("email"))
	watch := subscriptionCmd.Flags().Lookup("watch")
	require.NotNil(t, watch)
	assert.Equal(t, "0s", watch.DefValue)
}

func TestParseStores(t *testing.T) {
	assert.Nil(t, parseStores(""))
	assert.Equal(t, []string{"zalando", "elkjop"}, parseStores(" zalando, ,elkjop "))
}
