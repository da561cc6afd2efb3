package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bybitengine/bterr"
)

func validConfig() Config {
	c := Default()
	c.Symbols = []string{"BTCUSDT", "ETHUSDT"}
	return c
}

func TestDefaultConfigWithSymbolsIsValid(t *testing.T) {
	assert.NoError(t, validConfig().Validate())
}

func TestValidateCollectsAllErrorsNotJustFirst(t *testing.T) {
	c := validConfig()
	c.Symbols = nil
	c.Environment = "bogus"
	c.Mode = "bogus"
	c.Risk.MaxLeverage = -1

	err := c.Validate()
	require.Error(t, err)
	assert.Equal(t, bterr.KindConfig, bterr.Of(err))
	msg := err.Error()
	assert.Contains(t, msg, "symbols list is empty")
	assert.Contains(t, msg, `invalid environment "bogus"`)
	assert.Contains(t, msg, `invalid mode "bogus"`)
	assert.Contains(t, msg, "max_leverage")
}

func TestValidateRequiresCredentialsForLiveMode(t *testing.T) {
	c := validConfig()
	c.Mode = ModeLive
	c.APIKey = ""
	c.APISecret = ""

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key required for live mode")
	assert.Contains(t, err.Error(), "api secret required for live mode")
}

func TestValidateAcceptsLiveModeWithCredentials(t *testing.T) {
	c := validConfig()
	c.Mode = ModeLive
	c.APIKey = "key"
	c.APISecret = "secret"

	assert.NoError(t, c.Validate())
}

func TestValidateRejectsUnknownSignalActions(t *testing.T) {
	c := validConfig()
	c.SignalActions.OnSameDirection = "explode"
	c.SignalActions.OnOppositeDirection = "explode"

	err := c.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on_same_direction")
	assert.Contains(t, err.Error(), "on_opposite_direction")
}

func TestURLHelpersResolveByEnvironment(t *testing.T) {
	testnetCfg := validConfig()
	testnetCfg.Environment = EnvTestnet
	assert.Contains(t, testnetCfg.RESTURL(), "testnet")
	assert.Contains(t, testnetCfg.PublicWSURL(), "testnet")

	mainnetCfg := validConfig()
	mainnetCfg.Environment = EnvMainnet
	assert.NotContains(t, mainnetCfg.RESTURL(), "testnet")
	assert.NotContains(t, mainnetCfg.PublicWSURL(), "testnet")
}
