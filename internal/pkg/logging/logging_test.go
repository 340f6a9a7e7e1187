package logging

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTxnID(t *testing.T) {
	_, ok := TxnID(context.Background())
	assert.False(t, ok)

	ctx := NewTxn(context.Background())
	id, ok := TxnID(ctx)
	require.True(t, ok)
	assert.Len(t, id, 36)
	assert.Equal(t, id, Logger(ctx).Data["txnid"])

	_, ok = Logger(nil).Data["txnid"]
	assert.False(t, ok)
}

func TestConfigure(t *testing.T) {
	defer logrus.SetLevel(logrus.InfoLevel)

	v := viper.New()
	v.Set("logging.location", filepath.Join(t.TempDir(), "relay.log"))
	v.Set("logging.level", "warn")
	v.Set("logging.format", "json")

	require.NoError(t, Configure(v))
	assert.Equal(t, logrus.WarnLevel, logrus.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logrus.StandardLogger().Formatter)

	v.Set("debug", true)
	require.NoError(t, Configure(v))
	assert.Equal(t, logrus.DebugLevel, logrus.GetLevel())

	v.Set("logging.location", "stderr")
	v.Set("logging.format", "yaml")
	assert.Error(t, Configure(v))

	v.Set("logging.format", "text")
	v.Set("debug", false)
	v.Set("logging.level", "loud")
	assert.Error(t, Configure(v))
}
