package config

import (
	"github.com/spf13/viper"
)

const (
	DBURL = "database.mysql"

	RedisAddress  = "redis.address"
	RedisPassword = "redis.password"
	RedisDB       = "redis.db"

	VaultAddress      = "vault.address"
	VaultToken        = "vault.token"
	VaultUnSealKey    = "vault.unseal_key"
	VaultOperatorPath = "vault.operator_path"

	SettlementAPIAddress = "settlement.api_address"
	SettlementAPIKey     = "settlement.api_key"
	SettlementMinFee     = "settlement.min_fee"
	SettlementNoteKey    = "settlement.note_key"
	OperatorAddress      = "settlement.operator_address"
	OperatorPassphrase   = "settlement.operator_passphrase"

	PollInterval    = "coordinator.poll_interval"
	SettleDeadline  = "coordinator.deadline"
	MaxAttempts     = "coordinator.max_attempts"
	BaseBackoff     = "coordinator.base_backoff"
	ReconcileWindow = "coordinator.reconcile_window"

	CacheTTL = "cache.ttl"

	Port        = "server.port"
	Environment = "server.environment"
)

func init() {
	viper.AutomaticEnv()
	viper.SetDefault(Port, "9000")
	viper.SetDefault(Environment, "development")
	viper.SetDefault(PollInterval, "2s")
	viper.SetDefault(SettleDeadline, "2m")
	viper.SetDefault(MaxAttempts, 5)
	viper.SetDefault(BaseBackoff, "200ms")
	viper.SetDefault(ReconcileWindow, "10m")
	viper.SetDefault(CacheTTL, "30s")
	viper.SetDefault(SettlementMinFee, 1000)
}
