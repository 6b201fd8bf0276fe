// Package config reads ambient runtime tuning from a .env file: worker
// pool sizing, listen addresses, polling periods. It is distinct from
// internal/identity, which persists the peer's own identifying state
// (shares, nickname, destination) rather than ops-facing knobs.
package config

import (
	"math"
	"runtime"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
)

// Read loads the .env-style config file at path into viper's global store.
func Read(path string) error {
	viper.SetConfigFile(path)
	return viper.ReadInConfig()
}

// Get returns a raw string config value by key.
func Get(key string) string {
	return viper.GetString(key)
}

// GetFloat parses a config value as a floating point number.
func GetFloat(key string) float64 {
	return viper.GetFloat64(key)
}

// GetTransferAddress returns the address the TransferService gRPC server
// binds to, defaulting to all interfaces on an ephemeral-adjacent port.
func GetTransferAddress() string {
	if v := Get("TransferAddress"); v != "" {
		return v
	}
	return "0.0.0.0:9001"
}

// GetBridgeAddress returns the address the local UI command/event bridge
// listens on.
func GetBridgeAddress() string {
	if v := Get("BridgeAddress"); v != "" {
		return v
	}
	return "127.0.0.1:7647"
}

// GetMetricsAddress returns the configured MetricsAddress value. Nothing in
// the daemon listens on it: Prometheus metrics are served at /metrics on
// the bridge's address (GetBridgeAddress).
func GetMetricsAddress() string {
	if v := Get("MetricsAddress"); v != "" {
		return v
	}
	return "127.0.0.1:7648"
}

// GetConcurrencyFactor sizes the worker pool used for directory walks, as a
// multiple of NumCPU. File serving uses GetIOConcurrencyFactor, which falls
// back to this value when IOConcurrencyFactor is unset.
//
// You can set a floating point value for ConcurrencyFactor ( > 0 )
func GetConcurrencyFactor() int {
	f := int(math.Ceil(GetFloat("ConcurrencyFactor") * float64(runtime.NumCPU())))
	if f <= 0 {
		logrus.Warn("config: bad concurrency factor, using unit sized pool")
		return 1
	}
	return f
}

// GetIOConcurrencyFactor sizes the pool bounding concurrently open file
// descriptors while serving GetFile streams, independent of the
// enumeration pool sized by GetConcurrencyFactor — so a burst of
// directory listings doesn't starve in-flight file transfers of worker
// slots, or vice versa.
//
// You can set a floating point value for IOConcurrencyFactor ( > 0 )
func GetIOConcurrencyFactor() int {
	raw := Get("IOConcurrencyFactor")
	if raw == "" {
		return GetConcurrencyFactor()
	}
	f := int(math.Ceil(GetFloat("IOConcurrencyFactor") * float64(runtime.NumCPU())))
	if f <= 0 {
		logrus.Warn("config: bad IO concurrency factor, using unit sized pool")
		return 1
	}
	return f
}

// GetStaleSweepPeriod reads how often, in seconds, the discovery listener
// sweeps its peer table for stale entries. Defaults to 15s.
func GetStaleSweepPeriod() uint64 {
	v := Get("StaleSweepPeriodSeconds")
	if v == "" {
		return 15
	}
	n, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		logrus.WithError(err).Warn("config: bad stale sweep period, using 15s")
		return 15
	}
	return n
}
