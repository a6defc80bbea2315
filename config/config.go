// Package config provides the key/value configuration store consumed by the
// backend connection. Values are addressed by section and entry, the way an
// INI file is laid out:
//
//	[t2sdk]
//	servers=127.0.0.1:9100;127.0.0.1:9101
//	heartbeat_ms=30000
//
// Two stores are provided: FileStore keeps the values in memory and loads or
// saves INI and YAML files, EtcdStore keeps them under a key prefix in etcd.
package config

import (
	"fmt"
	"strconv"
)

// Store is a sectioned key/value configuration store.
type Store interface {
	Load(file string) error
	Save(file string) error
	GetString(section, entry, def string) string
	GetInt(section, entry string, def int) int
	SetString(section, entry, value string) error
	SetInt(section, entry string, value int) error
}

// Well-known entries read by the transport.
const (
	SectionT2SDK = "t2sdk"

	KeyServers         = "servers"          // "host:port;host:port"
	KeyRegistryService = "registry_service" // gateway service name in the registry
	KeyHeartbeatMS     = "heartbeat_ms"
	KeyConnectTimeout  = "connect_timeout_ms"
	KeyCodec           = "codec"    // "binary" or "json"
	KeyBalancer        = "balancer" // "round_robin", "weighted_random" or "consistent_hash"
	KeyLicenseNo       = "license_no"
	KeyCompanyID       = "company_id"
)

// Apply copies a nested section → entry → value map into s. String values
// go through SetString, integers through SetInt, anything else is rejected.
func Apply(s Store, values map[string]map[string]any) error {
	for section, entries := range values {
		for entry, v := range entries {
			var err error
			switch x := v.(type) {
			case string:
				err = s.SetString(section, entry, x)
			case int:
				err = s.SetInt(section, entry, x)
			case int32:
				err = s.SetInt(section, entry, int(x))
			case int64:
				err = s.SetInt(section, entry, int(x))
			case float64:
				if x != float64(int(x)) {
					return fmt.Errorf("config: %s.%s: non-integer number %v", section, entry, x)
				}
				err = s.SetInt(section, entry, int(x))
			default:
				return fmt.Errorf("config: %s.%s: unsupported value type %T", section, entry, v)
			}
			if err != nil {
				return err
			}
		}
	}
	return nil
}

func atoiDefault(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}
