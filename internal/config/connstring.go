package config

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// ApplyDeviceConnectionString parses Auth.DeviceConnectionString, when set,
// and fills in HubFQDN/DeviceID/DeviceKey from it. Grounded on the Azure
// IoT Hub MQTT auth plugin's parseConnectionString
// ("HostName=...;DeviceId=...;SharedAccessKey=..."); the core itself never
// parses connection strings, only this config-layer convenience does.
func (c *Config) ApplyDeviceConnectionString() error {
	if c.Auth.DeviceConnectionString == "" {
		return nil
	}

	kv, err := parseConnectionString(c.Auth.DeviceConnectionString)
	if err != nil {
		return errors.Wrap(err, "config: parse device connection string error")
	}

	for k, v := range kv {
		switch k {
		case "HostName":
			c.Auth.HubFQDN = v
		case "DeviceId":
			c.Auth.DeviceID = v
		case "SharedAccessKey":
			c.Auth.DeviceKey = v
		}
	}
	return nil
}

func parseConnectionString(str string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(str, ";") {
		if pair == "" {
			continue
		}
		kv := strings.SplitN(pair, "=", 2)
		if len(kv) != 2 {
			return nil, fmt.Errorf("expected two items in: %+v", kv)
		}
		out[kv[0]] = kv[1]
	}
	return out, nil
}
